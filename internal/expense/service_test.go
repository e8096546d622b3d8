package expense_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/MrJamesThe3rd/splitledger/internal/expense"
)

func TestExpense_Validate(t *testing.T) {
	tests := []struct {
		name    string
		exp     expense.Expense
		wantErr bool
	}{
		{
			name: "Valid",
			exp:  expense.Expense{PayerID: "A", Amount: 300, Shares: map[string]int64{"A": 100, "B": 100, "C": 100}},
		},
		{
			name: "PayerNotParticipant",
			exp:  expense.Expense{PayerID: "A", Amount: 300, Shares: map[string]int64{"B": 300}},
		},
		{
			name:    "SharesShort",
			exp:     expense.Expense{PayerID: "A", Amount: 300, Shares: map[string]int64{"A": 100, "B": 100}},
			wantErr: true,
		},
		{
			name:    "NegativeShare",
			exp:     expense.Expense{PayerID: "A", Amount: 100, Shares: map[string]int64{"A": 200, "B": -100}},
			wantErr: true,
		},
		{
			name:    "ZeroAmount",
			exp:     expense.Expense{PayerID: "A", Amount: 0, Shares: map[string]int64{"A": 0}},
			wantErr: true,
		},
		{
			name:    "MissingPayer",
			exp:     expense.Expense{Amount: 100, Shares: map[string]int64{"A": 100}},
			wantErr: true,
		},
		{
			name:    "NoParticipants",
			exp:     expense.Expense{PayerID: "A", Amount: 100},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.exp.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, expense.ErrInvalid)
				return
			}

			assert.NoError(t, err)
		})
	}
}

func TestEqualShares(t *testing.T) {
	shares := expense.EqualShares(1000, []string{"A", "B", "C"})
	assert.Equal(t, map[string]int64{"A": 334, "B": 333, "C": 333}, shares)

	assert.Nil(t, expense.EqualShares(1000, nil))
}

func TestService_ListExpenses(t *testing.T) {
	type testCase struct {
		name      string
		setupMock func(m *expense.MockRepository)
		wantLen   int
		wantErr   bool
	}

	tests := []testCase{
		{
			name: "Success",
			setupMock: func(m *expense.MockRepository) {
				m.EXPECT().
					ListExpenses(gomock.Any(), "g1").
					Return([]*expense.Expense{{ID: uuid.New()}, {ID: uuid.New()}}, nil)
			},
			wantLen: 2,
		},
		{
			name: "Error",
			setupMock: func(m *expense.MockRepository) {
				m.EXPECT().
					ListExpenses(gomock.Any(), "g1").
					Return(nil, errors.New("list error"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			repo := expense.NewMockRepository(ctrl)
			tt.setupMock(repo)

			svc := expense.NewService(repo)
			got, err := svc.ListExpenses(context.Background(), "g1")

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			assert.NoError(t, err)
			assert.Len(t, got, tt.wantLen)
		})
	}
}

func dinner(date time.Time) expense.CreateParams {
	return expense.CreateParams{
		PayerID:     "A",
		Amount:      3000,
		Shares:      map[string]int64{"A": 1000, "B": 1000, "C": 1000},
		Description: "Dinner",
		Date:        date,
	}
}

func TestService_ImportBatch_NoConflicts(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := expense.NewMockRepository(ctrl)
	itx := expense.NewMockImportTx(ctrl)
	svc := expense.NewService(repo)

	params := []expense.CreateParams{dinner(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))}

	repo.EXPECT().BeginImport(gomock.Any(), "g1").Return(itx, nil)
	itx.EXPECT().FindDuplicates(gomock.Any(), "g1", params).Return(nil, nil)
	itx.EXPECT().CreateExpenses(gomock.Any(), gomock.Len(1)).Return(nil)
	itx.EXPECT().Commit().Return(nil)
	itx.EXPECT().Rollback().Return(nil)

	result, err := svc.ImportBatch(context.Background(), "g1", params)
	require.NoError(t, err)
	require.Len(t, result.Imported, 1)
	assert.Equal(t, "g1", result.Imported[0].GroupID)
	assert.NotEqual(t, uuid.Nil, result.Imported[0].ID)
	assert.Empty(t, result.Conflicts)
}

func TestService_ImportBatch_WithConflicts(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := expense.NewMockRepository(ctrl)
	itx := expense.NewMockImportTx(ctrl)
	svc := expense.NewService(repo)

	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	taxi := expense.CreateParams{
		PayerID:     "B",
		Amount:      900,
		Shares:      map[string]int64{"A": 450, "B": 450},
		Description: "Taxi",
		Date:        date,
	}
	params := []expense.CreateParams{dinner(date), taxi}

	existing := &expense.Expense{
		ID:          uuid.New(),
		PayerID:     "A",
		Amount:      3000,
		Description: "Dinner",
		Date:        date.Add(5 * time.Hour),
	}

	repo.EXPECT().BeginImport(gomock.Any(), "g1").Return(itx, nil)
	itx.EXPECT().FindDuplicates(gomock.Any(), "g1", params).Return([]*expense.Expense{existing}, nil)
	itx.EXPECT().Rollback().Return(nil)

	result, err := svc.ImportBatch(context.Background(), "g1", params)
	require.NoError(t, err)
	assert.Empty(t, result.Imported)
	assert.Equal(t, []expense.CreateParams{taxi}, result.New)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, existing, result.Conflicts[0].Existing)
}

func TestService_ImportBatch_InvalidRow(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc := expense.NewService(expense.NewMockRepository(ctrl))

	bad := dinner(time.Now())
	bad.Shares = map[string]int64{"A": 1}

	_, err := svc.ImportBatch(context.Background(), "g1", []expense.CreateParams{bad})
	assert.ErrorIs(t, err, expense.ErrInvalid)
}

func TestService_ImportBatch_Empty(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc := expense.NewService(expense.NewMockRepository(ctrl))

	result, err := svc.ImportBatch(context.Background(), "g1", nil)
	require.NoError(t, err)
	assert.Empty(t, result.Imported)
}

func TestService_CreateBatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := expense.NewMockRepository(ctrl)
	itx := expense.NewMockImportTx(ctrl)
	svc := expense.NewService(repo)

	repo.EXPECT().BeginImport(gomock.Any(), "g1").Return(itx, nil)
	itx.EXPECT().CreateExpenses(gomock.Any(), gomock.Any()).Return(nil)
	itx.EXPECT().Commit().Return(nil)
	itx.EXPECT().Rollback().Return(nil)

	exps, err := svc.CreateBatch(context.Background(), "g1", []expense.CreateParams{dinner(time.Now())})
	require.NoError(t, err)
	require.Len(t, exps, 1)
	assert.Equal(t, int64(3000), exps[0].Amount)
}
