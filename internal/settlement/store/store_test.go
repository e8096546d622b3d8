package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/splitledger/internal/database"
	"github.com/MrJamesThe3rd/splitledger/internal/ledger"
	"github.com/MrJamesThe3rd/splitledger/internal/settlement"
	"github.com/MrJamesThe3rd/splitledger/internal/settlement/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	db, err := database.New(database.DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.Migrate(context.Background(), db))

	return store.New(db)
}

func seedSettlement(t *testing.T, s *store.Store, total int64, expenseIDs ...uuid.UUID) *settlement.Settlement {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Microsecond)
	st := &settlement.Settlement{
		ID:              uuid.New(),
		GroupID:         "g1",
		FromUserID:      "B",
		ToUserID:        "A",
		TotalAmount:     total,
		RemainingAmount: total,
		Status:          settlement.StatusPending,
		ExpenseIDs:      expenseIDs,
		CreatedBy:       "B",
		CreatedAt:       now,
		UpdatedAt:       now,
		Version:         1,
	}

	require.NoError(t, s.CreateSettlement(context.Background(), st))

	return st
}

func seedPayment(t *testing.T, s *store.Store, st *settlement.Settlement, amount int64) *settlement.Payment {
	t.Helper()

	cur, err := s.GetSettlement(context.Background(), st.ID)
	require.NoError(t, err)

	p := &settlement.Payment{
		ID:           uuid.New(),
		SettlementID: st.ID,
		Amount:       amount,
		Method:       settlement.MethodCash,
		Status:       settlement.PaymentPending,
		SubmittedBy:  "B",
		CreatedAt:    time.Now().UTC(),
	}

	require.NoError(t, s.CreatePayment(context.Background(), p, cur.Version))

	return p
}

func TestStore_CreateAndGetSettlement(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	expID := uuid.New()
	st := seedSettlement(t, s, 150, expID)

	got, err := s.GetSettlement(ctx, st.ID)
	require.NoError(t, err)

	assert.Equal(t, "B", got.FromUserID)
	assert.Equal(t, "A", got.ToUserID)
	assert.Equal(t, int64(150), got.RemainingAmount)
	assert.Equal(t, settlement.StatusPending, got.Status)
	assert.Equal(t, []uuid.UUID{expID}, got.ExpenseIDs)
	assert.Nil(t, got.DueDate)
	assert.Equal(t, int64(1), got.Version)

	_, err = s.GetSettlement(ctx, uuid.New())
	assert.ErrorIs(t, err, settlement.ErrSettlementNotFound)

	_, err = s.GetPayment(ctx, uuid.New())
	assert.ErrorIs(t, err, settlement.ErrPaymentNotFound)
}

func TestStore_CreatePayment_BumpsVersion(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	st := seedSettlement(t, s, 100)
	p := seedPayment(t, s, st, 40)

	got, err := s.GetSettlement(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	require.Len(t, got.Payments, 1)
	assert.Equal(t, p.ID, got.Payments[0].ID)
	assert.Equal(t, settlement.PaymentPending, got.Payments[0].Status)
	assert.Equal(t, int64(100), got.RemainingAmount)

	stale := &settlement.Payment{
		ID: uuid.New(), SettlementID: st.ID, Amount: 10, Method: settlement.MethodCash,
		Status: settlement.PaymentPending, SubmittedBy: "B", CreatedAt: time.Now().UTC(),
	}
	err = s.CreatePayment(ctx, stale, 1)
	assert.ErrorIs(t, err, settlement.ErrStaleVersion)

	_, err = s.GetPayment(ctx, stale.ID)
	assert.ErrorIs(t, err, settlement.ErrPaymentNotFound)
}

func TestStore_ApplyTransition_ConfirmCompletes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	expID := uuid.New()
	st := seedSettlement(t, s, 100, expID)
	p := seedPayment(t, s, st, 100)

	now := time.Now().UTC()
	err := s.ApplyTransition(ctx, settlement.Transition{
		Payment:    &settlement.PaymentChange{ID: p.ID, From: settlement.PaymentPending, To: settlement.PaymentVerified, Note: "got it", At: now},
		Settlement: &settlement.SettlementChange{ID: st.ID, ExpectedVersion: 2, Remaining: 0, Status: settlement.StatusCompleted, At: now},
	})
	require.NoError(t, err)

	got, err := s.GetSettlement(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, settlement.StatusCompleted, got.Status)
	assert.Equal(t, int64(0), got.RemainingAmount)
	assert.Equal(t, int64(3), got.Version)

	pay, err := s.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, settlement.PaymentVerified, pay.Status)
	assert.Equal(t, "got it", pay.ResolutionNote)
	assert.NotNil(t, pay.VerifiedAt)
	assert.Nil(t, pay.RejectedAt)

	covered, err := s.CoveredExpenseIDs(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]bool{expID: true}, covered)

	// A completed settlement takes no new claims.
	err = s.CreatePayment(ctx, &settlement.Payment{
		ID: uuid.New(), SettlementID: st.ID, Amount: 1, Method: settlement.MethodCash,
		Status: settlement.PaymentPending, SubmittedBy: "B", CreatedAt: now,
	}, 3)
	assert.ErrorIs(t, err, settlement.ErrStaleVersion)
}

func TestStore_ApplyTransition_RollsBackOnStaleVersion(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	st := seedSettlement(t, s, 100)
	p := seedPayment(t, s, st, 30)

	now := time.Now().UTC()
	err := s.ApplyTransition(ctx, settlement.Transition{
		Payment:    &settlement.PaymentChange{ID: p.ID, From: settlement.PaymentPending, To: settlement.PaymentVerified, At: now},
		Settlement: &settlement.SettlementChange{ID: st.ID, ExpectedVersion: 1, Remaining: 70, Status: settlement.StatusPartial, At: now},
	})
	assert.ErrorIs(t, err, settlement.ErrStaleVersion)

	pay, err := s.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, settlement.PaymentPending, pay.Status)
	assert.Nil(t, pay.VerifiedAt)
}

func TestStore_ApplyTransition_RejectAndAudit(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	st := seedSettlement(t, s, 100)
	p := seedPayment(t, s, st, 30)

	now := time.Now().UTC()
	require.NoError(t, s.ApplyTransition(ctx, settlement.Transition{
		Payment: &settlement.PaymentChange{ID: p.ID, From: settlement.PaymentPending, To: settlement.PaymentDisputed, Note: "not received", At: now},
	}))

	err := s.ApplyTransition(ctx, settlement.Transition{
		Payment: &settlement.PaymentChange{ID: p.ID, From: settlement.PaymentPending, To: settlement.PaymentVerified, At: now},
	})
	assert.ErrorIs(t, err, settlement.ErrStaleStatus)

	require.NoError(t, s.ApplyTransition(ctx, settlement.Transition{
		Settlement: &settlement.SettlementChange{ID: st.ID, ExpectedVersion: 2, Remaining: 0, Status: settlement.StatusCompleted, At: now},
		Audit: &settlement.AuditEntry{
			ID: uuid.New(), SettlementID: st.ID, Action: settlement.AuditForceSettled,
			Actor: "admin", Detail: "wrote off 100 of 100", CreatedAt: now,
		},
	}))

	entries, err := s.ListAudit(ctx, st.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "admin", entries[0].Actor)
	assert.Equal(t, settlement.AuditForceSettled, entries[0].Action)

	pay, err := s.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, settlement.PaymentDisputed, pay.Status)
	assert.Equal(t, "not received", pay.ResolutionNote)
	assert.NotNil(t, pay.RejectedAt)
}

func TestStore_ListSettlements(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first := seedSettlement(t, s, 100)
	seedSettlement(t, s, 50)

	due := time.Now().UTC().Add(-time.Hour)
	late := &settlement.Settlement{
		ID: uuid.New(), GroupID: "g2", FromUserID: "C", ToUserID: "D",
		TotalAmount: 20, RemainingAmount: 20, Status: settlement.StatusPending,
		DueDate: &due, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(), Version: 1,
	}
	require.NoError(t, s.CreateSettlement(ctx, late))

	byGroup, err := s.ListSettlements(ctx, settlement.ListFilter{GroupID: "g1"})
	require.NoError(t, err)
	assert.Len(t, byGroup, 2)
	assert.Equal(t, first.ID, byGroup[0].ID)

	byUser, err := s.ListSettlements(ctx, settlement.ListFilter{UserID: "D"})
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	assert.Equal(t, late.ID, byUser[0].ID)

	now := time.Now().UTC()
	overdue, err := s.ListSettlements(ctx, settlement.ListFilter{
		Statuses:  []settlement.Status{settlement.StatusPending, settlement.StatusPartial},
		DueBefore: &now,
	})
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, late.ID, overdue[0].ID)
	require.NotNil(t, overdue[0].DueDate)

	completed, err := s.ListSettlements(ctx, settlement.ListFilter{Statuses: []settlement.Status{settlement.StatusCompleted}})
	require.NoError(t, err)
	assert.Empty(t, completed)
}

func TestStore_ConcurrentResolutionHasOneWinner(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	st := seedSettlement(t, s, 100)
	p := seedPayment(t, s, st, 100)

	targets := []settlement.PaymentStatus{settlement.PaymentVerified, settlement.PaymentDisputed}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)

	for _, to := range targets {
		wg.Go(func() {
			err := s.ApplyTransition(ctx, settlement.Transition{
				Payment: &settlement.PaymentChange{ID: p.ID, From: settlement.PaymentPending, To: to, At: time.Now().UTC()},
			})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()

				return
			}

			assert.True(t, errors.Is(err, settlement.ErrStaleStatus), "unexpected error: %v", err)
		})
	}

	wg.Wait()

	assert.Equal(t, 1, wins)
}

func completeSettlement(t *testing.T, s *store.Store, st *settlement.Settlement) {
	t.Helper()

	p := seedPayment(t, s, st, st.TotalAmount)
	now := time.Now().UTC()

	require.NoError(t, s.ApplyTransition(context.Background(), settlement.Transition{
		Payment:    &settlement.PaymentChange{ID: p.ID, From: settlement.PaymentPending, To: settlement.PaymentVerified, At: now},
		Settlement: &settlement.SettlementChange{ID: st.ID, ExpectedVersion: 2, Remaining: 0, Status: settlement.StatusCompleted, At: now},
	}))
}

func TestStore_SettledTransfers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	linked := seedSettlement(t, s, 100, uuid.New())
	completeSettlement(t, s, linked)

	free := seedSettlement(t, s, 150)
	completeSettlement(t, s, free)

	seedSettlement(t, s, 70)

	transfers, err := s.SettledTransfers(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, []ledger.Transfer{{From: "B", To: "A", Amount: 150}}, transfers)

	none, err := s.SettledTransfers(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, none)
}
