package expense

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=expense
type Repository interface {
	GetExpense(ctx context.Context, id uuid.UUID) (*Expense, error)
	ListExpenses(ctx context.Context, groupID string) ([]*Expense, error)

	BeginImport(ctx context.Context, groupID string) (ImportTx, error)
}

type ImportTx interface {
	FindDuplicates(ctx context.Context, groupID string, params []CreateParams) ([]*Expense, error)
	CreateExpenses(ctx context.Context, exps []*Expense) error
	Commit() error
	Rollback() error
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

type CreateParams struct {
	PayerID     string
	Amount      int64
	Shares      map[string]int64
	Description string
	Date        time.Time
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Expense, error) {
	return s.repo.GetExpense(ctx, id)
}

// ListExpenses returns every expense of the group, oldest first.
func (s *Service) ListExpenses(ctx context.Context, groupID string) ([]*Expense, error) {
	return s.repo.ListExpenses(ctx, groupID)
}

type ImportResult struct {
	Imported  []*Expense
	New       []CreateParams
	Conflicts []Conflict
}

type Conflict struct {
	Incoming CreateParams
	Existing *Expense
}

// ImportBatch stores params unless any of them duplicates an existing expense
// (same day, amount, payer and description). On duplicates nothing is written
// and the split between new and conflicting rows is returned for review.
func (s *Service) ImportBatch(ctx context.Context, groupID string, params []CreateParams) (*ImportResult, error) {
	if len(params) == 0 {
		return &ImportResult{}, nil
	}

	exps, err := FromParams(groupID, params)
	if err != nil {
		return nil, err
	}

	itx, err := s.repo.BeginImport(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("begin import: %w", err)
	}
	defer itx.Rollback()

	duplicates, err := itx.FindDuplicates(ctx, groupID, params)
	if err != nil {
		return nil, fmt.Errorf("find duplicates: %w", err)
	}

	lookup := make(map[dupKey]*Expense, len(duplicates))
	for _, d := range duplicates {
		lookup[keyOf(d.Date, d.Amount, d.PayerID, d.Description)] = d
	}

	var (
		newParams []CreateParams
		conflicts []Conflict
	)

	for _, p := range params {
		existing, found := lookup[keyOf(p.Date, p.Amount, p.PayerID, p.Description)]
		if found {
			conflicts = append(conflicts, Conflict{Incoming: p, Existing: existing})
			continue
		}

		newParams = append(newParams, p)
	}

	if len(conflicts) > 0 {
		return &ImportResult{New: newParams, Conflicts: conflicts}, nil
	}

	if err := itx.CreateExpenses(ctx, exps); err != nil {
		return nil, fmt.Errorf("create expenses: %w", err)
	}

	if err := itx.Commit(); err != nil {
		return nil, fmt.Errorf("commit import: %w", err)
	}

	return &ImportResult{Imported: exps}, nil
}

// CreateBatch stores params without duplicate detection, typically after the
// user reviewed the conflicts reported by ImportBatch.
func (s *Service) CreateBatch(ctx context.Context, groupID string, params []CreateParams) ([]*Expense, error) {
	if len(params) == 0 {
		return nil, nil
	}

	exps, err := FromParams(groupID, params)
	if err != nil {
		return nil, err
	}

	itx, err := s.repo.BeginImport(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("begin import: %w", err)
	}
	defer itx.Rollback()

	if err := itx.CreateExpenses(ctx, exps); err != nil {
		return nil, fmt.Errorf("create expenses: %w", err)
	}

	if err := itx.Commit(); err != nil {
		return nil, fmt.Errorf("commit import: %w", err)
	}

	return exps, nil
}

type dupKey struct {
	Date        string
	Amount      int64
	PayerID     string
	Description string
}

func keyOf(date time.Time, amount int64, payer, desc string) dupKey {
	return dupKey{
		Date:        date.Format(time.DateOnly),
		Amount:      amount,
		PayerID:     payer,
		Description: desc,
	}
}

// DuplicateKeyMatches reports whether e has the same duplicate key as p.
// Stores use it to filter candidate rows.
func DuplicateKeyMatches(e *Expense, p CreateParams) bool {
	return keyOf(e.Date, e.Amount, e.PayerID, e.Description) == keyOf(p.Date, p.Amount, p.PayerID, p.Description)
}

// FromParams builds validated expenses with fresh ids without storing them.
func FromParams(groupID string, params []CreateParams) ([]*Expense, error) {
	exps := make([]*Expense, len(params))

	for i, p := range params {
		e := &Expense{
			ID:          uuid.New(),
			GroupID:     groupID,
			PayerID:     p.PayerID,
			Amount:      p.Amount,
			Shares:      p.Shares,
			Description: p.Description,
			Date:        p.Date,
		}

		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}

		exps[i] = e
	}

	return exps, nil
}
