// Package balance serves group balances and settlement suggestions computed
// from persisted expenses, with an optional snapshot cache in front.
package balance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/splitledger/internal/expense"
	"github.com/MrJamesThe3rd/splitledger/internal/ledger"
	"github.com/MrJamesThe3rd/splitledger/internal/metrics"
	"github.com/MrJamesThe3rd/splitledger/internal/simplify"
)

type ExpenseSource interface {
	ListExpenses(ctx context.Context, groupID string) ([]*expense.Expense, error)
}

// CoverageSource reports what completed settlements already paid off: the
// expenses they name, and transfers for those that name none.
type CoverageSource interface {
	CoveredExpenseIDs(ctx context.Context, groupID string) (map[uuid.UUID]bool, error)
	SettledTransfers(ctx context.Context, groupID string) ([]ledger.Transfer, error)
}

// Cache stores computed snapshots per group. A miss is (nil, false, nil).
type Cache interface {
	Get(ctx context.Context, groupID string) (*Snapshot, bool, error)
	Set(ctx context.Context, groupID string, snap *Snapshot) error
	Delete(ctx context.Context, groupID string) error
}

// Snapshot is everything derived from a group's outstanding expenses at one
// point in time.
type Snapshot struct {
	GroupID    string           `json:"group_id"`
	Balances   []ledger.Balance `json:"balances"`
	Net        map[string]int64 `json:"net"`
	Plan       simplify.Plan    `json:"plan"`
	ComputedAt time.Time        `json:"computed_at"`
}

type Service struct {
	expenses ExpenseSource
	coverage CoverageSource
	cache    Cache
}

func NewService(expenses ExpenseSource, coverage CoverageSource, cache Cache) *Service {
	if cache == nil {
		cache = NopCache{}
	}

	return &Service{
		expenses: expenses,
		coverage: coverage,
		cache:    cache,
	}
}

// Snapshot returns the cached snapshot for the group or computes a fresh
// one. Cache failures are logged and fall back to computing.
func (s *Service) Snapshot(ctx context.Context, groupID string) (*Snapshot, error) {
	snap, ok, err := s.cache.Get(ctx, groupID)

	switch {
	case err != nil:
		metrics.BalanceCache.WithLabelValues("error").Inc()
		slog.Warn("balance cache read failed", "group_id", groupID, "error", err)
	case ok:
		metrics.BalanceCache.WithLabelValues("hit").Inc()
		return snap, nil
	default:
		metrics.BalanceCache.WithLabelValues("miss").Inc()
	}

	snap, err = s.compute(ctx, groupID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, groupID, snap); err != nil {
		slog.Warn("balance cache write failed", "group_id", groupID, "error", err)
	}

	return snap, nil
}

func (s *Service) compute(ctx context.Context, groupID string) (*Snapshot, error) {
	start := time.Now()
	defer func() { metrics.BalanceComputeSeconds.Observe(time.Since(start).Seconds()) }()

	expenses, err := s.expenses.ListExpenses(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("listing expenses: %w", err)
	}

	var (
		covered   map[uuid.UUID]bool
		transfers []ledger.Transfer
	)

	if s.coverage != nil {
		covered, err = s.coverage.CoveredExpenseIDs(ctx, groupID)
		if err != nil {
			return nil, fmt.Errorf("listing covered expenses: %w", err)
		}

		transfers, err = s.coverage.SettledTransfers(ctx, groupID)
		if err != nil {
			return nil, fmt.Errorf("listing settled transfers: %w", err)
		}
	}

	return build(groupID, expenses, covered, transfers)
}

func build(groupID string, expenses []*expense.Expense, covered map[uuid.UUID]bool, transfers []ledger.Transfer) (*Snapshot, error) {
	balances, err := ledger.Compute(groupID, expenses, covered, transfers)
	if err != nil {
		return nil, err
	}

	net, err := balances.NetPositions()
	if err != nil {
		return nil, err
	}

	plan, err := simplify.Simplify(balances)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		GroupID:    groupID,
		Balances:   balances.Sorted(),
		Net:        net,
		Plan:       plan,
		ComputedAt: time.Now().UTC(),
	}, nil
}

func (s *Service) GroupBalances(ctx context.Context, groupID string) ([]ledger.Balance, error) {
	snap, err := s.Snapshot(ctx, groupID)
	if err != nil {
		return nil, err
	}

	return snap.Balances, nil
}

func (s *Service) Suggest(ctx context.Context, groupID string) (simplify.Plan, error) {
	snap, err := s.Snapshot(ctx, groupID)
	if err != nil {
		return simplify.Plan{}, err
	}

	return snap.Plan, nil
}

func (s *Service) NetPositions(ctx context.Context, groupID string) (map[string]int64, error) {
	snap, err := s.Snapshot(ctx, groupID)
	if err != nil {
		return nil, err
	}

	return snap.Net, nil
}

// Simulate runs the ledger and simplifier over ad-hoc expenses without
// reading or writing any storage.
func (s *Service) Simulate(groupID string, expenses []*expense.Expense) (*Snapshot, error) {
	return build(groupID, expenses, nil, nil)
}

// Invalidate drops the cached snapshot of the group. Failures are only logged;
// the entry expires on its own.
func (s *Service) Invalidate(ctx context.Context, groupID string) {
	if err := s.cache.Delete(ctx, groupID); err != nil {
		slog.Warn("balance cache invalidation failed", "group_id", groupID, "error", err)
	}
}

// NopCache never stores anything.
type NopCache struct{}

func (NopCache) Get(context.Context, string) (*Snapshot, bool, error) { return nil, false, nil }

func (NopCache) Set(context.Context, string, *Snapshot) error { return nil }

func (NopCache) Delete(context.Context, string) error { return nil }
