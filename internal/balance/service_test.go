package balance_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/splitledger/internal/balance"
	"github.com/MrJamesThe3rd/splitledger/internal/expense"
	"github.com/MrJamesThe3rd/splitledger/internal/ledger"
	"github.com/MrJamesThe3rd/splitledger/internal/simplify"
)

type stubExpenses struct {
	list  []*expense.Expense
	err   error
	calls int
}

func (s *stubExpenses) ListExpenses(_ context.Context, _ string) ([]*expense.Expense, error) {
	s.calls++
	return s.list, s.err
}

type stubCoverage struct {
	covered   map[uuid.UUID]bool
	transfers []ledger.Transfer
}

func (s stubCoverage) CoveredExpenseIDs(context.Context, string) (map[uuid.UUID]bool, error) {
	return s.covered, nil
}

func (s stubCoverage) SettledTransfers(context.Context, string) ([]ledger.Transfer, error) {
	return s.transfers, nil
}

type memCache struct {
	entries map[string]*balance.Snapshot
	getErr  error
	deletes []string
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]*balance.Snapshot)}
}

func (c *memCache) Get(_ context.Context, groupID string) (*balance.Snapshot, bool, error) {
	if c.getErr != nil {
		return nil, false, c.getErr
	}

	snap, ok := c.entries[groupID]

	return snap, ok, nil
}

func (c *memCache) Set(_ context.Context, groupID string, snap *balance.Snapshot) error {
	c.entries[groupID] = snap
	return nil
}

func (c *memCache) Delete(_ context.Context, groupID string) error {
	c.deletes = append(c.deletes, groupID)
	delete(c.entries, groupID)

	return nil
}

// scenario1 is A paying 300 split three ways and B paying 150 split three ways.
func scenario1() []*expense.Expense {
	return []*expense.Expense{
		{ID: uuid.New(), GroupID: "g1", PayerID: "A", Amount: 300, Shares: expense.EqualShares(300, []string{"A", "B", "C"})},
		{ID: uuid.New(), GroupID: "g1", PayerID: "B", Amount: 150, Shares: expense.EqualShares(150, []string{"A", "B", "C"})},
	}
}

func TestService_Snapshot(t *testing.T) {
	src := &stubExpenses{list: scenario1()}
	cache := newMemCache()
	svc := balance.NewService(src, nil, cache)

	ctx := context.Background()

	snap, err := svc.Snapshot(ctx, "g1")
	require.NoError(t, err)

	assert.Equal(t, map[string]int64{"A": 150, "C": -150}, snap.Net)
	assert.Equal(t, []simplify.Suggestion{{From: "C", To: "A", Amount: 150}}, snap.Plan.Suggestions)
	assert.Equal(t, 3, snap.Plan.PairwiseCount)
	assert.Len(t, snap.Balances, 3)

	// Second read is served from the cache.
	_, err = svc.Snapshot(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)

	svc.Invalidate(ctx, "g1")
	assert.Equal(t, []string{"g1"}, cache.deletes)

	_, err = svc.Snapshot(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestService_CacheFailureFallsBack(t *testing.T) {
	src := &stubExpenses{list: scenario1()}
	cache := newMemCache()
	cache.getErr = errors.New("redis down")
	svc := balance.NewService(src, nil, cache)

	plan, err := svc.Suggest(context.Background(), "g1")
	require.NoError(t, err)
	assert.Len(t, plan.Suggestions, 1)
}

func TestService_SkipsCoveredExpenses(t *testing.T) {
	expenses := scenario1()
	src := &stubExpenses{list: expenses}
	svc := balance.NewService(src, stubCoverage{covered: map[uuid.UUID]bool{expenses[0].ID: true}}, nil)

	balances, err := svc.GroupBalances(context.Background(), "g1")
	require.NoError(t, err)

	// Only B's expense is left: A and C each owe B 50.
	assert.ElementsMatch(t, []ledger.Balance{
		{UserA: "A", UserB: "B", Amount: -50},
		{UserA: "B", UserB: "C", Amount: 50},
	}, balances)

	net, err := svc.NetPositions(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"A": -50, "B": 100, "C": -50}, net)
}

func TestService_AppliesSettledTransfers(t *testing.T) {
	src := &stubExpenses{list: scenario1()}
	svc := balance.NewService(src, stubCoverage{transfers: []ledger.Transfer{{From: "C", To: "A", Amount: 150}}}, nil)

	snap, err := svc.Snapshot(context.Background(), "g1")
	require.NoError(t, err)
	assert.Empty(t, snap.Net)
	assert.Empty(t, snap.Plan.Suggestions)
}

func TestService_SourceError(t *testing.T) {
	src := &stubExpenses{err: errors.New("db down")}
	svc := balance.NewService(src, nil, nil)

	_, err := svc.Snapshot(context.Background(), "g1")
	assert.ErrorContains(t, err, "db down")
}

func TestService_Simulate(t *testing.T) {
	svc := balance.NewService(&stubExpenses{}, nil, nil)

	snap, err := svc.Simulate("g1", scenario1())
	require.NoError(t, err)
	assert.Equal(t, 66, snap.Plan.Reduction)

	bad := scenario1()
	bad[0].GroupID = "other"

	_, err = svc.Simulate("g1", bad)
	assert.ErrorIs(t, err, ledger.ErrInvalidExpense)
}
