package simplify_test

import (
	"math/rand/v2"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/splitledger/internal/expense"
	"github.com/MrJamesThe3rd/splitledger/internal/ledger"
	"github.com/MrJamesThe3rd/splitledger/internal/simplify"
)

func TestSimplify_ThreeMembers(t *testing.T) {
	exps := []*expense.Expense{
		{ID: uuid.New(), GroupID: "g", PayerID: "A", Amount: 300, Shares: map[string]int64{"A": 100, "B": 100, "C": 100}},
		{ID: uuid.New(), GroupID: "g", PayerID: "B", Amount: 150, Shares: map[string]int64{"A": 50, "B": 50, "C": 50}},
	}

	balances, err := ledger.ComputeBalances("g", exps, nil)
	require.NoError(t, err)

	plan, err := simplify.Simplify(balances)
	require.NoError(t, err)

	assert.Equal(t, []simplify.Suggestion{{From: "C", To: "A", Amount: 150}}, plan.Suggestions)
	assert.Equal(t, 3, plan.PairwiseCount)
	assert.Equal(t, 66, plan.Reduction)
}

func TestSimplify_Empty(t *testing.T) {
	plan, err := simplify.Simplify(ledger.Balances{})
	require.NoError(t, err)
	assert.Empty(t, plan.Suggestions)
	assert.Zero(t, plan.PairwiseCount)
	assert.Zero(t, plan.Reduction)
}

func TestSimplify_TieBreakByUserID(t *testing.T) {
	// Two debtors owe the same amount to two equal creditors.
	b := ledger.Balances{
		ledger.NewPair("c1", "d1"): 100, // d1 owes c1
		ledger.NewPair("c2", "d2"): 100, // d2 owes c2
		ledger.NewPair("c1", "d2"): 100, // d2 owes c1
		ledger.NewPair("c2", "d1"): 100, // d1 owes c2
	}

	for range 20 {
		plan, err := simplify.Simplify(b)
		require.NoError(t, err)

		assert.Equal(t, []simplify.Suggestion{
			{From: "d1", To: "c1", Amount: 200},
			{From: "d2", To: "c2", Amount: 200},
		}, plan.Suggestions)
	}
}

func TestSimplify_DisjointGroupsNeverExceedPairwise(t *testing.T) {
	// A global greedy pass would pair A with E and produce four payments here.
	b := ledger.Balances{
		ledger.NewPair("A", "B"): -3, // A owes B 3
		ledger.NewPair("A", "C"): -2, // A owes C 2
		ledger.NewPair("D", "E"): -4, // D owes E 4
	}

	plan, err := simplify.Simplify(b)
	require.NoError(t, err)

	assert.Equal(t, []simplify.Suggestion{
		{From: "A", To: "B", Amount: 3},
		{From: "A", To: "C", Amount: 2},
		{From: "D", To: "E", Amount: 4},
	}, plan.Suggestions)
	assert.Equal(t, 3, plan.PairwiseCount)
	assert.Zero(t, plan.Reduction)
}

func TestSimplify_ChainCollapses(t *testing.T) {
	// A owes B, B owes C the same amount: one payment A -> C.
	b := ledger.Balances{
		ledger.NewPair("A", "B"): -500,
		ledger.NewPair("B", "C"): -500,
	}

	plan, err := simplify.Simplify(b)
	require.NoError(t, err)
	assert.Equal(t, []simplify.Suggestion{{From: "A", To: "C", Amount: 500}}, plan.Suggestions)
	assert.Equal(t, 50, plan.Reduction)
}

func TestSimplify_RandomisedProperties(t *testing.T) {
	users := []string{"u1", "u2", "u3", "u4", "u5", "u6", "u7"}
	rng := rand.New(rand.NewPCG(1, 2))

	for round := range 200 {
		b := ledger.Balances{}

		for range rng.IntN(15) {
			x, y := users[rng.IntN(len(users))], users[rng.IntN(len(users))]
			if x == y {
				continue
			}

			p := ledger.NewPair(x, y)
			b[p] += int64(rng.IntN(20001) - 10000)

			if b[p] == 0 {
				delete(b, p)
			}
		}

		plan, err := simplify.Simplify(b)
		require.NoError(t, err, "round %d", round)

		net, err := b.NetPositions()
		require.NoError(t, err)

		require.NoError(t, simplify.Verify(net, plan.Suggestions), "round %d", round)
		assert.LessOrEqual(t, len(plan.Suggestions), plan.PairwiseCount, "round %d", round)

		again, err := simplify.Simplify(b)
		require.NoError(t, err)
		assert.Equal(t, plan, again, "round %d: output must be reproducible", round)
	}
}

func TestSimplifyNet(t *testing.T) {
	got, err := simplify.SimplifyNet(map[string]int64{"A": 150, "B": 0, "C": -150})
	require.NoError(t, err)
	assert.Equal(t, []simplify.Suggestion{{From: "C", To: "A", Amount: 150}}, got)

	_, err = simplify.SimplifyNet(map[string]int64{"A": 10, "B": -5})
	assert.ErrorIs(t, err, simplify.ErrNotConserved)
}

func TestVerify_DetectsImbalance(t *testing.T) {
	net := map[string]int64{"A": 100, "B": -100}

	assert.NoError(t, simplify.Verify(net, []simplify.Suggestion{{From: "B", To: "A", Amount: 100}}))
	assert.ErrorIs(t, simplify.Verify(net, []simplify.Suggestion{{From: "B", To: "A", Amount: 90}}), simplify.ErrNotConserved)
	assert.ErrorIs(t, simplify.Verify(net, []simplify.Suggestion{{From: "A", To: "A", Amount: 1}}), simplify.ErrNotConserved)
}
