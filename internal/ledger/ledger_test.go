package ledger_test

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/splitledger/internal/expense"
	"github.com/MrJamesThe3rd/splitledger/internal/ledger"
)

func exp(payer string, amount int64, shares map[string]int64) *expense.Expense {
	return &expense.Expense{
		ID:      uuid.New(),
		GroupID: "g1",
		PayerID: payer,
		Amount:  amount,
		Shares:  shares,
	}
}

func TestComputeBalances_TwoExpenses(t *testing.T) {
	e1 := exp("A", 300, map[string]int64{"A": 100, "B": 100, "C": 100})
	e2 := exp("B", 150, map[string]int64{"A": 50, "B": 50, "C": 50})

	got, err := ledger.ComputeBalances("g1", []*expense.Expense{e1, e2}, nil)
	require.NoError(t, err)

	// B owes A 100, A owes B 50 -> B owes A 50.
	assert.Equal(t, ledger.Balances{
		{A: "A", B: "B"}: 50,
		{A: "A", B: "C"}: 100,
		{A: "B", B: "C"}: 50,
	}, got)

	net, err := got.NetPositions()
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"A": 150, "C": -150}, net)

	assert.Equal(t, int64(50), got.Owes("B", "A"))
	assert.Equal(t, int64(0), got.Owes("A", "B"))
	assert.Equal(t, int64(100), got.Owes("C", "A"))
}

func TestComputeBalances_OrderIndependent(t *testing.T) {
	exps := []*expense.Expense{
		exp("A", 300, map[string]int64{"A": 100, "B": 100, "C": 100}),
		exp("B", 150, map[string]int64{"A": 50, "B": 50, "C": 50}),
		exp("C", 999, map[string]int64{"A": 333, "B": 333, "C": 333}),
		exp("A", 40, map[string]int64{"B": 40}),
	}

	want, err := ledger.ComputeBalances("g1", exps, nil)
	require.NoError(t, err)

	reversed := []*expense.Expense{exps[3], exps[2], exps[1], exps[0]}
	got, err := ledger.ComputeBalances("g1", reversed, nil)
	require.NoError(t, err)

	assert.Equal(t, want, got)
	assert.Equal(t, want.Sorted(), got.Sorted())
}

func TestComputeBalances_SelfPaymentExcluded(t *testing.T) {
	self := exp("A", 500, map[string]int64{"A": 500})
	zeroShares := exp("B", 500, map[string]int64{"B": 500, "C": 0})

	got, err := ledger.ComputeBalances("g1", []*expense.Expense{self, zeroShares}, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestComputeBalances_PayerWithoutShare(t *testing.T) {
	e := exp("A", 100, map[string]int64{"B": 60, "C": 40})

	got, err := ledger.ComputeBalances("g1", []*expense.Expense{e}, nil)
	require.NoError(t, err)
	assert.Equal(t, ledger.Balances{
		{A: "A", B: "B"}: 60,
		{A: "A", B: "C"}: 40,
	}, got)
}

func TestComputeBalances_CancellingDebtsDropPair(t *testing.T) {
	e1 := exp("A", 100, map[string]int64{"B": 100})
	e2 := exp("B", 100, map[string]int64{"A": 100})

	got, err := ledger.ComputeBalances("g1", []*expense.Expense{e1, e2}, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 0, got.PairCount())
}

func TestComputeBalances_SkipsCoveredExpenses(t *testing.T) {
	e1 := exp("A", 300, map[string]int64{"A": 100, "B": 100, "C": 100})
	e2 := exp("B", 150, map[string]int64{"A": 50, "B": 50, "C": 50})

	got, err := ledger.ComputeBalances("g1", []*expense.Expense{e1, e2}, map[uuid.UUID]bool{e1.ID: true})
	require.NoError(t, err)
	assert.Equal(t, ledger.Balances{
		{A: "A", B: "B"}: -50,
		{A: "B", B: "C"}: 50,
	}, got)
}

func TestComputeBalances_Invalid(t *testing.T) {
	tests := []struct {
		name string
		e    *expense.Expense
	}{
		{name: "SharesMismatch", e: exp("A", 300, map[string]int64{"A": 100, "B": 100})},
		{name: "NegativeAmount", e: exp("A", -300, map[string]int64{"A": -300})},
		{name: "OtherGroup", e: &expense.Expense{ID: uuid.New(), GroupID: "g2", PayerID: "A", Amount: 1, Shares: map[string]int64{"A": 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ledger.ComputeBalances("g1", []*expense.Expense{tt.e}, nil)
			assert.ErrorIs(t, err, ledger.ErrInvalidExpense)
		})
	}
}

func TestComputeBalances_Overflow(t *testing.T) {
	e1 := exp("A", math.MaxInt64, map[string]int64{"B": math.MaxInt64})
	e2 := exp("A", math.MaxInt64, map[string]int64{"B": math.MaxInt64})

	_, err := ledger.ComputeBalances("g1", []*expense.Expense{e1, e2}, nil)
	assert.ErrorIs(t, err, ledger.ErrOverflow)
}

func TestComputeBalances_Conservation(t *testing.T) {
	users := []string{"ana", "ben", "cai", "dev", "eli", "fay"}
	rng := rand.New(rand.NewPCG(42, 7))

	for round := range 50 {
		var exps []*expense.Expense

		for range 1 + rng.IntN(30) {
			n := 1 + rng.IntN(len(users))
			perm := rng.Perm(len(users))[:n]

			participants := make([]string, n)
			for i, idx := range perm {
				participants[i] = users[idx]
			}

			amount := int64(1 + rng.IntN(100000))
			payer := users[rng.IntN(len(users))]
			exps = append(exps, exp(payer, amount, expense.EqualShares(amount, participants)))
		}

		balances, err := ledger.ComputeBalances("g1", exps, nil)
		require.NoError(t, err, "round %d", round)

		net, err := balances.NetPositions()
		require.NoError(t, err)

		var sum int64
		for _, v := range net {
			sum += v
		}

		assert.Zero(t, sum, "round %d", round)
	}
}

func TestBalance_Direction(t *testing.T) {
	b := ledger.Balance{UserA: "A", UserB: "B", Amount: 70}
	assert.Equal(t, "B", b.Debtor())
	assert.Equal(t, "A", b.Creditor())
	assert.Equal(t, int64(70), b.Abs())

	b.Amount = -70
	assert.Equal(t, "A", b.Debtor())
	assert.Equal(t, "B", b.Creditor())
	assert.Equal(t, int64(70), b.Abs())
}

func TestBalances_Sorted(t *testing.T) {
	b := ledger.Balances{
		ledger.NewPair("C", "B"): 10,
		ledger.NewPair("A", "C"): -5,
		ledger.NewPair("B", "A"): 1,
	}

	assert.Equal(t, []ledger.Balance{
		{UserA: "A", UserB: "B", Amount: 1},
		{UserA: "A", UserB: "C", Amount: -5},
		{UserA: "B", UserB: "C", Amount: 10},
	}, b.Sorted())
}

func TestComputeBalances_OverflowIgnoresOrder(t *testing.T) {
	big := exp("A", math.MaxInt64, map[string]int64{"B": math.MaxInt64})
	back := exp("B", math.MaxInt64, map[string]int64{"A": math.MaxInt64})
	one := exp("A", 1, map[string]int64{"B": 1})

	orders := [][]*expense.Expense{
		{big, back, one},
		{big, one, back},
		{one, back, big},
	}

	for i, exps := range orders {
		_, err := ledger.ComputeBalances("g1", exps, nil)
		assert.ErrorIs(t, err, ledger.ErrOverflow, "order %d", i)
	}

	for i, exps := range [][]*expense.Expense{{big, back}, {back, big}} {
		got, err := ledger.ComputeBalances("g1", exps, nil)
		require.NoError(t, err, "order %d", i)
		assert.Empty(t, got)
	}
}

func TestCompute_TransfersOffsetDebt(t *testing.T) {
	exps := []*expense.Expense{
		exp("A", 300, map[string]int64{"A": 100, "B": 100, "C": 100}),
		exp("B", 150, map[string]int64{"A": 50, "B": 50, "C": 50}),
	}

	// C paid A the whole simplified debt.
	got, err := ledger.Compute("g1", exps, nil, []ledger.Transfer{{From: "C", To: "A", Amount: 150}})
	require.NoError(t, err)

	net, err := got.NetPositions()
	require.NoError(t, err)
	assert.Empty(t, net)

	// A partial transfer leaves the rest owed.
	got, err = ledger.Compute("g1", exps, nil, []ledger.Transfer{{From: "C", To: "A", Amount: 100}})
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Owes("C", "A"))

	net, err = got.NetPositions()
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"A": 50, "C": -50}, net)
}

func TestCompute_InvalidTransfer(t *testing.T) {
	tests := []struct {
		name string
		tr   ledger.Transfer
	}{
		{name: "MissingFrom", tr: ledger.Transfer{To: "A", Amount: 10}},
		{name: "MissingTo", tr: ledger.Transfer{From: "A", Amount: 10}},
		{name: "Negative", tr: ledger.Transfer{From: "A", To: "B", Amount: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ledger.Compute("g1", nil, nil, []ledger.Transfer{tt.tr})
			assert.ErrorIs(t, err, ledger.ErrInvalidTransfer)
		})
	}
}
