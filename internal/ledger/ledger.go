// Package ledger aggregates a group's expenses into pairwise net balances.
//
// Everything here is pure: no storage, no clocks, integer cents only. The
// result does not depend on the order in which expenses are supplied.
package ledger

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/splitledger/internal/expense"
)

var (
	ErrInvalidExpense  = errors.New("invalid expense")
	ErrInvalidTransfer = errors.New("invalid transfer")
	ErrOverflow        = errors.New("balance overflow")
)

// Pair is an unordered pair of users in canonical form (A < B).
type Pair struct {
	A string
	B string
}

// NewPair orders x and y canonically.
func NewPair(x, y string) Pair {
	if y < x {
		x, y = y, x
	}

	return Pair{A: x, B: y}
}

// Balances maps each pair to a signed amount: positive means B owes A,
// negative means A owes B. Zero balances are never stored.
type Balances map[Pair]int64

// Balance is one row of Balances in a form convenient for callers.
type Balance struct {
	UserA  string
	UserB  string
	Amount int64
}

// Debtor returns who owes money in this balance.
func (b Balance) Debtor() string {
	if b.Amount > 0 {
		return b.UserB
	}

	return b.UserA
}

// Creditor returns who is owed money in this balance.
func (b Balance) Creditor() string {
	if b.Amount > 0 {
		return b.UserA
	}

	return b.UserB
}

// Abs is the amount owed regardless of direction.
func (b Balance) Abs() int64 {
	if b.Amount < 0 {
		return -b.Amount
	}

	return b.Amount
}

// Transfer is money that changed hands outside of any expense, such as a
// completed settlement that names no expenses. It cancels debt From owed To.
type Transfer struct {
	From   string
	To     string
	Amount int64
}

// ComputeBalances folds the group's expenses into pairwise balances.
// Expenses whose id is in covered have already been settled and are skipped.
// Any expense from another group or violating the share invariants fails the
// whole computation.
func ComputeBalances(groupID string, expenses []*expense.Expense, covered map[uuid.UUID]bool) (Balances, error) {
	return Compute(groupID, expenses, covered, nil)
}

// Compute is ComputeBalances with transfers applied as counter-entries: a
// transfer of X from D to C is booked as C owing D X.
//
// Each direction of a pair is summed on its own before netting. The totals
// only grow, so ErrOverflow depends on the inputs and never on their order.
func Compute(groupID string, expenses []*expense.Expense, covered map[uuid.UUID]bool, transfers []Transfer) (Balances, error) {
	gross := make(owed)

	for _, e := range expenses {
		if e.GroupID != groupID {
			return nil, fmt.Errorf("%w: expense %s belongs to group %q, not %q", ErrInvalidExpense, e.ID, e.GroupID, groupID)
		}

		if covered[e.ID] {
			continue
		}

		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("%w: expense %s: %w", ErrInvalidExpense, e.ID, err)
		}

		if isSelfPayment(e) {
			continue
		}

		for debtor, share := range e.Shares {
			if debtor == e.PayerID || share == 0 {
				continue
			}

			if err := gross.add(debtor, e.PayerID, share); err != nil {
				return nil, fmt.Errorf("expense %s: %w", e.ID, err)
			}
		}
	}

	for _, t := range transfers {
		if t.From == "" || t.To == "" || t.Amount < 0 {
			return nil, fmt.Errorf("%w: %s to %s of %d", ErrInvalidTransfer, t.From, t.To, t.Amount)
		}

		if t.From == t.To || t.Amount == 0 {
			continue
		}

		if err := gross.add(t.To, t.From, t.Amount); err != nil {
			return nil, fmt.Errorf("transfer %s to %s: %w", t.From, t.To, err)
		}
	}

	return gross.net(), nil
}

// isSelfPayment reports whether the payer is the only participant with a
// non-zero share, in which case nobody owes anybody.
func isSelfPayment(e *expense.Expense) bool {
	for user, share := range e.Shares {
		if user != e.PayerID && share != 0 {
			return false
		}
	}

	return true
}

type edge struct {
	debtor   string
	creditor string
}

// owed holds non-negative gross totals per direction.
type owed map[edge]int64

func (o owed) add(debtor, creditor string, amount int64) error {
	k := edge{debtor: debtor, creditor: creditor}

	next, err := addChecked(o[k], amount)
	if err != nil {
		return err
	}

	o[k] = next

	return nil
}

// net collapses both directions of every pair. Both totals lie in
// [0, MaxInt64], so their difference cannot overflow.
func (o owed) net() Balances {
	balances := make(Balances)

	for k := range o {
		p := NewPair(k.debtor, k.creditor)
		if _, done := balances[p]; done {
			continue
		}

		// Positive means B owes A.
		amt := o[edge{debtor: p.B, creditor: p.A}] - o[edge{debtor: p.A, creditor: p.B}]
		balances[p] = amt
	}

	for p, amt := range balances {
		if amt == 0 {
			delete(balances, p)
		}
	}

	return balances
}

// Sorted returns the balances ordered by (A, B).
func (b Balances) Sorted() []Balance {
	out := make([]Balance, 0, len(b))
	for p, amt := range b {
		out = append(out, Balance{UserA: p.A, UserB: p.B, Amount: amt})
	}

	slices.SortFunc(out, func(x, y Balance) int {
		if c := strings.Compare(x.UserA, y.UserA); c != 0 {
			return c
		}

		return strings.Compare(x.UserB, y.UserB)
	})

	return out
}

// PairCount is the number of non-zero pairwise debts, i.e. how many payments
// settling pair by pair would take.
func (b Balances) PairCount() int {
	return len(b)
}

// NetPositions returns each user's net total: positive when the user is owed
// money overall, negative when the user owes. The values always sum to zero.
func (b Balances) NetPositions() (map[string]int64, error) {
	credit := make(map[string]int64)
	debit := make(map[string]int64)

	for p, amt := range b {
		creditor, debtor, abs := p.A, p.B, amt
		if amt < 0 {
			creditor, debtor, abs = p.B, p.A, -amt
		}

		var err error

		if credit[creditor], err = addChecked(credit[creditor], abs); err != nil {
			return nil, err
		}

		if debit[debtor], err = addChecked(debit[debtor], abs); err != nil {
			return nil, err
		}
	}

	net := make(map[string]int64)

	for u, c := range credit {
		net[u] = c
	}

	for u, d := range debit {
		net[u] -= d
	}

	for u, v := range net {
		if v == 0 {
			delete(net, u)
		}
	}

	return net, nil
}

// Owes returns how much debtor owes creditor directly (zero if the balance
// runs the other way).
func (b Balances) Owes(debtor, creditor string) int64 {
	p := NewPair(debtor, creditor)
	amt := b[p]

	if p.A == creditor && amt > 0 {
		return amt
	}

	if p.B == creditor && amt < 0 {
		return -amt
	}

	return 0
}

func addChecked(a, b int64) (int64, error) {
	s := a + b
	if (b > 0 && s < a) || (b < 0 && s > a) {
		return 0, ErrOverflow
	}

	return s, nil
}
