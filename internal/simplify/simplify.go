// Package simplify turns pairwise balances into a short list of suggested
// payments.
//
// The algorithm is the usual greedy heuristic: match the largest debtor with
// the largest creditor, transfer the smaller of the two amounts, repeat. It
// does not guarantee the minimum number of payments (that problem is NP-hard)
// and callers must not present it as optimal. It does guarantee that every
// net position is settled exactly and that it never suggests more payments
// than settling each pairwise debt directly would.
package simplify

import (
	"container/heap"
	"errors"
	"fmt"
	"slices"

	"github.com/MrJamesThe3rd/splitledger/internal/ledger"
)

var ErrNotConserved = errors.New("suggestions do not settle net positions")

// Suggestion is a proposed payment; it carries no state and is not persisted.
type Suggestion struct {
	From   string
	To     string
	Amount int64
}

type Plan struct {
	Suggestions []Suggestion
	// PairwiseCount is how many payments settling each pair directly would take.
	PairwiseCount int
	// Reduction is the integer percentage of payments saved against PairwiseCount.
	Reduction int
}

// Simplify builds a plan for the given balances. Users that owe each other
// nothing, directly or transitively, are settled independently, which keeps
// the suggestion count within PairwiseCount.
func Simplify(b ledger.Balances) (Plan, error) {
	net, err := b.NetPositions()
	if err != nil {
		return Plan{}, err
	}

	var suggestions []Suggestion

	for _, component := range components(b) {
		part := make(map[string]int64, len(component))
		for _, u := range component {
			if v := net[u]; v != 0 {
				part[u] = v
			}
		}

		suggestions = append(suggestions, greedy(part)...)
	}

	if err := Verify(net, suggestions); err != nil {
		return Plan{}, err
	}

	plan := Plan{
		Suggestions:   suggestions,
		PairwiseCount: b.PairCount(),
	}

	if plan.PairwiseCount > 0 {
		plan.Reduction = (plan.PairwiseCount - len(suggestions)) * 100 / plan.PairwiseCount
	}

	return plan, nil
}

// SimplifyNet runs the greedy pass directly over net positions, which must
// sum to zero.
func SimplifyNet(net map[string]int64) ([]Suggestion, error) {
	var total int64
	for _, v := range net {
		total += v
	}

	if total != 0 {
		return nil, fmt.Errorf("%w: positions sum to %d", ErrNotConserved, total)
	}

	suggestions := greedy(net)
	if err := Verify(net, suggestions); err != nil {
		return nil, err
	}

	return suggestions, nil
}

// Verify applies the suggestions to the net positions and checks that every
// position ends at exactly zero.
func Verify(net map[string]int64, suggestions []Suggestion) error {
	remaining := make(map[string]int64, len(net))
	for u, v := range net {
		remaining[u] = v
	}

	for _, s := range suggestions {
		if s.Amount <= 0 || s.From == s.To {
			return fmt.Errorf("%w: bad suggestion %+v", ErrNotConserved, s)
		}

		remaining[s.From] += s.Amount
		remaining[s.To] -= s.Amount
	}

	for u, v := range remaining {
		if v != 0 {
			return fmt.Errorf("%w: %s left at %d", ErrNotConserved, u, v)
		}
	}

	return nil
}

func greedy(net map[string]int64) []Suggestion {
	debtors := &party{}
	creditors := &party{}

	for u, v := range net {
		switch {
		case v > 0:
			*creditors = append(*creditors, position{user: u, amount: v})
		case v < 0:
			*debtors = append(*debtors, position{user: u, amount: -v})
		}
	}

	heap.Init(debtors)
	heap.Init(creditors)

	var out []Suggestion

	for debtors.Len() > 0 && creditors.Len() > 0 {
		d := heap.Pop(debtors).(position)
		c := heap.Pop(creditors).(position)

		amt := min(d.amount, c.amount)
		out = append(out, Suggestion{From: d.user, To: c.user, Amount: amt})

		if d.amount -= amt; d.amount > 0 {
			heap.Push(debtors, d)
		}

		if c.amount -= amt; c.amount > 0 {
			heap.Push(creditors, c)
		}
	}

	return out
}

// components groups users connected by a non-zero balance. Each component is
// sorted, and components are ordered by their first user.
func components(b ledger.Balances) [][]string {
	parent := make(map[string]string)

	var find func(string) string
	find = func(u string) string {
		p, ok := parent[u]
		if !ok {
			parent[u] = u
			return u
		}

		if p == u {
			return u
		}

		root := find(p)
		parent[u] = root

		return root
	}

	for p := range b {
		ra, rb := find(p.A), find(p.B)
		if ra == rb {
			continue
		}

		if rb < ra {
			ra, rb = rb, ra
		}

		parent[rb] = ra
	}

	byRoot := make(map[string][]string)
	for u := range parent {
		r := find(u)
		byRoot[r] = append(byRoot[r], u)
	}

	out := make([][]string, 0, len(byRoot))
	for _, members := range byRoot {
		slices.Sort(members)
		out = append(out, members)
	}

	slices.SortFunc(out, func(x, y []string) int {
		switch {
		case x[0] < y[0]:
			return -1
		case x[0] > y[0]:
			return 1
		}

		return 0
	})

	return out
}

type position struct {
	user   string
	amount int64
}

// party is a max-heap by amount; equal amounts pop in ascending user order.
type party []position

func (p party) Len() int { return len(p) }

func (p party) Less(i, j int) bool {
	if p[i].amount != p[j].amount {
		return p[i].amount > p[j].amount
	}

	return p[i].user < p[j].user
}

func (p party) Swap(i, j int) { p[i], p[j] = p[j], p[i] }

func (p *party) Push(x any) { *p = append(*p, x.(position)) }

func (p *party) Pop() any {
	old := *p
	n := len(old)
	x := old[n-1]
	*p = old[:n-1]

	return x
}
