package expense

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("expense not found")
	ErrInvalid  = errors.New("invalid expense")
)

// Expense is a shared cost paid by one member and split across participants.
// Shares maps user id to the part of Amount that user consumed; the payer may
// have a share too.
type Expense struct {
	ID          uuid.UUID
	GroupID     string
	PayerID     string
	Amount      int64 // Amount in cents
	Shares      map[string]int64
	Description string
	Date        time.Time
	CreatedAt   time.Time
}

// Validate checks the share invariants: a positive amount, a payer, no
// negative shares, and shares summing to the amount.
func (e *Expense) Validate() error {
	if e.PayerID == "" {
		return fmt.Errorf("%w: missing payer", ErrInvalid)
	}

	if e.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive, got %d", ErrInvalid, e.Amount)
	}

	if len(e.Shares) == 0 {
		return fmt.Errorf("%w: no participants", ErrInvalid)
	}

	var sum int64

	for user, share := range e.Shares {
		if user == "" {
			return fmt.Errorf("%w: empty participant id", ErrInvalid)
		}

		if share < 0 {
			return fmt.Errorf("%w: negative share for %s", ErrInvalid, user)
		}

		if share > e.Amount-sum {
			return fmt.Errorf("%w: shares exceed amount %d", ErrInvalid, e.Amount)
		}

		sum += share
	}

	if sum != e.Amount {
		return fmt.Errorf("%w: shares sum to %d, amount is %d", ErrInvalid, sum, e.Amount)
	}

	return nil
}

// EqualShares splits amount across users, handing leftover cents to the
// first users in the given order.
func EqualShares(amount int64, users []string) map[string]int64 {
	if len(users) == 0 {
		return nil
	}

	n := int64(len(users))
	base, rem := amount/n, amount%n

	shares := make(map[string]int64, len(users))
	for i, u := range users {
		s := base
		if int64(i) < rem {
			s++
		}

		shares[u] += s
	}

	return shares
}
