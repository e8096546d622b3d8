package settlement

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount          = errors.New("amount must be positive")
	ErrAmountExceedsRemaining = errors.New("amount exceeds remaining balance")
	ErrInvalidParties         = errors.New("settlement needs two distinct parties")
	ErrInvalidMethod          = errors.New("unknown payment method")
	ErrNotGroupMember         = errors.New("user is not a member of the group")
	ErrSettlementTerminal     = errors.New("settlement is already completed")
	ErrSettlementNotFound     = errors.New("settlement not found")
	ErrPaymentNotFound        = errors.New("payment not found")
	ErrUnauthorized           = errors.New("user is not allowed to perform this action")
	ErrAlreadyResolved        = errors.New("payment is already resolved")
	ErrMissingReason          = errors.New("a reason is required")
	ErrConflict               = errors.New("concurrent update, retry later")
	ErrPersistence            = errors.New("persistence failure")
)

// Returned by Repository implementations when a compare-and-swap loses.
var (
	ErrStaleVersion = errors.New("settlement version changed")
	ErrStaleStatus  = errors.New("payment status changed")
)

var domainErrors = []error{
	ErrInvalidAmount,
	ErrAmountExceedsRemaining,
	ErrInvalidParties,
	ErrInvalidMethod,
	ErrNotGroupMember,
	ErrSettlementTerminal,
	ErrSettlementNotFound,
	ErrPaymentNotFound,
	ErrUnauthorized,
	ErrAlreadyResolved,
	ErrMissingReason,
	ErrConflict,
	ErrPersistence,
	ErrStaleVersion,
	ErrStaleStatus,
}

// Classify leaves domain errors alone and wraps anything else as ErrPersistence.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}

	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return err
		}
	}

	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}
