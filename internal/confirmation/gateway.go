// Package confirmation is the only place a payment claim becomes a verified,
// balance-affecting payment.
package confirmation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/splitledger/internal/metrics"
	"github.com/MrJamesThe3rd/splitledger/internal/notify"
	"github.com/MrJamesThe3rd/splitledger/internal/settlement"
)

type Gateway struct {
	repo       settlement.Repository
	notifier   settlement.Notifier
	balances   settlement.BalanceInvalidator
	maxRetries int
}

func NewGateway(repo settlement.Repository, notifier settlement.Notifier, balances settlement.BalanceInvalidator, maxRetries int) *Gateway {
	return &Gateway{
		repo:       repo,
		notifier:   notifier,
		balances:   balances,
		maxRetries: maxRetries,
	}
}

// Confirm lets the creditor accept a pending claim. The payment is verified
// and the settlement's remaining amount reduced in a single transaction.
// Confirming an already verified payment returns the settlement unchanged.
func (g *Gateway) Confirm(ctx context.Context, paymentID uuid.UUID, byUser, message string) (*settlement.Settlement, error) {
	var (
		result  *settlement.Settlement
		amount  int64
		applied bool
	)

	err := settlement.RetryOnConflict(ctx, g.maxRetries, func() error {
		p, st, err := g.load(ctx, paymentID)
		if err != nil {
			return err
		}

		if byUser == "" || byUser != st.ToUserID {
			return settlement.ErrUnauthorized
		}

		switch p.Status {
		case settlement.PaymentVerified:
			result = st
			return nil
		case settlement.PaymentDisputed, settlement.PaymentCancelled:
			return settlement.ErrAlreadyResolved
		case settlement.PaymentPending:
		}

		if st.Status == settlement.StatusCompleted {
			return settlement.ErrSettlementTerminal
		}

		if p.Amount > st.RemainingAmount {
			return fmt.Errorf("%w: %d > %d", settlement.ErrAmountExceedsRemaining, p.Amount, st.RemainingAmount)
		}

		now := time.Now().UTC()
		remaining := st.RemainingAmount - p.Amount
		status := settlement.RecomputeStatus(st.TotalAmount, remaining)
		note := strings.TrimSpace(message)

		err = g.repo.ApplyTransition(ctx, settlement.Transition{
			Payment: &settlement.PaymentChange{
				ID:   p.ID,
				From: settlement.PaymentPending,
				To:   settlement.PaymentVerified,
				Note: note,
				At:   now,
			},
			Settlement: &settlement.SettlementChange{
				ID:              st.ID,
				ExpectedVersion: st.Version,
				Remaining:       remaining,
				Status:          status,
				At:              now,
			},
		})
		if err != nil {
			return staleAsRetry(err)
		}

		result = withPayment(st, p.ID, func(cp *settlement.Payment) {
			cp.Status = settlement.PaymentVerified
			cp.ResolutionNote = note
			cp.VerifiedAt = &now
		})
		result.RemainingAmount = remaining
		result.Status = status
		result.UpdatedAt = now
		result.Version = st.Version + 1
		amount = p.Amount
		applied = true

		return nil
	})
	if err != nil {
		return nil, settlement.Classify("confirming payment", err)
	}

	if !applied {
		return result, nil
	}

	g.afterConfirm(ctx, result, paymentID, amount, byUser)

	return result, nil
}

func (g *Gateway) afterConfirm(ctx context.Context, st *settlement.Settlement, paymentID uuid.UUID, amount int64, byUser string) {
	metrics.PaymentTransitions.WithLabelValues(string(settlement.PaymentVerified)).Inc()

	g.notify(ctx, notify.Event{
		Type:         notify.EventPaymentConfirmed,
		GroupID:      st.GroupID,
		SettlementID: st.ID,
		PaymentID:    &paymentID,
		Actor:        byUser,
		Recipients:   []string{st.FromUserID},
		Amount:       amount,
		Remaining:    st.RemainingAmount,
		Status:       string(st.Status),
	})

	if st.Status != settlement.StatusCompleted {
		return
	}

	slog.Info("settlement completed", "settlement_id", st.ID, "group_id", st.GroupID)
	metrics.SettlementsCompleted.WithLabelValues("payments").Inc()

	if g.balances != nil {
		g.balances.Invalidate(ctx, st.GroupID)
	}

	g.notify(ctx, notify.Event{
		Type:         notify.EventSettlementCompleted,
		GroupID:      st.GroupID,
		SettlementID: st.ID,
		Actor:        byUser,
		Recipients:   []string{st.FromUserID, st.ToUserID},
		Amount:       st.TotalAmount,
		Status:       string(st.Status),
	})
}

// Reject lets the creditor dispute a pending claim. The settlement is never
// touched. Rejecting an already disputed payment returns the settlement
// unchanged.
func (g *Gateway) Reject(ctx context.Context, paymentID uuid.UUID, byUser, reason string) (*settlement.Settlement, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, settlement.ErrMissingReason
	}

	var (
		result  *settlement.Settlement
		applied bool
	)

	err := settlement.RetryOnConflict(ctx, g.maxRetries, func() error {
		p, st, err := g.load(ctx, paymentID)
		if err != nil {
			return err
		}

		if byUser == "" || byUser != st.ToUserID {
			return settlement.ErrUnauthorized
		}

		switch p.Status {
		case settlement.PaymentDisputed:
			result = st
			return nil
		case settlement.PaymentVerified, settlement.PaymentCancelled:
			return settlement.ErrAlreadyResolved
		case settlement.PaymentPending:
		}

		now := time.Now().UTC()

		err = g.repo.ApplyTransition(ctx, settlement.Transition{
			Payment: &settlement.PaymentChange{
				ID:   p.ID,
				From: settlement.PaymentPending,
				To:   settlement.PaymentDisputed,
				Note: reason,
				At:   now,
			},
		})
		if err != nil {
			return staleAsRetry(err)
		}

		result = withPayment(st, p.ID, func(cp *settlement.Payment) {
			cp.Status = settlement.PaymentDisputed
			cp.ResolutionNote = reason
			cp.RejectedAt = &now
		})
		applied = true

		return nil
	})
	if err != nil {
		return nil, settlement.Classify("rejecting payment", err)
	}

	if applied {
		metrics.PaymentTransitions.WithLabelValues(string(settlement.PaymentDisputed)).Inc()
		g.notify(ctx, notify.Event{
			Type:         notify.EventPaymentRejected,
			GroupID:      result.GroupID,
			SettlementID: result.ID,
			PaymentID:    &paymentID,
			Actor:        byUser,
			Recipients:   []string{result.FromUserID},
			Remaining:    result.RemainingAmount,
			Status:       string(settlement.PaymentDisputed),
			Reason:       reason,
		})
	}

	return result, nil
}

func (g *Gateway) load(ctx context.Context, paymentID uuid.UUID) (*settlement.Payment, *settlement.Settlement, error) {
	p, err := g.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, nil, err
	}

	st, err := g.repo.GetSettlement(ctx, p.SettlementID)
	if err != nil {
		return nil, nil, err
	}

	return p, st, nil
}

// staleAsRetry turns a lost payment status swap into a retry so the next
// attempt re-reads the payment and reports what it became.
func staleAsRetry(err error) error {
	if errors.Is(err, settlement.ErrStaleStatus) {
		return settlement.ErrStaleVersion
	}

	return err
}

// withPayment returns a copy of st with fn applied to a copy of the payment.
func withPayment(st *settlement.Settlement, paymentID uuid.UUID, fn func(*settlement.Payment)) *settlement.Settlement {
	out := *st
	out.Payments = make([]*settlement.Payment, len(st.Payments))

	for i, p := range st.Payments {
		cp := *p
		if cp.ID == paymentID {
			fn(&cp)
		}

		out.Payments[i] = &cp
	}

	return &out
}

func (g *Gateway) notify(ctx context.Context, e notify.Event) {
	if g.notifier == nil {
		return
	}

	g.notifier.Notify(ctx, e)
}
