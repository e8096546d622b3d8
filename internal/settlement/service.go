package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/splitledger/internal/group"
	"github.com/MrJamesThe3rd/splitledger/internal/metrics"
	"github.com/MrJamesThe3rd/splitledger/internal/notify"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=settlement
type Repository interface {
	CreateSettlement(ctx context.Context, s *Settlement) error
	// GetSettlement returns the settlement with its payments.
	GetSettlement(ctx context.Context, id uuid.UUID) (*Settlement, error)
	ListSettlements(ctx context.Context, filter ListFilter) ([]*Settlement, error)
	// CoveredExpenseIDs returns the expenses referenced by completed settlements of the group.
	CoveredExpenseIDs(ctx context.Context, groupID string) (map[uuid.UUID]bool, error)

	// CreatePayment inserts p and bumps the settlement version, failing with
	// ErrStaleVersion when the version is no longer expectedVersion.
	CreatePayment(ctx context.Context, p *Payment, expectedVersion int64) error
	GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error)
	// ApplyTransition writes every part of t in one transaction or nothing.
	ApplyTransition(ctx context.Context, t Transition) error
}

// Transition is one atomic state change. Each non-nil part is a
// compare-and-swap: Payment on its current status (ErrStaleStatus),
// Settlement on its version (ErrStaleVersion).
type Transition struct {
	Payment    *PaymentChange
	Settlement *SettlementChange
	Audit      *AuditEntry
}

type PaymentChange struct {
	ID   uuid.UUID
	From PaymentStatus
	To   PaymentStatus
	Note string
	At   time.Time
}

type SettlementChange struct {
	ID              uuid.UUID
	ExpectedVersion int64
	Remaining       int64
	Status          Status
	At              time.Time
}

// Notifier receives events fire-and-forget.
type Notifier interface {
	Notify(ctx context.Context, e notify.Event)
}

// BalanceInvalidator drops cached balances once a settlement completes.
type BalanceInvalidator interface {
	Invalidate(ctx context.Context, groupID string)
}

// MembershipChecker is satisfied by *group.Service.
type MembershipChecker interface {
	IsMember(ctx context.Context, groupID string, userIDs ...string) (bool, error)
}

type ListFilter struct {
	GroupID   string
	UserID    string // Either party
	Statuses  []Status
	DueBefore *time.Time
}

// Service tracks settlements from creation to completion. Moving a payment
// out of pending through confirm or reject belongs to the confirmation
// gateway; this service only records claims, lets submitters withdraw them
// and handles administrative overrides.
type Service struct {
	repo       Repository
	members    MembershipChecker
	notifier   Notifier
	balances   BalanceInvalidator
	maxRetries int
}

func NewService(repo Repository, members MembershipChecker, notifier Notifier, balances BalanceInvalidator, maxRetries int) *Service {
	return &Service{
		repo:       repo,
		members:    members,
		notifier:   notifier,
		balances:   balances,
		maxRetries: maxRetries,
	}
}

type CreateParams struct {
	GroupID    string
	FromUserID string
	ToUserID   string
	Amount     int64
	ExpenseIDs []uuid.UUID
	DueDate    *time.Time
	CreatedBy  string
}

func (s *Service) Create(ctx context.Context, params CreateParams) (*Settlement, error) {
	if params.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	if params.GroupID == "" || params.FromUserID == "" || params.ToUserID == "" || params.FromUserID == params.ToUserID {
		return nil, ErrInvalidParties
	}

	if s.members != nil {
		ok, err := s.members.IsMember(ctx, params.GroupID, params.FromUserID, params.ToUserID)
		if errors.Is(err, group.ErrNotFound) {
			return nil, fmt.Errorf("%w: group %s does not exist", ErrNotGroupMember, params.GroupID)
		}

		if err != nil {
			return nil, Classify("checking membership", err)
		}

		if !ok {
			return nil, ErrNotGroupMember
		}
	}

	now := time.Now().UTC()

	st := &Settlement{
		ID:              uuid.New(),
		GroupID:         params.GroupID,
		FromUserID:      params.FromUserID,
		ToUserID:        params.ToUserID,
		TotalAmount:     params.Amount,
		RemainingAmount: params.Amount,
		Status:          StatusPending,
		ExpenseIDs:      dedupe(params.ExpenseIDs),
		CreatedBy:       params.CreatedBy,
		CreatedAt:       now,
		UpdatedAt:       now,
		Version:         1,
	}

	if params.DueDate != nil {
		st.DueDate = new(params.DueDate.UTC())
	}

	if err := s.repo.CreateSettlement(ctx, st); err != nil {
		return nil, Classify("creating settlement", err)
	}

	metrics.SettlementsCreated.Inc()
	s.notify(ctx, notify.Event{
		Type:         notify.EventSettlementCreated,
		GroupID:      st.GroupID,
		SettlementID: st.ID,
		Actor:        params.CreatedBy,
		Recipients:   []string{st.FromUserID, st.ToUserID},
		Amount:       st.TotalAmount,
		Remaining:    st.RemainingAmount,
		Status:       string(st.Status),
	})

	return st, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Settlement, error) {
	st, err := s.repo.GetSettlement(ctx, id)
	if err != nil {
		return nil, Classify("getting settlement", err)
	}

	return st, nil
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Settlement, error) {
	list, err := s.repo.ListSettlements(ctx, filter)
	if err != nil {
		return nil, Classify("listing settlements", err)
	}

	return list, nil
}

func (s *Service) GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error) {
	p, err := s.repo.GetPayment(ctx, id)
	if err != nil {
		return nil, Classify("getting payment", err)
	}

	return p, nil
}

// CoveredExpenseIDs lists the expenses already paid off by completed settlements.
func (s *Service) CoveredExpenseIDs(ctx context.Context, groupID string) (map[uuid.UUID]bool, error) {
	ids, err := s.repo.CoveredExpenseIDs(ctx, groupID)
	if err != nil {
		return nil, Classify("listing covered expenses", err)
	}

	return ids, nil
}

type ClaimParams struct {
	SettlementID uuid.UUID
	Amount       int64
	Method       Method
	Reference    string
	Note         string
	SubmittedBy  string
}

// RecordPaymentClaim registers that the debtor says they paid. The remaining
// amount only changes once the creditor confirms.
func (s *Service) RecordPaymentClaim(ctx context.Context, params ClaimParams) (*Payment, error) {
	if params.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	if params.Method == "" {
		params.Method = MethodOther
	}

	if !params.Method.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMethod, params.Method)
	}

	var (
		p  *Payment
		st *Settlement
	)

	err := RetryOnConflict(ctx, s.maxRetries, func() error {
		var err error

		st, err = s.repo.GetSettlement(ctx, params.SettlementID)
		if err != nil {
			return err
		}

		if st.Status == StatusCompleted {
			return ErrSettlementTerminal
		}

		if params.SubmittedBy != st.FromUserID {
			return ErrUnauthorized
		}

		if params.Amount > st.RemainingAmount {
			return fmt.Errorf("%w: %d > %d", ErrAmountExceedsRemaining, params.Amount, st.RemainingAmount)
		}

		p = &Payment{
			ID:           uuid.New(),
			SettlementID: st.ID,
			Amount:       params.Amount,
			Method:       params.Method,
			Reference:    strings.TrimSpace(params.Reference),
			Note:         strings.TrimSpace(params.Note),
			Status:       PaymentPending,
			SubmittedBy:  params.SubmittedBy,
			CreatedAt:    time.Now().UTC(),
		}

		return s.repo.CreatePayment(ctx, p, st.Version)
	})
	if err != nil {
		return nil, Classify("recording payment claim", err)
	}

	metrics.PaymentTransitions.WithLabelValues(string(PaymentPending)).Inc()
	s.notify(ctx, notify.Event{
		Type:         notify.EventPaymentClaimed,
		GroupID:      st.GroupID,
		SettlementID: st.ID,
		PaymentID:    &p.ID,
		Actor:        p.SubmittedBy,
		Recipients:   []string{st.ToUserID},
		Amount:       p.Amount,
		Remaining:    st.RemainingAmount,
		Status:       string(p.Status),
	})

	return p, nil
}

// CancelPaymentClaim lets the submitter withdraw a pending claim. Cancelling
// an already cancelled claim returns it unchanged.
func (s *Service) CancelPaymentClaim(ctx context.Context, paymentID uuid.UUID, byUser string) (*Payment, error) {
	p, err := s.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, Classify("cancelling payment claim", err)
	}

	if byUser == "" || p.SubmittedBy != byUser {
		return nil, ErrUnauthorized
	}

	switch p.Status {
	case PaymentCancelled:
		return p, nil
	case PaymentVerified, PaymentDisputed:
		return nil, ErrAlreadyResolved
	case PaymentPending:
	}

	now := time.Now().UTC()

	err = s.repo.ApplyTransition(ctx, Transition{
		Payment: &PaymentChange{ID: p.ID, From: PaymentPending, To: PaymentCancelled, At: now},
	})
	if errors.Is(err, ErrStaleStatus) {
		return s.settledRace(ctx, p.ID, PaymentCancelled)
	}

	if err != nil {
		return nil, Classify("cancelling payment claim", err)
	}

	p.Status = PaymentCancelled
	p.CancelledAt = &now

	metrics.PaymentTransitions.WithLabelValues(string(PaymentCancelled)).Inc()

	if st, err := s.repo.GetSettlement(ctx, p.SettlementID); err == nil {
		s.notify(ctx, notify.Event{
			Type:         notify.EventPaymentCancelled,
			GroupID:      st.GroupID,
			SettlementID: st.ID,
			PaymentID:    &p.ID,
			Actor:        byUser,
			Recipients:   []string{st.ToUserID},
			Amount:       p.Amount,
			Remaining:    st.RemainingAmount,
			Status:       string(p.Status),
		})
	}

	return p, nil
}

// settledRace resolves a lost compare-and-swap: if the payment ended in the
// state we wanted it is returned, otherwise the caller lost to another
// transition.
func (s *Service) settledRace(ctx context.Context, paymentID uuid.UUID, want PaymentStatus) (*Payment, error) {
	cur, err := s.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, Classify("reloading payment", err)
	}

	if cur.Status == want {
		return cur, nil
	}

	return nil, ErrAlreadyResolved
}

// ForceMarkSettled writes off whatever is left and completes the settlement.
// Pending claims stay pending; the override is audited and logged.
func (s *Service) ForceMarkSettled(ctx context.Context, settlementID uuid.UUID, actor string) (*Settlement, error) {
	if actor == "" {
		return nil, ErrUnauthorized
	}

	var writtenOff int64

	err := RetryOnConflict(ctx, s.maxRetries, func() error {
		st, err := s.repo.GetSettlement(ctx, settlementID)
		if err != nil {
			return err
		}

		if st.Status == StatusCompleted {
			return ErrSettlementTerminal
		}

		now := time.Now().UTC()
		writtenOff = st.RemainingAmount

		return s.repo.ApplyTransition(ctx, Transition{
			Settlement: &SettlementChange{
				ID:              st.ID,
				ExpectedVersion: st.Version,
				Remaining:       0,
				Status:          StatusCompleted,
				At:              now,
			},
			Audit: &AuditEntry{
				ID:           uuid.New(),
				SettlementID: st.ID,
				Action:       AuditForceSettled,
				Actor:        actor,
				Detail:       fmt.Sprintf("wrote off %d of %d", st.RemainingAmount, st.TotalAmount),
				CreatedAt:    now,
			},
		})
	})
	if err != nil {
		return nil, Classify("force settling", err)
	}

	st, err := s.repo.GetSettlement(ctx, settlementID)
	if err != nil {
		return nil, Classify("reloading settlement", err)
	}

	slog.Warn("settlement force-marked as settled",
		"settlement_id", st.ID,
		"group_id", st.GroupID,
		"actor", actor,
		"written_off", writtenOff,
	)

	metrics.SettlementsCompleted.WithLabelValues("forced").Inc()

	if s.balances != nil {
		s.balances.Invalidate(ctx, st.GroupID)
	}

	s.notify(ctx, notify.Event{
		Type:         notify.EventForceSettled,
		GroupID:      st.GroupID,
		SettlementID: st.ID,
		Actor:        actor,
		Recipients:   []string{st.FromUserID, st.ToUserID},
		Amount:       writtenOff,
		Remaining:    st.RemainingAmount,
		Status:       string(st.Status),
	})

	return st, nil
}

// NotifyOverdue publishes an event for every open settlement past its due
// date and returns how many were found. It never changes state.
func (s *Service) NotifyOverdue(ctx context.Context, now time.Time) (int, error) {
	open, err := s.repo.ListSettlements(ctx, ListFilter{
		Statuses:  []Status{StatusPending, StatusPartial},
		DueBefore: &now,
	})
	if err != nil {
		return 0, Classify("listing overdue settlements", err)
	}

	var n int

	for _, st := range open {
		if st.EffectiveStatus(now) != StatusOverdue {
			continue
		}

		n++

		s.notify(ctx, notify.Event{
			Type:         notify.EventSettlementOverdue,
			GroupID:      st.GroupID,
			SettlementID: st.ID,
			Recipients:   []string{st.FromUserID},
			Amount:       st.TotalAmount,
			Remaining:    st.RemainingAmount,
			Status:       string(StatusOverdue),
		})
	}

	return n, nil
}

func (s *Service) notify(ctx context.Context, e notify.Event) {
	if s.notifier == nil {
		return
	}

	s.notifier.Notify(ctx, e)
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	if len(ids) == 0 {
		return nil
	}

	out := slices.Clone(ids)
	slices.SortFunc(out, func(a, b uuid.UUID) int { return strings.Compare(a.String(), b.String()) })

	return slices.Compact(out)
}
