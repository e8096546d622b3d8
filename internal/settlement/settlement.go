package settlement

import (
	"time"

	"github.com/google/uuid"
)

// Status is the stored lifecycle state of a settlement.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPartial   Status = "partial"
	StatusCompleted Status = "completed"
	// StatusOverdue is never stored; see Settlement.EffectiveStatus.
	StatusOverdue Status = "overdue"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPartial, StatusCompleted:
		return true
	case StatusOverdue:
		return false
	}

	return false
}

// PaymentStatus is the state of a single payment claim. Only pending
// payments can change.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentVerified  PaymentStatus = "verified"
	PaymentDisputed  PaymentStatus = "disputed"
	PaymentCancelled PaymentStatus = "cancelled"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentVerified, PaymentDisputed, PaymentCancelled:
		return true
	}

	return false
}

// Resolved reports whether the payment has left pending for good.
func (s PaymentStatus) Resolved() bool {
	switch s {
	case PaymentVerified, PaymentDisputed, PaymentCancelled:
		return true
	case PaymentPending:
		return false
	}

	return false
}

type Method string

const (
	MethodCash         Method = "cash"
	MethodUPI          Method = "upi"
	MethodBankTransfer Method = "bank_transfer"
	MethodCard         Method = "card"
	MethodWallet       Method = "wallet"
	MethodOther        Method = "other"
)

func (m Method) Valid() bool {
	switch m {
	case MethodCash, MethodUPI, MethodBankTransfer, MethodCard, MethodWallet, MethodOther:
		return true
	}

	return false
}

// Settlement is an agreed debt from FromUserID (debtor) to ToUserID
// (creditor), paid off through verified payments.
type Settlement struct {
	ID              uuid.UUID
	GroupID         string
	FromUserID      string
	ToUserID        string
	TotalAmount     int64 // Amount in cents, immutable
	RemainingAmount int64
	Status          Status
	ExpenseIDs      []uuid.UUID
	DueDate         *time.Time
	Payments        []*Payment // Oldest first
	CreatedBy       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Version         int64
}

// Payment is a claim that money moved towards a settlement.
type Payment struct {
	ID             uuid.UUID
	SettlementID   uuid.UUID
	Amount         int64
	Method         Method
	Reference      string
	Note           string
	Status         PaymentStatus
	SubmittedBy    string
	ResolutionNote string
	CreatedAt      time.Time
	VerifiedAt     *time.Time
	RejectedAt     *time.Time
	CancelledAt    *time.Time
}

type AuditAction string

const AuditForceSettled AuditAction = "force_settled"

// AuditEntry records an administrative override.
type AuditEntry struct {
	ID           uuid.UUID
	SettlementID uuid.UUID
	Action       AuditAction
	Actor        string
	Detail       string
	CreatedAt    time.Time
}

// EffectiveStatus is Status, except that an open settlement past its due
// date reads as overdue.
func (s *Settlement) EffectiveStatus(now time.Time) Status {
	if s.Status != StatusCompleted && s.DueDate != nil && now.After(*s.DueDate) {
		return StatusOverdue
	}

	return s.Status
}

// VerifiedTotal sums the verified payments.
func (s *Settlement) VerifiedTotal() int64 {
	var total int64

	for _, p := range s.Payments {
		if p.Status == PaymentVerified {
			total += p.Amount
		}
	}

	return total
}

// PendingPayments returns the payments still awaiting the creditor.
func (s *Settlement) PendingPayments() []*Payment {
	var out []*Payment

	for _, p := range s.Payments {
		if p.Status == PaymentPending {
			out = append(out, p)
		}
	}

	return out
}

// RecomputeStatus derives the stored status from the amounts.
func RecomputeStatus(total, remaining int64) Status {
	switch {
	case remaining <= 0:
		return StatusCompleted
	case remaining < total:
		return StatusPartial
	default:
		return StatusPending
	}
}
