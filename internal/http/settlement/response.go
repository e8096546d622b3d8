package settlement

import (
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/splitledger/internal/settlement"
)

type settlementResponse struct {
	ID              uuid.UUID         `json:"id"`
	GroupID         string            `json:"group_id"`
	FromUserID      string            `json:"from_user_id"`
	ToUserID        string            `json:"to_user_id"`
	TotalAmount     int64             `json:"total_amount"`
	RemainingAmount int64             `json:"remaining_amount"`
	Status          settlement.Status `json:"status"`
	ExpenseIDs      []uuid.UUID       `json:"expense_ids"`
	DueDate         *time.Time        `json:"due_date,omitempty"`
	Payments        []paymentResponse `json:"payments"`
	CreatedBy       string            `json:"created_by"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	Version         int64             `json:"version"`
}

type paymentResponse struct {
	ID             uuid.UUID                `json:"id"`
	SettlementID   uuid.UUID                `json:"settlement_id"`
	Amount         int64                    `json:"amount"`
	Method         settlement.Method        `json:"method"`
	Reference      string                   `json:"reference,omitempty"`
	Note           string                   `json:"note,omitempty"`
	Status         settlement.PaymentStatus `json:"status"`
	SubmittedBy    string                   `json:"submitted_by"`
	ResolutionNote string                   `json:"resolution_note,omitempty"`
	CreatedAt      time.Time                `json:"created_at"`
	VerifiedAt     *time.Time               `json:"verified_at,omitempty"`
	RejectedAt     *time.Time               `json:"rejected_at,omitempty"`
	CancelledAt    *time.Time               `json:"cancelled_at,omitempty"`
}

// toResponse reports the effective status, so a settlement past its due
// date reads as overdue.
func toResponse(s *settlement.Settlement, now time.Time) settlementResponse {
	resp := settlementResponse{
		ID:              s.ID,
		GroupID:         s.GroupID,
		FromUserID:      s.FromUserID,
		ToUserID:        s.ToUserID,
		TotalAmount:     s.TotalAmount,
		RemainingAmount: s.RemainingAmount,
		Status:          s.EffectiveStatus(now),
		ExpenseIDs:      s.ExpenseIDs,
		DueDate:         s.DueDate,
		Payments:        make([]paymentResponse, len(s.Payments)),
		CreatedBy:       s.CreatedBy,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
		Version:         s.Version,
	}

	if resp.ExpenseIDs == nil {
		resp.ExpenseIDs = []uuid.UUID{}
	}

	for i, p := range s.Payments {
		resp.Payments[i] = toPaymentResponse(p)
	}

	return resp
}

func toResponseList(list []*settlement.Settlement, now time.Time) []settlementResponse {
	resp := make([]settlementResponse, len(list))
	for i, s := range list {
		resp[i] = toResponse(s, now)
	}

	return resp
}

func toPaymentResponse(p *settlement.Payment) paymentResponse {
	return paymentResponse{
		ID:             p.ID,
		SettlementID:   p.SettlementID,
		Amount:         p.Amount,
		Method:         p.Method,
		Reference:      p.Reference,
		Note:           p.Note,
		Status:         p.Status,
		SubmittedBy:    p.SubmittedBy,
		ResolutionNote: p.ResolutionNote,
		CreatedAt:      p.CreatedAt,
		VerifiedAt:     p.VerifiedAt,
		RejectedAt:     p.RejectedAt,
		CancelledAt:    p.CancelledAt,
	}
}
