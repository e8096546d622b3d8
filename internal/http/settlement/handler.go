package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/splitledger/internal/auth"
	"github.com/MrJamesThe3rd/splitledger/internal/http/respond"
	"github.com/MrJamesThe3rd/splitledger/internal/settlement"
)

type Service interface {
	Create(ctx context.Context, params settlement.CreateParams) (*settlement.Settlement, error)
	Get(ctx context.Context, id uuid.UUID) (*settlement.Settlement, error)
	List(ctx context.Context, filter settlement.ListFilter) ([]*settlement.Settlement, error)
	GetPayment(ctx context.Context, id uuid.UUID) (*settlement.Payment, error)
	RecordPaymentClaim(ctx context.Context, params settlement.ClaimParams) (*settlement.Payment, error)
	CancelPaymentClaim(ctx context.Context, paymentID uuid.UUID, byUser string) (*settlement.Payment, error)
	ForceMarkSettled(ctx context.Context, settlementID uuid.UUID, actor string) (*settlement.Settlement, error)
}

type Gateway interface {
	Confirm(ctx context.Context, paymentID uuid.UUID, byUser, message string) (*settlement.Settlement, error)
	Reject(ctx context.Context, paymentID uuid.UUID, byUser, reason string) (*settlement.Settlement, error)
}

type Handler struct {
	svc     Service
	gateway Gateway
	members auth.MembershipChecker
	now     func() time.Time
}

func NewHandler(svc Service, gateway Gateway, members auth.MembershipChecker) *Handler {
	return &Handler{svc: svc, gateway: gateway, members: members, now: time.Now}
}

// Routes mounts the /settlements endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Post("/{id}/payments", h.claim)
	r.Post("/{id}/force-settle", h.forceSettle)
}

// PaymentRoutes mounts the /payments endpoints.
func (h *Handler) PaymentRoutes(r chi.Router) {
	r.Get("/{id}", h.getPayment)
	r.Post("/{id}/confirm", h.confirm)
	r.Post("/{id}/reject", h.reject)
	r.Post("/{id}/cancel", h.cancel)
}

// GroupRoutes mounts the settlement listing under /groups/{groupID}.
func (h *Handler) GroupRoutes(r chi.Router) {
	r.Get("/settlements", h.list)
}

type createRequest struct {
	GroupID    string      `json:"group_id"`
	FromUserID string      `json:"from_user_id"`
	ToUserID   string      `json:"to_user_id"`
	Amount     int64       `json:"amount"`
	ExpenseIDs []uuid.UUID `json:"expense_ids"`
	DueDate    *time.Time  `json:"due_date,omitempty"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.BadRequest(w, "invalid request body: "+err.Error())
		return
	}

	if err := auth.CheckGroupAccess(r.Context(), h.members, req.GroupID); err != nil {
		respond.Error(w, r, err)
		return
	}

	st, err := h.svc.Create(r.Context(), settlement.CreateParams{
		GroupID:    req.GroupID,
		FromUserID: req.FromUserID,
		ToUserID:   req.ToUserID,
		Amount:     req.Amount,
		ExpenseIDs: req.ExpenseIDs,
		DueDate:    req.DueDate,
		CreatedBy:  auth.GetUserID(r.Context()),
	})
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusCreated, toResponse(st, h.now()))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	st, err := h.svc.Get(r.Context(), id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	if err := auth.CheckGroupAccess(r.Context(), h.members, st.GroupID); err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponse(st, h.now()))
}

// list accepts repeated status parameters; "overdue" selects open
// settlements past their due date.
func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	filter := settlement.ListFilter{
		GroupID: chi.URLParam(r, "groupID"),
		UserID:  r.URL.Query().Get("user"),
	}

	for _, s := range r.URL.Query()["status"] {
		status := settlement.Status(s)

		switch {
		case status == settlement.StatusOverdue:
			filter.DueBefore = new(now)
			filter.Statuses = append(filter.Statuses, settlement.StatusPending, settlement.StatusPartial)
		case status.Valid():
			filter.Statuses = append(filter.Statuses, status)
		default:
			respond.BadRequest(w, "unknown status "+s)
			return
		}
	}

	list, err := h.svc.List(r.Context(), filter)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponseList(list, now))
}

type claimRequest struct {
	Amount    int64             `json:"amount"`
	Method    settlement.Method `json:"method"`
	Reference string            `json:"reference"`
	Note      string            `json:"note"`
}

func (h *Handler) claim(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.BadRequest(w, "invalid request body: "+err.Error())
		return
	}

	p, err := h.svc.RecordPaymentClaim(r.Context(), settlement.ClaimParams{
		SettlementID: id,
		Amount:       req.Amount,
		Method:       req.Method,
		Reference:    req.Reference,
		Note:         req.Note,
		SubmittedBy:  auth.GetUserID(r.Context()),
	})
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusCreated, toPaymentResponse(p))
}

func (h *Handler) forceSettle(w http.ResponseWriter, r *http.Request) {
	if !auth.IsAdmin(r.Context()) {
		respond.Error(w, r, settlement.ErrUnauthorized)
		return
	}

	id, ok := pathID(w, r)
	if !ok {
		return
	}

	st, err := h.svc.ForceMarkSettled(r.Context(), id, auth.GetUserID(r.Context()))
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponse(st, h.now()))
}

func (h *Handler) getPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	p, err := h.svc.GetPayment(r.Context(), id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	st, err := h.svc.Get(r.Context(), p.SettlementID)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	if err := auth.CheckGroupAccess(r.Context(), h.members, st.GroupID); err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toPaymentResponse(p))
}

type confirmRequest struct {
	Message string `json:"message"`
}

func (h *Handler) confirm(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req confirmRequest
	if !decodeOptional(w, r, &req) {
		return
	}

	st, err := h.gateway.Confirm(r.Context(), id, auth.GetUserID(r.Context()), req.Message)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponse(st, h.now()))
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req rejectRequest
	if !decodeOptional(w, r, &req) {
		return
	}

	st, err := h.gateway.Reject(r.Context(), id, auth.GetUserID(r.Context()), req.Reason)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponse(st, h.now()))
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	p, err := h.svc.CancelPaymentClaim(r.Context(), id, auth.GetUserID(r.Context()))
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toPaymentResponse(p))
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.BadRequest(w, "invalid id")
		return uuid.Nil, false
	}

	return id, true
}

// decodeOptional decodes a JSON body that may be absent.
func decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}

	respond.BadRequest(w, "invalid request body: "+err.Error())

	return false
}
