package importcsv

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/splitledger/internal/expense"
	"github.com/MrJamesThe3rd/splitledger/internal/group"
	"github.com/MrJamesThe3rd/splitledger/internal/http/respond"
	"github.com/MrJamesThe3rd/splitledger/internal/importer"
	"github.com/MrJamesThe3rd/splitledger/internal/importer/sheet"
)

type Importer interface {
	Import(format importer.Format, r io.Reader) (*sheet.Result, error)
}

type Expenses interface {
	ImportBatch(ctx context.Context, groupID string, params []expense.CreateParams) (*expense.ImportResult, error)
	CreateBatch(ctx context.Context, groupID string, params []expense.CreateParams) ([]*expense.Expense, error)
}

type Groups interface {
	EnsureMembers(ctx context.Context, groupID, name string, userIDs []string) (*group.Group, error)
}

// Balances is told when a group's expenses change.
type Balances interface {
	Invalidate(ctx context.Context, groupID string)
}

type Handler struct {
	importSvc Importer
	expenses  Expenses
	groups    Groups
	balances  Balances
}

func NewHandler(importSvc Importer, expenses Expenses, groups Groups, balances Balances) *Handler {
	return &Handler{
		importSvc: importSvc,
		expenses:  expenses,
		groups:    groups,
		balances:  balances,
	}
}

// Routes mounts under /groups/{groupID}/expenses/import.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.importCSV)
	r.Post("/confirm", h.confirmImport)
}

type expenseResponse struct {
	ID          uuid.UUID        `json:"id"`
	PayerID     string           `json:"payer_id"`
	Amount      int64            `json:"amount"`
	Shares      map[string]int64 `json:"shares"`
	Description string           `json:"description"`
	Date        time.Time        `json:"date"`
}

type importSuccessResponse struct {
	Imported int               `json:"imported"`
	Expenses []expenseResponse `json:"expenses"`
	Skipped  []sheet.Skipped   `json:"skipped"`
	Members  []string          `json:"members"`
	Charset  string            `json:"charset,omitempty"`
}

type createParamsDTO struct {
	PayerID     string           `json:"payer_id"`
	Amount      int64            `json:"amount"`
	Shares      map[string]int64 `json:"shares"`
	Description string           `json:"description"`
	Date        time.Time        `json:"date"`
}

type conflictDTO struct {
	Incoming createParamsDTO `json:"incoming"`
	Existing expenseResponse `json:"existing"`
}

type importConflictResponse struct {
	New       []createParamsDTO `json:"new"`
	Conflicts []conflictDTO     `json:"conflicts"`
	Skipped   []sheet.Skipped   `json:"skipped"`
}

type confirmRequest struct {
	Params []createParamsDTO `json:"params"`
}

func (h *Handler) importCSV(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")

	if err := r.ParseMultipartForm(10 << 20); err != nil {
		respond.BadRequest(w, "failed to parse form: "+err.Error())
		return
	}

	format := importer.Format(r.FormValue("format"))
	if format == "" {
		format = importer.FormatSplitwise
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		respond.BadRequest(w, "file field is required")
		return
	}
	defer file.Close()

	res, err := h.importSvc.Import(format, file)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	if len(res.Expenses) == 0 {
		respond.BadRequest(w, "no importable expenses found")
		return
	}

	name := r.FormValue("group_name")
	if name == "" {
		name = groupID
	}

	if _, err := h.groups.EnsureMembers(r.Context(), groupID, name, res.Members); err != nil {
		respond.Error(w, r, err)
		return
	}

	result, err := h.expenses.ImportBatch(r.Context(), groupID, res.Expenses)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	skipped := res.Skipped
	if skipped == nil {
		skipped = []sheet.Skipped{}
	}

	if len(result.Conflicts) > 0 {
		resp := importConflictResponse{
			New:       make([]createParamsDTO, 0, len(result.New)),
			Conflicts: make([]conflictDTO, 0, len(result.Conflicts)),
			Skipped:   skipped,
		}
		for _, p := range result.New {
			resp.New = append(resp.New, toParamsDTO(p))
		}

		for _, c := range result.Conflicts {
			resp.Conflicts = append(resp.Conflicts, conflictDTO{
				Incoming: toParamsDTO(c.Incoming),
				Existing: toExpenseResponse(c.Existing),
			})
		}

		respond.JSON(w, http.StatusConflict, resp)

		return
	}

	h.balances.Invalidate(r.Context(), groupID)

	resp := toSuccessResponse(result.Imported)
	resp.Skipped = skipped
	resp.Members = res.Members
	resp.Charset = res.Charset

	respond.JSON(w, http.StatusCreated, resp)
}

// confirmImport stores the rows the user kept after reviewing conflicts.
func (h *Handler) confirmImport(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")

	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.BadRequest(w, "invalid request body: "+err.Error())
		return
	}

	params := make([]expense.CreateParams, 0, len(req.Params))
	for _, p := range req.Params {
		params = append(params, expense.CreateParams{
			PayerID:     p.PayerID,
			Amount:      p.Amount,
			Shares:      p.Shares,
			Description: p.Description,
			Date:        p.Date,
		})
	}

	exps, err := h.expenses.CreateBatch(r.Context(), groupID, params)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	h.balances.Invalidate(r.Context(), groupID)

	resp := toSuccessResponse(exps)
	resp.Skipped = []sheet.Skipped{}

	respond.JSON(w, http.StatusCreated, resp)
}

func toSuccessResponse(exps []*expense.Expense) importSuccessResponse {
	responses := make([]expenseResponse, 0, len(exps))
	for _, e := range exps {
		responses = append(responses, toExpenseResponse(e))
	}

	return importSuccessResponse{
		Imported: len(exps),
		Expenses: responses,
	}
}

func toExpenseResponse(e *expense.Expense) expenseResponse {
	return expenseResponse{
		ID:          e.ID,
		PayerID:     e.PayerID,
		Amount:      e.Amount,
		Shares:      e.Shares,
		Description: e.Description,
		Date:        e.Date,
	}
}

func toParamsDTO(p expense.CreateParams) createParamsDTO {
	return createParamsDTO{
		PayerID:     p.PayerID,
		Amount:      p.Amount,
		Shares:      p.Shares,
		Description: p.Description,
		Date:        p.Date,
	}
}
