package balance

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrJamesThe3rd/splitledger/internal/balance"
	"github.com/MrJamesThe3rd/splitledger/internal/expense"
	"github.com/MrJamesThe3rd/splitledger/internal/http/respond"
	"github.com/MrJamesThe3rd/splitledger/internal/importer"
	"github.com/MrJamesThe3rd/splitledger/internal/importer/sheet"
	"github.com/MrJamesThe3rd/splitledger/internal/ledger"
	"github.com/MrJamesThe3rd/splitledger/internal/simplify"
)

const simulationGroup = "simulation"

type Service interface {
	Snapshot(ctx context.Context, groupID string) (*balance.Snapshot, error)
	Simulate(groupID string, expenses []*expense.Expense) (*balance.Snapshot, error)
}

type Importer interface {
	Import(format importer.Format, r io.Reader) (*sheet.Result, error)
}

type Handler struct {
	svc      Service
	importer Importer
}

func NewHandler(svc Service, importer Importer) *Handler {
	return &Handler{svc: svc, importer: importer}
}

// GroupRoutes mounts under /groups/{groupID}.
func (h *Handler) GroupRoutes(r chi.Router) {
	r.Get("/balances", h.balances)
	r.Get("/suggestions", h.suggestions)
}

// SimulateRoutes mounts the what-if endpoint, which never touches storage.
func (h *Handler) SimulateRoutes(r chi.Router) {
	r.Post("/", h.simulate)
}

type balanceResponse struct {
	Debtor   string `json:"debtor"`
	Creditor string `json:"creditor"`
	Amount   int64  `json:"amount"`
}

type balancesResponse struct {
	GroupID    string            `json:"group_id"`
	Balances   []balanceResponse `json:"balances"`
	Net        map[string]int64  `json:"net"`
	ComputedAt time.Time         `json:"computed_at"`
}

type suggestionResponse struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

type planResponse struct {
	GroupID       string               `json:"group_id"`
	Suggestions   []suggestionResponse `json:"suggestions"`
	PairwiseCount int                  `json:"pairwise_count"`
	Reduction     int                  `json:"reduction_percent"`
	ComputedAt    time.Time            `json:"computed_at"`
}

func (h *Handler) balances(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Snapshot(r.Context(), chi.URLParam(r, "groupID"))
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toBalancesResponse(snap))
}

func (h *Handler) suggestions(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Snapshot(r.Context(), chi.URLParam(r, "groupID"))
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toPlanResponse(snap))
}

type simulationResponse struct {
	Balances balancesResponse `json:"balances"`
	Plan     planResponse     `json:"plan"`
	Members  []string         `json:"members"`
	Skipped  []sheet.Skipped  `json:"skipped"`
	Charset  string           `json:"charset"`
}

func (h *Handler) simulate(w http.ResponseWriter, r *http.Request) {
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

	res, err := h.importer.Import(format, file)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	exps, err := expense.FromParams(simulationGroup, res.Expenses)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	snap, err := h.svc.Simulate(simulationGroup, exps)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	skipped := res.Skipped
	if skipped == nil {
		skipped = []sheet.Skipped{}
	}

	respond.JSON(w, http.StatusOK, simulationResponse{
		Balances: toBalancesResponse(snap),
		Plan:     toPlanResponse(snap),
		Members:  res.Members,
		Skipped:  skipped,
		Charset:  res.Charset,
	})
}

func toBalancesResponse(snap *balance.Snapshot) balancesResponse {
	resp := balancesResponse{
		GroupID:    snap.GroupID,
		Balances:   make([]balanceResponse, len(snap.Balances)),
		Net:        snap.Net,
		ComputedAt: snap.ComputedAt,
	}

	for i, b := range snap.Balances {
		resp.Balances[i] = toBalance(b)
	}

	if resp.Net == nil {
		resp.Net = map[string]int64{}
	}

	return resp
}

func toPlanResponse(snap *balance.Snapshot) planResponse {
	resp := planResponse{
		GroupID:       snap.GroupID,
		Suggestions:   make([]suggestionResponse, len(snap.Plan.Suggestions)),
		PairwiseCount: snap.Plan.PairwiseCount,
		Reduction:     snap.Plan.Reduction,
		ComputedAt:    snap.ComputedAt,
	}

	for i, s := range snap.Plan.Suggestions {
		resp.Suggestions[i] = toSuggestion(s)
	}

	return resp
}

func toBalance(b ledger.Balance) balanceResponse {
	return balanceResponse{Debtor: b.Debtor(), Creditor: b.Creditor(), Amount: b.Abs()}
}

func toSuggestion(s simplify.Suggestion) suggestionResponse {
	return suggestionResponse{From: s.From, To: s.To, Amount: s.Amount}
}
