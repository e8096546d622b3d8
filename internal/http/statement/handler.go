package statement

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrJamesThe3rd/splitledger/internal/http/respond"
	"github.com/MrJamesThe3rd/splitledger/internal/statement"
)

type Service interface {
	Build(ctx context.Context, groupID string) (*statement.Statement, error)
}

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// GroupRoutes mounts under /groups/{groupID}.
func (h *Handler) GroupRoutes(r chi.Router) {
	r.Get("/statement", h.download)
}

// download serves a zip by default; format=csv or format=text returns a
// single part.
func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Build(r.Context(), chi.URLParam(r, "groupID"))
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	var buf bytes.Buffer

	switch format := r.URL.Query().Get("format"); format {
	case "", "zip":
		if err := st.WriteZip(&buf); err != nil {
			respond.Error(w, r, err)
			return
		}

		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", st.Filename()))
	case "csv":
		if err := st.WriteCSV(&buf); err != nil {
			respond.Error(w, r, err)
			return
		}

		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	case "text":
		buf.WriteString(st.Summary())
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	default:
		respond.BadRequest(w, "unknown format "+format)
		return
	}

	if _, err := buf.WriteTo(w); err != nil {
		slog.Error("failed to write statement", "error", err)
	}
}
