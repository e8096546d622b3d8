package importcsv_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/splitledger/internal/database"
	"github.com/MrJamesThe3rd/splitledger/internal/expense"
	expenseStore "github.com/MrJamesThe3rd/splitledger/internal/expense/store"
	"github.com/MrJamesThe3rd/splitledger/internal/group"
	groupStore "github.com/MrJamesThe3rd/splitledger/internal/group/store"
	"github.com/MrJamesThe3rd/splitledger/internal/http/importcsv"
	"github.com/MrJamesThe3rd/splitledger/internal/importer"
)

type invalidations struct {
	groups []string
}

func (i *invalidations) Invalidate(_ context.Context, groupID string) {
	i.groups = append(i.groups, groupID)
}

type fixture struct {
	router   http.Handler
	expenses *expense.Service
	groups   *group.Service
	inv      *invalidations
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := database.New(database.DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.Migrate(context.Background(), db))

	f := &fixture{
		expenses: expense.NewService(expenseStore.New(db)),
		groups:   group.NewService(groupStore.New(db)),
		inv:      &invalidations{},
	}

	h := importcsv.NewHandler(importer.NewService(), f.expenses, f.groups, f.inv)

	r := chi.NewRouter()
	r.Route("/groups/{groupID}/expenses/import", h.Routes)
	f.router = r

	return f
}

func (f *fixture) upload(t *testing.T, format, content string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if format != "" {
		require.NoError(t, mw.WriteField("format", format))
	}

	require.NoError(t, mw.WriteField("group_name", "Lisbon trip"))

	fw, err := mw.CreateFormFile("file", "export.csv")
	require.NoError(t, err)

	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/groups/trip/expenses/import/", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	return rec
}

const export = `Date,Description,Category,Cost,Currency,A,B,C
2024-03-01,Dinner,Dining out,300.00,EUR,200.00,-100.00,-100.00
2024-03-02,Taxi,Taxi,150.00,EUR,-50.00,100.00,-50.00
2024-03-03,Two payers,General,30.00,EUR,10.00,10.00,-20.00
`

func TestHandler_Import(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	rec := f.upload(t, "", export)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var body struct {
		Imported int      `json:"imported"`
		Members  []string `json:"members"`
		Skipped  []struct {
			Line   int    `json:"line"`
			Reason string `json:"reason"`
		} `json:"skipped"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	assert.Equal(t, 2, body.Imported)
	assert.Equal(t, []string{"A", "B", "C"}, body.Members)
	require.Len(t, body.Skipped, 1)
	assert.Equal(t, 4, body.Skipped[0].Line)
	assert.Equal(t, []string{"trip"}, f.inv.groups)

	exps, err := f.expenses.ListExpenses(ctx, "trip")
	require.NoError(t, err)
	assert.Len(t, exps, 2)

	g, err := f.groups.Get(ctx, "trip")
	require.NoError(t, err)
	assert.Equal(t, "Lisbon trip", g.Name)
	assert.True(t, g.HasMember("C"))
}

func TestHandler_ImportConflictThenConfirm(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.Equal(t, http.StatusCreated, f.upload(t, "", export).Code)

	rec := f.upload(t, "", export+"2024-03-04,Museum,General,20.00,EUR,10.00,-10.00,0.00\n")
	require.Equal(t, http.StatusConflict, rec.Code)

	var conflict struct {
		New       []json.RawMessage `json:"new"`
		Conflicts []json.RawMessage `json:"conflicts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conflict))
	assert.Len(t, conflict.New, 1)
	assert.Len(t, conflict.Conflicts, 2)

	exps, err := f.expenses.ListExpenses(ctx, "trip")
	require.NoError(t, err)
	assert.Len(t, exps, 2, "a conflicting import writes nothing")

	payload := `{"params":[` + string(conflict.New[0]) + `]}`
	req := httptest.NewRequest(http.MethodPost, "/groups/trip/expenses/import/confirm", strings.NewReader(payload))
	confirm := httptest.NewRecorder()
	f.router.ServeHTTP(confirm, req)
	require.Equal(t, http.StatusCreated, confirm.Code, confirm.Body.String())

	exps, err = f.expenses.ListExpenses(ctx, "trip")
	require.NoError(t, err)
	assert.Len(t, exps, 3)
}

func TestHandler_ImportErrors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name    string
		format  string
		content string
	}{
		{name: "UnknownFormat", format: "bank", content: export},
		{name: "NoHeader", content: "foo,bar\n1,2\n"},
		{name: "NothingImportable", content: "Date,Description,Category,Cost,Currency,A,B\n2024-03-01,x,General,10.00,EUR,5.00,5.00\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.upload(t, tt.format, tt.content)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	assert.Empty(t, f.inv.groups)
}
