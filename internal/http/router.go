package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/MrJamesThe3rd/splitledger/internal/auth"
	"github.com/MrJamesThe3rd/splitledger/internal/http/balance"
	"github.com/MrJamesThe3rd/splitledger/internal/http/importcsv"
	"github.com/MrJamesThe3rd/splitledger/internal/http/respond"
	"github.com/MrJamesThe3rd/splitledger/internal/http/settlement"
	"github.com/MrJamesThe3rd/splitledger/internal/http/statement"
	"github.com/MrJamesThe3rd/splitledger/internal/metrics"
)

func New(
	tokens *auth.JWTManager,
	corsOrigins []string,
	members auth.MembershipChecker,
	balanceV1 *balance.Handler,
	settlementV1 *settlement.Handler,
	importV1 *importcsv.Handler,
	statementV1 *statement.Handler,
) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", metrics.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens))

		r.Route("/groups/{groupID}", func(r chi.Router) {
			r.Use(requireGroupMember(members))
			balanceV1.GroupRoutes(r)
			settlementV1.GroupRoutes(r)
			statementV1.GroupRoutes(r)
			r.Route("/expenses/import", importV1.Routes)
		})

		r.Route("/simulate", balanceV1.SimulateRoutes)

		r.Route("/settlements", func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			settlementV1.Routes(r)
		})

		r.Route("/payments", settlementV1.PaymentRoutes)
	})

	return router
}

// requireGroupMember stops callers from reading or changing groups they do
// not belong to.
func requireGroupMember(members auth.MembershipChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := auth.CheckGroupAccess(r.Context(), members, chi.URLParam(r, "groupID")); err != nil {
				respond.Error(w, r, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
