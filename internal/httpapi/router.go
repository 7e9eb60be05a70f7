// Package httpapi serves the REST view of the ledger next to the Connect services.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mmynk/settleup/internal/auth"
	appmw "github.com/mmynk/settleup/internal/middleware"
	"github.com/mmynk/settleup/internal/service"
)

// Mount is a handler served under a path prefix, as returned by the
// pkg/api New*ServiceHandler constructors.
type Mount struct {
	Path    string
	Handler http.Handler
}

// RouterOptions configures NewRouter.
type RouterOptions struct {
	Ledger        *service.LedgerService
	Authenticator auth.Authenticator

	// Metrics serves /metrics when set.
	Metrics http.Handler

	// Connect handlers authenticate through their own interceptors.
	Connect []Mount
}

// NewRouter constructs the HTTP router.
func NewRouter(opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(appmw.RequestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	for _, m := range opts.Connect {
		r.Mount(m.Path, m.Handler)
	}

	h := &handlers{ledger: opts.Ledger}
	r.Route("/v1/groups/{groupID}", func(r chi.Router) {
		r.Use(appmw.Authenticate(opts.Authenticator, func(w http.ResponseWriter, r *http.Request, err error) {
			writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", err.Error(), nil)
		}))
		r.Get("/balances", h.getBalances)
		r.Get("/settlement-plan", h.getSettlementPlan)
		r.Post("/settle-up", h.settleUp)
	})

	return r
}
