package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/rotasales/rotasales/internal/auth"
	"github.com/rotasales/rotasales/internal/credit"
	"github.com/rotasales/rotasales/internal/guide"
	"github.com/rotasales/rotasales/internal/masterdata"
	"github.com/rotasales/rotasales/internal/observability"
	"github.com/rotasales/rotasales/internal/sales"
	"github.com/rotasales/rotasales/internal/shared"
	"github.com/rotasales/rotasales/internal/sync"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	AuthMiddleware    *auth.Middleware
	AuthHandler       *auth.Handler
	MasterDataHandler *masterdata.Handler
	SalesHandler      *sales.Handler
	CreditHandler     *credit.Handler
	GuideHandler      *guide.Handler
	SyncHandler       *sync.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		params.AuthHandler.MountRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(params.AuthMiddleware.Authenticate)
			params.AuthHandler.MountProtectedRoutes(r)

			// Shared read/write surface, services scope by identity.
			params.SalesHandler.MountRoutes(r)
			params.CreditHandler.MountRoutes(r)
			params.GuideHandler.MountRoutes(r)
			params.MasterDataHandler.MountCatalogRoutes(r)

			// Boss-only tenant administration.
			r.Group(func(r chi.Router) {
				r.Use(params.AuthMiddleware.RequireRole(shared.RoleBoss))
				params.MasterDataHandler.MountRoutes(r)
			})

			// Seller devices only.
			r.Group(func(r chi.Router) {
				r.Use(params.AuthMiddleware.RequireRole(shared.RoleSeller))
				params.SyncHandler.MountRoutes(r)
			})
		})
	})

	return r
}
