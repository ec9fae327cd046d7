package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Manulynx/gestores/internal/auth"
	"github.com/Manulynx/gestores/internal/cart"
	"github.com/Manulynx/gestores/internal/catalog"
	"github.com/Manulynx/gestores/internal/clients"
	"github.com/Manulynx/gestores/internal/orders"
	"github.com/Manulynx/gestores/internal/shared"
	"github.com/Manulynx/gestores/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	AuthService    *auth.Service
	AuthHandler    *auth.Handler
	CatalogHandler *catalog.Handler
	ClientsHandler *clients.Handler
	CartHandler    *cart.Handler
	OrdersHandler  *orders.Handler
	JobHandler     *jobs.Handler
}

// NewRouter constructs the chi.Router.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)

	r.Group(func(r chi.Router) {
		r.Use(params.AuthService.RequireUser)

		r.Route("/catalog", params.CatalogHandler.MountRoutes)
		r.Route("/clients", params.ClientsHandler.MountRoutes)
		r.Route("/cart", params.CartHandler.MountRoutes)
		r.Route("/orders", params.OrdersHandler.MountRoutes)

		r.Group(func(r chi.Router) {
			r.Use(params.AuthService.RequireAdmin)
			r.Route("/admin/catalog", params.CatalogHandler.MountAdminRoutes)
			r.Route("/admin/orders", params.OrdersHandler.MountAdminRoutes)
		})
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	return r
}
