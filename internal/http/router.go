package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/jw6ventures/sellerpulse/internal/api"
	"github.com/jw6ventures/sellerpulse/internal/auth"
	"github.com/jw6ventures/sellerpulse/internal/config"
	"github.com/jw6ventures/sellerpulse/internal/http/csrf"
	"github.com/jw6ventures/sellerpulse/internal/http/ratelimit"
	"github.com/jw6ventures/sellerpulse/internal/metrics"
	"github.com/jw6ventures/sellerpulse/internal/store"
)

// NewRouter wires all HTTP routes: auth, the JSON API, and operational
// endpoints.
func NewRouter(cfg *config.Config, st *store.Store, authService *auth.Service, apiHandler *api.Handler) http.Handler {
	r := chi.NewRouter()

	// Auth endpoints: 5 requests per second, burst of 10
	authRateLimiter := ratelimit.NewIPRateLimiter(rate.Limit(5), 10, 5*time.Minute, cfg.TrustedProxies)
	// API endpoints: 20 requests per second, burst of 50
	apiRateLimiter := ratelimit.NewIPRateLimiter(rate.Limit(20), 50, 5*time.Minute, cfg.TrustedProxies)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware())

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := st.HealthCheck(ctx); err != nil {
			http.Error(w, "unready", http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if cfg.PrometheusEnabled {
		r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			metrics.Handler().ServeHTTP(w, r)
		})
	}

	r.Route("/auth", func(r chi.Router) {
		r.Use(authRateLimiter.Middleware())
		r.Get("/login", authService.BeginOAuth)
		r.Get("/callback", authService.HandleOAuthCallback)
	})
	r.With(authService.RequireSession).Post("/auth/logout", authService.Logout)

	r.Route("/api", func(r chi.Router) {
		r.Use(apiRateLimiter.Middleware())
		r.Use(authService.RequireAPIAuth)
		r.Use(csrf.Middleware(cfg))

		r.Get("/accounts", apiHandler.ListAccounts)
		r.Post("/accounts/link", apiHandler.LinkAccount)
		r.Delete("/accounts/{id}", apiHandler.UnlinkAccount)

		r.Get("/tokens", apiHandler.ListTokens)
		r.Post("/tokens", apiHandler.CreateToken)
		r.Delete("/tokens/{id}", apiHandler.RevokeToken)

		r.Post("/sync/orders", apiHandler.SyncOrders)
		r.Post("/sync/campaigns", apiHandler.SyncCampaigns)
		r.Post("/sync/campaign-metrics", apiHandler.SyncCampaignMetrics)
		r.Post("/sync/all", apiHandler.SyncAll)
		r.Get("/sync/status", apiHandler.SyncStatus)
		r.Get("/sync/runs", apiHandler.SyncRuns)

		r.Get("/data/orders", apiHandler.Orders)
		r.Get("/data/campaigns", apiHandler.Campaigns)
		r.Get("/data/campaign-metrics", apiHandler.CampaignMetrics)
	})

	return r
}
