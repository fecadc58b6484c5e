// Package api assembles the gateway's chi router: global middleware, the
// hot-path chat-completion route, and the read-only dashboard surface.
package api

import (
	"net/http"
	"strings"

	"github.com/routegate/gateway/internal/api/handlers"
	"github.com/routegate/gateway/internal/api/middleware"
	"github.com/routegate/gateway/internal/config"
	"github.com/routegate/gateway/pkg/contracts"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter builds the HTTP handler: health/version, the chat-completion
// hot path, and the read-only dashboard endpoints of §6.
func NewRouter(cfg *config.Config, h *handlers.Handlers, authChain contracts.AuthProviderChain) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.Logger)
	r.Use(middleware.WorkspaceExtractor)
	r.Use(middleware.Telemetry)

	if authChain != nil {
		authMW := middleware.NewAuthMiddleware(authChain)
		r.Use(authMW.Handler)
	}

	origins := parseCORSOrigins(cfg.CORS.Origins)
	isWildcard := len(origins) == 1 && origins[0] == "*"
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Workspace", "X-Request-Id", "X-API-Key", "X-Service-Token", "X-OpenAI-Api-Key", "X-Goog-Api-Key"},
		ExposedHeaders:   []string{"X-Request-Id", "X-Trace-Id", "X-Routegate-Provider", "X-Routegate-Model", "X-Routegate-Bucket", "X-Routegate-Fallback"},
		AllowCredentials: !isWildcard,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)
	r.Get("/version", h.Version)

	// Hot path: OpenAI-chat-completion-shaped requests, routed per §2-4.
	r.Route("/v1", func(r chi.Router) {
		r.Post("/chat/completions", h.ChatCompletions)
	})

	// Read-only dashboard surface (§6); auth is already applied above for
	// non-public paths.
	r.Get("/metrics", h.Metrics)
	r.Get("/slo-status", h.SLOStatus)
	r.Get("/deployment-readiness", h.DeploymentReadiness)
	r.Get("/provider-health", h.ProviderHealth)
	r.Get("/cost-analysis", h.CostAnalysis)
	r.Get("/alerts", h.Alerts)

	return r
}

func parseCORSOrigins(raw string) []string {
	if raw == "" {
		return []string{"*"}
	}
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
