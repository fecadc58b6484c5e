// Package server provides the public entry point for initializing the
// routing gateway: it wires the nine components of §2 (leaves first) into
// one HTTP handler and exposes the background loops the caller's main.go
// must stop on shutdown.
//
// Usage:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(fmt.Sprintf(":%d", srv.Port), srv.Handler)
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/routegate/gateway/internal/api"
	"github.com/routegate/gateway/internal/api/handlers"
	"github.com/routegate/gateway/internal/artifact"
	gwauth "github.com/routegate/gateway/internal/auth"
	"github.com/routegate/gateway/internal/breaker"
	"github.com/routegate/gateway/internal/catalog"
	"github.com/routegate/gateway/internal/config"
	"github.com/routegate/gateway/internal/controlplane"
	"github.com/routegate/gateway/internal/embedding"
	"github.com/routegate/gateway/internal/executor"
	"github.com/routegate/gateway/internal/features"
	"github.com/routegate/gateway/internal/gatewayauth"
	"github.com/routegate/gateway/internal/guardrail"
	"github.com/routegate/gateway/internal/metrics"
	"github.com/routegate/gateway/internal/notify"
	"github.com/routegate/gateway/internal/selector"
	"github.com/routegate/gateway/internal/telemetry"
	"github.com/routegate/gateway/internal/triage"
	"github.com/routegate/gateway/pkg/contracts"

	"github.com/rs/zerolog/log"
)

// embeddingCacheCapacity is the hashing embedder's per-text LRU size (§4.A
// requires capacity ≥ 1000).
const embeddingCacheCapacity = 4096

// featureTopAlpha is the number of nearest centroids the ANN index returns
// per request for Features.CentroidDistances.
const featureTopAlpha = 5

// Server holds every initialized gateway component plus the HTTP handler
// wired from them. Components are exported so a caller embedding this
// package (e.g. an enterprise build) can register additional auth
// providers or catalog sources before traffic starts.
type Server struct {
	Handler http.Handler
	Port    int

	Artifacts    *artifact.Store
	AuthRegistry *gatewayauth.Registry
	AuthChain    *gwauth.ProviderChain
	Executor     *executor.Executor
	Metrics      *metrics.Engine
	ControlPlane *controlplane.ControlPlane

	shutdownTelemetry func(context.Context) error
	pgStore           *metrics.PostgresStore
}

// New loads configuration from the environment and builds a ready Server.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig builds a ready Server from an explicit configuration,
// wiring components in the dependency order of §2 (leaves first).
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	shutdownTelemetry, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	// ── B: Artifact Store ──────────────────────────────────────
	artifacts := artifact.NewStore(cfg.Artifact)
	if _, loadErr := artifacts.Load(ctx, false); loadErr != nil {
		log.Warn().Err(loadErr).Msg("initial artifact load degraded to emergency defaults")
	}
	artifacts.Start(ctx)
	log.Info().Str("version", artifacts.Current().Version).Bool("degraded", artifacts.Degraded()).Msg("artifact store ready")

	// ── A: Feature Extractor ───────────────────────────────────
	embedder := embedding.NewHashingEmbedder(embeddingCacheCapacity)
	annIndex := embedding.NewBruteForceANN(nil)
	if centroids := artifacts.Current().Centroids; centroids != "" {
		if loadErr := annIndex.Load(ctx, centroids); loadErr != nil {
			log.Warn().Err(loadErr).Msg("ANN index load failed, nearest-centroid lookups degrade to cluster 0")
		}
	}
	extractor := features.NewExtractor(embedder, annIndex, featureTopAlpha)

	// ── C: Auth Adapter Registry ────────────────────────────────
	anthropicAdapter := gatewayauth.NewAnthropicAdapter()
	envCreds := gatewayauth.NewEnvCredentialAdapter()

	registry := gatewayauth.NewRegistry()
	registry.Register(anthropicAdapter)
	registry.Register(gatewayauth.NewGoogleAdapter())
	registry.Register(gatewayauth.NewOpenAIAdapter())

	// ── D: Triage Classifier ────────────────────────────────────
	classifier := triage.NewClassifier()

	// ── E: Context Guardrail ────────────────────────────────────
	guard := guardrail.New()

	// ── F/G: shared circuit-breaker and latency tables ──────────
	breakers := breaker.NewTable(cfg.Breaker.FailureThreshold, cfg.Breaker.ResetTimeout)
	latencies := breaker.NewLatencyTable()

	sel := selector.New(latencies)

	exec := executor.New(executor.Config{
		Timeout:        cfg.Provider.Timeout,
		RetryBaseDelay: cfg.Provider.RetryBaseDelay,
		RetryFactor:    cfg.Provider.RetryFactor,
		RetryMaxTries:  cfg.Provider.RetryMaxTries,
	}, breakers, latencies, anthropicAdapter, envCreds, registry)

	// ── H: PostHook/Metrics Engine ───────────────────────────────
	var pgStore *metrics.PostgresStore
	var metricsStore metrics.Store
	if cfg.Database.URL != "" {
		pgStore, err = metrics.NewPostgresStore(ctx, cfg.Database.URL)
		if err != nil {
			log.Warn().Err(err).Msg("postgres metrics store unavailable, falling back to file-only persistence")
			pgStore = nil
		} else {
			metricsStore = pgStore
			log.Info().Msg("postgres metrics store connected")
		}
	}
	metricsEngine := metrics.New(cfg.Metrics, metrics.SLOThresholds{
		P95LatencyMs:        cfg.SLO.P95LatencyMs,
		FailoverMisfireRate: cfg.SLO.FailoverMisfireRate,
		UptimeTarget:        cfg.SLO.UptimeTarget,
		MeanCostPerTask:     cfg.SLO.MeanCostPerTask,
		WinRateTarget:       cfg.SLO.WinRateTarget,
	}, metricsStore)

	// ── I: Control Plane ─────────────────────────────────────────
	notifier := notify.NewService(notify.NewWebhookDriver(cfg.Notify.WebhookURL, cfg.Notify.WebhookSecret))
	var catalogSource contracts.CatalogSource = catalog.NewLiteLLMSource(nil)
	var trainingRunner contracts.TrainingRunner // nil: an opaque external collaborator per §1

	cp := controlplane.New(cfg, artifacts, metricsEngine, notifier, catalogSource, trainingRunner)
	cp.Catalog.Refresh(ctx) // populate the catalog snapshot before the nightly/drift loops take over
	cp.Start(ctx, cfg.Catalog)
	log.Info().Msg("control plane started")

	// ── Dashboard auth chain (distinct from the hot path's Auth Adapter
	// Registry; it guards /metrics, /slo-status, etc. when GATEWAY_REQUIRE_AUTH
	// is set) ─────────────────────────────────────────────────────
	authChain := gwauth.NewProviderChain()
	if p := gwauth.NewAPIKeyProvider(); p.Enabled() {
		authChain.RegisterProvider(p)
	}
	if p := gwauth.NewServiceAccountProvider(); p.Enabled() {
		authChain.RegisterProvider(p)
	}

	h := handlers.New(registry, artifacts, extractor, classifier, guard, sel, exec, metricsEngine, cp, cfg.Version)
	router := api.NewRouter(cfg, h, authChain)

	return &Server{
		Handler:           router,
		Port:              cfg.Port,
		Artifacts:         artifacts,
		AuthRegistry:      registry,
		AuthChain:         authChain,
		Executor:          exec,
		Metrics:           metricsEngine,
		ControlPlane:      cp,
		shutdownTelemetry: shutdownTelemetry,
		pgStore:           pgStore,
	}, nil
}

// Shutdown stops all background goroutines (artifact hot-reload, control
// plane activities) and flushes telemetry and the metrics store.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Artifacts.Stop()
	s.ControlPlane.Stop()
	if s.pgStore != nil {
		s.pgStore.Close()
	}
	if s.shutdownTelemetry != nil {
		return s.shutdownTelemetry(ctx)
	}
	return nil
}
