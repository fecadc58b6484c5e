// Package controlplane implements the Control Plane (§4.I): four
// cooperating background activities — Catalog Refresher, Tuning Pipeline,
// Canary Rollout, Recommendation Engine — each on its own goroutine and
// time.Ticker, never sharing a scheduling thread with request handling.
package controlplane

import (
	"context"

	"github.com/routegate/gateway/internal/artifact"
	"github.com/routegate/gateway/internal/config"
	"github.com/routegate/gateway/internal/metrics"
	"github.com/routegate/gateway/internal/notify"
	"github.com/routegate/gateway/pkg/contracts"
)

// ControlPlane bundles the four activities and their shared dependencies.
type ControlPlane struct {
	Catalog        *CatalogRefresher
	Tuning         *TuningPipeline
	Canary         *CanaryManager
	Recommendation *RecommendationEngine

	cfg config.ScheduleConfig
}

// New wires all four activities. source and runner may be nil in
// deployments that don't configure a catalog source or training runner;
// the corresponding activity then simply has nothing to do each tick.
func New(cfg *config.Config, store *artifact.Store, m *metrics.Engine, notifier *notify.Service, source contracts.CatalogSource, runner contracts.TrainingRunner) *ControlPlane {
	canary := NewCanaryManager(m, store, notifier, cfg.Schedule.CanaryMinSamplesPerStage, cfg.Schedule.CanaryMinDurationPerStage)

	cp := &ControlPlane{
		Catalog:        NewCatalogRefresher(source, store, notifier, cfg.Catalog.DriftInterval),
		Tuning:         NewTuningPipeline(runner, m, canary, store),
		Canary:         canary,
		Recommendation: NewRecommendationEngine(m, cfg.Schedule.RecommendationRetention),
		cfg:            cfg.Schedule,
	}
	return cp
}

// Start launches all four activities' goroutines. Each selects on ctx.Done()
// alongside its own ticker.
func (cp *ControlPlane) Start(ctx context.Context, catalogCfg config.CatalogConfig) {
	cp.Catalog.Start(ctx, catalogCfg.FullRefreshCron)
	cp.Tuning.Start(ctx, cp.cfg.TuningPipelineInterval)
	cp.Canary.Start(ctx, cp.cfg.CanaryEvalInterval)
	cp.Recommendation.Start(ctx, cp.cfg.RecommendationInterval)
}

// Stop signals all four activities to end their loops.
func (cp *ControlPlane) Stop() {
	cp.Catalog.Stop()
	cp.Tuning.Stop()
	cp.Canary.Stop()
	cp.Recommendation.Stop()
}
