package controlplane

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/routegate/gateway/internal/artifact"
	"github.com/routegate/gateway/internal/metrics"
	"github.com/routegate/gateway/internal/notify"
	"github.com/routegate/gateway/pkg/models"
	"github.com/rs/zerolog/log"
)

// defaultMinSamplesPerStage / defaultMinDuration are the default progression
// gates (§4.I); overridable via config.ScheduleConfig.
const (
	defaultMinSamplesPerStage = 100
	defaultMinDuration        = 15 * time.Minute
)

var stageTraffic = [4]int{5, 25, 50, 100}

// CanaryManager runs the four-stage rollout state machine. Only one rollout
// may be `running` process-wide (§4.I, §5).
type CanaryManager struct {
	metrics  *metrics.Engine
	store    *artifact.Store
	notifier *notify.Service

	minSamplesPerStage int64
	minStageDuration   time.Duration

	mu      sync.RWMutex
	current *models.CanaryRollout
	stopCh  chan struct{}
}

func NewCanaryManager(m *metrics.Engine, store *artifact.Store, notifier *notify.Service, minSamples int64, minDuration time.Duration) *CanaryManager {
	if minSamples <= 0 {
		minSamples = defaultMinSamplesPerStage
	}
	if minDuration <= 0 {
		minDuration = defaultMinDuration
	}
	return &CanaryManager{
		metrics:            m,
		store:              store,
		notifier:           notifier,
		minSamplesPerStage: minSamples,
		minStageDuration:   minDuration,
		stopCh:             make(chan struct{}),
	}
}

func (c *CanaryManager) Start(ctx context.Context, evalInterval time.Duration) {
	ticker := time.NewTicker(evalInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			case <-ticker.C:
				c.evaluate(ctx)
			}
		}
	}()
}

func (c *CanaryManager) Stop() { close(c.stopCh) }

// Current returns a snapshot of the in-progress rollout, or nil.
func (c *CanaryManager) Current() *models.CanaryRollout {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return nil
	}
	cp := *c.current
	return &cp
}

// StartRollout begins a new canary for the candidate artifact; refuses if
// one is already running.
func (c *CanaryManager) StartRollout(candidate *models.Artifact) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil && c.current.Status == models.CanaryRunning {
		log.Warn().Str("version", candidate.Version).Msg("canary rollout requested while one is already running, ignoring")
		return
	}

	stages := make([]models.CanaryStage, 4)
	for i, pct := range stageTraffic {
		stages[i] = models.CanaryStage{Index: i, TrafficPercent: pct}
	}
	stages[0].StartedAt = time.Now()

	c.current = &models.CanaryRollout{
		ID:              fmt.Sprintf("canary-%s", candidate.Version),
		ArtifactVersion: candidate.Version,
		StartTime:       time.Now(),
		Stages:          stages,
		CurrentStage:    0,
		Status:          models.CanaryRunning,
	}
	log.Info().Str("version", candidate.Version).Msg("canary rollout started at stage1 (5%)")
}

func (c *CanaryManager) evaluate(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil || c.current.Status != models.CanaryRunning {
		return
	}

	stage := &c.current.Stages[c.current.CurrentStage]
	observed := c.metrics.WindowStageMetrics(stage.StartedAt)
	stage.Metrics = observed

	if rollbackTriggered(observed, c.current.BaselineMetrics) {
		c.rollback(ctx, "rollback trigger condition met")
		return
	}

	if !progressionCriteriaMet(observed, c.current.BaselineMetrics, stage, c.minSamplesPerStage, c.minStageDuration) {
		return
	}

	passed := true
	stage.Passed = &passed
	stage.EndedAt = time.Now()

	if c.current.CurrentStage == len(c.current.Stages)-1 {
		c.current.Status = models.CanaryCompleted
		log.Info().Str("version", c.current.ArtifactVersion).Msg("canary rollout completed, artifact fully promoted")
		return
	}

	c.current.CurrentStage++
	c.current.Stages[c.current.CurrentStage].StartedAt = time.Now()
	log.Info().Str("version", c.current.ArtifactVersion).Int("stage", c.current.CurrentStage).Msg("canary rollout advanced to next stage")
}

func (c *CanaryManager) rollback(ctx context.Context, reason string) {
	c.current.Status = models.CanaryRolledBack
	log.Warn().Str("version", c.current.ArtifactVersion).Str("reason", reason).Msg("canary rollout rolled back, traffic weight set to 0%")

	if _, err := c.store.Load(ctx, true); err != nil {
		c.current.Status = models.CanaryFailed
		log.Error().Err(err).Msg("rollback failed to restore a good artifact")
		c.notifier.Emergency(ctx, "canary_rollback_failed", "canary rollback failed to restore a known-good artifact", map[string]interface{}{
			"version": c.current.ArtifactVersion,
			"reason":  reason,
			"error":   err.Error(),
		})
	}
}

func progressionCriteriaMet(observed, baseline models.StageMetrics, stage *models.CanaryStage, minSamples int64, minDuration time.Duration) bool {
	if observed.Samples < minSamples {
		return false
	}
	if time.Since(stage.StartedAt) < minDuration {
		return false
	}
	if observed.ErrorRate > 0.05 {
		return false
	}
	if observed.WinRate < 0.85 || (baseline.WinRate > 0 && observed.WinRate < baseline.WinRate) {
		return false
	}
	if baseline.CostUSD > 0 && observed.CostUSD > baseline.CostUSD*1.20 {
		return false
	}
	if baseline.LatencyMs > 0 && observed.LatencyMs > baseline.LatencyMs*1.15 {
		return false
	}
	return true
}

func rollbackTriggered(observed, baseline models.StageMetrics) bool {
	if observed.ErrorRate > 0.10 {
		return true
	}
	if baseline.LatencyMs > 0 && observed.LatencyMs > baseline.LatencyMs*1.5 {
		return true
	}
	if baseline.CostUSD > 0 && observed.CostUSD > baseline.CostUSD*1.3 {
		return true
	}
	if baseline.WinRate > 0 && baseline.WinRate-observed.WinRate > 0.10 {
		return true
	}
	return false
}
