package controlplane

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/routegate/gateway/internal/metrics"
	"github.com/routegate/gateway/pkg/models"
	"github.com/rs/zerolog/log"
)

// recommendationRetention is the default discard age for pending
// recommendations (§4.I); overridable via config.ScheduleConfig.
const recommendationRetention = 7 * 24 * time.Hour

// RecommendationEngine periodically inspects recent metrics and emits
// advisory recommendations. Recommendations are never auto-applied; that
// is opt-in per kind at the caller's discretion.
type RecommendationEngine struct {
	metrics   *metrics.Engine
	retention time.Duration

	mu      sync.RWMutex
	pending []models.Recommendation

	stopCh chan struct{}
}

func NewRecommendationEngine(m *metrics.Engine, retention time.Duration) *RecommendationEngine {
	if retention <= 0 {
		retention = recommendationRetention
	}
	return &RecommendationEngine{metrics: m, retention: retention, stopCh: make(chan struct{})}
}

func (r *RecommendationEngine) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopCh:
				return
			case <-ticker.C:
				r.runCycle()
			}
		}
	}()
}

func (r *RecommendationEngine) Stop() { close(r.stopCh) }

// Pending returns the current, non-expired recommendation list.
func (r *RecommendationEngine) Pending() []models.Recommendation {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictExpired()
	out := make([]models.Recommendation, len(r.pending))
	copy(out, r.pending)
	return out
}

func (r *RecommendationEngine) evictExpired() {
	cutoff := time.Now().Add(-r.retention)
	kept := r.pending[:0]
	for _, rec := range r.pending {
		if rec.CreatedAt.After(cutoff) {
			kept = append(kept, rec)
		}
	}
	r.pending = kept
}

func (r *RecommendationEngine) runCycle() {
	snapshot := r.metrics.Snapshot(24 * time.Hour)
	var fresh []models.Recommendation

	if snapshot.MeanCostOverall > 0 && len(snapshot.MeanCostByBucket) > 1 {
		for bucket, cost := range snapshot.MeanCostByBucket {
			if bucket == models.BucketCheap && cost > snapshot.MeanCostOverall*0.5 {
				fresh = append(fresh, newRecommendation(models.RecommendationCost, "medium",
					fmt.Sprintf("cheap-bucket mean cost (%.4f) is unusually close to the overall mean; consider a stricter triage threshold", cost),
					"lower cheap-bucket spend without quality loss"))
			}
		}
	}

	if snapshot.WinRateOverall > 0 && snapshot.WinRateOverall < 0.80 {
		fresh = append(fresh, newRecommendation(models.RecommendationQuality, "high",
			fmt.Sprintf("overall win rate (%.2f) has dropped below 0.80", snapshot.WinRateOverall),
			"investigate triage threshold or candidate pool regression"))
	}

	if snapshot.P95LatencyMs > 2500 {
		fresh = append(fresh, newRecommendation(models.RecommendationPerformance, "medium",
			fmt.Sprintf("p95 latency (%.0fms) exceeds the 2500ms SLO target", snapshot.P95LatencyMs),
			"identify the slow provider/model pair and consider demoting it in candidate ranking"))
	}

	if snapshot.UniqueCooldownUsers > 10 {
		fresh = append(fresh, newRecommendation(models.RecommendationConfiguration, "low",
			fmt.Sprintf("%d users are currently in an Anthropic cooldown window", snapshot.UniqueCooldownUsers),
			"consider raising Anthropic rate limit headroom or adjusting cooldown duration"))
	}

	if len(fresh) == 0 {
		return
	}

	r.mu.Lock()
	r.pending = append(r.pending, fresh...)
	r.evictExpired()
	r.mu.Unlock()
	log.Info().Int("count", len(fresh)).Msg("recommendation engine emitted new recommendations")
}

func newRecommendation(kind models.RecommendationKind, priority, summary, impact string) models.Recommendation {
	return models.Recommendation{
		ID:             uuid.NewString(),
		Kind:           kind,
		Priority:       priority,
		Summary:        summary,
		ExpectedImpact: impact,
		CreatedAt:      time.Now(),
	}
}
