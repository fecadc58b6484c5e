package controlplane

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/routegate/gateway/internal/artifact"
	"github.com/routegate/gateway/internal/metrics"
	"github.com/routegate/gateway/pkg/contracts"
	"github.com/routegate/gateway/pkg/models"
	"github.com/rs/zerolog/log"
)

// minTuningSampleCount rejects a tuning run with too few records to be
// statistically meaningful (§4.I).
const minTuningSampleCount = 1000

// TuningPipeline runs weekly, reading accumulated metric records and
// invoking an injected TrainingRunner — the control plane never trains or
// shells out directly.
type TuningPipeline struct {
	runner  contracts.TrainingRunner
	metrics *metrics.Engine
	canary  *CanaryManager
	store   *artifact.Store

	running int32
	stopCh  chan struct{}
}

func NewTuningPipeline(runner contracts.TrainingRunner, m *metrics.Engine, canary *CanaryManager, store *artifact.Store) *TuningPipeline {
	return &TuningPipeline{runner: runner, metrics: m, canary: canary, store: store, stopCh: make(chan struct{})}
}

func (p *TuningPipeline) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.runCycle(ctx)
			}
		}
	}()
}

func (p *TuningPipeline) Stop() { close(p.stopCh) }

// runCycle skips the run entirely if another is already in progress (§4.I).
func (p *TuningPipeline) runCycle(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&p.running, 0, 1) {
		log.Debug().Msg("tuning pipeline run skipped: previous run still in progress")
		return
	}
	defer atomic.StoreInt32(&p.running, 0)

	if p.runner == nil {
		return
	}

	records := p.metrics.RecordsForTraining()
	if len(records) < minTuningSampleCount {
		log.Info().Int("count", len(records)).Msg("tuning run rejected: insufficient sample count")
		return
	}

	balanced := balanceByBucket(records)

	result, err := p.runner.Train(ctx, balanced)
	if err != nil {
		log.Error().Err(err).Msg("training run failed")
		return
	}

	candidate := &models.Artifact{
		Version:          result.ArtifactVersion,
		Alpha:            result.Alpha,
		Thresholds:       result.Thresholds,
		Penalties:        result.Penalties,
		QHat:             result.QHat,
		CHat:             result.CHat,
		GBDT:             result.GBDT,
		Centroids:        result.Centroids,
		NumClusters:      result.NumClusters,
		BucketCandidates: result.BucketCandidates,
	}

	log.Info().Str("version", candidate.Version).Int("samples", len(balanced)).Msg("tuning run produced a new artifact candidate, starting canary")
	p.canary.StartRollout(candidate)
}

// balanceByBucket down-samples the larger buckets to the smallest bucket's
// count so the training run sees a roughly even distribution.
func balanceByBucket(records []models.MetricRecord) []models.MetricRecord {
	byBucket := map[models.Bucket][]models.MetricRecord{}
	for _, r := range records {
		byBucket[r.Bucket] = append(byBucket[r.Bucket], r)
	}

	minCount := -1
	for _, rs := range byBucket {
		if minCount == -1 || len(rs) < minCount {
			minCount = len(rs)
		}
	}
	if minCount <= 0 {
		return records
	}

	var balanced []models.MetricRecord
	for _, rs := range byBucket {
		if len(rs) > minCount {
			rs = rs[:minCount]
		}
		balanced = append(balanced, rs...)
	}
	return balanced
}
