package controlplane

import (
	"context"
	"errors"
	"testing"

	"github.com/routegate/gateway/internal/artifact"
	"github.com/routegate/gateway/internal/config"
	"github.com/routegate/gateway/internal/metrics"
	"github.com/routegate/gateway/pkg/contracts"
	"github.com/routegate/gateway/pkg/models"
)

type fakeTrainingRunner struct {
	result     *contracts.TrainingRunnerResult
	err        error
	gotRecords []models.MetricRecord
}

func (f *fakeTrainingRunner) Train(ctx context.Context, records []models.MetricRecord) (*contracts.TrainingRunnerResult, error) {
	f.gotRecords = records
	return f.result, f.err
}

func newTuningRecords(n int, bucket models.Bucket) []models.MetricRecord {
	out := make([]models.MetricRecord, n)
	for i := range out {
		out[i] = models.MetricRecord{Bucket: bucket, Success: true}
	}
	return out
}

func TestTuningPipeline_RejectsBelowMinimumSampleCount(t *testing.T) {
	runner := &fakeTrainingRunner{result: &contracts.TrainingRunnerResult{ArtifactVersion: "v2"}}
	eng := metrics.New(config.MetricsConfig{}, metrics.SLOThresholds{}, nil)
	for _, r := range newTuningRecords(500, models.BucketCheap) {
		eng.Record(context.Background(), r)
	}
	canary := NewCanaryManager(eng, artifact.NewStore(config.ArtifactConfig{}), nil, 1, 0)
	p := NewTuningPipeline(runner, eng, canary, artifact.NewStore(config.ArtifactConfig{}))

	p.runCycle(context.Background())

	if runner.gotRecords != nil {
		t.Error("expected Train not to be called below the minimum sample count")
	}
}

func TestTuningPipeline_StartsCanaryOnSuccessfulTrainingRun(t *testing.T) {
	runner := &fakeTrainingRunner{result: &contracts.TrainingRunnerResult{
		ArtifactVersion: "v3",
		Alpha:           0.6,
		NumClusters:     1,
		QHat:            map[string][]float64{"openai/gpt-5": {0.5}},
		CHat:            map[string]float64{"openai/gpt-5": 0.5},
	}}
	eng := metrics.New(config.MetricsConfig{}, metrics.SLOThresholds{}, nil)
	for _, r := range newTuningRecords(1200, models.BucketCheap) {
		eng.Record(context.Background(), r)
	}
	canary := NewCanaryManager(eng, artifact.NewStore(config.ArtifactConfig{}), nil, 1, 0)
	p := NewTuningPipeline(runner, eng, canary, artifact.NewStore(config.ArtifactConfig{}))

	p.runCycle(context.Background())

	cur := canary.Current()
	if cur == nil {
		t.Fatal("expected the tuning run to start a canary rollout")
	}
	if cur.ArtifactVersion != "v3" {
		t.Errorf("ArtifactVersion = %q, want v3", cur.ArtifactVersion)
	}
}

func TestTuningPipeline_TrainingFailureStartsNoCanary(t *testing.T) {
	runner := &fakeTrainingRunner{err: errors.New("training backend unavailable")}
	eng := metrics.New(config.MetricsConfig{}, metrics.SLOThresholds{}, nil)
	for _, r := range newTuningRecords(1200, models.BucketCheap) {
		eng.Record(context.Background(), r)
	}
	canary := NewCanaryManager(eng, artifact.NewStore(config.ArtifactConfig{}), nil, 1, 0)
	p := NewTuningPipeline(runner, eng, canary, artifact.NewStore(config.ArtifactConfig{}))

	p.runCycle(context.Background())

	if canary.Current() != nil {
		t.Error("expected no canary rollout after a training failure")
	}
}

func TestTuningPipeline_NilRunnerIsNoOp(t *testing.T) {
	eng := metrics.New(config.MetricsConfig{}, metrics.SLOThresholds{}, nil)
	for _, r := range newTuningRecords(1200, models.BucketCheap) {
		eng.Record(context.Background(), r)
	}
	canary := NewCanaryManager(eng, artifact.NewStore(config.ArtifactConfig{}), nil, 1, 0)
	p := NewTuningPipeline(nil, eng, canary, artifact.NewStore(config.ArtifactConfig{}))

	p.runCycle(context.Background()) // must not panic
	if canary.Current() != nil {
		t.Error("expected no canary rollout with a nil runner")
	}
}

func TestBalanceByBucket_DownsamplesToSmallestBucket(t *testing.T) {
	records := append(newTuningRecords(10, models.BucketCheap), newTuningRecords(3, models.BucketHard)...)
	balanced := balanceByBucket(records)

	counts := map[models.Bucket]int{}
	for _, r := range balanced {
		counts[r.Bucket]++
	}
	if counts[models.BucketCheap] != 3 || counts[models.BucketHard] != 3 {
		t.Errorf("counts = %+v, want both buckets downsampled to 3", counts)
	}
}

func TestBalanceByBucket_EmptyInputReturnsEmpty(t *testing.T) {
	if got := balanceByBucket(nil); len(got) != 0 {
		t.Errorf("balanceByBucket(nil) = %v, want empty", got)
	}
}
