package controlplane

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/routegate/gateway/internal/artifact"
	"github.com/routegate/gateway/internal/config"
	"github.com/routegate/gateway/internal/metrics"
	"github.com/routegate/gateway/internal/notify"
	"github.com/routegate/gateway/pkg/contracts"
	"github.com/routegate/gateway/pkg/models"
)

func validArtifactForCanaryTest() *models.Artifact {
	return &models.Artifact{
		Version:     "v-good",
		Alpha:       0.5,
		NumClusters: 1,
		Thresholds:  models.Thresholds{Cheap: 0.3, Hard: 0.7},
		QHat:        map[string][]float64{"openai/gpt-5": {0.8}},
		CHat:        map[string]float64{"openai/gpt-5": 0.5},
		BucketCandidates: map[models.Bucket][]string{
			models.BucketMid: {"openai/gpt-5"},
		},
	}
}

func writeArtifactFile(t *testing.T, path string, a *models.Artifact) {
	t.Helper()
	data, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal artifact: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write artifact file: %v", err)
	}
}

type recordingDriver struct {
	events []contracts.NotificationEvent
}

func (d *recordingDriver) Kind() string { return "recording" }
func (d *recordingDriver) Send(ctx context.Context, event contracts.NotificationEvent) error {
	d.events = append(d.events, event)
	return nil
}

func rec(success bool, latencyMs int64, cost float64, winRate float64) models.MetricRecord {
	w := winRate
	return models.MetricRecord{
		Timestamp:         time.Now(),
		Provider:          models.ProviderOpenAI,
		Bucket:            models.BucketMid,
		Success:           success,
		ExecutionTimeMs:   latencyMs,
		CostEstimate:      cost,
		WinRateVsBaseline: &w,
	}
}

func newStageReadyManager(t *testing.T, storeURL string, driver *recordingDriver) (*CanaryManager, *metrics.Engine) {
	t.Helper()
	eng := metrics.New(config.MetricsConfig{}, metrics.SLOThresholds{}, nil)
	store := artifact.NewStore(config.ArtifactConfig{URL: storeURL, CacheDir: t.TempDir()})
	notifier := notify.NewService(driver)
	// minDuration=0 so progression gates on sample count and error/win thresholds only.
	return NewCanaryManager(eng, store, notifier, 3, 0), eng
}

func TestCanaryManager_StartRolloutInitializesFourStages(t *testing.T) {
	c, _ := newStageReadyManager(t, "", &recordingDriver{})
	c.StartRollout(&models.Artifact{Version: "v2"})

	cur := c.Current()
	if cur == nil {
		t.Fatal("expected a current rollout after StartRollout")
	}
	if len(cur.Stages) != 4 {
		t.Fatalf("len(Stages) = %d, want 4", len(cur.Stages))
	}
	if cur.Stages[0].TrafficPercent != 5 || cur.Stages[3].TrafficPercent != 100 {
		t.Errorf("stage traffic percents = %v", cur.Stages)
	}
	if cur.Status != models.CanaryRunning {
		t.Errorf("Status = %v, want running", cur.Status)
	}
}

func TestCanaryManager_StartRolloutIgnoredWhileOneIsRunning(t *testing.T) {
	c, _ := newStageReadyManager(t, "", &recordingDriver{})
	c.StartRollout(&models.Artifact{Version: "v2"})
	c.StartRollout(&models.Artifact{Version: "v3"})

	if c.Current().ArtifactVersion != "v2" {
		t.Errorf("ArtifactVersion = %q, want v2 (second start should be ignored)", c.Current().ArtifactVersion)
	}
}

func TestCanaryManager_EvaluateAdvancesStageWhenCriteriaMet(t *testing.T) {
	c, eng := newStageReadyManager(t, "", &recordingDriver{})
	c.StartRollout(&models.Artifact{Version: "v2"})

	for i := 0; i < 5; i++ {
		eng.Record(context.Background(), rec(true, 100, 0.01, 0.9))
	}

	c.evaluate(context.Background())

	cur := c.Current()
	if cur.CurrentStage != 1 {
		t.Fatalf("CurrentStage = %d, want 1 after passing stage 0", cur.CurrentStage)
	}
	passed := cur.Stages[0].Passed
	if passed == nil || !*passed {
		t.Error("expected stage 0 to be marked passed")
	}
}

func TestCanaryManager_EvaluateHoldsBelowMinSamples(t *testing.T) {
	c, eng := newStageReadyManager(t, "", &recordingDriver{})
	c.StartRollout(&models.Artifact{Version: "v2"})
	eng.Record(context.Background(), rec(true, 100, 0.01, 0.9))

	c.evaluate(context.Background())
	if c.Current().CurrentStage != 0 {
		t.Error("expected stage to hold with only 1 sample against a minimum of 3")
	}
}

func TestCanaryManager_EvaluateCompletesOnFinalStage(t *testing.T) {
	c, eng := newStageReadyManager(t, "", &recordingDriver{})
	c.StartRollout(&models.Artifact{Version: "v2"})
	c.current.CurrentStage = 3
	c.current.Stages[3].StartedAt = time.Now()

	for i := 0; i < 5; i++ {
		eng.Record(context.Background(), rec(true, 100, 0.01, 0.9))
	}
	c.evaluate(context.Background())

	if c.Current().Status != models.CanaryCompleted {
		t.Errorf("Status = %v, want completed", c.Current().Status)
	}
}

func TestCanaryManager_EvaluateRollsBackOnHighErrorRate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "good.json")
	writeArtifactFile(t, path, validArtifactForCanaryTest())

	driver := &recordingDriver{}
	c, eng := newStageReadyManager(t, path, driver)
	c.StartRollout(&models.Artifact{Version: "v2"})

	for i := 0; i < 5; i++ {
		eng.Record(context.Background(), rec(false, 100, 0.01, 0.1))
	}
	c.evaluate(context.Background())

	if c.Current().Status != models.CanaryRolledBack {
		t.Errorf("Status = %v, want rolled_back", c.Current().Status)
	}
	if len(driver.events) != 0 {
		t.Error("a successful rollback restore should not page anyone")
	}
}

func TestCanaryManager_RollbackFailureNotifiesEmergencyAndMarksFailed(t *testing.T) {
	driver := &recordingDriver{}
	c, eng := newStageReadyManager(t, "", driver) // no URL: restoring a good artifact will fail
	c.StartRollout(&models.Artifact{Version: "v2"})

	for i := 0; i < 5; i++ {
		eng.Record(context.Background(), rec(false, 100, 0.01, 0.1))
	}
	c.evaluate(context.Background())

	if c.Current().Status != models.CanaryFailed {
		t.Errorf("Status = %v, want failed", c.Current().Status)
	}
	if len(driver.events) != 1 {
		t.Fatalf("events len = %d, want 1", len(driver.events))
	}
	if driver.events[0].Type != "canary_rollback_failed" {
		t.Errorf("event type = %q", driver.events[0].Type)
	}
}
