package controlplane

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/routegate/gateway/internal/artifact"
	"github.com/routegate/gateway/internal/config"
	"github.com/routegate/gateway/internal/notify"
	"github.com/routegate/gateway/pkg/models"
)

type fakeCatalogSource struct {
	entries []models.ModelCatalogEntry
	err     error
}

func (f *fakeCatalogSource) Kind() string { return "fake" }
func (f *fakeCatalogSource) FetchCatalog(ctx context.Context) ([]models.ModelCatalogEntry, error) {
	return f.entries, f.err
}

func TestCatalogRefresher_FullRefreshStoresSnapshot(t *testing.T) {
	src := &fakeCatalogSource{entries: []models.ModelCatalogEntry{
		{Slug: "openai/gpt-5", InputPricePer1K: 0.01},
	}}
	store := artifact.NewStore(config.ArtifactConfig{})
	driver := &recordingDriver{}
	c := NewCatalogRefresher(src, store, notify.NewService(driver), time.Hour)

	c.Refresh(context.Background())

	got := c.Current()
	if len(got) != 1 || got[0].Slug != "openai/gpt-5" {
		t.Errorf("Current() = %+v, want one entry for openai/gpt-5", got)
	}
}

func TestCatalogRefresher_FetchErrorKeepsPreviousSnapshot(t *testing.T) {
	src := &fakeCatalogSource{entries: []models.ModelCatalogEntry{{Slug: "openai/gpt-5", InputPricePer1K: 0.01}}}
	store := artifact.NewStore(config.ArtifactConfig{})
	c := NewCatalogRefresher(src, store, notify.NewService(&recordingDriver{}), time.Hour)
	c.Refresh(context.Background())

	src.err = errors.New("upstream unreachable")
	c.Refresh(context.Background())

	got := c.Current()
	if len(got) != 1 {
		t.Errorf("expected the prior snapshot to survive a failed refresh, got %+v", got)
	}
}

func TestCatalogRefresher_SignificantPriceChangeInvalidatesArtifact(t *testing.T) {
	src := &fakeCatalogSource{entries: []models.ModelCatalogEntry{{Slug: "openai/gpt-5", InputPricePer1K: 0.01}}}
	store := artifact.NewStore(config.ArtifactConfig{}) // no URL: reload will fail and page
	driver := &recordingDriver{}
	c := NewCatalogRefresher(src, store, notify.NewService(driver), time.Hour)
	c.Refresh(context.Background())

	// Price triples: magnitude 2.0 >= significantChangeMagnitude (0.3).
	src.entries = []models.ModelCatalogEntry{{Slug: "openai/gpt-5", InputPricePer1K: 0.03}}
	c.Refresh(context.Background())

	if len(driver.events) != 1 {
		t.Fatalf("events len = %d, want 1 (reload fails with no store URL, so it should page)", len(driver.events))
	}
	if driver.events[0].Type != "artifact_degraded" {
		t.Errorf("event type = %q, want artifact_degraded", driver.events[0].Type)
	}
}

func TestCatalogRefresher_InsignificantChangeDoesNotInvalidate(t *testing.T) {
	src := &fakeCatalogSource{entries: []models.ModelCatalogEntry{{Slug: "openai/gpt-5", InputPricePer1K: 0.01}}}
	store := artifact.NewStore(config.ArtifactConfig{})
	driver := &recordingDriver{}
	c := NewCatalogRefresher(src, store, notify.NewService(driver), time.Hour)
	c.Refresh(context.Background())

	src.entries = []models.ModelCatalogEntry{{Slug: "openai/gpt-5", InputPricePer1K: 0.0101}} // 1% change
	c.Refresh(context.Background())

	if len(driver.events) != 0 {
		t.Error("expected no invalidation/paging for a sub-threshold price change")
	}
}

func TestDiffCatalog_ComputesMagnitudeAcrossTrackedFields(t *testing.T) {
	previous := map[string]models.ModelCatalogEntry{
		"openai/gpt-5": {Slug: "openai/gpt-5", InputPricePer1K: 0.01, ContextWindow: 128_000},
	}
	current := []models.ModelCatalogEntry{
		{Slug: "openai/gpt-5", InputPricePer1K: 0.02, ContextWindow: 256_000},
	}
	changes := diffCatalog(previous, current)
	if len(changes) != 2 {
		t.Fatalf("len(changes) = %d, want 2 (price + context window)", len(changes))
	}
}

func TestDiffCatalog_NewEntryWithNoPriorProducesNoChange(t *testing.T) {
	current := []models.ModelCatalogEntry{{Slug: "brand/new-model", InputPricePer1K: 0.01}}
	changes := diffCatalog(map[string]models.ModelCatalogEntry{}, current)
	if len(changes) != 0 {
		t.Errorf("expected no changes for a model absent from the previous snapshot, got %+v", changes)
	}
}

func TestNextOccurrence_MalformedInputDefaultsToOneDay(t *testing.T) {
	d := nextOccurrence("not-a-time")
	if d != 24*time.Hour {
		t.Errorf("nextOccurrence(malformed) = %v, want 24h", d)
	}
}

func TestNextOccurrence_ReturnsPositiveDurationForValidTime(t *testing.T) {
	d := nextOccurrence("03:30")
	if d <= 0 || d > 24*time.Hour {
		t.Errorf("nextOccurrence(03:30) = %v, want in (0, 24h]", d)
	}
}
