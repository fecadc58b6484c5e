package controlplane

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/routegate/gateway/internal/artifact"
	"github.com/routegate/gateway/internal/notify"
	"github.com/routegate/gateway/pkg/contracts"
	"github.com/routegate/gateway/pkg/models"
	"github.com/rs/zerolog/log"
)

// significantChangeMagnitude is the diff magnitude above which a single
// catalog field change counts toward artifact invalidation (§4.I).
const significantChangeMagnitude = 0.3

// driftFullRefreshMagnitude is the drift-check magnitude that schedules an
// immediate full refresh rather than waiting for the nightly cycle.
const driftFullRefreshMagnitude = 0.5

// maxBackupArtifacts bounds the demoted-artifact backup list (§4.I).
const maxBackupArtifacts = 3

// wellKnownDriftModels are the five models the lighter drift check samples.
var wellKnownDriftModels = []string{
	"openai/gpt-5", "anthropic/claude-opus-4", "google/gemini-2.5-pro",
	"openai/gpt-5-mini", "anthropic/claude-haiku-4",
}

// CatalogRefresher drives the nightly full refresh and 6h drift check over
// its own injected contracts.CatalogSource. A failed fetch leaves the
// previous in-memory snapshot in place; there is no on-disk catalog cache.
type CatalogRefresher struct {
	source   contracts.CatalogSource
	store    *artifact.Store
	notifier *notify.Service

	driftInterval time.Duration

	mu       sync.Mutex
	previous map[string]models.ModelCatalogEntry
	backups  []*models.Artifact

	stopCh chan struct{}
}

func NewCatalogRefresher(source contracts.CatalogSource, store *artifact.Store, notifier *notify.Service, driftInterval time.Duration) *CatalogRefresher {
	return &CatalogRefresher{
		source:        source,
		store:         store,
		notifier:      notifier,
		driftInterval: driftInterval,
		previous:      make(map[string]models.ModelCatalogEntry),
		stopCh:        make(chan struct{}),
	}
}

// Start runs the drift-check ticker; the nightly full refresh is scheduled
// by computing the delay to the next configured UTC time and re-arming
// after each run.
func (c *CatalogRefresher) Start(ctx context.Context, fullRefreshUTC string) {
	go c.runDriftLoop(ctx)
	go c.runNightlyLoop(ctx, fullRefreshUTC)
}

func (c *CatalogRefresher) Stop() { close(c.stopCh) }

// Refresh performs one synchronous full refresh, used to populate the
// catalog snapshot at startup before the nightly/drift loops take over.
func (c *CatalogRefresher) Refresh(ctx context.Context) { c.fullRefresh(ctx) }

// Current returns the most recently fetched catalog snapshot, consulted by
// the Context Guardrail for its largest-window emergency recommendation.
func (c *CatalogRefresher) Current() []models.ModelCatalogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return values(c.previous)
}

func (c *CatalogRefresher) runDriftLoop(ctx context.Context) {
	ticker := time.NewTicker(c.driftInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.driftCheck(ctx)
		}
	}
}

func (c *CatalogRefresher) runNightlyLoop(ctx context.Context, fullRefreshUTC string) {
	for {
		delay := nextOccurrence(fullRefreshUTC)
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-time.After(delay):
			c.fullRefresh(ctx)
		}
	}
}

// fullRefresh pulls the current catalog, diffs against the previous
// snapshot, and invalidates the artifact if a significant change occurred.
func (c *CatalogRefresher) fullRefresh(ctx context.Context) {
	if c.source == nil {
		return
	}
	entries, err := c.source.FetchCatalog(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("catalog refresh failed, keeping last known snapshot")
		return
	}

	c.mu.Lock()
	changes := diffCatalog(c.previous, entries)
	c.previous = indexBySlug(entries)
	c.mu.Unlock()

	significant := 0
	for _, ch := range changes {
		if ch.Magnitude >= significantChangeMagnitude {
			significant++
		}
	}
	if significant > 0 {
		log.Info().Int("significant_changes", significant).Msg("catalog drift triggered artifact invalidation")
		c.invalidateArtifact(ctx)
	}
}

// driftCheck samples five well-known models; a magnitude ≥ 0.5 schedules an
// immediate full refresh rather than waiting for the nightly cycle.
func (c *CatalogRefresher) driftCheck(ctx context.Context) {
	if c.source == nil {
		return
	}
	entries, err := c.source.FetchCatalog(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("catalog drift check failed")
		return
	}

	sample := make(map[string]models.ModelCatalogEntry, len(wellKnownDriftModels))
	for _, e := range entries {
		for _, slug := range wellKnownDriftModels {
			if e.Slug == slug {
				sample[slug] = e
			}
		}
	}

	c.mu.Lock()
	changes := diffCatalog(c.previous, values(sample))
	c.mu.Unlock()

	for _, ch := range changes {
		if ch.Magnitude >= driftFullRefreshMagnitude {
			log.Warn().Str("slug", ch.Slug).Float64("magnitude", ch.Magnitude).Msg("drift check found large deviation, scheduling full refresh")
			go c.fullRefresh(ctx)
			return
		}
	}
}

func (c *CatalogRefresher) invalidateArtifact(ctx context.Context) {
	c.mu.Lock()
	if current := c.store.Current(); current != nil {
		c.backups = append(c.backups, current)
		if len(c.backups) > maxBackupArtifacts {
			c.backups = c.backups[len(c.backups)-maxBackupArtifacts:]
		}
	}
	c.mu.Unlock()

	if _, err := c.store.Load(ctx, true); err != nil {
		log.Error().Err(err).Msg("artifact reload after catalog invalidation failed")
		c.notifier.Emergency(ctx, "artifact_degraded", "artifact reload failed after catalog invalidation", map[string]interface{}{"error": err.Error()})
	}
}

func indexBySlug(entries []models.ModelCatalogEntry) map[string]models.ModelCatalogEntry {
	out := make(map[string]models.ModelCatalogEntry, len(entries))
	for _, e := range entries {
		out[e.Slug] = e
	}
	return out
}

func values(m map[string]models.ModelCatalogEntry) []models.ModelCatalogEntry {
	out := make([]models.ModelCatalogEntry, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

// diffCatalog compares price and context-window fields between the
// previous snapshot and the newly fetched entries.
func diffCatalog(previous map[string]models.ModelCatalogEntry, current []models.ModelCatalogEntry) []models.CatalogChange {
	var changes []models.CatalogChange
	for _, entry := range current {
		prev, ok := previous[entry.Slug]
		if !ok {
			continue
		}
		changes = append(changes, fieldChange(entry.Slug, "input_price_per_1k", prev.InputPricePer1K, entry.InputPricePer1K)...)
		changes = append(changes, fieldChange(entry.Slug, "output_price_per_1k", prev.OutputPricePer1K, entry.OutputPricePer1K)...)
		changes = append(changes, fieldChange(entry.Slug, "context_window", float64(prev.ContextWindow), float64(entry.ContextWindow))...)
	}
	return changes
}

func fieldChange(slug, field string, old, new float64) []models.CatalogChange {
	if old == 0 {
		return nil
	}
	magnitude := math.Abs(new-old) / old
	if magnitude == 0 {
		return nil
	}
	return []models.CatalogChange{{Slug: slug, Field: field, OldValue: old, NewValue: new, Magnitude: magnitude}}
}

// nextOccurrence computes the delay until the next UTC "HH:MM" occurrence.
func nextOccurrence(hhmm string) time.Duration {
	now := time.Now().UTC()
	var hour, minute int
	if _, err := fmt.Sscanf(hhmm, "%d:%d", &hour, &minute); err != nil {
		return 24 * time.Hour
	}
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next.Sub(now)
}
