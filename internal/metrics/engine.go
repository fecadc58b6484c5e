// Package metrics implements the PostHook/Metrics Engine (§4.H): a bounded
// ring buffer of recent request outcomes plus the derived SLO and dashboard
// views the control plane and the read-only HTTP surface consult.
package metrics

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/routegate/gateway/internal/config"
	"github.com/routegate/gateway/pkg/models"
	"github.com/rs/zerolog/log"
)

// MaxRecords bounds the in-memory ring buffer per §3/§4.H.
const MaxRecords = 50_000

// SLOThresholds holds the overridable limits checkSLO evaluates against.
type SLOThresholds struct {
	P95LatencyMs        float64
	FailoverMisfireRate float64
	UptimeTarget        float64
	MeanCostPerTask     float64
	WinRateTarget       float64
}

// Engine owns the in-memory metric buffer exclusively (§3) and fans every
// accepted record out to disk (JSONL) and, best-effort, to a warehouse
// endpoint.
type Engine struct {
	mu      sync.RWMutex
	ring    []models.MetricRecord
	head    int
	filled  bool

	thresholds SLOThresholds
	logsPath   string

	warehouse  *warehouseEmitter
	store      Store
}

// Store is the optional durable persistence port (§10.5): a PostgresStore
// implementation is selected when DATABASE_URL is set, otherwise record
// persistence is file-only.
type Store interface {
	SaveRecord(ctx context.Context, r models.MetricRecord) error
}

// New builds a metrics engine. store may be nil (file-only persistence).
func New(cfg config.MetricsConfig, slo SLOThresholds, store Store) *Engine {
	e := &Engine{
		ring:       make([]models.MetricRecord, 0, MaxRecords),
		thresholds: slo,
		logsPath:   cfg.LogsPath,
		store:      store,
	}
	if cfg.WarehouseURL != "" {
		e.warehouse = newWarehouseEmitter(cfg.WarehouseURL)
	}
	return e
}

// Record appends one outcome to the ring buffer, drops the oldest entry on
// overflow, appends a JSON line to the logs file, and best-effort emits to
// the warehouse. Never blocks on emission failure.
func (e *Engine) Record(ctx context.Context, r models.MetricRecord) {
	e.mu.Lock()
	if len(e.ring) < MaxRecords {
		e.ring = append(e.ring, r)
	} else {
		e.ring[e.head] = r
		e.head = (e.head + 1) % MaxRecords
		e.filled = true
	}
	e.mu.Unlock()

	if err := e.appendJSONL(r); err != nil {
		log.Warn().Err(err).Msg("failed to persist metric record to disk")
	}
	if e.store != nil {
		if err := e.store.SaveRecord(ctx, r); err != nil {
			log.Warn().Err(err).Msg("failed to persist metric record to durable store")
		}
	}
	if e.warehouse != nil {
		e.warehouse.emit(r)
	}
}

func (e *Engine) appendJSONL(r models.MetricRecord) error {
	if e.logsPath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(e.logsPath), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(e.logsPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	line, err := json.Marshal(r)
	if err != nil {
		return err
	}
	_, err = f.Write(append(line, '\n'))
	return err
}

// RecordsForTraining returns the full in-memory buffer for the Tuning
// Pipeline to sample from (the file/warehouse copies are this same data's
// durable substrate, not an additional source).
func (e *Engine) RecordsForTraining() []models.MetricRecord {
	return e.all()
}

// all returns a copy of the currently-held records in chronological order.
func (e *Engine) all() []models.MetricRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.filled {
		out := make([]models.MetricRecord, len(e.ring))
		copy(out, e.ring)
		return out
	}
	out := make([]models.MetricRecord, 0, MaxRecords)
	out = append(out, e.ring[e.head:]...)
	out = append(out, e.ring[:e.head]...)
	return out
}

func windowOrDefault(window time.Duration) time.Duration {
	const (
		defaultWindow = 24 * time.Hour
		minWindow     = 5 * time.Minute
	)
	if window <= 0 {
		return defaultWindow
	}
	if window < minWindow {
		return minWindow
	}
	return window
}

func inWindow(records []models.MetricRecord, window time.Duration) []models.MetricRecord {
	cutoff := time.Now().Add(-window)
	out := make([]models.MetricRecord, 0, len(records))
	for _, r := range records {
		if r.Timestamp.After(cutoff) {
			out = append(out, r)
		}
	}
	return out
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	idx := int(p * float64(len(sorted)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
