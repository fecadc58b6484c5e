// Package breaker holds the three process-wide tables the Provider
// Executor owns exclusively (§3, §5): per-(component,operation) circuit
// breakers, per-user Anthropic cooldowns, and the shared exponential-moving-
// average per-(provider,model) latency tracker the α-Score Selector also
// reads (§4.F) rather than keeping a second one.
package breaker

import (
	"sync"
	"time"

	"github.com/routegate/gateway/pkg/models"
)

// DefaultFailureThreshold and DefaultResetTimeout are the breaker defaults
// from §4.G, used when a caller constructs a Table with zero values.
const (
	DefaultFailureThreshold = 5
	DefaultResetTimeout     = 60 * time.Second
)

type breakerEntry struct {
	state              models.BreakerState
	consecutiveFailures int
	lastFailureTime     time.Time
}

// Table is the circuit-breaker store, one entry per (component, operation)
// key, guarded by a single mutex per §5 ("one mutex per key" — a sharded
// map is unnecessary at this scale).
type Table struct {
	failureThreshold int
	resetTimeout     time.Duration

	mu      sync.Mutex
	entries map[string]*breakerEntry
}

// NewTable creates a circuit-breaker table. Zero values fall back to the
// documented defaults (threshold 5, reset 60s).
func NewTable(failureThreshold int, resetTimeout time.Duration) *Table {
	if failureThreshold <= 0 {
		failureThreshold = DefaultFailureThreshold
	}
	if resetTimeout <= 0 {
		resetTimeout = DefaultResetTimeout
	}
	return &Table{
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		entries:          make(map[string]*breakerEntry),
	}
}

func key(component, operation string) string { return component + ":" + operation }

// Allow reports whether an operation may proceed, transitioning open→half_open
// once reset_timeout has elapsed (§4.G).
func (t *Table) Allow(component, operation string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.entry(component, operation)
	switch e.state {
	case models.BreakerOpen:
		if time.Since(e.lastFailureTime) > t.resetTimeout {
			e.state = models.BreakerHalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess transitions closed/half_open breakers back to closed and
// resets the failure counter.
func (t *Table) RecordSuccess(component, operation string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entry(component, operation)
	e.state = models.BreakerClosed
	e.consecutiveFailures = 0
}

// RecordFailure increments the consecutive-failure counter, tripping the
// breaker to open once the threshold is reached (or immediately, from
// half_open).
func (t *Table) RecordFailure(component, operation string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entry(component, operation)
	e.lastFailureTime = time.Now()

	if e.state == models.BreakerHalfOpen {
		e.state = models.BreakerOpen
		return
	}

	e.consecutiveFailures++
	if e.consecutiveFailures >= t.failureThreshold {
		e.state = models.BreakerOpen
	}
}

// State returns the current breaker state for diagnostics/tests.
func (t *Table) State(component, operation string) models.BreakerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entry(component, operation).state
}

func (t *Table) entry(component, operation string) *breakerEntry {
	k := key(component, operation)
	e, ok := t.entries[k]
	if !ok {
		e = &breakerEntry{state: models.BreakerClosed}
		t.entries[k] = e
	}
	return e
}
