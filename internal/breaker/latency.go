package breaker

import "sync"

// LatencyTable is the single exponential-moving-average per-(provider,model)
// latency tracker shared by the Provider Executor (recording) and the
// α-Score Selector (reading, for relative_latency_variance in §4.F) — the
// spec is explicit that these two components share one tracker rather than
// keeping two.
type LatencyTable struct {
	mu    sync.RWMutex
	emaMs map[string]float64
}

// NewLatencyTable creates an empty latency tracker.
func NewLatencyTable() *LatencyTable {
	return &LatencyTable{emaMs: make(map[string]float64)}
}

func latencyKey(provider, model string) string { return provider + "/" + model }

// Record folds a new observed latency into the tracked EMA with a 7:3
// prior-weighted blend.
func (l *LatencyTable) Record(provider, model string, latencyMs int64) {
	k := latencyKey(provider, model)
	l.mu.Lock()
	defer l.mu.Unlock()
	prev := l.emaMs[k]
	if prev == 0 {
		l.emaMs[k] = float64(latencyMs)
		return
	}
	l.emaMs[k] = (prev*7 + float64(latencyMs)*3) / 10
}

// EMA returns the current tracked latency for (provider, model), or 0 if
// nothing has been recorded yet.
func (l *LatencyTable) EMA(provider, model string) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.emaMs[latencyKey(provider, model)]
}

// RelativeVariance reports how far (provider, model)'s tracked latency sits
// above the mean tracked latency across all entries, as a fraction of the
// mean (0 if at or below the mean, or if no baseline exists yet). Used by
// the selector's penalty term.
func (l *LatencyTable) RelativeVariance(provider, model string) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.emaMs) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range l.emaMs {
		sum += v
	}
	mean := sum / float64(len(l.emaMs))
	if mean <= 0 {
		return 0
	}
	v := l.emaMs[latencyKey(provider, model)]
	if v <= mean {
		return 0
	}
	return (v - mean) / mean
}
