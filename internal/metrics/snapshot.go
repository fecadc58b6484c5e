package metrics

import (
	"time"

	"github.com/routegate/gateway/pkg/models"
)

// Snapshot computes the dashboard view over the given window (default 24h,
// floor 5m) per §4.H.
func (e *Engine) Snapshot(window time.Duration) models.DashboardMetrics {
	window = windowOrDefault(window)
	records := inWindow(e.all(), window)

	out := models.DashboardMetrics{
		WindowMs:           window.Milliseconds(),
		RouteShareByBucket: map[models.Bucket]float64{},
		MeanCostByBucket:   map[models.Bucket]float64{},
		P95CostByBucket:    map[models.Bucket]float64{},
		LatencyByProvider:  map[models.ProviderKind]float64{},
		WinRateByBucket:    map[models.Bucket]float64{},
	}
	if len(records) == 0 {
		out.SLO = e.checkSLOAgainst(nil)
		return out
	}

	byBucket := map[models.Bucket][]models.MetricRecord{}
	byProvider := map[models.ProviderKind][]models.MetricRecord{}
	var allLatency, allCost []float64
	var anthropicCalls, anthropic429s int
	var recent429 int
	cooldownUsers := map[string]struct{}{}
	var winSum float64
	var winCount int
	hourCutoff := time.Now().Add(-time.Hour)

	for _, r := range records {
		byBucket[r.Bucket] = append(byBucket[r.Bucket], r)
		byProvider[r.Provider] = append(byProvider[r.Provider], r)
		allLatency = append(allLatency, float64(r.ExecutionTimeMs))
		allCost = append(allCost, r.CostEstimate)

		if r.Provider == models.ProviderAnthropic && r.ErrorKind != models.ErrRateLimitCooldown {
			anthropicCalls++
			if r.Anthropic429 {
				anthropic429s++
				if r.Timestamp.After(hourCutoff) {
					recent429++
				}
			}
		}
		if r.ErrorKind == models.ErrRateLimitCooldown && r.UserID != "" {
			cooldownUsers[r.UserID] = struct{}{}
		}
		if r.WinRateVsBaseline != nil {
			winSum += *r.WinRateVsBaseline
			winCount++
		}
	}

	for bucket, rs := range byBucket {
		out.RouteShareByBucket[bucket] = float64(len(rs)) / float64(len(records))
		var costs []float64
		var winTotal float64
		var winN int
		for _, r := range rs {
			costs = append(costs, r.CostEstimate)
			if r.WinRateVsBaseline != nil {
				winTotal += *r.WinRateVsBaseline
				winN++
			}
		}
		out.MeanCostByBucket[bucket] = mean(costs)
		out.P95CostByBucket[bucket] = percentile(costs, 0.95)
		if winN > 0 {
			out.WinRateByBucket[bucket] = winTotal / float64(winN)
		}
	}

	for provider, rs := range byProvider {
		var latencies []float64
		var successes int
		var lastSuccess time.Time
		for _, r := range rs {
			latencies = append(latencies, float64(r.ExecutionTimeMs))
			if r.Success {
				successes++
				if r.Timestamp.After(lastSuccess) {
					lastSuccess = r.Timestamp
				}
			}
		}
		out.LatencyByProvider[provider] = mean(latencies)
		out.ProviderHealth = append(out.ProviderHealth, models.ProviderHealth{
			Provider:      provider,
			Availability:  float64(successes) / float64(len(rs)),
			AvgLatencyMs:  mean(latencies),
			ErrorRate:     1 - float64(successes)/float64(len(rs)),
			LastSuccessAt: lastSuccess,
		})
	}

	out.MeanCostOverall = mean(allCost)
	out.P95CostOverall = percentile(allCost, 0.95)
	out.MeanLatencyMs = mean(allLatency)
	out.P95LatencyMs = percentile(allLatency, 0.95)
	out.P99LatencyMs = percentile(allLatency, 0.99)
	if anthropicCalls > 0 {
		out.Anthropic429Rate = float64(anthropic429s) / float64(anthropicCalls)
	}
	out.Recent429Count = recent429
	out.UniqueCooldownUsers = len(cooldownUsers)
	if winCount > 0 {
		out.WinRateOverall = winSum / float64(winCount)
	}
	out.HourlyTrend = hourlyTrend(records)
	out.SLO = e.checkSLOAgainst(records)
	return out
}

// hourlyTrend buckets records into the last 24 hourly slots (most-recent-last)
// and reports the mean win rate per slot.
func hourlyTrend(records []models.MetricRecord) []float64 {
	const slots = 24
	sums := make([]float64, slots)
	counts := make([]int, slots)
	now := time.Now()

	for _, r := range records {
		age := now.Sub(r.Timestamp)
		slot := slots - 1 - int(age.Hours())
		if slot < 0 || slot >= slots || r.WinRateVsBaseline == nil {
			continue
		}
		sums[slot] += *r.WinRateVsBaseline
		counts[slot]++
	}

	trend := make([]float64, slots)
	for i := range trend {
		if counts[i] > 0 {
			trend[i] = sums[i] / float64(counts[i])
		}
	}
	return trend
}

// CheckSLO evaluates the configured thresholds over the given window.
func (e *Engine) CheckSLO(window time.Duration) models.SLOStatus {
	return e.checkSLOAgainst(inWindow(e.all(), windowOrDefault(window)))
}

// WindowStageMetrics summarizes raw records since `since` into the shape
// the Canary Rollout state machine compares stage-over-stage (§4.I).
func (e *Engine) WindowStageMetrics(since time.Time) models.StageMetrics {
	var records []models.MetricRecord
	for _, r := range e.all() {
		if r.Timestamp.After(since) {
			records = append(records, r)
		}
	}
	if len(records) == 0 {
		return models.StageMetrics{}
	}

	var latencies, costs []float64
	var failed int
	var winTotal float64
	var winCount int
	for _, r := range records {
		latencies = append(latencies, float64(r.ExecutionTimeMs))
		costs = append(costs, r.CostEstimate)
		if !r.Success {
			failed++
		}
		if r.WinRateVsBaseline != nil {
			winTotal += *r.WinRateVsBaseline
			winCount++
		}
	}

	winRate := 0.0
	if winCount > 0 {
		winRate = winTotal / float64(winCount)
	}

	return models.StageMetrics{
		Samples:   int64(len(records)),
		ErrorRate: float64(failed) / float64(len(records)),
		WinRate:   winRate,
		CostUSD:   mean(costs),
		LatencyMs: mean(latencies),
	}
}

func (e *Engine) checkSLOAgainst(records []models.MetricRecord) models.SLOStatus {
	status := models.SLOStatus{Compliant: true}
	if len(records) == 0 {
		return status
	}

	var latencies, costs []float64
	var failovers, failed, winTotal float64
	var winCount, total int
	for _, r := range records {
		latencies = append(latencies, float64(r.ExecutionTimeMs))
		costs = append(costs, r.CostEstimate)
		total++
		if r.FallbackUsed {
			failovers++
			if !r.Success {
				failed++
			}
		}
		if !r.Success {
			failed++
		}
		if r.WinRateVsBaseline != nil {
			winTotal += *r.WinRateVsBaseline
			winCount++
		}
	}

	p95 := percentile(latencies, 0.95)
	if p95 > e.thresholds.P95LatencyMs {
		status.Violations = append(status.Violations, models.SLOViolation{Metric: "p95_latency_ms", Threshold: e.thresholds.P95LatencyMs, Observed: p95})
	}

	misfireRate := 0.0
	if failovers > 0 {
		misfireRate = failed / failovers
	}
	if misfireRate > e.thresholds.FailoverMisfireRate {
		status.Violations = append(status.Violations, models.SLOViolation{Metric: "failover_misfire_rate", Threshold: e.thresholds.FailoverMisfireRate, Observed: misfireRate})
	}

	uptime := 1 - float64(countFailures(records))/float64(total)
	if uptime < e.thresholds.UptimeTarget {
		status.Violations = append(status.Violations, models.SLOViolation{Metric: "uptime", Threshold: e.thresholds.UptimeTarget, Observed: uptime})
	}

	meanCost := mean(costs)
	if meanCost > e.thresholds.MeanCostPerTask {
		status.Violations = append(status.Violations, models.SLOViolation{Metric: "mean_cost_per_task", Threshold: e.thresholds.MeanCostPerTask, Observed: meanCost})
	}

	if winCount > 0 {
		winRate := winTotal / float64(winCount)
		if winRate < e.thresholds.WinRateTarget {
			status.Violations = append(status.Violations, models.SLOViolation{Metric: "win_rate", Threshold: e.thresholds.WinRateTarget, Observed: winRate})
		}
	}

	status.Compliant = len(status.Violations) == 0
	return status
}

func countFailures(records []models.MetricRecord) int {
	n := 0
	for _, r := range records {
		if !r.Success {
			n++
		}
	}
	return n
}

// DeploymentReadiness reports whether the current SLO/error posture over
// the last hour permits a canary to proceed or a deployment to be marked
// healthy.
func (e *Engine) DeploymentReadiness() models.DeploymentReadiness {
	records := inWindow(e.all(), time.Hour)
	readiness := models.DeploymentReadiness{Ready: true}

	if len(records) == 0 {
		readiness.Warnings = append(readiness.Warnings, "no traffic observed in the last hour")
		return readiness
	}

	slo := e.checkSLOAgainst(records)
	for _, v := range slo.Violations {
		readiness.Blockers = append(readiness.Blockers, v.Metric+" violated")
	}

	if len(records) < 50 {
		readiness.Warnings = append(readiness.Warnings, "low sample count in the last hour")
	}

	readiness.Ready = len(readiness.Blockers) == 0
	return readiness
}
