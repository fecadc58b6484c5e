// Package handlers implements the gateway's HTTP surface: the hot-path
// chat-completion pipeline (§4.A-H) and the read-only dashboard endpoints
// the Control Plane and Metrics Engine feed (§6).
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/routegate/gateway/internal/artifact"
	"github.com/routegate/gateway/internal/controlplane"
	"github.com/routegate/gateway/internal/executor"
	"github.com/routegate/gateway/internal/features"
	"github.com/routegate/gateway/internal/gatewayauth"
	"github.com/routegate/gateway/internal/guardrail"
	"github.com/routegate/gateway/internal/metrics"
	"github.com/routegate/gateway/internal/selector"
	"github.com/routegate/gateway/internal/triage"
	"github.com/routegate/gateway/pkg/models"
)

// Handlers bundles every pipeline stage plus the background control-plane
// handle the dashboard surface reads from.
type Handlers struct {
	authRegistry *gatewayauth.Registry
	artifacts    *artifact.Store
	features     *features.Extractor
	triage       *triage.Classifier
	guardrail    *guardrail.Guardrail
	selector     *selector.Selector
	executor     *executor.Executor
	metrics      *metrics.Engine
	controlPlane *controlplane.ControlPlane
	version      string
}

// New wires the nine-component pipeline into a Handlers value.
func New(
	authRegistry *gatewayauth.Registry,
	artifacts *artifact.Store,
	extractor *features.Extractor,
	classifier *triage.Classifier,
	guard *guardrail.Guardrail,
	sel *selector.Selector,
	exec *executor.Executor,
	metricsEngine *metrics.Engine,
	cp *controlplane.ControlPlane,
	version string,
) *Handlers {
	return &Handlers{
		authRegistry: authRegistry,
		artifacts:    artifacts,
		features:     extractor,
		triage:       classifier,
		guardrail:    guard,
		selector:     sel,
		executor:     exec,
		metrics:      metricsEngine,
		controlPlane: cp,
		version:      version,
	}
}

// ── Hot path ────────────────────────────────────────────────────

// ChatCompletions implements the request flow of §2: auth → features →
// triage → guardrail → selector → executor → metrics.
func (h *Handlers) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := chimw.GetReqID(ctx)

	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	auth, err := h.authRegistry.Authenticate(r.Header)
	if err != nil {
		writeGatewayError(w, models.ErrAuthMissing, err.Error())
		return
	}

	snapshot := h.artifacts.Current()
	if snapshot == nil {
		writeGatewayError(w, models.ErrArtifactUnavailable, "no routing artifact available")
		return
	}

	f := h.features.Extract(ctx, req, snapshot)
	probs := h.triage.Predict(f, snapshot)
	bucket := probs.Top()

	var available []models.ModelCatalogEntry
	if h.controlPlane != nil {
		available = h.controlPlane.Catalog.Current()
	}
	adj := h.guardrail.Adjust(bucket, f, available)
	bucket = adj.Bucket
	if adj.Escalated {
		log.Info().Str("request_id", requestID).Str("bucket", string(bucket)).Str("reason", adj.Reason).Msg("guardrail escalated bucket")
	}

	candidates := snapshot.BucketCandidates[bucket]
	if len(candidates) == 0 {
		candidates = allSlugs(snapshot.QHat)
	}

	model := adj.RecommendedModel
	if model == "" {
		model = h.selector.Select(requestID, candidates, f, snapshot)
	}
	if model == "" {
		writeGatewayError(w, models.ErrTriageUnavailable, "no candidate model available for bucket "+string(bucket))
		return
	}

	provider, modelName := splitSlug(model)
	decision := models.RoutingDecision{
		Provider:  provider,
		Model:     modelName,
		Fallbacks: otherCandidates(candidates, model),
	}

	result := h.executor.Execute(ctx, decision, req, bucket, f, auth)

	userID := ""
	if auth != nil {
		userID = auth.UserID
	}
	h.metrics.Record(ctx, models.MetricRecord{
		Timestamp:         time.Now(),
		RequestID:         requestID,
		Bucket:            bucket,
		Provider:          result.Provider,
		Model:             result.Model,
		Success:           result.Success,
		ExecutionTimeMs:   result.LatencyMs,
		CostEstimate:      result.CostEstimate,
		PromptTokens:      result.PromptTokens,
		CompletionTokens:  result.CompletionTokens,
		TotalTokens:       result.TotalTokens,
		FallbackUsed:      result.FallbackUsed,
		ErrorKind:         result.ErrorKind,
		UserID:            userID,
		Anthropic429:      result.Anthropic429,
		RetryAfterSeconds: result.RetryAfterSeconds,
	})

	if !result.Success {
		if result.RetryAfterSeconds > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfterSeconds))
		}
		writeGatewayError(w, result.ErrorKind, fmt.Sprintf("provider %s/%s request failed", result.Provider, result.Model))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Routegate-Provider", string(result.Provider))
	w.Header().Set("X-Routegate-Model", result.Model)
	w.Header().Set("X-Routegate-Bucket", string(bucket))
	if result.FallbackUsed {
		w.Header().Set("X-Routegate-Fallback", "true")
	}
	w.WriteHeader(http.StatusOK)
	w.Write(result.ResponseBody)
}

func allSlugs(qhat map[string][]float64) []string {
	out := make([]string, 0, len(qhat))
	for m := range qhat {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

func otherCandidates(candidates []string, chosen string) []string {
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c != chosen {
			out = append(out, c)
		}
	}
	return out
}

func splitSlug(slug string) (models.ProviderKind, string) {
	parts := strings.SplitN(slug, "/", 2)
	if len(parts) == 2 {
		return models.ProviderKind(parts[0]), parts[1]
	}
	return models.ProviderOpenRouter, slug
}

// writeGatewayError maps a closed error kind to its HTTP status and body.
// Kinds §7 marks as locally recovered (feature/triage degraded modes) never
// reach here in practice since the pipeline keeps going with fallback
// features or the emergency framework; artifact_unavailable reaches it only
// when no artifact has ever been loaded, and is answered with 503. This path
// covers the error kinds that do terminate the request.
func writeGatewayError(w http.ResponseWriter, kind models.ErrorKind, message string) {
	status := kind.HTTPStatus()
	if kind == models.ErrArtifactUnavailable {
		status = http.StatusServiceUnavailable
	} else if status == 200 {
		status = http.StatusInternalServerError
	}
	writeJSONError(w, status, string(kind), message)
}

func writeJSONError(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   kind,
		"message": message,
	})
}

// ── Dashboard surface (§6) ──────────────────────────────────────

// Health reports process liveness and whether the artifact store is
// currently serving a degraded (fallback-tier) snapshot.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if h.artifacts.Degraded() {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": h.version,
	})
}

// Version reports the running gateway version.
func (h *Handlers) Version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": h.version})
}

// Metrics serves the aggregated dashboard snapshot in JSON or Prometheus
// exposition format, windowed by the "window" query parameter (a Go
// duration string such as 1h, or an integer number of milliseconds;
// default 1h).
func (h *Handlers) Metrics(w http.ResponseWriter, r *http.Request) {
	window := parseWindow(r, time.Hour)
	snap := h.metrics.Snapshot(window)

	if strings.EqualFold(r.URL.Query().Get("format"), "prometheus") {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		w.WriteHeader(http.StatusOK)
		writePrometheus(w, snap)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// SLOStatus reports compliance against the configured SLO thresholds over
// the requested window (default 1h).
func (h *Handlers) SLOStatus(w http.ResponseWriter, r *http.Request) {
	window := parseWindow(r, time.Hour)
	writeJSON(w, http.StatusOK, h.metrics.CheckSLO(window))
}

// DeploymentReadiness reports whether the current routing policy and
// recent traffic look safe to build on top of.
func (h *Handlers) DeploymentReadiness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.metrics.DeploymentReadiness())
}

// ProviderHealth reports recent per-provider availability and latency.
func (h *Handlers) ProviderHealth(w http.ResponseWriter, r *http.Request) {
	window := parseWindow(r, time.Hour)
	snap := h.metrics.Snapshot(window)
	writeJSON(w, http.StatusOK, snap.ProviderHealth)
}

// CostAnalysis reports cost distribution by bucket over the requested
// window.
func (h *Handlers) CostAnalysis(w http.ResponseWriter, r *http.Request) {
	window := parseWindow(r, 24*time.Hour)
	snap := h.metrics.Snapshot(window)
	writeJSON(w, http.StatusOK, map[string]any{
		"window_ms":             snap.WindowMs,
		"mean_cost_overall":     snap.MeanCostOverall,
		"p95_cost_overall":      snap.P95CostOverall,
		"mean_cost_by_bucket":   snap.MeanCostByBucket,
		"p95_cost_by_bucket":    snap.P95CostByBucket,
		"route_share_by_bucket": snap.RouteShareByBucket,
	})
}

// Alerts surfaces pending control-plane recommendations alongside any
// current SLO violations — the closest thing to a paging feed this
// read-only surface offers.
func (h *Handlers) Alerts(w http.ResponseWriter, r *http.Request) {
	slo := h.metrics.CheckSLO(time.Hour)

	var recommendations []models.Recommendation
	var canary *models.CanaryRollout
	if h.controlPlane != nil {
		recommendations = h.controlPlane.Recommendation.Pending()
		canary = h.controlPlane.Canary.Current()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"slo_violations":  slo.Violations,
		"recommendations": recommendations,
		"active_canary":   canary,
	})
}

func parseWindow(r *http.Request, fallback time.Duration) time.Duration {
	raw := r.URL.Query().Get("window")
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	if ms, err := strconv.Atoi(raw); err == nil && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writePrometheus renders a fixed set of gateway gauges in the text
// exposition format (§6's dashboard surface, format=prometheus).
func writePrometheus(w http.ResponseWriter, snap models.DashboardMetrics) {
	metric := func(name, help string, value float64) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %v\n", name, help, name, name, value)
	}
	metric("routegate_mean_latency_ms", "Mean request latency in milliseconds", snap.MeanLatencyMs)
	metric("routegate_p95_latency_ms", "P95 request latency in milliseconds", snap.P95LatencyMs)
	metric("routegate_p99_latency_ms", "P99 request latency in milliseconds", snap.P99LatencyMs)
	metric("routegate_mean_cost_overall", "Mean cost estimate per request in USD", snap.MeanCostOverall)
	metric("routegate_p95_cost_overall", "P95 cost estimate per request in USD", snap.P95CostOverall)
	metric("routegate_win_rate_overall", "Overall win rate versus baseline", snap.WinRateOverall)
	metric("routegate_anthropic_429_rate", "Fraction of Anthropic calls hitting 429", snap.Anthropic429Rate)
	metric("routegate_unique_cooldown_users", "Distinct users currently in an active cooldown", float64(snap.UniqueCooldownUsers))
	compliant := 0.0
	if snap.SLO.Compliant {
		compliant = 1.0
	}
	metric("routegate_slo_compliant", "Whether the gateway is within SLO", compliant)
	for provider, latency := range snap.LatencyByProvider {
		fmt.Fprintf(w, "routegate_provider_latency_ms{provider=%q} %v\n", provider, latency)
	}
	for bucket, share := range snap.RouteShareByBucket {
		fmt.Fprintf(w, "routegate_route_share{bucket=%q} %v\n", bucket, share)
	}
}
