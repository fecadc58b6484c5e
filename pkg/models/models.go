// Package models holds the wire and domain types shared across the gateway:
// the feature vector produced per request, the routing artifact that drives
// triage and selection, the routing decision handed to the executor, and the
// metric record the control plane learns from.
package models

import "time"

// ── Bucket ───────────────────────────────────────────────────

// Bucket is the quality tier a request is triaged into.
type Bucket string

const (
	BucketCheap Bucket = "cheap"
	BucketMid   Bucket = "mid"
	BucketHard  Bucket = "hard"
)

// BucketProbabilities holds non-negative components that sum to 1.
type BucketProbabilities struct {
	Cheap float64 `json:"cheap"`
	Mid   float64 `json:"mid"`
	Hard  float64 `json:"hard"`
}

// Top returns the bucket with the highest probability.
func (p BucketProbabilities) Top() Bucket {
	b, best := BucketCheap, p.Cheap
	if p.Mid > best {
		b, best = BucketMid, p.Mid
	}
	if p.Hard > best {
		b = BucketHard
	}
	return b
}

// ── Request Features ─────────────────────────────────────────

// Features is produced once per request by the feature extractor and is
// immutable thereafter.
type Features struct {
	Embedding         []float64 `json:"embedding"`
	ClusterID         int       `json:"cluster_id"`
	CentroidDistances []float64 `json:"centroid_distances"`
	EstimatedTokens   int       `json:"estimated_tokens"`
	HasCode           bool      `json:"has_code"`
	HasMath           bool      `json:"has_math"`
	EntropyBits       float64   `json:"entropy_bits"`
	ContextRatio      float64   `json:"context_ratio"`

	// Fallback is set when the extractor hit its soft deadline or a total
	// failure and returned well-formed placeholder features instead.
	Fallback bool `json:"fallback,omitempty"`
}

// ── Routing Artifact ─────────────────────────────────────────

// Penalties are non-negative scalar knobs applied by the selector.
type Penalties struct {
	LatencySD    float64 `json:"latency_sd"`
	CtxOver80Pct float64 `json:"ctx_over_80pct"`
}

// Thresholds are the triage cut-offs, each in [0,1].
type Thresholds struct {
	Cheap float64 `json:"cheap"`
	Hard  float64 `json:"hard"`
}

// GBDTHandle references the triage model: a framework tag, an opaque
// payload interpreted by that framework, and the ordered feature schema
// the model expects as input.
type GBDTHandle struct {
	Framework     string         `json:"framework"`
	ModelPath     string         `json:"model_path,omitempty"`
	ModelPayload  map[string]any `json:"model_payload,omitempty"`
	FeatureSchema []string       `json:"feature_schema"`
}

// Artifact is the routing policy in force, versioned by an opaque string
// (typically an ISO timestamp).
type Artifact struct {
	Version    string               `json:"version"`
	Alpha      float64              `json:"alpha"`
	Thresholds Thresholds           `json:"thresholds"`
	Penalties  Penalties            `json:"penalties"`
	QHat       map[string][]float64 `json:"qhat"`
	CHat       map[string]float64   `json:"chat"`
	GBDT       GBDTHandle           `json:"gbdt"`
	Centroids  string               `json:"centroids"`

	// BucketCandidates lists the ordered candidate model slugs the selector
	// chooses among for each bucket. Every slug referenced here must have an
	// entry in both QHat and CHat.
	BucketCandidates map[Bucket][]string `json:"bucket_candidates"`

	// NumClusters is K, the length every QHat entry must have.
	NumClusters int `json:"num_clusters"`

	// LoadedAt records when this snapshot entered memory (for the
	// artifact store's 10-minute freshness window); not serialized.
	LoadedAt time.Time `json:"-"`
}

// ── Routing Decision ─────────────────────────────────────────

// ProviderKind identifies an upstream LLM provider.
type ProviderKind string

const (
	ProviderOpenAI     ProviderKind = "openai"
	ProviderGoogle     ProviderKind = "google"
	ProviderAnthropic  ProviderKind = "anthropic"
	ProviderOpenRouter ProviderKind = "openrouter"
)

// RoutingDecision is the executor's input: a chosen provider/model plus
// provider-specific parameters, a credential reference, and an ordered
// fallback list.
type RoutingDecision struct {
	Provider      ProviderKind   `json:"provider"`
	Model         string         `json:"model"`
	Params        map[string]any `json:"params,omitempty"`
	CredentialRef string         `json:"-"`
	Fallbacks     []string       `json:"fallbacks,omitempty"`

	// PreferenceMetadata carries pass-through provider-preference knobs
	// (max_price, allow_fallbacks) that are recorded but never enforced.
	PreferenceMetadata map[string]any `json:"preference_metadata,omitempty"`
}

// ── Chat Request ──────────────────────────────────────────────

// ChatMessage is one entry in the ordered message sequence.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the parsed chat-completion-shaped request the pipeline
// operates on. Additional keys in the original JSON body pass through
// unmodified via Extra.
type ChatRequest struct {
	Messages    []ChatMessage  `json:"messages"`
	Model       string         `json:"model,omitempty"`
	Stream      bool           `json:"stream,omitempty"`
	MaxTokens   int            `json:"max_tokens,omitempty"`
	Temperature *float64       `json:"temperature,omitempty"`
	Extra       map[string]any `json:"-"`
}

// Prompt concatenates message contents in order, newline-separated.
func (r ChatRequest) Prompt() string {
	s := ""
	for i, m := range r.Messages {
		if i > 0 {
			s += "\n"
		}
		s += m.Content
	}
	return s
}

// ── Auth Info ─────────────────────────────────────────────────

// AuthType discriminates a bearer token from an API key.
type AuthType string

const (
	AuthBearer AuthType = "bearer"
	AuthAPIKey AuthType = "apikey"
)

// AuthInfo is what an auth adapter extracts from inbound request headers.
type AuthInfo struct {
	Provider ProviderKind `json:"provider"`
	Type     AuthType     `json:"type"`
	Token    string       `json:"-"`
	UserID   string       `json:"user_id,omitempty"`
}

// ── Cooldown ─────────────────────────────────────────────────

// Cooldown is a time window during which requests from a user are locally
// rejected after an upstream 429.
type Cooldown struct {
	UserID            string    `json:"user_id"`
	ExpiresAt         time.Time `json:"expires_at"`
	RetryAfterSeconds int       `json:"retry_after_seconds"`
	Reason            string    `json:"reason"`
}

// ── Circuit Breaker ──────────────────────────────────────────

// BreakerState is one of closed, open, half_open.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// ── Error Kinds ───────────────────────────────────────────────

// ErrorKind is the closed set of error classifications the executor and
// surrounding components surface.
type ErrorKind string

const (
	ErrInvalidArtifact     ErrorKind = "invalid_artifact"
	ErrFeatureTimeout      ErrorKind = "feature_timeout"
	ErrTriageUnavailable   ErrorKind = "triage_unavailable"
	ErrAuthMissing         ErrorKind = "auth_missing"
	ErrRateLimitCooldown   ErrorKind = "rate_limit_cooldown"
	ErrRateLimitUpstream   ErrorKind = "rate_limit_upstream"
	ErrCircuitOpen         ErrorKind = "circuit_open"
	ErrProvider5xx         ErrorKind = "provider_5xx"
	ErrProvider4xx         ErrorKind = "provider_4xx"
	ErrFallbackFailed      ErrorKind = "fallback_failed"
	ErrArtifactUnavailable ErrorKind = "artifact_unavailable"
)

// HTTPStatus maps an error kind to the status code it should surface as.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case ErrAuthMissing:
		return 401
	case ErrRateLimitCooldown, ErrRateLimitUpstream:
		return 429
	case ErrCircuitOpen:
		return 503
	case ErrProvider4xx:
		return 422
	case ErrFallbackFailed, ErrProvider5xx:
		return 502
	case ErrInvalidArtifact, ErrFeatureTimeout, ErrTriageUnavailable, ErrArtifactUnavailable:
		return 200 // recovered locally via fallback path; never surfaced as a request error
	default:
		return 500
	}
}

// ── Metric Record ─────────────────────────────────────────────

// MetricRecord is persisted once per completed request.
type MetricRecord struct {
	Timestamp        time.Time    `json:"timestamp"`
	RequestID        string       `json:"request_id"`
	Bucket           Bucket       `json:"bucket"`
	Provider         ProviderKind `json:"provider"`
	Model            string       `json:"model"`
	Success          bool         `json:"success"`
	ExecutionTimeMs  int64        `json:"execution_time_ms"`
	CostEstimate     float64      `json:"cost_estimate"`
	PromptTokens     int          `json:"prompt_tokens"`
	CompletionTokens int          `json:"completion_tokens"`
	TotalTokens      int          `json:"total_tokens"`
	FallbackUsed     bool         `json:"fallback_used"`
	ErrorKind        ErrorKind    `json:"error_kind,omitempty"`
	UserID           string       `json:"user_id,omitempty"`
	Anthropic429     bool         `json:"anthropic_429,omitempty"`

	// RetryAfterSeconds is set when ErrorKind is rate_limit_cooldown: the
	// local 429's Retry-After value, matching the cooldown's expiry (§7).
	RetryAfterSeconds int `json:"retry_after_seconds,omitempty"`

	// WinRateVsBaseline is a required external-evaluator input. When the
	// caller does not supply one, a deterministic per-request placeholder
	// is substituted (see DESIGN.md).
	WinRateVsBaseline *float64 `json:"win_rate_vs_baseline,omitempty"`
}

// ── Canary Rollout ────────────────────────────────────────────

// CanaryStatus is the rollout state machine's current phase.
type CanaryStatus string

const (
	CanaryPlanning   CanaryStatus = "planning"
	CanaryRunning    CanaryStatus = "running"
	CanaryCompleted  CanaryStatus = "completed"
	CanaryRolledBack CanaryStatus = "rolled_back"
	CanaryFailed     CanaryStatus = "failed"
)

// StageMetrics holds the observed performance of one canary stage.
type StageMetrics struct {
	Samples   int64   `json:"samples"`
	ErrorRate float64 `json:"error_rate"`
	WinRate   float64 `json:"win_rate"`
	CostUSD   float64 `json:"cost_usd"`
	LatencyMs float64 `json:"latency_ms"`
}

// CanaryStage is one of the four traffic-percentage steps.
type CanaryStage struct {
	Index          int          `json:"index"`
	TrafficPercent int          `json:"traffic_percent"`
	Metrics        StageMetrics `json:"metrics"`
	StartedAt      time.Time    `json:"started_at,omitempty"`
	EndedAt        time.Time    `json:"ended_at,omitempty"`
	Passed         *bool        `json:"passed,omitempty"`
}

// CanaryRollout is a four-stage state machine per pending artifact.
type CanaryRollout struct {
	ID              string        `json:"id"`
	ArtifactVersion string        `json:"artifact_version"`
	StartTime       time.Time     `json:"start_time"`
	Stages          []CanaryStage `json:"stages"`
	CurrentStage    int           `json:"current_stage"`
	BaselineMetrics StageMetrics  `json:"baseline_metrics"`
	Status          CanaryStatus  `json:"status"`
}

// ── Recommendations ───────────────────────────────────────────

// RecommendationKind is one of the advisory categories the control plane emits.
type RecommendationKind string

const (
	RecommendationCost          RecommendationKind = "cost"
	RecommendationQuality       RecommendationKind = "quality"
	RecommendationPerformance   RecommendationKind = "performance"
	RecommendationConfiguration RecommendationKind = "configuration"
)

// Recommendation is an advisory suggestion emitted by the recommendation engine.
type Recommendation struct {
	ID             string             `json:"id"`
	Kind           RecommendationKind `json:"kind"`
	Priority       string             `json:"priority"` // low | medium | high
	Summary        string             `json:"summary"`
	ExpectedImpact string             `json:"expected_impact,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
}

// ── Catalog model entry ───────────────────────────────────────

// ModelCatalogEntry describes one provider model's current capabilities and
// price, as tracked by the control plane's catalog refresher.
type ModelCatalogEntry struct {
	Slug              string       `json:"slug"`
	Provider          ProviderKind `json:"provider"`
	InputPricePer1K   float64      `json:"input_price_per_1k"`
	OutputPricePer1K  float64      `json:"output_price_per_1k"`
	ContextWindow     int          `json:"context_window"`
	SupportsReasoning bool         `json:"supports_reasoning"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// CatalogChange records one diffed field between catalog refreshes.
type CatalogChange struct {
	Slug      string  `json:"slug"`
	Field     string  `json:"field"`
	OldValue  float64 `json:"old_value"`
	NewValue  float64 `json:"new_value"`
	Magnitude float64 `json:"magnitude"`
}

// ── Dashboard types ────────────────────────────────────────────

// ProviderHealth summarizes one provider's recent availability.
type ProviderHealth struct {
	Provider      ProviderKind `json:"provider"`
	Availability  float64      `json:"availability"`
	AvgLatencyMs  float64      `json:"avg_latency_ms"`
	ErrorRate     float64      `json:"error_rate"`
	LastSuccessAt time.Time    `json:"last_success_at,omitempty"`
}

// SLOViolation names one exceeded threshold.
type SLOViolation struct {
	Metric    string  `json:"metric"`
	Threshold float64 `json:"threshold"`
	Observed  float64 `json:"observed"`
}

// SLOStatus is the checkSLO result surfaced by the metrics engine.
type SLOStatus struct {
	Compliant  bool           `json:"compliant"`
	Violations []SLOViolation `json:"violations"`
}

// DeploymentReadiness is the deploymentReadiness dashboard result.
type DeploymentReadiness struct {
	Ready    bool     `json:"ready"`
	Blockers []string `json:"blockers"`
	Warnings []string `json:"warnings"`
}

// DashboardMetrics is the metrics engine's aggregated snapshot.
type DashboardMetrics struct {
	WindowMs            int64                    `json:"window_ms"`
	RouteShareByBucket  map[Bucket]float64       `json:"route_share_by_bucket"`
	MeanCostByBucket    map[Bucket]float64       `json:"mean_cost_by_bucket"`
	P95CostByBucket     map[Bucket]float64       `json:"p95_cost_by_bucket"`
	MeanCostOverall     float64                  `json:"mean_cost_overall"`
	P95CostOverall      float64                  `json:"p95_cost_overall"`
	MeanLatencyMs       float64                  `json:"mean_latency_ms"`
	P95LatencyMs        float64                  `json:"p95_latency_ms"`
	P99LatencyMs        float64                  `json:"p99_latency_ms"`
	LatencyByProvider   map[ProviderKind]float64 `json:"latency_by_provider"`
	Anthropic429Rate    float64                  `json:"anthropic_429_rate"`
	Recent429Count      int                      `json:"recent_429_count_1h"`
	UniqueCooldownUsers int                      `json:"unique_cooldown_users"`
	WinRateOverall      float64                  `json:"win_rate_overall"`
	WinRateByBucket     map[Bucket]float64       `json:"win_rate_by_bucket"`
	HourlyTrend         []float64                `json:"hourly_trend"`
	ProviderHealth      []ProviderHealth         `json:"provider_health"`
	SLO                 SLOStatus                `json:"slo"`
}
