// Package config loads the gateway's tunables from environment variables
// with documented defaults via Load(). A few variables are read directly by
// the packages that use them: GATEWAY_REQUIRE_AUTH (internal/api/middleware),
// GATEWAY_API_KEYS, GATEWAY_API_KEY_ROLE and GATEWAY_SERVICE_TOKEN_SECRET
// (internal/auth), and the provider API keys (internal/gatewayauth).
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every tunable the gateway's components read at startup.
type Config struct {
	Port      int
	Version   string
	CORS      CORSConfig
	Telemetry TelemetryConfig
	Auth      AuthConfig
	Artifact  ArtifactConfig
	Catalog   CatalogConfig
	Provider  ProviderConfig
	Breaker   BreakerConfig
	Cooldown  CooldownConfig
	SLO       SLOConfig
	Schedule  ScheduleConfig
	Database  DatabaseConfig
	Metrics   MetricsConfig
	Notify    NotifyConfig
}

type CORSConfig struct {
	Origins string
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

type AuthConfig struct {
	RequireAuth bool
	UserIDSalt  string
}

// ArtifactConfig configures the Artifact Store (§4.B).
type ArtifactConfig struct {
	URL            string
	CacheDir       string
	ReloadInterval time.Duration
	FreshWindow    time.Duration
}

// CatalogConfig configures the Control Plane's Catalog Refresher (§4.I).
type CatalogConfig struct {
	ServiceURL      string
	FullRefreshCron string // HH:MM UTC, default "02:00"
	DriftInterval   time.Duration
}

// ProviderConfig configures outbound provider calls for the Executor (§4.G).
type ProviderConfig struct {
	Timeout        time.Duration
	RetryBaseDelay time.Duration
	RetryFactor    float64
	RetryMaxTries  int
}

// BreakerConfig configures the per-(component,operation) circuit breakers.
type BreakerConfig struct {
	FailureThreshold int
	ResetTimeout     time.Duration
}

// CooldownConfig configures the Anthropic per-user rate-limit cooldown table.
type CooldownConfig struct {
	Default time.Duration
	Max     time.Duration
}

// SLOConfig holds the overridable SLO thresholds the Metrics Engine checks.
type SLOConfig struct {
	P95LatencyMs        float64
	FailoverMisfireRate float64
	UptimeTarget        float64
	MeanCostPerTask     float64
	WinRateTarget       float64
}

// ScheduleConfig holds the Control Plane's four activity cadences.
type ScheduleConfig struct {
	TuningPipelineInterval      time.Duration
	CanaryEvalInterval          time.Duration
	RecommendationInterval      time.Duration
	RecommendationRetention     time.Duration
	CanaryMinSamplesPerStage    int64
	CanaryMinDurationPerStage   time.Duration
}

type DatabaseConfig struct {
	URL string
}

// MetricsConfig configures the PostHook/Metrics Engine (§4.H).
type MetricsConfig struct {
	LogsPath     string
	WarehouseURL string
}

// NotifyConfig configures the emergency Notification Service (§4.I).
type NotifyConfig struct {
	WebhookURL    string
	WebhookSecret string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:    envInt("GATEWAY_PORT", 8080),
		Version: envStr("GATEWAY_VERSION", "0.1.0"),
		CORS: CORSConfig{
			Origins: envStr("GATEWAY_CORS_ORIGINS", "*"),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", true),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "routegate-gateway"),
		},
		Auth: AuthConfig{
			RequireAuth: envBool("GATEWAY_REQUIRE_AUTH", false),
			UserIDSalt:  envStr("GATEWAY_USER_ID_SALT", "routegate-dev-salt"),
		},
		Artifact: ArtifactConfig{
			URL:            envStr("ARTIFACT_STORE_URL", "file://./.cache/artifacts/latest.json"),
			CacheDir:       envStr("ARTIFACT_CACHE_DIR", "./.cache/artifacts"),
			ReloadInterval: envDuration("ARTIFACT_RELOAD_INTERVAL", 5*time.Minute),
			FreshWindow:    envDuration("ARTIFACT_FRESH_WINDOW", 10*time.Minute),
		},
		Catalog: CatalogConfig{
			ServiceURL:      envStr("CATALOG_SERVICE_URL", ""),
			FullRefreshCron: envStr("CATALOG_FULL_REFRESH_UTC", "02:00"),
			DriftInterval:   envDuration("CATALOG_DRIFT_INTERVAL", 6*time.Hour),
		},
		Provider: ProviderConfig{
			Timeout:        envDuration("PROVIDER_TIMEOUT", 30*time.Second),
			RetryBaseDelay: envDuration("PROVIDER_RETRY_BASE_DELAY", 100*time.Millisecond),
			RetryFactor:    envFloat("PROVIDER_RETRY_FACTOR", 2.0),
			RetryMaxTries:  envInt("PROVIDER_RETRY_MAX_TRIES", 1),
		},
		Breaker: BreakerConfig{
			FailureThreshold: envInt("BREAKER_FAILURE_THRESHOLD", 5),
			ResetTimeout:     envDuration("BREAKER_RESET_TIMEOUT", 60*time.Second),
		},
		Cooldown: CooldownConfig{
			Default: envDuration("COOLDOWN_DEFAULT", 3*time.Minute),
			Max:     envDuration("COOLDOWN_MAX", 5*time.Minute),
		},
		SLO: SLOConfig{
			P95LatencyMs:        envFloat("SLO_P95_LATENCY_MS", 2500),
			FailoverMisfireRate: envFloat("SLO_FAILOVER_MISFIRE_RATE", 0.05),
			UptimeTarget:        envFloat("SLO_UPTIME_TARGET", 0.995),
			MeanCostPerTask:     envFloat("SLO_MEAN_COST_PER_TASK", 0.10),
			WinRateTarget:       envFloat("SLO_WIN_RATE_TARGET", 0.85),
		},
		Schedule: ScheduleConfig{
			TuningPipelineInterval:    envDuration("SCHEDULE_TUNING_INTERVAL", 7*24*time.Hour),
			CanaryEvalInterval:        envDuration("SCHEDULE_CANARY_EVAL_INTERVAL", 5*time.Minute),
			RecommendationInterval:    envDuration("SCHEDULE_RECOMMENDATION_INTERVAL", 6*time.Hour),
			RecommendationRetention:   envDuration("SCHEDULE_RECOMMENDATION_RETENTION", 7*24*time.Hour),
			CanaryMinSamplesPerStage:  int64(envInt("CANARY_MIN_SAMPLES_PER_STAGE", 100)),
			CanaryMinDurationPerStage: envDuration("CANARY_MIN_DURATION_PER_STAGE", 15*time.Minute),
		},
		Database: DatabaseConfig{
			URL: envStr("DATABASE_URL", ""),
		},
		Metrics: MetricsConfig{
			LogsPath:     envStr("POSTHOOK_LOGS_PATH", "./.cache/metrics.jsonl"),
			WarehouseURL: envStr("METRICS_WAREHOUSE_URL", ""),
		},
		Notify: NotifyConfig{
			WebhookURL:    envStr("ALERT_WEBHOOK_URL", ""),
			WebhookSecret: envStr("ALERT_WEBHOOK_SECRET", ""),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
