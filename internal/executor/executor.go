// Package executor implements the Provider Executor (§4.G): it orchestrates
// one outbound provider call plus at most one fallback attempt, enforcing
// circuit breakers and per-user Anthropic cooldowns and classifying every
// failure into the closed error-kind set (§7).
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/routegate/gateway/internal/breaker"
	"github.com/routegate/gateway/internal/gatewayauth"
	"github.com/routegate/gateway/pkg/models"
	"github.com/rs/zerolog/log"
)

// ExecutionResult is the outcome of one executor.Execute call, covering
// whatever attempt (original or fallback) ultimately produced a response.
type ExecutionResult struct {
	Provider         models.ProviderKind
	Model            string
	Success          bool
	LatencyMs        int64
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	CostEstimate     float64
	FallbackUsed     bool
	ErrorKind        models.ErrorKind
	Anthropic429     bool
	ResponseBody     []byte

	// RetryAfterSeconds is populated for a rate_limit_cooldown short-circuit
	// (§7): the caller's local 429 must carry a Retry-After matching the
	// cooldown's expiry.
	RetryAfterSeconds int
}

// Config bundles the Executor's tunables (§10.2, provider timeouts and
// retry/breaker defaults).
type Config struct {
	Timeout        time.Duration
	RetryBaseDelay time.Duration
	RetryFactor    float64
	RetryMaxTries  int
}

// Executor holds the three process-wide tables described in §3/§5:
// circuit breakers, Anthropic cooldowns (via the auth adapter it shares
// with gatewayauth.Registry), and the latency table shared with the
// selector.
type Executor struct {
	cfg       Config
	breakers  *breaker.Table
	latencies *breaker.LatencyTable
	anthropic *gatewayauth.AnthropicAdapter
	envCreds  *gatewayauth.EnvCredentialAdapter
	registry  *gatewayauth.Registry

	calls map[models.ProviderKind]ProviderCaller
}

// ProviderCaller performs the actual wire call for one provider kind.
type ProviderCaller interface {
	Call(ctx context.Context, decision models.RoutingDecision, req models.ChatRequest, auth *models.AuthInfo) (*ProviderResponse, error)
}

// ProviderResponse is what a ProviderCaller returns on a non-error path;
// StatusCode/RetryAfter are populated even for upstream error responses so
// the executor can classify them.
type ProviderResponse struct {
	StatusCode       int
	Body             []byte
	PromptTokens     int
	CompletionTokens int
	RetryAfter       time.Duration
}

// New builds an Executor wired with the given circuit-breaker/latency
// tables (shared with the selector and across requests) and the shared
// Anthropic cooldown table owned by the auth registry's Anthropic adapter.
func New(cfg Config, breakers *breaker.Table, latencies *breaker.LatencyTable, anthropic *gatewayauth.AnthropicAdapter, envCreds *gatewayauth.EnvCredentialAdapter, registry *gatewayauth.Registry) *Executor {
	e := &Executor{
		cfg:       cfg,
		breakers:  breakers,
		latencies: latencies,
		anthropic: anthropic,
		envCreds:  envCreds,
		registry:  registry,
		calls:     make(map[models.ProviderKind]ProviderCaller),
	}
	e.calls[models.ProviderOpenAI] = NewOpenAICaller(cfg.Timeout)
	e.calls[models.ProviderAnthropic] = NewAnthropicCaller(cfg.Timeout)
	e.calls[models.ProviderGoogle] = NewGoogleCaller(cfg.Timeout)
	e.calls[models.ProviderOpenRouter] = NewOpenRouterCaller(cfg.Timeout)
	return e
}

// Execute calls the chosen provider, applying thinking parameters,
// circuit-breaker short-circuiting, cooldown short-circuiting, retry, and
// at most one cross-provider fallback attempt.
func (e *Executor) Execute(ctx context.Context, decision models.RoutingDecision, req models.ChatRequest, bucket models.Bucket, f models.Features, auth *models.AuthInfo) ExecutionResult {
	ApplyThinkingParams(&decision, bucket, f)

	result := e.attempt(ctx, decision, req, f, auth, false)
	if result.Success || result.ErrorKind == "" {
		return result
	}

	fallbackDecision, ok := e.fallbackDecision(decision, result.ErrorKind, f, result.Anthropic429)
	if !ok {
		return result
	}

	ApplyThinkingParams(&fallbackDecision, bucket, f)
	fallbackAuth := e.envCreds.ForProvider(fallbackDecision.Provider)
	if fallbackAuth == nil {
		fallbackAuth = auth
	}

	fallbackResult := e.attempt(ctx, fallbackDecision, req, f, fallbackAuth, true)
	fallbackResult.FallbackUsed = true
	fallbackResult.Anthropic429 = result.Anthropic429
	if !fallbackResult.Success {
		fallbackResult.ErrorKind = models.ErrFallbackFailed
	}
	return fallbackResult
}

func (e *Executor) attempt(ctx context.Context, decision models.RoutingDecision, req models.ChatRequest, f models.Features, auth *models.AuthInfo, isFallback bool) ExecutionResult {
	provider := string(decision.Provider)

	// Anthropic cooldown short-circuit (§4.G): local 429, no upstream call.
	if decision.Provider == models.ProviderAnthropic && auth != nil && auth.UserID != "" {
		if cd, active := e.anthropic.Cooldowns.Active(auth.UserID); active {
			log.Debug().Str("user_id", auth.UserID).Time("expires_at", cd.ExpiresAt).Msg("request short-circuited by anthropic cooldown")
			return ExecutionResult{
				Provider:          decision.Provider,
				Model:             decision.Model,
				ErrorKind:         models.ErrRateLimitCooldown,
				RetryAfterSeconds: cd.RetryAfterSeconds,
			}
		}
	}

	// Circuit breaker short-circuit.
	if !e.breakers.Allow(provider, "chat") {
		return ExecutionResult{Provider: decision.Provider, Model: decision.Model, ErrorKind: models.ErrCircuitOpen}
	}

	caller, ok := e.calls[decision.Provider]
	if !ok {
		return ExecutionResult{Provider: decision.Provider, Model: decision.Model, ErrorKind: models.ErrProvider4xx}
	}

	if auth == nil {
		auth = e.envCreds.ForProvider(decision.Provider)
	}
	if auth == nil {
		return ExecutionResult{Provider: decision.Provider, Model: decision.Model, ErrorKind: models.ErrAuthMissing}
	}

	start := time.Now()
	resp, err := e.callWithRetry(ctx, caller, decision, req, auth)
	latencyMs := time.Since(start).Milliseconds()
	e.latencies.Record(provider, decision.Model, latencyMs)

	if err != nil {
		e.breakers.RecordFailure(provider, "chat")
		return ExecutionResult{
			Provider:  decision.Provider,
			Model:     decision.Model,
			LatencyMs: latencyMs,
			ErrorKind: classifyTransportError(err),
		}
	}

	kind, isOutage := ClassifyStatus(resp.StatusCode)
	if kind != "" {
		if decision.Provider == models.ProviderAnthropic && resp.StatusCode == 429 && auth.UserID != "" {
			e.anthropic.Cooldowns.Apply(auth.UserID, resp.RetryAfter, "anthropic upstream 429")
		}
		// Only provider outages (5xx) count against the circuit breaker;
		// rate limits and client-shaped 4xx are not provider-health signals.
		if isOutage {
			e.breakers.RecordFailure(provider, "chat")
		}
		return ExecutionResult{
			Provider:     decision.Provider,
			Model:        decision.Model,
			LatencyMs:    latencyMs,
			ErrorKind:    kind,
			Anthropic429: decision.Provider == models.ProviderAnthropic && resp.StatusCode == 429,
		}
	}

	e.breakers.RecordSuccess(provider, "chat")
	return ExecutionResult{
		Provider:         decision.Provider,
		Model:            decision.Model,
		Success:          true,
		LatencyMs:        latencyMs,
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
		TotalTokens:      resp.PromptTokens + resp.CompletionTokens,
		CostEstimate:     EstimateCost(decision.Provider, decision.Model, resp.PromptTokens, resp.CompletionTokens),
		ResponseBody:     resp.Body,
	}
}

// callWithRetry wraps one provider call with cenkalti/backoff's
// ExponentialBackOff, capped at one retry, per §4.G's retry implementation.
// Rate-limit responses are never retried here — they're surfaced for
// fallback handling instead.
func (e *Executor) callWithRetry(ctx context.Context, caller ProviderCaller, decision models.RoutingDecision, req models.ChatRequest, auth *models.AuthInfo) (*ProviderResponse, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.cfg.RetryBaseDelay
	bo.Multiplier = e.cfg.RetryFactor
	bo.MaxInterval = 2 * e.cfg.RetryBaseDelay * time.Duration(e.cfg.RetryFactor)
	withCtx := backoff.WithContext(bo, ctx)

	maxTries := e.cfg.RetryMaxTries
	if maxTries <= 0 {
		maxTries = 1
	}

	var resp *ProviderResponse
	operation := func() error {
		var err error
		resp, err = caller.Call(ctx, decision, req, auth)
		if err != nil {
			return err
		}
		if resp.StatusCode == 429 {
			// Not retryable by the executor; return a permanent error to
			// stop the backoff loop immediately.
			return backoff.Permanent(nil)
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("provider returned %d", resp.StatusCode)
		}
		return nil
	}

	err := backoff.Retry(operation, backoff.WithMaxRetries(withCtx, uint64(maxTries)))
	if err != nil && resp == nil {
		return nil, err
	}
	return resp, nil
}
