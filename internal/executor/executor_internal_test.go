package executor

import (
	"context"
	"testing"
	"time"

	"github.com/routegate/gateway/internal/breaker"
	"github.com/routegate/gateway/internal/gatewayauth"
	"github.com/routegate/gateway/pkg/models"
)

type scriptedCaller struct {
	responses []*ProviderResponse
	errs      []error
	calls     int
}

func (c *scriptedCaller) Call(ctx context.Context, decision models.RoutingDecision, req models.ChatRequest, auth *models.AuthInfo) (*ProviderResponse, error) {
	i := c.calls
	if i >= len(c.responses) {
		i = len(c.responses) - 1
	}
	c.calls++
	return c.responses[i], c.errs[i]
}

func newTestExecutor(t *testing.T) (*Executor, *gatewayauth.Registry) {
	t.Helper()
	registry := gatewayauth.NewRegistry()
	anthropic := gatewayauth.NewAnthropicAdapter()
	registry.Register(anthropic)
	env := gatewayauth.NewEnvCredentialAdapter()

	e := New(Config{Timeout: time.Second, RetryBaseDelay: time.Millisecond, RetryFactor: 2, RetryMaxTries: 1},
		breaker.NewTable(5, time.Minute), breaker.NewLatencyTable(), anthropic, env, registry)
	return e, registry
}

func TestExecute_SuccessNoFallback(t *testing.T) {
	e, _ := newTestExecutor(t)
	e.calls[models.ProviderOpenAI] = &scriptedCaller{
		responses: []*ProviderResponse{{StatusCode: 200, PromptTokens: 10, CompletionTokens: 20}},
		errs:      []error{nil},
	}

	decision := models.RoutingDecision{Provider: models.ProviderOpenAI, Model: "gpt-5-mini"}
	auth := &models.AuthInfo{Provider: models.ProviderOpenAI, Token: "sk-test"}
	result := e.Execute(context.Background(), decision, models.ChatRequest{}, models.BucketCheap, models.Features{}, auth)

	if !result.Success || result.FallbackUsed {
		t.Fatalf("result = %+v, want success without fallback", result)
	}
	if result.TotalTokens != 30 {
		t.Errorf("TotalTokens = %d, want 30", result.TotalTokens)
	}
}

func TestExecute_AnthropicRateLimitFallsBackAndAppliesCooldown(t *testing.T) {
	e, _ := newTestExecutor(t)
	e.calls[models.ProviderAnthropic] = &scriptedCaller{
		responses: []*ProviderResponse{{StatusCode: 429, RetryAfter: 120 * time.Second}},
		errs:      []error{nil},
	}
	e.calls[models.ProviderOpenAI] = &scriptedCaller{
		responses: []*ProviderResponse{{StatusCode: 200, PromptTokens: 5, CompletionTokens: 5}},
		errs:      []error{nil},
	}

	decision := models.RoutingDecision{Provider: models.ProviderAnthropic, Model: "claude-opus-4"}
	auth := &models.AuthInfo{Provider: models.ProviderAnthropic, Token: "ant-secret", UserID: "user-1"}
	result := e.Execute(context.Background(), decision, models.ChatRequest{}, models.BucketMid, models.Features{HasCode: true}, auth)

	if !result.Success {
		t.Fatalf("result = %+v, want success via fallback", result)
	}
	if !result.FallbackUsed {
		t.Error("expected FallbackUsed=true")
	}
	if !result.Anthropic429 {
		t.Error("expected Anthropic429=true to propagate to the final result")
	}
	if result.Provider != models.ProviderOpenAI {
		t.Errorf("fallback provider = %v, want openai (has_code=true substitute rule)", result.Provider)
	}

	cd, active := e.anthropic.Cooldowns.Active("user-1")
	if !active {
		t.Fatal("expected a cooldown to be applied for user-1 after the upstream 429")
	}
	if cd.RetryAfterSeconds != 120 {
		t.Errorf("RetryAfterSeconds = %d, want 120", cd.RetryAfterSeconds)
	}
}

func TestExecute_SubsequentRequestShortCircuitsOnCooldown(t *testing.T) {
	e, _ := newTestExecutor(t)
	e.anthropic.Cooldowns.Apply("user-1", time.Minute, "prior 429")
	anthropicCaller := &scriptedCaller{responses: []*ProviderResponse{{StatusCode: 200}}, errs: []error{nil}}
	e.calls[models.ProviderAnthropic] = anthropicCaller

	decision := models.RoutingDecision{Provider: models.ProviderAnthropic, Model: "claude-opus-4"}
	auth := &models.AuthInfo{Provider: models.ProviderAnthropic, Token: "ant-secret", UserID: "user-1"}
	result := e.Execute(context.Background(), decision, models.ChatRequest{}, models.BucketMid, models.Features{}, auth)

	if result.ErrorKind != models.ErrRateLimitCooldown {
		t.Errorf("ErrorKind = %v, want rate_limit_cooldown", result.ErrorKind)
	}
	if result.FallbackUsed {
		t.Error("a cooldown short-circuit must surface as a local 429, never fall back")
	}
	if result.RetryAfterSeconds != 60 {
		t.Errorf("RetryAfterSeconds = %d, want 60 (matching the active cooldown)", result.RetryAfterSeconds)
	}
	if anthropicCaller.calls != 0 {
		t.Error("expected no upstream call while the user is in cooldown")
	}
}

func TestExecute_CircuitOpenShortCircuits(t *testing.T) {
	e, _ := newTestExecutor(t)
	e.breakers.RecordFailure(string(models.ProviderGoogle), "chat")
	e.breakers.RecordFailure(string(models.ProviderGoogle), "chat")
	e.breakers.RecordFailure(string(models.ProviderGoogle), "chat")
	e.breakers.RecordFailure(string(models.ProviderGoogle), "chat")
	e.breakers.RecordFailure(string(models.ProviderGoogle), "chat")

	caller := &scriptedCaller{responses: []*ProviderResponse{{StatusCode: 200}}, errs: []error{nil}}
	e.calls[models.ProviderGoogle] = caller

	decision := models.RoutingDecision{Provider: models.ProviderGoogle, Model: "gemini-2.5-pro"}
	auth := &models.AuthInfo{Provider: models.ProviderGoogle, Token: "key"}
	result := e.Execute(context.Background(), decision, models.ChatRequest{}, models.BucketHard, models.Features{}, auth)

	if result.ErrorKind != models.ErrCircuitOpen {
		t.Errorf("ErrorKind = %v, want circuit_open", result.ErrorKind)
	}
	if caller.calls != 0 {
		t.Error("expected no upstream call while the circuit is open")
	}
}

func TestExecute_4xxNonRateLimitNeverFallsBack(t *testing.T) {
	e, _ := newTestExecutor(t)
	e.calls[models.ProviderOpenAI] = &scriptedCaller{
		responses: []*ProviderResponse{{StatusCode: 400}},
		errs:      []error{nil},
	}

	decision := models.RoutingDecision{Provider: models.ProviderOpenAI, Model: "gpt-5-mini"}
	auth := &models.AuthInfo{Provider: models.ProviderOpenAI, Token: "sk-test"}
	result := e.Execute(context.Background(), decision, models.ChatRequest{}, models.BucketCheap, models.Features{}, auth)

	if result.FallbackUsed {
		t.Error("expected no fallback for a non-429 4xx error")
	}
	if result.ErrorKind != models.ErrProvider4xx {
		t.Errorf("ErrorKind = %v, want provider_4xx", result.ErrorKind)
	}
}

func TestExecute_MissingAuthAndNoEnvCredentialReturnsAuthMissing(t *testing.T) {
	e, _ := newTestExecutor(t)
	e.calls[models.ProviderOpenAI] = &scriptedCaller{responses: []*ProviderResponse{{StatusCode: 200}}, errs: []error{nil}}

	decision := models.RoutingDecision{Provider: models.ProviderOpenAI, Model: "gpt-5-mini"}
	result := e.Execute(context.Background(), decision, models.ChatRequest{}, models.BucketCheap, models.Features{}, nil)

	if result.ErrorKind != models.ErrAuthMissing {
		t.Errorf("ErrorKind = %v, want auth_missing", result.ErrorKind)
	}
}

func TestExecute_SecondFallbackFailureSurfacesAsFallbackFailed(t *testing.T) {
	e, _ := newTestExecutor(t)
	e.calls[models.ProviderAnthropic] = &scriptedCaller{
		responses: []*ProviderResponse{{StatusCode: 500}},
		errs:      []error{nil},
	}
	e.calls[models.ProviderGoogle] = &scriptedCaller{
		responses: []*ProviderResponse{{StatusCode: 500}},
		errs:      []error{nil},
	}

	decision := models.RoutingDecision{Provider: models.ProviderAnthropic, Model: "claude-opus-4"}
	auth := &models.AuthInfo{Provider: models.ProviderAnthropic, Token: "ant-secret", UserID: "user-2"}
	result := e.Execute(context.Background(), decision, models.ChatRequest{}, models.BucketHard, models.Features{EstimatedTokens: 300_000}, auth)

	if result.ErrorKind != models.ErrFallbackFailed {
		t.Errorf("ErrorKind = %v, want fallback_failed", result.ErrorKind)
	}
	if result.Provider != models.ProviderGoogle {
		t.Errorf("expected the long-context substitute (google) to be the fallback provider, got %v", result.Provider)
	}
}

func TestFallbackDecision_OpenRouterDropsUsedSlug(t *testing.T) {
	e, _ := newTestExecutor(t)
	decision := models.RoutingDecision{
		Provider:  models.ProviderOpenRouter,
		Model:     "some/model",
		Fallbacks: []string{"openrouter/meta-llama/llama-3.1-8b-instruct", "openrouter/other/model"},
	}
	next, ok := e.fallbackDecision(decision, models.ErrProvider5xx, models.Features{}, false)
	if !ok {
		t.Fatal("expected a fallback decision for an openrouter 5xx")
	}
	if len(next.Fallbacks) != 1 || next.Fallbacks[0] != "openrouter/other/model" {
		t.Errorf("Fallbacks = %v, want remaining list with used slug dropped", next.Fallbacks)
	}
}

func TestFallbackDecision_NoFallbackForAuthErrors(t *testing.T) {
	e, _ := newTestExecutor(t)
	decision := models.RoutingDecision{Provider: models.ProviderOpenAI, Model: "gpt-5"}
	_, ok := e.fallbackDecision(decision, models.ErrAuthMissing, models.Features{}, false)
	if ok {
		t.Error("expected no fallback decision for auth_missing")
	}
	_, ok2 := e.fallbackDecision(decision, models.ErrProvider4xx, models.Features{}, false)
	if ok2 {
		t.Error("expected no fallback decision for a non-429 4xx")
	}
}
