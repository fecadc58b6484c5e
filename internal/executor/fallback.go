package executor

import (
	"strings"

	"github.com/routegate/gateway/pkg/models"
)

// isRetryableForFallback reports whether an error kind is eligible for the
// one-fallback-attempt path at all (§4.G: 4xx-other-than-429 and 401/403
// never fall back). ErrRateLimitCooldown is deliberately excluded: it's a
// local short-circuit that must surface as a 429 to the caller, not an
// upstream failure to route around (§7).
func isRetryableForFallback(kind models.ErrorKind) bool {
	switch kind {
	case models.ErrProvider5xx, models.ErrCircuitOpen, models.ErrRateLimitUpstream:
		return true
	default:
		return false
	}
}

// fallbackDecision implements the fallback decision table of §4.G. ok is
// false when no substitute applies and the original error should surface.
func (e *Executor) fallbackDecision(decision models.RoutingDecision, kind models.ErrorKind, f models.Features, anthropic429 bool) (models.RoutingDecision, bool) {
	if !isRetryableForFallback(kind) {
		return models.RoutingDecision{}, false
	}

	switch decision.Provider {
	case models.ProviderAnthropic:
		return anthropicSubstitute(f), true

	case models.ProviderOpenAI:
		return models.RoutingDecision{
			Provider: models.ProviderGoogle,
			Model:    "gemini-2.5-pro",
			Params:   map[string]any{"thinking_budget": thinkingBudgetAbsoluteMax},
		}, true

	case models.ProviderGoogle:
		return models.RoutingDecision{
			Provider: models.ProviderOpenAI,
			Model:    "gpt-5",
			Params:   map[string]any{"reasoning_effort": "high"},
		}, true

	case models.ProviderOpenRouter:
		if len(decision.Fallbacks) == 0 {
			return models.RoutingDecision{}, false
		}
		next := decision.Fallbacks[0]
		provider, model := splitFallbackSlug(next)
		return models.RoutingDecision{
			Provider:  provider,
			Model:     model,
			Fallbacks: decision.Fallbacks[1:],
		}, true

	default:
		return models.RoutingDecision{}, false
	}
}

// anthropicSubstitute picks the non-Anthropic replacement per §4.G's
// Anthropic-429 substitute rule.
func anthropicSubstitute(f models.Features) models.RoutingDecision {
	switch {
	case f.EstimatedTokens > 200_000:
		return models.RoutingDecision{
			Provider: models.ProviderGoogle,
			Model:    "gemini-2.5-pro",
			Params:   map[string]any{"thinking_budget": thinkingBudgetAbsoluteMax},
		}
	case f.HasCode || f.HasMath:
		return models.RoutingDecision{
			Provider: models.ProviderOpenAI,
			Model:    "gpt-5",
			Params:   map[string]any{"reasoning_effort": "high"},
		}
	default:
		return models.RoutingDecision{
			Provider: models.ProviderOpenRouter,
			Model:    "meta-llama/llama-3.1-8b-instruct",
		}
	}
}

func splitFallbackSlug(slug string) (models.ProviderKind, string) {
	parts := strings.SplitN(slug, "/", 2)
	if len(parts) == 2 {
		return models.ProviderKind(parts[0]), parts[1]
	}
	return models.ProviderOpenRouter, slug
}
