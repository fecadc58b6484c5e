package executor

import "github.com/routegate/gateway/pkg/models"

// thinkingBudgetAbsoluteMin and Max are the provider-documented absolute
// bounds every computed thinking_budget is clamped to (§4.G).
const (
	thinkingBudgetAbsoluteMin = 128
	thinkingBudgetAbsoluteMax = 32_768
	longContextTokens         = 200_000
)

// ApplyThinkingParams sets provider-specific "thinking" parameters on the
// decision, but only when the caller (triage/selector/artifact) hasn't
// already set them explicitly.
func ApplyThinkingParams(decision *models.RoutingDecision, bucket models.Bucket, f models.Features) {
	if decision.Params == nil {
		decision.Params = make(map[string]any)
	}

	switch decision.Provider {
	case models.ProviderOpenAI, models.ProviderOpenRouter:
		if _, ok := decision.Params["reasoning_effort"]; !ok {
			decision.Params["reasoning_effort"] = reasoningEffortFor(bucket)
		}
	case models.ProviderGoogle:
		if _, ok := decision.Params["thinking_budget"]; !ok {
			decision.Params["thinking_budget"] = thinkingBudgetFor(bucket, f)
		}
	}
}

func reasoningEffortFor(bucket models.Bucket) string {
	switch bucket {
	case models.BucketCheap:
		return "low"
	case models.BucketHard:
		return "high"
	default:
		return "medium"
	}
}

func thinkingBudgetFor(bucket models.Bucket, f models.Features) int {
	var budget int
	switch bucket {
	case models.BucketHard:
		budget = 20_000
	case models.BucketMid:
		budget = 6_000
	default:
		budget = thinkingBudgetAbsoluteMin
	}

	if f.EstimatedTokens > longContextTokens {
		budget = thinkingBudgetAbsoluteMax
	}

	return clamp(budget, thinkingBudgetAbsoluteMin, thinkingBudgetAbsoluteMax)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
