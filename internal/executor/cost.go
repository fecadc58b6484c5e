package executor

import "github.com/routegate/gateway/pkg/models"

// perTokenRate holds per-1000-token dollar rates for one model.
type perTokenRate struct {
	promptPer1K     float64
	completionPer1K float64
}

// defaultRates is the fallback cost table used when an artifact doesn't
// carry cost data for a model (or isn't consulted at all — the executor
// estimates dollar cost independently of the selector's normalized CHat
// scores, which are relative ranking signals, not billable amounts).
var defaultRates = map[string]perTokenRate{
	"openai/gpt-5":                      {promptPer1K: 0.0050, completionPer1K: 0.0150},
	"openai/gpt-5-mini":                 {promptPer1K: 0.0010, completionPer1K: 0.0030},
	"anthropic/claude-opus-4":           {promptPer1K: 0.0150, completionPer1K: 0.0750},
	"anthropic/claude-sonnet-4":         {promptPer1K: 0.0030, completionPer1K: 0.0150},
	"anthropic/claude-haiku-4":          {promptPer1K: 0.0008, completionPer1K: 0.0040},
	"google/gemini-2.5-pro":             {promptPer1K: 0.0025, completionPer1K: 0.0100},
	"google/gemini-2.5-flash":           {promptPer1K: 0.0003, completionPer1K: 0.0025},
	"openrouter/meta-llama/llama-3.1-8b-instruct": {promptPer1K: 0.0001, completionPer1K: 0.0001},
}

// providerFallbackRate is used when neither the exact slug nor the provider default
// is known, so an estimate is still produced rather than silently zeroed.
var providerFallbackRate = map[models.ProviderKind]perTokenRate{
	models.ProviderOpenAI:     {promptPer1K: 0.0030, completionPer1K: 0.0100},
	models.ProviderAnthropic:  {promptPer1K: 0.0030, completionPer1K: 0.0150},
	models.ProviderGoogle:     {promptPer1K: 0.0020, completionPer1K: 0.0080},
	models.ProviderOpenRouter: {promptPer1K: 0.0005, completionPer1K: 0.0015},
}

// EstimateCost computes a dollar estimate for one completed call, grounded
// in a static per-model rate table rather than the artifact's normalized
// cost scores (those rank candidates against each other; they aren't
// denominated in dollars).
func EstimateCost(provider models.ProviderKind, model string, promptTokens, completionTokens int) float64 {
	rate, ok := defaultRates[string(provider)+"/"+model]
	if !ok {
		rate, ok = providerFallbackRate[provider]
		if !ok {
			return 0
		}
	}
	return float64(promptTokens)/1000*rate.promptPer1K + float64(completionTokens)/1000*rate.completionPer1K
}
