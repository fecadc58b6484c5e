// Package guardrail implements the Context Guardrail (§4.E): it escalates
// the triaged bucket when the prompt plus estimated output would exceed the
// chosen tier's capacity, with a 10% safety margin and a last-resort
// recommendation when even the hard tier can't fit the request.
package guardrail

import "github.com/routegate/gateway/pkg/models"

// Limits holds a bucket's input/output token capacity.
type Limits struct {
	Input  int
	Output int
}

// safetyMargin is applied to the input limit before comparison.
const safetyMargin = 0.9

// DefaultLimits are the per-bucket capacity defaults from §4.E.
var DefaultLimits = map[models.Bucket]Limits{
	models.BucketCheap: {Input: 32_768, Output: 8_192},
	models.BucketMid:   {Input: 128_000, Output: 8_192},
	models.BucketHard:  {Input: 1_048_576, Output: 8_192},
}

// Adjustment is the guardrail's output: the (possibly escalated) bucket,
// whether escalation occurred, why, and an optional last-resort model
// recommendation.
type Adjustment struct {
	Bucket           models.Bucket
	Escalated        bool
	Reason           string
	RecommendedModel string
}

// Guardrail holds the per-bucket capacity table (overridable for tests).
type Guardrail struct {
	limits map[models.Bucket]Limits
}

// New creates a guardrail with the default capacity table.
func New() *Guardrail {
	return &Guardrail{limits: DefaultLimits}
}

// EstimatedOutputTokens implements §4.E's escalation ladder for estimated
// output size: the maximum of all applicable rules wins.
func EstimatedOutputTokens(f models.Features) int {
	var candidates []int
	switch {
	case f.EstimatedTokens > 50_000:
		candidates = append(candidates, 8192)
	case f.EstimatedTokens > 20_000:
		candidates = append(candidates, 4096)
	}
	if f.HasCode {
		candidates = append(candidates, 4096)
	}
	if f.HasMath {
		candidates = append(candidates, 3072)
	}
	if f.EstimatedTokens < 1_000 {
		candidates = append(candidates, 1024)
	}
	if len(candidates) == 0 {
		return 2048
	}
	out := candidates[0]
	for _, c := range candidates[1:] {
		out = max(out, c)
	}
	return out
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Adjust escalates bucket toward hard until the tier's safe input capacity
// (input limit × 0.9) can accommodate prompt, or prompt+estimated-output.
func (g *Guardrail) Adjust(bucket models.Bucket, f models.Features, availableModels []models.ModelCatalogEntry) Adjustment {
	estimatedOutput := EstimatedOutputTokens(f)
	required := f.EstimatedTokens + estimatedOutput

	if g.fits(bucket, f.EstimatedTokens, required) {
		return Adjustment{Bucket: bucket}
	}

	next := escalate(bucket)
	if g.fits(next, f.EstimatedTokens, required) {
		return Adjustment{Bucket: next, Escalated: true, Reason: "prompt exceeds " + string(bucket) + " capacity"}
	}

	if g.fits(models.BucketHard, f.EstimatedTokens, required) {
		return Adjustment{Bucket: models.BucketHard, Escalated: true, Reason: "prompt exceeds " + string(next) + " capacity"}
	}

	// Even hard is insufficient: emergency escalation, recommend the
	// largest-window available model.
	recommended := largestWindowModel(availableModels)
	return Adjustment{
		Bucket:           models.BucketHard,
		Escalated:        true,
		Reason:           "emergency escalation: request exceeds hard tier capacity",
		RecommendedModel: recommended,
	}
}

func (g *Guardrail) fits(bucket models.Bucket, promptTokens, promptPlusOutput int) bool {
	limits := g.limits[bucket]
	safe := int(float64(limits.Input) * safetyMargin)
	return promptTokens <= safe && promptPlusOutput <= safe
}

func escalate(bucket models.Bucket) models.Bucket {
	switch bucket {
	case models.BucketCheap:
		return models.BucketMid
	default:
		return models.BucketHard
	}
}

func largestWindowModel(catalog []models.ModelCatalogEntry) string {
	var best models.ModelCatalogEntry
	for _, m := range catalog {
		if m.ContextWindow > best.ContextWindow {
			best = m
		}
	}
	return best.Slug
}
