package artifact

import (
	"fmt"

	"github.com/routegate/gateway/pkg/models"
)

// Validate checks the invariants of §3: every qhat-referenced model also
// appears in chat and vice versa, qhat rows have length K, and thresholds
// lie in [0,1].
func Validate(a *models.Artifact) error {
	if a.Version == "" {
		return fmt.Errorf("%w: missing version", artifactInvalidErr{})
	}
	if a.Thresholds.Cheap < 0 || a.Thresholds.Cheap > 1 || a.Thresholds.Hard < 0 || a.Thresholds.Hard > 1 {
		return fmt.Errorf("%w: thresholds out of [0,1]", artifactInvalidErr{})
	}
	if a.Alpha < 0 || a.Alpha > 1 {
		return fmt.Errorf("%w: alpha out of [0,1]", artifactInvalidErr{})
	}
	if a.NumClusters <= 0 {
		return fmt.Errorf("%w: num_clusters must be positive", artifactInvalidErr{})
	}
	for model, scores := range a.QHat {
		if len(scores) != a.NumClusters {
			return fmt.Errorf("%w: qhat[%s] has length %d, want %d", artifactInvalidErr{}, model, len(scores), a.NumClusters)
		}
		if _, ok := a.CHat[model]; !ok {
			return fmt.Errorf("%w: model %q present in qhat but missing from chat", artifactInvalidErr{}, model)
		}
	}
	for model := range a.CHat {
		if _, ok := a.QHat[model]; !ok {
			return fmt.Errorf("%w: model %q present in chat but missing from qhat", artifactInvalidErr{}, model)
		}
	}
	for bucket, candidates := range a.BucketCandidates {
		for _, m := range candidates {
			if _, ok := a.QHat[m]; !ok {
				return fmt.Errorf("%w: bucket %q candidate %q missing from qhat", artifactInvalidErr{}, bucket, m)
			}
			if _, ok := a.CHat[m]; !ok {
				return fmt.Errorf("%w: bucket %q candidate %q missing from chat", artifactInvalidErr{}, bucket, m)
			}
		}
	}
	return nil
}

// EmergencyArtifact is the hard-coded deterministic fallback used when no
// remote source and no disk cache are available (§4.B step 4, §7
// artifact_unavailable). It covers two models (a cheaper and a stronger one)
// per major provider so the gateway can still serve requests in degraded
// mode.
func EmergencyArtifact() *models.Artifact {
	return &models.Artifact{
		Version: "emergency",
		Alpha:   0.6,
		Thresholds: models.Thresholds{
			Cheap: 0.3,
			Hard:  0.7,
		},
		Penalties: models.Penalties{
			LatencySD:    0.05,
			CtxOver80Pct: 0.1,
		},
		NumClusters: 1,
		QHat: map[string][]float64{
			"openai/gpt-4o-mini":                 {0.55},
			"openai/gpt-5":                       {0.85},
			"anthropic/claude-3-5-haiku-20241022": {0.6},
			"anthropic/claude-opus-4-20250514":    {0.9},
			"google/gemini-2.5-flash":             {0.6},
			"google/gemini-2.5-pro":               {0.85},
		},
		CHat: map[string]float64{
			"openai/gpt-4o-mini":                 0.1,
			"openai/gpt-5":                       0.6,
			"anthropic/claude-3-5-haiku-20241022": 0.1,
			"anthropic/claude-opus-4-20250514":    0.8,
			"google/gemini-2.5-flash":             0.1,
			"google/gemini-2.5-pro":               0.55,
		},
		GBDT: models.GBDTHandle{
			Framework:     "emergency",
			FeatureSchema: []string{"estimated_tokens", "has_code", "has_math", "entropy_bits", "context_ratio"},
		},
		Centroids: "",
		BucketCandidates: map[models.Bucket][]string{
			models.BucketCheap: {"openai/gpt-4o-mini", "anthropic/claude-3-5-haiku-20241022", "google/gemini-2.5-flash"},
			models.BucketMid:   {"openai/gpt-4o-mini", "google/gemini-2.5-flash", "anthropic/claude-3-5-haiku-20241022", "google/gemini-2.5-pro"},
			models.BucketHard:  {"openai/gpt-5", "anthropic/claude-opus-4-20250514", "google/gemini-2.5-pro"},
		},
	}
}
