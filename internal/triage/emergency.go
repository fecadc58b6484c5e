package triage

import "github.com/routegate/gateway/pkg/models"

// EmergencyFramework is the hand-tuned rule set §4.D specifies as the
// always-present terminal fallback: it never fails, so triage always has
// somewhere to land when the configured GBDT framework is unavailable.
type EmergencyFramework struct{}

// Score returns a one-hot vector over {cheap, mid, hard} per the rules:
// hard if tokens > 100,000 or (has_code AND has_math); cheap if tokens <
// 1,000 and neither flag is set; mid otherwise.
func (EmergencyFramework) Score(f models.Features, _ map[string]float64) [3]float64 {
	switch {
	case f.EstimatedTokens > 100_000 || (f.HasCode && f.HasMath):
		return [3]float64{0, 0, 1} // hard
	case f.EstimatedTokens < 1_000 && !f.HasCode && !f.HasMath:
		return [3]float64{1, 0, 0} // cheap
	default:
		return [3]float64{0, 1, 0} // mid
	}
}
