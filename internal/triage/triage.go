// Package triage implements the Triage Classifier (§4.D): it assembles the
// numeric input vector described by the artifact's feature schema and
// evaluates it against the gradient-boosted model the artifact references,
// polymorphic over a small closed set of frameworks discriminated by the
// artifact's `gbdt.framework` tag.
package triage

import (
	"fmt"
	"math"

	"github.com/routegate/gateway/pkg/models"
	"github.com/rs/zerolog/log"
)

// Framework is the capability set every concrete triage implementation
// satisfies: an ordered feature schema and a scoring function producing
// one raw score per bucket (cheap, mid, hard), softmax-normalized by the
// classifier.
type Framework interface {
	// Score returns raw (pre-softmax) scores for {cheap, mid, hard}, in
	// that order, given the assembled feature vector.
	Score(features models.Features, vector map[string]float64) [3]float64
}

// Classifier dispatches prediction to the framework named by the artifact's
// gbdt.framework tag, falling back to the emergency framework if the named
// one cannot be constructed (triage_unavailable, §7).
type Classifier struct {
	emergency *EmergencyFramework
	linear    *LinearFramework
}

// NewClassifier builds a classifier with both shipped frameworks ready;
// Predict picks between them per-artifact.
func NewClassifier() *Classifier {
	return &Classifier{
		emergency: &EmergencyFramework{},
		linear:    NewLinearFramework(),
	}
}

// Predict assembles the feature vector per the artifact's schema and scores
// it with the framework the artifact names, softmax-normalizing the result.
func (c *Classifier) Predict(features models.Features, artifact *models.Artifact) models.BucketProbabilities {
	vector := assembleVector(features, artifact.GBDT.FeatureSchema)

	framework, err := c.resolve(artifact)
	if err != nil {
		log.Warn().Err(err).Str("framework", artifact.GBDT.Framework).Msg("triage framework unavailable, using emergency rules")
		framework = c.emergency
	}

	raw := framework.Score(features, vector)
	return softmax3(raw)
}

func (c *Classifier) resolve(artifact *models.Artifact) (Framework, error) {
	switch artifact.GBDT.Framework {
	case "", "emergency":
		return c.emergency, nil
	case "linear":
		if err := c.linear.Compile(artifact.GBDT.ModelPayload, artifact.GBDT.FeatureSchema); err != nil {
			return nil, fmt.Errorf("%w: %v", triageUnavailableErr{}, err)
		}
		return c.linear, nil
	default:
		return nil, fmt.Errorf("%w: unknown framework %q", triageUnavailableErr{}, artifact.GBDT.Framework)
	}
}

type triageUnavailableErr struct{}

func (triageUnavailableErr) Error() string { return string(models.ErrTriageUnavailable) }

// assembleVector zero-imputes unknown schema names and populates known
// Features fields in the order the schema requests.
func assembleVector(f models.Features, schema []string) map[string]float64 {
	known := map[string]float64{
		"estimated_tokens": float64(f.EstimatedTokens),
		"has_code":         boolToFloat(f.HasCode),
		"has_math":         boolToFloat(f.HasMath),
		"entropy_bits":     f.EntropyBits,
		"context_ratio":    f.ContextRatio,
		"cluster_id":       float64(f.ClusterID),
	}
	vector := make(map[string]float64, len(schema))
	for _, name := range schema {
		if v, ok := known[name]; ok {
			vector[name] = v
			continue
		}
		vector[name] = 0 // unknown feature, zero-imputed per §4.D
	}
	return vector
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func softmax3(raw [3]float64) models.BucketProbabilities {
	max := raw[0]
	for _, v := range raw {
		if v > max {
			max = v
		}
	}
	exps := [3]float64{}
	sum := 0.0
	for i, v := range raw {
		exps[i] = math.Exp(v - max)
		sum += exps[i]
	}
	if sum == 0 {
		return models.BucketProbabilities{Cheap: 1.0 / 3, Mid: 1.0 / 3, Hard: 1.0 / 3}
	}
	return models.BucketProbabilities{
		Cheap: exps[0] / sum,
		Mid:   exps[1] / sum,
		Hard:  exps[2] / sum,
	}
}
