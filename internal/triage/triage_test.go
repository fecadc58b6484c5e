package triage_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/routegate/gateway/internal/triage"
	"github.com/routegate/gateway/pkg/models"
)

func sumProbs(p models.BucketProbabilities) float64 {
	return p.Cheap + p.Mid + p.Hard
}

func TestEmergencyFramework_Hard(t *testing.T) {
	var f triage.EmergencyFramework
	raw := f.Score(models.Features{EstimatedTokens: 200_000}, nil)
	assert.Equal(t, [3]float64{0, 0, 1}, raw, "want hard one-hot")

	raw2 := f.Score(models.Features{HasCode: true, HasMath: true, EstimatedTokens: 100}, nil)
	assert.Equal(t, [3]float64{0, 0, 1}, raw2, "want hard one-hot for code&&math")
}

func TestEmergencyFramework_Cheap(t *testing.T) {
	var f triage.EmergencyFramework
	raw := f.Score(models.Features{EstimatedTokens: 500}, nil)
	assert.Equal(t, [3]float64{1, 0, 0}, raw, "want cheap one-hot")
}

func TestEmergencyFramework_Mid(t *testing.T) {
	var f triage.EmergencyFramework
	raw := f.Score(models.Features{EstimatedTokens: 5000}, nil)
	assert.Equal(t, [3]float64{0, 1, 0}, raw, "want mid one-hot")
}

func TestClassifier_Predict_SumsToOne(t *testing.T) {
	c := triage.NewClassifier()
	artifact := &models.Artifact{GBDT: models.GBDTHandle{Framework: "emergency"}}
	for _, tokens := range []int{0, 500, 5000, 50000, 200000} {
		p := c.Predict(models.Features{EstimatedTokens: tokens}, artifact)
		assert.InDelta(t, 1.0, sumProbs(p), 1e-6, "tokens=%d probabilities should sum to 1", tokens)
		assert.GreaterOrEqual(t, p.Cheap, 0.0, "tokens=%d: negative probability in %+v", tokens, p)
		assert.GreaterOrEqual(t, p.Mid, 0.0, "tokens=%d: negative probability in %+v", tokens, p)
		assert.GreaterOrEqual(t, p.Hard, 0.0, "tokens=%d: negative probability in %+v", tokens, p)
	}
}

func TestClassifier_UnknownFrameworkFallsBackToEmergency(t *testing.T) {
	c := triage.NewClassifier()
	artifact := &models.Artifact{GBDT: models.GBDTHandle{Framework: "some-unregistered-framework"}}
	p := c.Predict(models.Features{EstimatedTokens: 500}, artifact)
	assert.True(t, p.Cheap > p.Mid && p.Cheap > p.Hard, "expected emergency-framework fallback to favor cheap for a small prompt, got %+v", p)
}

func TestClassifier_EmptyFrameworkTagUsesEmergency(t *testing.T) {
	c := triage.NewClassifier()
	artifact := &models.Artifact{}
	p := c.Predict(models.Features{EstimatedTokens: 200_000}, artifact)
	assert.True(t, p.Hard > p.Cheap && p.Hard > p.Mid, "expected empty framework tag to default to emergency rules, got %+v", p)
}
