package triage_test

import (
	"testing"

	"github.com/routegate/gateway/internal/triage"
	"github.com/routegate/gateway/pkg/models"
)

func TestLinearFramework_CompileAndScore(t *testing.T) {
	l := triage.NewLinearFramework()
	schema := []string{"estimated_tokens", "has_code"}
	payload := map[string]any{
		"programs": []any{
			"1.0 - estimated_tokens*0.001", // cheap: favors short prompts
			"0.5",                          // mid: constant
			"estimated_tokens*0.001",       // hard: favors long prompts
		},
	}
	if err := l.Compile(payload, schema); err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	vector := map[string]float64{"estimated_tokens": 10, "has_code": 0}
	raw := l.Score(models.Features{}, vector)
	if raw[0] <= raw[2] {
		t.Errorf("short-prompt score %v: expected cheap score to exceed hard score", raw)
	}
}

func TestLinearFramework_CompileRejectsMalformedPayload(t *testing.T) {
	l := triage.NewLinearFramework()
	if err := l.Compile(map[string]any{}, nil); err == nil {
		t.Error("expected an error for a payload missing \"programs\"")
	}
	if err := l.Compile(map[string]any{"programs": []any{"1", "2"}}, nil); err == nil {
		t.Error("expected an error for a programs array that isn't length 3")
	}
}

func TestClassifier_LinearFrameworkViaArtifact(t *testing.T) {
	c := triage.NewClassifier()
	artifact := &models.Artifact{
		GBDT: models.GBDTHandle{
			Framework:     "linear",
			FeatureSchema: []string{"estimated_tokens"},
			ModelPayload: map[string]any{
				"programs": []any{"2.0", "0.0", "0.0"},
			},
		},
	}
	p := c.Predict(models.Features{EstimatedTokens: 100}, artifact)
	if p.Cheap <= p.Mid || p.Cheap <= p.Hard {
		t.Errorf("expected the linear framework's strong cheap bias to dominate, got %+v", p)
	}
}

func TestClassifier_LinearFrameworkCompileFailureFallsBackToEmergency(t *testing.T) {
	c := triage.NewClassifier()
	artifact := &models.Artifact{
		GBDT: models.GBDTHandle{
			Framework:    "linear",
			ModelPayload: map[string]any{}, // missing "programs" -> compile error
		},
	}
	p := c.Predict(models.Features{EstimatedTokens: 500}, artifact)
	if p.Cheap <= p.Mid || p.Cheap <= p.Hard {
		t.Errorf("expected emergency fallback for a small prompt, got %+v", p)
	}
}
