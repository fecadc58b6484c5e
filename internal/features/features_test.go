package features_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/routegate/gateway/internal/features"
	"github.com/routegate/gateway/pkg/contracts"
	"github.com/routegate/gateway/pkg/models"
)

type fakeEmbedder struct {
	dims  int
	delay time.Duration
	err   error
	vec   []float64
}

func (f *fakeEmbedder) Dimensions() int { return f.dims }

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float64, len(texts))
	for i := range texts {
		if f.vec != nil {
			out[i] = f.vec
		} else {
			out[i] = []float64{1, 2, 3}
		}
	}
	return out, nil
}

type fakeANN struct {
	err     error
	matches []contracts.ClusterMatch
}

func (f *fakeANN) Load(ctx context.Context, ref string) error { return nil }
func (f *fakeANN) NumClusters() int                           { return 3 }
func (f *fakeANN) Query(ctx context.Context, vector []float64, topK int) ([]contracts.ClusterMatch, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.matches, nil
}

func req(texts ...string) models.ChatRequest {
	var msgs []models.ChatMessage
	for _, t := range texts {
		msgs = append(msgs, models.ChatMessage{Role: "user", Content: t})
	}
	return models.ChatRequest{Messages: msgs}
}

func TestExtract_HappyPath(t *testing.T) {
	embedder := &fakeEmbedder{dims: 3, vec: []float64{0.1, 0.2, 0.3}}
	ann := &fakeANN{matches: []contracts.ClusterMatch{{ClusterID: 2, Distance: 0.5}, {ClusterID: 0, Distance: 0.9}}}
	ext := features.NewExtractor(embedder, ann, 2)

	f := ext.Extract(context.Background(), req("hello world"), nil)

	if f.Fallback {
		t.Fatal("expected non-fallback features")
	}
	if f.ClusterID != 2 {
		t.Errorf("ClusterID = %d, want 2", f.ClusterID)
	}
	if len(f.CentroidDistances) != 2 {
		t.Errorf("CentroidDistances len = %d, want 2", len(f.CentroidDistances))
	}
	if f.EstimatedTokens <= 0 {
		t.Errorf("EstimatedTokens = %d, want > 0", f.EstimatedTokens)
	}
}

func TestExtract_EmbeddingFailureFallsBackToZeroVector(t *testing.T) {
	embedder := &fakeEmbedder{dims: 4, err: errors.New("embedding service down")}
	ann := &fakeANN{}
	ext := features.NewExtractor(embedder, ann, 3)

	f := ext.Extract(context.Background(), req("some prompt"), nil)

	if f.ClusterID != 0 {
		t.Errorf("ClusterID = %d, want 0", f.ClusterID)
	}
	if len(f.CentroidDistances) != 1 || f.CentroidDistances[0] != 1.0 {
		t.Errorf("CentroidDistances = %v, want [1.0]", f.CentroidDistances)
	}
	if len(f.Embedding) != 4 {
		t.Errorf("Embedding len = %d, want 4 (zero vector)", len(f.Embedding))
	}
}

func TestExtract_ANNFailureKeepsEmbeddingButDefaultsCluster(t *testing.T) {
	embedder := &fakeEmbedder{dims: 3, vec: []float64{1, 1, 1}}
	ann := &fakeANN{err: errors.New("ann unavailable")}
	ext := features.NewExtractor(embedder, ann, 3)

	f := ext.Extract(context.Background(), req("some prompt"), nil)

	if f.ClusterID != 0 {
		t.Errorf("ClusterID = %d, want 0", f.ClusterID)
	}
	if len(f.Embedding) != 3 {
		t.Error("expected embedding to survive a partial (ANN-only) failure")
	}
}

func TestExtract_SoftDeadlineYieldsFallbackFeatures(t *testing.T) {
	embedder := &fakeEmbedder{dims: 3, delay: 100 * time.Millisecond}
	ann := &fakeANN{}
	ext := features.NewExtractor(embedder, ann, 3)

	start := time.Now()
	f := ext.Extract(context.Background(), req("func main() { return 1 }", "$x^2$"), nil)
	elapsed := time.Since(start)

	if !f.Fallback {
		t.Error("expected Fallback=true when extraction exceeds the soft deadline")
	}
	if elapsed > 200*time.Millisecond {
		t.Errorf("Extract took %v, want well under the embedder's 100ms delay plus overhead", elapsed)
	}
	if f.ClusterID != 0 {
		t.Errorf("fallback ClusterID = %d, want 0", f.ClusterID)
	}
	if !f.HasCode {
		t.Error("fallback features should still populate HasCode from a text scan")
	}
}

func TestContextRatio_ClampedTo1(t *testing.T) {
	embedder := &fakeEmbedder{dims: 1, vec: []float64{0}}
	ann := &fakeANN{matches: []contracts.ClusterMatch{{ClusterID: 0, Distance: 0}}}
	ext := features.NewExtractor(embedder, ann, 1)

	huge := make([]byte, 4*200_000) // ~200k tokens worth of bytes
	f := ext.Extract(context.Background(), req(string(huge)), nil)

	if f.ContextRatio != 1 {
		t.Errorf("ContextRatio = %v, want 1 (clamped)", f.ContextRatio)
	}
}

func TestHasCodeAndHasMathDetection(t *testing.T) {
	embedder := &fakeEmbedder{dims: 1, vec: []float64{0}}
	ann := &fakeANN{matches: []contracts.ClusterMatch{{ClusterID: 0, Distance: 0}}}
	ext := features.NewExtractor(embedder, ann, 1)

	f := ext.Extract(context.Background(), req("```go\nfunc main(){}\n```"), nil)
	if !f.HasCode {
		t.Error("expected HasCode=true for fenced code block")
	}

	f2 := ext.Extract(context.Background(), req("the answer is $e=mc^2$"), nil)
	if !f2.HasMath {
		t.Error("expected HasMath=true for LaTeX delimiters")
	}

	f3 := ext.Extract(context.Background(), req("just a plain sentence"), nil)
	if f3.HasCode || f3.HasMath {
		t.Error("expected neither flag for plain prose")
	}
}
