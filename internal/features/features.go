// Package features implements the Feature Extractor (§4.A): it turns a
// parsed chat request into the Features value the triage classifier and
// selector consume, under a 25ms soft deadline that always degrades to
// well-formed fallback features rather than failing the request.
package features

import (
	"context"
	"math"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/routegate/gateway/pkg/contracts"
	"github.com/routegate/gateway/pkg/models"
	"github.com/rs/zerolog/log"
)

// SoftDeadline is the time budget extraction gets before falling back to
// placeholder features.
const SoftDeadline = 25 * time.Millisecond

// nominalContextWindow is the denominator for context_ratio (§3).
const nominalContextWindow = 128_000

var (
	codeFence   = regexp.MustCompile("```")
	codeBacktick = regexp.MustCompile("`[^`\n]+`")
	codeKeywords = regexp.MustCompile(`(?i)\b(func|def|class|import|const|let|var|return|public\s+class|#include)\b`)

	mathDelimiter = regexp.MustCompile(`\$\$?[^$]+\$\$?`)
)

// isMathRune reports whether r is a code point commonly used in math notation.
func isMathRune(r rune) bool {
	return unicode.Is(unicode.Greek, r) ||
		(r >= 0x2200 && r <= 0x22FF) || // mathematical operators block
		(r >= 0x2190 && r <= 0x21FF) // arrows, used in math proofs
}

// Extractor produces Features from a chat request, using the supplied
// embedding service and ANN index collaborators.
type Extractor struct {
	embedder contracts.EmbeddingService
	ann      contracts.ANNIndex
	topAlpha int
}

// NewExtractor builds an Extractor. topAlpha is the number of nearest
// centroids requested from the ANN index per extraction (§3's "up to α
// nearest-centroid distances").
func NewExtractor(embedder contracts.EmbeddingService, ann contracts.ANNIndex, topAlpha int) *Extractor {
	if topAlpha < 1 {
		topAlpha = 5
	}
	return &Extractor{embedder: embedder, ann: ann, topAlpha: topAlpha}
}

// Extract never returns an error; total failure or deadline overrun yields
// well-formed fallback features instead.
func (e *Extractor) Extract(ctx context.Context, req models.ChatRequest, artifact *models.Artifact) models.Features {
	ctx, cancel := context.WithTimeout(ctx, SoftDeadline)
	defer cancel()

	done := make(chan models.Features, 1)
	go func() {
		done <- e.extract(ctx, req)
	}()

	select {
	case f := <-done:
		return f
	case <-ctx.Done():
		log.Warn().Str("reason", string(models.ErrFeatureTimeout)).Msg("feature extraction hit soft deadline")
		return fallbackFeatures(req.Prompt())
	}
}

func (e *Extractor) extract(ctx context.Context, req models.ChatRequest) models.Features {
	prompt := req.Prompt()

	f := models.Features{
		EstimatedTokens: estimateTokens(prompt),
		HasCode:         hasCode(prompt),
		HasMath:         hasMath(prompt),
		EntropyBits:     trigramEntropy(prompt),
	}
	f.ContextRatio = math.Min(1, float64(f.EstimatedTokens)/float64(nominalContextWindow))

	vectors, err := e.embedder.Embed(ctx, []string{prompt})
	if err != nil || len(vectors) == 0 {
		log.Debug().Err(err).Msg("embedding service failed, using zero vector")
		f.Embedding = make([]float64, e.embedder.Dimensions())
		f.ClusterID = 0
		f.CentroidDistances = []float64{1.0}
		return f
	}
	f.Embedding = vectors[0]

	matches, err := e.ann.Query(ctx, f.Embedding, e.topAlpha)
	if err != nil || len(matches) == 0 {
		log.Debug().Err(err).Msg("ann index query failed, defaulting to cluster 0")
		f.ClusterID = 0
		f.CentroidDistances = []float64{1.0}
		return f
	}

	f.ClusterID = matches[0].ClusterID
	dists := make([]float64, len(matches))
	for i, m := range matches {
		dists[i] = m.Distance
	}
	f.CentroidDistances = dists
	return f
}

// fallbackFeatures returns the documented deterministic placeholder: zero
// embedding, cluster 0, a single distance of 1.0, heuristic flags still
// populated from the text we do have, neutral entropy.
func fallbackFeatures(prompt string) models.Features {
	return models.Features{
		Embedding:         nil,
		ClusterID:         0,
		CentroidDistances: []float64{1.0},
		EstimatedTokens:   estimateTokens(prompt),
		HasCode:           hasCode(prompt),
		HasMath:           hasMath(prompt),
		EntropyBits:       4.0, // neutral constant, mid-range for printable text
		ContextRatio:      math.Min(1, float64(estimateTokens(prompt))/float64(nominalContextWindow)),
		Fallback:          true,
	}
}

func estimateTokens(prompt string) int {
	return int(math.Ceil(float64(len(prompt)) / 4.0))
}

func hasCode(prompt string) bool {
	return codeFence.MatchString(prompt) || codeBacktick.MatchString(prompt) || codeKeywords.MatchString(prompt)
}

func hasMath(prompt string) bool {
	if mathDelimiter.MatchString(prompt) {
		return true
	}
	for _, r := range prompt {
		if isMathRune(r) {
			return true
		}
	}
	return false
}

// trigramEntropy computes the Shannon entropy, in bits, of the frequency
// distribution of character 3-grams in text.
func trigramEntropy(text string) float64 {
	runes := []rune(strings.ToLower(text))
	if len(runes) < 3 {
		return 0
	}

	counts := make(map[string]int)
	total := 0
	for i := 0; i+3 <= len(runes); i++ {
		gram := string(runes[i : i+3])
		counts[gram]++
		total++
	}
	if total == 0 {
		return 0
	}

	entropy := 0.0
	for _, c := range counts {
		p := float64(c) / float64(total)
		entropy -= p * math.Log2(p)
	}
	return entropy
}
