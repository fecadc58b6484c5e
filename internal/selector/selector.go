// Package selector implements the α-Score Selector (§4.F): given a
// non-empty ordered candidate list, it picks the model trading off quality
// against cost under the artifact's alpha weight, reading relative latency
// variance from the same EMA tracker the Provider Executor maintains
// (internal/breaker.LatencyTable) rather than keeping a second one.
package selector

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/routegate/gateway/internal/breaker"
	"github.com/routegate/gateway/pkg/models"
	"github.com/rs/zerolog/log"
)

// adjustmentSource is the closed set of model-specific adjustments from
// §4.F, expressed as one small expr program compiled once and evaluated
// per request — turning the closed set into data evaluated through a real
// embedded-expression-language dependency rather than a hand-rolled switch.
const adjustmentSource = `
	(is_deepseek && has_code ? -0.05 : 0.0) +
	(!is_reasoning && has_math ? 0.10 : 0.0) +
	(!is_gemini && tokens > 100000 ? 0.15 : 0.0)
`

// Selector scores candidates and picks the best one per artifact, with an
// optional epsilon-greedy exploration mode (default off).
type Selector struct {
	latencies *breaker.LatencyTable
	adjust    *vm.Program

	// Epsilon is the exploration probability; 0 means always greedy.
	Epsilon float64
	// TopN bounds the exploration pool when Epsilon > 0.
	TopN int
}

// New builds a selector sharing the given latency table with the executor.
func New(latencies *breaker.LatencyTable) *Selector {
	env := map[string]any{
		"is_deepseek": false, "is_gemini": false, "is_reasoning": false,
		"has_code": false, "has_math": false, "tokens": 0,
	}
	program, err := expr.Compile(adjustmentSource, expr.Env(env), expr.AsFloat64())
	if err != nil {
		// The program is a fixed literal compiled at construction; a
		// failure here is a programming error, not a runtime condition.
		panic(fmt.Sprintf("selector: adjustment program failed to compile: %v", err))
	}
	return &Selector{latencies: latencies, adjust: program}
}

type scored struct {
	model string
	score float64
	index int
}

// Select returns the best model slug among candidates, or "" if candidates
// is empty (callers should treat that as a loggable warning per §8).
func (s *Selector) Select(requestID string, candidates []string, f models.Features, artifact *models.Artifact) string {
	if len(candidates) == 0 {
		log.Warn().Msg("selector called with empty candidate list")
		return ""
	}
	if len(candidates) == 1 {
		return candidates[0]
	}

	var eligible []scored
	for i, m := range candidates {
		sc, ok := s.score(m, f, artifact)
		if !ok {
			continue
		}
		eligible = append(eligible, scored{model: m, score: sc, index: i})
	}
	if len(eligible) == 0 {
		return candidates[0]
	}

	sortByScoreThenOrder(eligible)

	if s.Epsilon > 0 {
		return s.explore(requestID, eligible)
	}
	return eligible[0].model
}

func (s *Selector) score(m string, f models.Features, artifact *models.Artifact) (float64, bool) {
	quality, okQ := artifact.QHat[m]
	cost, okC := artifact.CHat[m]
	if !okQ || !okC {
		return 0, false
	}

	q := meanOf(quality)
	if f.ClusterID >= 0 && f.ClusterID < len(quality) {
		q = quality[f.ClusterID]
	}

	penalty := 0.0
	if f.ContextRatio > 0.8 {
		penalty += artifact.Penalties.CtxOver80Pct
	}

	provider, model := splitSlug(m)
	penalty += artifact.Penalties.LatencySD * s.latencies.RelativeVariance(provider, model)
	penalty += s.adjustment(m, f)

	score := artifact.Alpha*q - (1-artifact.Alpha)*cost - penalty
	return score, true
}

func (s *Selector) adjustment(slug string, f models.Features) float64 {
	env := map[string]any{
		"is_deepseek": strings.Contains(strings.ToLower(slug), "deepseek"),
		"is_gemini":   strings.Contains(strings.ToLower(slug), "gemini"),
		"is_reasoning": isReasoningModel(slug),
		"has_code":    f.HasCode,
		"has_math":    f.HasMath,
		"tokens":      f.EstimatedTokens,
	}
	result, err := expr.Run(s.adjust, env)
	if err != nil {
		return 0
	}
	v, _ := result.(float64)
	return v
}

// isReasoningModel heuristically flags models with built-in chain-of-thought
// reasoning (OpenAI o-series, Claude/Gemini "thinking" variants).
func isReasoningModel(slug string) bool {
	lower := strings.ToLower(slug)
	for _, marker := range []string{"o1", "o3", "thinking", "opus-4", "gemini-2.5-pro"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func splitSlug(slug string) (provider, model string) {
	parts := strings.SplitN(slug, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "", slug
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// sortByScoreThenOrder sorts descending by score, breaking ties by original
// candidate order (first candidate wins).
func sortByScoreThenOrder(xs []scored) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && less(xs[j], xs[j-1]); j-- {
			xs[j], xs[j-1] = xs[j-1], xs[j]
		}
	}
}

func less(a, b scored) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	return a.index < b.index
}

// explore picks uniformly among the top-N scorers, seeded from the request
// id's hash so the choice is reproducible per request (never the global
// rand source, per §9).
func (s *Selector) explore(requestID string, eligible []scored) string {
	n := s.TopN
	if n <= 0 || n > len(eligible) {
		n = len(eligible)
	}
	r := rand.New(rand.NewSource(seedFromRequestID(requestID)))
	if r.Float64() >= s.Epsilon {
		return eligible[0].model
	}
	return eligible[r.Intn(n)].model
}

func seedFromRequestID(requestID string) int64 {
	h := fnv.New64a()
	h.Write([]byte(requestID))
	return int64(h.Sum64())
}
