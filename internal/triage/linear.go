package triage

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/routegate/gateway/pkg/models"
)

// LinearFramework is the second concrete triage implementation the spec
// asks for beyond emergency (§4.D): a per-feature weight vector plus bias,
// one row per bucket, expressed as a small compiled expr program per
// bucket rather than a hand-rolled dot product — exercising the artifact's
// model_payload as real data driving a real embedded-expression-language
// dependency.
//
// model_payload shape: {"programs": [cheapExpr, midExpr, hardExpr]}, each
// an expr source string evaluated against the assembled feature vector
// (e.g. "estimated_tokens*0.00002 + has_code*0.3 - 0.1").
type LinearFramework struct {
	mu       sync.RWMutex
	programs [3]*vm.Program
	compiled string // artifact version these programs were compiled for
}

// NewLinearFramework creates an uncompiled linear framework; call Compile
// before first use (Predict does this automatically per artifact).
func NewLinearFramework() *LinearFramework {
	return &LinearFramework{}
}

// Compile parses the three per-bucket expr programs out of model_payload
// and caches them; it is a no-op if called again with the same source.
func (l *LinearFramework) Compile(payload map[string]any, schema []string) error {
	raw, ok := payload["programs"]
	if !ok {
		return fmt.Errorf("linear framework model_payload missing \"programs\"")
	}
	sources, ok := toStringSlice(raw)
	if !ok || len(sources) != 3 {
		return fmt.Errorf("linear framework \"programs\" must be a 3-element string array, one per bucket")
	}

	fingerprint := sources[0] + "|" + sources[1] + "|" + sources[2]

	l.mu.RLock()
	already := l.compiled == fingerprint
	l.mu.RUnlock()
	if already {
		return nil
	}

	env := make(map[string]float64, len(schema))
	for _, name := range schema {
		env[name] = 0
	}

	var programs [3]*vm.Program
	for i, src := range sources {
		p, err := expr.Compile(src, expr.Env(env), expr.AsFloat64())
		if err != nil {
			return fmt.Errorf("compile linear program %d: %w", i, err)
		}
		programs[i] = p
	}

	l.mu.Lock()
	l.programs = programs
	l.compiled = fingerprint
	l.mu.Unlock()
	return nil
}

// Score evaluates the compiled per-bucket expr programs against the
// assembled feature vector.
func (l *LinearFramework) Score(_ models.Features, vector map[string]float64) [3]float64 {
	l.mu.RLock()
	programs := l.programs
	l.mu.RUnlock()

	var out [3]float64
	for i, p := range programs {
		if p == nil {
			continue
		}
		result, err := expr.Run(p, vector)
		if err != nil {
			continue
		}
		if v, ok := result.(float64); ok {
			out[i] = v
		}
	}
	return out
}

func toStringSlice(raw any) ([]string, bool) {
	switch v := raw.(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}
