// Package gatewayauth implements the Auth Adapter Registry (§4.C): the
// per-request credential identification and outbound-credential shaping
// that sits on the chat-completion hot path. It is deliberately separate
// from internal/auth, which guards the dashboard/admin HTTP surface with a
// distinct Identity-based provider chain — these are two unrelated
// concerns that happen to share the "ordered chain of matchers" shape.
package gatewayauth

import (
	"net/http"
	"sync"

	"github.com/routegate/gateway/pkg/models"
)

// Adapter identifies one inbound credential shape and knows how to apply it
// to an outgoing provider request.
type Adapter interface {
	// ID is the adapter's stable identifier.
	ID() string

	// Matches reports whether this adapter recognizes the credential
	// carried by the inbound request headers.
	Matches(headers http.Header) bool

	// Extract pulls the AuthInfo out of matching headers. Only called after
	// Matches returns true.
	Extract(headers http.Header) (*models.AuthInfo, error)

	// Apply shapes the outgoing provider request to carry the credential
	// (header, query param, content type) per adapter.
	Apply(req *http.Request, info *models.AuthInfo)

	// Validate optionally checks a token's shape beyond the Matches
	// heuristic. Adapters that don't need it return true.
	Validate(token string) bool
}

// Registry holds adapters in registration order. findMatch (FindMatch)
// scans in that order and returns the first match; ties are broken by
// registration order, per §4.C.
type Registry struct {
	mu       sync.RWMutex
	adapters []Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends an adapter to the end of the chain.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters = append(r.adapters, a)
}

// FindMatch scans registered adapters in order and returns the first whose
// Matches predicate is true. Returns nil if none match (auth_missing, §7).
func (r *Registry) FindMatch(headers http.Header) Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.adapters {
		if a.Matches(headers) {
			return a
		}
	}
	return nil
}

// GetEnabled returns adapters in the caller-supplied id order, allowing
// duplicates; unknown ids are silently dropped.
func (r *Registry) GetEnabled(ids []string) []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byID := make(map[string]Adapter, len(r.adapters))
	for _, a := range r.adapters {
		byID[a.ID()] = a
	}

	out := make([]Adapter, 0, len(ids))
	for _, id := range ids {
		if a, ok := byID[id]; ok {
			out = append(out, a)
		}
	}
	return out
}

// Authenticate runs FindMatch and Extract in one step, the shape the
// feature-extraction and selection pipeline actually calls.
func (r *Registry) Authenticate(headers http.Header) (*models.AuthInfo, error) {
	a := r.FindMatch(headers)
	if a == nil {
		return nil, nil
	}
	return a.Extract(headers)
}
