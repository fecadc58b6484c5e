package gatewayauth_test

import (
	"net/http"
	"testing"

	"github.com/routegate/gateway/internal/gatewayauth"
)

func newTestRegistry() *gatewayauth.Registry {
	r := gatewayauth.NewRegistry()
	r.Register(gatewayauth.NewAnthropicAdapter())
	r.Register(gatewayauth.NewGoogleAdapter())
	r.Register(gatewayauth.NewOpenAIAdapter())
	return r
}

func TestFindMatch_AnthropicBearer(t *testing.T) {
	r := newTestRegistry()
	h := http.Header{}
	h.Set("Authorization", "Bearer ant-abc123")
	a := r.FindMatch(h)
	if a == nil || a.ID() != "anthropic_oauth" {
		t.Fatalf("FindMatch() = %v, want anthropic_oauth", a)
	}
}

func TestFindMatch_OpenAIKeyHeader(t *testing.T) {
	r := newTestRegistry()
	h := http.Header{}
	h.Set("x-openai-api-key", "sk-something")
	a := r.FindMatch(h)
	if a == nil || a.ID() != "openai_key" {
		t.Fatalf("FindMatch() = %v, want openai_key", a)
	}
}

func TestFindMatch_GoogleAPIKeyHeader(t *testing.T) {
	r := newTestRegistry()
	h := http.Header{}
	h.Set("x-goog-api-key", "AIza"+stringOfLen(40))
	a := r.FindMatch(h)
	if a == nil || a.ID() != "google_oauth_or_apikey" {
		t.Fatalf("FindMatch() = %v, want google_oauth_or_apikey", a)
	}
}

func TestFindMatch_NoneMatches(t *testing.T) {
	r := newTestRegistry()
	h := http.Header{}
	a := r.FindMatch(h)
	if a != nil {
		t.Errorf("FindMatch() = %v, want nil for unauthenticated request", a)
	}
}

func TestFindMatch_RegistrationOrderBreaksTies(t *testing.T) {
	// A bearer token that is both >=50 char base64url (matches Anthropic)
	// won't also match Google's 100+ char requirement, so construct a
	// token that satisfies both adapters' regexes to test ordering.
	r := gatewayauth.NewRegistry()
	r.Register(gatewayauth.NewGoogleAdapter())
	r.Register(gatewayauth.NewAnthropicAdapter())

	token := stringOfLen(110) // satisfies both base64url(50+) and google(100+) shapes
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)

	a := r.FindMatch(h)
	if a == nil || a.ID() != "google_oauth_or_apikey" {
		t.Fatalf("FindMatch() = %v, want google_oauth_or_apikey (registered first)", a)
	}
}

func TestGetEnabled_OrderAndDuplicatesAndUnknownDropped(t *testing.T) {
	r := newTestRegistry()
	got := r.GetEnabled([]string{"openai_key", "bogus-id", "anthropic_oauth", "openai_key"})
	if len(got) != 3 {
		t.Fatalf("GetEnabled() returned %d adapters, want 3", len(got))
	}
	if got[0].ID() != "openai_key" || got[1].ID() != "anthropic_oauth" || got[2].ID() != "openai_key" {
		t.Errorf("GetEnabled() order = %v, want [openai_key anthropic_oauth openai_key]", ids(got))
	}
}

func ids(adapters []gatewayauth.Adapter) []string {
	out := make([]string, len(adapters))
	for i, a := range adapters {
		out[i] = a.ID()
	}
	return out
}

func stringOfLen(n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[i%len(alphabet)]
	}
	return string(b)
}
