package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/routegate/gateway/internal/api/middleware"
	pkgmw "github.com/routegate/gateway/pkg/middleware"
	"github.com/routegate/gateway/pkg/contracts"
)

type stubChain struct {
	identity *contracts.Identity
	err      error
}

func (c *stubChain) Authenticate(ctx context.Context, r *http.Request) (*contracts.Identity, error) {
	return c.identity, c.err
}
func (c *stubChain) RegisterProvider(p contracts.AuthProvider) {}

func TestAuthMiddleware_PublicPathsSkipAuthentication(t *testing.T) {
	t.Setenv("GATEWAY_REQUIRE_AUTH", "true")
	am := middleware.NewAuthMiddleware(&stubChain{err: nil, identity: nil})

	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	for _, path := range []string{"/health", "/version", "/v1/chat/completions"} {
		called = false
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		am.Handler(next).ServeHTTP(rec, req)
		if !called {
			t.Errorf("path %s: expected next handler to run without auth", path)
		}
		if rec.Code != http.StatusOK {
			t.Errorf("path %s: status = %d, want 200", path, rec.Code)
		}
	}
}

func TestAuthMiddleware_AuthenticationErrorReturnsUnauthorized(t *testing.T) {
	t.Setenv("GATEWAY_REQUIRE_AUTH", "false")
	am := middleware.NewAuthMiddleware(&stubChain{err: errBad})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	am.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("next handler should not run on authentication error")
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestAuthMiddleware_RequireAuthRejectsAnonymous(t *testing.T) {
	t.Setenv("GATEWAY_REQUIRE_AUTH", "true")
	am := middleware.NewAuthMiddleware(&stubChain{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	am.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("next handler should not run when auth is required and missing")
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestAuthMiddleware_AnonymousAllowedWhenNotRequired(t *testing.T) {
	t.Setenv("GATEWAY_REQUIRE_AUTH", "false")
	am := middleware.NewAuthMiddleware(&stubChain{})

	called := false
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	am.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if pkgmw.GetIdentity(r.Context()) != nil {
			t.Error("expected no identity in context for an anonymous request")
		}
	})).ServeHTTP(rec, req)

	if !called {
		t.Fatal("expected next handler to run")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestAuthMiddleware_IdentityWorkspaceOverridesTenant(t *testing.T) {
	t.Setenv("GATEWAY_REQUIRE_AUTH", "false")
	identity := &contracts.Identity{Subject: "apikey:abc", Workspace: "acme"}
	am := middleware.NewAuthMiddleware(&stubChain{identity: identity})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	am.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := pkgmw.GetIdentity(r.Context())
		if got == nil || got.Subject != "apikey:abc" {
			t.Errorf("identity = %+v, want apikey:abc", got)
		}
		if ws := middleware.GetWorkspace(r.Context()); ws != "acme" {
			t.Errorf("workspace = %q, want acme", ws)
		}
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

var errBad = authTestError("bad credential")

type authTestError string

func (e authTestError) Error() string { return string(e) }
