package middleware

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"

	"github.com/routegate/gateway/pkg/contracts"
	pkgmw "github.com/routegate/gateway/pkg/middleware"
	"github.com/rs/zerolog/log"
)

// AuthMiddleware is the HTTP middleware that authenticates requests using
// the pluggable AuthProviderChain and stores the resulting Identity in context.
// It guards the dashboard/admin surface; chat-completion requests carry
// their own upstream provider credential, matched by internal/gatewayauth.
type AuthMiddleware struct {
	chain       contracts.AuthProviderChain
	requireAuth bool
}

// NewAuthMiddleware creates the auth middleware.
//
// If requireAuth is true, unauthenticated requests to non-public paths are rejected.
// Config: GATEWAY_REQUIRE_AUTH env var (default: false).
func NewAuthMiddleware(chain contracts.AuthProviderChain) *AuthMiddleware {
	requireAuth := os.Getenv("GATEWAY_REQUIRE_AUTH") == "true"
	return &AuthMiddleware{
		chain:       chain,
		requireAuth: requireAuth,
	}
}

// Handler returns the HTTP handler middleware that authenticates requests.
func (am *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Public paths — skip auth
		if isAuthPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		// Walk the provider chain
		identity, err := am.chain.Authenticate(r.Context(), r)
		if err != nil {
			log.Debug().Err(err).Str("path", r.URL.Path).Msg("Authentication failed")
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("WWW-Authenticate", `Bearer realm="gateway"`)
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{
				"error":   "authentication_failed",
				"message": err.Error(),
			})
			return
		}

		// No identity and auth is required → reject
		if identity == nil && am.requireAuth {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("WWW-Authenticate", `Bearer realm="gateway"`)
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{
				"error":   "authentication_required",
				"message": "This endpoint requires authentication. Set Authorization: Bearer <key>, X-API-Key, or X-Service-Token header.",
			})
			return
		}

		// Store identity in context (nil is fine — means anonymous)
		ctx := r.Context()
		if identity != nil {
			ctx = pkgmw.SetIdentity(ctx, identity)

			// If the identity carries a workspace scope, override the tenant
			if identity.Workspace != "" {
				ctx = pkgmw.SetWorkspace(ctx, identity.Workspace)
			}
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// isAuthPublicPath returns true for paths that should skip the dashboard
// auth chain. The chat-completion hot path (/v1/...) authenticates via its
// own Auth Adapter Registry (internal/gatewayauth) against the upstream
// provider credential, not the dashboard's identity chain.
func isAuthPublicPath(path string) bool {
	publicPaths := []string{
		"/health",
		"/version",
	}
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return strings.HasPrefix(path, "/v1/")
}
