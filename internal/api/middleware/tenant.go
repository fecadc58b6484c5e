package middleware

import (
	"context"
	"net/http"
	"strings"

	pkgmw "github.com/routegate/gateway/pkg/middleware"
)

// WorkspaceExtractor tags each request with a workspace label (X-Workspace
// header, then the workspace query parameter, default "default") purely for
// log and telemetry attribution — the gateway has no per-tenant routing
// logic of its own.
func WorkspaceExtractor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		workspace := strings.TrimSpace(r.Header.Get("X-Workspace"))
		if workspace == "" {
			workspace = strings.TrimSpace(r.URL.Query().Get("workspace"))
		}
		if workspace == "" {
			workspace = "default"
		}
		ctx := pkgmw.SetWorkspace(r.Context(), workspace)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetWorkspace retrieves the workspace tag from the request context.
func GetWorkspace(ctx context.Context) string {
	return pkgmw.GetWorkspace(ctx)
}
