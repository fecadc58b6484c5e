// Package middleware provides shared context helpers used across the
// gateway's HTTP surface.
package middleware

import "context"

type contextKey string

const workspaceKey contextKey = "workspace"

// GetWorkspace extracts the workspace tag from the context, used only for
// log/telemetry attribution. Returns "default" if none is set.
func GetWorkspace(ctx context.Context) string {
	if v, ok := ctx.Value(workspaceKey).(string); ok && v != "" {
		return v
	}
	return "default"
}

// SetWorkspace stores the workspace tag in the context.
func SetWorkspace(ctx context.Context, workspace string) context.Context {
	return context.WithValue(ctx, workspaceKey, workspace)
}
