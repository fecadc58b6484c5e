package gatewayauth

import (
	"net/http"
	"os"

	"github.com/routegate/gateway/pkg/models"
)

// EnvCredentialAdapter is a deployment convenience registered last: it never
// matches client headers, but the Executor consults it when a request
// carries no client credential and an OPENAI_API_KEY/GEMINI_API_KEY
// environment variable is present for the chosen provider (§4.C, §8
// scenario #1).
type EnvCredentialAdapter struct{}

func NewEnvCredentialAdapter() *EnvCredentialAdapter { return &EnvCredentialAdapter{} }

func (a *EnvCredentialAdapter) ID() string { return "env_credential" }

// Matches always returns false: this adapter is never selected by
// FindMatch, only consulted directly by the executor.
func (a *EnvCredentialAdapter) Matches(http.Header) bool { return false }

func (a *EnvCredentialAdapter) Extract(http.Header) (*models.AuthInfo, error) { return nil, nil }

func (a *EnvCredentialAdapter) Apply(req *http.Request, info *models.AuthInfo) {
	switch info.Provider {
	case models.ProviderAnthropic:
		req.Header.Set("Authorization", "Bearer "+info.Token)
		req.Header.Set("anthropic-version", "2023-06-01")
		req.Header.Set("Content-Type", "application/json")
	case models.ProviderGoogle:
		q := req.URL.Query()
		q.Set("key", info.Token)
		req.URL.RawQuery = q.Encode()
		req.Header.Set("Content-Type", "application/json")
	default:
		req.Header.Set("Authorization", "Bearer "+info.Token)
		req.Header.Set("Content-Type", "application/json")
	}
}

func (a *EnvCredentialAdapter) Validate(token string) bool { return token != "" }

// ForProvider returns the env-sourced AuthInfo for the given provider, or
// nil if no relevant environment variable is set.
func (a *EnvCredentialAdapter) ForProvider(provider models.ProviderKind) *models.AuthInfo {
	var token string
	switch provider {
	case models.ProviderOpenAI, models.ProviderOpenRouter:
		token = os.Getenv("OPENAI_API_KEY")
	case models.ProviderGoogle:
		token = os.Getenv("GEMINI_API_KEY")
	case models.ProviderAnthropic:
		token = os.Getenv("ANTHROPIC_API_KEY")
	}
	if token == "" {
		return nil
	}
	return &models.AuthInfo{Provider: provider, Type: models.AuthAPIKey, Token: token}
}
