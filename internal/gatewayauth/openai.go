package gatewayauth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/routegate/gateway/pkg/models"
)

// OpenAIAdapter recognizes an `x-openai-api-key` header or a bearer token
// shaped like an OpenAI secret key (§4.C).
type OpenAIAdapter struct{}

func NewOpenAIAdapter() *OpenAIAdapter { return &OpenAIAdapter{} }

func (a *OpenAIAdapter) ID() string { return "openai_key" }

func (a *OpenAIAdapter) Matches(headers http.Header) bool {
	if headers.Get("x-openai-api-key") != "" {
		return true
	}
	token := bearerToken(headers)
	return strings.HasPrefix(token, "sk-") && len(token) >= 40
}

func (a *OpenAIAdapter) Extract(headers http.Header) (*models.AuthInfo, error) {
	if key := headers.Get("x-openai-api-key"); key != "" {
		return &models.AuthInfo{Provider: models.ProviderOpenAI, Type: models.AuthAPIKey, Token: key}, nil
	}
	token := bearerToken(headers)
	if strings.HasPrefix(token, "sk-") && len(token) >= 40 {
		return &models.AuthInfo{Provider: models.ProviderOpenAI, Type: models.AuthAPIKey, Token: token}, nil
	}
	return nil, fmt.Errorf("%w: openai adapter matched but no credential extractable", authMissingErr{})
}

func (a *OpenAIAdapter) Apply(req *http.Request, info *models.AuthInfo) {
	req.Header.Set("Authorization", "Bearer "+info.Token)
	req.Header.Set("Content-Type", "application/json")
}

func (a *OpenAIAdapter) Validate(token string) bool {
	return strings.HasPrefix(token, "sk-") && len(token) >= 40
}
