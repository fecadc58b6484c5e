package gatewayauth

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/routegate/gateway/internal/breaker"
	"github.com/routegate/gateway/pkg/models"
)

var base64urlToken = regexp.MustCompile(`^[A-Za-z0-9_-]{50,}$`)

// AnthropicAdapter recognizes Anthropic OAuth bearer tokens. It additionally
// owns the Anthropic cooldown table (§4.C), shared with the Provider
// Executor through this instance so both read/write the same state.
type AnthropicAdapter struct {
	Cooldowns *breaker.CooldownTable
}

// NewAnthropicAdapter creates the adapter with its own cooldown table.
func NewAnthropicAdapter() *AnthropicAdapter {
	return &AnthropicAdapter{Cooldowns: breaker.NewCooldownTable()}
}

func (a *AnthropicAdapter) ID() string { return "anthropic_oauth" }

func (a *AnthropicAdapter) Matches(headers http.Header) bool {
	token := bearerToken(headers)
	if token == "" {
		return false
	}
	return strings.HasPrefix(token, "ant-") || base64urlToken.MatchString(token)
}

func (a *AnthropicAdapter) Extract(headers http.Header) (*models.AuthInfo, error) {
	token := bearerToken(headers)
	if token == "" {
		return nil, fmt.Errorf("%w: anthropic adapter matched but no bearer token present", authMissingErr{})
	}
	return &models.AuthInfo{
		Provider: models.ProviderAnthropic,
		Type:     models.AuthBearer,
		Token:    token,
	}, nil
}

func (a *AnthropicAdapter) Apply(req *http.Request, info *models.AuthInfo) {
	req.Header.Set("Authorization", "Bearer "+info.Token)
	req.Header.Set("anthropic-version", "2023-06-01")
	req.Header.Set("Content-Type", "application/json")
}

func (a *AnthropicAdapter) Validate(token string) bool {
	return strings.HasPrefix(token, "ant-") || base64urlToken.MatchString(token)
}

func bearerToken(headers http.Header) string {
	auth := headers.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(auth, prefix))
}

type authMissingErr struct{}

func (authMissingErr) Error() string { return string(models.ErrAuthMissing) }
