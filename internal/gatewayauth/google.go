package gatewayauth

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/routegate/gateway/pkg/models"
)

var googleBearerShape = regexp.MustCompile(`^[A-Za-z0-9._/-]{100,}$`)

// GoogleAdapter recognizes either a long Google OAuth bearer token or an
// `x-goog-api-key: AIza…` header (§4.C).
type GoogleAdapter struct{}

func NewGoogleAdapter() *GoogleAdapter { return &GoogleAdapter{} }

func (a *GoogleAdapter) ID() string { return "google_oauth_or_apikey" }

func (a *GoogleAdapter) Matches(headers http.Header) bool {
	if token := bearerToken(headers); token != "" && googleBearerShape.MatchString(token) {
		return true
	}
	key := headers.Get("x-goog-api-key")
	return strings.HasPrefix(key, "AIza") && len(key) >= 35
}

func (a *GoogleAdapter) Extract(headers http.Header) (*models.AuthInfo, error) {
	if token := bearerToken(headers); token != "" && googleBearerShape.MatchString(token) {
		return &models.AuthInfo{Provider: models.ProviderGoogle, Type: models.AuthBearer, Token: token}, nil
	}
	if key := headers.Get("x-goog-api-key"); strings.HasPrefix(key, "AIza") && len(key) >= 35 {
		return &models.AuthInfo{Provider: models.ProviderGoogle, Type: models.AuthAPIKey, Token: key}, nil
	}
	return nil, fmt.Errorf("%w: google adapter matched but no credential extractable", authMissingErr{})
}

func (a *GoogleAdapter) Apply(req *http.Request, info *models.AuthInfo) {
	req.Header.Set("Content-Type", "application/json")
	if info.Type == models.AuthBearer {
		req.Header.Set("Authorization", "Bearer "+info.Token)
		return
	}
	q := req.URL.Query()
	q.Set("key", info.Token)
	req.URL.RawQuery = q.Encode()
}

func (a *GoogleAdapter) Validate(token string) bool {
	return googleBearerShape.MatchString(token) || (strings.HasPrefix(token, "AIza") && len(token) >= 35)
}
