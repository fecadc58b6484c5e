package executor

import "github.com/routegate/gateway/pkg/models"

// ClassifyStatus maps an HTTP status code from a provider response into
// the closed error-kind set (§7). The second return value reports whether
// the status represents a provider outage (and so should count against the
// circuit breaker) rather than a client-shaped or rate-limit condition.
func ClassifyStatus(status int) (kind models.ErrorKind, isOutage bool) {
	switch {
	case status < 400:
		return "", false
	case status == 429:
		return models.ErrRateLimitUpstream, false
	case status == 401 || status == 403:
		return models.ErrProvider4xx, false
	case status >= 500:
		return models.ErrProvider5xx, true
	default:
		return models.ErrProvider4xx, false
	}
}

// classifyTransportError maps a transport-level failure (connection reset,
// timeout, JSON decode failure) to provider_5xx — treated the same as an
// upstream outage for breaker and fallback purposes.
func classifyTransportError(err error) models.ErrorKind {
	if err == nil {
		return ""
	}
	return models.ErrProvider5xx
}
