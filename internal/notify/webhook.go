// Package notify implements the Notification Service (§4.I): the single
// escalation path a rollback-failure or artifact_unavailable degraded-mode
// transition dispatches through, regardless of which control-plane activity
// raised the alarm.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/routegate/gateway/pkg/contracts"
	"github.com/rs/zerolog/log"
)

// WebhookDriver POSTs events to one configured URL, HMAC-SHA256 signed when
// a secret is configured, with 3 attempts and linear backoff.
type WebhookDriver struct {
	url    string
	secret string
	client *http.Client
}

// NewWebhookDriver builds a driver; url may be empty, in which case Send is
// a silent no-op (no webhook configured for this deployment).
func NewWebhookDriver(url, secret string) *WebhookDriver {
	return &WebhookDriver{url: url, secret: secret, client: &http.Client{Timeout: 15 * time.Second}}
}

func (d *WebhookDriver) Kind() string { return "webhook" }

func (d *WebhookDriver) Send(ctx context.Context, event contracts.NotificationEvent) error {
	if d.url == "" {
		log.Warn().Str("type", event.Type).Str("summary", event.Summary).Msg("notification dropped: no webhook configured")
		return nil
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * 2 * time.Second)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build webhook request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Routegate-Event", event.Type)
		if d.secret != "" {
			mac := hmac.New(sha256.New, []byte(d.secret))
			mac.Write(body)
			req.Header.Set("X-Routegate-Signature", "sha256="+hex.EncodeToString(mac.Sum(nil)))
		}

		resp, err := d.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	log.Warn().Err(lastErr).Str("type", event.Type).Msg("emergency notification failed after 3 attempts")
	return lastErr
}

// Service dispatches a notification event through the configured driver.
type Service struct {
	driver contracts.ChannelDriver
}

func NewService(driver contracts.ChannelDriver) *Service {
	return &Service{driver: driver}
}

// Emergency builds and dispatches a typed event; failures are logged by the
// driver and never returned to the caller, since paging must never block
// the control-plane activity that raised the alarm.
func (s *Service) Emergency(ctx context.Context, eventType, summary string, detail map[string]interface{}) {
	event := contracts.NotificationEvent{
		Type:      eventType,
		Summary:   summary,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	}
	if err := s.driver.Send(ctx, event); err != nil {
		log.Error().Err(err).Str("type", eventType).Msg("failed to deliver emergency notification")
	}
}
