package notify_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/routegate/gateway/internal/notify"
	"github.com/routegate/gateway/pkg/contracts"
)

func TestWebhookDriver_SendSucceedsAndSignsWithSecret(t *testing.T) {
	const secret = "shh"
	var gotBody []byte
	var gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get("X-Routegate-Signature")
		if r.Header.Get("X-Routegate-Event") != "canary_rollback_failed" {
			t.Errorf("X-Routegate-Event = %q", r.Header.Get("X-Routegate-Event"))
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := notify.NewWebhookDriver(srv.URL, secret)
	event := contracts.NotificationEvent{Type: "canary_rollback_failed", Summary: "rollback failed"}
	if err := d.Send(context.Background(), event); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(gotBody)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	if gotSig != want {
		t.Errorf("signature = %q, want %q", gotSig, want)
	}
}

func TestWebhookDriver_NoURLConfiguredIsSilentNoOp(t *testing.T) {
	d := notify.NewWebhookDriver("", "")
	err := d.Send(context.Background(), contracts.NotificationEvent{Type: "artifact_unavailable"})
	if err != nil {
		t.Errorf("Send() error = %v, want nil for an unconfigured webhook", err)
	}
}

func TestWebhookDriver_NoSecretOmitsSignatureHeader(t *testing.T) {
	var gotSig string
	sawSig := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Routegate-Signature")
		sawSig = gotSig != ""
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := notify.NewWebhookDriver(srv.URL, "")
	if err := d.Send(context.Background(), contracts.NotificationEvent{Type: "artifact_unavailable"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if sawSig {
		t.Errorf("expected no signature header without a secret, got %q", gotSig)
	}
}

type recordingDriver struct {
	events []contracts.NotificationEvent
}

func (d *recordingDriver) Kind() string { return "recording" }

func (d *recordingDriver) Send(ctx context.Context, event contracts.NotificationEvent) error {
	d.events = append(d.events, event)
	return nil
}

func TestService_EmergencyDispatchesTypedEvent(t *testing.T) {
	driver := &recordingDriver{}
	s := notify.NewService(driver)
	s.Emergency(context.Background(), "artifact_unavailable", "no source reachable", map[string]interface{}{"attempted": "s3://bucket/key"})

	if len(driver.events) != 1 {
		t.Fatalf("events len = %d, want 1", len(driver.events))
	}
	got := driver.events[0]
	if got.Type != "artifact_unavailable" || got.Summary != "no source reachable" {
		t.Errorf("event = %+v", got)
	}
	if got.Timestamp.IsZero() {
		t.Error("expected a non-zero timestamp")
	}
}
