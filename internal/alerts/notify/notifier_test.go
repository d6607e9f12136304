package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	alerts "homeclimate/internal/alerts/domain"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestWebhookChannel_SendsTextPayload(t *testing.T) {
	var received webhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	channel, err := NewWebhookChannel(server.URL)
	if err != nil {
		t.Fatalf("new channel: %v", err)
	}
	if err := channel.Send(context.Background(), "humidity stuck high"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if received.MsgType != "text" {
		t.Fatalf("expected text msgtype, got %q", received.MsgType)
	}
	if received.Text.Content != "humidity stuck high" {
		t.Fatalf("unexpected content: %q", received.Text.Content)
	}
}

func TestNotifier_SeverityFloor(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	channel, _ := NewWebhookChannel(server.URL)
	notifier, err := NewNotifier(channel, alerts.SeverityMedium)
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}

	notifier.Notify(context.Background(), alerts.Alert{Severity: alerts.SeverityLow, Title: "minor", Message: "m"})
	if calls != 0 {
		t.Fatal("low severity must be filtered below a medium floor")
	}

	notifier.Notify(context.Background(), alerts.Alert{Severity: alerts.SeverityHigh, Title: "major", Message: "m"})
	if calls != 1 {
		t.Fatalf("expected one delivery, got %d", calls)
	}
}

func TestNotifier_CooldownSuppressesRepeats(t *testing.T) {
	var contents []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload webhookPayload
		_ = json.NewDecoder(r.Body).Decode(&payload)
		contents = append(contents, payload.Text.Content)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	clock := &fakeClock{now: time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)}
	channel, _ := NewWebhookChannel(server.URL)
	notifier, err := NewNotifier(channel, alerts.SeverityLow, WithCooldown(30*time.Minute), WithClock(clock))
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}

	alert := alerts.Alert{Severity: alerts.SeverityHigh, Title: "Humidity sensor offline", Message: "gap 20m"}
	notifier.Notify(context.Background(), alert)
	notifier.Notify(context.Background(), alert)
	if len(contents) != 1 {
		t.Fatalf("expected repeat suppression, got %d sends", len(contents))
	}

	// A different title is not suppressed.
	notifier.Notify(context.Background(), alerts.Alert{Severity: alerts.SeverityHigh, Title: "Other", Message: "m"})
	if len(contents) != 2 {
		t.Fatalf("expected distinct title delivery, got %d sends", len(contents))
	}

	// After the cooldown the original title fires again.
	clock.Advance(31 * time.Minute)
	notifier.Notify(context.Background(), alert)
	if len(contents) != 3 {
		t.Fatalf("expected post-cooldown delivery, got %d sends", len(contents))
	}
	if !strings.Contains(contents[0], "Humidity sensor offline") {
		t.Fatalf("content missing title: %q", contents[0])
	}
}

func TestNotifier_DeliveryFailureIsSwallowed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	channel, _ := NewWebhookChannel(server.URL)
	notifier, err := NewNotifier(channel, alerts.SeverityLow)
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}

	// Must not panic or block.
	notifier.Notify(context.Background(), alerts.Alert{Severity: alerts.SeverityHigh, Title: "t", Message: "m"})
}
