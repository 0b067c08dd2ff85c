package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

func TestNewWebhookNotifierRejectsEmptyURL(t *testing.T) {
	if _, err := NewWebhookNotifier(""); err == nil {
		t.Fatal("expected error for empty url")
	}
}

func TestWebhookNotifierPostsTransitions(t *testing.T) {
	var mu sync.Mutex
	var payloads []webhookPayload

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var p webhookPayload
		if err := json.Unmarshal(body, &p); err != nil {
			t.Errorf("bad payload: %v", err)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		mu.Lock()
		payloads = append(payloads, p)
		mu.Unlock()
	}))
	defer srv.Close()

	n, err := NewWebhookNotifier(srv.URL)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	n.DeviceDegraded(context.Background(), "plate", 5)
	n.DeviceRecovered(context.Background(), "plate")

	mu.Lock()
	defer mu.Unlock()
	if len(payloads) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(payloads))
	}
	if payloads[0].Event != "device_degraded" || payloads[0].Failures != 5 {
		t.Fatalf("unexpected first payload %+v", payloads[0])
	}
	if payloads[1].Event != "device_recovered" || payloads[1].Device != "plate" {
		t.Fatalf("unexpected second payload %+v", payloads[1])
	}
}

func TestWebhookNotifierNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	n, err := NewWebhookNotifier(srv.URL)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := n.post(context.Background(), webhookPayload{Event: "device_degraded", Device: "x"}); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}
