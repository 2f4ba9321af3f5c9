package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestNotifyIPChangeSurvivesCallerCancellation(t *testing.T) {
	received := make(chan map[string]interface{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		received <- payload
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ws := NewWebhookService(zap.NewNop().Sugar(), srv.URL)

	// The server cancels the request context as soon as the handler
	// returns; the alert must still go out.
	ctx, cancel := context.WithCancel(context.Background())
	ws.NotifyIPChange(ctx, 42, "10.0.0.1", "10.0.0.2", "test-agent")
	cancel()

	select {
	case payload := <-received:
		if payload["event"] != "refresh_ip_change" {
			t.Errorf("event = %v", payload["event"])
		}
		if payload["old_ip"] != "10.0.0.1" || payload["new_ip"] != "10.0.0.2" {
			t.Errorf("payload = %v", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("webhook was never delivered")
	}
}

func TestNotifySkipsWhenUnconfigured(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected webhook delivery")
	}))
	defer srv.Close()

	ws := NewWebhookService(zap.NewNop().Sugar(), "")
	ws.NotifyIPChange(context.Background(), 42, "10.0.0.1", "10.0.0.2", "ua")
	time.Sleep(50 * time.Millisecond)
}
