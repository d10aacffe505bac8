package moderation

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNoopProviderAllowsEverything(t *testing.T) {
	p := NewNoopProvider()
	if err := p.Screen(context.Background(), "anything at all"); err != nil {
		t.Fatalf("noop provider should allow, got %v", err)
	}
}

func TestWebhookProviderVerdicts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer filter-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("mode") == "reject" {
			_, _ = w.Write([]byte(`{"allowed": false}`))
			return
		}
		_, _ = w.Write([]byte(`{"allowed": true}`))
	}))
	defer srv.Close()

	allow := NewWebhookProvider(srv.URL, "filter-token")
	if err := allow.Screen(context.Background(), "see you at the park"); err != nil {
		t.Fatalf("expected allow, got %v", err)
	}

	reject := NewWebhookProvider(srv.URL+"?mode=reject", "filter-token")
	if err := reject.Screen(context.Background(), "rude text"); !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}

	unauth := NewWebhookProvider(srv.URL, "wrong-token")
	if err := unauth.Screen(context.Background(), "x"); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}

func TestWebhookProviderRequiresURL(t *testing.T) {
	p := NewWebhookProvider("", "")
	if err := p.Screen(context.Background(), "x"); err == nil {
		t.Fatal("expected error when url is not configured")
	}
}
