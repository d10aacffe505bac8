package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

// ErrRejected marks user-supplied text the content filter refused.
var ErrRejected = errors.New("text was rejected by the content filter")

// Provider screens free text (decline and cancel reasons) before it is
// persisted. The filter itself is an external collaborator; this package
// only defines the seam.
type Provider interface {
	Screen(ctx context.Context, text string) error
}

type noopProvider struct{}

func NewNoopProvider() Provider {
	return &noopProvider{}
}

func (noopProvider) Screen(_ context.Context, _ string) error {
	return nil
}

// WebhookProvider posts text to an external filter endpoint and expects
// {"allowed": bool} back.
type WebhookProvider struct {
	url   string
	token string
	http  *http.Client
}

func NewWebhookProvider(url string, token string) *WebhookProvider {
	return &WebhookProvider{
		url:   strings.TrimSpace(url),
		token: strings.TrimSpace(token),
		http: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (p *WebhookProvider) Screen(ctx context.Context, text string) error {
	if p.url == "" {
		return errors.New("moderation webhook url not configured")
	}
	raw, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.New("moderation webhook returned non-2xx")
	}

	var verdict struct {
		Allowed bool `json:"allowed"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return err
	}
	if !verdict.Allowed {
		return ErrRejected
	}
	return nil
}
