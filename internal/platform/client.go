// Package platform talks to the Terapixel platform over HTTP. It carries two
// deliberately separate call policies: the Verifier fails closed (a rejected
// or unreachable endpoint aborts the login), while the Publisher fails open
// (delivery problems are logged and swallowed).
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/lumarush/lumarush-backend/internal/config"
	"github.com/lumarush/lumarush-backend/internal/domain"
)

// EventSource tags every outbound body so the platform can attribute traffic.
const EventSource = "lumarush-nakama"

// postJSON issues a single POST with the shared header convention. No retries:
// every outbound call is attempted exactly once.
func postJSON(ctx context.Context, client *http.Client, url, apiKey string, body interface{}) (int, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("encoding request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}

// verifyRequest is the body sent to the platform's auth-verification endpoint.
type verifyRequest struct {
	Provider   string `json:"provider"`
	ExternalID string `json:"externalId"`
	Username   string `json:"username"`
	Source     string `json:"source"`
}

// Verifier gates authentication attempts against the platform's verification
// endpoint.
type Verifier struct {
	authURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

// NewVerifier creates a Verifier. An empty auth_url disables verification.
func NewVerifier(cfg *config.PlatformConfig, logger *slog.Logger) *Verifier {
	return &Verifier{
		authURL: cfg.AuthURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.HTTPTimeout()},
		logger:  logger,
	}
}

// Verify checks a login attempt with the platform before it is allowed to
// proceed. A non-2xx response or any transport failure returns
// domain.ErrAuthRejected: the login must not complete.
func (v *Verifier) Verify(ctx context.Context, provider domain.AuthProvider, externalID, username string) error {
	if v.authURL == "" {
		return nil
	}

	status, err := postJSON(ctx, v.client, v.authURL, v.apiKey, verifyRequest{
		Provider:   string(provider),
		ExternalID: externalID,
		Username:   username,
		Source:     EventSource,
	})
	if err != nil {
		v.logger.Warn("platform auth verification unreachable",
			"provider", provider,
			"external_id", externalID,
			"error", err,
		)
		return fmt.Errorf("%w: %v", domain.ErrAuthRejected, err)
	}
	if status < 200 || status >= 300 {
		v.logger.Warn("platform auth verification rejected",
			"status", status,
			"provider", provider,
			"external_id", externalID,
		)
		return fmt.Errorf("%w: status %d", domain.ErrAuthRejected, status)
	}
	return nil
}

// Publisher delivers best-effort analytics events to the platform.
type Publisher struct {
	eventURL string
	apiKey   string
	client   *http.Client
	logger   *slog.Logger
	now      func() time.Time
}

// NewPublisher creates a Publisher. An empty event_url disables publishing.
func NewPublisher(cfg *config.PlatformConfig, logger *slog.Logger) *Publisher {
	return &Publisher{
		eventURL: cfg.EventURL,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: cfg.HTTPTimeout()},
		logger:   logger,
		now:      time.Now,
	}
}

// Publish sends one event. Delivery problems are logged at Warn and never
// propagated; publishing must not fail the caller's operation.
func (p *Publisher) Publish(ctx context.Context, eventType string, identity domain.Identity, payload map[string]interface{}) {
	if p.eventURL == "" {
		return
	}

	status, err := postJSON(ctx, p.client, p.eventURL, p.apiKey, domain.PlatformEvent{
		EventType:      eventType,
		Source:         EventSource,
		OccurredAtUnix: p.now().Unix(),
		UserID:         identity.UserID,
		Username:       identity.Username,
		Payload:        payload,
	})
	if err != nil {
		p.logger.Warn("platform event publish failed", "event_type", eventType, "error", err)
		return
	}
	if status < 200 || status >= 300 {
		p.logger.Warn("platform event not accepted", "event_type", eventType, "status", status)
	}
}
