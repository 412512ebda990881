package platform

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lumarush/lumarush-backend/internal/config"
	"github.com/lumarush/lumarush-backend/internal/domain"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func platformConfig(authURL, eventURL string) *config.PlatformConfig {
	return &config.PlatformConfig{
		LeaderboardID: "lumarush_high_scores",
		AuthURL:       authURL,
		EventURL:      eventURL,
		APIKey:        "test-key",
		HTTPTimeoutMs: 2000,
	}
}

func TestVerifier_DisabledWhenNoURL(t *testing.T) {
	v := NewVerifier(platformConfig("", ""), testLogger())
	err := v.Verify(context.Background(), domain.AuthProviderCustom, "ext-1", "pilot")
	require.NoError(t, err)
}

func TestVerifier_AcceptsTwoHundreds(t *testing.T) {
	var body map[string]string
	var authHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	v := NewVerifier(platformConfig(srv.URL, ""), testLogger())
	err := v.Verify(context.Background(), domain.AuthProviderDevice, "device-7", "pilot")
	require.NoError(t, err)

	require.Equal(t, "Bearer test-key", authHeader)
	require.Equal(t, "device", body["provider"])
	require.Equal(t, "device-7", body["externalId"])
	require.Equal(t, "pilot", body["username"])
	require.Equal(t, EventSource, body["source"])
}

func TestVerifier_FailsClosedOnRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	v := NewVerifier(platformConfig(srv.URL, ""), testLogger())
	err := v.Verify(context.Background(), domain.AuthProviderCustom, "ext-1", "pilot")
	require.ErrorIs(t, err, domain.ErrAuthRejected)
}

func TestVerifier_FailsClosedWhenUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from now on

	v := NewVerifier(platformConfig(srv.URL, ""), testLogger())
	err := v.Verify(context.Background(), domain.AuthProviderCustom, "ext-1", "pilot")
	require.ErrorIs(t, err, domain.ErrAuthRejected)
}

func TestVerifier_NoAuthHeaderWithoutAPIKey(t *testing.T) {
	var authHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	cfg := platformConfig(srv.URL, "")
	cfg.APIKey = ""
	v := NewVerifier(cfg, testLogger())
	require.NoError(t, v.Verify(context.Background(), domain.AuthProviderCustom, "ext-1", "pilot"))
	require.Empty(t, authHeader)
}

func TestPublisher_DisabledWhenNoURL(t *testing.T) {
	p := NewPublisher(platformConfig("", ""), testLogger())
	// Must be a no-op, not a panic or network call.
	p.Publish(context.Background(), "auth_success", domain.Identity{UserID: "u1"}, nil)
}

func TestPublisher_SendsEventBody(t *testing.T) {
	var event domain.PlatformEvent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&event))
	}))
	defer srv.Close()

	p := NewPublisher(platformConfig("", srv.URL), testLogger())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	p.Publish(context.Background(), "score_submitted",
		domain.Identity{UserID: "u1", Username: "pilot"},
		map[string]interface{}{"score": float64(100)},
	)

	require.Equal(t, "score_submitted", event.EventType)
	require.Equal(t, EventSource, event.Source)
	require.Equal(t, now.Unix(), event.OccurredAtUnix)
	require.Equal(t, "u1", event.UserID)
	require.Equal(t, "pilot", event.Username)
	require.Equal(t, map[string]interface{}{"score": float64(100)}, event.Payload)
}

func TestPublisher_SwallowsServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewPublisher(platformConfig("", srv.URL), testLogger())
	p.Publish(context.Background(), "score_submitted", domain.Identity{UserID: "u1"}, nil)
}

func TestPublisher_SwallowsTransportErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	p := NewPublisher(platformConfig("", srv.URL), testLogger())
	p.Publish(context.Background(), "score_submitted", domain.Identity{UserID: "u1"}, nil)
}
