// Package auth handles login gating, identity derivation, and session
// tokens. Every login is verified against the platform before a session is
// issued (fail closed) and reported to the platform afterwards (fail open).
package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/lumarush/lumarush-backend/internal/domain"
)

// PlatformVerifier gates a login attempt before it may proceed.
type PlatformVerifier interface {
	Verify(ctx context.Context, provider domain.AuthProvider, externalID, username string) error
}

// EventPublisher fires the post-login event.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, identity domain.Identity, payload map[string]interface{})
}

// LoginResult carries the issued session and its identity.
type LoginResult struct {
	Token    string `json:"token"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// Authenticator runs the login flow for the custom and device providers.
type Authenticator struct {
	verifier  PlatformVerifier
	publisher EventPublisher
	sessions  *Sessions
	logger    *slog.Logger
}

// NewAuthenticator creates a new Authenticator
func NewAuthenticator(verifier PlatformVerifier, publisher EventPublisher, sessions *Sessions, logger *slog.Logger) *Authenticator {
	return &Authenticator{
		verifier:  verifier,
		publisher: publisher,
		sessions:  sessions,
		logger:    logger,
	}
}

// Login authenticates an external id with a provider. The platform check
// must pass before any session exists; a rejected or unreachable platform
// aborts the login entirely.
func (a *Authenticator) Login(ctx context.Context, provider domain.AuthProvider, externalID, username string) (*LoginResult, error) {
	if externalID == "" {
		return nil, fmt.Errorf("%w: account id is required", domain.ErrInvalidArgument)
	}

	if err := a.verifier.Verify(ctx, provider, externalID, username); err != nil {
		return nil, err
	}

	identity := domain.Identity{
		UserID:   DeriveUserID(provider, externalID),
		Username: username,
	}

	token, err := a.sessions.Issue(identity)
	if err != nil {
		return nil, fmt.Errorf("issuing session: %w", err)
	}

	a.publisher.Publish(ctx, "auth_success", identity, map[string]interface{}{
		"provider":   string(provider),
		"externalId": externalID,
		"username":   username,
	})

	a.logger.Info("login succeeded", "provider", provider, "user_id", identity.UserID)

	return &LoginResult{
		Token:    token,
		UserID:   identity.UserID,
		Username: identity.Username,
	}, nil
}

// DeriveUserID maps (provider, externalId) to a stable user id, so repeat
// logins resolve to the same account without a user table.
func DeriveUserID(provider domain.AuthProvider, externalID string) string {
	name := fmt.Sprintf("lumarush://%s/%s", provider, externalID)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}
