package integration

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

const (
	// StateTokenBytes is the entropy of a state token: 32 bytes = 256 bits.
	StateTokenBytes = 32
	// DefaultStateTTL bounds how long an authorization attempt may stay open.
	DefaultStateTTL = 15 * time.Minute
)

// AuthorizationState is an in-flight authorization attempt.
// It is consumed exactly once; a consumed or expired state can never complete a flow.
type AuthorizationState struct {
	State        string
	CodeVerifier string
	ReturnTo     string
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// NewAuthorizationState creates a state with a fresh random token expiring ttl after now
func NewAuthorizationState(codeVerifier, returnTo string, now time.Time, ttl time.Duration) (*AuthorizationState, error) {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	token, err := RandomToken(StateTokenBytes)
	if err != nil {
		return nil, err
	}
	now = now.UTC()
	return &AuthorizationState{
		State:        token,
		CodeVerifier: codeVerifier,
		ReturnTo:     returnTo,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
	}, nil
}

// IsExpired reports whether the state can no longer be used at the given time
func (s *AuthorizationState) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// RandomToken returns n bytes from crypto/rand encoded as unpadded base64url
func RandomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("integration: generate random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// AuthStateStore stores authorization states for the duration of the redirect round trip.
type AuthStateStore interface {
	// Create persists a new state carrying the optional PKCE verifier and return destination.
	Create(ctx context.Context, codeVerifier, returnTo string) (*AuthorizationState, error)
	// Consume atomically finds and deletes the state. It returns nil, nil when the state
	// does not exist, and also when it existed but had expired (it is deleted either way).
	Consume(ctx context.Context, state string) (*AuthorizationState, error)
	// Cleanup removes expired states and reports how many were deleted.
	Cleanup(ctx context.Context) (int64, error)
}
