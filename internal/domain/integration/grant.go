package integration

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// ExpirySafetyMargin is subtracted from expires_in so tokens are refreshed before the marketplace rejects them.
	ExpirySafetyMargin = 60 * time.Second
	// MinTokenLifetime is the floor applied after the safety margin.
	MinTokenLifetime = 60 * time.Second
)

// Grant is the OAuth2 credential pair for one connected seller account.
// There is at most one grant per SellerID.
type Grant struct {
	ID           uuid.UUID
	SellerID     string
	UserID       string
	AccessToken  string
	RefreshToken string
	Scope        []string
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsExpired reports whether the access token must be refreshed before use (now >= ExpiresAt)
func (g *Grant) IsExpired(now time.Time) bool {
	return !now.Before(g.ExpiresAt)
}

// ScopeString returns the scope set as a space-separated list
func (g *Grant) ScopeString() string {
	return strings.Join(g.Scope, " ")
}

// TokenSet is a successful response from the token endpoint
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope"`
	UserID       int64  `json:"user_id"`
	RefreshToken string `json:"refresh_token"`
}

// ExpiresAt computes the stored expiry: now + max(expires_in - 60s, 60s)
func (t *TokenSet) ExpiresAt(now time.Time) time.Time {
	lifetime := time.Duration(t.ExpiresIn)*time.Second - ExpirySafetyMargin
	if lifetime < MinTokenLifetime {
		lifetime = MinTokenLifetime
	}
	return now.Add(lifetime)
}

// ScopeList splits the space-separated scope string returned by the token endpoint
func (t *TokenSet) ScopeList() []string {
	return strings.Fields(t.Scope)
}

// GrantStore persists grants. Grants are read fresh on every use and never cached in process.
type GrantStore interface {
	// GetActive returns the most recently updated grant, or nil, nil when none exists.
	GetActive(ctx context.Context) (*Grant, error)
	// Save upserts the grant keyed by SellerID, replacing both tokens in a single write.
	Save(ctx context.Context, grant *Grant) error
	// Clear hard-deletes a grant. Used when the marketplace permanently rejects it.
	Clear(ctx context.Context, grantID uuid.UUID) error
}
