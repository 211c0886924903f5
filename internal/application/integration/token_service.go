package integration

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sellerlink/backend/internal/domain/integration"
	"github.com/sellerlink/backend/internal/infrastructure/config"
	"github.com/sellerlink/backend/internal/infrastructure/logger"
	"github.com/sellerlink/backend/internal/infrastructure/marketplace"
	"github.com/sellerlink/backend/internal/infrastructure/telemetry"
)

// recheckTimeout bounds the grant re-read after an ambiguous refresh failure
const recheckTimeout = 5 * time.Second

// ErrMissingAuthorizationCode is returned when a callback carries a valid state but no code
var ErrMissingAuthorizationCode = errors.New("integration: authorization code is required")

// OAuthTokenClient talks to the marketplace token endpoint
type OAuthTokenClient interface {
	AuthorizationURL(state, codeChallenge string) string
	ExchangeCode(ctx context.Context, code, codeVerifier string) (*integration.TokenSet, error)
	Refresh(ctx context.Context, refreshToken string) (*integration.TokenSet, error)
}

// TokenService owns the lifecycle of the marketplace grant: authorization, refresh and disconnect
type TokenService struct {
	sellerID    string
	pkceEnabled bool
	oauth       OAuthTokenClient
	states      integration.AuthStateStore
	grants      integration.GrantStore
	metrics     *telemetry.MarketplaceMetrics
	logger      *zap.Logger
	now         func() time.Time

	// configErr is fixed at construction; the configuration is immutable after load
	configErr      error
	refreshTimeout time.Duration
	refreshGroup   singleflight.Group
}

// TokenServiceConfig contains configuration for TokenService
type TokenServiceConfig struct {
	Config  *config.MarketplaceConfig
	OAuth   OAuthTokenClient
	States  integration.AuthStateStore
	Grants  integration.GrantStore
	Metrics *telemetry.MarketplaceMetrics
	Logger  *zap.Logger
}

// NewTokenService creates a new TokenService
func NewTokenService(cfg TokenServiceConfig) *TokenService {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	refreshTimeout := cfg.Config.RequestTimeout
	if refreshTimeout <= 0 {
		refreshTimeout = config.DefaultRequestTimeout
	}
	return &TokenService{
		sellerID:    cfg.Config.SellerID,
		pkceEnabled: cfg.Config.PKCEEnabled,
		oauth:       cfg.OAuth,
		states:      cfg.States,
		grants:      cfg.Grants,
		metrics:     cfg.Metrics,
		logger:      log,
		now:         time.Now,

		configErr:      cfg.Config.RequireValid(),
		refreshTimeout: refreshTimeout,
	}
}

// AuthorizationStart is where the user has to be sent to grant access
type AuthorizationStart struct {
	AuthorizationURL string    `json:"authorization_url"`
	State            string    `json:"state"`
	ExpiresAt        time.Time `json:"expires_at"`
}

// AuthorizationResult is the outcome of a completed authorization
type AuthorizationResult struct {
	Tokens    *integration.TokenSet
	SellerID  string
	ExpiresAt time.Time
	ReturnTo  string
}

// ConnectionStatus describes the stored grant without exposing token material
type ConnectionStatus struct {
	Connected bool       `json:"connected"`
	SellerID  string     `json:"seller_id,omitempty"`
	UserID    string     `json:"user_id,omitempty"`
	Scope     []string   `json:"scope,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Expired   bool       `json:"expired"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// StartAuthorization creates a single-use state and builds the authorization URL
func (s *TokenService) StartAuthorization(ctx context.Context, returnTo string) (*AuthorizationStart, error) {
	if s.configErr != nil {
		return nil, s.configErr
	}
	var verifier, challenge string
	if s.pkceEnabled {
		v, err := marketplace.NewCodeVerifier()
		if err != nil {
			return nil, err
		}
		verifier = v
		challenge = marketplace.CodeChallenge(v)
	}

	state, err := s.states.Create(ctx, verifier, returnTo)
	if err != nil {
		return nil, fmt.Errorf("failed to store authorization state: %w", err)
	}

	s.logger.Info("Marketplace authorization started",
		zap.Bool("pkce", s.pkceEnabled),
		zap.Time("state_expires_at", state.ExpiresAt))

	return &AuthorizationStart{
		AuthorizationURL: s.oauth.AuthorizationURL(state.State, challenge),
		State:            state.State,
		ExpiresAt:        state.ExpiresAt,
	}, nil
}

// CompleteAuthorization consumes the state, exchanges the code and stores the grant.
// The state is burned even when the exchange fails, so a failed callback cannot be replayed.
func (s *TokenService) CompleteAuthorization(ctx context.Context, code, state string) (*AuthorizationResult, error) {
	if s.configErr != nil {
		return nil, s.configErr
	}
	if state == "" {
		return nil, integration.ErrInvalidOrExpiredState
	}
	authState, err := s.states.Consume(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("failed to consume authorization state: %w", err)
	}
	if authState == nil {
		s.logger.Warn("Authorization callback with unknown or expired state")
		return nil, integration.ErrInvalidOrExpiredState
	}
	if code == "" {
		return nil, ErrMissingAuthorizationCode
	}

	tokens, err := s.oauth.ExchangeCode(ctx, code, authState.CodeVerifier)
	if err != nil {
		s.logger.Warn("Authorization code exchange failed", zap.Error(err))
		return nil, err
	}

	now := s.now()
	sellerID := s.sellerID
	if tokens.UserID != 0 {
		sellerID = strconv.FormatInt(tokens.UserID, 10)
		if s.sellerID != "" && s.sellerID != sellerID {
			s.logger.Warn("Authorized account differs from configured seller",
				zap.String("configured_seller_id", s.sellerID),
				zap.String("authorized_user_id", sellerID))
		}
	}

	grant := &integration.Grant{
		SellerID:     sellerID,
		UserID:       userIDString(tokens.UserID),
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		Scope:        tokens.ScopeList(),
		ExpiresAt:    tokens.ExpiresAt(now),
	}
	if err := s.grants.Save(ctx, grant); err != nil {
		return nil, fmt.Errorf("failed to save grant: %w", err)
	}

	s.logger.Info("Marketplace account connected",
		zap.String("seller_id", grant.SellerID),
		zap.Time("expires_at", grant.ExpiresAt),
		logger.Token("access_token", grant.AccessToken),
		zap.Bool("has_refresh_token", grant.RefreshToken != ""))

	return &AuthorizationResult{
		Tokens:    tokens,
		SellerID:  grant.SellerID,
		ExpiresAt: grant.ExpiresAt,
		ReturnTo:  authState.ReturnTo,
	}, nil
}

// RefreshTokens exchanges the refresh token for a new token pair and stores it.
// A nil grant refreshes the active one. Concurrent calls share a single exchange,
// which runs detached from any one caller and is bounded by the request timeout;
// a caller whose ctx ends stops waiting without failing the others.
// When the marketplace rejects the grant it is cleared and the error wraps
// integration.ErrGrantRejected.
func (s *TokenService) RefreshTokens(ctx context.Context, grant *integration.Grant) (*integration.TokenSet, error) {
	if s.configErr != nil {
		return nil, s.configErr
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "token", "refresh",
		telemetry.WithAttribute(telemetry.SpanAttrSellerID, s.sellerID))
	defer span.End()

	ch := s.refreshGroup.DoChan("refresh", func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.refreshTimeout)
		defer cancel()

		var (
			tokens *integration.TokenSet
			err    error
		)
		telemetry.WithProfilingLabels(rctx, telemetry.OperationLabels(telemetry.OperationTokenRefresh), func(ctx context.Context) {
			tokens, err = s.refresh(ctx, grant)
		})
		return tokens, err
	})

	select {
	case <-ctx.Done():
		err := ctx.Err()
		telemetry.RecordError(span, err)
		return nil, err
	case res := <-ch:
		telemetry.SetAttribute(span, "token.refresh_shared", res.Shared)
		if res.Err != nil {
			telemetry.RecordError(span, res.Err)
			return nil, res.Err
		}
		telemetry.SetOK(span)
		return res.Val.(*integration.TokenSet), nil
	}
}

func (s *TokenService) refresh(ctx context.Context, grant *integration.Grant) (*integration.TokenSet, error) {
	if grant == nil {
		active, err := s.grants.GetActive(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load grant: %w", err)
		}
		if active == nil {
			return nil, integration.ErrNoActiveGrant
		}
		grant = active
	}

	if grant.RefreshToken == "" {
		s.metrics.RecordTokenRefresh(ctx, telemetry.OutcomeRejected)
		s.clearGrant(ctx, grant)
		return nil, fmt.Errorf("%w: grant has no refresh token", integration.ErrGrantRejected)
	}

	tokens, err := s.oauth.Refresh(ctx, grant.RefreshToken)
	if err != nil {
		// Another instance may have rotated the refresh token while this call was in flight.
		if current := s.recheckGrant(ctx, grant); current != nil {
			s.logger.Info("Grant was refreshed concurrently, using stored tokens",
				zap.String("seller_id", current.SellerID))
			return tokenSetFromGrant(current, s.now()), nil
		}

		if errors.Is(err, integration.ErrGrantRejected) {
			s.metrics.RecordTokenRefresh(ctx, telemetry.OutcomeRejected)
			s.logger.Warn("Marketplace rejected the refresh token, disconnecting",
				zap.String("seller_id", grant.SellerID),
				zap.Error(err))
			s.clearGrant(ctx, grant)
			return nil, err
		}

		s.metrics.RecordTokenRefresh(ctx, telemetry.OutcomeFailure)
		s.logger.Warn("Token refresh failed",
			zap.String("seller_id", grant.SellerID),
			zap.Error(err))
		return nil, err
	}

	if tokens.RefreshToken == "" {
		tokens.RefreshToken = grant.RefreshToken
	}

	updated := *grant
	updated.AccessToken = tokens.AccessToken
	updated.RefreshToken = tokens.RefreshToken
	updated.ExpiresAt = tokens.ExpiresAt(s.now())
	if scope := tokens.ScopeList(); len(scope) > 0 {
		updated.Scope = scope
	}
	if tokens.UserID != 0 {
		updated.UserID = userIDString(tokens.UserID)
	}
	if err := s.grants.Save(ctx, &updated); err != nil {
		s.metrics.RecordTokenRefresh(ctx, telemetry.OutcomeFailure)
		return nil, fmt.Errorf("failed to save refreshed grant: %w", err)
	}

	s.metrics.RecordTokenRefresh(ctx, telemetry.OutcomeSuccess)
	s.logger.Info("Marketplace tokens refreshed",
		zap.String("seller_id", updated.SellerID),
		zap.Time("expires_at", updated.ExpiresAt),
		logger.Token("access_token", updated.AccessToken))

	return tokens, nil
}

// recheckGrant returns the stored grant when it was rotated by someone else and is still usable
func (s *TokenService) recheckGrant(ctx context.Context, used *integration.Grant) *integration.Grant {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recheckTimeout)
	defer cancel()

	current, err := s.grants.GetActive(ctx)
	if err != nil || current == nil {
		return nil
	}
	if current.RefreshToken == used.RefreshToken || current.IsExpired(s.now()) {
		return nil
	}
	return current
}

func (s *TokenService) clearGrant(ctx context.Context, grant *integration.Grant) {
	if err := s.grants.Clear(context.WithoutCancel(ctx), grant.ID); err != nil {
		s.logger.Error("Failed to clear rejected grant",
			zap.String("grant_id", grant.ID.String()),
			zap.Error(err))
	}
}

// Disconnect deletes the stored grant. It is a no-op when nothing is connected.
func (s *TokenService) Disconnect(ctx context.Context) error {
	grant, err := s.grants.GetActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to load grant: %w", err)
	}
	if grant == nil {
		return nil
	}
	if err := s.grants.Clear(ctx, grant.ID); err != nil {
		return fmt.Errorf("failed to clear grant: %w", err)
	}
	s.logger.Info("Marketplace account disconnected", zap.String("seller_id", grant.SellerID))
	return nil
}

// Status reports whether an account is connected and when its access token expires
func (s *TokenService) Status(ctx context.Context) (*ConnectionStatus, error) {
	grant, err := s.grants.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load grant: %w", err)
	}
	if grant == nil {
		return &ConnectionStatus{Connected: false}, nil
	}
	expiresAt := grant.ExpiresAt
	updatedAt := grant.UpdatedAt
	return &ConnectionStatus{
		Connected: true,
		SellerID:  grant.SellerID,
		UserID:    grant.UserID,
		Scope:     grant.Scope,
		ExpiresAt: &expiresAt,
		Expired:   grant.IsExpired(s.now()),
		UpdatedAt: &updatedAt,
	}, nil
}

func userIDString(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}

func tokenSetFromGrant(grant *integration.Grant, now time.Time) *integration.TokenSet {
	return &integration.TokenSet{
		AccessToken:  grant.AccessToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(grant.ExpiresAt.Sub(now).Seconds()),
		Scope:        grant.ScopeString(),
		RefreshToken: grant.RefreshToken,
	}
}

var _ marketplace.TokenRefresher = (*TokenService)(nil)
