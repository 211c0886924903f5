package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sellerlink/backend/internal/domain/integration"
	"github.com/sellerlink/backend/internal/infrastructure/config"
	"github.com/sellerlink/backend/internal/infrastructure/logger"
	"github.com/sellerlink/backend/internal/infrastructure/telemetry"
)

const (
	tokenPath         = "/oauth/token"
	authorizationPath = "/authorization"

	// maxTokenResponseSize bounds what is read from the token endpoint (1MB)
	maxTokenResponseSize = 1 << 20
)

// OAuthClient talks to the marketplace authorization and token endpoints
type OAuthClient struct {
	cfg        *config.MarketplaceConfig
	httpClient *http.Client
	logger     *zap.Logger
	metrics    *telemetry.MarketplaceMetrics
}

// OAuthClientOption configures an OAuthClient
type OAuthClientOption func(*OAuthClient)

// WithOAuthHTTPClient replaces the HTTP client used for token calls
func WithOAuthHTTPClient(c *http.Client) OAuthClientOption {
	return func(o *OAuthClient) {
		o.httpClient = c
	}
}

// WithOAuthLogger sets the logger
func WithOAuthLogger(l *zap.Logger) OAuthClientOption {
	return func(o *OAuthClient) {
		o.logger = l
	}
}

// WithOAuthMetrics records token endpoint calls
func WithOAuthMetrics(m *telemetry.MarketplaceMetrics) OAuthClientOption {
	return func(o *OAuthClient) {
		o.metrics = m
	}
}

// NewOAuthClient creates a new OAuthClient
func NewOAuthClient(cfg *config.MarketplaceConfig, opts ...OAuthClientOption) *OAuthClient {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = config.DefaultRequestTimeout
	}
	c := &OAuthClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AuthorizationURL builds the URL the user is redirected to. codeChallenge is omitted when empty.
func (c *OAuthClient) AuthorizationURL(state, codeChallenge string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", c.cfg.AppID)
	q.Set("redirect_uri", c.cfg.RedirectURI)
	q.Set("state", state)
	if scope := c.cfg.ScopeString(); scope != "" {
		q.Set("scope", scope)
	}
	if codeChallenge != "" {
		q.Set("code_challenge", codeChallenge)
		q.Set("code_challenge_method", PKCEChallengeMethod)
	}
	return c.cfg.AuthBaseURL + authorizationPath + "?" + q.Encode()
}

// ExchangeCode trades an authorization code for a token set
func (c *OAuthClient) ExchangeCode(ctx context.Context, code, codeVerifier string) (*integration.TokenSet, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", c.cfg.AppID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("code", code)
	form.Set("redirect_uri", c.cfg.RedirectURI)
	if codeVerifier != "" {
		form.Set("code_verifier", codeVerifier)
	}
	return c.postToken(ctx, form)
}

// Refresh trades a refresh token for a new token set
func (c *OAuthClient) Refresh(ctx context.Context, refreshToken string) (*integration.TokenSet, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", c.cfg.AppID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("refresh_token", refreshToken)
	return c.postToken(ctx, form)
}

// postToken calls the token endpoint and classifies the outcome:
// no response, 429, 5xx or an undecodable body is ErrTokenExchangeFailed (retryable);
// any other 4xx is ErrGrantRejected wrapping the *OAuthError.
func (c *OAuthClient) postToken(ctx context.Context, form url.Values) (*integration.TokenSet, error) {
	grantType := form.Get("grant_type")
	ctx, span := telemetry.StartSpan(ctx, "marketplace.oauth.token",
		telemetry.WithAttribute("oauth.grant_type", grantType))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIBaseURL+tokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", integration.ErrTokenExchangeFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(start)
	if err != nil {
		c.metrics.RecordAPICall(ctx, http.MethodPost, 0, latency)
		telemetry.RecordError(span, err)
		c.logger.Warn("Token endpoint unreachable",
			zap.String("grant_type", grantType),
			zap.Duration("latency", latency),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", integration.ErrTokenExchangeFailed, err)
	}
	defer resp.Body.Close()

	c.metrics.RecordAPICall(ctx, http.MethodPost, resp.StatusCode, latency)
	telemetry.SetAttribute(span, "http.status_code", resp.StatusCode)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", integration.ErrTokenExchangeFailed, err)
	}

	fields := []zap.Field{
		zap.String("grant_type", grantType),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", latency),
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		c.logger.Warn("Token endpoint unavailable", fields...)
		return nil, fmt.Errorf("%w: HTTP %d", integration.ErrTokenExchangeFailed, resp.StatusCode)
	case resp.StatusCode >= 400:
		oauthErr := parseOAuthError(resp.StatusCode, body)
		c.logger.Warn("Token endpoint rejected grant",
			append(fields, zap.String("error_code", oauthErr.Code))...)
		return nil, fmt.Errorf("%w: %w", integration.ErrGrantRejected, oauthErr)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		c.logger.Warn("Unexpected token endpoint status", fields...)
		return nil, fmt.Errorf("%w: HTTP %d", integration.ErrTokenExchangeFailed, resp.StatusCode)
	}

	var tokens integration.TokenSet
	if err := json.Unmarshal(body, &tokens); err != nil {
		return nil, fmt.Errorf("%w: malformed token response: %v", integration.ErrTokenExchangeFailed, err)
	}
	if tokens.AccessToken == "" {
		return nil, fmt.Errorf("%w: token response has no access_token", integration.ErrTokenExchangeFailed)
	}

	c.logger.Info("Token endpoint call succeeded",
		append(fields,
			logger.Token("access_token", tokens.AccessToken),
			zap.Bool("refresh_token_issued", tokens.RefreshToken != ""),
			zap.Int64("expires_in", tokens.ExpiresIn),
		)...)
	return &tokens, nil
}

// oauthErrorBody covers both the RFC 6749 error shape and the marketplace's own
type oauthErrorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Message          string `json:"message"`
}

func parseOAuthError(status int, body []byte) *integration.OAuthError {
	oauthErr := &integration.OAuthError{StatusCode: status}

	var parsed oauthErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil {
		oauthErr.Code = parsed.Error
		oauthErr.Description = parsed.ErrorDescription
		if oauthErr.Description == "" && parsed.Message != parsed.Error {
			oauthErr.Description = parsed.Message
		}
		if oauthErr.Code == "" {
			oauthErr.Code = parsed.Message
		}
	}
	if oauthErr.Code == "" {
		oauthErr.Code = fmt.Sprintf("http_%d", status)
	}
	return oauthErr
}
