// Package marketplace contains the HTTP adapters for the remote marketplace:
// the OAuth2 token client, the authenticated request executor, the webhook
// signature verifier and the order and listing resource clients.
package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/sellerlink/backend/internal/domain/integration"
	"github.com/sellerlink/backend/internal/infrastructure/config"
	"github.com/sellerlink/backend/internal/infrastructure/logger"
	"github.com/sellerlink/backend/internal/infrastructure/telemetry"
)

const (
	// maxResponseSize is the maximum allowed response size from the marketplace API (10MB)
	maxResponseSize = 10 * 1024 * 1024
	// maxErrorMessageSize bounds a non-JSON error body copied into an UpstreamError
	maxErrorMessageSize = 512
)

// TokenRefresher refreshes the stored grant. A nil grant means the active one.
// Implementations clear the grant when the marketplace rejects it.
type TokenRefresher interface {
	RefreshTokens(ctx context.Context, grant *integration.Grant) (*integration.TokenSet, error)
}

// Doer executes authenticated marketplace requests
type Doer interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

// Request is one authenticated call against the marketplace API
type Request struct {
	Method string
	// Path is relative to the API base URL and starts with "/".
	Path    string
	Query   url.Values
	Body    any
	Headers http.Header
	// NoAuthRetry disables the refresh-and-retry on 401.
	NoAuthRetry bool
}

// Response is a successful (2xx) marketplace response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the JSON body into v
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("marketplace: decode response: %w", err)
	}
	return nil
}

// Executor performs API calls with the active grant's access token.
//
// A call runs in at most two phases. Phase one loads the grant, refreshes it first
// when it is already expired, and sends the request. Phase two only runs when phase
// one got a 401: the token is refreshed and the request is sent exactly once more.
// The grant is read from the store on every call and never cached.
type Executor struct {
	baseURL    string
	grants     integration.GrantStore
	refresher  TokenRefresher
	httpClient *http.Client
	logger     *zap.Logger
	metrics    *telemetry.MarketplaceMetrics
	now        func() time.Time
	configErr  error
}

// ExecutorOption configures an Executor
type ExecutorOption func(*Executor)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(c *http.Client) ExecutorOption {
	return func(e *Executor) {
		e.httpClient = c
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = l
	}
}

// WithMetrics records every attempt
func WithMetrics(m *telemetry.MarketplaceMetrics) ExecutorOption {
	return func(e *Executor) {
		e.metrics = m
	}
}

// WithClock overrides the clock used for expiry checks
func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) {
		e.now = now
	}
}

// NewExecutor creates a new Executor
func NewExecutor(cfg *config.MarketplaceConfig, grants integration.GrantStore, refresher TokenRefresher, opts ...ExecutorOption) *Executor {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = config.DefaultRequestTimeout
	}
	e := &Executor{
		baseURL:    cfg.APIBaseURL,
		grants:     grants,
		refresher:  refresher,
		httpClient: &http.Client{Timeout: timeout},
		logger:     zap.NewNop(),
		now:        time.Now,
		configErr:  cfg.RequireValid(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Do executes req. Non-2xx responses come back as *integration.UpstreamError.
// A 401 that survives a refresh propagates as an UpstreamError with status 401; a 401
// whose refresh is rejected wraps both integration.ErrGrantRejected and the original 401.
// Nothing is sent while the marketplace configuration is invalid.
func (e *Executor) Do(ctx context.Context, req Request) (*Response, error) {
	if e.configErr != nil {
		return nil, e.configErr
	}
	grant, err := e.grants.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("marketplace: load grant: %w", err)
	}
	if grant == nil {
		return nil, integration.ErrNoActiveGrant
	}

	token := grant.AccessToken
	if grant.IsExpired(e.now()) {
		e.logger.Info("Access token expired, refreshing before request",
			zap.String("seller_id", grant.SellerID),
			zap.Time("expires_at", grant.ExpiresAt),
		)
		tokens, err := e.refresher.RefreshTokens(ctx, grant)
		if err != nil {
			return nil, err
		}
		token = tokens.AccessToken
	}

	resp, err := e.attempt(ctx, req, token, 1)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && !req.NoAuthRetry {
		unauthorized := newUpstreamError(req, resp.StatusCode, resp.Body)
		e.logger.Info("Access token rejected, refreshing and retrying once",
			zap.String("method", req.Method),
			zap.String("path", req.Path),
		)

		tokens, err := e.refresher.RefreshTokens(ctx, nil)
		if err != nil {
			if errors.Is(err, integration.ErrGrantRejected) {
				return nil, fmt.Errorf("%w: %w", integration.ErrGrantRejected, unauthorized)
			}
			return nil, err
		}

		resp, err = e.attempt(ctx, req, tokens.AccessToken, 2)
		if err != nil {
			return nil, err
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newUpstreamError(req, resp.StatusCode, resp.Body)
	}
	return resp, nil
}

// attempt sends the request once. It returns a Response for any HTTP status.
func (e *Executor) attempt(ctx context.Context, req Request, token string, attempt int) (*Response, error) {
	ctx, span := telemetry.StartSpan(ctx, "marketplace.request",
		telemetry.WithSpanKind(trace.SpanKindClient),
		telemetry.WithAttribute("http.method", req.Method),
		telemetry.WithAttribute("http.route", req.Path),
		telemetry.WithAttribute("marketplace.attempt", attempt),
	)
	defer span.End()

	target := e.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	body, err := encodeBody(req.Body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("marketplace: failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, values := range req.Headers {
		for _, v := range values {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := e.httpClient.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		e.metrics.RecordAPICall(ctx, req.Method, 0, latency)
		telemetry.RecordError(span, err)
		e.logger.Warn("Marketplace request failed",
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.Int("attempt", attempt),
			zap.Duration("latency", latency),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %s %s: %v", integration.ErrUpstreamAPI, req.Method, req.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: failed to read response: %v", integration.ErrUpstreamAPI, req.Method, req.Path, err)
	}

	e.metrics.RecordAPICall(ctx, req.Method, resp.StatusCode, latency)
	telemetry.SetAttribute(span, "http.status_code", resp.StatusCode)
	e.logger.Info("Marketplace request",
		zap.String("method", req.Method),
		zap.String("path", req.Path),
		zap.Int("status", resp.StatusCode),
		zap.Int("attempt", attempt),
		zap.Duration("latency", latency),
		logger.Token("access_token", token),
	)

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

func encodeBody(body any) (io.Reader, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return bytes.NewReader(b), nil
	case json.RawMessage:
		return bytes.NewReader(b), nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("marketplace: encode request body: %w", err)
		}
		return bytes.NewReader(data), nil
	}
}

// apiErrorBody is the marketplace's error envelope
type apiErrorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func newUpstreamError(req Request, status int, body []byte) *integration.UpstreamError {
	upstream := &integration.UpstreamError{
		StatusCode: status,
		Method:     req.Method,
		Path:       req.Path,
	}

	var parsed apiErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil {
		upstream.Code = parsed.Error
		upstream.Message = parsed.Message
		return upstream
	}

	msg := string(body)
	if len(msg) > maxErrorMessageSize {
		msg = msg[:maxErrorMessageSize]
	}
	upstream.Message = msg
	return upstream
}

var _ Doer = (*Executor)(nil)
