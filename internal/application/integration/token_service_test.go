package integration

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sellerlink/backend/internal/domain/integration"
	"github.com/sellerlink/backend/internal/infrastructure/cache"
	"github.com/sellerlink/backend/internal/infrastructure/config"
	"github.com/sellerlink/backend/internal/infrastructure/marketplace"
)

func newTestMarketplaceConfig(baseURL string) *config.MarketplaceConfig {
	return &config.MarketplaceConfig{
		AppID:          "1234567890",
		ClientSecret:   "client-secret",
		RedirectURI:    "https://seller.example.com/api/v1/marketplace/auth/callback",
		SellerID:       "99",
		AuthBaseURL:    baseURL,
		APIBaseURL:     baseURL,
		Scopes:         []string{"offline_access", "read", "write"},
		PKCEEnabled:    true,
		RequestTimeout: 5 * time.Second,
	}
}

func newStoredGrant() *integration.Grant {
	return &integration.Grant{
		ID:           uuid.New(),
		SellerID:     "99",
		UserID:       "99",
		AccessToken:  "AT-old",
		RefreshToken: "RT-old",
		Scope:        []string{"read", "write"},
		ExpiresAt:    time.Now().Add(-time.Minute),
	}
}

// tokenEndpoint is a fake marketplace token endpoint counting its calls
type tokenEndpoint struct {
	calls atomic.Int32
	form  url.Values
	mu    sync.Mutex
}

func (e *tokenEndpoint) server(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.calls.Add(1)
		if err := r.ParseForm(); err == nil {
			e.mu.Lock()
			e.form = r.PostForm
			e.mu.Unlock()
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

func (e *tokenEndpoint) lastForm() url.Values {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.form
}

func newEndToEndTokenService(t *testing.T, serverURL string, grants integration.GrantStore) (*TokenService, *cache.InMemoryAuthStateStore) {
	t.Helper()
	cfg := newTestMarketplaceConfig(serverURL)
	states := cache.NewInMemoryAuthStateStore(time.Minute)
	t.Cleanup(func() { _ = states.Close() })

	svc := NewTokenService(TokenServiceConfig{
		Config: cfg,
		OAuth:  marketplace.NewOAuthClient(cfg),
		States: states,
		Grants: grants,
		Logger: zap.NewNop(),
	})
	return svc, states
}

func TestTokenService_StartAuthorization(t *testing.T) {
	svc, states := newEndToEndTokenService(t, "https://auth.example.com", new(MockGrantStore))

	start, err := svc.StartAuthorization(context.Background(), "/orders")
	require.NoError(t, err)
	assert.NotEmpty(t, start.State)
	assert.True(t, start.ExpiresAt.After(time.Now()))

	u, err := url.Parse(start.AuthorizationURL)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, start.State, q.Get("state"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))

	stored, err := states.Consume(context.Background(), start.State)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Len(t, stored.CodeVerifier, 86)
	assert.Equal(t, marketplace.CodeChallenge(stored.CodeVerifier), q.Get("code_challenge"))
	assert.Equal(t, "/orders", stored.ReturnTo)
}

func TestTokenService_StartAuthorizationWithoutPKCE(t *testing.T) {
	cfg := newTestMarketplaceConfig("https://auth.example.com")
	cfg.PKCEEnabled = false

	states := new(MockAuthStateStore)
	states.On("Create", mock.Anything, "", "").Return(&integration.AuthorizationState{
		State:     "state-1",
		ExpiresAt: time.Now().Add(time.Minute),
	}, nil)

	svc := NewTokenService(TokenServiceConfig{
		Config: cfg,
		OAuth:  marketplace.NewOAuthClient(cfg),
		States: states,
		Grants: new(MockGrantStore),
	})

	start, err := svc.StartAuthorization(context.Background(), "")
	require.NoError(t, err)

	u, err := url.Parse(start.AuthorizationURL)
	require.NoError(t, err)
	assert.False(t, u.Query().Has("code_challenge"))
	states.AssertExpectations(t)
}

func TestTokenService_CompleteAuthorization(t *testing.T) {
	endpoint := &tokenEndpoint{}
	server := endpoint.server(t, http.StatusOK,
		`{"access_token":"AT1","token_type":"Bearer","expires_in":3600,"scope":"read write","user_id":99,"refresh_token":"RT1"}`)

	grants := new(MockGrantStore)
	var saved *integration.Grant
	grants.On("Save", mock.Anything, mock.AnythingOfType("*integration.Grant")).
		Run(func(args mock.Arguments) { saved = args.Get(1).(*integration.Grant) }).
		Return(nil).Once()

	svc, _ := newEndToEndTokenService(t, server.URL, grants)
	ctx := context.Background()

	start, err := svc.StartAuthorization(ctx, "/dashboard")
	require.NoError(t, err)

	before := time.Now()
	result, err := svc.CompleteAuthorization(ctx, "TG-code", start.State)
	require.NoError(t, err)

	assert.Equal(t, "AT1", result.Tokens.AccessToken)
	assert.Equal(t, "/dashboard", result.ReturnTo)
	assert.Equal(t, "99", result.SellerID)

	require.NotNil(t, saved)
	assert.Equal(t, "99", saved.SellerID)
	assert.Equal(t, "AT1", saved.AccessToken)
	assert.Equal(t, "RT1", saved.RefreshToken)
	assert.Equal(t, []string{"read", "write"}, saved.Scope)
	assert.False(t, saved.ExpiresAt.Before(before.Add(3539*time.Second)))
	assert.False(t, saved.ExpiresAt.After(time.Now().Add(3541*time.Second)))

	form := endpoint.lastForm()
	assert.Equal(t, "authorization_code", form.Get("grant_type"))
	assert.Len(t, form.Get("code_verifier"), 86)

	// the state is single use
	_, err = svc.CompleteAuthorization(ctx, "TG-code", start.State)
	assert.ErrorIs(t, err, integration.ErrInvalidOrExpiredState)
	assert.Equal(t, int32(1), endpoint.calls.Load())
	grants.AssertExpectations(t)
}

func TestTokenService_CompleteAuthorizationInvalidState(t *testing.T) {
	endpoint := &tokenEndpoint{}
	server := endpoint.server(t, http.StatusOK, `{}`)
	svc, _ := newEndToEndTokenService(t, server.URL, new(MockGrantStore))

	_, err := svc.CompleteAuthorization(context.Background(), "TG-code", "forged-state")
	assert.ErrorIs(t, err, integration.ErrInvalidOrExpiredState)

	_, err = svc.CompleteAuthorization(context.Background(), "TG-code", "")
	assert.ErrorIs(t, err, integration.ErrInvalidOrExpiredState)
	assert.Equal(t, int32(0), endpoint.calls.Load())
}

func TestTokenService_CompleteAuthorizationExpiredState(t *testing.T) {
	endpoint := &tokenEndpoint{}
	server := endpoint.server(t, http.StatusOK, `{}`)

	states := new(MockAuthStateStore)
	states.On("Consume", mock.Anything, "expired-state").Return(nil, nil)

	cfg := newTestMarketplaceConfig(server.URL)
	svc := NewTokenService(TokenServiceConfig{
		Config: cfg,
		OAuth:  marketplace.NewOAuthClient(cfg),
		States: states,
		Grants: new(MockGrantStore),
	})

	_, err := svc.CompleteAuthorization(context.Background(), "TG-code", "expired-state")
	assert.ErrorIs(t, err, integration.ErrInvalidOrExpiredState)
	assert.Equal(t, int32(0), endpoint.calls.Load())
}

func TestTokenService_CompleteAuthorizationExchangeRejected(t *testing.T) {
	endpoint := &tokenEndpoint{}
	server := endpoint.server(t, http.StatusBadRequest,
		`{"error":"invalid_grant","error_description":"code already used"}`)

	grants := new(MockGrantStore)
	svc, _ := newEndToEndTokenService(t, server.URL, grants)
	ctx := context.Background()

	start, err := svc.StartAuthorization(ctx, "")
	require.NoError(t, err)

	_, err = svc.CompleteAuthorization(ctx, "TG-used", start.State)
	assert.ErrorIs(t, err, integration.ErrGrantRejected)

	var oauthErr *integration.OAuthError
	require.True(t, errors.As(err, &oauthErr))
	assert.Equal(t, "invalid_grant", oauthErr.Code)

	// the state was burned by the failed attempt
	_, err = svc.CompleteAuthorization(ctx, "TG-used", start.State)
	assert.ErrorIs(t, err, integration.ErrInvalidOrExpiredState)
	grants.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestTokenService_CompleteAuthorizationMissingCode(t *testing.T) {
	svc, _ := newEndToEndTokenService(t, "https://auth.example.com", new(MockGrantStore))
	ctx := context.Background()

	start, err := svc.StartAuthorization(ctx, "")
	require.NoError(t, err)

	_, err = svc.CompleteAuthorization(ctx, "", start.State)
	assert.ErrorIs(t, err, ErrMissingAuthorizationCode)
}

func newMockedTokenService(oauth *MockOAuthTokenClient, grants *MockGrantStore) *TokenService {
	return NewTokenService(TokenServiceConfig{
		Config: newTestMarketplaceConfig("https://api.example.com"),
		OAuth:  oauth,
		States: new(MockAuthStateStore),
		Grants: grants,
	})
}

func TestTokenService_RefreshTokens(t *testing.T) {
	t.Run("no active grant", func(t *testing.T) {
		grants := new(MockGrantStore)
		grants.On("GetActive", mock.Anything).Return(nil, nil)
		svc := newMockedTokenService(new(MockOAuthTokenClient), grants)

		_, err := svc.RefreshTokens(context.Background(), nil)
		assert.ErrorIs(t, err, integration.ErrNoActiveGrant)
	})

	t.Run("stores the new pair and keeps the refresh token when none is returned", func(t *testing.T) {
		grant := newStoredGrant()
		grants := new(MockGrantStore)
		grants.On("GetActive", mock.Anything).Return(grant, nil)
		var saved *integration.Grant
		grants.On("Save", mock.Anything, mock.AnythingOfType("*integration.Grant")).
			Run(func(args mock.Arguments) { saved = args.Get(1).(*integration.Grant) }).
			Return(nil)

		oauth := new(MockOAuthTokenClient)
		oauth.On("Refresh", mock.Anything, "RT-old").Return(&integration.TokenSet{
			AccessToken: "AT-new",
			ExpiresIn:   21600,
		}, nil)

		svc := newMockedTokenService(oauth, grants)
		fixed := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
		svc.now = func() time.Time { return fixed }

		tokens, err := svc.RefreshTokens(context.Background(), nil)
		require.NoError(t, err)
		assert.Equal(t, "AT-new", tokens.AccessToken)
		assert.Equal(t, "RT-old", tokens.RefreshToken)

		require.NotNil(t, saved)
		assert.Equal(t, grant.ID, saved.ID)
		assert.Equal(t, "AT-new", saved.AccessToken)
		assert.Equal(t, "RT-old", saved.RefreshToken)
		assert.Equal(t, []string{"read", "write"}, saved.Scope)
		assert.True(t, fixed.Add(21540*time.Second).Equal(saved.ExpiresAt))
	})

	t.Run("uses the given grant without reloading it", func(t *testing.T) {
		grant := newStoredGrant()
		grants := new(MockGrantStore)
		grants.On("Save", mock.Anything, mock.Anything).Return(nil)

		oauth := new(MockOAuthTokenClient)
		oauth.On("Refresh", mock.Anything, "RT-old").Return(&integration.TokenSet{
			AccessToken: "AT-new", RefreshToken: "RT-new", ExpiresIn: 30,
		}, nil)

		svc := newMockedTokenService(oauth, grants)
		tokens, err := svc.RefreshTokens(context.Background(), grant)
		require.NoError(t, err)
		assert.Equal(t, "RT-new", tokens.RefreshToken)
		grants.AssertNotCalled(t, "GetActive", mock.Anything)
	})

	t.Run("rejected grant is cleared", func(t *testing.T) {
		grant := newStoredGrant()
		grants := new(MockGrantStore)
		grants.On("GetActive", mock.Anything).Return(grant, nil)
		grants.On("Clear", mock.Anything, grant.ID).Return(nil).Once()

		oauth := new(MockOAuthTokenClient)
		oauth.On("Refresh", mock.Anything, "RT-old").Return(nil,
			fmt.Errorf("%w: %w", integration.ErrGrantRejected, &integration.OAuthError{StatusCode: 400, Code: "invalid_grant"}))

		svc := newMockedTokenService(oauth, grants)
		_, err := svc.RefreshTokens(context.Background(), nil)
		assert.ErrorIs(t, err, integration.ErrGrantRejected)
		assert.True(t, integration.IsDisconnected(err))
		grants.AssertExpectations(t)
	})

	t.Run("grant rotated concurrently is returned instead of being cleared", func(t *testing.T) {
		used := newStoredGrant()
		rotated := newStoredGrant()
		rotated.ID = used.ID
		rotated.AccessToken = "AT-rotated"
		rotated.RefreshToken = "RT-rotated"
		rotated.ExpiresAt = time.Now().Add(time.Hour)

		grants := new(MockGrantStore)
		grants.On("GetActive", mock.Anything).Return(rotated, nil)

		oauth := new(MockOAuthTokenClient)
		oauth.On("Refresh", mock.Anything, "RT-old").Return(nil,
			fmt.Errorf("%w: %w", integration.ErrGrantRejected, &integration.OAuthError{StatusCode: 400, Code: "invalid_grant"}))

		svc := newMockedTokenService(oauth, grants)
		tokens, err := svc.RefreshTokens(context.Background(), used)
		require.NoError(t, err)
		assert.Equal(t, "AT-rotated", tokens.AccessToken)
		grants.AssertNotCalled(t, "Clear", mock.Anything, mock.Anything)
	})

	t.Run("transient failure keeps the grant", func(t *testing.T) {
		grant := newStoredGrant()
		grants := new(MockGrantStore)
		grants.On("GetActive", mock.Anything).Return(grant, nil)

		oauth := new(MockOAuthTokenClient)
		oauth.On("Refresh", mock.Anything, "RT-old").Return(nil,
			fmt.Errorf("%w: HTTP 503", integration.ErrTokenExchangeFailed))

		svc := newMockedTokenService(oauth, grants)
		_, err := svc.RefreshTokens(context.Background(), nil)
		assert.ErrorIs(t, err, integration.ErrTokenExchangeFailed)
		assert.False(t, integration.IsDisconnected(err))
		grants.AssertNotCalled(t, "Clear", mock.Anything, mock.Anything)
	})

	t.Run("grant without refresh token is rejected", func(t *testing.T) {
		grant := newStoredGrant()
		grant.RefreshToken = ""
		grants := new(MockGrantStore)
		grants.On("Clear", mock.Anything, grant.ID).Return(nil).Once()

		oauth := new(MockOAuthTokenClient)
		svc := newMockedTokenService(oauth, grants)

		_, err := svc.RefreshTokens(context.Background(), grant)
		assert.ErrorIs(t, err, integration.ErrGrantRejected)
		oauth.AssertNotCalled(t, "Refresh", mock.Anything, mock.Anything)
		grants.AssertExpectations(t)
	})
}

func TestTokenService_ConcurrentRefreshesShareOneExchange(t *testing.T) {
	grant := newStoredGrant()
	grants := new(MockGrantStore)
	grants.On("GetActive", mock.Anything).Return(grant, nil)
	grants.On("Save", mock.Anything, mock.Anything).Return(nil)

	oauth := new(MockOAuthTokenClient)
	oauth.On("Refresh", mock.Anything, "RT-old").
		WaitUntil(time.After(200*time.Millisecond)).
		Return(&integration.TokenSet{AccessToken: "AT-new", RefreshToken: "RT-new", ExpiresIn: 3600}, nil)

	svc := newMockedTokenService(oauth, grants)

	const callers = 8
	var wg sync.WaitGroup
	start := make(chan struct{})
	results := make([]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			tokens, err := svc.RefreshTokens(context.Background(), nil)
			if assert.NoError(t, err) {
				results[i] = tokens.AccessToken
			}
		}(i)
	}
	close(start)
	wg.Wait()

	oauth.AssertNumberOfCalls(t, "Refresh", 1)
	for _, token := range results {
		assert.Equal(t, "AT-new", token)
	}
}

func TestTokenService_SharedRefreshOutlivesCanceledCaller(t *testing.T) {
	grant := newStoredGrant()
	grants := new(MockGrantStore)
	grants.On("GetActive", mock.Anything).Return(grant, nil)
	grants.On("Save", mock.Anything, mock.Anything).Return(nil)

	exchangeErr := make(chan error, 1)
	oauth := new(MockOAuthTokenClient)
	oauth.On("Refresh", mock.Anything, "RT-old").
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			select {
			case <-time.After(300 * time.Millisecond):
				exchangeErr <- nil
			case <-ctx.Done():
				exchangeErr <- ctx.Err()
			}
		}).
		Return(&integration.TokenSet{AccessToken: "AT-new", RefreshToken: "RT-new", ExpiresIn: 3600}, nil)

	svc := newMockedTokenService(oauth, grants)

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	errA := make(chan error, 1)
	go func() {
		_, err := svc.RefreshTokens(ctxA, nil)
		errA <- err
	}()

	// B joins the exchange A started
	time.Sleep(20 * time.Millisecond)
	type outcome struct {
		tokens *integration.TokenSet
		err    error
	}
	resB := make(chan outcome, 1)
	go func() {
		tokens, err := svc.RefreshTokens(context.Background(), nil)
		resB <- outcome{tokens, err}
	}()

	time.Sleep(30 * time.Millisecond)
	cancelA()

	select {
	case err := <-errA:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("canceled caller kept waiting on the shared refresh")
	}

	select {
	case res := <-resB:
		require.NoError(t, res.err)
		assert.Equal(t, "AT-new", res.tokens.AccessToken)
	case <-time.After(2 * time.Second):
		t.Fatal("second caller never received the refreshed tokens")
	}

	assert.NoError(t, <-exchangeErr)
	oauth.AssertNumberOfCalls(t, "Refresh", 1)
	grants.AssertCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestTokenService_SharedRefreshIsBoundedByRequestTimeout(t *testing.T) {
	grant := newStoredGrant()
	grants := new(MockGrantStore)
	grants.On("GetActive", mock.Anything).Return(grant, nil)

	oauth := new(MockOAuthTokenClient)
	oauth.On("Refresh", mock.Anything, "RT-old").
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, fmt.Errorf("%w: %w", integration.ErrTokenExchangeFailed, context.DeadlineExceeded))

	cfg := newTestMarketplaceConfig("https://api.example.com")
	cfg.RequestTimeout = 50 * time.Millisecond
	svc := NewTokenService(TokenServiceConfig{
		Config: cfg,
		OAuth:  oauth,
		States: new(MockAuthStateStore),
		Grants: grants,
	})

	done := make(chan error, 1)
	go func() {
		_, err := svc.RefreshTokens(context.Background(), nil)
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, integration.ErrTokenExchangeFailed)
	case <-time.After(2 * time.Second):
		t.Fatal("refresh was not bounded by the request timeout")
	}
}

func TestTokenService_RejectsCallsWhenConfigInvalid(t *testing.T) {
	cfg := newTestMarketplaceConfig("https://api.example.com")
	cfg.AppID = ""
	cfg.SellerID = "not-a-number"

	oauth := new(MockOAuthTokenClient)
	states := new(MockAuthStateStore)
	grants := new(MockGrantStore)
	svc := NewTokenService(TokenServiceConfig{
		Config: cfg,
		OAuth:  oauth,
		States: states,
		Grants: grants,
	})
	ctx := context.Background()

	_, err := svc.StartAuthorization(ctx, "/orders")
	assert.ErrorIs(t, err, integration.ErrConfigInvalid)
	assert.Contains(t, err.Error(), "app_id is required")

	_, err = svc.CompleteAuthorization(ctx, "TG-code", "state-1")
	assert.ErrorIs(t, err, integration.ErrConfigInvalid)

	_, err = svc.RefreshTokens(ctx, newStoredGrant())
	assert.ErrorIs(t, err, integration.ErrConfigInvalid)

	states.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
	states.AssertNotCalled(t, "Consume", mock.Anything, mock.Anything)
	oauth.AssertNotCalled(t, "ExchangeCode", mock.Anything, mock.Anything, mock.Anything)
	oauth.AssertNotCalled(t, "Refresh", mock.Anything, mock.Anything)
	grants.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestTokenService_Disconnect(t *testing.T) {
	t.Run("clears the active grant", func(t *testing.T) {
		grant := newStoredGrant()
		grants := new(MockGrantStore)
		grants.On("GetActive", mock.Anything).Return(grant, nil)
		grants.On("Clear", mock.Anything, grant.ID).Return(nil).Once()

		svc := newMockedTokenService(new(MockOAuthTokenClient), grants)
		require.NoError(t, svc.Disconnect(context.Background()))
		grants.AssertExpectations(t)
	})

	t.Run("nothing connected", func(t *testing.T) {
		grants := new(MockGrantStore)
		grants.On("GetActive", mock.Anything).Return(nil, nil)

		svc := newMockedTokenService(new(MockOAuthTokenClient), grants)
		require.NoError(t, svc.Disconnect(context.Background()))
		grants.AssertNotCalled(t, "Clear", mock.Anything, mock.Anything)
	})
}

func TestTokenService_Status(t *testing.T) {
	grants := new(MockGrantStore)
	grants.On("GetActive", mock.Anything).Return(nil, nil).Once()

	svc := newMockedTokenService(new(MockOAuthTokenClient), grants)
	status, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, status.Connected)

	grant := newStoredGrant()
	grants.On("GetActive", mock.Anything).Return(grant, nil).Once()
	status, err = svc.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Connected)
	assert.True(t, status.Expired)
	assert.Equal(t, "99", status.SellerID)
	require.NotNil(t, status.ExpiresAt)
	assert.True(t, grant.ExpiresAt.Equal(*status.ExpiresAt))
}
