package marketplace

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sellerlink/backend/internal/domain/integration"
	"github.com/sellerlink/backend/internal/infrastructure/config"
)

func newTestMarketplaceConfig(apiBaseURL string) *config.MarketplaceConfig {
	return &config.MarketplaceConfig{
		AppID:          "1234567890",
		ClientSecret:   "client-secret",
		RedirectURI:    "https://seller.example.com/api/v1/marketplace/auth/callback",
		SellerID:       "99",
		AuthBaseURL:    "https://auth.example.com",
		APIBaseURL:     apiBaseURL,
		Scopes:         []string{"offline_access", "read", "write"},
		PKCEEnabled:    true,
		RequestTimeout: 5 * time.Second,
	}
}

func TestOAuthClient_AuthorizationURL(t *testing.T) {
	client := NewOAuthClient(newTestMarketplaceConfig("https://api.example.com"))

	t.Run("with PKCE challenge", func(t *testing.T) {
		raw := client.AuthorizationURL("state-123", "challenge-abc")

		u, err := url.Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, "auth.example.com", u.Host)
		assert.Equal(t, "/authorization", u.Path)

		q := u.Query()
		assert.Equal(t, "code", q.Get("response_type"))
		assert.Equal(t, "1234567890", q.Get("client_id"))
		assert.Equal(t, "https://seller.example.com/api/v1/marketplace/auth/callback", q.Get("redirect_uri"))
		assert.Equal(t, "state-123", q.Get("state"))
		assert.Equal(t, "offline_access read write", q.Get("scope"))
		assert.Equal(t, "challenge-abc", q.Get("code_challenge"))
		assert.Equal(t, "S256", q.Get("code_challenge_method"))
	})

	t.Run("without PKCE challenge", func(t *testing.T) {
		u, err := url.Parse(client.AuthorizationURL("state-123", ""))
		require.NoError(t, err)
		assert.False(t, u.Query().Has("code_challenge"))
		assert.False(t, u.Query().Has("code_challenge_method"))
	})
}

func TestOAuthClient_ExchangeCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/oauth/token", r.URL.Path)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())

		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "1234567890", r.PostForm.Get("client_id"))
		assert.Equal(t, "client-secret", r.PostForm.Get("client_secret"))
		assert.Equal(t, "TG-code", r.PostForm.Get("code"))
		assert.Equal(t, "verifier-xyz", r.PostForm.Get("code_verifier"))
		assert.Equal(t, "https://seller.example.com/api/v1/marketplace/auth/callback", r.PostForm.Get("redirect_uri"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"AT1","token_type":"Bearer","expires_in":21600,"scope":"offline_access read write","user_id":99,"refresh_token":"RT1"}`)
	}))
	defer server.Close()

	client := NewOAuthClient(newTestMarketplaceConfig(server.URL))
	tokens, err := client.ExchangeCode(context.Background(), "TG-code", "verifier-xyz")
	require.NoError(t, err)
	assert.Equal(t, "AT1", tokens.AccessToken)
	assert.Equal(t, "RT1", tokens.RefreshToken)
	assert.Equal(t, int64(21600), tokens.ExpiresIn)
	assert.Equal(t, int64(99), tokens.UserID)
	assert.Equal(t, []string{"offline_access", "read", "write"}, tokens.ScopeList())
}

func TestOAuthClient_ExchangeCodeWithoutVerifier(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.False(t, r.PostForm.Has("code_verifier"))
		fmt.Fprint(w, `{"access_token":"AT1","expires_in":3600}`)
	}))
	defer server.Close()

	client := NewOAuthClient(newTestMarketplaceConfig(server.URL))
	_, err := client.ExchangeCode(context.Background(), "TG-code", "")
	require.NoError(t, err)
}

func TestOAuthClient_Refresh(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "RT1", r.PostForm.Get("refresh_token"))
		fmt.Fprint(w, `{"access_token":"AT2","expires_in":21600,"refresh_token":"RT2"}`)
	}))
	defer server.Close()

	client := NewOAuthClient(newTestMarketplaceConfig(server.URL))
	tokens, err := client.Refresh(context.Background(), "RT1")
	require.NoError(t, err)
	assert.Equal(t, "AT2", tokens.AccessToken)
	assert.Equal(t, "RT2", tokens.RefreshToken)
}

func TestOAuthClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantErr    error
		wantCode   string
		wantDetail string
	}{
		{
			name:       "invalid_grant",
			status:     http.StatusBadRequest,
			body:       `{"error":"invalid_grant","error_description":"the refresh token has been revoked"}`,
			wantErr:    integration.ErrGrantRejected,
			wantCode:   "invalid_grant",
			wantDetail: "the refresh token has been revoked",
		},
		{
			name:       "marketplace error envelope",
			status:     http.StatusBadRequest,
			body:       `{"message":"Error validating grant. Your authorization code or refresh token may be expired or it was already used","error":"invalid_grant","status":400,"cause":[]}`,
			wantErr:    integration.ErrGrantRejected,
			wantCode:   "invalid_grant",
			wantDetail: "Error validating grant. Your authorization code or refresh token may be expired or it was already used",
		},
		{
			name:     "invalid_client",
			status:   http.StatusUnauthorized,
			body:     `{"error":"invalid_client"}`,
			wantErr:  integration.ErrGrantRejected,
			wantCode: "invalid_client",
		},
		{
			name:     "non-JSON 4xx",
			status:   http.StatusForbidden,
			body:     `forbidden`,
			wantErr:  integration.ErrGrantRejected,
			wantCode: "http_403",
		},
		{
			name:    "server error",
			status:  http.StatusBadGateway,
			body:    `upstream down`,
			wantErr: integration.ErrTokenExchangeFailed,
		},
		{
			name:    "rate limited",
			status:  http.StatusTooManyRequests,
			body:    `{"error":"local_rate_limited"}`,
			wantErr: integration.ErrTokenExchangeFailed,
		},
		{
			name:    "undecodable success",
			status:  http.StatusOK,
			body:    `<html>`,
			wantErr: integration.ErrTokenExchangeFailed,
		},
		{
			name:    "success without access token",
			status:  http.StatusOK,
			body:    `{"token_type":"Bearer"}`,
			wantErr: integration.ErrTokenExchangeFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			client := NewOAuthClient(newTestMarketplaceConfig(server.URL))
			tokens, err := client.Refresh(context.Background(), "RT1")
			require.Error(t, err)
			assert.Nil(t, tokens)
			assert.ErrorIs(t, err, tt.wantErr)

			var oauthErr *integration.OAuthError
			if tt.wantCode != "" {
				require.True(t, errors.As(err, &oauthErr))
				assert.Equal(t, tt.status, oauthErr.StatusCode)
				assert.Equal(t, tt.wantCode, oauthErr.Code)
				assert.Equal(t, tt.wantDetail, oauthErr.Description)
				assert.True(t, integration.IsDisconnected(err))
			} else {
				assert.False(t, errors.As(err, &oauthErr))
				assert.False(t, integration.IsDisconnected(err))
			}
		})
	}
}

func TestOAuthClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewOAuthClient(newTestMarketplaceConfig(server.URL),
		WithOAuthHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}))

	_, err := client.ExchangeCode(context.Background(), "TG-code", "")
	assert.ErrorIs(t, err, integration.ErrTokenExchangeFailed)
	assert.False(t, integration.IsDisconnected(err))
}

func TestOAuthClient_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	baseURL := server.URL
	server.Close()

	client := NewOAuthClient(newTestMarketplaceConfig(baseURL))
	_, err := client.Refresh(context.Background(), "RT1")
	assert.ErrorIs(t, err, integration.ErrTokenExchangeFailed)
}
