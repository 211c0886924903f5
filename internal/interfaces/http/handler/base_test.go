package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appintegration "github.com/sellerlink/backend/internal/application/integration"
	"github.com/sellerlink/backend/internal/domain/integration"
	"github.com/sellerlink/backend/internal/interfaces/http/dto"
	"github.com/sellerlink/backend/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestContext() (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestGetRequestID(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(*gin.Context)
		expectedID string
	}{
		{
			name: "from context string",
			setup: func(c *gin.Context) {
				c.Set(middleware.RequestIDContextKey, "ctx-request-id")
			},
			expectedID: "ctx-request-id",
		},
		{
			name: "from header when context empty",
			setup: func(c *gin.Context) {
				c.Request.Header.Set(RequestIDKey, "header-request-id")
			},
			expectedID: "header-request-id",
		},
		{
			name:       "empty when not set",
			setup:      func(c *gin.Context) {},
			expectedID: "",
		},
		{
			name: "context takes precedence over header",
			setup: func(c *gin.Context) {
				c.Set(middleware.RequestIDContextKey, "ctx-id")
				c.Request.Header.Set(RequestIDKey, "header-id")
			},
			expectedID: "ctx-id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestContext()
			tt.setup(c)

			assert.Equal(t, tt.expectedID, getRequestID(c))
		})
	}
}

func TestBaseHandlerSuccess(t *testing.T) {
	h := &BaseHandler{}
	c, w := newTestContext()

	h.Success(c, map[string]string{"key": "value"})

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Error)
}

func TestBaseHandlerSuccessWithMeta(t *testing.T) {
	h := &BaseHandler{}
	c, w := newTestContext()

	h.SuccessWithMeta(c, []string{"a", "b"}, 12, 2, 4)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, int64(12), resp.Meta.Total)
	assert.Equal(t, 2, resp.Meta.Limit)
	assert.Equal(t, 4, resp.Meta.Offset)
}

func TestBaseHandlerCreatedAndNoContent(t *testing.T) {
	h := &BaseHandler{}

	c, w := newTestContext()
	h.Created(c, map[string]string{"id": "MLB1"})
	assert.Equal(t, http.StatusCreated, w.Code)

	c, w = newTestContext()
	h.NoContent(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestBaseHandlerErrorHelpers(t *testing.T) {
	h := &BaseHandler{}
	tests := []struct {
		name   string
		call   func(*gin.Context)
		status int
		code   string
	}{
		{"bad request", func(c *gin.Context) { h.BadRequest(c, "bad") }, http.StatusBadRequest, dto.ErrCodeBadRequest},
		{"not found", func(c *gin.Context) { h.NotFound(c, "missing") }, http.StatusNotFound, dto.ErrCodeNotFound},
		{"unauthorized", func(c *gin.Context) { h.Unauthorized(c, "no") }, http.StatusUnauthorized, dto.ErrCodeUnauthorized},
		{"conflict", func(c *gin.Context) { h.Conflict(c, "dup") }, http.StatusConflict, dto.ErrCodeConflict},
		{"internal", func(c *gin.Context) { h.InternalError(c, "boom") }, http.StatusInternalServerError, dto.ErrCodeInternal},
		{"error with code", func(c *gin.Context) { h.ErrorWithCode(c, dto.ErrCodeUpstreamAPI, "upstream") }, http.StatusBadGateway, dto.ErrCodeUpstreamAPI},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestContext()
			c.Set(middleware.RequestIDContextKey, "req-1")

			tt.call(c)

			assert.Equal(t, tt.status, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Equal(t, "req-1", resp.Error.RequestID)
		})
	}
}

func TestBaseHandlerValidationError(t *testing.T) {
	h := &BaseHandler{}
	c, w := newTestContext()

	h.ValidationError(c, []dto.ValidationDetail{{Field: "limit", Message: "Must be at most 50"}})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
	require.Len(t, resp.Error.Details, 1)
	assert.Equal(t, "limit", resp.Error.Details[0].Field)
}

func TestBaseHandlerHandleError(t *testing.T) {
	h := &BaseHandler{}
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"no active grant", integration.ErrNoActiveGrant, http.StatusConflict, dto.ErrCodeMarketplaceDisconnected},
		{"grant rejected wrapped", fmt.Errorf("refresh: %w", integration.ErrGrantRejected), http.StatusConflict, dto.ErrCodeMarketplaceDisconnected},
		{"invalid state", integration.ErrInvalidOrExpiredState, http.StatusBadRequest, dto.ErrCodeAuthStateInvalid},
		{"missing code", appintegration.ErrMissingAuthorizationCode, http.StatusBadRequest, dto.ErrCodeValidationRequired},
		{"token exchange", fmt.Errorf("%w: timeout", integration.ErrTokenExchangeFailed), http.StatusBadGateway, dto.ErrCodeTokenExchangeFailed},
		{"signature", integration.ErrWebhookSignatureInvalid, http.StatusUnauthorized, dto.ErrCodeSignatureInvalid},
		{"order not found", integration.ErrOrderNotFound, http.StatusNotFound, dto.ErrCodeNotFound},
		{"event not found", integration.ErrWebhookEventNotFound, http.StatusNotFound, dto.ErrCodeNotFound},
		{"not replayable", integration.ErrWebhookNotReplayable, http.StatusUnprocessableEntity, dto.ErrCodeInvalidState},
		{"bad resource", fmt.Errorf("%w: %q", integration.ErrInvalidOrderResource, "/items/1"), http.StatusUnprocessableEntity, dto.ErrCodeInvalidState},
		{"listing request", fmt.Errorf("%w: title too long", integration.ErrInvalidListingRequest), http.StatusBadRequest, dto.ErrCodeInvalidInput},
		{"listing status", integration.ErrInvalidListingStatus, http.StatusBadRequest, dto.ErrCodeInvalidInput},
		{"config", integration.ErrConfigInvalid, http.StatusServiceUnavailable, dto.ErrCodeConfigInvalid},
		{"unknown", errors.New("database is gone"), http.StatusInternalServerError, dto.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestContext()
			c.Set(middleware.RequestIDContextKey, "req-err")

			h.HandleError(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			resp := decodeResponse(t, w)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Equal(t, "req-err", resp.Error.RequestID)
		})
	}
}

func TestBaseHandlerHandleError_DisconnectedPointsAtAuthorization(t *testing.T) {
	h := &BaseHandler{}
	c, w := newTestContext()

	h.HandleError(c, integration.ErrNoActiveGrant)

	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Error)
	assert.Equal(t, reauthorizePath, resp.Error.Help)
}

func TestBaseHandlerHandleError_UpstreamDetailsRelayed(t *testing.T) {
	h := &BaseHandler{}
	c, w := newTestContext()

	err := fmt.Errorf("fetch order: %w", &integration.UpstreamError{
		StatusCode: http.StatusForbidden,
		Code:       "forbidden",
		Message:    "caller is not the seller",
		Method:     http.MethodGet,
		Path:       "/orders/1",
	})
	h.HandleError(c, err)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeUpstreamAPI, resp.Error.Code)
	require.NotNil(t, resp.Error.Upstream)
	assert.Equal(t, http.StatusForbidden, resp.Error.Upstream.StatusCode)
	assert.Equal(t, "forbidden", resp.Error.Upstream.Code)
	assert.Equal(t, "caller is not the seller", resp.Error.Upstream.Message)
}

func TestBaseHandlerHandleError_Nil(t *testing.T) {
	h := &BaseHandler{}
	c, w := newTestContext()

	h.HandleError(c, nil)

	assert.Empty(t, w.Body.String())
}

func TestBaseHandlerBindError_NonValidation(t *testing.T) {
	h := &BaseHandler{}
	c, w := newTestContext()

	h.BindError(c, errors.New("invalid character 'x'"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeInvalidInput, resp.Error.Code)
}
