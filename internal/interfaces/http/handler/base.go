package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	appintegration "github.com/sellerlink/backend/internal/application/integration"
	"github.com/sellerlink/backend/internal/domain/integration"
	"github.com/sellerlink/backend/internal/interfaces/http/dto"
	"github.com/sellerlink/backend/internal/interfaces/http/middleware"
)

// RequestIDKey is the header carrying the request ID
const RequestIDKey = "X-Request-ID"

// reauthorizePath is where a disconnected seller account can be connected again
const reauthorizePath = "/api/v1/marketplace/auth/start"

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// getRequestID extracts the request ID set by the RequestID middleware, falling back to the header
func getRequestID(c *gin.Context) string {
	if id := c.GetString(middleware.RequestIDContextKey); id != "" {
		return id
	}
	if id := c.GetHeader(RequestIDKey); id != "" {
		return id
	}
	return ""
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a success response with pagination meta
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, limit, offset int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, limit, offset))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// NoContent sends a 204 no content response
func (h *BaseHandler) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	requestID := getRequestID(c)
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, requestID))
}

// ErrorWithCode sends an error response, deriving status code from error code
func (h *BaseHandler) ErrorWithCode(c *gin.Context, code, message string) {
	h.Error(c, dto.GetHTTPStatus(code), code, message)
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// NotFound sends a 404 not found response
func (h *BaseHandler) NotFound(c *gin.Context, message string) {
	h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, message)
}

// Unauthorized sends a 401 unauthorized response
func (h *BaseHandler) Unauthorized(c *gin.Context, message string) {
	h.Error(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, message)
}

// Conflict sends a 409 conflict response
func (h *BaseHandler) Conflict(c *gin.Context, message string) {
	h.Error(c, http.StatusConflict, dto.ErrCodeConflict, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// ValidationError sends a 400 validation error response with details
func (h *BaseHandler) ValidationError(c *gin.Context, details []dto.ValidationDetail) {
	requestID := getRequestID(c)
	c.JSON(http.StatusBadRequest, dto.NewValidationErrorResponse(
		"Request validation failed",
		requestID,
		details,
	))
}

// BindError answers a request whose query or body could not be bound.
// Validator failures get field details; anything else is a malformed request.
func (h *BaseHandler) BindError(c *gin.Context, err error) {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		middleware.HandleValidationError(c, validationErrs)
		return
	}
	h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidInput, "Invalid request: "+err.Error())
}

// HandleError converts marketplace and application errors to HTTP responses
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	requestID := getRequestID(c)

	var upstream *integration.UpstreamError
	switch {
	case integration.IsDisconnected(err):
		c.JSON(http.StatusConflict, dto.NewErrorResponseWithHelp(
			dto.ErrCodeMarketplaceDisconnected,
			"Marketplace account is not connected, authorization is required",
			requestID,
			reauthorizePath,
		))
	case errors.As(err, &upstream):
		c.JSON(http.StatusBadGateway, dto.NewUpstreamErrorResponse(
			"Marketplace API request failed",
			requestID,
			dto.UpstreamDetail{
				StatusCode: upstream.StatusCode,
				Code:       upstream.Code,
				Message:    upstream.Message,
			},
		))
	case errors.Is(err, integration.ErrInvalidOrExpiredState):
		h.Error(c, http.StatusBadRequest, dto.ErrCodeAuthStateInvalid,
			"Authorization state is invalid or expired, start the authorization again")
	case errors.Is(err, appintegration.ErrMissingAuthorizationCode):
		h.Error(c, http.StatusBadRequest, dto.ErrCodeValidationRequired, "Authorization code is required")
	case errors.Is(err, integration.ErrTokenExchangeFailed):
		h.Error(c, http.StatusBadGateway, dto.ErrCodeTokenExchangeFailed, "Token exchange with the marketplace failed")
	case errors.Is(err, integration.ErrWebhookSignatureInvalid):
		h.Error(c, http.StatusUnauthorized, dto.ErrCodeSignatureInvalid, "Webhook signature verification failed")
	case errors.Is(err, integration.ErrOrderNotFound):
		h.NotFound(c, "Order not found")
	case errors.Is(err, integration.ErrWebhookEventNotFound):
		h.NotFound(c, "Webhook event not found")
	case errors.Is(err, integration.ErrWebhookNotReplayable),
		errors.Is(err, integration.ErrInvalidOrderResource):
		h.Error(c, http.StatusUnprocessableEntity, dto.ErrCodeInvalidState, err.Error())
	case errors.Is(err, integration.ErrInvalidListingRequest),
		errors.Is(err, integration.ErrInvalidListingStatus):
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidInput, err.Error())
	case errors.Is(err, integration.ErrConfigInvalid):
		h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeConfigInvalid, "Marketplace connection is not configured")
	default:
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponseWithRequestID(
			dto.ErrCodeInternal,
			"An unexpected error occurred",
			requestID,
		))
	}
}
