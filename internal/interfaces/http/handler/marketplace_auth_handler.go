package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appintegration "github.com/sellerlink/backend/internal/application/integration"
	"github.com/sellerlink/backend/internal/domain/integration"
	"github.com/sellerlink/backend/internal/infrastructure/config"
	"github.com/sellerlink/backend/internal/interfaces/http/dto"
)

// MarketplaceAuthService runs the authorization code flow and manages the stored grant
type MarketplaceAuthService interface {
	StartAuthorization(ctx context.Context, returnTo string) (*appintegration.AuthorizationStart, error)
	CompleteAuthorization(ctx context.Context, code, state string) (*appintegration.AuthorizationResult, error)
	RefreshTokens(ctx context.Context, grant *integration.Grant) (*integration.TokenSet, error)
	Disconnect(ctx context.Context) error
	Status(ctx context.Context) (*appintegration.ConnectionStatus, error)
}

// MarketplaceConfigValidator reports which connection parameters are missing
type MarketplaceConfigValidator interface {
	Validate() config.ValidationResult
}

// MarketplaceAuthHandler handles the seller account connection endpoints
type MarketplaceAuthHandler struct {
	BaseHandler
	auth      MarketplaceAuthService
	validator MarketplaceConfigValidator
	logger    *zap.Logger
}

// NewMarketplaceAuthHandler creates a new MarketplaceAuthHandler
func NewMarketplaceAuthHandler(auth MarketplaceAuthService, validator MarketplaceConfigValidator, logger *zap.Logger) *MarketplaceAuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MarketplaceAuthHandler{
		auth:      auth,
		validator: validator,
		logger:    logger,
	}
}

// Start begins an authorization.
// Browsers are redirected to the marketplace; API clients asking for JSON get the URL instead.
//
// GET /marketplace/auth/start?return_to=
func (h *MarketplaceAuthHandler) Start(c *gin.Context) {
	var req dto.AuthStartRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BindError(c, err)
		return
	}
	if req.ReturnTo != "" && !isLocalPath(req.ReturnTo) {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidInput, "return_to must be a path on this host")
		return
	}

	start, err := h.auth.StartAuthorization(c.Request.Context(), req.ReturnTo)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	if wantsJSON(c) {
		h.Success(c, start)
		return
	}
	c.Redirect(http.StatusFound, start.AuthorizationURL)
}

// Callback completes an authorization with the code the marketplace sent back
//
// GET /marketplace/auth/callback?code=&state=
func (h *MarketplaceAuthHandler) Callback(c *gin.Context) {
	var req dto.AuthCallbackRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BindError(c, err)
		return
	}
	if req.Error != "" {
		h.logger.Warn("Marketplace authorization denied",
			zap.String("error", req.Error),
			zap.String("error_description", req.ErrorDescription))
		h.Error(c, http.StatusBadRequest, dto.ErrCodeUnauthorized, "Authorization was denied: "+req.Error)
		return
	}

	result, err := h.auth.CompleteAuthorization(c.Request.Context(), req.Code, req.State)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	if result.ReturnTo != "" && !wantsJSON(c) {
		c.Redirect(http.StatusFound, result.ReturnTo)
		return
	}

	resp := dto.AuthCallbackResponse{
		Connected: true,
		SellerID:  result.SellerID,
		ExpiresAt: result.ExpiresAt,
	}
	if result.Tokens != nil {
		resp.Scope = result.Tokens.Scope
	}
	h.Success(c, resp)
}

// Status reports whether a seller account is connected
//
// GET /marketplace/auth/status
func (h *MarketplaceAuthHandler) Status(c *gin.Context) {
	status, err := h.auth.Status(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, status)
}

// Refresh forces a token refresh of the active grant
//
// POST /marketplace/auth/refresh
func (h *MarketplaceAuthHandler) Refresh(c *gin.Context) {
	tokens, err := h.auth.RefreshTokens(c.Request.Context(), nil)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.TokenRefreshResponse{
		Refreshed: true,
		ExpiresIn: tokens.ExpiresIn,
		Scope:     tokens.Scope,
	})
}

// Disconnect deletes the stored grant
//
// DELETE /marketplace/auth
func (h *MarketplaceAuthHandler) Disconnect(c *gin.Context) {
	if err := h.auth.Disconnect(c.Request.Context()); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// ValidateConfig reports which marketplace settings are present. Values are never echoed.
//
// GET /marketplace/config/validate
func (h *MarketplaceAuthHandler) ValidateConfig(c *gin.Context) {
	h.Success(c, h.validator.Validate())
}

func wantsJSON(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), gin.MIMEJSON)
}

// isLocalPath accepts absolute paths on this host and rejects anything that could leave it
func isLocalPath(p string) bool {
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.HasPrefix(p, "/\\") {
		return false
	}
	return !strings.ContainsAny(p, "\r\n")
}
