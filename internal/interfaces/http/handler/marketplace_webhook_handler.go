package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appintegration "github.com/sellerlink/backend/internal/application/integration"
	"github.com/sellerlink/backend/internal/domain/integration"
	"github.com/sellerlink/backend/internal/interfaces/http/dto"
)

// Maximum webhook payload size. Marketplace notifications are a few hundred bytes.
const maxWebhookPayloadSize = 65536

// WebhookSignatureHeader carries the notification signature
const WebhookSignatureHeader = "X-Signature"

// MarketplaceWebhookService records and processes marketplace notifications
type MarketplaceWebhookService interface {
	Receive(ctx context.Context, rawBody []byte, signatureHeader string) (*appintegration.WebhookReceipt, error)
	ListEvents(ctx context.Context, topic string, limit int) ([]*integration.WebhookEvent, error)
	Replay(ctx context.Context, eventID uuid.UUID) (*integration.WebhookEvent, error)
}

// MarketplaceWebhookHandler handles the notification endpoint and its audit log.
// The notification endpoint is called by the marketplace and authenticated by signature only.
type MarketplaceWebhookHandler struct {
	BaseHandler
	webhooks MarketplaceWebhookService
}

// NewMarketplaceWebhookHandler creates a new MarketplaceWebhookHandler
func NewMarketplaceWebhookHandler(webhooks MarketplaceWebhookService) *MarketplaceWebhookHandler {
	return &MarketplaceWebhookHandler{webhooks: webhooks}
}

// Receive accepts a notification.
// Once the signature is valid the answer is 200 even if processing failed, so the
// marketplace does not redeliver something that is already recorded.
//
// POST /marketplace/webhooks
func (h *MarketplaceWebhookHandler) Receive(c *gin.Context) {
	// The signature covers the exact raw bytes, so the body is read before any parsing
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookPayloadSize+1))
	if err != nil {
		h.BadRequest(c, "Failed to read request body")
		return
	}
	if len(payload) > maxWebhookPayloadSize {
		h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodePayloadTooLarge, "Payload too large")
		return
	}

	if _, err := h.webhooks.Receive(c.Request.Context(), payload, c.GetHeader(WebhookSignatureHeader)); err != nil {
		if errors.Is(err, integration.ErrWebhookSignatureInvalid) {
			h.Error(c, http.StatusUnauthorized, dto.ErrCodeSignatureInvalid, "Webhook signature verification failed")
			return
		}
		h.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.WebhookAckResponse{Received: true})
}

// ListEvents returns the latest recorded notifications
//
// GET /marketplace/webhooks/events?topic=&limit=
func (h *MarketplaceWebhookHandler) ListEvents(c *gin.Context) {
	var req dto.WebhookEventListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BindError(c, err)
		return
	}
	events, err := h.webhooks.ListEvents(c.Request.Context(), req.Topic, req.Limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewWebhookEventResponses(events))
}

// Replay runs the action of a recorded notification again
//
// POST /marketplace/webhooks/events/:id/replay
func (h *MarketplaceWebhookHandler) Replay(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeValidationFormat, "Event ID must be a UUID")
		return
	}
	event, err := h.webhooks.Replay(c.Request.Context(), eventID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewWebhookEventResponse(event))
}
