package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	appintegration "github.com/sellerlink/backend/internal/application/integration"
	"github.com/sellerlink/backend/internal/domain/integration"
	"github.com/sellerlink/backend/internal/interfaces/http/dto"
)

// MarketplaceOrderService syncs remote orders and serves the local copies
type MarketplaceOrderService interface {
	SyncAll(ctx context.Context, search integration.OrderSearch) (*appintegration.SyncAllResult, error)
	SyncOne(ctx context.Context, orderID int64) (*integration.OrderRecord, error)
	Acknowledge(ctx context.Context, orderID int64) error
	MarkReadyToShip(ctx context.Context, orderID int64, trackingNumber string) error
	Summarize(ctx context.Context, limit int) (*integration.OrderSummary, error)
	ListOrders(ctx context.Context, filter integration.OrderFilter) ([]*integration.OrderRecord, int64, error)
	GetOrder(ctx context.Context, orderID int64) (*integration.OrderRecord, error)
}

// MarketplaceOrderHandler handles order sync and local order endpoints
type MarketplaceOrderHandler struct {
	BaseHandler
	orders MarketplaceOrderService
}

// NewMarketplaceOrderHandler creates a new MarketplaceOrderHandler
func NewMarketplaceOrderHandler(orders MarketplaceOrderService) *MarketplaceOrderHandler {
	return &MarketplaceOrderHandler{orders: orders}
}

// Sync pulls one page of remote orders into local storage. The body is optional.
//
// POST /marketplace/orders/sync
func (h *MarketplaceOrderHandler) Sync(c *gin.Context) {
	var req dto.OrderSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.BindError(c, err)
		return
	}

	result, err := h.orders.SyncAll(c.Request.Context(), req.ToSearch())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, dto.OrderSyncResponse{
		Synced: len(result.Orders),
		Orders: dto.NewOrderResponses(result.Orders),
		Paging: result.Paging,
	})
}

// SyncOne pulls a single remote order
//
// POST /marketplace/orders/:id/sync
func (h *MarketplaceOrderHandler) SyncOne(c *gin.Context) {
	orderID, ok := h.parseOrderID(c)
	if !ok {
		return
	}
	order, err := h.orders.SyncOne(c.Request.Context(), orderID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewOrderResponse(order))
}

// List returns locally stored orders
//
// GET /marketplace/orders
func (h *MarketplaceOrderHandler) List(c *gin.Context) {
	var req dto.OrderListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BindError(c, err)
		return
	}

	filter := req.ToFilter()
	if filter.Limit == 0 {
		filter.Limit = dto.DefaultListLimit
	}
	orders, total, err := h.orders.ListOrders(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, dto.NewOrderResponses(orders), total, filter.Limit, filter.Offset)
}

// Get returns a locally stored order
//
// GET /marketplace/orders/:id
func (h *MarketplaceOrderHandler) Get(c *gin.Context) {
	orderID, ok := h.parseOrderID(c)
	if !ok {
		return
	}
	order, err := h.orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewOrderResponse(order))
}

// Acknowledge marks an order as seen by the seller
//
// POST /marketplace/orders/:id/acknowledge
func (h *MarketplaceOrderHandler) Acknowledge(c *gin.Context) {
	orderID, ok := h.parseOrderID(c)
	if !ok {
		return
	}
	if err := h.orders.Acknowledge(c.Request.Context(), orderID); err != nil {
		h.HandleError(c, err)
		return
	}
	h.respondWithOrder(c, orderID)
}

// ReadyToShip marks an order as ready to ship, optionally with a tracking number
//
// POST /marketplace/orders/:id/ready-to-ship
func (h *MarketplaceOrderHandler) ReadyToShip(c *gin.Context) {
	orderID, ok := h.parseOrderID(c)
	if !ok {
		return
	}
	var req dto.ReadyToShipRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.BindError(c, err)
		return
	}
	if err := h.orders.MarkReadyToShip(c.Request.Context(), orderID, req.TrackingNumber); err != nil {
		h.HandleError(c, err)
		return
	}
	h.respondWithOrder(c, orderID)
}

// Summary aggregates the most recent orders by status
//
// GET /marketplace/orders/summary?limit=
func (h *MarketplaceOrderHandler) Summary(c *gin.Context) {
	var req dto.OrderSummaryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BindError(c, err)
		return
	}
	summary, err := h.orders.Summarize(c.Request.Context(), req.Limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, summary)
}

func (h *MarketplaceOrderHandler) respondWithOrder(c *gin.Context, orderID int64) {
	order, err := h.orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewOrderResponse(order))
}

func (h *MarketplaceOrderHandler) parseOrderID(c *gin.Context) (int64, bool) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || orderID <= 0 {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeValidationFormat, "Order ID must be a positive integer")
		return 0, false
	}
	return orderID, true
}
