package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/sellerlink/backend/internal/domain/integration"
	"github.com/sellerlink/backend/internal/infrastructure/marketplace"
	"github.com/sellerlink/backend/internal/interfaces/http/dto"
)

// MarketplaceListingClient manages the seller's listings on the marketplace
type MarketplaceListingClient interface {
	Get(ctx context.Context, id string) (*integration.Listing, error)
	Create(ctx context.Context, req marketplace.CreateListingRequest) (*integration.Listing, error)
	Update(ctx context.Context, id string, req marketplace.UpdateListingRequest) (*integration.Listing, error)
	Pause(ctx context.Context, id string) (*integration.Listing, error)
	Activate(ctx context.Context, id string) (*integration.Listing, error)
	Close(ctx context.Context, id string) (*integration.Listing, error)
	ListBySeller(ctx context.Context, status integration.ListingStatus, limit, offset int) (*integration.ListingPage, error)
}

// MarketplaceListingHandler proxies listing management to the marketplace.
// Listings are not stored locally.
type MarketplaceListingHandler struct {
	BaseHandler
	listings MarketplaceListingClient
}

// NewMarketplaceListingHandler creates a new MarketplaceListingHandler
func NewMarketplaceListingHandler(listings MarketplaceListingClient) *MarketplaceListingHandler {
	return &MarketplaceListingHandler{listings: listings}
}

// Get returns a listing
//
// GET /marketplace/listings/:id
func (h *MarketplaceListingHandler) Get(c *gin.Context) {
	listing, err := h.listings.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, listing)
}

// Create publishes a new listing
//
// POST /marketplace/listings
func (h *MarketplaceListingHandler) Create(c *gin.Context) {
	var req marketplace.CreateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	listing, err := h.listings.Create(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, listing)
}

// Update changes the title, price or quantity of a listing
//
// PUT /marketplace/listings/:id
func (h *MarketplaceListingHandler) Update(c *gin.Context) {
	var req marketplace.UpdateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	listing, err := h.listings.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, listing)
}

// Pause pauses a listing
//
// POST /marketplace/listings/:id/pause
func (h *MarketplaceListingHandler) Pause(c *gin.Context) {
	h.changeStatus(c, h.listings.Pause)
}

// Activate re-activates a paused listing
//
// POST /marketplace/listings/:id/activate
func (h *MarketplaceListingHandler) Activate(c *gin.Context) {
	h.changeStatus(c, h.listings.Activate)
}

// Close closes a listing permanently
//
// POST /marketplace/listings/:id/close
func (h *MarketplaceListingHandler) Close(c *gin.Context) {
	h.changeStatus(c, h.listings.Close)
}

// List returns a page of the seller's listing IDs
//
// GET /marketplace/listings?status=&limit=&offset=
func (h *MarketplaceListingHandler) List(c *gin.Context) {
	var req dto.ListingListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BindError(c, err)
		return
	}
	page, err := h.listings.ListBySeller(c.Request.Context(), integration.ListingStatus(req.Status), req.Limit, req.Offset)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, page.IDs, int64(page.Total), page.Limit, page.Offset)
}

func (h *MarketplaceListingHandler) changeStatus(c *gin.Context, change func(context.Context, string) (*integration.Listing, error)) {
	listing, err := change(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, listing)
}
