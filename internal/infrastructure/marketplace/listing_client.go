package marketplace

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/sellerlink/backend/internal/domain/integration"
)

// DefaultListingPageSize is used when ListBySeller is called without a limit
const DefaultListingPageSize = 50

var errEmptyListingID = fmt.Errorf("%w: listing id is required", integration.ErrInvalidListingRequest)

// ListingPicture references an image by URL
type ListingPicture struct {
	Source string `json:"source" validate:"required,url"`
}

// CreateListingRequest is the payload for publishing a new listing
type CreateListingRequest struct {
	Title             string           `json:"title" validate:"required,max=60"`
	CategoryID        string           `json:"category_id" validate:"required"`
	Price             decimal.Decimal  `json:"price"`
	CurrencyID        string           `json:"currency_id" validate:"required,len=3,uppercase"`
	AvailableQuantity int              `json:"available_quantity" validate:"gte=1"`
	BuyingMode        string           `json:"buying_mode" validate:"required,oneof=buy_it_now auction"`
	ListingTypeID     string           `json:"listing_type_id" validate:"required"`
	Condition         string           `json:"condition" validate:"required,oneof=new used not_specified"`
	Pictures          []ListingPicture `json:"pictures,omitempty" validate:"omitempty,dive"`
}

// UpdateListingRequest changes selected fields of a listing. Nil fields are left untouched.
type UpdateListingRequest struct {
	Title             *string          `json:"title,omitempty" validate:"omitempty,max=60"`
	Price             *decimal.Decimal `json:"price,omitempty"`
	AvailableQuantity *int             `json:"available_quantity,omitempty" validate:"omitempty,gte=0"`
}

type listingSearchResponse struct {
	Results []string           `json:"results"`
	Paging  integration.Paging `json:"paging"`
}

// ListingClient manages the seller's listings through the authenticated executor
type ListingClient struct {
	exec     Doer
	sellerID string
	validate *validator.Validate
}

// NewListingClient creates a new ListingClient
func NewListingClient(exec Doer, sellerID string) *ListingClient {
	return &ListingClient{
		exec:     exec,
		sellerID: sellerID,
		validate: validator.New(),
	}
}

// Get fetches a listing by ID
func (c *ListingClient) Get(ctx context.Context, id string) (*integration.Listing, error) {
	if id == "" {
		return nil, errEmptyListingID
	}
	return c.call(ctx, Request{Method: "GET", Path: itemPath(id)})
}

// Create publishes a new listing
func (c *ListingClient) Create(ctx context.Context, req CreateListingRequest) (*integration.Listing, error) {
	if err := c.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrInvalidListingRequest, err)
	}
	if !req.Price.IsPositive() {
		return nil, fmt.Errorf("%w: price must be positive", integration.ErrInvalidListingRequest)
	}
	return c.call(ctx, Request{Method: "POST", Path: "/items", Body: req})
}

// Update changes the given fields of a listing
func (c *ListingClient) Update(ctx context.Context, id string, req UpdateListingRequest) (*integration.Listing, error) {
	if id == "" {
		return nil, errEmptyListingID
	}
	if req.Title == nil && req.Price == nil && req.AvailableQuantity == nil {
		return nil, fmt.Errorf("%w: no fields to update", integration.ErrInvalidListingRequest)
	}
	if err := c.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrInvalidListingRequest, err)
	}
	if req.Price != nil && !req.Price.IsPositive() {
		return nil, fmt.Errorf("%w: price must be positive", integration.ErrInvalidListingRequest)
	}
	return c.call(ctx, Request{Method: "PUT", Path: itemPath(id), Body: req})
}

// SetStatus moves a listing to active, paused or closed
func (c *ListingClient) SetStatus(ctx context.Context, id string, status integration.ListingStatus) (*integration.Listing, error) {
	if id == "" {
		return nil, errEmptyListingID
	}
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: %q", integration.ErrInvalidListingStatus, status)
	}
	return c.call(ctx, Request{
		Method: "PUT",
		Path:   itemPath(id),
		Body:   map[string]string{"status": status.String()},
	})
}

// Pause pauses a listing
func (c *ListingClient) Pause(ctx context.Context, id string) (*integration.Listing, error) {
	return c.SetStatus(ctx, id, integration.ListingStatusPaused)
}

// Activate re-activates a paused listing
func (c *ListingClient) Activate(ctx context.Context, id string) (*integration.Listing, error) {
	return c.SetStatus(ctx, id, integration.ListingStatusActive)
}

// Close closes a listing permanently
func (c *ListingClient) Close(ctx context.Context, id string) (*integration.Listing, error) {
	return c.SetStatus(ctx, id, integration.ListingStatusClosed)
}

// ListBySeller returns a page of the seller's listing IDs, optionally filtered by status
func (c *ListingClient) ListBySeller(ctx context.Context, status integration.ListingStatus, limit, offset int) (*integration.ListingPage, error) {
	if status != "" && !status.IsValid() {
		return nil, fmt.Errorf("%w: %q", integration.ErrInvalidListingStatus, status)
	}
	if limit <= 0 {
		limit = DefaultListingPageSize
	}

	q := url.Values{}
	if status != "" {
		q.Set("status", status.String())
	}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	resp, err := c.exec.Do(ctx, Request{
		Method: "GET",
		Path:   "/users/" + url.PathEscape(c.sellerID) + "/items/search",
		Query:  q,
	})
	if err != nil {
		return nil, err
	}

	var body listingSearchResponse
	if err := resp.Decode(&body); err != nil {
		return nil, err
	}
	ids := body.Results
	if ids == nil {
		ids = []string{}
	}
	return &integration.ListingPage{
		IDs:    ids,
		Total:  body.Paging.Total,
		Offset: body.Paging.Offset,
		Limit:  body.Paging.Limit,
	}, nil
}

func (c *ListingClient) call(ctx context.Context, req Request) (*integration.Listing, error) {
	resp, err := c.exec.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	var listing integration.Listing
	if err := resp.Decode(&listing); err != nil {
		return nil, err
	}
	return &listing, nil
}

func itemPath(id string) string {
	return "/items/" + url.PathEscape(id)
}
