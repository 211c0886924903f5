package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sellerlink/backend/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// Authorization
// ---------------------------------------------------------------------------

// AuthStartRequest are the query parameters of the authorization start endpoint
type AuthStartRequest struct {
	ReturnTo string `form:"return_to" binding:"omitempty,max=2048"`
}

// AuthCallbackRequest are the query parameters the marketplace sends back
type AuthCallbackRequest struct {
	Code  string `form:"code"`
	State string `form:"state"`
	// Error is set when the user denied access
	Error            string `form:"error"`
	ErrorDescription string `form:"error_description"`
}

// AuthCallbackResponse reports a completed authorization. Token material is never returned.
type AuthCallbackResponse struct {
	Connected bool      `json:"connected"`
	SellerID  string    `json:"seller_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Scope     string    `json:"scope,omitempty"`
}

// TokenRefreshResponse reports a successful refresh without exposing tokens
type TokenRefreshResponse struct {
	Refreshed bool   `json:"refreshed"`
	ExpiresIn int64  `json:"expires_in"`
	Scope     string `json:"scope,omitempty"`
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

// OrderSyncRequest selects the page of remote orders to sync
type OrderSyncRequest struct {
	Limit    int        `json:"limit" binding:"omitempty,min=1,max=50"`
	Offset   int        `json:"offset" binding:"omitempty,min=0"`
	Status   string     `json:"status" binding:"omitempty,max=32"`
	DateFrom *time.Time `json:"date_from"`
	DateTo   *time.Time `json:"date_to"`
}

// ToSearch converts the request into an order search
func (r OrderSyncRequest) ToSearch() integration.OrderSearch {
	return integration.OrderSearch{
		Limit:    r.Limit,
		Offset:   r.Offset,
		Status:   integration.OrderStatus(r.Status),
		DateFrom: r.DateFrom,
		DateTo:   r.DateTo,
	}
}

// OrderListRequest filters locally stored orders
type OrderListRequest struct {
	ListRequest
	Status       string `form:"status" binding:"omitempty,max=32"`
	Acknowledged *bool  `form:"acknowledged"`
	ReadyToShip  *bool  `form:"ready_to_ship"`
}

// ToFilter converts the request into a repository filter
func (r OrderListRequest) ToFilter() integration.OrderFilter {
	return integration.OrderFilter{
		Status:       integration.OrderStatus(r.Status),
		Acknowledged: r.Acknowledged,
		ReadyToShip:  r.ReadyToShip,
		Limit:        r.Limit,
		Offset:       r.Offset,
	}
}

// ReadyToShipRequest optionally records a tracking number
type ReadyToShipRequest struct {
	TrackingNumber string `json:"tracking_number" binding:"omitempty,max=64"`
}

// OrderSummaryRequest is the query of the summary endpoint
type OrderSummaryRequest struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=1000"`
}

// OrderResponse is the API view of a stored order
type OrderResponse struct {
	OrderID      int64                 `json:"order_id"`
	Status       string                `json:"status"`
	DateCreated  time.Time             `json:"date_created"`
	LastUpdated  time.Time             `json:"last_updated"`
	TotalAmount  decimal.Decimal       `json:"total_amount"`
	CurrencyID   string                `json:"currency_id"`
	Buyer        integration.Buyer     `json:"buyer"`
	Payments     []integration.Payment `json:"payments"`
	Shipping     integration.Shipping  `json:"shipping"`
	Acknowledged bool                  `json:"acknowledged"`
	ReadyToShip  bool                  `json:"ready_to_ship"`
	Tags         []string              `json:"tags"`
	LastSync     time.Time             `json:"last_sync"`
}

// NewOrderResponse converts an order record to its API view
func NewOrderResponse(o *integration.OrderRecord) OrderResponse {
	payments := o.Payments
	if payments == nil {
		payments = []integration.Payment{}
	}
	tags := o.Tags
	if tags == nil {
		tags = []string{}
	}
	return OrderResponse{
		OrderID:      o.OrderID,
		Status:       o.Status.String(),
		DateCreated:  o.DateCreated,
		LastUpdated:  o.LastUpdated,
		TotalAmount:  o.TotalAmount,
		CurrencyID:   o.CurrencyID,
		Buyer:        o.Buyer,
		Payments:     payments,
		Shipping:     o.Shipping,
		Acknowledged: o.Acknowledged,
		ReadyToShip:  o.ReadyToShip,
		Tags:         tags,
		LastSync:     o.LastSync,
	}
}

// NewOrderResponses converts a list of order records
func NewOrderResponses(orders []*integration.OrderRecord) []OrderResponse {
	result := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		result = append(result, NewOrderResponse(o))
	}
	return result
}

// OrderSyncResponse reports one synced page of remote orders
type OrderSyncResponse struct {
	Synced int                `json:"synced"`
	Orders []OrderResponse    `json:"orders"`
	Paging integration.Paging `json:"paging"`
}

// ---------------------------------------------------------------------------
// Webhooks
// ---------------------------------------------------------------------------

// WebhookAckResponse acknowledges an accepted notification.
// It never reveals whether the body parsed or the sync succeeded.
type WebhookAckResponse struct {
	Received bool `json:"received"`
}

// WebhookEventListRequest filters the audit log
type WebhookEventListRequest struct {
	Topic string `form:"topic" binding:"omitempty,max=64"`
	Limit int    `form:"limit" binding:"omitempty,min=1,max=500"`
}

// WebhookEventResponse is the API view of an audit log entry
type WebhookEventResponse struct {
	ID             uuid.UUID `json:"id"`
	Topic          string    `json:"topic"`
	Resource       string    `json:"resource"`
	UserID         int64     `json:"user_id"`
	ApplicationID  int64     `json:"application_id"`
	Attempts       int       `json:"attempts"`
	SignatureValid bool      `json:"signature_valid"`
	ReceivedAt     time.Time `json:"received_at"`
	PayloadSize    int       `json:"payload_size"`
}

// NewWebhookEventResponse converts an audit log entry. The raw payload is not echoed.
func NewWebhookEventResponse(e *integration.WebhookEvent) WebhookEventResponse {
	return WebhookEventResponse{
		ID:             e.ID,
		Topic:          e.Topic,
		Resource:       e.Resource,
		UserID:         e.UserID,
		ApplicationID:  e.ApplicationID,
		Attempts:       e.Attempts,
		SignatureValid: e.SignatureValid,
		ReceivedAt:     e.ReceivedAt,
		PayloadSize:    len(e.Payload),
	}
}

// NewWebhookEventResponses converts a list of audit log entries
func NewWebhookEventResponses(events []*integration.WebhookEvent) []WebhookEventResponse {
	result := make([]WebhookEventResponse, 0, len(events))
	for _, e := range events {
		result = append(result, NewWebhookEventResponse(e))
	}
	return result
}

// ---------------------------------------------------------------------------
// Listings
// ---------------------------------------------------------------------------

// ListingListRequest filters the seller's listings
type ListingListRequest struct {
	ListRequest
	Status string `form:"status" binding:"omitempty,oneof=active paused closed"`
}
