package integration

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Order statuses
// ---------------------------------------------------------------------------

// OrderStatus is the remote order status as reported by the marketplace
type OrderStatus string

const (
	OrderStatusConfirmed        OrderStatus = "confirmed"
	OrderStatusPaymentRequired  OrderStatus = "payment_required"
	OrderStatusPaymentInProcess OrderStatus = "payment_in_process"
	OrderStatusPending          OrderStatus = "pending"
	OrderStatusPartiallyPaid    OrderStatus = "partially_paid"
	OrderStatusPaid             OrderStatus = "paid"
	OrderStatusDelivered        OrderStatus = "delivered"
	OrderStatusCancelled        OrderStatus = "cancelled"
	OrderStatusCanceled         OrderStatus = "canceled"
	OrderStatusInvalid          OrderStatus = "invalid"
)

// String returns the string representation of OrderStatus
func (s OrderStatus) String() string {
	return string(s)
}

// IsPending reports whether the order is still waiting on payment
func (s OrderStatus) IsPending() bool {
	switch s {
	case OrderStatusConfirmed, OrderStatusPaymentRequired, OrderStatusPaymentInProcess, OrderStatusPending:
		return true
	default:
		return false
	}
}

// IsCanceled covers both spellings the marketplace has used plus invalidated orders
func (s OrderStatus) IsCanceled() bool {
	switch s {
	case OrderStatusCancelled, OrderStatusCanceled, OrderStatusInvalid:
		return true
	default:
		return false
	}
}

const (
	// TagPaid marks an order as paid; such orders are acknowledged on sync.
	TagPaid = "paid"
	// ShippingStatusReadyToShip marks a shipment as ready; such orders are ready to ship on sync.
	ShippingStatusReadyToShip = "ready_to_ship"
)

// ---------------------------------------------------------------------------
// OrderRecord
// ---------------------------------------------------------------------------

// Buyer is the flattened buyer of an order
type Buyer struct {
	ID       int64  `json:"id"`
	Nickname string `json:"nickname"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
}

// Payment is one payment applied to an order, in the order the marketplace lists them
type Payment struct {
	ID                int64           `json:"id"`
	Status            string          `json:"status"`
	TransactionAmount decimal.Decimal `json:"transaction_amount"`
	Method            string          `json:"method"`
}

// Shipping is the shipment attached to an order
type Shipping struct {
	ID             int64  `json:"id"`
	Status         string `json:"status"`
	TrackingNumber string `json:"tracking_number"`
	Mode           string `json:"mode"`
}

// OrderRecord is the canonical local copy of a marketplace order.
// OrderID is the idempotency key. Acknowledged and ReadyToShip only ever go from false to true.
type OrderRecord struct {
	OrderID      int64
	Status       OrderStatus
	DateCreated  time.Time
	LastUpdated  time.Time
	TotalAmount  decimal.Decimal
	CurrencyID   string
	Buyer        Buyer
	Payments     []Payment
	Shipping     Shipping
	Acknowledged bool
	ReadyToShip  bool
	Tags         []string
	LastSync     time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasTag reports whether the order carries the given tag
func (o *OrderRecord) HasTag(tag string) bool {
	for _, t := range o.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// OrderFilter selects locally stored orders
type OrderFilter struct {
	Status       OrderStatus
	Acknowledged *bool
	ReadyToShip  *bool
	Limit        int
	Offset       int
}

// OrderRepository stores order records
type OrderRepository interface {
	// Upsert writes the order keyed by OrderID in a single statement. Remote fields are
	// overwritten; Acknowledged and ReadyToShip keep their stored values after the insert.
	Upsert(ctx context.Context, order *OrderRecord) error
	// FindByOrderID returns ErrOrderNotFound when the order is unknown.
	FindByOrderID(ctx context.Context, orderID int64) (*OrderRecord, error)
	// FindByOrderIDs returns the stored orders in the order of orderIDs, skipping unknown IDs.
	FindByOrderIDs(ctx context.Context, orderIDs []int64) ([]*OrderRecord, error)
	// MarkAcknowledged sets Acknowledged. Returns ErrOrderNotFound when the order is unknown.
	MarkAcknowledged(ctx context.Context, orderID int64) error
	// MarkReadyToShip sets ReadyToShip and, when non-empty, the tracking number.
	MarkReadyToShip(ctx context.Context, orderID int64, trackingNumber string) error
	// ListRecent returns the latest orders by creation date, newest first.
	ListRecent(ctx context.Context, limit int) ([]*OrderRecord, error)
	// List returns a page of orders matching filter plus the total match count.
	List(ctx context.Context, filter OrderFilter) ([]*OrderRecord, int64, error)
}

// ---------------------------------------------------------------------------
// Summary
// ---------------------------------------------------------------------------

// OrderSummary aggregates a set of orders by status
type OrderSummary struct {
	Total        int             `json:"total"`
	Pending      int             `json:"pending"`
	Paid         int             `json:"paid"`
	Delivered    int             `json:"delivered"`
	Canceled     int             `json:"canceled"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	Currency     string          `json:"currency"`
}

// SummarizeOrders buckets orders by status and sums their totals.
// The currency is taken from the first order; single-currency operation is assumed.
func SummarizeOrders(orders []*OrderRecord) OrderSummary {
	summary := OrderSummary{TotalRevenue: decimal.Zero}
	for i, o := range orders {
		if i == 0 {
			summary.Currency = o.CurrencyID
		}
		summary.Total++
		switch {
		case o.Status.IsPending():
			summary.Pending++
		case o.Status == OrderStatusPaid:
			summary.Paid++
		case o.Status == OrderStatusDelivered:
			summary.Delivered++
		case o.Status.IsCanceled():
			summary.Canceled++
		}
		summary.TotalRevenue = summary.TotalRevenue.Add(o.TotalAmount)
	}
	return summary
}

// ---------------------------------------------------------------------------
// Remote order search
// ---------------------------------------------------------------------------

// OrderSearch selects remote orders for a bulk sync
type OrderSearch struct {
	Limit    int
	Offset   int
	Status   OrderStatus
	DateFrom *time.Time
	DateTo   *time.Time
}

// Paging describes the window of a paged remote result
type Paging struct {
	Total  int `json:"total"`
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// OrderPage is one page of normalized remote orders
type OrderPage struct {
	Orders []*OrderRecord
	Paging Paging
}

// OrderSource reads orders from the marketplace and normalizes them
type OrderSource interface {
	SearchOrders(ctx context.Context, search OrderSearch) (*OrderPage, error)
	FetchOrder(ctx context.Context, orderID int64) (*OrderRecord, error)
}
