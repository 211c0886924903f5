package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sellerlink/backend/internal/domain/integration"
)

// DefaultOrderSearchLimit is used when a search does not name a page size
const DefaultOrderSearchLimit = 50

// searchDateLayout is the timestamp format the order search filters accept
const searchDateLayout = "2006-01-02T15:04:05.000-07:00"

// flexString decodes a JSON string, number or null into a string
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

type remotePhone struct {
	AreaCode flexString `json:"area_code"`
	Number   flexString `json:"number"`
}

type remoteBuyer struct {
	ID        int64       `json:"id"`
	Nickname  string      `json:"nickname"`
	FirstName string      `json:"first_name"`
	LastName  string      `json:"last_name"`
	Email     string      `json:"email"`
	Phone     remotePhone `json:"phone"`
}

type remotePayment struct {
	ID                int64           `json:"id"`
	Status            string          `json:"status"`
	TransactionAmount decimal.Decimal `json:"transaction_amount"`
	PaymentMethodID   string          `json:"payment_method_id"`
}

type remoteShipping struct {
	ID             int64  `json:"id"`
	Status         string `json:"status"`
	TrackingNumber string `json:"tracking_number"`
	ShippingMode   string `json:"shipping_mode"`
}

type remoteOrder struct {
	ID          int64           `json:"id"`
	Status      string          `json:"status"`
	DateCreated time.Time       `json:"date_created"`
	LastUpdated time.Time       `json:"last_updated"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	CurrencyID  string          `json:"currency_id"`
	Buyer       remoteBuyer     `json:"buyer"`
	Payments    []remotePayment `json:"payments"`
	Shipping    remoteShipping  `json:"shipping"`
	Tags        []string        `json:"tags"`
}

type orderSearchResponse struct {
	Results []remoteOrder      `json:"results"`
	Paging  integration.Paging `json:"paging"`
}

// normalizeOrder flattens a remote order into the local record shape.
// Acknowledged follows the "paid" tag and ReadyToShip follows the shipment status.
func normalizeOrder(o *remoteOrder, now time.Time) *integration.OrderRecord {
	payments := make([]integration.Payment, 0, len(o.Payments))
	for _, p := range o.Payments {
		payments = append(payments, integration.Payment{
			ID:                p.ID,
			Status:            p.Status,
			TransactionAmount: p.TransactionAmount,
			Method:            p.PaymentMethodID,
		})
	}

	tags := append([]string{}, o.Tags...)

	record := &integration.OrderRecord{
		OrderID:     o.ID,
		Status:      integration.OrderStatus(o.Status),
		DateCreated: o.DateCreated.UTC(),
		LastUpdated: o.LastUpdated.UTC(),
		TotalAmount: o.TotalAmount,
		CurrencyID:  o.CurrencyID,
		Buyer: integration.Buyer{
			ID:       o.Buyer.ID,
			Nickname: o.Buyer.Nickname,
			FullName: strings.TrimSpace(o.Buyer.FirstName + " " + o.Buyer.LastName),
			Email:    o.Buyer.Email,
			Phone:    strings.TrimSpace(string(o.Buyer.Phone.AreaCode) + " " + string(o.Buyer.Phone.Number)),
		},
		Payments: payments,
		Shipping: integration.Shipping{
			ID:             o.Shipping.ID,
			Status:         o.Shipping.Status,
			TrackingNumber: o.Shipping.TrackingNumber,
			Mode:           o.Shipping.ShippingMode,
		},
		Tags:     tags,
		LastSync: now.UTC(),
	}
	record.Acknowledged = record.HasTag(integration.TagPaid)
	record.ReadyToShip = o.Shipping.Status == integration.ShippingStatusReadyToShip
	return record
}

// OrderClient reads the seller's orders through the authenticated executor
type OrderClient struct {
	exec     Doer
	sellerID string
	now      func() time.Time
}

// NewOrderClient creates a new OrderClient
func NewOrderClient(exec Doer, sellerID string) *OrderClient {
	return &OrderClient{exec: exec, sellerID: sellerID, now: time.Now}
}

// SearchOrders fetches one page of the seller's orders, newest first
func (c *OrderClient) SearchOrders(ctx context.Context, search integration.OrderSearch) (*integration.OrderPage, error) {
	limit := search.Limit
	if limit <= 0 {
		limit = DefaultOrderSearchLimit
	}

	q := url.Values{}
	q.Set("seller", c.sellerID)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(search.Offset))
	if search.Status != "" {
		q.Set("order.status", search.Status.String())
	}
	if search.DateFrom != nil {
		q.Set("order.date_created.from", search.DateFrom.Format(searchDateLayout))
	}
	if search.DateTo != nil {
		q.Set("order.date_created.to", search.DateTo.Format(searchDateLayout))
	}
	q.Set("sort", "date_desc")

	resp, err := c.exec.Do(ctx, Request{Method: "GET", Path: "/orders/search", Query: q})
	if err != nil {
		return nil, err
	}

	var body orderSearchResponse
	if err := resp.Decode(&body); err != nil {
		return nil, err
	}

	now := c.now()
	page := &integration.OrderPage{
		Orders: make([]*integration.OrderRecord, 0, len(body.Results)),
		Paging: body.Paging,
	}
	for i := range body.Results {
		page.Orders = append(page.Orders, normalizeOrder(&body.Results[i], now))
	}
	return page, nil
}

// FetchOrder fetches a single order by ID
func (c *OrderClient) FetchOrder(ctx context.Context, orderID int64) (*integration.OrderRecord, error) {
	resp, err := c.exec.Do(ctx, Request{
		Method: "GET",
		Path:   fmt.Sprintf("/orders/%d", orderID),
	})
	if err != nil {
		return nil, err
	}

	var order remoteOrder
	if err := resp.Decode(&order); err != nil {
		return nil, err
	}
	return normalizeOrder(&order, c.now()), nil
}

var _ integration.OrderSource = (*OrderClient)(nil)
