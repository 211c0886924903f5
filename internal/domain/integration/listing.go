package integration

import (
	"time"

	"github.com/shopspring/decimal"
)

// ListingStatus is the publication status of a marketplace listing
type ListingStatus string

const (
	ListingStatusActive ListingStatus = "active"
	ListingStatusPaused ListingStatus = "paused"
	ListingStatusClosed ListingStatus = "closed"
)

// IsValid returns true if the status can be requested through the API
func (s ListingStatus) IsValid() bool {
	switch s {
	case ListingStatusActive, ListingStatusPaused, ListingStatusClosed:
		return true
	default:
		return false
	}
}

// String returns the string representation of ListingStatus
func (s ListingStatus) String() string {
	return string(s)
}

// Listing is a product listing on the marketplace
type Listing struct {
	ID                string          `json:"id"`
	SellerID          int64           `json:"seller_id"`
	Title             string          `json:"title"`
	CategoryID        string          `json:"category_id"`
	Price             decimal.Decimal `json:"price"`
	CurrencyID        string          `json:"currency_id"`
	AvailableQuantity int             `json:"available_quantity"`
	SoldQuantity      int             `json:"sold_quantity"`
	BuyingMode        string          `json:"buying_mode"`
	ListingTypeID     string          `json:"listing_type_id"`
	Condition         string          `json:"condition"`
	Status            ListingStatus   `json:"status"`
	Permalink         string          `json:"permalink"`
	DateCreated       time.Time       `json:"date_created"`
	LastUpdated       time.Time       `json:"last_updated"`
}

// ListingPage is one page of listing IDs for a seller
type ListingPage struct {
	IDs    []string `json:"results"`
	Total  int      `json:"total"`
	Offset int      `json:"offset"`
	Limit  int      `json:"limit"`
}
