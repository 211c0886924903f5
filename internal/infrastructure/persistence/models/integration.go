package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sellerlink/backend/internal/domain/integration"
)

// AuthStateModel is the persistence model for an in-flight authorization attempt.
type AuthStateModel struct {
	State        string    `gorm:"type:varchar(128);primaryKey"`
	CodeVerifier string    `gorm:"type:varchar(128)"`
	ReturnTo     string    `gorm:"type:text"`
	CreatedAt    time.Time `gorm:"not null"`
	ExpiresAt    time.Time `gorm:"not null;index:idx_marketplace_auth_states_expires_at"`
}

// TableName returns the table name for GORM
func (AuthStateModel) TableName() string {
	return "marketplace_auth_states"
}

// ToDomain converts the persistence model to a domain AuthorizationState.
func (m *AuthStateModel) ToDomain() *integration.AuthorizationState {
	return &integration.AuthorizationState{
		State:        m.State,
		CodeVerifier: m.CodeVerifier,
		ReturnTo:     m.ReturnTo,
		CreatedAt:    m.CreatedAt,
		ExpiresAt:    m.ExpiresAt,
	}
}

// AuthStateModelFromDomain creates a persistence model from a domain AuthorizationState.
func AuthStateModelFromDomain(s *integration.AuthorizationState) *AuthStateModel {
	return &AuthStateModel{
		State:        s.State,
		CodeVerifier: s.CodeVerifier,
		ReturnTo:     s.ReturnTo,
		CreatedAt:    s.CreatedAt,
		ExpiresAt:    s.ExpiresAt,
	}
}

// GrantModel is the persistence model for a seller's OAuth2 grant.
// Token columns hold ciphertext when a token cipher is configured.
type GrantModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	SellerID     string    `gorm:"type:varchar(32);not null;uniqueIndex:uq_marketplace_grants_seller_id"`
	UserID       string    `gorm:"type:varchar(32)"`
	AccessToken  string    `gorm:"type:text;not null"`
	RefreshToken string    `gorm:"type:text"`
	Scope        string    `gorm:"type:text"`
	ExpiresAt    time.Time `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null;index:idx_marketplace_grants_updated_at"`
}

// TableName returns the table name for GORM
func (GrantModel) TableName() string {
	return "marketplace_grants"
}

// ToDomain converts the persistence model to a domain Grant. Token fields are copied as stored.
func (m *GrantModel) ToDomain() *integration.Grant {
	return &integration.Grant{
		ID:           m.ID,
		SellerID:     m.SellerID,
		UserID:       m.UserID,
		AccessToken:  m.AccessToken,
		RefreshToken: m.RefreshToken,
		Scope:        strings.Fields(m.Scope),
		ExpiresAt:    m.ExpiresAt,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// GrantModelFromDomain creates a persistence model from a domain Grant.
func GrantModelFromDomain(g *integration.Grant) *GrantModel {
	return &GrantModel{
		ID:           g.ID,
		SellerID:     g.SellerID,
		UserID:       g.UserID,
		AccessToken:  g.AccessToken,
		RefreshToken: g.RefreshToken,
		Scope:        g.ScopeString(),
		ExpiresAt:    g.ExpiresAt,
		CreatedAt:    g.CreatedAt,
		UpdatedAt:    g.UpdatedAt,
	}
}

// OrderModel is the persistence model for a synchronized marketplace order.
type OrderModel struct {
	OrderID        int64                 `gorm:"primaryKey;autoIncrement:false"`
	Status         string                `gorm:"type:varchar(32);not null;index:idx_marketplace_orders_status"`
	DateCreated    time.Time             `gorm:"index:idx_marketplace_orders_date_created"`
	LastUpdated    time.Time
	TotalAmount    decimal.Decimal       `gorm:"type:decimal(18,4);not null"`
	CurrencyID     string                `gorm:"type:varchar(8)"`
	BuyerID        int64
	BuyerNickname  string                `gorm:"type:varchar(128)"`
	BuyerFullName  string                `gorm:"type:varchar(255)"`
	BuyerEmail     string                `gorm:"type:varchar(255)"`
	BuyerPhone     string                `gorm:"type:varchar(64)"`
	Payments       []integration.Payment `gorm:"serializer:json;type:jsonb"`
	ShippingID     int64
	ShippingStatus string                `gorm:"type:varchar(32)"`
	TrackingNumber string                `gorm:"type:varchar(128)"`
	ShippingMode   string                `gorm:"type:varchar(32)"`
	Acknowledged   bool                  `gorm:"not null"`
	ReadyToShip    bool                  `gorm:"not null"`
	Tags           []string              `gorm:"serializer:json;type:jsonb"`
	LastSync       time.Time             `gorm:"not null"`
	CreatedAt      time.Time             `gorm:"not null"`
	UpdatedAt      time.Time             `gorm:"not null"`
}

// TableName returns the table name for GORM
func (OrderModel) TableName() string {
	return "marketplace_orders"
}

// ToDomain converts the persistence model to a domain OrderRecord.
func (m *OrderModel) ToDomain() *integration.OrderRecord {
	payments := m.Payments
	if payments == nil {
		payments = []integration.Payment{}
	}
	tags := m.Tags
	if tags == nil {
		tags = []string{}
	}
	return &integration.OrderRecord{
		OrderID:     m.OrderID,
		Status:      integration.OrderStatus(m.Status),
		DateCreated: m.DateCreated,
		LastUpdated: m.LastUpdated,
		TotalAmount: m.TotalAmount,
		CurrencyID:  m.CurrencyID,
		Buyer: integration.Buyer{
			ID:       m.BuyerID,
			Nickname: m.BuyerNickname,
			FullName: m.BuyerFullName,
			Email:    m.BuyerEmail,
			Phone:    m.BuyerPhone,
		},
		Payments: payments,
		Shipping: integration.Shipping{
			ID:             m.ShippingID,
			Status:         m.ShippingStatus,
			TrackingNumber: m.TrackingNumber,
			Mode:           m.ShippingMode,
		},
		Acknowledged: m.Acknowledged,
		ReadyToShip:  m.ReadyToShip,
		Tags:         tags,
		LastSync:     m.LastSync,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// OrderModelFromDomain creates a persistence model from a domain OrderRecord.
func OrderModelFromDomain(o *integration.OrderRecord) *OrderModel {
	return &OrderModel{
		OrderID:        o.OrderID,
		Status:         o.Status.String(),
		DateCreated:    o.DateCreated,
		LastUpdated:    o.LastUpdated,
		TotalAmount:    o.TotalAmount,
		CurrencyID:     o.CurrencyID,
		BuyerID:        o.Buyer.ID,
		BuyerNickname:  o.Buyer.Nickname,
		BuyerFullName:  o.Buyer.FullName,
		BuyerEmail:     o.Buyer.Email,
		BuyerPhone:     o.Buyer.Phone,
		Payments:       o.Payments,
		ShippingID:     o.Shipping.ID,
		ShippingStatus: o.Shipping.Status,
		TrackingNumber: o.Shipping.TrackingNumber,
		ShippingMode:   o.Shipping.Mode,
		Acknowledged:   o.Acknowledged,
		ReadyToShip:    o.ReadyToShip,
		Tags:           o.Tags,
		LastSync:       o.LastSync,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
}

// WebhookEventModel is the persistence model for the append-only webhook audit log.
type WebhookEventModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	Topic          string    `gorm:"type:varchar(64);index:idx_marketplace_webhook_events_topic"`
	Resource       string    `gorm:"type:varchar(255)"`
	UserID         int64
	ApplicationID  int64
	Attempts       int
	Payload        []byte    `gorm:"type:bytea;not null"`
	SignatureValid bool      `gorm:"not null"`
	ReceivedAt     time.Time `gorm:"not null;index:idx_marketplace_webhook_events_received_at"`
}

// TableName returns the table name for GORM
func (WebhookEventModel) TableName() string {
	return "marketplace_webhook_events"
}

// ToDomain converts the persistence model to a domain WebhookEvent.
func (m *WebhookEventModel) ToDomain() *integration.WebhookEvent {
	return &integration.WebhookEvent{
		ID:             m.ID,
		Topic:          m.Topic,
		Resource:       m.Resource,
		UserID:         m.UserID,
		ApplicationID:  m.ApplicationID,
		Attempts:       m.Attempts,
		Payload:        m.Payload,
		SignatureValid: m.SignatureValid,
		ReceivedAt:     m.ReceivedAt,
	}
}

// WebhookEventModelFromDomain creates a persistence model from a domain WebhookEvent.
func WebhookEventModelFromDomain(e *integration.WebhookEvent) *WebhookEventModel {
	return &WebhookEventModel{
		ID:             e.ID,
		Topic:          e.Topic,
		Resource:       e.Resource,
		UserID:         e.UserID,
		ApplicationID:  e.ApplicationID,
		Attempts:       e.Attempts,
		Payload:        e.Payload,
		SignatureValid: e.SignatureValid,
		ReceivedAt:     e.ReceivedAt,
	}
}

// AllModels lists every model owned by the marketplace integration, for AutoMigrate in tests and tooling.
func AllModels() []any {
	return []any{
		&AuthStateModel{},
		&GrantModel{},
		&OrderModel{},
		&WebhookEventModel{},
	}
}
