package handler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	appintegration "github.com/sellerlink/backend/internal/application/integration"
	"github.com/sellerlink/backend/internal/domain/integration"
	"github.com/sellerlink/backend/internal/infrastructure/config"
	"github.com/sellerlink/backend/internal/infrastructure/marketplace"
)

var anyCtx = mock.Anything

type (
	appResult     = appintegration.AuthorizationResult
	appStatus     = appintegration.ConnectionStatus
	appSyncResult = appintegration.SyncAllResult
	appReceipt    = appintegration.WebhookReceipt
)

var appStart = appintegration.AuthorizationStart{
	AuthorizationURL: "https://auth.example.com/authorization?response_type=code&client_id=123&state=state-1",
	State:            "state-1",
	ExpiresAt:        time.Date(2024, 3, 10, 12, 10, 0, 0, time.UTC),
}

func newEventID() uuid.UUID {
	return uuid.New()
}

func matchCreateTitle(title string) any {
	return mock.MatchedBy(func(req marketplace.CreateListingRequest) bool {
		return req.Title == title
	})
}

func matchUpdateQuantity(quantity int) any {
	return mock.MatchedBy(func(req marketplace.UpdateListingRequest) bool {
		return req.AvailableQuantity != nil && *req.AvailableQuantity == quantity
	})
}

// MockAuthService is a mock implementation of MarketplaceAuthService
type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) StartAuthorization(ctx context.Context, returnTo string) (*appintegration.AuthorizationStart, error) {
	args := m.Called(ctx, returnTo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appintegration.AuthorizationStart), args.Error(1)
}

func (m *MockAuthService) CompleteAuthorization(ctx context.Context, code, state string) (*appintegration.AuthorizationResult, error) {
	args := m.Called(ctx, code, state)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appintegration.AuthorizationResult), args.Error(1)
}

func (m *MockAuthService) RefreshTokens(ctx context.Context, grant *integration.Grant) (*integration.TokenSet, error) {
	args := m.Called(ctx, grant)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.TokenSet), args.Error(1)
}

func (m *MockAuthService) Disconnect(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockAuthService) Status(ctx context.Context) (*appintegration.ConnectionStatus, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appintegration.ConnectionStatus), args.Error(1)
}

// stubConfigValidator returns a fixed validation result
type stubConfigValidator struct {
	result config.ValidationResult
}

func (s stubConfigValidator) Validate() config.ValidationResult {
	return s.result
}

// MockOrderService is a mock implementation of MarketplaceOrderService
type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) SyncAll(ctx context.Context, search integration.OrderSearch) (*appintegration.SyncAllResult, error) {
	args := m.Called(ctx, search)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appintegration.SyncAllResult), args.Error(1)
}

func (m *MockOrderService) SyncOne(ctx context.Context, orderID int64) (*integration.OrderRecord, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.OrderRecord), args.Error(1)
}

func (m *MockOrderService) Acknowledge(ctx context.Context, orderID int64) error {
	args := m.Called(ctx, orderID)
	return args.Error(0)
}

func (m *MockOrderService) MarkReadyToShip(ctx context.Context, orderID int64, trackingNumber string) error {
	args := m.Called(ctx, orderID, trackingNumber)
	return args.Error(0)
}

func (m *MockOrderService) Summarize(ctx context.Context, limit int) (*integration.OrderSummary, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.OrderSummary), args.Error(1)
}

func (m *MockOrderService) ListOrders(ctx context.Context, filter integration.OrderFilter) ([]*integration.OrderRecord, int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]*integration.OrderRecord), args.Get(1).(int64), args.Error(2)
}

func (m *MockOrderService) GetOrder(ctx context.Context, orderID int64) (*integration.OrderRecord, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.OrderRecord), args.Error(1)
}

// MockWebhookService is a mock implementation of MarketplaceWebhookService
type MockWebhookService struct {
	mock.Mock
}

func (m *MockWebhookService) Receive(ctx context.Context, rawBody []byte, signatureHeader string) (*appintegration.WebhookReceipt, error) {
	args := m.Called(ctx, rawBody, signatureHeader)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appintegration.WebhookReceipt), args.Error(1)
}

func (m *MockWebhookService) ListEvents(ctx context.Context, topic string, limit int) ([]*integration.WebhookEvent, error) {
	args := m.Called(ctx, topic, limit)
	return args.Get(0).([]*integration.WebhookEvent), args.Error(1)
}

func (m *MockWebhookService) Replay(ctx context.Context, eventID uuid.UUID) (*integration.WebhookEvent, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.WebhookEvent), args.Error(1)
}

// MockListingClient is a mock implementation of MarketplaceListingClient
type MockListingClient struct {
	mock.Mock
}

func (m *MockListingClient) listing(args mock.Arguments) (*integration.Listing, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.Listing), args.Error(1)
}

func (m *MockListingClient) Get(ctx context.Context, id string) (*integration.Listing, error) {
	return m.listing(m.Called(ctx, id))
}

func (m *MockListingClient) Create(ctx context.Context, req marketplace.CreateListingRequest) (*integration.Listing, error) {
	return m.listing(m.Called(ctx, req))
}

func (m *MockListingClient) Update(ctx context.Context, id string, req marketplace.UpdateListingRequest) (*integration.Listing, error) {
	return m.listing(m.Called(ctx, id, req))
}

func (m *MockListingClient) Pause(ctx context.Context, id string) (*integration.Listing, error) {
	return m.listing(m.Called(ctx, id))
}

func (m *MockListingClient) Activate(ctx context.Context, id string) (*integration.Listing, error) {
	return m.listing(m.Called(ctx, id))
}

func (m *MockListingClient) Close(ctx context.Context, id string) (*integration.Listing, error) {
	return m.listing(m.Called(ctx, id))
}

func (m *MockListingClient) ListBySeller(ctx context.Context, status integration.ListingStatus, limit, offset int) (*integration.ListingPage, error) {
	args := m.Called(ctx, status, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.ListingPage), args.Error(1)
}
