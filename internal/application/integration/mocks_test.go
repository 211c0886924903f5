package integration

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/sellerlink/backend/internal/domain/integration"
)

// MockGrantStore is a mock implementation of integration.GrantStore
type MockGrantStore struct {
	mock.Mock
}

func (m *MockGrantStore) GetActive(ctx context.Context) (*integration.Grant, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.Grant), args.Error(1)
}

func (m *MockGrantStore) Save(ctx context.Context, grant *integration.Grant) error {
	args := m.Called(ctx, grant)
	return args.Error(0)
}

func (m *MockGrantStore) Clear(ctx context.Context, grantID uuid.UUID) error {
	args := m.Called(ctx, grantID)
	return args.Error(0)
}

// MockAuthStateStore is a mock implementation of integration.AuthStateStore
type MockAuthStateStore struct {
	mock.Mock
}

func (m *MockAuthStateStore) Create(ctx context.Context, codeVerifier, returnTo string) (*integration.AuthorizationState, error) {
	args := m.Called(ctx, codeVerifier, returnTo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.AuthorizationState), args.Error(1)
}

func (m *MockAuthStateStore) Consume(ctx context.Context, state string) (*integration.AuthorizationState, error) {
	args := m.Called(ctx, state)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.AuthorizationState), args.Error(1)
}

func (m *MockAuthStateStore) Cleanup(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// MockOAuthTokenClient is a mock implementation of OAuthTokenClient
type MockOAuthTokenClient struct {
	mock.Mock
}

func (m *MockOAuthTokenClient) AuthorizationURL(state, codeChallenge string) string {
	args := m.Called(state, codeChallenge)
	return args.String(0)
}

func (m *MockOAuthTokenClient) ExchangeCode(ctx context.Context, code, codeVerifier string) (*integration.TokenSet, error) {
	args := m.Called(ctx, code, codeVerifier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.TokenSet), args.Error(1)
}

func (m *MockOAuthTokenClient) Refresh(ctx context.Context, refreshToken string) (*integration.TokenSet, error) {
	args := m.Called(ctx, refreshToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.TokenSet), args.Error(1)
}

// MockOrderSource is a mock implementation of integration.OrderSource
type MockOrderSource struct {
	mock.Mock
}

func (m *MockOrderSource) SearchOrders(ctx context.Context, search integration.OrderSearch) (*integration.OrderPage, error) {
	args := m.Called(ctx, search)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.OrderPage), args.Error(1)
}

func (m *MockOrderSource) FetchOrder(ctx context.Context, orderID int64) (*integration.OrderRecord, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.OrderRecord), args.Error(1)
}

// MockOrderRepository is a mock implementation of integration.OrderRepository
type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) Upsert(ctx context.Context, order *integration.OrderRecord) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *MockOrderRepository) FindByOrderID(ctx context.Context, orderID int64) (*integration.OrderRecord, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.OrderRecord), args.Error(1)
}

func (m *MockOrderRepository) FindByOrderIDs(ctx context.Context, orderIDs []int64) ([]*integration.OrderRecord, error) {
	args := m.Called(ctx, orderIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*integration.OrderRecord), args.Error(1)
}

func (m *MockOrderRepository) MarkAcknowledged(ctx context.Context, orderID int64) error {
	args := m.Called(ctx, orderID)
	return args.Error(0)
}

func (m *MockOrderRepository) MarkReadyToShip(ctx context.Context, orderID int64, trackingNumber string) error {
	args := m.Called(ctx, orderID, trackingNumber)
	return args.Error(0)
}

func (m *MockOrderRepository) ListRecent(ctx context.Context, limit int) ([]*integration.OrderRecord, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*integration.OrderRecord), args.Error(1)
}

func (m *MockOrderRepository) List(ctx context.Context, filter integration.OrderFilter) ([]*integration.OrderRecord, int64, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*integration.OrderRecord), args.Get(1).(int64), args.Error(2)
}

// MockWebhookEventRepository is a mock implementation of integration.WebhookEventRepository
type MockWebhookEventRepository struct {
	mock.Mock
}

func (m *MockWebhookEventRepository) Append(ctx context.Context, event *integration.WebhookEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockWebhookEventRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.WebhookEvent, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.WebhookEvent), args.Error(1)
}

func (m *MockWebhookEventRepository) ListRecent(ctx context.Context, topic string, limit int) ([]*integration.WebhookEvent, error) {
	args := m.Called(ctx, topic, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*integration.WebhookEvent), args.Error(1)
}

// MockWebhookArchive is a mock implementation of integration.WebhookArchive
type MockWebhookArchive struct {
	mock.Mock
}

func (m *MockWebhookArchive) Archive(ctx context.Context, event *integration.WebhookEvent) (string, error) {
	args := m.Called(ctx, event)
	return args.String(0), args.Error(1)
}
