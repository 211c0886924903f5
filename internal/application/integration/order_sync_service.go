package integration

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sellerlink/backend/internal/domain/integration"
	"github.com/sellerlink/backend/internal/infrastructure/telemetry"
)

const (
	// DefaultSummaryLimit is how many recent orders Summarize looks at when no limit is given
	DefaultSummaryLimit = 100
	// MaxListLimit caps local order listings
	MaxListLimit = 200
)

// Sync sources reported to metrics
const (
	SyncSourceManual  = "manual"
	SyncSourceWebhook = "webhook"
	SyncSourceJob     = "scheduler"
)

// OrderSyncService reconciles remote orders into local storage.
// Upserts are keyed by order ID, so running a sync twice leaves the same state.
type OrderSyncService struct {
	source  integration.OrderSource
	orders  integration.OrderRepository
	metrics *telemetry.MarketplaceMetrics
	logger  *zap.Logger
}

// OrderSyncServiceConfig contains configuration for OrderSyncService
type OrderSyncServiceConfig struct {
	Source  integration.OrderSource
	Orders  integration.OrderRepository
	Metrics *telemetry.MarketplaceMetrics
	Logger  *zap.Logger
}

// NewOrderSyncService creates a new OrderSyncService
func NewOrderSyncService(cfg OrderSyncServiceConfig) *OrderSyncService {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &OrderSyncService{
		source:  cfg.Source,
		orders:  cfg.Orders,
		metrics: cfg.Metrics,
		logger:  log,
	}
}

// SyncAllResult is one synced page of remote orders
type SyncAllResult struct {
	Orders []*integration.OrderRecord `json:"orders"`
	Paging integration.Paging         `json:"paging"`
}

// SyncAll fetches one page of remote orders, upserts each of them and returns
// the stored records, so local flags reflect the database rather than the remote view
func (s *OrderSyncService) SyncAll(ctx context.Context, search integration.OrderSearch) (*SyncAllResult, error) {
	return s.syncPage(ctx, search, SyncSourceManual)
}

// SyncAllFrom is SyncAll with an explicit metrics source label
func (s *OrderSyncService) SyncAllFrom(ctx context.Context, search integration.OrderSearch, source string) (*SyncAllResult, error) {
	return s.syncPage(ctx, search, source)
}

func (s *OrderSyncService) syncPage(ctx context.Context, search integration.OrderSearch, source string) (result *SyncAllResult, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "order_sync", "sync_all")
	defer span.End()
	defer func() { telemetry.RecordError(span, err) }()

	telemetry.WithProfilingLabels(ctx, telemetry.OperationLabels(telemetry.OperationOrderSync,
		telemetry.ProfilingLabelSource, source), func(ctx context.Context) {
		result, err = s.fetchAndStore(ctx, search, source)
	})
	if err != nil {
		return nil, err
	}
	telemetry.SetAttributes(span,
		telemetry.SpanAttrProcessed, len(result.Orders),
		"sync.offset", result.Paging.Offset,
		"sync.total", result.Paging.Total,
	)
	telemetry.SetOK(span)
	return result, nil
}

func (s *OrderSyncService) fetchAndStore(ctx context.Context, search integration.OrderSearch, source string) (*SyncAllResult, error) {
	page, err := s.source.SearchOrders(ctx, search)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(page.Orders))
	for _, order := range page.Orders {
		if err := s.orders.Upsert(ctx, order); err != nil {
			return nil, fmt.Errorf("failed to upsert order %d: %w", order.OrderID, err)
		}
		ids = append(ids, order.OrderID)
	}
	s.metrics.RecordOrdersSynced(ctx, source, len(page.Orders))

	// Local flags and tracking numbers live only in storage
	stored, err := s.orders.FindByOrderIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to reload synced orders: %w", err)
	}

	s.logger.Info("Orders synced",
		zap.String("source", source),
		zap.Int("count", len(page.Orders)),
		zap.Int("offset", page.Paging.Offset),
		zap.Int("total", page.Paging.Total))

	return &SyncAllResult{Orders: stored, Paging: page.Paging}, nil
}

// SyncOne fetches a single remote order, upserts it and returns the stored record
func (s *OrderSyncService) SyncOne(ctx context.Context, orderID int64) (*integration.OrderRecord, error) {
	return s.syncOne(ctx, orderID, SyncSourceManual)
}

func (s *OrderSyncService) syncOne(ctx context.Context, orderID int64, source string) (stored *integration.OrderRecord, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "order_sync", "sync_one",
		telemetry.WithAttribute(telemetry.SpanAttrOrderID, orderID))
	defer span.End()
	defer func() { telemetry.RecordError(span, err) }()

	order, err := s.source.FetchOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err = s.orders.Upsert(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to upsert order %d: %w", orderID, err)
	}
	s.metrics.RecordOrdersSynced(ctx, source, 1)

	stored, err = s.orders.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	telemetry.SetAttribute(span, telemetry.SpanAttrStatus, stored.Status.String())
	telemetry.SetOK(span)

	s.logger.Debug("Order synced",
		zap.Int64("order_id", orderID),
		zap.String("status", stored.Status.String()),
		zap.String("source", source))
	return stored, nil
}

// Acknowledge marks an order as acknowledged locally
func (s *OrderSyncService) Acknowledge(ctx context.Context, orderID int64) error {
	return s.orders.MarkAcknowledged(ctx, orderID)
}

// MarkReadyToShip marks an order as ready to ship locally, recording the tracking number when given
func (s *OrderSyncService) MarkReadyToShip(ctx context.Context, orderID int64, trackingNumber string) error {
	return s.orders.MarkReadyToShip(ctx, orderID, trackingNumber)
}

// Summarize aggregates the latest limit orders by status
func (s *OrderSyncService) Summarize(ctx context.Context, limit int) (*integration.OrderSummary, error) {
	if limit <= 0 {
		limit = DefaultSummaryLimit
	}
	orders, err := s.orders.ListRecent(ctx, limit)
	if err != nil {
		return nil, err
	}
	summary := integration.SummarizeOrders(orders)
	return &summary, nil
}

// ListOrders returns a page of locally stored orders
func (s *OrderSyncService) ListOrders(ctx context.Context, filter integration.OrderFilter) ([]*integration.OrderRecord, int64, error) {
	if filter.Limit <= 0 || filter.Limit > MaxListLimit {
		filter.Limit = MaxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.orders.List(ctx, filter)
}

// GetOrder returns a locally stored order
func (s *OrderSyncService) GetOrder(ctx context.Context, orderID int64) (*integration.OrderRecord, error) {
	return s.orders.FindByOrderID(ctx, orderID)
}
