package scheduler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	appintegration "github.com/sellerlink/backend/internal/application/integration"
	"github.com/sellerlink/backend/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// OrderSyncExecutorImpl
// ---------------------------------------------------------------------------

// OrderSyncRunner syncs one page of remote orders into local storage
type OrderSyncRunner interface {
	SyncAllFrom(ctx context.Context, search integration.OrderSearch, source string) (*appintegration.SyncAllResult, error)
}

// OrderSyncExecutorImpl implements OrderSyncExecutor by paging through the seller's orders
type OrderSyncExecutorImpl struct {
	runner   OrderSyncRunner
	pageSize int
	maxPages int
	logger   *zap.Logger

	// Called after a job finishes without error
	onSyncCompleted func(ctx context.Context, job *OrderSyncJob) error
}

// NewOrderSyncExecutor creates a new order sync executor
func NewOrderSyncExecutor(runner OrderSyncRunner, config OrderSyncSchedulerConfig, logger *zap.Logger) *OrderSyncExecutorImpl {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderSyncExecutorImpl{
		runner:   runner,
		pageSize: config.PageSize,
		maxPages: config.MaxPages,
		logger:   logger,
	}
}

// SetOnSyncCompletedCallback sets the callback for when sync completes
func (e *OrderSyncExecutorImpl) SetOnSyncCompletedCallback(cb func(ctx context.Context, job *OrderSyncJob) error) {
	e.onSyncCompleted = cb
}

// Execute pulls orders page by page until the remote result is exhausted or the page limit is hit
func (e *OrderSyncExecutorImpl) Execute(ctx context.Context, job *OrderSyncJob) error {
	e.logger.Info("Starting order sync execution",
		zap.String("job_id", job.ID.String()),
		zap.String("trigger", string(job.Trigger)),
		zap.Int("page_size", e.pageSize),
		zap.Int("max_pages", e.maxPages),
	)

	offset := 0
	exhausted := false
	for page := 0; page < e.maxPages; page++ {
		select {
		case <-ctx.Done():
			return ErrOrderSyncTimeout
		default:
		}

		search := integration.OrderSearch{Limit: e.pageSize, Offset: offset}
		result, err := e.runner.SyncAllFrom(ctx, search, appintegration.SyncSourceJob)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %v", ErrOrderSyncTimeout, err)
			}
			return fmt.Errorf("failed to sync orders at offset %d: %w", offset, err)
		}

		job.Pages++
		job.TotalOrders += len(result.Orders)
		offset = result.Paging.Offset + len(result.Orders)

		e.logger.Debug("Processed page of orders",
			zap.String("job_id", job.ID.String()),
			zap.Int("page", page),
			zap.Int("orders_in_page", len(result.Orders)),
			zap.Int("total_so_far", job.TotalOrders),
			zap.Int("remote_total", result.Paging.Total),
		)

		if len(result.Orders) == 0 || offset >= result.Paging.Total {
			exhausted = true
			break
		}
	}

	if !exhausted {
		e.logger.Warn("Order sync stopped at page limit",
			zap.String("job_id", job.ID.String()),
			zap.Int("max_pages", e.maxPages),
			zap.Int("next_offset", offset),
		)
	}

	job.Complete(exhausted)

	if e.onSyncCompleted != nil {
		if err := e.onSyncCompleted(ctx, job); err != nil {
			e.logger.Warn("Sync completed callback failed",
				zap.String("job_id", job.ID.String()),
				zap.Error(err),
			)
		}
	}

	return nil
}
