package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sellerlink/backend/internal/domain/integration"
	"github.com/sellerlink/backend/internal/infrastructure/config"
)

// maxRetryDelay caps the exponential backoff between retries
const maxRetryDelay = 30 * time.Minute

// ---------------------------------------------------------------------------
// Order Sync Job Types
// ---------------------------------------------------------------------------

// OrderSyncJobStatus represents the status of an order sync job
type OrderSyncJobStatus string

const (
	OrderSyncJobStatusPending OrderSyncJobStatus = "PENDING"
	OrderSyncJobStatusRunning OrderSyncJobStatus = "RUNNING"
	OrderSyncJobStatusSuccess OrderSyncJobStatus = "SUCCESS"
	OrderSyncJobStatusPartial OrderSyncJobStatus = "PARTIAL"
	OrderSyncJobStatusFailed  OrderSyncJobStatus = "FAILED"
)

// OrderSyncTrigger records what started a job
type OrderSyncTrigger string

const (
	OrderSyncTriggerInterval OrderSyncTrigger = "interval"
	OrderSyncTriggerManual   OrderSyncTrigger = "manual"
)

// OrderSyncJob represents one periodic or manually triggered order sync
type OrderSyncJob struct {
	ID          uuid.UUID
	Trigger     OrderSyncTrigger
	Status      OrderSyncJobStatus
	Error       string
	StartedAt   *time.Time
	CompletedAt *time.Time
	RetryCount  int
	MaxRetries  int
	NextRetryAt *time.Time

	// Sync results
	Pages       int
	TotalOrders int
}

// NewOrderSyncJob creates a new order sync job
func NewOrderSyncJob(trigger OrderSyncTrigger, maxRetries int) *OrderSyncJob {
	return &OrderSyncJob{
		ID:         uuid.New(),
		Trigger:    trigger,
		Status:     OrderSyncJobStatusPending,
		MaxRetries: maxRetries,
	}
}

// Start marks the job as running and resets the counters of a previous attempt
func (j *OrderSyncJob) Start() {
	now := time.Now()
	j.Status = OrderSyncJobStatusRunning
	j.StartedAt = &now
	j.CompletedAt = nil
	j.Error = ""
	j.Pages = 0
	j.TotalOrders = 0
}

// Complete marks the job as finished. A job that stopped at the page limit is partial.
func (j *OrderSyncJob) Complete(exhausted bool) {
	now := time.Now()
	j.CompletedAt = &now
	if exhausted {
		j.Status = OrderSyncJobStatusSuccess
	} else {
		j.Status = OrderSyncJobStatusPartial
	}
}

// Fail marks the job as failed
func (j *OrderSyncJob) Fail(err string) {
	now := time.Now()
	j.Status = OrderSyncJobStatusFailed
	j.CompletedAt = &now
	j.Error = err
}

// ShouldRetry returns true if the job should be retried
func (j *OrderSyncJob) ShouldRetry() bool {
	return j.Status == OrderSyncJobStatusFailed && j.RetryCount < j.MaxRetries
}

// ScheduleRetry schedules the job for retry with exponential backoff
func (j *OrderSyncJob) ScheduleRetry(baseDelay time.Duration) {
	j.RetryCount++
	j.Status = OrderSyncJobStatusPending
	// Exponential backoff: baseDelay * 2^(retryCount-1)
	delay := baseDelay * time.Duration(1<<(j.RetryCount-1))
	if delay > maxRetryDelay || delay <= 0 {
		delay = maxRetryDelay
	}
	nextRetry := time.Now().Add(delay)
	j.NextRetryAt = &nextRetry
	j.Error = ""
}

// ---------------------------------------------------------------------------
// OrderSyncExecutor Interface
// ---------------------------------------------------------------------------

// OrderSyncExecutor executes order sync jobs
type OrderSyncExecutor interface {
	Execute(ctx context.Context, job *OrderSyncJob) error
}

// ---------------------------------------------------------------------------
// OrderSyncSchedulerConfig
// ---------------------------------------------------------------------------

// OrderSyncSchedulerConfig holds configuration for order sync scheduler
type OrderSyncSchedulerConfig struct {
	// Interval is the time between periodic syncs
	Interval time.Duration
	// PageSize is the number of orders requested per page
	PageSize int
	// MaxPages bounds how many pages one job reads
	MaxPages int
	// JobTimeout is the maximum time a job can run
	JobTimeout time.Duration
	// RetryAttempts is the number of retry attempts for failed jobs
	RetryAttempts int
	// RetryDelay is the base delay between retries (with exponential backoff)
	RetryDelay time.Duration
	// Ready, when set, must return nil for Start to launch the loop
	Ready func() error
}

// DefaultOrderSyncSchedulerConfig returns default configuration
func DefaultOrderSyncSchedulerConfig() OrderSyncSchedulerConfig {
	return OrderSyncSchedulerConfig{
		Interval:      15 * time.Minute,
		PageSize:      50,
		MaxPages:      20,
		JobTimeout:    10 * time.Minute,
		RetryAttempts: 3,
		RetryDelay:    time.Minute,
	}
}

// NewOrderSyncSchedulerConfig maps the application scheduler settings
func NewOrderSyncSchedulerConfig(cfg config.SchedulerConfig) OrderSyncSchedulerConfig {
	return OrderSyncSchedulerConfig{
		Interval:      cfg.OrderSyncInterval,
		PageSize:      cfg.PageSize,
		MaxPages:      cfg.MaxPages,
		JobTimeout:    cfg.JobTimeout,
		RetryAttempts: cfg.RetryAttempts,
		RetryDelay:    cfg.RetryDelay,
	}
}

// Validate reports the first unusable setting, wrapped in ErrInvalidConfig
func (c *OrderSyncSchedulerConfig) Validate() error {
	switch {
	case c.Interval <= 0:
		return fmt.Errorf("%w: interval must be positive", ErrInvalidConfig)
	case c.PageSize <= 0 || c.MaxPages <= 0:
		return fmt.Errorf("%w: page_size and max_pages must be positive", ErrInvalidConfig)
	case c.JobTimeout <= 0:
		return fmt.Errorf("%w: job_timeout must be positive", ErrInvalidConfig)
	case c.RetryAttempts < 0:
		return fmt.Errorf("%w: retry_attempts cannot be negative", ErrInvalidConfig)
	case c.RetryAttempts > 0 && c.RetryDelay <= 0:
		return fmt.Errorf("%w: retry_delay is required when retries are enabled", ErrInvalidConfig)
	}
	return nil
}

// ---------------------------------------------------------------------------
// OrderSyncScheduler
// ---------------------------------------------------------------------------

// OrderSyncScheduler runs the seller's order sync on a fixed interval.
// Jobs run one at a time; a new run replaces any retry still waiting.
type OrderSyncScheduler struct {
	config   OrderSyncSchedulerConfig
	executor OrderSyncExecutor
	logger   *zap.Logger

	jobs      chan *OrderSyncJob
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool

	// Job history for monitoring (in-memory, limited size)
	historyMu  sync.RWMutex
	history    []OrderSyncJob
	maxHistory int
}

// NewOrderSyncScheduler creates a new order sync scheduler
func NewOrderSyncScheduler(config OrderSyncSchedulerConfig, executor OrderSyncExecutor, logger *zap.Logger) (*OrderSyncScheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &OrderSyncScheduler{
		config:     config,
		executor:   executor,
		logger:     logger,
		jobs:       make(chan *OrderSyncJob, 1),
		history:    make([]OrderSyncJob, 0, 50),
		maxHistory: 50,
	}, nil
}

// Start starts the scheduler loop. It returns the Ready error, and starts nothing,
// while the marketplace configuration is unusable.
func (s *OrderSyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if s.config.Ready != nil {
		if err := s.config.Ready(); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.isRunning = true
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(ctx)

	s.logger.Info("Order sync scheduler started",
		zap.Duration("interval", s.config.Interval),
		zap.Duration("job_timeout", s.config.JobTimeout),
		zap.Int("page_size", s.config.PageSize),
		zap.Int("max_pages", s.config.MaxPages),
	)

	return nil
}

// Stop gracefully stops the scheduler, waiting for a running job until ctx expires
func (s *OrderSyncScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Order sync scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Order sync scheduler stop timed out")
		return ctx.Err()
	}
}

// TriggerNow queues an immediate sync outside the interval
func (s *OrderSyncScheduler) TriggerNow() (uuid.UUID, error) {
	s.mu.Lock()
	running := s.isRunning
	s.mu.Unlock()
	if !running {
		return uuid.Nil, ErrSchedulerNotRunning
	}

	job := NewOrderSyncJob(OrderSyncTriggerManual, s.config.RetryAttempts)
	select {
	case s.jobs <- job:
		s.logger.Debug("Order sync job submitted", zap.String("job_id", job.ID.String()))
		return job.ID, nil
	default:
		return uuid.Nil, ErrJobQueueFull
	}
}

// loop owns every job it runs, so jobs are only mutated on this goroutine
func (s *OrderSyncScheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	var (
		pending    *OrderSyncJob
		retryTimer *time.Timer
		retryC     <-chan time.Time
	)
	clearRetry := func() {
		if retryTimer != nil {
			retryTimer.Stop()
		}
		pending, retryTimer, retryC = nil, nil, nil
	}
	defer clearRetry()

	for {
		var job *OrderSyncJob
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job = NewOrderSyncJob(OrderSyncTriggerInterval, s.config.RetryAttempts)
		case job = <-s.jobs:
		case <-retryC:
			job = pending
		}

		if pending != nil && pending != job {
			s.logger.Debug("Pending order sync retry superseded",
				zap.String("job_id", pending.ID.String()),
				zap.String("by_job_id", job.ID.String()),
			)
		}
		clearRetry()

		if retry := s.processJob(ctx, job); retry != nil {
			pending = retry
			retryTimer = time.NewTimer(time.Until(*retry.NextRetryAt))
			retryC = retryTimer.C
		}
	}
}

// processJob executes a single job and returns it when it should be retried
func (s *OrderSyncScheduler) processJob(ctx context.Context, job *OrderSyncJob) *OrderSyncJob {
	job.Start()
	s.logger.Info("Processing order sync job",
		zap.String("job_id", job.ID.String()),
		zap.String("trigger", string(job.Trigger)),
		zap.Int("retry_count", job.RetryCount),
	)

	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	err := s.executor.Execute(jobCtx, job)
	if err != nil {
		job.Fail(err.Error())
		s.addToHistory(job)

		if ctx.Err() != nil {
			return nil
		}
		if integration.IsDisconnected(err) {
			s.logger.Warn("Order sync paused until the seller account is reconnected",
				zap.String("job_id", job.ID.String()),
				zap.Error(err),
			)
			return nil
		}

		s.logger.Error("Order sync job failed",
			zap.String("job_id", job.ID.String()),
			zap.Int("pages", job.Pages),
			zap.Error(err),
		)

		if job.ShouldRetry() {
			job.ScheduleRetry(s.config.RetryDelay)
			s.logger.Info("Order sync job scheduled for retry",
				zap.String("job_id", job.ID.String()),
				zap.Int("retry_count", job.RetryCount),
				zap.Int("max_retries", job.MaxRetries),
				zap.Time("next_retry_at", *job.NextRetryAt),
			)
			return job
		}
		return nil
	}

	s.logger.Info("Order sync job completed",
		zap.String("job_id", job.ID.String()),
		zap.String("status", string(job.Status)),
		zap.Int("pages", job.Pages),
		zap.Int("total_orders", job.TotalOrders),
	)
	s.addToHistory(job)
	return nil
}

// addToHistory stores a snapshot of a finished attempt
func (s *OrderSyncScheduler) addToHistory(job *OrderSyncJob) {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	// Add to front
	s.history = append([]OrderSyncJob{*job}, s.history...)

	if len(s.history) > s.maxHistory {
		s.history = s.history[:s.maxHistory]
	}
}

// GetJobHistory returns recent job attempts, newest first
func (s *OrderSyncScheduler) GetJobHistory(limit int) []OrderSyncJob {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}

	result := make([]OrderSyncJob, limit)
	copy(result, s.history[:limit])
	return result
}
