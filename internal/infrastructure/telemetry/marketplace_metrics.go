package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// MarketplaceMetrics tracks traffic with the marketplace: outbound API calls,
// token refreshes, inbound webhooks and synchronized orders.
// A nil *MarketplaceMetrics is valid and records nothing.
type MarketplaceMetrics struct {
	logger *zap.Logger

	apiCallTotal      *Counter
	apiCallDuration   *Histogram
	tokenRefreshTotal *Counter
	webhookTotal      *Counter
	ordersSyncedTotal *Counter
	syncJobTotal      *Counter
}

// MarketplaceMetricsConfig holds configuration for marketplace metrics.
type MarketplaceMetricsConfig struct {
	Meter  metric.Meter
	Logger *zap.Logger
}

// Outcome labels
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeRejected = "rejected"
	OutcomeInvalid  = "invalid"
	OutcomePartial  = "partial"
)

// Marketplace metric attribute keys
var (
	AttrOutcome    = attribute.Key("outcome")
	AttrTopic      = attribute.Key("webhook.topic")
	AttrSyncSource = attribute.Key("sync.source")
	AttrTrigger    = attribute.Key("sync.trigger")
)

// NewMarketplaceMetrics creates a new MarketplaceMetrics instance.
func NewMarketplaceMetrics(cfg MarketplaceMetricsConfig) (*MarketplaceMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	mm := &MarketplaceMetrics{logger: logger}

	var err error
	mm.apiCallTotal, err = NewCounter(
		cfg.Meter,
		"marketplace_api_call_total",
		"Total number of outbound marketplace API calls",
		"{calls}",
	)
	if err != nil {
		return nil, err
	}

	mm.apiCallDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "marketplace_api_call_duration_seconds",
		Description: "Latency of outbound marketplace API calls",
		Unit:        "s",
		Boundaries:  MarketplaceDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	mm.tokenRefreshTotal, err = NewCounter(
		cfg.Meter,
		"marketplace_token_refresh_total",
		"Total number of access token refreshes by outcome",
		"{refreshes}",
	)
	if err != nil {
		return nil, err
	}

	mm.webhookTotal, err = NewCounter(
		cfg.Meter,
		"marketplace_webhook_total",
		"Total number of inbound webhooks by outcome",
		"{webhooks}",
	)
	if err != nil {
		return nil, err
	}

	mm.ordersSyncedTotal, err = NewCounter(
		cfg.Meter,
		"marketplace_orders_synced_total",
		"Total number of orders written by synchronization",
		"{orders}",
	)
	if err != nil {
		return nil, err
	}

	mm.syncJobTotal, err = NewCounter(
		cfg.Meter,
		"marketplace_sync_job_total",
		"Total number of finished background order sync jobs",
		"{jobs}",
	)
	if err != nil {
		return nil, err
	}

	return mm, nil
}

// RecordAPICall records one outbound API attempt. status is 0 when no response was received.
func (mm *MarketplaceMetrics) RecordAPICall(ctx context.Context, method string, status int, d time.Duration) {
	if mm == nil {
		return
	}
	attrs := []attribute.KeyValue{
		AttrHTTPMethod.String(method),
		AttrHTTPStatusCode.Int(status),
	}
	mm.apiCallTotal.Inc(ctx, attrs...)
	mm.apiCallDuration.RecordDuration(ctx, d, attrs...)
}

// RecordTokenRefresh records a refresh attempt with its outcome
func (mm *MarketplaceMetrics) RecordTokenRefresh(ctx context.Context, outcome string) {
	if mm == nil {
		return
	}
	mm.tokenRefreshTotal.Inc(ctx, AttrOutcome.String(outcome))
}

// RecordWebhook records an inbound webhook with its topic and outcome
func (mm *MarketplaceMetrics) RecordWebhook(ctx context.Context, topic, outcome string) {
	if mm == nil {
		return
	}
	mm.webhookTotal.Inc(ctx, AttrTopic.String(topic), AttrOutcome.String(outcome))
}

// RecordOrdersSynced records how many orders a sync wrote. source is "manual", "webhook" or "scheduler".
func (mm *MarketplaceMetrics) RecordOrdersSynced(ctx context.Context, source string, count int) {
	if mm == nil || count <= 0 {
		return
	}
	mm.ordersSyncedTotal.Add(ctx, int64(count), AttrSyncSource.String(source))
}

// RecordSyncJob records a finished sync job. A job that stopped at the page limit is partial.
func (mm *MarketplaceMetrics) RecordSyncJob(ctx context.Context, trigger string, exhausted bool) {
	if mm == nil {
		return
	}
	outcome := OutcomeSuccess
	if !exhausted {
		outcome = OutcomePartial
	}
	mm.syncJobTotal.Inc(ctx, AttrTrigger.String(trigger), AttrOutcome.String(outcome))
}

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewMarketplaceMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
