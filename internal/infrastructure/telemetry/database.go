package telemetry

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBConfig controls database instrumentation.
type DBConfig struct {
	// Tracing registers otelgorm so every statement gets a span.
	Tracing bool
	// LogFullSQL keeps query variables in spans. Never enable in production:
	// grant rows carry tokens.
	LogFullSQL bool
	// SlowQueryThreshold marks and logs slower statements. Default: 200ms.
	SlowQueryThreshold time.Duration
	// DBName is reported as db.name on spans.
	DBName string
}

// DBMetrics holds the database instruments.
type DBMetrics struct {
	queryTotal     *Counter
	queryDuration  *Histogram
	slowQueryTotal *Counter
	registration   metric.Registration
}

type dbStartKey struct{}

// dbObserver is a gorm plugin that times each statement, records metrics,
// and flags slow or failed statements on the active span.
type dbObserver struct {
	metrics   *DBMetrics
	threshold time.Duration
	logger    *zap.Logger
}

// InstrumentDatabase registers tracing (otelgorm) and query metrics on db, and
// observes the connection pool. meterProvider may be nil or disabled, in which
// case only tracing is registered.
func InstrumentDatabase(db *gorm.DB, meterProvider *MeterProvider, cfg DBConfig, logger *zap.Logger) (*DBMetrics, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SlowQueryThreshold <= 0 {
		cfg.SlowQueryThreshold = 200 * time.Millisecond
	}

	if cfg.Tracing {
		opts := []otelgorm.Option{otelgorm.WithDBName(cfg.DBName)}
		if !cfg.LogFullSQL {
			opts = append(opts, otelgorm.WithoutQueryVariables())
		}
		if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
			return nil, err
		}
	}

	var metrics *DBMetrics
	if meterProvider.IsEnabled() {
		var err error
		metrics, err = NewDBMetrics(meterProvider.Meter("db.client"), db)
		if err != nil {
			return nil, err
		}
	}

	observer := &dbObserver{metrics: metrics, threshold: cfg.SlowQueryThreshold, logger: logger}
	if err := db.Use(observer); err != nil {
		return nil, err
	}

	logger.Info("Database instrumentation registered",
		zap.Bool("tracing", cfg.Tracing),
		zap.Bool("metrics", metrics != nil),
		zap.Duration("slow_query_threshold", cfg.SlowQueryThreshold),
	)
	return metrics, nil
}

// NewDBMetrics creates query instruments and an observable gauge that reads the
// pool statistics of db on each collection.
func NewDBMetrics(meter metric.Meter, db *gorm.DB) (*DBMetrics, error) {
	queryTotal, err := NewCounter(meter, "db_query_total", "Total number of database queries by operation type", "{query}")
	if err != nil {
		return nil, err
	}
	queryDuration, err := NewHistogram(meter, HistogramOpts{
		Name:        "db_query_duration_seconds",
		Description: "Database query latency distribution in seconds",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	})
	if err != nil {
		return nil, err
	}
	slowQueryTotal, err := NewCounter(meter, "db_slow_query_total", "Total number of slow database queries", "{query}")
	if err != nil {
		return nil, err
	}

	m := &DBMetrics{
		queryTotal:     queryTotal,
		queryDuration:  queryDuration,
		slowQueryTotal: slowQueryTotal,
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	pool, err := meter.Int64ObservableGauge("db_pool_connections",
		metric.WithDescription("Number of connections in the pool by state"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return nil, err
	}
	poolMax, err := meter.Int64ObservableGauge("db_pool_connections_max",
		metric.WithDescription("Maximum number of open connections"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return nil, err
	}
	m.registration, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stats := sqlDB.Stats()
		o.ObserveInt64(poolMax, int64(stats.MaxOpenConnections))
		o.ObserveInt64(pool, int64(stats.Idle), metric.WithAttributes(AttrDBState.String("idle")))
		o.ObserveInt64(pool, int64(stats.InUse), metric.WithAttributes(AttrDBState.String("in_use")))
		o.ObserveInt64(pool, int64(stats.OpenConnections), metric.WithAttributes(AttrDBState.String("open")))
		return nil
	}, pool, poolMax)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// RecordQuery records one statement. Slow statements are counted per table.
func (m *DBMetrics) RecordQuery(ctx context.Context, operation, table string, duration, slowThreshold time.Duration) {
	if m == nil {
		return
	}
	operation = strings.ToUpper(operation)
	if operation == "" {
		operation = "UNKNOWN"
	}
	m.queryTotal.Inc(ctx, AttrDBOperation.String(operation))
	m.queryDuration.RecordDuration(ctx, duration, AttrDBOperation.String(operation))
	if duration > slowThreshold {
		if table == "" {
			table = "unknown"
		}
		m.slowQueryTotal.Inc(ctx, AttrDBTable.String(table))
	}
}

// Stop unregisters the pool statistics callback.
func (m *DBMetrics) Stop() {
	if m == nil || m.registration == nil {
		return
	}
	_ = m.registration.Unregister()
}

// Name implements gorm.Plugin.
func (o *dbObserver) Name() string {
	return "sellerlink:db_observer"
}

// Initialize implements gorm.Plugin.
func (o *dbObserver) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	processors := []struct {
		name   string
		verb   string
		before func(string, func(*gorm.DB)) error
		after  func(string, func(*gorm.DB)) error
	}{
		{"create", "INSERT", cb.Create().Before("gorm:create").Register, cb.Create().After("gorm:create").Register},
		{"query", "SELECT", cb.Query().Before("gorm:query").Register, cb.Query().After("gorm:query").Register},
		{"update", "UPDATE", cb.Update().Before("gorm:update").Register, cb.Update().After("gorm:update").Register},
		{"delete", "DELETE", cb.Delete().Before("gorm:delete").Register, cb.Delete().After("gorm:delete").Register},
		// Row and raw statements carry their verb in the SQL text
		{"row", "", cb.Row().Before("gorm:row").Register, cb.Row().After("gorm:row").Register},
		{"raw", "", cb.Raw().Before("gorm:raw").Register, cb.Raw().After("gorm:raw").Register},
	}

	for _, p := range processors {
		verb := p.verb
		if err := p.before("sellerlink:before_"+p.name, o.before); err != nil {
			return err
		}
		if err := p.after("sellerlink:after_"+p.name, func(db *gorm.DB) { o.after(db, verb) }); err != nil {
			return err
		}
	}
	return nil
}

func (o *dbObserver) before(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}
	db.Statement.Context = context.WithValue(ctx, dbStartKey{}, time.Now())
}

func (o *dbObserver) after(db *gorm.DB, verb string) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	start, ok := ctx.Value(dbStartKey{}).(time.Time)
	if !ok {
		return
	}
	elapsed := time.Since(start)
	if verb == "" {
		verb = detectOperationType(db.Statement.SQL.String())
	}
	table := db.Statement.Table

	o.metrics.RecordQuery(ctx, verb, table, elapsed, o.threshold)

	slow := elapsed > o.threshold
	if slow {
		o.logger.Warn("Slow database query",
			zap.String("operation", verb),
			zap.String("table", table),
			zap.Duration("duration", elapsed),
			zap.Duration("threshold", o.threshold),
		)
	}

	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	if table != "" {
		span.SetAttributes(attribute.String("db.sql.table", table))
	}
	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}
	if slow {
		span.SetAttributes(
			attribute.Bool("db.slow_query", true),
			attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
		)
	}
}

// detectOperationType derives the SQL verb of a raw or row statement.
func detectOperationType(sql string) string {
	sql = strings.TrimSpace(strings.ToUpper(sql))
	for _, verb := range []string{"SELECT", "INSERT", "UPDATE", "DELETE"} {
		if strings.HasPrefix(sql, verb) {
			return verb
		}
	}
	if strings.HasPrefix(sql, "WITH") {
		return "SELECT"
	}
	return "OTHER"
}
