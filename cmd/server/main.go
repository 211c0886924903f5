package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appintegration "github.com/sellerlink/backend/internal/application/integration"
	"github.com/sellerlink/backend/internal/domain/integration"
	"github.com/sellerlink/backend/internal/infrastructure/cache"
	"github.com/sellerlink/backend/internal/infrastructure/config"
	"github.com/sellerlink/backend/internal/infrastructure/logger"
	"github.com/sellerlink/backend/internal/infrastructure/marketplace"
	"github.com/sellerlink/backend/internal/infrastructure/persistence"
	"github.com/sellerlink/backend/internal/infrastructure/scheduler"
	"github.com/sellerlink/backend/internal/infrastructure/security"
	"github.com/sellerlink/backend/internal/infrastructure/storage"
	"github.com/sellerlink/backend/internal/infrastructure/telemetry"
	"github.com/sellerlink/backend/internal/interfaces/http/handler"
	"github.com/sellerlink/backend/internal/interfaces/http/middleware"
	"github.com/sellerlink/backend/internal/interfaces/http/router"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	baseLog, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	ctx := context.Background()

	providers, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		Insecure:          cfg.Telemetry.Insecure,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    handler.Version,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		MetricsInterval:   cfg.Telemetry.MetricsInterval,
		LogsEnabled:       cfg.Telemetry.LogsEnabled,
	}, baseLog)
	if err != nil {
		baseLog.Fatal("Failed to initialize telemetry", zap.Error(err))
	}

	// From here on logs also flow to the collector when log export is enabled
	log := providers.Logs.Bridge(baseLog, cfg.Telemetry.ServiceName, logger.ParseLevel(cfg.Log.Level))
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting sellerlink backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           cfg.Profiling.Enabled,
		ServerAddress:     cfg.Profiling.ServerAddress,
		ApplicationName:   cfg.Profiling.ApplicationName,
		BasicAuthUser:     cfg.Profiling.BasicAuthUser,
		BasicAuthPassword: cfg.Profiling.BasicAuthPassword,
		ProfileMutex:      cfg.Profiling.ProfileMutex,
		ProfileBlock:      cfg.Profiling.ProfileBlock,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	if cfg.Profiling.SpanProfiles && profiler.IsEnabled() {
		providers.Tracer.EnableSpanProfiles()
	}

	result := cfg.Marketplace.Validate()
	for _, w := range result.Warnings {
		log.Warn("Marketplace configuration warning", zap.String("warning", w))
	}
	if !result.IsValid {
		// The server still starts so the validation endpoint can report what is missing
		log.Warn("Marketplace configuration incomplete", zap.Strings("missing", result.Missing))
	}

	db, err := persistence.NewDatabase(&cfg.Database, log, persistence.DatabaseOptions{
		LogLevel:      cfg.Log.Level,
		SlowThreshold: cfg.Telemetry.DBSlowQueryThreshold,
	})
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	dbMetrics, err := telemetry.InstrumentDatabase(db.DB, providers.Meter, telemetry.DBConfig{
		Tracing:            cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:         cfg.Telemetry.DBLogFullSQL,
		SlowQueryThreshold: cfg.Telemetry.DBSlowQueryThreshold,
		DBName:             cfg.Database.DBName,
	}, log)
	if err != nil {
		log.Fatal("Failed to instrument database", zap.Error(err))
	}
	defer dbMetrics.Stop()

	healthChecks := map[string]handler.Pinger{"database": db}

	// Authorization states live in Redis when available, otherwise in the database
	var states integration.AuthStateStore
	if cfg.Redis.Enabled {
		factory := cache.NewAuthStateStoreFactory(cfg.Redis, cfg.Marketplace.StateTTL,
			cache.WithLogger(log),
			cache.WithInMemoryFallback(cfg.App.Env != "production"),
		)
		states, err = factory.CreateStore()
		if err != nil {
			log.Fatal("Failed to create authorization state store", zap.Error(err))
		}
		if redisStore, ok := states.(*cache.RedisAuthStateStore); ok {
			healthChecks["redis"] = redisStore
		}
		if closer, ok := states.(io.Closer); ok {
			defer closer.Close()
		}
	} else {
		dbStates := persistence.NewGormAuthStateStore(db.DB, cfg.Marketplace.StateTTL)
		dbStates.StartCleanup(time.Minute, log)
		defer dbStates.Close()
		states = dbStates
	}

	var grantOpts []persistence.GrantStoreOption
	if cfg.Security.TokenEncryptionKey != "" {
		cipher, err := security.NewTokenCipher(cfg.Security.TokenEncryptionKey)
		if err != nil {
			log.Fatal("Invalid token encryption key", zap.Error(err))
		}
		grantOpts = append(grantOpts, persistence.WithTokenCipher(cipher))
	} else {
		log.Warn("Token encryption key not set, grant tokens are stored unencrypted")
	}
	grants := persistence.NewGormGrantStore(db.DB, grantOpts...)

	metrics, err := telemetry.NewMarketplaceMetrics(telemetry.MarketplaceMetricsConfig{
		Meter:  providers.Meter.Meter("marketplace"),
		Logger: log,
	})
	if err != nil {
		log.Fatal("Failed to create marketplace metrics", zap.Error(err))
	}

	oauthClient := marketplace.NewOAuthClient(&cfg.Marketplace,
		marketplace.WithOAuthLogger(log),
		marketplace.WithOAuthMetrics(metrics),
	)
	tokenService := appintegration.NewTokenService(appintegration.TokenServiceConfig{
		Config:  &cfg.Marketplace,
		OAuth:   oauthClient,
		States:  states,
		Grants:  grants,
		Metrics: metrics,
		Logger:  log,
	})

	executor := marketplace.NewExecutor(&cfg.Marketplace, grants, tokenService,
		marketplace.WithLogger(log),
		marketplace.WithMetrics(metrics),
	)
	orderClient := marketplace.NewOrderClient(executor, cfg.Marketplace.SellerID)
	listingClient := marketplace.NewListingClient(executor, cfg.Marketplace.SellerID)

	orderSyncService := appintegration.NewOrderSyncService(appintegration.OrderSyncServiceConfig{
		Source:  orderClient,
		Orders:  persistence.NewGormOrderRepository(db.DB),
		Metrics: metrics,
		Logger:  log,
	})

	var archive integration.WebhookArchive
	if cfg.Storage.Enabled {
		s3Archive, err := storage.NewS3WebhookArchive(&cfg.Storage, storage.WithLogger(log))
		if err != nil {
			log.Fatal("Failed to create webhook archive", zap.Error(err))
		}
		if err := s3Archive.EnsureBucket(ctx); err != nil {
			log.Fatal("Failed to prepare webhook archive bucket", zap.Error(err))
		}
		archive = s3Archive
	}

	webhookService := appintegration.NewWebhookService(appintegration.WebhookServiceConfig{
		Verifier: marketplace.NewWebhookVerifier(cfg.Marketplace.WebhookSecret, cfg.Marketplace.WebhookInsecure, log),
		Events:   persistence.NewGormWebhookEventRepository(db.DB),
		Archive:  archive,
		Sync:     orderSyncService,
		Metrics:  metrics,
		Logger:   log,
	})

	var syncScheduler *scheduler.OrderSyncScheduler
	if cfg.Scheduler.Enabled {
		schedCfg := scheduler.NewOrderSyncSchedulerConfig(cfg.Scheduler)
		schedCfg.Ready = cfg.Marketplace.RequireValid
		syncExecutor := scheduler.NewOrderSyncExecutor(orderSyncService, schedCfg, log)
		syncExecutor.SetOnSyncCompletedCallback(func(ctx context.Context, job *scheduler.OrderSyncJob) error {
			metrics.RecordSyncJob(ctx, string(job.Trigger), job.Status == scheduler.OrderSyncJobStatusSuccess)
			return nil
		})
		syncScheduler, err = scheduler.NewOrderSyncScheduler(schedCfg, syncExecutor, log)
		if err != nil {
			log.Fatal("Failed to create order sync scheduler", zap.Error(err))
		}
		if err := syncScheduler.Start(ctx); err != nil {
			if !errors.Is(err, integration.ErrConfigInvalid) {
				log.Fatal("Failed to start order sync scheduler", zap.Error(err))
			}
			log.Warn("Order sync scheduler not started until marketplace configuration is fixed", zap.Error(err))
		}
	} else {
		log.Info("Order sync scheduler disabled")
	}

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		log.Fatal("Invalid trusted proxies", zap.Error(err))
	}

	corsCfg := middleware.DefaultCORSConfig()
	if len(cfg.HTTP.CORSAllowOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	}
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		corsCfg.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		corsCfg.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}

	// RequestID and Tracing run before SpanAttributes so the span carries both
	engine.Use(
		middleware.RequestID(),
		logger.GinMiddleware(log),
		logger.Recovery(log),
		middleware.CORSWithConfig(corsCfg),
		middleware.Secure(),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
		middleware.Timeout(cfg.HTTP.WriteTimeout),
		middleware.TracingWithConfig(middleware.TracingConfig{
			Enabled:     cfg.Telemetry.Enabled,
			ServiceName: cfg.Telemetry.ServiceName,
		}),
		middleware.SpanAttributes(),
		middleware.SpanErrorMarker(),
		middleware.HTTPMetrics(middleware.HTTPMetricsConfig{
			MeterProvider: providers.Meter,
			Enabled:       cfg.Telemetry.Enabled,
		}),
	)

	engine.GET("/health", handler.NewHealthHandler(healthChecks).Check)

	r := router.NewRouter(engine)
	r.Register(handler.MarketplaceRoutes(handler.MarketplaceHandlers{
		Auth:     handler.NewMarketplaceAuthHandler(tokenService, &cfg.Marketplace, log),
		Orders:   handler.NewMarketplaceOrderHandler(orderSyncService),
		Webhooks: handler.NewMarketplaceWebhookHandler(webhookService),
		Listings: handler.NewMarketplaceListingHandler(listingClient),
	})).
		Register(handler.SystemRoutes(handler.NewSystemHandler()))
	r.Setup()

	for _, route := range r.Routes() {
		log.Debug("Route registered",
			zap.String("group", route.Group),
			zap.String("method", route.Method),
			zap.String("path", route.Path),
		)
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if syncScheduler != nil {
		if err := syncScheduler.Stop(shutdownCtx); err != nil {
			log.Error("Failed to stop order sync scheduler", zap.Error(err))
		}
	}
	if err := profiler.Stop(); err != nil {
		log.Error("Failed to stop profiler", zap.Error(err))
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to flush telemetry", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
