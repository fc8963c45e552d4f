package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appledger "github.com/yieldvault/backend/internal/application/ledger"
	"github.com/yieldvault/backend/internal/domain/shared"
	"github.com/yieldvault/backend/internal/infrastructure/auth"
	"github.com/yieldvault/backend/internal/infrastructure/cache"
	"github.com/yieldvault/backend/internal/infrastructure/config"
	"github.com/yieldvault/backend/internal/infrastructure/logger"
	"github.com/yieldvault/backend/internal/infrastructure/messaging"
	"github.com/yieldvault/backend/internal/infrastructure/oracle"
	"github.com/yieldvault/backend/internal/infrastructure/persistence"
	"github.com/yieldvault/backend/internal/infrastructure/scheduler"
	"github.com/yieldvault/backend/internal/infrastructure/telemetry"
	"github.com/yieldvault/backend/internal/interfaces/http/handler"
	"github.com/yieldvault/backend/internal/interfaces/http/middleware"
	"github.com/yieldvault/backend/internal/interfaces/http/router"
)

const meterName = "github.com/yieldvault/backend"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}
	ctx := context.Background()

	// OTLP log bridge first so every later log line is exported
	logProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	})
	if err != nil {
		panic("Failed to initialize log exporter: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	}, logProvider.ZapCore(logger.ParseLevel(cfg.Log.Level)))
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting yield ledger",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		Exporter:          cfg.Telemetry.MetricsExporter,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}
	meter := meterProvider.Meter(meterName)
	ledgerMetrics, err := telemetry.NewLedgerMetrics(meter)
	if err != nil {
		log.Fatal("Failed to create ledger instruments", zap.Error(err))
	}

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level), persistence.DefaultSlowQueryThreshold)
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog, telemetry.DBTracingConfig{
		Enabled:    cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL: cfg.Telemetry.DBLogFullSQL,
		DBName:     cfg.Database.DBName,
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

	stores, err := cache.NewStores(ctx, cfg.Redis, cache.WithLogger(log), cache.WithInMemoryFallback(!cfg.App.IsProduction()))
	if err != nil {
		log.Fatal("Failed to initialize caches", zap.Error(err))
	}
	defer func() {
		if err := stores.Close(); err != nil {
			log.Error("Error closing caches", zap.Error(err))
		}
	}()

	oracles, err := oracle.Dial(ctx, cfg.Oracle, log)
	if err != nil {
		log.Fatal("Failed to connect balance oracles", zap.Error(err))
	}
	defer oracles.Close()

	publisher, closePublisher := newPublisher(cfg.Messaging, log)
	defer closePublisher()

	// Repositories
	fees := persistence.FeeDefaults{
		ClientSharePercent: cfg.Fees.DefaultClientSharePercent,
		PlatformFeePercent: cfg.Fees.DefaultPlatformFeePercent,
	}
	vaultRepo := persistence.NewGormVaultLedgerRepository(db.DB)
	accountRepo := persistence.NewGormShareAccountRepository(db.DB)
	snapshotRepo := persistence.NewGormIndexSnapshotRepository(db.DB)
	distributionRepo := persistence.NewGormRevenueDistributionRepository(db.DB)
	feeRepo := persistence.NewGormClientFeeConfigRepository(db.DB, fees)
	scope := persistence.NewGormTransactionScope(db.DB, fees)

	// Application services
	clock := shared.SystemClock{}
	aggregator := appledger.NewGrowthIndexAggregator(vaultRepo, snapshotRepo, stores.GrowthIndex, clock, log)
	vaultService := appledger.NewVaultService(scope, vaultRepo, aggregator, publisher, clock, log)
	accountService := appledger.NewAccountService(scope, accountRepo, aggregator, stores.Idempotency, publisher, ledgerMetrics, clock, log)
	reconciler := appledger.NewIndexReconciler(scope, vaultRepo, oracles, aggregator, publisher, ledgerMetrics, clock, log, reconcilerConfig(cfg))
	splitter := appledger.NewRevenueSplitter(scope, vaultRepo, distributionRepo, feeRepo, aggregator, publisher, ledgerMetrics, clock, log)

	// Scheduled jobs
	var jobs handler.JobStatusProvider
	sched := scheduler.New(scheduler.Config{JobTimeout: cfg.Scheduler.JobTimeout}, log)
	if cfg.Scheduler.Enabled {
		if err := scheduler.RegisterLedgerJobs(sched, cfg.Scheduler, scheduler.LedgerJobs{
			Reconciler:    reconciler,
			Snapshots:     snapshotRepo,
			Distributions: distributionRepo,
			MRR:           splitter,
			Clock:         clock,
		}, log); err != nil {
			log.Fatal("Failed to register scheduled jobs", zap.Error(err))
		}
		sched.Start()
		jobs = sched
	}

	var writeLimiter *middleware.RateLimiter
	if cfg.HTTP.RateLimit > 0 {
		writeLimiter = middleware.NewRateLimiter(cfg.HTTP.RateLimit, cfg.HTTP.RateLimitWindow)
		defer writeLimiter.Close()
	}

	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine, err := router.NewEngine(router.Dependencies{
		HTTP:           cfg.HTTP,
		Logger:         log,
		Tokens:         auth.NewJWTService(cfg.JWT),
		ServiceName:    cfg.Telemetry.ServiceName,
		TracingEnabled: cfg.Telemetry.Enabled,
		Meter:          meter,
		MetricsHandler: meterProvider.Handler(),
		WriteLimiter:   writeLimiter,
		Vaults:         handler.NewVaultHandler(vaultService, reconciler, splitter),
		Accounts:       handler.NewAccountHandler(accountService),
		Clients:        handler.NewClientHandler(aggregator, splitter),
		Health: handler.NewHealthHandler(map[string]handler.HealthCheck{
			"database": func(context.Context) error { return db.Ping() },
			"cache":    stores.Ping,
		}, jobs),
	})
	if err != nil {
		log.Fatal("Failed to build HTTP engine", zap.Error(err))
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

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg.HTTP))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if cfg.Scheduler.Enabled {
		if err := sched.Stop(shutdownCtx); err != nil {
			log.Warn("Scheduled jobs did not finish before shutdown", zap.Error(err))
		}
	}
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Warn("Failed to flush metrics", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Warn("Failed to flush traces", zap.Error(err))
	}
	log.Info("Server exited gracefully")
	_ = logProvider.Shutdown(shutdownCtx)
}

// newPublisher connects to RabbitMQ when messaging is enabled. Without a
// broker, events are written to the log.
func newPublisher(cfg config.MessagingConfig, log *zap.Logger) (shared.EventPublisher, func()) {
	if !cfg.Enabled {
		return messaging.NewLogPublisher(log), func() {}
	}
	p, err := messaging.Dial(cfg, log)
	if err != nil {
		log.Fatal("Failed to connect to message broker", zap.Error(err))
	}
	return p, func() {
		if err := p.Close(); err != nil {
			log.Warn("Error closing message broker connection", zap.Error(err))
		}
	}
}

func reconcilerConfig(cfg *config.Config) appledger.ReconcilerConfig {
	rc := appledger.DefaultReconcilerConfig()
	if cfg.Reconciler.Concurrency > 0 {
		rc.Concurrency = cfg.Reconciler.Concurrency
	}
	if cfg.Reconciler.SandboxDebounce > 0 {
		rc.SandboxDebounce = cfg.Reconciler.SandboxDebounce
	}
	if cfg.Oracle.RequestTimeout > 0 {
		rc.ReadTimeout = cfg.Oracle.RequestTimeout
	}
	return rc
}

func shutdownTimeout(cfg config.HTTPConfig) time.Duration {
	if cfg.ShutdownTimeout > 0 {
		return cfg.ShutdownTimeout
	}
	return 30 * time.Second
}
