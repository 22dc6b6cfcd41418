package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edusuite/fee-ledger-go/internal/config"
	"github.com/edusuite/fee-ledger-go/internal/domain"
	"github.com/edusuite/fee-ledger-go/internal/handler"
	"github.com/edusuite/fee-ledger-go/internal/infra/cache"
	"github.com/edusuite/fee-ledger-go/internal/infra/campusdb"
	"github.com/edusuite/fee-ledger-go/internal/infra/observability"
	"github.com/edusuite/fee-ledger-go/internal/infra/resilience"
	"github.com/edusuite/fee-ledger-go/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("campus_api_url", cfg.CampusAPIURL),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Int("batch_size", cfg.BatchSize),
		zap.Duration("batch_pause", cfg.BatchPause),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "fee-ledger")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Cache ---
	feeCache := cache.New[[]domain.FeeStructureRow](cfg.CacheTTL)

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	cb := resilience.NewCircuitBreaker("campusdb")

	// --- Campus data store ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	store := campusdb.NewClient(
		httpClient,
		cfg.CampusAPIURL,
		cfg.CampusAPIKey,
		cfg.CampusAPIServiceKey,
		cb,
		resilienceCfg,
		logger,
	)

	// --- Services ---
	ledgerSvc := service.NewLedgerService(
		store,
		feeCache,
		metrics,
		logger,
		cfg.MaxConcurrency,
		cfg.BatchSize,
		cfg.BatchPause,
	)

	if cfg.APITokenSecret == "" {
		logger.Warn("API_TOKEN_SECRET unset, write endpoints are unauthenticated")
	}

	// --- Router ---
	router := handler.NewRouter(ledgerSvc, metrics, logger, cfg.APITokenSecret)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
