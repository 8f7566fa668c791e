package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/yourorg/market-cache/internal/cache"
	"github.com/yourorg/market-cache/internal/client"
	"github.com/yourorg/market-cache/internal/config"
	"github.com/yourorg/market-cache/internal/fx"
	"github.com/yourorg/market-cache/internal/handler"
	"github.com/yourorg/market-cache/internal/indicator"
	"github.com/yourorg/market-cache/internal/maintenance"
	"github.com/yourorg/market-cache/internal/metrics"
	"github.com/yourorg/market-cache/internal/middleware"
	"github.com/yourorg/market-cache/internal/service"
	"github.com/yourorg/market-cache/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig(configPath())
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Set up logger
	logger, err := createLogger(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open the storage backend
	store, err := storage.Open(ctx, storage.Config{
		Mode:            cfg.Storage.Mode,
		Path:            cfg.Storage.Path,
		DSN:             cfg.Storage.DSN(),
		MaxOpenConns:    cfg.Storage.MaxOpenConns,
		MaxIdleConns:    cfg.Storage.MaxIdleConns,
		ConnMaxLifetime: cfg.Storage.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to open storage", zap.Error(err))
	}
	defer store.Close()

	// Optional distributed cache tier
	var remote *cache.Redis
	if cfg.Redis.Enabled {
		remote, err = cache.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password,
			cfg.Redis.DB, cfg.Redis.Prefix, logger)
		if err != nil {
			logger.Warn("Redis tier unavailable, continuing without it", zap.Error(err))
			remote = nil
		} else {
			defer remote.Close()
		}
	}

	cacheManager := cache.NewManager(store, remote, cfg.Cache.MaxEntries, logger)

	// Upstream clients
	marketData := client.NewMarketDataClient(cfg.MarketData.BaseURL, cfg.MarketData.APIKey, logger)

	var fxService *fx.Service
	if cfg.FX.Enabled {
		providers := []fx.Provider{
			fx.NewPairProvider("exchangerate-api", cfg.FX.PairBaseURL, cfg.FX.PairAPIKey, logger),
			fx.NewOpenProvider("open-er-api", cfg.FX.OpenBaseURL, logger),
			fx.NewKeyedBaseProvider("fixer", cfg.FX.KeyedBaseURL, cfg.FX.KeyedAPIKey, logger),
		}
		fxService = fx.NewService(store, providers, cfg.FX.RateTTL, logger)
	}

	// Orchestrator
	analysisService := service.NewAnalysisService(
		store,
		cacheManager,
		marketData,
		indicator.NewDefaultEngine(),
		service.Options{
			AnalysisTTL:     cfg.Cache.AnalysisTTL,
			ApproximateOHLC: cfg.MarketData.ApproximateOHLC,
		},
		logger,
	)

	// Metrics and handlers
	registry := metrics.NewRegistry()
	analysisHandler := handler.NewAnalysisHandler(analysisService, logger)
	currencyHandler := handler.NewCurrencyHandler(fxService, logger)
	healthHandler := handler.NewHealthHandler(store, cacheManager, logger)
	metricsHandler := handler.NewMetricsHandler(store, cacheManager, logger)

	router := setupRouter(analysisHandler, currencyHandler, healthHandler, metricsHandler, registry, logger)

	// Background maintenance: one instance, stopped with the process
	loop := maintenance.NewLoop(cacheManager, store, registry, cfg.Maintenance.Interval, logger)
	go loop.Run(ctx)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start the server in a goroutine
	go func() {
		logger.Info("Starting server",
			zap.String("port", cfg.Server.Port),
			zap.String("storage_mode", cfg.Storage.Mode))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited properly")
}

func configPath() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	return "config/config.yaml"
}

func createLogger(level string) (*zap.Logger, error) {
	// Parse log level
	var zapLevel zap.AtomicLevel
	switch level {
	case "debug":
		zapLevel = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapLevel = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapLevel = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	// Create logger config
	config := zap.Config{
		Level:            zapLevel,
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return config.Build()
}

func setupRouter(
	analysisHandler *handler.AnalysisHandler,
	currencyHandler *handler.CurrencyHandler,
	healthHandler *handler.HealthHandler,
	metricsHandler *handler.MetricsHandler,
	registry *metrics.Registry,
	logger *zap.Logger,
) *gin.Engine {
	router := gin.New()

	// Use middlewares
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Metrics(registry))

	// Health
	router.GET("/health", healthHandler.Health)
	router.GET("/health/database", healthHandler.Database)

	// Metrics
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	router.GET("/metrics/cache", metricsHandler.Cache)
	router.GET("/metrics/performance", metricsHandler.Performance)

	// API routes
	api := router.Group("/api")
	{
		api.GET("/analyze/:symbol", analysisHandler.Analyze)

		currency := api.Group("/currency")
		{
			currency.GET("/convert", currencyHandler.Convert)
			currency.POST("/convert/batch", currencyHandler.BatchConvert)
		}
	}
	return router
}
