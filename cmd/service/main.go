package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/wardrobe-weather/internal/client"
	"github.com/kjstillabower/wardrobe-weather/internal/config"
	"github.com/kjstillabower/wardrobe-weather/internal/health"
	httphandler "github.com/kjstillabower/wardrobe-weather/internal/http"
	"github.com/kjstillabower/wardrobe-weather/internal/observability"
	"github.com/kjstillabower/wardrobe-weather/internal/service"
	"github.com/kjstillabower/wardrobe-weather/internal/store"
	"github.com/kjstillabower/wardrobe-weather/internal/tools"
	"github.com/kjstillabower/wardrobe-weather/internal/warming"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	logger, err := observability.NewLogger(observability.LogConfigFromEnv(version))
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	if cfg.WeatherAPIKey == "" {
		logger.Warn("WEATHER_API_KEY not set; weather requests will fail until it is configured")
	}

	weatherClient, err := client.NewVisualCrossingClient(cfg.WeatherAPIURL, cfg.WeatherAPITimeout)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}
	if cfg.BreakerEnabled {
		weatherClient.SetCircuitBreaker(client.BreakerConfig{
			FailureThreshold: cfg.BreakerFailureThreshold,
			HalfOpenRequests: cfg.BreakerHalfOpenRequests,
			OpenTimeout:      cfg.BreakerOpenTimeout,
			OnStateChange: func(from, to string) {
				observability.CircuitBreakerTransitionsTotal.WithLabelValues(to).Inc()
				logger.Warn("circuit breaker state change", zap.String("from", from), zap.String("to", to))
			},
		})
		logger.Info("circuit breaker enabled",
			zap.Uint32("failure_threshold", cfg.BreakerFailureThreshold),
			zap.Duration("open_timeout", cfg.BreakerOpenTimeout))
	}

	storeCtx, storeCancel := context.WithTimeout(context.Background(), 10*time.Second)
	weatherStore, err := store.New(storeCtx, cfg.StoreOptions())
	storeCancel()
	if err != nil {
		logger.Fatal("weather store", zap.Error(err), zap.String("backend", cfg.StoreBackend))
	}
	logger.Info("store backend ready", zap.String("backend", cfg.StoreBackend))

	weatherService := service.NewWeatherService(weatherClient, weatherStore, service.Options{
		APIKey:           cfg.WeatherAPIKey,
		DefaultUnitGroup: cfg.DefaultUnitGroup,
		Logger:           logger,
	})

	tracker := health.NewTracker()
	monitor := health.NewMonitor(health.Config{
		OverloadWindow:       cfg.OverloadWindow,
		OverloadThresholdPct: cfg.OverloadThresholdPct,
		RateLimitRPS:         cfg.RateLimitRPS,
		DegradedWindow:       cfg.DegradedWindow,
		DegradedErrorPct:     cfg.DegradedErrorPct,
	}, tracker)
	if p, ok := weatherStore.(store.Pinger); ok {
		monitor.AddCheck("store", p.Ping)
	}
	monitor.AddCheck("weather_api_key", func(context.Context) error {
		if !weatherService.Configured() {
			return errors.New("weather API key is not configured")
		}
		return nil
	})
	observability.RegisterWindowGauges(
		func() float64 { return float64(tracker.RequestCount(cfg.OverloadWindow)) },
		func() float64 { return float64(tracker.DenialCount(cfg.OverloadWindow)) },
	)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}

	var mcpHandler http.Handler
	if cfg.MCPEnabled {
		mcpHandler = tools.NewHTTPHandler(tools.NewServer(weatherService, version))
		logger.Info("MCP endpoint enabled", zap.String("path", "/mcp"))
	}

	router := httphandler.NewRouter(httphandler.RouterConfig{
		Handler:        httphandler.NewHandler(weatherService, monitor, tracker, logger, version),
		Logger:         logger,
		Limiter:        limiter,
		Tracker:        tracker,
		RequestTimeout: cfg.RequestTimeout,
		MCPHandler:     mcpHandler,
	})

	warmer := warming.NewWarmer(weatherService, warming.Config{
		Locations: cfg.WarmingLocations,
		DaysBack:  cfg.WarmingDaysBack,
		Timeout:   cfg.WarmingTimeout,
		TimeZone:  cfg.WarmingLocation(),
	}, logger)
	scheduler := warming.NewScheduler(warmer, cfg.WarmingInterval, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error("weather warming", zap.Error(err))
	}

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	monitor.SetShuttingDown(true)
	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", httphandler.InFlightCount()))
	if err := httphandler.WaitForInFlight(shutdownCtx, 100*time.Millisecond); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	if err := weatherStore.Close(); err != nil {
		logger.Error("store close", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
