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

	"github.com/kjstillabower/station-forecast-service/internal/cache"
	"github.com/kjstillabower/station-forecast-service/internal/client"
	"github.com/kjstillabower/station-forecast-service/internal/config"
	"github.com/kjstillabower/station-forecast-service/internal/forecast"
	httphandler "github.com/kjstillabower/station-forecast-service/internal/http"
	"github.com/kjstillabower/station-forecast-service/internal/lifecycle"
	"github.com/kjstillabower/station-forecast-service/internal/observability"
	"github.com/kjstillabower/station-forecast-service/internal/scheduler"
	"github.com/kjstillabower/station-forecast-service/internal/service"
	"github.com/kjstillabower/station-forecast-service/internal/store"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	startupWarmTimeout = 30 * time.Second
	jobTimeout         = 5 * time.Minute
	inFlightPoll       = 100 * time.Millisecond
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = observability.FlushLogs(logger) }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	recordStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("record store", zap.String("backend", cfg.StoreBackend), zap.Error(err))
	}
	logger.Info("store backend ready", zap.String("backend", cfg.StoreBackend))

	dailyClient, err := client.NewOpenMeteoClient(client.Config{
		URL:                     cfg.WeatherAPIURL,
		Timezone:                cfg.Timezone,
		Timeout:                 cfg.WeatherAPITimeout,
		RetryAttempts:           cfg.RetryAttempts,
		RetryBaseDelay:          cfg.RetryBaseDelay,
		RetryMaxDelay:           cfg.RetryMaxDelay,
		BreakerFailureThreshold: cfg.BreakerFailureThreshold,
		BreakerOpenTimeout:      cfg.BreakerOpenTimeout,
		BreakerHalfOpenRequests: cfg.BreakerHalfOpenRequests,
	})
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}

	stationCache := cache.NewStationCache(recordStore)
	weatherService := service.NewWeatherService(dailyClient, stationCache, cfg.Location, cfg.RefillLockTimeout)
	forecastService := service.NewForecastService(weatherService, forecast.NewEngine(logger), recordStore)
	warmer := cache.NewWarmer(weatherService, logger, cfg.WarmConcurrency)

	observability.RegisterTrafficGauges(cfg.RateLimitWindow)
	observability.SetTrackedStations(cfg.TrackedStations)

	if cfg.WarmOnStartup && len(cfg.Stations) > 0 {
		warmCtx, warmCancel := context.WithTimeout(observability.WithLogger(ctx, logger), startupWarmTimeout)
		if err := warmer.Warm(warmCtx, cfg.Stations); err != nil {
			logger.Warn("startup warming incomplete", zap.Error(err))
		}
		warmCancel()
	}

	sched := scheduler.New(logger, cfg.Location, jobTimeout)
	if cfg.SchedulerEnabled {
		if err := sched.Add("warm", cfg.WarmSchedule, scheduler.WarmStations(warmer, cfg.Stations)); err != nil {
			logger.Fatal("scheduler", zap.Error(err))
		}
		if cfg.ForecastSchedule != "" {
			if err := sched.Add("forecast", cfg.ForecastSchedule, scheduler.ForecastStations(forecastService, cfg.Stations)); err != nil {
				logger.Fatal("scheduler", zap.Error(err))
			}
		}
		sched.Start(ctx)
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(weatherService, forecastService, recordStore, cfg, &httphandler.HealthConfig{
		Window:       cfg.HealthWindow,
		ErrorPct:     cfg.HealthErrorPct,
		RateLimitRPS: cfg.RateLimitRPS,
		OverloadPct:  cfg.HealthOverloadPct,
		StartTime:    time.Now(),
		Version:      version,
	}, logger, cfg.StationNameMaxLen)

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      httphandler.NewRouter(handler, logger, limiter, cfg.RequestTimeout),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.Int("stations", len(cfg.Stations)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", httphandler.InFlightCount()))
	if err := httphandler.WaitForInFlight(shutdownCtx, inFlightPoll); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Warn("scheduled jobs still running", zap.Error(err))
	}
	if err := recordStore.Close(); err != nil {
		logger.Error("store close", zap.Error(err))
	}
	logger.Info("shutdown complete", zap.Duration("drain", lifecycle.DrainingFor()))
}

// openStore builds the record store selected by cfg.StoreBackend.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendSQLite:
		return store.NewSQLiteStore(cfg.SQLitePath, logger)
	case config.BackendPostgres:
		return store.NewPostgresStore(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns)
	case config.BackendMemcached:
		return store.NewMemcachedStore(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
	case config.BackendInMemory:
		return store.NewMemoryStore(cfg.InMemoryMaxStations)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
