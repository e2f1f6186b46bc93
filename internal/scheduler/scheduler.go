// Package scheduler runs periodic station warming and forecasting on cron specs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/kjstillabower/station-forecast-service/internal/models"
	"github.com/kjstillabower/station-forecast-service/internal/observability"
)

// Task is one scheduled unit of work. ctx carries the scheduler logger and a
// per-run timeout.
type Task func(ctx context.Context) error

// Scheduler wraps a cron runner whose jobs never overlap with themselves and
// recover from panics.
type Scheduler struct {
	cron    *cron.Cron
	logger  *zap.Logger
	timeout time.Duration

	mu  sync.Mutex
	ctx context.Context
}

// New creates a Scheduler evaluating specs in loc. Each run is bounded by timeout (0 = none).
func New(logger *zap.Logger, loc *time.Location, timeout time.Duration) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	cl := cronLogger{logger.Sugar()}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger:  logger,
		timeout: timeout,
		ctx:     context.Background(),
	}
}

// Add registers task under name on a standard cron spec or descriptor ("@every 1h").
func (s *Scheduler) Add(name, spec string, task Task) error {
	if _, err := s.cron.AddFunc(spec, s.wrap(name, task)); err != nil {
		return fmt.Errorf("schedule %s %q: %w", name, spec, err)
	}
	s.logger.Info("job scheduled", zap.String("job", name), zap.String("spec", spec))
	return nil
}

// Start begins running jobs. Runs derive their context from ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
}

// Stop prevents new runs and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// Len returns the number of registered jobs.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) wrap(name string, task Task) func() {
	return func() {
		s.mu.Lock()
		base := s.ctx
		s.mu.Unlock()

		logger := s.logger.With(zap.String("job", name))
		ctx := observability.WithLogger(base, logger)
		if s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}

		start := time.Now()
		if err := task(ctx); err != nil {
			logger.Error("job failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
			return
		}
		logger.Info("job completed", zap.Duration("duration", time.Since(start)))
	}
}

// Warmer is satisfied by cache.Warmer.
type Warmer interface {
	Warm(ctx context.Context, stations []models.Station) error
}

// Forecaster is satisfied by service.ForecastService.
type Forecaster interface {
	Forecast(ctx context.Context, station string, lat, lon float64) ([]models.WeatherRecord, error)
}

// WarmStations returns a task that warms every station.
func WarmStations(w Warmer, stations []models.Station) Task {
	return func(ctx context.Context) error {
		return w.Warm(ctx, stations)
	}
}

// ForecastStations returns a task that forecasts each station in turn. A failing
// station does not stop the rest; failures are joined.
func ForecastStations(f Forecaster, stations []models.Station) Task {
	return func(ctx context.Context) error {
		var errs []error
		for _, st := range stations {
			if ctx.Err() != nil {
				errs = append(errs, ctx.Err())
				break
			}
			if _, err := f.Forecast(ctx, st.Name, st.Lat, st.Lon); err != nil {
				errs = append(errs, fmt.Errorf("forecast %s: %w", st.Name, err))
			}
		}
		return errors.Join(errs...)
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
