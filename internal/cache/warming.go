package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/station-forecast-service/internal/models"
	"github.com/kjstillabower/station-forecast-service/internal/observability"
)

// StationFetcher is implemented by the service layer to bring one station's cache up to date.
// Used by Warmer to avoid a circular dependency on the service package.
type StationFetcher interface {
	WarmStation(ctx context.Context, station models.Station) error
}

// Warmer prefetches stations so request paths find a fresh window.
type Warmer struct {
	fetcher     StationFetcher
	logger      *zap.Logger
	concurrency int
}

// NewWarmer creates a Warmer that runs at most concurrency fetches at once (0 = unbounded).
func NewWarmer(fetcher StationFetcher, logger *zap.Logger, concurrency int) *Warmer {
	return &Warmer{fetcher: fetcher, logger: logger, concurrency: concurrency}
}

// Warm fetches every station concurrently. A failing station does not stop the others;
// all failures are joined into the returned error.
func (w *Warmer) Warm(ctx context.Context, stations []models.Station) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	if w.logger != nil {
		w.logger.Info("warming stations", zap.Int("stations", len(stations)))
	}

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	if w.concurrency > 0 {
		g.SetLimit(w.concurrency)
	}
	for _, st := range stations {
		st := st
		g.Go(func() error {
			if err := w.fetcher.WarmStation(ctx, st); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("warm %s: %w", st.Name, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	if w.logger != nil {
		w.logger.Info("station warming complete", zap.Int("stations", len(stations)), zap.Int("errors", len(errs)), zap.Float64("duration_seconds", duration))
	}
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return errors.Join(errs...)
	}
	return nil
}
