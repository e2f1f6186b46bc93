package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/station-forecast-service/internal/cache"
	"github.com/kjstillabower/station-forecast-service/internal/client"
	"github.com/kjstillabower/station-forecast-service/internal/models"
	"github.com/kjstillabower/station-forecast-service/internal/observability"
	"github.com/kjstillabower/station-forecast-service/internal/store"
	"github.com/kjstillabower/station-forecast-service/internal/validation"
)

var (
	// ErrUpstream wraps hard refill failures: transport, timeout, unusable body.
	ErrUpstream = errors.New("upstream error")
	// ErrPersistence wraps record store failures.
	ErrPersistence = errors.New("persistence error")
	// ErrUnavailable is returned by callers that need data when the refill
	// source answered with a non-success status.
	ErrUnavailable = errors.New("station data unavailable")
)

// Status tells how FetchStationData produced its result.
type Status int

const (
	// StatusHit means the stored window was fresh and no refill happened.
	StatusHit Status = iota
	// StatusRefilled means the station was refilled from upstream.
	StatusRefilled
	// StatusUnavailable means the refill source declined; Records is nil.
	StatusUnavailable
)

func (s Status) String() string {
	switch s {
	case StatusHit:
		return "hit"
	case StatusRefilled:
		return "refilled"
	case StatusUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Result is the outcome of FetchStationData. Records never carry storage ids.
type Result struct {
	Records []models.WeatherRecord
	Status  Status
}

// WeatherService answers station lookups from the completeness cache and
// refills stale stations from the daily weather API.
type WeatherService struct {
	client   client.DailyClient
	cache    *cache.StationCache
	location *time.Location
	locks    *stationLocks
	now      func() time.Time
}

// NewWeatherService creates a WeatherService. loc decides what "today" is
// (nil = UTC). lockTimeout bounds how long a caller waits behind another
// caller's refill of the same station (0 = until ctx is done).
func NewWeatherService(c client.DailyClient, sc *cache.StationCache, loc *time.Location, lockTimeout time.Duration) *WeatherService {
	if loc == nil {
		loc = time.UTC
	}
	return &WeatherService{
		client:   c,
		cache:    sc,
		location: loc,
		locks:    newStationLocks(lockTimeout),
		now:      time.Now,
	}
}

// Today returns the current time in the service timezone.
func (s *WeatherService) Today() time.Time {
	return s.now().In(s.location)
}

// FetchStationData returns the station's stored records when the last seven
// days are all observed. Otherwise it refills from upstream, replacing every
// stored row of the station, and returns the refreshed set. A non-success
// upstream answer yields StatusUnavailable with a nil error.
func (s *WeatherService) FetchStationData(ctx context.Context, station string, lat, lon float64) (Result, error) {
	key := validation.NormalizeStation(station)
	start := time.Now()
	logger := observability.LoggerFromContext(ctx).With(zap.String("station", key))

	release, concurrent, err := s.locks.Acquire(ctx, key)
	if err != nil {
		return Result{}, fmt.Errorf("wait for station %s: %w", key, err)
	}
	defer release()
	if concurrent > 1 {
		label := observability.StationLabel(key)
		observability.RefillLockWaitsTotal.WithLabelValues(label).Inc()
		observability.RefillLockConcurrency.WithLabelValues(label).Observe(float64(concurrent))
	}

	today := s.Today()
	rows, fresh, err := s.cache.Get(ctx, key, today)
	if err != nil {
		observability.StoreErrorsTotal.WithLabelValues("read").Inc()
		return Result{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if fresh {
		observability.CacheLookupsTotal.WithLabelValues("hit").Inc()
		logger.Debug("station served", zap.Bool("cached", true), zap.Duration("duration", time.Since(start)))
		return Result{Records: store.Records(rows), Status: StatusHit}, nil
	}
	observability.CacheLookupsTotal.WithLabelValues("miss").Inc()
	logger.Debug("station window incomplete, refilling", zap.Int("stored_rows", len(rows)))

	series, err := s.client.FetchDaily(ctx, lat, lon)
	if err != nil {
		category := string(client.CategorizeError(err))
		if errors.Is(err, client.ErrUpstreamUnavailable) {
			logger.Warn("refill source unavailable", zap.String("category", category), zap.Error(err))
			return Result{Status: StatusUnavailable}, nil
		}
		logger.Error("refill failed", zap.String("category", category), zap.Error(err))
		return Result{}, fmt.Errorf("%w: refill %s: %w", ErrUpstream, key, err)
	}
	if n := series.Len(); n < client.RefillDays {
		return Result{}, fmt.Errorf("%w: refill %s: %d daily entries, need %d", ErrUpstream, key, n, client.RefillDays)
	}

	records := series.Records(key)
	if skipped := client.RefillDays - len(records); skipped > 0 {
		logger.Warn("refill days with null values not stored", zap.Int("skipped", skipped))
	}
	if err := s.cache.Put(ctx, key, records); err != nil {
		observability.StoreErrorsTotal.WithLabelValues("write").Inc()
		return Result{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	rows, err = s.cache.Read(ctx, key)
	if err != nil {
		observability.StoreErrorsTotal.WithLabelValues("read").Inc()
		return Result{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	logger.Info("station refilled", zap.Int("rows", len(rows)), zap.Duration("duration", time.Since(start)))
	return Result{Records: store.Records(rows), Status: StatusRefilled}, nil
}

// WarmStation brings one station's window up to date. Implements cache.StationFetcher.
func (s *WeatherService) WarmStation(ctx context.Context, st models.Station) error {
	res, err := s.FetchStationData(ctx, st.Name, st.Lat, st.Lon)
	if err != nil {
		return err
	}
	if res.Status == StatusUnavailable {
		return ErrUnavailable
	}
	return nil
}
