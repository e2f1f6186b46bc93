package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/station-forecast-service/internal/forecast"
	"github.com/kjstillabower/station-forecast-service/internal/models"
	"github.com/kjstillabower/station-forecast-service/internal/observability"
	"github.com/kjstillabower/station-forecast-service/internal/store"
	"github.com/kjstillabower/station-forecast-service/internal/validation"
)

// ForecastService runs the forecast engine on a station's recent observations
// and persists the predicted days.
type ForecastService struct {
	weather *WeatherService
	engine  *forecast.Engine
	store   store.Store
}

// NewForecastService creates a ForecastService. Predicted records are written to s.
func NewForecastService(weather *WeatherService, engine *forecast.Engine, s store.Store) *ForecastService {
	return &ForecastService{weather: weather, engine: engine, store: s}
}

// Forecast returns seven predicted days for the station. Only the observed
// days today-6 through today are fitted; if any of them is missing or fails
// cleaning the result is forecast.ErrInsufficientData. Every predicted record
// is stored before returning.
func (f *ForecastService) Forecast(ctx context.Context, station string, lat, lon float64) ([]models.WeatherRecord, error) {
	logger := observability.LoggerFromContext(ctx)

	res, err := f.weather.FetchStationData(ctx, station, lat, lon)
	if err != nil {
		observability.ForecastsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if res.Status == StatusUnavailable {
		observability.ForecastsTotal.WithLabelValues("unavailable").Inc()
		return nil, fmt.Errorf("forecast %s: %w", validation.NormalizeStation(station), ErrUnavailable)
	}

	today := f.weather.Today()
	observed := observedWindow(res.Records, today)
	cleaned := validation.CleanRecords(observed)
	if dropped := len(observed) - len(cleaned); dropped > 0 {
		observability.RecordsDroppedTotal.Add(float64(dropped))
		logger.Warn("dropped invalid records before forecast", zap.Int("dropped", dropped))
	}
	if len(cleaned) < forecast.Window {
		observability.ForecastsTotal.WithLabelValues("insufficient_data").Inc()
		return nil, fmt.Errorf("%w: %d valid days in %s..%s, need %d", forecast.ErrInsufficientData,
			len(cleaned), models.Day(today.AddDate(0, 0, 1-forecast.Window)), models.Day(today), forecast.Window)
	}

	predicted, err := f.engine.Forecast(cleaned, today)
	if err != nil {
		if errors.Is(err, forecast.ErrInsufficientData) {
			observability.ForecastsTotal.WithLabelValues("insufficient_data").Inc()
		} else {
			observability.ForecastsTotal.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	for _, r := range predicted {
		if err := f.store.Insert(ctx, r); err != nil {
			observability.StoreErrorsTotal.WithLabelValues("write").Inc()
			observability.ForecastsTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("%w: store forecast %s: %w", ErrPersistence, r.Time, err)
		}
	}

	observability.ForecastsTotal.WithLabelValues("success").Inc()
	logger.Info("forecast stored", zap.String("station", predicted[0].Station), zap.Int("days", len(predicted)))
	return predicted, nil
}

// observedWindow returns the observed records for the forecast.Window days
// ending today, one per day (the first seen), oldest first. Missing days are
// simply absent, so a short result means the week has a gap.
func observedWindow(records []models.WeatherRecord, today time.Time) []models.WeatherRecord {
	first := models.Day(today.AddDate(0, 0, 1-forecast.Window))
	last := models.Day(today)
	seen := make(map[string]struct{}, forecast.Window)
	out := make([]models.WeatherRecord, 0, forecast.Window)
	for _, r := range records {
		if r.Predicted || r.Time < first || r.Time > last {
			continue
		}
		if _, dup := seen[r.Time]; dup {
			continue
		}
		seen[r.Time] = struct{}{}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}
