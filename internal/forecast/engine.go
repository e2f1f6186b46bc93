// Package forecast extrapolates the next week of daily weather from the last
// week of observations.
package forecast

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/station-forecast-service/internal/models"
)

const (
	// Window is the number of most recent observed days the engine fits on.
	Window = 7
	// Horizon is the number of days predicted per run.
	Horizon = 7
)

// ErrInsufficientData is returned when fewer than Window records are supplied.
var ErrInsufficientData = errors.New("insufficient data for forecast")

// Engine produces predicted records from observed ones. Safe for concurrent use.
type Engine struct {
	logger *zap.Logger
}

// NewEngine returns an engine that logs at debug level through logger.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger}
}

// Forecast fits each metric independently on the last Window records of
// observed (ordered oldest first) and returns Horizon predicted records dated
// today+1 through today+Horizon. Precipitation and wind never go below zero.
// Values are rounded to one decimal.
func (e *Engine) Forecast(observed []models.WeatherRecord, today time.Time) ([]models.WeatherRecord, error) {
	if len(observed) < Window {
		return nil, fmt.Errorf("%w: have %d days, need %d", ErrInsufficientData, len(observed), Window)
	}
	recent := observed[len(observed)-Window:]

	column := func(get func(models.WeatherRecord) float64) []float64 {
		out := make([]float64, len(recent))
		for i, r := range recent {
			out[i] = get(r)
		}
		return out
	}
	tmax := NewState(column(func(r models.WeatherRecord) float64 { return r.TemperatureMax }), false)
	tmin := NewState(column(func(r models.WeatherRecord) float64 { return r.TemperatureMin }), false)
	precip := NewState(column(func(r models.WeatherRecord) float64 { return r.PrecipitationSum }), true)
	wind := NewState(column(func(r models.WeatherRecord) float64 { return r.WindSpeed }), true)

	station := recent[len(recent)-1].Station
	out := make([]models.WeatherRecord, 0, Horizon)
	for d := 1; d <= Horizon; d++ {
		out = append(out, models.WeatherRecord{
			Time:             models.Day(today.AddDate(0, 0, d)),
			TemperatureMax:   round1(tmax.Step()),
			TemperatureMin:   round1(tmin.Step()),
			PrecipitationSum: round1(precip.Step()),
			WindSpeed:        round1(wind.Step()),
			Station:          station,
			Predicted:        true,
		})
	}

	e.logger.Debug("forecast computed",
		zap.String("station", station),
		zap.String("from", out[0].Time),
		zap.String("to", out[len(out)-1].Time),
	)
	return out, nil
}

// round1 rounds to one decimal on the exact binary value, so 0.35 (stored
// just below 0.35) gives 0.3 and exact ties go to even. Negative zero becomes 0.
func round1(v float64) float64 {
	r, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 1, 64), 64)
	if r == 0 {
		return 0
	}
	return r
}
