package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/kjstillabower/station-forecast-service/internal/models"
	"github.com/kjstillabower/station-forecast-service/internal/observability"
)

// DailyClient fetches the daily observation series used to refill a station.
type DailyClient interface {
	FetchDaily(ctx context.Context, lat, lon float64) (DailySeries, error)
}

var (
	// ErrUpstreamUnavailable means the provider answered with a non-success
	// status or the breaker is open. Callers treat it as a soft failure.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrUpstreamTransport covers network failures, timeouts and unusable bodies.
	ErrUpstreamTransport = errors.New("upstream transport failure")
	ErrInvalidConfig     = errors.New("invalid client configuration")
)

// StatusError reports the HTTP status of a non-success upstream response.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d", ErrUpstreamUnavailable, e.StatusCode)
}

func (e *StatusError) Unwrap() error { return ErrUpstreamUnavailable }

const (
	// PastDays and ForecastDays shape the requested window: today-7 through today+1.
	PastDays     = 7
	ForecastDays = 2
	// RefillDays is how many leading entries are persisted: today-7 through today.
	RefillDays = PastDays + 1

	dailyFields = "temperature_2m_max,temperature_2m_min,precipitation_sum,wind_speed_10m_max"
)

// Config holds connection, retry and breaker settings for OpenMeteoClient.
type Config struct {
	URL      string
	Timezone string
	Timeout  time.Duration

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	BreakerFailureThreshold int
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenRequests int
}

// OpenMeteoClient calls the Open-Meteo daily forecast endpoint.
type OpenMeteoClient struct {
	apiURL         string
	timezone       string
	timeout        time.Duration
	client         *http.Client
	breaker        *gobreaker.CircuitBreaker
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
}

// NewOpenMeteoClient validates cfg and fills defaults: one attempt, breaker
// opening after 5 consecutive failures for 30s.
func NewOpenMeteoClient(cfg Config) (*OpenMeteoClient, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: API URL is required", ErrInvalidConfig)
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("%w: invalid API URL: %v", ErrInvalidConfig, err)
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Europe/Berlin"
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 1
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 100 * time.Millisecond
	}
	if cfg.RetryMaxDelay < cfg.RetryBaseDelay {
		cfg.RetryMaxDelay = cfg.RetryBaseDelay
	}
	if cfg.BreakerFailureThreshold <= 0 {
		cfg.BreakerFailureThreshold = 5
	}
	if cfg.BreakerOpenTimeout <= 0 {
		cfg.BreakerOpenTimeout = 30 * time.Second
	}
	if cfg.BreakerHalfOpenRequests <= 0 {
		cfg.BreakerHalfOpenRequests = 1
	}

	threshold := uint32(cfg.BreakerFailureThreshold)
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "open-meteo",
		MaxRequests: uint32(cfg.BreakerHalfOpenRequests),
		Timeout:     cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(_ string, _, to gobreaker.State) {
			observability.CircuitBreakerState.Set(float64(to))
		},
	})

	return &OpenMeteoClient{
		apiURL:         cfg.URL,
		timezone:       cfg.Timezone,
		timeout:        cfg.Timeout,
		breaker:        breaker,
		retryAttempts:  cfg.RetryAttempts,
		retryBaseDelay: cfg.RetryBaseDelay,
		retryMaxDelay:  cfg.RetryMaxDelay,
		client:         &http.Client{},
	}, nil
}

type openMeteoResponse struct {
	Daily DailySeries `json:"daily"`
}

// DailySeries is the column-oriented daily block of an Open-Meteo response.
type DailySeries struct {
	Time             []string  `json:"time"`
	TemperatureMax   []float64 `json:"temperature_2m_max"`
	TemperatureMin   []float64 `json:"temperature_2m_min"`
	PrecipitationSum []float64 `json:"precipitation_sum"`
	WindSpeedMax     []float64 `json:"wind_speed_10m_max"`

	// nulls marks days where the provider sent null for any metric.
	nulls []bool
}

// UnmarshalJSON decodes the columns, recording which days carried a null.
// Null values read as 0 in the columns; Records skips those days.
func (d *DailySeries) UnmarshalJSON(b []byte) error {
	var raw struct {
		Time             []string   `json:"time"`
		TemperatureMax   []*float64 `json:"temperature_2m_max"`
		TemperatureMin   []*float64 `json:"temperature_2m_min"`
		PrecipitationSum []*float64 `json:"precipitation_sum"`
		WindSpeedMax     []*float64 `json:"wind_speed_10m_max"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*d = DailySeries{Time: raw.Time}
	d.TemperatureMax = d.column(raw.TemperatureMax)
	d.TemperatureMin = d.column(raw.TemperatureMin)
	d.PrecipitationSum = d.column(raw.PrecipitationSum)
	d.WindSpeedMax = d.column(raw.WindSpeedMax)
	return nil
}

func (d *DailySeries) column(in []*float64) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		if v == nil {
			for len(d.nulls) <= i {
				d.nulls = append(d.nulls, false)
			}
			d.nulls[i] = true
			continue
		}
		out[i] = *v
	}
	return out
}

// HasNull reports whether day i carried a null for any metric.
func (d DailySeries) HasNull(i int) bool {
	return i < len(d.nulls) && d.nulls[i]
}

// Len returns the number of complete days: the shortest column.
func (d DailySeries) Len() int {
	n := len(d.Time)
	for _, col := range [][]float64{d.TemperatureMax, d.TemperatureMin, d.PrecipitationSum, d.WindSpeedMax} {
		if len(col) < n {
			n = len(col)
		}
	}
	return n
}

// Records converts the first RefillDays entries into observed records for
// station. Days with a null metric are left out so they never count as observed.
func (d DailySeries) Records(station string) []models.WeatherRecord {
	n := min(d.Len(), RefillDays)
	out := make([]models.WeatherRecord, 0, n)
	for i := 0; i < n; i++ {
		if d.HasNull(i) {
			continue
		}
		out = append(out, models.WeatherRecord{
			Time:             d.Time[i],
			TemperatureMax:   d.TemperatureMax[i],
			TemperatureMin:   d.TemperatureMin[i],
			PrecipitationSum: d.PrecipitationSum[i],
			WindSpeed:        d.WindSpeedMax[i],
			Station:          station,
		})
	}
	return out
}

// FetchDaily returns today-7 through today+1 for the coordinates.
func (c *OpenMeteoClient) FetchDaily(ctx context.Context, lat, lon float64) (DailySeries, error) {
	var lastErr error

	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.RefillRetriesTotal.Inc()
			delay := c.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return DailySeries{}, fmt.Errorf("%w: %w", ErrUpstreamTransport, ctx.Err())
			case <-time.After(delay):
			}
		}

		series, err := c.execute(ctx, lat, lon)
		if err == nil {
			return series, nil
		}

		lastErr = err
		if !c.isRetryable(ctx, err) {
			return DailySeries{}, err
		}
	}

	if c.retryAttempts > 1 {
		return DailySeries{}, fmt.Errorf("exhausted retries: %w", lastErr)
	}
	return DailySeries{}, lastErr
}

func (c *OpenMeteoClient) execute(ctx context.Context, lat, lon float64) (DailySeries, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.callAPI(ctx, lat, lon)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		observability.RefillCallsTotal.WithLabelValues("circuit_open").Inc()
		return DailySeries{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if err != nil {
		return DailySeries{}, err
	}
	return out.(DailySeries), nil
}

func (c *OpenMeteoClient) callAPI(ctx context.Context, lat, lon float64) (DailySeries, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, lat, lon)
	if err != nil {
		observability.RefillCallsTotal.WithLabelValues("error").Inc()
		return DailySeries{}, fmt.Errorf("%w: build request: %w", ErrUpstreamTransport, err)
	}

	if corrID := observability.CorrelationIDFromContext(ctx); corrID != "" {
		req.Header.Set(observability.CorrelationIDHeader, corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.RefillCallsTotal.WithLabelValues("error").Inc()
		observability.RefillDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		return DailySeries{}, fmt.Errorf("%w: %w", ErrUpstreamTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		observability.RefillCallsTotal.WithLabelValues("unavailable").Inc()
		observability.RefillDuration.WithLabelValues("unavailable").Observe(time.Since(start).Seconds())
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return DailySeries{}, &StatusError{StatusCode: resp.StatusCode}
	}

	var payload openMeteoResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		observability.RefillCallsTotal.WithLabelValues("error").Inc()
		return DailySeries{}, fmt.Errorf("%w: parse response: %w", ErrUpstreamTransport, err)
	}
	if n := payload.Daily.Len(); n < RefillDays {
		observability.RefillCallsTotal.WithLabelValues("error").Inc()
		return DailySeries{}, fmt.Errorf("%w: short response: %d daily entries, need %d", ErrUpstreamTransport, n, RefillDays)
	}

	observability.RefillCallsTotal.WithLabelValues("success").Inc()
	observability.RefillDuration.WithLabelValues("success").Observe(time.Since(start).Seconds())
	return payload.Daily, nil
}

// isRetryable reports whether another attempt may succeed: transport
// failures, 429 and 5xx. Never retries once the caller's context is done.
func (c *OpenMeteoClient) isRetryable(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

func (c *OpenMeteoClient) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func (c *OpenMeteoClient) buildRequest(ctx context.Context, lat, lon float64) (*http.Request, error) {
	baseURL, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("daily", dailyFields)
	params.Set("timezone", c.timezone)
	params.Set("past_days", strconv.Itoa(PastDays))
	params.Set("forecast_days", strconv.Itoa(ForecastDays))
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}
