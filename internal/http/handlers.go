package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/station-forecast-service/internal/forecast"
	"github.com/kjstillabower/station-forecast-service/internal/lifecycle"
	"github.com/kjstillabower/station-forecast-service/internal/models"
	"github.com/kjstillabower/station-forecast-service/internal/observability"
	"github.com/kjstillabower/station-forecast-service/internal/service"
	"github.com/kjstillabower/station-forecast-service/internal/store"
	"github.com/kjstillabower/station-forecast-service/internal/traffic"
	"github.com/kjstillabower/station-forecast-service/internal/validation"
)

// StationFetcher is satisfied by service.WeatherService.
type StationFetcher interface {
	FetchStationData(ctx context.Context, station string, lat, lon float64) (service.Result, error)
}

// Forecaster is satisfied by service.ForecastService.
type Forecaster interface {
	Forecast(ctx context.Context, station string, lat, lon float64) ([]models.WeatherRecord, error)
}

// RecordStore is the read side of store.Store used for listings and health.
type RecordStore interface {
	FetchAll(ctx context.Context) ([]store.Row, error)
	FetchByStation(ctx context.Context, station string) ([]store.Row, error)
	Ping(ctx context.Context) error
}

// StationRegistry resolves configured station names to coordinates.
type StationRegistry interface {
	Station(name string) (models.Station, bool)
}

// HealthConfig holds thresholds for the health handler.
type HealthConfig struct {
	Window       time.Duration
	ErrorPct     int
	RateLimitRPS int
	OverloadPct  int
	StartTime    time.Time
	Version      string
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	weather          StationFetcher
	forecaster       Forecaster
	records          RecordStore
	stations         StationRegistry
	healthConfig     *HealthConfig
	logger           *zap.Logger
	maxStationLen    int
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. maxStationLen bounds station path segments (0 = 100).
func NewHandler(
	weather StationFetcher,
	forecaster Forecaster,
	records RecordStore,
	stations StationRegistry,
	healthConfig *HealthConfig,
	logger *zap.Logger,
	maxStationLen int,
) *Handler {
	if maxStationLen <= 0 {
		maxStationLen = 100
	}
	return &Handler{
		weather:       weather,
		forecaster:    forecaster,
		records:       records,
		stations:      stations,
		healthConfig:  healthConfig,
		logger:        logger,
		maxStationLen: maxStationLen,
	}
}

// GetRoot handles GET /.
func (h *Handler) GetRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintln(w, "Welcome to the station weather and forecast service. Try /weather/{station} or /weather/{station}/forecast.")
}

// GetWeather handles GET /weather/{station}?lat=&lon=.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	st, ok := h.resolveStation(w, r)
	if !ok {
		return
	}

	observability.RecordStationQuery(st.Name)
	res, err := h.weather.FetchStationData(r.Context(), st.Name, st.Lat, st.Lon)
	if err != nil {
		traffic.RecordError()
		writeServiceError(w, r, err)
		return
	}
	if res.Status == service.StatusUnavailable {
		traffic.RecordError()
		writeServiceError(w, r, service.ErrUnavailable)
		return
	}
	traffic.RecordSuccess()
	w.Header().Set("X-Cache-Status", res.Status.String())
	writeJSON(w, http.StatusOK, res.Records)
}

// GetForecast handles GET /weather/{station}/forecast?lat=&lon=.
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	st, ok := h.resolveStation(w, r)
	if !ok {
		return
	}

	observability.RecordStationQuery(st.Name)
	predicted, err := h.forecaster.Forecast(r.Context(), st.Name, st.Lat, st.Lon)
	if err != nil {
		if !errors.Is(err, forecast.ErrInsufficientData) {
			traffic.RecordError()
		}
		writeServiceError(w, r, err)
		return
	}
	traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, predicted)
}

// GetRecords handles GET /records[?station=]. Storage ids are not exposed.
func (h *Handler) GetRecords(w http.ResponseWriter, r *http.Request) {
	var (
		rows []store.Row
		err  error
	)
	if raw := r.URL.Query().Get("station"); raw != "" {
		name, verr := validation.ValidateStation(raw, 1, h.maxStationLen)
		if verr != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_STATION", verr.Error())
			return
		}
		rows, err = h.records.FetchByStation(r.Context(), validation.NormalizeStation(name))
	} else {
		rows, err = h.records.FetchAll(r.Context())
	}
	if err != nil {
		observability.StoreErrorsTotal.WithLabelValues("read").Inc()
		writeServiceError(w, r, fmt.Errorf("%w: %w", service.ErrPersistence, err))
		return
	}
	writeJSON(w, http.StatusOK, store.Records(rows))
}

// resolveStation validates the path station and picks coordinates: both lat
// and lon from the query, else the configured registry entry. Writes a 400
// and returns false when neither works.
func (h *Handler) resolveStation(w http.ResponseWriter, r *http.Request) (models.Station, bool) {
	name, err := validation.ValidateStation(mux.Vars(r)["station"], 1, h.maxStationLen)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_STATION", err.Error())
		return models.Station{}, false
	}
	name = validation.NormalizeStation(name)

	q := r.URL.Query()
	latRaw, lonRaw := strings.TrimSpace(q.Get("lat")), strings.TrimSpace(q.Get("lon"))
	if latRaw == "" && lonRaw == "" {
		if h.stations != nil {
			if st, ok := h.stations.Station(name); ok {
				return st, true
			}
		}
		writeError(w, r, http.StatusBadRequest, "INVALID_COORDINATES", "lat and lon are required for unconfigured station "+name)
		return models.Station{}, false
	}

	lat, latErr := strconv.ParseFloat(latRaw, 64)
	lon, lonErr := strconv.ParseFloat(lonRaw, 64)
	if latErr != nil || lonErr != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_COORDINATES", "lat and lon must both be decimal numbers")
		return models.Station{}, false
	}
	if err := validation.ValidateCoordinates(lat, lon); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_COORDINATES", err.Error())
		return models.Station{}, false
	}
	return models.Station{Name: name, Lat: lat, Lon: lon}, true
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"store": "healthy"}
	storeErr := h.pingStore(r.Context())
	if storeErr != nil {
		checks["store"] = "unhealthy"
	}
	result := h.computeHealthStatus(storeErr)
	if result.status == "shutting-down" {
		checks["draining_for"] = lifecycle.DrainingFor().Truncate(time.Millisecond).String()
	}

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	version := "dev"
	var uptime time.Duration
	if h.healthConfig != nil {
		if h.healthConfig.Version != "" {
			version = h.healthConfig.Version
		}
		if !h.healthConfig.StartTime.IsZero() {
			uptime = time.Since(h.healthConfig.StartTime).Truncate(time.Second)
		}
	}
	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":    result.status,
		"service":   observability.ServiceName,
		"version":   version,
		"uptime":    uptime.String(),
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) pingStore(ctx context.Context) error {
	if h.records == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return h.records.Ping(ctx)
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > store unreachable > overloaded > degraded > healthy.
func (h *Handler) computeHealthStatus(storeErr error) healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if storeErr != nil {
		return healthResult{"degraded", http.StatusServiceUnavailable, "store_unreachable"}
	}
	if h.healthConfig == nil || h.healthConfig.Window <= 0 {
		return healthResult{"healthy", http.StatusOK, ""}
	}
	cfg := h.healthConfig
	if cfg.RateLimitRPS > 0 && cfg.OverloadPct > 0 {
		threshold := float64(cfg.RateLimitRPS) * cfg.Window.Seconds() * float64(cfg.OverloadPct) / 100
		if float64(traffic.RequestCount(cfg.Window)) > threshold {
			return healthResult{"overloaded", http.StatusServiceUnavailable, "overload_threshold"}
		}
	}
	if cfg.ErrorPct > 0 {
		errCount, total := traffic.ErrorRate(cfg.Window)
		if total > 0 && float64(errCount)*100/float64(total) >= float64(cfg.ErrorPct) {
			return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the standard error body with code, message and the request correlation id.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationIDFromContext(r.Context()),
		},
	})
}

// writeServiceError maps service sentinels to status codes and logs the cause.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := http.StatusInternalServerError, "INTERNAL_ERROR", "Internal error"
	switch {
	case errors.Is(err, service.ErrUnavailable):
		status, code, msg = http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Weather provider is unavailable"
	case errors.Is(err, service.ErrUpstream):
		status, code, msg = http.StatusBadGateway, "UPSTREAM_ERROR", "Unable to fetch weather data"
	case errors.Is(err, service.ErrPersistence):
		status, code, msg = http.StatusInternalServerError, "PERSISTENCE_ERROR", "Unable to access stored weather data"
	case errors.Is(err, forecast.ErrInsufficientData):
		status, code, msg = http.StatusUnprocessableEntity, "INSUFFICIENT_DATA", "Not enough observed days to forecast"
	case errors.Is(err, context.DeadlineExceeded):
		status, code, msg = http.StatusGatewayTimeout, "TIMEOUT", "Request timed out"
	}
	writeError(w, r, status, code, msg)

	logger := observability.LoggerFromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Warn("request failed", zap.String("code", code), zap.Error(err))
	} else {
		logger.Debug("request rejected", zap.String("code", code), zap.Error(err))
	}
}
