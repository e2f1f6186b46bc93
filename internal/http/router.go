package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/station-forecast-service/internal/observability"
)

// NewRouter wires routes and middleware. Data routes are rate limited and
// bounded by requestTimeout; /, /health and /metrics are not.
func NewRouter(h *Handler, logger *zap.Logger, limiter *rate.Limiter, requestTimeout time.Duration) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)

	router.HandleFunc("/", h.GetRoot).Methods(http.MethodGet)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	limit := RateLimitMiddleware(limiter)
	timeout := TimeoutMiddleware(requestTimeout)

	router.Handle("/records", limit(timeout(http.HandlerFunc(h.GetRecords)))).Methods(http.MethodGet)

	weatherRouter := router.PathPrefix("/weather").Subrouter()
	weatherRouter.Use(limit)
	weatherRouter.Use(timeout)
	weatherRouter.HandleFunc("/{station}", h.GetWeather).Methods(http.MethodGet)
	weatherRouter.HandleFunc("/{station}/forecast", h.GetForecast).Methods(http.MethodGet)

	return router
}
