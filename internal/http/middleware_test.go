package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/station-forecast-service/internal/observability"
	"github.com/kjstillabower/station-forecast-service/internal/traffic"
)

func TestCorrelationIDMiddleware(t *testing.T) {
	var seen string
	handler := CorrelationIDMiddleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = observability.CorrelationIDFromContext(r.Context())
	}))

	t.Run("reuses incoming id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(observability.CorrelationIDHeader, "abc-123")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, "abc-123", seen)
		assert.Equal(t, "abc-123", rec.Header().Get(observability.CorrelationIDHeader))
	})

	t.Run("mints id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Len(t, seen, 36)
		assert.Equal(t, seen, rec.Header().Get(observability.CorrelationIDHeader))
	})
}

func TestTimeoutMiddleware_SetsDeadline(t *testing.T) {
	var hasDeadline bool
	handler := TimeoutMiddleware(50 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasDeadline = r.Context().Deadline()
		<-r.Context().Done()
		assert.ErrorIs(t, r.Context().Err(), context.DeadlineExceeded)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, hasDeadline)
}

func TestRateLimitMiddleware(t *testing.T) {
	traffic.Reset()
	defer traffic.Reset()

	limiter := rate.NewLimiter(rate.Limit(1), 1)
	handler := RateLimitMiddleware(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/weather/stuttgart", nil))
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/weather/stuttgart", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	code, _ := decodeError(t, second)
	assert.Equal(t, "RATE_LIMITED", code)
	assert.Equal(t, 1, traffic.DenialCount(time.Minute))
}

func TestRateLimitMiddleware_NilLimiter(t *testing.T) {
	called := 0
	handler := RateLimitMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called++ }))
	for i := 0; i < 5; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}
	assert.Equal(t, 5, called)
}

func TestGetRoute(t *testing.T) {
	router := mux.NewRouter()
	var route string
	capture := func(w http.ResponseWriter, r *http.Request) { route = getRoute(r) }
	router.HandleFunc("/weather/{station}", capture)
	router.HandleFunc("/weather/{station}/forecast", capture)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/weather/stuttgart", nil))
	assert.Equal(t, "/weather/{station}", route)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/weather/stuttgart/forecast", nil))
	assert.Equal(t, "/weather/{station}/forecast", route)

	assert.Equal(t, "/weather/{station}/forecast", getRoute(httptest.NewRequest(http.MethodGet, "/weather/x/forecast", nil)))
	assert.Equal(t, "/records", getRoute(httptest.NewRequest(http.MethodGet, "/records", nil)))
}

func TestStatusCodeString(t *testing.T) {
	assert.Equal(t, "2xx", statusCodeString(200))
	assert.Equal(t, "4xx", statusCodeString(429))
	assert.Equal(t, "5xx", statusCodeString(503))
}
