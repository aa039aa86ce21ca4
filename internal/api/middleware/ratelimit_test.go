package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nearair/nearair/internal/api/middleware"
)

func limited(limit int) http.Handler {
	return middleware.RateLimitByIP(middleware.RateLimitConfig{
		RequestLimit: limit,
		WindowLength: time.Minute,
	})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func hit(handler http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/reset", http.NoBody)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitByIP_BlocksOverLimit(t *testing.T) {
	handler := limited(3)

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, hit(handler, "10.0.0.1:12345").Code, "request %d", i+1)
	}

	rec := hit(handler, "10.0.0.1:12345")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "Rate limit exceeded")
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestRateLimitByIP_SeparateClients(t *testing.T) {
	handler := limited(1)

	assert.Equal(t, http.StatusOK, hit(handler, "172.16.0.1:1").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(handler, "172.16.0.1:2").Code)
	assert.Equal(t, http.StatusOK, hit(handler, "172.16.0.2:1").Code)
}

func TestRateLimitDefaults(t *testing.T) {
	assert.Less(t, middleware.CommandRateLimit.RequestLimit, middleware.ReadRateLimit.RequestLimit)
	assert.Equal(t, time.Minute, middleware.CommandRateLimit.WindowLength)
}
