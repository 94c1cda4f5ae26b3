package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/breatheroute/wayfinder/internal/api/middleware"
)

func okHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func serveFrom(h http.Handler, remoteAddr, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/navigation/sessions/abc/fixes", http.NoBody)
	req.RemoteAddr = remoteAddr
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitByIP(t *testing.T) {
	cfg := middleware.RateLimitConfig{RequestLimit: 2, WindowLength: time.Minute}
	handler := middleware.RateLimitByIP(cfg)(http.HandlerFunc(okHandler))

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, serveFrom(handler, "10.0.0.1:1234", "").Code, "request %d", i+1)
	}

	rec := serveFrom(handler, "10.0.0.1:1234", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "Rate limit exceeded")
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	assert.Equal(t, http.StatusOK, serveFrom(handler, "10.0.0.2:1234", "").Code)
}

func TestRateLimitByDevice(t *testing.T) {
	cfg := middleware.RateLimitConfig{RequestLimit: 1, WindowLength: 30 * time.Second}
	handler := middleware.Auth(stubValidator{})(middleware.RateLimitByDevice(cfg)(http.HandlerFunc(okHandler)))

	// Same device from two addresses shares one budget.
	assert.Equal(t, http.StatusOK, serveFrom(handler, "10.0.1.1:1", "good").Code)
	rec := serveFrom(handler, "10.0.1.2:1", "good")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
}

func TestRateLimitByDevice_FallsBackToIP(t *testing.T) {
	cfg := middleware.RateLimitConfig{RequestLimit: 1, WindowLength: time.Minute}
	handler := middleware.RateLimitByDevice(cfg)(http.HandlerFunc(okHandler))

	assert.Equal(t, http.StatusOK, serveFrom(handler, "10.0.2.1:1", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, serveFrom(handler, "10.0.2.1:1", "").Code)
	assert.Equal(t, http.StatusOK, serveFrom(handler, "10.0.2.2:1", "").Code)
}

func TestDefaultRateLimits(t *testing.T) {
	assert.Greater(t, middleware.FixRateLimit.RequestLimit, 10*60, "10 Hz receivers must fit")
	assert.Less(t, middleware.SessionRateLimit.RequestLimit, middleware.StandardRateLimit.RequestLimit)
}
