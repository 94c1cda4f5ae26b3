package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/breatheroute/wayfinder/internal/api/middleware"
)

func serveRequestID(header string) (seen, echoed string) {
	handler := middleware.RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = middleware.GetRequestID(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody)
	if header != "" {
		req.Header.Set("X-Request-Id", header)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return seen, rec.Header().Get("X-Request-Id")
}

func TestRequestID_Generates(t *testing.T) {
	seen, echoed := serveRequestID("")
	assert.True(t, strings.HasPrefix(seen, "req_"))
	assert.Equal(t, seen, echoed)
}

func TestRequestID_PreservesCallerID(t *testing.T) {
	seen, echoed := serveRequestID("gpsfeed-42")
	assert.Equal(t, "gpsfeed-42", seen)
	assert.Equal(t, "gpsfeed-42", echoed)
}

func TestRequestID_ReplacesUnsafeIDs(t *testing.T) {
	for _, bad := range []string{"has space", "tab\there", strings.Repeat("x", 129), "ünïcode"} {
		seen, _ := serveRequestID(bad)
		assert.True(t, strings.HasPrefix(seen, "req_"), "header %q", bad)
	}
}

func TestRequestID_Unique(t *testing.T) {
	ids := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, _ := serveRequestID("")
		assert.False(t, ids[id], "duplicate request ID %s", id)
		ids[id] = true
	}
}

func TestGetRequestID_Missing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	assert.Empty(t, middleware.GetRequestID(req.Context()))
}
