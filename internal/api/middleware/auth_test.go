package middleware_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/wayfinder/internal/api/middleware"
	"github.com/breatheroute/wayfinder/internal/api/models"
	"github.com/breatheroute/wayfinder/internal/auth"
)

// stubValidator accepts "good" for phone-1 and maps other tokens to errors.
type stubValidator struct{}

func (stubValidator) ValidateAccessToken(token string) (string, error) {
	switch token {
	case "good":
		return "phone-1", nil
	case "expired":
		return "", auth.ErrAccessTokenExpired
	case "broken":
		return "", errors.New("keystore offline")
	default:
		return "", auth.ErrInvalidAccessToken
	}
}

func authHandler(seen *string) http.Handler {
	return middleware.Auth(stubValidator{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*seen = middleware.GetDeviceID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
}

func TestAuth_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		header string
		detail string
	}{
		{"missing header", "", "missing authorization header"},
		{"wrong scheme", "Basic abc", "invalid authorization header format"},
		{"empty token", "Bearer   ", "missing bearer token"},
		{"invalid", "Bearer nope", "invalid access token"},
		{"expired", "Bearer expired", "access token has expired"},
		{"other error", "Bearer broken", "authentication failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			req := httptest.NewRequest(http.MethodGet, "/v1/navigation/sessions", http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			authHandler(&seen).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
			var p models.Problem
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
			assert.Equal(t, tt.detail, p.Detail)
			assert.Equal(t, "/v1/navigation/sessions", p.Instance)
			assert.Empty(t, seen)
		})
	}
}

func TestAuth_SetsDeviceID(t *testing.T) {
	var seen string
	req := httptest.NewRequest(http.MethodGet, "/v1/navigation/sessions", http.NoBody)
	req.Header.Set("Authorization", "bearer good")
	rec := httptest.NewRecorder()

	authHandler(&seen).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "phone-1", seen)
}

func TestAuth_QueryTokenOnlyForUpgrades(t *testing.T) {
	var seen string

	req := httptest.NewRequest(http.MethodGet, "/v1/navigation/sessions/abc/stream?access_token=good", http.NoBody)
	rec := httptest.NewRecorder()
	authHandler(&seen).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/navigation/sessions/abc/stream?access_token=good", http.NoBody)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	rec = httptest.NewRecorder()
	authHandler(&seen).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "phone-1", seen)
}

func TestGetDeviceID_Empty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	assert.Empty(t, middleware.GetDeviceID(req.Context()))
	assert.Equal(t, "gps-1", middleware.GetDeviceID(middleware.WithDeviceID(req.Context(), "gps-1")))
}
