package models_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/wayfinder/internal/api/models"
)

func fields(errs []models.FieldError) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Field)
	}
	return out
}

func TestCreateSessionRequest_Validate(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{"valid", `{"origin":{"lat":52.37,"lon":4.89},"destination":{"lat":52.36,"lon":4.90}}`, []string{}},
		{"missing both", `{}`, []string{"origin", "destination"}},
		{"out of range", `{"origin":{"lat":91,"lon":4.89},"destination":{"lat":52.36,"lon":-181}}`, []string{"origin.lat", "destination.lon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req models.CreateSessionRequest
			require.NoError(t, json.Unmarshal([]byte(tt.body), &req))
			assert.Equal(t, tt.want, fields(req.Validate()))
		})
	}
}

func TestFixRequest_Validate(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{"valid", `{"lat":0,"lon":0}`, []string{}},
		{"missing", `{}`, []string{"lat", "lon"}},
		{"range", `{"lat":-90.5,"lon":180.5,"accuracy":-1}`, []string{"lat", "lon", "accuracy"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req models.FixRequest
			require.NoError(t, json.Unmarshal([]byte(tt.body), &req))
			assert.Equal(t, tt.want, fields(req.Validate()))
		})
	}
}

func TestTimestamp_JSON(t *testing.T) {
	var req models.FixRequest
	require.NoError(t, json.Unmarshal([]byte(`{"lat":1,"lon":2,"timestamp":"2026-03-01T08:30:00Z"}`), &req))
	require.NotNil(t, req.Timestamp)
	assert.Equal(t, time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC), req.Timestamp.Time())

	out, err := json.Marshal(req.Timestamp)
	require.NoError(t, err)
	assert.JSONEq(t, `"2026-03-01T08:30:00Z"`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"timestamp":12}`), &req))
	assert.Error(t, json.Unmarshal([]byte(`{"timestamp":"yesterday"}`), &req))
}
