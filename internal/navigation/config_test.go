package navigation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/wayfinder/internal/alert"
	"github.com/breatheroute/wayfinder/internal/audio"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.InDelta(t, 6.096, cfg.ArrivalThresholdMeters, 1e-3)
	assert.Equal(t, PolicyThreshold, cfg.AlertPolicy)
	assert.Equal(t, alert.DefaultThresholds(), cfg.Thresholds)
	assert.Equal(t, DefaultBeepStartDistance, cfg.BeepStartDistance)
	assert.Equal(t, DefaultBeepPeriod, cfg.BeepPeriod)
	assert.Equal(t, audio.DefaultVoice(), cfg.Voice)
	require.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"negative arrival", Config{ArrivalThresholdMeters: -1}},
		{"unknown policy", Config{AlertPolicy: "sometimes"}},
		{"negative beep start", Config{BeepStartDistance: -5}},
		{"ramp near beyond start", Config{RampStartDistance: 10, RampNearDistance: 12}},
		{"ramp volume inverted", Config{RampMinVolume: 0.9, RampMaxVolume: 0.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.withDefaults().Validate()
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestNewSession_RejectsBadThresholds(t *testing.T) {
	_, err := NewSession(Config{Thresholds: []alert.Threshold{
		{Kind: alert.KindFar, DistanceMeters: 30},
		{Kind: alert.KindFar, DistanceMeters: 6},
	}}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorIs(t, err, alert.ErrUnknownKind)
}
