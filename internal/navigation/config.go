// Package navigation tracks a traveler along a route, completing steps as
// fixes arrive and driving speech and tone alerts for upcoming turns.
package navigation

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/wayfinder/internal/alert"
	"github.com/breatheroute/wayfinder/internal/audio"
	"github.com/breatheroute/wayfinder/internal/geo"
)

// AlertPolicy selects how turn alerts are spoken.
type AlertPolicy string

const (
	// PolicyThreshold speaks once per threshold band per step visit.
	PolicyThreshold AlertPolicy = "threshold"
	// PolicyPeriodic speaks on a fixed cadence with a distance-ramped volume.
	PolicyPeriodic AlertPolicy = "periodic"
)

// Default tuning values.
const (
	DefaultBeepStartDistance = 200.0
	DefaultBeepPeriod        = 2 * time.Second
	DefaultRampStartDistance = 30.0
	DefaultRampNearDistance  = 2.0
	DefaultRampMinVolume     = 0.2
	DefaultRampMaxVolume     = 1.0
	DefaultRampPeriod        = time.Second
)

// DefaultArrivalThreshold is 20 ft in meters.
var DefaultArrivalThreshold = geo.FeetToMeters(20)

// ErrInvalidConfig is returned for tuning values that cannot be used.
var ErrInvalidConfig = errors.New("invalid navigation config")

// Config holds the tuning for one session. Zero values take defaults.
type Config struct {
	// ArrivalThresholdMeters completes a step when the distance to its end
	// falls to or below it (default: 20 ft).
	ArrivalThresholdMeters float64

	// Thresholds for the threshold policy (default: far 100 ft, near 20 ft).
	Thresholds []alert.Threshold

	// AlertPolicy selects threshold-once or periodic alerts (default: threshold).
	AlertPolicy AlertPolicy

	// BeepStartDistance is the distance in meters where the proximity tone starts.
	BeepStartDistance float64
	BeepPeriod        time.Duration

	// ToneTurnsOnly restricts the proximity tone to turn steps.
	ToneTurnsOnly bool

	RampStartDistance float64
	RampNearDistance  float64
	RampMinVolume     float64
	RampMaxVolume     float64
	RampPeriod        time.Duration

	// Voice used for all speech (default: audio.DefaultVoice).
	Voice audio.Voice

	// Tone is the proximity tone asset, shared by reference. Nil disables the tone.
	Tone []byte

	Logger zerolog.Logger

	// Metrics is optional.
	Metrics *Metrics
}

// DefaultConfig returns a config with all defaults applied.
func DefaultConfig() Config {
	return Config{}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.ArrivalThresholdMeters == 0 {
		c.ArrivalThresholdMeters = DefaultArrivalThreshold
	}
	if len(c.Thresholds) == 0 {
		c.Thresholds = alert.DefaultThresholds()
	}
	if c.AlertPolicy == "" {
		c.AlertPolicy = PolicyThreshold
	}
	if c.BeepStartDistance == 0 {
		c.BeepStartDistance = DefaultBeepStartDistance
	}
	if c.BeepPeriod == 0 {
		c.BeepPeriod = DefaultBeepPeriod
	}
	if c.RampStartDistance == 0 {
		c.RampStartDistance = DefaultRampStartDistance
	}
	if c.RampNearDistance == 0 {
		c.RampNearDistance = DefaultRampNearDistance
	}
	if c.RampMinVolume == 0 {
		c.RampMinVolume = DefaultRampMinVolume
	}
	if c.RampMaxVolume == 0 {
		c.RampMaxVolume = DefaultRampMaxVolume
	}
	if c.RampPeriod == 0 {
		c.RampPeriod = DefaultRampPeriod
	}
	if c.Voice == (audio.Voice{}) {
		c.Voice = audio.DefaultVoice()
	}
	return c
}

// Validate reports the first unusable value.
func (c Config) Validate() error {
	switch {
	case c.ArrivalThresholdMeters < 0:
		return fmt.Errorf("%w: arrival threshold %v", ErrInvalidConfig, c.ArrivalThresholdMeters)
	case c.AlertPolicy != PolicyThreshold && c.AlertPolicy != PolicyPeriodic:
		return fmt.Errorf("%w: alert policy %q", ErrInvalidConfig, c.AlertPolicy)
	case c.BeepStartDistance < 0 || c.BeepPeriod < 0:
		return fmt.Errorf("%w: beep start %v period %v", ErrInvalidConfig, c.BeepStartDistance, c.BeepPeriod)
	case c.RampNearDistance >= c.RampStartDistance:
		return fmt.Errorf("%w: ramp near distance %v must be below start %v",
			ErrInvalidConfig, c.RampNearDistance, c.RampStartDistance)
	case c.RampMinVolume < 0 || c.RampMaxVolume > 1 || c.RampMinVolume > c.RampMaxVolume:
		return fmt.Errorf("%w: ramp volume [%v,%v]", ErrInvalidConfig, c.RampMinVolume, c.RampMaxVolume)
	}
	return nil
}
