// Package audio defines the speech and tone capability used for navigation
// alerts, plus implementations that relay to a phone or log locally.
package audio

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// ErrAudioFailure indicates a speech or tone request that could not be delivered.
var ErrAudioFailure = errors.New("audio delivery failed")

// Announcer speaks text and plays tones. Implementations may block; callers
// that must not block wrap them in a Dispatcher.
type Announcer interface {
	Speak(ctx context.Context, text string, voice Voice) error
	PlayTone(ctx context.Context, tone []byte, volume float64) error
}

// Voice carries synthesis parameters for a speech request.
type Voice struct {
	Language string  `json:"language,omitempty"`
	Rate     float64 `json:"rate,omitempty"`
	// Volume is in [0,1].
	Volume float64 `json:"volume"`
}

// DefaultVoice is full-volume English at normal rate.
func DefaultVoice() Voice {
	return Voice{Language: "en-US", Rate: 1.0, Volume: 1.0}
}

// WithVolume returns a copy of v at the given volume, clamped to [0,1].
func (v Voice) WithVolume(volume float64) Voice {
	v.Volume = ClampVolume(volume)
	return v
}

// ClampVolume bounds a volume to [0,1].
func ClampVolume(v float64) float64 {
	switch {
	case v < 0 || v != v: // NaN compares unequal to itself
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// Failure wraps an underlying delivery error so errors.Is(err, ErrAudioFailure) holds.
type Failure struct {
	Op  string // "speak" or "tone"
	Err error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("audio %s: %v", f.Op, f.Err)
}

func (f *Failure) Unwrap() []error {
	return []error{ErrAudioFailure, f.Err}
}

// LogAnnouncer writes announcements to a logger. It is used when no speech
// relay is configured.
type LogAnnouncer struct {
	logger zerolog.Logger
}

// NewLogAnnouncer creates an announcer that only logs.
func NewLogAnnouncer(logger zerolog.Logger) *LogAnnouncer {
	return &LogAnnouncer{logger: logger}
}

// Speak logs the text.
func (a *LogAnnouncer) Speak(_ context.Context, text string, voice Voice) error {
	a.logger.Info().
		Str("text", text).
		Float64("volume", voice.Volume).
		Msg("speak")
	return nil
}

// PlayTone logs the tone request.
func (a *LogAnnouncer) PlayTone(_ context.Context, tone []byte, volume float64) error {
	a.logger.Debug().
		Int("bytes", len(tone)).
		Float64("volume", volume).
		Msg("tone")
	return nil
}

var _ Announcer = (*LogAnnouncer)(nil)
