package navigation

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/wayfinder/internal/alert"
	"github.com/breatheroute/wayfinder/internal/audio"
	"github.com/breatheroute/wayfinder/internal/geo"
	"github.com/breatheroute/wayfinder/internal/route"
)

// ToneVolume scales the proximity tone: 1 at the step end, 0 at or beyond start.
func ToneVolume(d, start float64) float64 {
	if start <= 0 {
		return 0
	}
	return audio.ClampVolume(1 - d/start)
}

// RampVolume scales periodic alerts from minVol at start to maxVol inside near.
func RampVolume(d, start, near, minVol, maxVol float64) float64 {
	ratio := 0.0
	if start > near {
		ratio = math.Max(0, math.Min(1, (d-near)/(start-near)))
	}
	return minVol + (1-ratio)*(maxVol-minVol)
}

// AlertText is the speech for a threshold alert, e.g. "In 100 feet, turn left".
func AlertText(distanceMeters float64, m route.Maneuver) string {
	feet := int(math.Round(geo.MetersToFeet(distanceMeters)))
	return fmt.Sprintf("In %d feet, %s", feet, m.Spoken())
}

// proximity evaluates one distance sample against the alert policy and the
// tone cadence. It is owned by a Session and guarded by the session mutex.
type proximity struct {
	cfg        Config
	thresholds alert.Thresholds
	announcer  audio.Announcer
	logger     zerolog.Logger
	metrics    *Metrics

	lastTone time.Time
	lastRamp time.Time

	pending []utterance
}

type utterance struct {
	text  string
	voice audio.Voice
}

// evaluate runs the configured policy and the tone for step index at distance
// d. It returns the threshold kinds that fired.
func (p *proximity) evaluate(ctx context.Context, tracker *alert.Tracker, index int, step route.Step, d float64, now time.Time) []alert.Kind {
	var fired []alert.Kind

	if step.IsTurn() {
		switch p.cfg.AlertPolicy {
		case PolicyPeriodic:
			p.periodic(ctx, step, d, now)
		default:
			if k, ok := p.threshold(ctx, tracker, index, step, d); ok {
				fired = append(fired, k)
			}
		}
	}

	if !p.cfg.ToneTurnsOnly || step.IsTurn() {
		p.tone(ctx, d, now)
	}

	return fired
}

// threshold fires the band containing d if it has not fired this visit. The
// flag is marked before speaking so a failed announcement is not retried.
func (p *proximity) threshold(ctx context.Context, tracker *alert.Tracker, index int, step route.Step, d float64) (alert.Kind, bool) {
	th, ok := p.thresholds.Band(d)
	if !ok {
		return "", false
	}

	fired, err := tracker.HasFired(index, th.Kind)
	if err != nil {
		p.logger.Error().Err(err).Int("step_index", index).Msg("alert tracker lookup failed")
		return "", false
	}
	if fired {
		return "", false
	}
	if err := tracker.MarkFired(index, th.Kind); err != nil {
		p.logger.Error().Err(err).Int("step_index", index).Msg("alert tracker update failed")
		return "", false
	}

	p.logger.Debug().
		Int("step_index", index).
		Str("kind", string(th.Kind)).
		Float64("distance_m", d).
		Msg("threshold alert")
	p.metrics.recordAlert(ctx, PolicyThreshold, string(th.Kind))
	p.speak(AlertText(th.DistanceMeters, step.Maneuver), p.cfg.Voice)
	return th.Kind, true
}

func (p *proximity) periodic(ctx context.Context, step route.Step, d float64, now time.Time) {
	if d > p.cfg.RampStartDistance {
		return
	}
	if !p.lastRamp.IsZero() && now.Sub(p.lastRamp) < p.cfg.RampPeriod {
		return
	}
	p.lastRamp = now

	volume := RampVolume(d, p.cfg.RampStartDistance, p.cfg.RampNearDistance,
		p.cfg.RampMinVolume, p.cfg.RampMaxVolume)

	text := AlertText(d, step.Maneuver)
	if d <= p.cfg.RampNearDistance {
		text = fmt.Sprintf("Now, %s", step.Maneuver.Spoken())
	}

	p.metrics.recordAlert(ctx, PolicyPeriodic, "periodic")
	p.speak(text, p.cfg.Voice.WithVolume(volume))
}

func (p *proximity) tone(ctx context.Context, d float64, now time.Time) {
	if len(p.cfg.Tone) == 0 || d > p.cfg.BeepStartDistance {
		return
	}
	if !p.lastTone.IsZero() && now.Sub(p.lastTone) < p.cfg.BeepPeriod {
		return
	}
	p.lastTone = now

	volume := ToneVolume(d, p.cfg.BeepStartDistance)
	p.metrics.recordTone(ctx)
	if err := p.announcer.PlayTone(ctx, p.cfg.Tone, volume); err != nil {
		p.metrics.RecordAudioFailure(ctx, "tone")
		p.logger.Warn().Err(err).Float64("volume", volume).Msg("proximity tone failed")
	}
}

// speak queues text until the next flush.
func (p *proximity) speak(text string, voice audio.Voice) {
	p.pending = append(p.pending, utterance{text: text, voice: voice})
}

// flush delivers everything queued since the last flush as one utterance at
// the loudest queued volume, so an alert and the step completion on the same
// fix are heard together. Delivery is best-effort: failures are logged and
// counted, never returned.
func (p *proximity) flush(ctx context.Context) {
	if len(p.pending) == 0 {
		return
	}

	texts := make([]string, len(p.pending))
	voice := p.pending[0].voice
	for i, u := range p.pending {
		texts[i] = u.text
		if u.voice.Volume > voice.Volume {
			voice = u.voice
		}
	}
	p.pending = p.pending[:0]

	text := strings.Join(texts, ". ")
	if err := p.announcer.Speak(ctx, text, voice); err != nil {
		p.metrics.RecordAudioFailure(ctx, "speak")
		p.logger.Warn().Err(err).Str("text", text).Msg("speech failed")
	}
}

// stepChanged restarts the periodic cadence for the next turn. The tone
// cadence carries over so steps do not double-beep.
func (p *proximity) stepChanged() {
	p.lastRamp = time.Time{}
}

// reset clears cadence state so a new visit starts fresh.
func (p *proximity) reset() {
	p.lastTone = time.Time{}
	p.lastRamp = time.Time{}
	p.pending = nil
}
