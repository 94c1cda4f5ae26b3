package navigation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/wayfinder/internal/route"
)

var testTone = []byte("RIFF\x24\x00\x00\x00WAVEfmt ")

func TestToneVolume(t *testing.T) {
	const start = DefaultBeepStartDistance

	assert.Equal(t, 1.0, ToneVolume(0, start))
	assert.Equal(t, 0.5, ToneVolume(100, start))
	assert.Equal(t, 0.0, ToneVolume(start, start))
	assert.Equal(t, 0.0, ToneVolume(500, start))
	assert.Equal(t, 0.0, ToneVolume(10, 0))

	prev := ToneVolume(0, start)
	for d := 0.0; d <= 300; d += 0.5 {
		v := ToneVolume(d, start)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
		assert.LessOrEqual(t, v, prev, "volume must not increase with distance (d=%v)", d)
		prev = v
	}
}

func TestRampVolume(t *testing.T) {
	tests := []struct {
		name string
		d    float64
		want float64
	}{
		{"at start", 30, 0.2},
		{"beyond start", 45, 0.2},
		{"halfway", 16, 0.6},
		{"near field", 2, 1.0},
		{"inside near field", 0.5, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RampVolume(tt.d, DefaultRampStartDistance, DefaultRampNearDistance,
				DefaultRampMinVolume, DefaultRampMaxVolume)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestAlertText(t *testing.T) {
	assert.Equal(t, "In 100 feet, turn left", AlertText(30.48, route.ManeuverLeft))
	assert.Equal(t, "In 20 feet, make a U-turn", AlertText(6.096, route.ManeuverUTurn))
	assert.Equal(t, "In 98 feet, turn right", AlertText(30, route.ManeuverRight))
}

func TestProximity_ToneCadenceAndVolume(t *testing.T) {
	s, rec, clock := newTestSession(t, Config{Tone: testTone}, singleTurn150m())
	require.NoError(t, s.Start(context.Background()))

	// 150 m from the start is 0 m from the end; distances here are to the end.
	for _, d := range []float64{250, 150, 140, 130, 120} {
		clock.Advance(time.Second)
		_, err := s.Update(context.Background(), fixAt(at(150-d), clock.Now()))
		require.NoError(t, err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.tones, 2, "no tone beyond 200 m, then one every 2 s")
	assert.InDelta(t, 0.25, rec.tones[0], 1e-9)
	assert.InDelta(t, 0.35, rec.tones[1], 1e-9)
}

func TestProximity_NoToneWithoutAsset(t *testing.T) {
	s, rec, clock := newTestSession(t, Config{}, singleTurn150m())
	require.NoError(t, s.Start(context.Background()))

	_, err := s.Update(context.Background(), fixAt(at(100), clock.Now()))
	require.NoError(t, err)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Empty(t, rec.tones)
}

func TestProximity_ToneTurnsOnly(t *testing.T) {
	cfg := Config{Tone: testTone, ToneTurnsOnly: true}
	s, rec, clock := newTestSession(t, cfg, lineRoute(route.ManeuverStraight, route.ManeuverRight))
	require.NoError(t, s.Start(context.Background()))

	_, err := s.Update(context.Background(), fixAt(at(50), clock.Now()))
	require.NoError(t, err)
	rec.mu.Lock()
	assert.Empty(t, rec.tones, "straight step is silent")
	rec.mu.Unlock()

	_, err = s.Update(context.Background(), fixAt(at(97), clock.Now()))
	require.NoError(t, err)
	clock.Advance(3 * time.Second)
	_, err = s.Update(context.Background(), fixAt(at(150), clock.Now()))
	require.NoError(t, err)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Len(t, rec.tones, 1)
}

func TestProximity_PeriodicPolicy(t *testing.T) {
	cfg := Config{AlertPolicy: PolicyPeriodic, ArrivalThresholdMeters: 1}
	s, rec, clock := newTestSession(t, cfg, singleTurn150m())
	require.NoError(t, s.Start(context.Background()))
	rec.reset()

	steps := []struct {
		distance float64
		after    time.Duration
	}{
		{40, time.Second},            // outside the ramp
		{30, time.Second},            // first alert
		{20, 500 * time.Millisecond}, // within the cadence
		{16, time.Second},
		{1.5, time.Second}, // near field
	}
	for _, step := range steps {
		clock.Advance(step.after)
		res, err := s.Update(context.Background(), fixAt(at(150-step.distance), clock.Now()))
		require.NoError(t, err)
		assert.Empty(t, res.Fired, "periodic alerts do not use threshold flags")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{"In 98 feet, turn left", "In 52 feet, turn left", "Now, turn left"}, rec.speech)
	require.Len(t, rec.voices, 3)
	assert.InDelta(t, 0.2, rec.voices[0].Volume, 1e-9)
	assert.InDelta(t, 0.6, rec.voices[1].Volume, 1e-9)
	assert.InDelta(t, 1.0, rec.voices[2].Volume, 1e-9)
}

func TestProximity_PeriodicCadenceRestartsOnStepChange(t *testing.T) {
	cfg := Config{AlertPolicy: PolicyPeriodic}
	s, rec, clock := newTestSession(t, cfg, lineRoute(route.ManeuverLeft, route.ManeuverRight))
	require.NoError(t, s.Start(context.Background()))
	rec.reset()

	_, err := s.Update(context.Background(), fixAt(at(80), clock.Now()))
	require.NoError(t, err)
	res, err := s.Update(context.Background(), fixAt(at(97), clock.Now()))
	require.NoError(t, err)
	require.True(t, res.StepCompleted)

	// Same instant, new step: the next turn may alert immediately.
	_, err = s.Update(context.Background(), fixAt(at(175), clock.Now()))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"In 66 feet, turn left",
		"Step 2: turn right",
		"In 82 feet, turn right",
	}, rec.spoken())
}
