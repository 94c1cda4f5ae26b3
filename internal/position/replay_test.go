package position

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/wayfinder/internal/geo"
	"github.com/breatheroute/wayfinder/pkg/polyline"
)

var epoch = time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)

func fixedNow() time.Time { return epoch }

func TestParseTrack_Fixes(t *testing.T) {
	track, err := ParseTrack([]byte(`
name: dam-square
interval: 2s
fixes:
  - {lat: 52.3731, lon: 4.8926, accuracy: 4}
  - {lat: 52.3735, lon: 4.8930}
  - {lat: 52.3740, lon: 4.8935, timestamp: 2026-03-01T09:00:00Z}
`))
	require.NoError(t, err)
	assert.Equal(t, "dam-square", track.Name)
	assert.Equal(t, 2*time.Second, track.Interval)

	fixes, err := track.Generate(epoch)
	require.NoError(t, err)
	require.Len(t, fixes, 3)
	assert.Equal(t, epoch, fixes[0].Timestamp)
	assert.Equal(t, 4.0, fixes[0].Accuracy)
	assert.Equal(t, epoch.Add(2*time.Second), fixes[1].Timestamp)
	assert.Equal(t, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), fixes[2].Timestamp)
}

func TestParseTrack_Invalid(t *testing.T) {
	_, err := ParseTrack([]byte("interval: [not a duration"))
	assert.ErrorIs(t, err, ErrInvalidTrack)

	_, err = ParseTrack([]byte("speed: -1"))
	assert.ErrorIs(t, err, ErrInvalidTrack)
}

func TestTrack_GenerateRejects(t *testing.T) {
	tests := []struct {
		name  string
		track Track
	}{
		{"empty", Track{}},
		{"bad fix", Track{Fixes: []Fix{{Lat: 95, Lon: 0}}}},
		{"bad polyline", Track{Polyline: "_p~iF~ps|U_"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.track.Generate(epoch)
			assert.ErrorIs(t, err, ErrInvalidTrack)
		})
	}
}

func TestTrack_WalkPath(t *testing.T) {
	// Roughly 111 m due north.
	start := geo.Coordinate{Lat: 52.0, Lon: 4.0}
	end := geo.Coordinate{Lat: 52.001, Lon: 4.0}
	track := Track{
		Start:    epoch,
		Interval: 10 * time.Second,
		Speed:    5,
		Accuracy: 3,
		Path:     []geo.Coordinate{start, end},
	}

	fixes, err := track.Generate(time.Time{})
	require.NoError(t, err)

	length := polyline.Length(track.Path)
	wantCount := int(length/50) + 2
	require.Len(t, fixes, wantCount)

	assert.Equal(t, start, fixes[0].Coordinate())
	assert.Equal(t, end, fixes[len(fixes)-1].Coordinate())
	for i := 1; i < len(fixes)-1; i++ {
		d, err := geo.Distance(fixes[i-1].Coordinate(), fixes[i].Coordinate())
		require.NoError(t, err)
		assert.InDelta(t, 50, d, 0.5)
		assert.Equal(t, 10*time.Second, fixes[i].Timestamp.Sub(fixes[i-1].Timestamp))
		assert.Equal(t, 3.0, fixes[i].Accuracy)
	}
}

func TestTrack_WalkPolyline(t *testing.T) {
	line := []geo.Coordinate{{Lat: 52.0, Lon: 4.0}, {Lat: 52.0005, Lon: 4.0}}
	track := Track{Polyline: polyline.Encode(line), Speed: 100}

	fixes, err := track.Generate(epoch)
	require.NoError(t, err)
	require.Len(t, fixes, 2)
	assert.Equal(t, epoch, fixes[0].Timestamp)
	assert.InDelta(t, 52.0005, fixes[1].Lat, 1e-9)
}

func TestReplay_Next(t *testing.T) {
	track := Track{Fixes: []Fix{
		{Lat: 52.3731, Lon: 4.8926},
		{Lat: 52.3735, Lon: 4.8930},
	}}
	r, err := NewReplay(track, ReplayConfig{Now: fixedNow})
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())

	ctx := context.Background()
	first, err := r.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, epoch, first.Timestamp)

	second, err := r.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, epoch.Add(time.Second), second.Timestamp)

	_, err = r.Next(ctx)
	assert.ErrorIs(t, err, ErrSourceClosed)
}

func TestReplay_Close(t *testing.T) {
	r, err := NewReplay(Track{Fixes: []Fix{{Lat: 1, Lon: 1}}}, ReplayConfig{Now: fixedNow})
	require.NoError(t, err)
	require.NoError(t, r.Close())

	_, err = r.Next(context.Background())
	assert.ErrorIs(t, err, ErrSourceClosed)
}

func TestReplay_Realtime(t *testing.T) {
	track := Track{
		Interval: 30 * time.Millisecond,
		Fixes:    []Fix{{Lat: 1, Lon: 1}, {Lat: 1.0001, Lon: 1}},
	}
	r, err := NewReplay(track, ReplayConfig{Realtime: true, Now: fixedNow})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = r.Next(ctx)
	require.NoError(t, err)

	began := time.Now()
	_, err = r.Next(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(began), 25*time.Millisecond)
}

func TestReplay_RealtimeCancelled(t *testing.T) {
	track := Track{
		Interval: time.Hour,
		Fixes:    []Fix{{Lat: 1, Lon: 1}, {Lat: 1.0001, Lon: 1}},
	}
	r, err := NewReplay(track, ReplayConfig{Realtime: true, Now: fixedNow})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	_, err = r.Next(ctx)
	require.NoError(t, err)

	cancel()
	_, err = r.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadTrack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "track.yaml")
	require.NoError(t, os.WriteFile(path, []byte("path:\n  - {lat: 52.0, lon: 4.0}\n  - {lat: 52.0001, lon: 4.0}\n"), 0o600))

	track, err := LoadTrack(path)
	require.NoError(t, err)
	assert.Len(t, track.Path, 2)

	_, err = LoadTrack(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
