package position

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/breatheroute/wayfinder/internal/geo"
	"github.com/breatheroute/wayfinder/pkg/polyline"
)

// ErrInvalidTrack is returned for tracks that cannot be replayed.
var ErrInvalidTrack = errors.New("invalid track")

// Track is a recorded or scripted trip. It lists fixes directly, or a line
// (an encoded polyline or a list of points) walked at a constant speed.
type Track struct {
	Name string `yaml:"name"`

	// Start stamps the first fix; zero means the time the replay starts.
	Start time.Time `yaml:"start"`

	// Interval between fixes (default: 1s).
	Interval time.Duration `yaml:"interval"`

	// Speed in m/s when walking a line (default: 1.4, a walking pace).
	Speed float64 `yaml:"speed"`

	// Accuracy stamped on generated fixes.
	Accuracy float64 `yaml:"accuracy"`

	Fixes    []Fix            `yaml:"fixes"`
	Polyline string           `yaml:"polyline"`
	Path     []geo.Coordinate `yaml:"path"`
}

// LoadTrack reads a YAML track from disk.
func LoadTrack(path string) (Track, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Track{}, fmt.Errorf("reading track: %w", err)
	}
	return ParseTrack(data)
}

// ParseTrack decodes a YAML track.
func ParseTrack(data []byte) (Track, error) {
	var t Track
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Track{}, fmt.Errorf("%w: %w", ErrInvalidTrack, err)
	}
	if t.Interval < 0 || t.Speed < 0 {
		return Track{}, fmt.Errorf("%w: negative interval or speed", ErrInvalidTrack)
	}
	return t, nil
}

// Generate expands the track into fixes, stamping them from start.
func (t Track) Generate(start time.Time) ([]Fix, error) {
	interval := t.Interval
	if interval == 0 {
		interval = time.Second
	}
	if !t.Start.IsZero() {
		start = t.Start
	}

	if len(t.Fixes) > 0 {
		fixes := make([]Fix, len(t.Fixes))
		for i, f := range t.Fixes {
			if f.Timestamp.IsZero() {
				f.Timestamp = start.Add(time.Duration(i) * interval)
			}
			if err := geo.Validate(f.Coordinate()); err != nil {
				return nil, fmt.Errorf("%w: fix %d: %w", ErrInvalidTrack, i, err)
			}
			fixes[i] = f
		}
		return fixes, nil
	}

	line := t.Path
	if t.Polyline != "" {
		decoded, err := polyline.DecodeStrict(t.Polyline)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidTrack, err)
		}
		line = decoded
	}
	if len(line) == 0 {
		return nil, fmt.Errorf("%w: no fixes, polyline or path", ErrInvalidTrack)
	}

	speed := t.Speed
	if speed == 0 {
		speed = 1.4
	}
	total := polyline.Length(line)
	step := speed * interval.Seconds()

	var fixes []Fix
	for i := 0; ; i++ {
		walked := float64(i) * step
		pt, _ := polyline.Along(line, walked)
		fixes = append(fixes, Fix{
			Lat:       pt.Lat,
			Lon:       pt.Lon,
			Timestamp: start.Add(time.Duration(i) * interval),
			Accuracy:  t.Accuracy,
		})
		if walked >= total {
			break
		}
	}
	return fixes, nil
}

// ReplayConfig holds configuration for a Replay.
type ReplayConfig struct {
	// Realtime waits the track interval between fixes; otherwise fixes are
	// returned as fast as Next is called.
	Realtime bool

	// Now stamps tracks without a start time (default: time.Now).
	Now func() time.Time
}

// Replay is a Source that plays back a Track.
type Replay struct {
	fixes    []Fix
	realtime bool

	mu     sync.Mutex
	next   int
	closed bool
}

// NewReplay prepares t for playback.
func NewReplay(t Track, cfg ReplayConfig) (*Replay, error) {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	fixes, err := t.Generate(now().UTC())
	if err != nil {
		return nil, err
	}
	return &Replay{fixes: fixes, realtime: cfg.Realtime}, nil
}

// Len is the number of fixes in the replay.
func (r *Replay) Len() int {
	return len(r.fixes)
}

// Next returns the next fix, or ErrSourceClosed once the track is exhausted.
func (r *Replay) Next(ctx context.Context) (Fix, error) {
	r.mu.Lock()
	if r.closed || r.next >= len(r.fixes) {
		r.mu.Unlock()
		return Fix{}, ErrSourceClosed
	}
	i := r.next
	r.next++
	r.mu.Unlock()

	fix := r.fixes[i]
	if r.realtime && i > 0 {
		wait := fix.Timestamp.Sub(r.fixes[i-1].Timestamp)
		if wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return Fix{}, ctx.Err()
			case <-timer.C:
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return Fix{}, err
	}
	return fix, nil
}

// Close ends the replay.
func (r *Replay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

var _ Source = (*Replay)(nil)
