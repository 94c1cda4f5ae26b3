// Package alert records which distance-threshold alerts have fired for each
// step of a route, so that a threshold crossing is announced at most once per
// step visit.
package alert

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/breatheroute/wayfinder/internal/geo"
)

// Sentinel errors for alert tracking.
var (
	ErrIndexOutOfRange = errors.New("step index out of range")
	ErrUnknownKind     = errors.New("unknown alert kind")
	ErrNoThresholds    = errors.New("at least one alert threshold is required")
)

// Kind names a distance threshold, e.g. "far" or "near".
type Kind string

const (
	KindFar  Kind = "far"
	KindNear Kind = "near"
)

// Threshold is a named distance at or below which an alert fires.
type Threshold struct {
	Kind           Kind    `json:"kind" mapstructure:"kind"`
	DistanceMeters float64 `json:"distanceMeters" mapstructure:"distance_m"`
}

// DefaultThresholds returns the far (100 ft) and near (20 ft) thresholds.
func DefaultThresholds() []Threshold {
	return []Threshold{
		{Kind: KindFar, DistanceMeters: geo.FeetToMeters(100)},
		{Kind: KindNear, DistanceMeters: geo.FeetToMeters(20)},
	}
}

// Thresholds is an ordered, validated threshold set, nearest first.
type Thresholds struct {
	items []Threshold
}

// NewThresholds validates and orders thresholds nearest-first. Kinds must be
// unique and distances positive.
func NewThresholds(items []Threshold) (Thresholds, error) {
	if len(items) == 0 {
		return Thresholds{}, ErrNoThresholds
	}
	seen := make(map[Kind]bool, len(items))
	sorted := make([]Threshold, len(items))
	copy(sorted, items)
	for _, t := range sorted {
		if t.Kind == "" || seen[t.Kind] {
			return Thresholds{}, fmt.Errorf("duplicate or empty kind %q: %w", t.Kind, ErrUnknownKind)
		}
		if t.DistanceMeters <= 0 {
			return Thresholds{}, fmt.Errorf("threshold %q must be positive, got %v", t.Kind, t.DistanceMeters)
		}
		seen[t.Kind] = true
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].DistanceMeters < sorted[j].DistanceMeters
	})
	return Thresholds{items: sorted}, nil
}

// Items returns the thresholds nearest-first.
func (ts Thresholds) Items() []Threshold {
	cpy := make([]Threshold, len(ts.items))
	copy(cpy, ts.items)
	return cpy
}

// Band returns the threshold whose band contains d: d is at or below the
// threshold and above the next nearer one. The nearest threshold's band
// extends to zero.
func (ts Thresholds) Band(d float64) (Threshold, bool) {
	lower := 0.0
	for i, t := range ts.items {
		if d <= t.DistanceMeters && (i == 0 || d > lower) {
			return t, true
		}
		lower = t.DistanceMeters
	}
	return Threshold{}, false
}

func (ts Thresholds) index(kind Kind) int {
	for i, t := range ts.items {
		if t.Kind == kind {
			return i
		}
	}
	return -1
}

// Tracker holds one fired-flag set per step index.
type Tracker struct {
	mu         sync.Mutex
	thresholds Thresholds
	fired      [][]bool
}

// NewTracker creates a tracker for steps step indices, all flags cleared.
func NewTracker(steps int, thresholds Thresholds) *Tracker {
	if steps < 0 {
		steps = 0
	}
	fired := make([][]bool, steps)
	for i := range fired {
		fired[i] = make([]bool, len(thresholds.items))
	}
	return &Tracker{thresholds: thresholds, fired: fired}
}

// Len returns the number of step indices tracked.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.fired)
}

// Thresholds returns the threshold set the tracker was built with.
func (t *Tracker) Thresholds() Thresholds {
	return t.thresholds
}

// HasFired reports whether kind has fired for the step at index.
func (t *Tracker) HasFired(index int, kind Kind) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	k, err := t.locate(index, kind)
	if err != nil {
		return false, err
	}
	return t.fired[index][k], nil
}

// MarkFired records that kind fired for the step at index. Marking twice is a no-op.
func (t *Tracker) MarkFired(index int, kind Kind) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	k, err := t.locate(index, kind)
	if err != nil {
		return err
	}
	t.fired[index][k] = true
	return nil
}

// Reset clears every flag for exactly one index. It must be called when
// navigation advances onto index.
func (t *Tracker) Reset(index int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if index < 0 || index >= len(t.fired) {
		return fmt.Errorf("reset %d of %d: %w", index, len(t.fired), ErrIndexOutOfRange)
	}
	for k := range t.fired[index] {
		t.fired[index][k] = false
	}
	return nil
}

func (t *Tracker) locate(index int, kind Kind) (int, error) {
	if index < 0 || index >= len(t.fired) {
		return 0, fmt.Errorf("index %d of %d: %w", index, len(t.fired), ErrIndexOutOfRange)
	}
	k := t.thresholds.index(kind)
	if k < 0 {
		return 0, fmt.Errorf("%q: %w", kind, ErrUnknownKind)
	}
	return k, nil
}
