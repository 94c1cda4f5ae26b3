// Package position delivers GPS fixes from serial receivers and recorded tracks.
package position

import (
	"context"
	"errors"
	"time"

	"github.com/breatheroute/wayfinder/internal/geo"
)

// ErrSourceClosed is returned by Next after a source has been closed or exhausted.
var ErrSourceClosed = errors.New("position source closed")

// Fix is a single position report.
type Fix struct {
	Lat       float64   `json:"lat" yaml:"lat"`
	Lon       float64   `json:"lon" yaml:"lon"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	// Accuracy is the horizontal accuracy in meters; zero means unknown.
	Accuracy float64 `json:"accuracy,omitempty" yaml:"accuracy,omitempty"`
}

// Coordinate returns the fix location.
func (f Fix) Coordinate() geo.Coordinate {
	return geo.Coordinate{Lat: f.Lat, Lon: f.Lon}
}

// Source produces fixes. Next blocks until a fix is available, the context is
// done, or the source is exhausted (ErrSourceClosed).
type Source interface {
	Next(ctx context.Context) (Fix, error)
	Close() error
}
