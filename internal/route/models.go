// Package route holds the immutable step-by-step representation of a route
// returned by a directions provider.
package route

import (
	"errors"
	"fmt"

	"github.com/breatheroute/wayfinder/internal/geo"
)

// Sentinel errors for route loading.
var (
	// ErrInvalidStep indicates a provider step record with negative length or duration.
	ErrInvalidStep = errors.New("invalid route step")
)

// Maneuver is the turn classification of a step.
type Maneuver string

const (
	ManeuverUnknown  Maneuver = "unknown"
	ManeuverLeft     Maneuver = "left"
	ManeuverRight    Maneuver = "right"
	ManeuverStraight Maneuver = "straight"
	ManeuverUTurn    Maneuver = "u-turn"
)

// IsTurn reports whether the maneuver is alerted as a turn.
// Straight and unknown steps never are.
func (m Maneuver) IsTurn() bool {
	switch m {
	case ManeuverLeft, ManeuverRight, ManeuverUTurn:
		return true
	default:
		return false
	}
}

// Spoken returns the phrase used in speech alerts, e.g. "turn left".
func (m Maneuver) Spoken() string {
	switch m {
	case ManeuverLeft:
		return "turn left"
	case ManeuverRight:
		return "turn right"
	case ManeuverUTurn:
		return "make a U-turn"
	case ManeuverStraight:
		return "continue straight"
	default:
		return "continue"
	}
}

// StepRecord is a provider-neutral step as delivered by a directions provider.
type StepRecord struct {
	DistanceMeters  float64
	DurationSeconds float64
	Start           geo.Coordinate
	End             geo.Coordinate
	InstructionHTML string
	// ManeuverCode is an optional provider maneuver code such as "turn-left".
	ManeuverCode string
}

// Step is one leg of a route.
type Step struct {
	Start           geo.Coordinate `json:"start" msgpack:"start"`
	End             geo.Coordinate `json:"end" msgpack:"end"`
	DistanceMeters  float64        `json:"distanceMeters" msgpack:"distance_m"`
	DurationSeconds float64        `json:"durationSeconds" msgpack:"duration_s"`
	Instruction     string         `json:"instruction" msgpack:"instruction"`
	Maneuver        Maneuver       `json:"maneuver" msgpack:"maneuver"`
}

// IsTurn reports whether the step ends in a turn that should be alerted.
func (s Step) IsTurn() bool {
	return s.Maneuver.IsTurn()
}

// Route is an ordered, immutable sequence of steps. Sequence order is
// navigation order.
type Route struct {
	steps []Step
}

// New builds a Route from already classified steps. The slice is copied.
func New(steps []Step) *Route {
	cpy := make([]Step, len(steps))
	copy(cpy, steps)
	return &Route{steps: cpy}
}

// IsReady reports whether the route has at least one step and may be navigated.
func (r *Route) IsReady() bool {
	return r != nil && len(r.steps) > 0
}

// Len returns the number of steps.
func (r *Route) Len() int {
	if r == nil {
		return 0
	}
	return len(r.steps)
}

// Step returns the step at index i.
func (r *Route) Step(i int) (Step, error) {
	if i < 0 || i >= r.Len() {
		return Step{}, fmt.Errorf("step %d of %d: %w", i, r.Len(), ErrInvalidStep)
	}
	return r.steps[i], nil
}

// Steps returns a copy of all steps.
func (r *Route) Steps() []Step {
	if r == nil {
		return nil
	}
	cpy := make([]Step, len(r.steps))
	copy(cpy, r.steps)
	return cpy
}

// TotalDistance returns the summed step distance in meters.
func (r *Route) TotalDistance() float64 {
	var total float64
	for _, s := range r.Steps() {
		total += s.DistanceMeters
	}
	return total
}

// TotalDuration returns the summed step duration in seconds.
func (r *Route) TotalDuration() float64 {
	var total float64
	for _, s := range r.Steps() {
		total += s.DurationSeconds
	}
	return total
}

// Destination returns the end of the last step.
func (r *Route) Destination() (geo.Coordinate, bool) {
	if !r.IsReady() {
		return geo.Coordinate{}, false
	}
	return r.steps[len(r.steps)-1].End, true
}
