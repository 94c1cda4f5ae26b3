// Package routing fetches walking and cycling directions and converts them
// into navigable routes.
package routing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/breatheroute/wayfinder/internal/geo"
	"github.com/breatheroute/wayfinder/internal/route"
)

// Sentinel errors for routing operations.
var (
	// ErrProviderUnavailable indicates the routing provider is down or the circuit breaker is open.
	ErrProviderUnavailable = errors.New("routing provider unavailable")
	// ErrNoRouteFound indicates no valid route exists between the given points.
	ErrNoRouteFound = errors.New("no route found between the given points")
	// ErrRateLimitExceeded indicates the API quota has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrInvalidCoordinates indicates the provided coordinates are invalid or out of range.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
)

// Provider defines the interface for routing providers.
type Provider interface {
	// GetDirections retrieves route directions between two points.
	GetDirections(ctx context.Context, req DirectionsRequest) (*DirectionsResponse, error)
	// Name returns the provider identifier for logging and metrics.
	Name() string
	// SupportedProfiles returns the list of route profiles this provider supports.
	SupportedProfiles() []RouteProfile
}

// RouteProfile represents a routing profile (mode of transport).
type RouteProfile string

const (
	// ProfileWalk is the foot-walking profile for pedestrian routing.
	ProfileWalk RouteProfile = "foot-walking"
	// ProfileBike is the cycling-regular profile for bike routing.
	ProfileBike RouteProfile = "cycling-regular"
)

// ParseProfile accepts "walk", "bike" or a provider profile name.
func ParseProfile(s string) (RouteProfile, error) {
	switch s {
	case "", "walk", string(ProfileWalk):
		return ProfileWalk, nil
	case "bike", string(ProfileBike):
		return ProfileBike, nil
	default:
		return "", fmt.Errorf("unknown route profile %q", s)
	}
}

// DirectionsRequest is the request for computing routes.
type DirectionsRequest struct {
	Origin      geo.Coordinate
	Destination geo.Coordinate
	Profile     RouteProfile
}

// DirectionsResponse is the provider's answer, best route first.
type DirectionsResponse struct {
	Routes    []Route   `msgpack:"routes"`
	Provider  string    `msgpack:"provider"`
	FetchedAt time.Time `msgpack:"fetched_at"`
}

// Primary returns the first route.
func (r *DirectionsResponse) Primary() (Route, error) {
	if r == nil || len(r.Routes) == 0 {
		return Route{}, ErrNoRouteFound
	}
	return r.Routes[0], nil
}

// Route is one provider route with its step records.
type Route struct {
	GeometryPolyline string             `msgpack:"geometry"` // Encoded polyline (precision 5)
	DistanceMeters   float64            `msgpack:"distance_m"`
	DurationSeconds  float64            `msgpack:"duration_s"`
	Summary          string             `msgpack:"summary"`
	BoundingBox      *BoundingBox       `msgpack:"bbox"`
	Steps            []route.StepRecord `msgpack:"steps"`
}

// Navigable converts the step records into a navigation route.
func (r Route) Navigable() (*route.Route, error) {
	return route.Load(r.Steps)
}

// BoundingBox represents a geographic bounding box.
type BoundingBox struct {
	MinLon float64 `msgpack:"min_lon"`
	MinLat float64 `msgpack:"min_lat"`
	MaxLon float64 `msgpack:"max_lon"`
	MaxLat float64 `msgpack:"max_lat"`
}

// Error provides detailed error information from the routing provider.
type Error struct {
	Provider string // Provider that generated the error
	Code     string // Error code from the provider
	Message  string // Human-readable error message
	Err      error  // Underlying error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is transient and the request can be retried.
func (e *Error) IsRetryable() bool {
	return errors.Is(e.Err, ErrProviderUnavailable) || errors.Is(e.Err, ErrRateLimitExceeded)
}
