package openrouteservice

// orsRequest represents the ORS directions API request body.
type orsRequest struct {
	Coordinates  [][]float64 `json:"coordinates"`
	Instructions bool        `json:"instructions"`
	// InstructionsFormat "html" wraps street names in tags; the route loader strips them.
	InstructionsFormat string `json:"instructions_format"`
	Geometry           bool   `json:"geometry"`
	Units              string `json:"units"`
	Language           string `json:"language"`
}

// orsResponse represents the ORS directions API response.
type orsResponse struct {
	Routes []orsRoute `json:"routes"`
	BBox   []float64  `json:"bbox,omitempty"`
}

// orsRoute represents a single route in the ORS response.
type orsRoute struct {
	Summary   routeSummary   `json:"summary"`
	Segments  []routeSegment `json:"segments,omitempty"`
	BBox      []float64      `json:"bbox,omitempty"`
	Geometry  string         `json:"geometry"`
	WayPoints []int          `json:"way_points,omitempty"`
}

// routeSummary contains summary information for a route.
type routeSummary struct {
	Distance float64 `json:"distance"` // Distance in meters
	Duration float64 `json:"duration"` // Duration in seconds
}

// routeSegment is the leg between two request coordinates.
type routeSegment struct {
	Distance float64     `json:"distance"`
	Duration float64     `json:"duration"`
	Steps    []routeStep `json:"steps,omitempty"`
}

// routeStep represents a single step (instruction) in a segment.
type routeStep struct {
	Distance    float64 `json:"distance"`
	Duration    float64 `json:"duration"`
	Type        int     `json:"type"`
	Instruction string  `json:"instruction"`
	Name        string  `json:"name"`
	// WayPoints are the first and last geometry indices covered by the step.
	WayPoints []int `json:"way_points,omitempty"`
}

// orsErrorResponse represents an error response from ORS.
type orsErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ORS error codes for error mapping.
const (
	orsErrorCodeNotFound = 2009 // Route not found
)

// ORS instruction types.
const (
	typeLeft = iota
	typeRight
	typeSharpLeft
	typeSharpRight
	typeSlightLeft
	typeSlightRight
	typeStraight
	typeEnterRoundabout
	typeExitRoundabout
	typeUTurn
	typeGoal
	typeDepart
	typeKeepLeft
	typeKeepRight
)

// maneuverCodes maps ORS instruction types to provider-neutral maneuver codes.
var maneuverCodes = map[int]string{
	typeLeft:            "turn-left",
	typeRight:           "turn-right",
	typeSharpLeft:       "turn-sharp-left",
	typeSharpRight:      "turn-sharp-right",
	typeSlightLeft:      "turn-slight-left",
	typeSlightRight:     "turn-slight-right",
	typeStraight:        "straight",
	typeEnterRoundabout: "roundabout-enter",
	typeExitRoundabout:  "roundabout-exit",
	typeUTurn:           "uturn",
	typeGoal:            "arrive",
	typeDepart:          "depart",
	typeKeepLeft:        "keep-left",
	typeKeepRight:       "keep-right",
}
