package geo

import "fmt"

// Compass is one of the eight cardinal and ordinal directions.
type Compass int

const (
	North Compass = iota
	NorthEast
	East
	SouthEast
	South
	SouthWest
	West
	NorthWest
)

var compassShort = [...]string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

var compassLong = [...]string{"north", "northeast", "east", "southeast",
	"south", "southwest", "west", "northwest"}

// CompassFor buckets a bearing into 45 degree windows centred on the eight
// points; boundaries fall at 22.5 + k*45 degrees and belong to the next point
// clockwise.
func CompassFor(bearing float64) Compass {
	h := NormalizeBearing(bearing + 22.5) // [0,45) is now north
	idx := int(h / 45)
	if idx > int(NorthWest) {
		idx = int(North)
	}
	return Compass(idx)
}

// Heading returns the centre bearing of the direction.
func (c Compass) Heading() float64 {
	return float64(c) * 45
}

// String returns the abbreviated form, e.g. "NE".
func (c Compass) String() string {
	if c < North || c > NorthWest {
		return "?"
	}
	return compassShort[c]
}

// Spoken returns the lower-case long form, e.g. "northeast".
func (c Compass) Spoken() string {
	if c < North || c > NorthWest {
		return ""
	}
	return compassLong[c]
}

// MarshalText renders the abbreviated form so JSON payloads carry "NE" rather than 1.
func (c Compass) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText accepts the abbreviated form.
func (c *Compass) UnmarshalText(text []byte) error {
	for i, s := range compassShort {
		if s == string(text) {
			*c = Compass(i)
			return nil
		}
	}
	return fmt.Errorf("unknown compass direction %q", text)
}
