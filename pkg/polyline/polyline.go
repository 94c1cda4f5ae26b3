// Package polyline encodes and decodes Google's polyline format (precision 5,
// as returned by OpenRouteService) and walks decoded lines by distance.
// The algorithm is documented at: https://developers.google.com/maps/documentation/utilities/polylinealgorithm
package polyline

import (
	"errors"
	"math"

	"github.com/breatheroute/wayfinder/internal/geo"
)

// ErrMalformed is returned by DecodeStrict for truncated or invalid input.
var ErrMalformed = errors.New("malformed polyline")

// Coordinate is a decoded point.
type Coordinate = geo.Coordinate

// Decode decodes a polyline, dropping a truncated trailing point.
func Decode(encoded string) []Coordinate {
	coords, _ := decode(encoded)
	return coords
}

// DecodeStrict decodes a polyline and fails on truncated input or characters
// outside the encoding alphabet.
func DecodeStrict(encoded string) ([]Coordinate, error) {
	return decode(encoded)
}

func decode(encoded string) ([]Coordinate, error) {
	if encoded == "" {
		return nil, nil
	}

	var coords []Coordinate
	index, lat, lon := 0, 0, 0

	for index < len(encoded) {
		latDelta, next, err := decodeValue(encoded, index)
		if err != nil {
			return coords, err
		}
		lonDelta, next, err := decodeValue(encoded, next)
		if err != nil {
			return coords, err
		}
		index = next
		lat += latDelta
		lon += lonDelta

		coords = append(coords, Coordinate{
			Lat: float64(lat) / 1e5,
			Lon: float64(lon) / 1e5,
		})
	}

	return coords, nil
}

// decodeValue reads one zig-zag varint starting at index.
func decodeValue(encoded string, index int) (int, int, error) {
	shift, result := 0, 0

	for {
		if index >= len(encoded) {
			return 0, index, ErrMalformed
		}
		b := int(encoded[index]) - 63
		if b < 0 || b > 63 {
			return 0, index, ErrMalformed
		}
		index++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
	}

	if result&1 != 0 {
		return ^(result >> 1), index, nil
	}
	return result >> 1, index, nil
}

// Encode encodes coordinates at precision 5.
func Encode(coords []Coordinate) string {
	if len(coords) == 0 {
		return ""
	}

	encoded := make([]byte, 0, len(coords)*4)
	prevLat, prevLon := 0, 0

	for _, coord := range coords {
		lat := int(math.Round(coord.Lat * 1e5))
		lon := int(math.Round(coord.Lon * 1e5))

		encoded = encodeValue(encoded, lat-prevLat)
		encoded = encodeValue(encoded, lon-prevLon)

		prevLat, prevLon = lat, lon
	}

	return string(encoded)
}

func encodeValue(buf []byte, value int) []byte {
	if value < 0 {
		value = ^(value << 1)
	} else {
		value <<= 1
	}

	for value >= 0x20 {
		buf = append(buf, byte((value&0x1f)|0x20)+63)
		value >>= 5
	}
	return append(buf, byte(value)+63)
}

// Length is the great-circle length of the line in meters.
func Length(coords []Coordinate) float64 {
	var total float64
	for i := 1; i < len(coords); i++ {
		total += segment(coords[i-1], coords[i])
	}
	return total
}

// Along returns the point meters along the line, interpolating linearly
// inside a segment. Distances past either end clamp to the endpoints.
func Along(coords []Coordinate, meters float64) (Coordinate, bool) {
	if len(coords) == 0 {
		return Coordinate{}, false
	}
	if meters <= 0 {
		return coords[0], true
	}
	for i := 1; i < len(coords); i++ {
		d := segment(coords[i-1], coords[i])
		if meters <= d && d > 0 {
			return interpolate(coords[i-1], coords[i], meters/d), true
		}
		meters -= d
	}
	return coords[len(coords)-1], true
}

// Sample returns points every intervalMeters along the line, always
// including both endpoints.
func Sample(coords []Coordinate, intervalMeters float64) []Coordinate {
	if len(coords) == 0 {
		return nil
	}
	if intervalMeters <= 0 {
		return coords
	}

	sampled := []Coordinate{coords[0]}
	accumulated := 0.0

	for i := 1; i < len(coords); i++ {
		segmentDist := segment(coords[i-1], coords[i])
		covered := 0.0

		for accumulated+(segmentDist-covered) >= intervalMeters {
			covered += intervalMeters - accumulated
			sampled = append(sampled, interpolate(coords[i-1], coords[i], covered/segmentDist))
			accumulated = 0
		}
		accumulated += segmentDist - covered
	}

	if last := coords[len(coords)-1]; sampled[len(sampled)-1] != last {
		sampled = append(sampled, last)
	}
	return sampled
}

func interpolate(a, b Coordinate, fraction float64) Coordinate {
	return Coordinate{
		Lat: a.Lat + fraction*(b.Lat-a.Lat),
		Lon: a.Lon + fraction*(b.Lon-a.Lon),
	}
}

// segment is the distance between consecutive decoded points. Decoded points
// are always in range, so the error is ignored.
func segment(a, b Coordinate) float64 {
	d, _ := geo.Distance(a, b)
	return d
}
