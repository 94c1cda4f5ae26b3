package polyline

import (
	"errors"
	"math"
	"testing"
)

// The Google reference line and a short Amsterdam route used by the ORS fixtures.
const (
	googleExample    = "_p~iF~ps|U_ulLnnqC_mqNvxq`@"
	amsterdamExample = `oos~Hoaz\cB?cB??wL`
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		encoded  string
		expected []Coordinate
	}{
		{
			name:     "single point",
			encoded:  "_p~iF~ps|U",
			expected: []Coordinate{{Lat: 38.5, Lon: -120.2}},
		},
		{
			name:    "Google example",
			encoded: googleExample,
			expected: []Coordinate{
				{Lat: 38.5, Lon: -120.2},
				{Lat: 40.7, Lon: -120.95},
				{Lat: 43.252, Lon: -126.453},
			},
		},
		{
			name:    "Amsterdam steps",
			encoded: amsterdamExample,
			expected: []Coordinate{
				{Lat: 52.37, Lon: 4.89},
				{Lat: 52.3705, Lon: 4.89},
				{Lat: 52.371, Lon: 4.89},
				{Lat: 52.371, Lon: 4.8922},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := DecodeStrict(tt.encoded)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(result) != len(tt.expected) {
				t.Fatalf("expected %d coordinates, got %d", len(tt.expected), len(result))
			}
			for i, coord := range result {
				if !coordsEqual(coord, tt.expected[i], 0.00001) {
					t.Errorf("coordinate %d: expected %+v, got %+v", i, tt.expected[i], coord)
				}
			}
		})
	}

	if Decode("") != nil {
		t.Error("expected nil for empty string")
	}
}

func TestDecodeStrict_Malformed(t *testing.T) {
	// Drop the final character so the last longitude is truncated.
	truncated := googleExample[:len(googleExample)-1]

	coords, err := DecodeStrict(truncated)
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
	if len(coords) != 2 {
		t.Errorf("expected the 2 complete points before the error, got %d", len(coords))
	}
	if got := Decode(truncated); len(got) != 2 {
		t.Errorf("lenient decode: expected 2 points, got %d", len(got))
	}

	if _, err := DecodeStrict("_p~iF\x01"); !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed for out-of-alphabet byte, got %v", err)
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	coords := []Coordinate{
		{Lat: 52.37403, Lon: 4.88969},
		{Lat: 52.37234, Lon: 4.89231},
		{Lat: 52.37001, Lon: 4.89534},
		{Lat: -33.86785, Lon: 151.20732},
	}

	decoded := Decode(Encode(coords))
	if len(decoded) != len(coords) {
		t.Fatalf("expected %d coordinates, got %d", len(coords), len(decoded))
	}
	for i, coord := range decoded {
		if !coordsEqual(coord, coords[i], 0.00001) {
			t.Errorf("coordinate %d lost precision: expected %+v, got %+v", i, coords[i], coord)
		}
	}

	if Encode(nil) != "" {
		t.Error("expected empty string for nil coordinates")
	}
	if got := Encode([]Coordinate{{Lat: 38.5, Lon: -120.2}, {Lat: 40.7, Lon: -120.95}, {Lat: 43.252, Lon: -126.453}}); got != googleExample {
		t.Errorf("expected %q, got %q", googleExample, got)
	}
}

func TestLength(t *testing.T) {
	tests := []struct {
		name           string
		coords         []Coordinate
		expectedMeters float64
		tolerance      float64
	}{
		{name: "empty", coords: nil},
		{name: "single point", coords: []Coordinate{{Lat: 52.0, Lon: 4.0}}},
		{
			name:           "Amsterdam steps",
			coords:         Decode(amsterdamExample),
			expectedMeters: 111.2 + 149.4,
			tolerance:      2,
		},
		{
			name:           "1 degree latitude",
			coords:         []Coordinate{{Lat: 0.0, Lon: 0.0}, {Lat: 1.0, Lon: 0.0}},
			expectedMeters: 111195,
			tolerance:      10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Length(tt.coords)
			if math.Abs(result-tt.expectedMeters) > tt.tolerance {
				t.Errorf("expected ~%.0fm (±%.0f), got %.1fm", tt.expectedMeters, tt.tolerance, result)
			}
		})
	}
}

func TestAlong(t *testing.T) {
	coords := []Coordinate{
		{Lat: 0, Lon: 0},
		{Lat: 0.001, Lon: 0}, // ~111 m north
		{Lat: 0.001, Lon: 0.001},
	}
	leg := Length(coords[:2])

	if _, ok := Along(nil, 10); ok {
		t.Error("expected no point on an empty line")
	}

	tests := []struct {
		name   string
		meters float64
		want   Coordinate
	}{
		{"before start", -5, coords[0]},
		{"start", 0, coords[0]},
		{"halfway first leg", leg / 2, Coordinate{Lat: 0.0005, Lon: 0}},
		{"first vertex", leg, coords[1]},
		{"past end", 10000, coords[2]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Along(coords, tt.meters)
			if !ok {
				t.Fatal("expected a point")
			}
			if !coordsEqual(got, tt.want, 1e-7) {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestSample(t *testing.T) {
	coords := []Coordinate{
		{Lat: 52.0, Lon: 4.0},
		{Lat: 52.01, Lon: 4.0}, // ~1.1km north
		{Lat: 52.02, Lon: 4.0},
		{Lat: 52.03, Lon: 4.0},
	}

	t.Run("every 500m", func(t *testing.T) {
		sampled := Sample(coords, 500)
		// ~3.3km: 6 interior samples plus both endpoints.
		if len(sampled) != 8 {
			t.Errorf("expected 8 samples, got %d", len(sampled))
		}
		if sampled[0] != coords[0] || sampled[len(sampled)-1] != coords[len(coords)-1] {
			t.Error("samples must include both endpoints")
		}
		for i := 1; i < len(sampled)-1; i++ {
			step := Length(sampled[i-1 : i+1])
			if math.Abs(step-500) > 1 {
				t.Errorf("sample %d is %.1fm from the previous one", i, step)
			}
		}
	})

	t.Run("interval exceeds length", func(t *testing.T) {
		if got := len(Sample(coords, 10000)); got != 2 {
			t.Errorf("expected start and end only, got %d", got)
		}
	})

	t.Run("empty", func(t *testing.T) {
		if Sample(nil, 500) != nil {
			t.Error("expected nil for empty coordinates")
		}
	})

	t.Run("zero interval returns all", func(t *testing.T) {
		if got := len(Sample(coords, 0)); got != len(coords) {
			t.Errorf("expected %d coordinates, got %d", len(coords), got)
		}
	})
}

func coordsEqual(a, b Coordinate, tolerance float64) bool {
	return math.Abs(a.Lat-b.Lat) <= tolerance && math.Abs(a.Lon-b.Lon) <= tolerance
}

func BenchmarkDecode(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = Decode(googleExample)
	}
}
