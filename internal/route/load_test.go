package route_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/wayfinder/internal/geo"
	"github.com/breatheroute/wayfinder/internal/route"
)

func TestLoad_MapsRecords(t *testing.T) {
	records := []route.StepRecord{
		{
			DistanceMeters:  120,
			DurationSeconds: 90,
			Start:           geo.Coordinate{Lat: 52.3700, Lon: 4.8900},
			End:             geo.Coordinate{Lat: 52.3710, Lon: 4.8900},
			InstructionHTML: "Head <b>north</b> on <b>Damrak</b>",
		},
		{
			DistanceMeters:  150,
			DurationSeconds: 110,
			Start:           geo.Coordinate{Lat: 52.3710, Lon: 4.8900},
			End:             geo.Coordinate{Lat: 52.3710, Lon: 4.8922},
			InstructionHTML: "Turn <b>right</b> onto <b>Prins Hendrikkade</b><div style=\"font-size:0.9em\">Destination will be on the left</div>",
			ManeuverCode:    "turn-right",
		},
	}

	r, err := route.Load(records)
	require.NoError(t, err)
	require.True(t, r.IsReady())
	assert.Equal(t, 2, r.Len())

	first, err := r.Step(0)
	require.NoError(t, err)
	assert.Equal(t, "Head north on Damrak", first.Instruction)
	assert.Equal(t, route.ManeuverStraight, first.Maneuver)
	assert.False(t, first.IsTurn())

	second, err := r.Step(1)
	require.NoError(t, err)
	assert.Equal(t, "Turn right onto Prins Hendrikkade Destination will be on the left", second.Instruction)
	assert.Equal(t, route.ManeuverRight, second.Maneuver)
	assert.True(t, second.IsTurn())

	assert.InDelta(t, 270, r.TotalDistance(), 1e-9)
	assert.InDelta(t, 200, r.TotalDuration(), 1e-9)

	dest, ok := r.Destination()
	require.True(t, ok)
	assert.Equal(t, records[1].End, dest)
}

func TestLoad_EmptyIsNotReady(t *testing.T) {
	r, err := route.Load(nil)
	require.NoError(t, err)
	assert.False(t, r.IsReady())
	assert.Equal(t, 0, r.Len())

	_, ok := r.Destination()
	assert.False(t, ok)

	var nilRoute *route.Route
	assert.False(t, nilRoute.IsReady())
}

func TestLoad_RejectsInvalidRecords(t *testing.T) {
	_, err := route.Load([]route.StepRecord{{
		Start: geo.Coordinate{Lat: math.NaN(), Lon: 4.9},
		End:   geo.Coordinate{Lat: 52.37, Lon: 4.9},
	}})
	require.ErrorIs(t, err, geo.ErrInvalidCoordinate)

	_, err = route.Load([]route.StepRecord{{
		Start:          geo.Coordinate{Lat: 52.37, Lon: 4.9},
		End:            geo.Coordinate{Lat: 52.38, Lon: 4.9},
		DistanceMeters: -1,
	}})
	require.ErrorIs(t, err, route.ErrInvalidStep)
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"plain text", "plain text"},
		{"Turn <b>left</b> onto <b>Main&nbsp;St</b>", "Turn left onto Main St"},
		{"Keep &amp; merge", "Keep & merge"},
		{"A<br/>B", "A B"},
		{"  lots   of\n space ", "lots of space"},
		{"Caf&eacute; corner", "Café corner"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, route.StripHTML(tt.in), "input %q", tt.in)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		code        string
		instruction string
		want        route.Maneuver
	}{
		{"code left", "turn-left", "", route.ManeuverLeft},
		{"code sharp right", "turn-sharp-right", "", route.ManeuverRight},
		{"code slight left", "TURN-SLIGHT-LEFT", "", route.ManeuverLeft},
		{"code uturn", "uturn-left", "", route.ManeuverUTurn},
		{"code straight", "straight", "Turn left", route.ManeuverStraight},
		{"code wins over text", "turn-right", "Turn left onto X", route.ManeuverRight},
		{"unknown code falls back", "roundabout-left", "Turn left at the roundabout", route.ManeuverLeft},
		{"text left", "", "Turn left onto Main St", route.ManeuverLeft},
		{"text right mixed case", "", "TURN Right onto Elm", route.ManeuverRight},
		{"text sharp", "", "Turn sharp left", route.ManeuverLeft},
		{"text uturn", "", "Make a U-turn at Oak Ave", route.ManeuverUTurn},
		{"text head", "", "Head north on Damrak", route.ManeuverStraight},
		{"text ambiguous", "", "Slight left toward the ramp", route.ManeuverUnknown},
		{"nothing", "", "", route.ManeuverUnknown},
		{"no substring match", "", "Return leftover bikes", route.ManeuverUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, route.Classify(tt.code, tt.instruction))
		})
	}
}

func TestManeuver_IsTurn(t *testing.T) {
	assert.True(t, route.ManeuverLeft.IsTurn())
	assert.True(t, route.ManeuverRight.IsTurn())
	assert.True(t, route.ManeuverUTurn.IsTurn())
	assert.False(t, route.ManeuverStraight.IsTurn())
	assert.False(t, route.ManeuverUnknown.IsTurn())
}

func TestRoute_StepsIsCopy(t *testing.T) {
	r := route.New([]route.Step{{Instruction: "a"}})
	steps := r.Steps()
	steps[0].Instruction = "mutated"

	s, err := r.Step(0)
	require.NoError(t, err)
	assert.Equal(t, "a", s.Instruction)

	_, err = r.Step(1)
	assert.ErrorIs(t, err, route.ErrInvalidStep)
}
