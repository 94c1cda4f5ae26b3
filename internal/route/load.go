package route

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/breatheroute/wayfinder/internal/geo"
)

// Load maps provider step records into a Route. A record list of length zero
// produces a route that is not ready.
func Load(records []StepRecord) (*Route, error) {
	steps := make([]Step, 0, len(records))
	for i, rec := range records {
		if err := geo.Validate(rec.Start); err != nil {
			return nil, fmt.Errorf("step %d start: %w", i, err)
		}
		if err := geo.Validate(rec.End); err != nil {
			return nil, fmt.Errorf("step %d end: %w", i, err)
		}
		if rec.DistanceMeters < 0 || rec.DurationSeconds < 0 {
			return nil, fmt.Errorf("step %d: negative distance or duration: %w", i, ErrInvalidStep)
		}

		text := StripHTML(rec.InstructionHTML)
		steps = append(steps, Step{
			Start:           rec.Start,
			End:             rec.End,
			DistanceMeters:  rec.DistanceMeters,
			DurationSeconds: rec.DurationSeconds,
			Instruction:     text,
			Maneuver:        Classify(rec.ManeuverCode, text),
		})
	}
	return &Route{steps: steps}, nil
}

// blockTags get a separating space so "St<div>Destination" does not collapse
// into "StDestination".
var blockTags = map[string]bool{
	"div": true, "br": true, "p": true, "li": true, "wbr": true,
}

// StripHTML removes tags and decodes entities from provider instruction
// markup, collapsing runs of whitespace.
func StripHTML(s string) string {
	if s == "" {
		return ""
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			if blockTags[string(name)] {
				b.WriteByte(' ')
			}
		}
	}
}

// Classify derives the maneuver from an explicit provider code, falling back
// to keyword search in the instruction text.
func Classify(code, instruction string) Maneuver {
	if m := ClassifyCode(code); m != ManeuverUnknown {
		return m
	}
	return ClassifyText(instruction)
}

// ClassifyCode maps provider maneuver codes (e.g. "turn-left",
// "turn-sharp-right", "uturn-left", "straight") to a Maneuver.
func ClassifyCode(code string) Maneuver {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return ManeuverUnknown
	}
	switch {
	case strings.HasPrefix(code, "uturn"), strings.HasPrefix(code, "u-turn"):
		return ManeuverUTurn
	case strings.HasPrefix(code, "turn-") && strings.HasSuffix(code, "left"):
		return ManeuverLeft
	case strings.HasPrefix(code, "turn-") && strings.HasSuffix(code, "right"):
		return ManeuverRight
	case code == "straight", code == "depart", code == "continue",
		code == "keep-left", code == "keep-right":
		return ManeuverStraight
	default:
		return ManeuverUnknown
	}
}

var (
	uturnPattern    = regexp.MustCompile(`\bu-?turn\b`)
	leftPattern     = regexp.MustCompile(`\bturn (sharp |slight |slightly )?left\b`)
	rightPattern    = regexp.MustCompile(`\bturn (sharp |slight |slightly )?right\b`)
	straightPattern = regexp.MustCompile(`\b(continue straight|go straight|head (north|south|east|west))`)
)

// ClassifyText searches the instruction case-insensitively for turn keywords.
func ClassifyText(instruction string) Maneuver {
	text := strings.ToLower(instruction)
	switch {
	case uturnPattern.MatchString(text):
		return ManeuverUTurn
	case leftPattern.MatchString(text):
		return ManeuverLeft
	case rightPattern.MatchString(text):
		return ManeuverRight
	case straightPattern.MatchString(text):
		return ManeuverStraight
	default:
		return ManeuverUnknown
	}
}
