package position

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NMEA parse errors.
var (
	ErrChecksum          = errors.New("nmea checksum mismatch")
	ErrMalformedSentence = errors.New("malformed nmea sentence")
)

// uere is the nominal user equivalent range error used to turn HDOP into a
// horizontal accuracy in meters.
const uere = 5.0

// Sentence is a checksummed NMEA 0183 sentence split into fields.
// Fields[0] is the address, e.g. "GPRMC".
type Sentence struct {
	Fields []string
}

// Type returns the sentence type without its talker ID ("RMC", "GGA").
func (s Sentence) Type() string {
	if len(s.Fields) == 0 || len(s.Fields[0]) < 3 {
		return ""
	}
	addr := s.Fields[0]
	return addr[len(addr)-3:]
}

// ParseSentence validates the checksum of line and splits it. Sentences
// without a checksum are accepted as-is.
func ParseSentence(line string) (Sentence, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") || len(line) < 7 {
		return Sentence{}, fmt.Errorf("%w: %q", ErrMalformedSentence, line)
	}

	body := line[1:]
	if star := strings.LastIndexByte(body, '*'); star >= 0 {
		want, err := strconv.ParseUint(body[star+1:], 16, 8)
		if err != nil || len(body)-star-1 != 2 {
			return Sentence{}, fmt.Errorf("%w: bad checksum field in %q", ErrMalformedSentence, line)
		}
		var sum byte
		for i := 0; i < star; i++ {
			sum ^= body[i]
		}
		if sum != byte(want) {
			return Sentence{}, fmt.Errorf("%w: got %02X want %02X", ErrChecksum, sum, want)
		}
		body = body[:star]
	}

	return Sentence{Fields: strings.Split(body, ",")}, nil
}

// NMEAParser merges RMC and GGA sentences into fixes. RMC carries position,
// date and validity; the most recent GGA supplies HDOP for accuracy.
// A parser is not safe for concurrent use.
type NMEAParser struct {
	hdop float64
}

// Parse consumes one line. It returns ok when the line produced a valid fix.
// Unsupported sentence types are skipped without error.
func (p *NMEAParser) Parse(line string) (Fix, bool, error) {
	s, err := ParseSentence(line)
	if err != nil {
		return Fix{}, false, err
	}

	switch s.Type() {
	case "RMC":
		return p.parseRMC(s.Fields)
	case "GGA":
		return Fix{}, false, p.parseGGA(s.Fields)
	default:
		return Fix{}, false, nil
	}
}

// $GPRMC,hhmmss.ss,A,ddmm.mmmm,N,dddmm.mmmm,E,speed,course,ddmmyy,...
func (p *NMEAParser) parseRMC(f []string) (Fix, bool, error) {
	if len(f) < 10 {
		return Fix{}, false, fmt.Errorf("%w: RMC has %d fields", ErrMalformedSentence, len(f))
	}
	if f[2] != "A" {
		return Fix{}, false, nil
	}

	lat, err := parseCoord(f[3], f[4])
	if err != nil {
		return Fix{}, false, err
	}
	lon, err := parseCoord(f[5], f[6])
	if err != nil {
		return Fix{}, false, err
	}
	ts, err := parseTimestamp(f[9], f[1])
	if err != nil {
		return Fix{}, false, err
	}

	fix := Fix{Lat: lat, Lon: lon, Timestamp: ts}
	if p.hdop > 0 {
		fix.Accuracy = p.hdop * uere
	}
	return fix, true, nil
}

// $GPGGA,hhmmss.ss,lat,N,lon,E,quality,sats,hdop,alt,M,...
func (p *NMEAParser) parseGGA(f []string) error {
	if len(f) < 9 {
		return fmt.Errorf("%w: GGA has %d fields", ErrMalformedSentence, len(f))
	}
	if f[6] == "" || f[6] == "0" {
		p.hdop = 0
		return nil
	}
	hdop, err := strconv.ParseFloat(f[8], 64)
	if err != nil {
		p.hdop = 0
		return nil
	}
	p.hdop = hdop
	return nil
}

// parseCoord converts ddmm.mmmm / dddmm.mmmm plus hemisphere to degrees.
func parseCoord(value, hemi string) (float64, error) {
	dot := strings.IndexByte(value, '.')
	if dot < 0 {
		dot = len(value)
	}
	if dot < 3 {
		return 0, fmt.Errorf("%w: coordinate %q", ErrMalformedSentence, value)
	}

	deg, err := strconv.ParseFloat(value[:dot-2], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: coordinate %q", ErrMalformedSentence, value)
	}
	minutes, err := strconv.ParseFloat(value[dot-2:], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: coordinate %q", ErrMalformedSentence, value)
	}

	result := deg + minutes/60
	switch hemi {
	case "S", "W":
		result = -result
	case "N", "E":
	default:
		return 0, fmt.Errorf("%w: hemisphere %q", ErrMalformedSentence, hemi)
	}
	return result, nil
}

// parseTimestamp combines an RMC ddmmyy date and hhmmss.ss time in UTC.
func parseTimestamp(date, clock string) (time.Time, error) {
	if len(date) != 6 || len(clock) < 6 {
		return time.Time{}, fmt.Errorf("%w: timestamp %q %q", ErrMalformedSentence, date, clock)
	}

	// Fractional seconds after the seconds field are accepted by time.Parse.
	value := date + clock
	if strings.HasSuffix(value, ".") {
		value = value[:len(value)-1]
	}

	ts, err := time.ParseInLocation("020106150405", value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: timestamp %q %q", ErrMalformedSentence, date, clock)
	}
	return ts, nil
}
