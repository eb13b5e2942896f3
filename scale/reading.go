package scale

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Reading is one line of the scale's measurement stream.
type Reading struct {
	Timestamp   int64   `json:"timestamp"`
	Force       float64 `json:"force"`
	Unit        string  `json:"unit"`
	Temperature float64 `json:"temperature"`
}

// ParseReading decodes "<timestamp>,<force>,<unit>,<temperature>".
// Fields after the fourth are ignored.
func ParseReading(line string) (Reading, error) {
	if !utf8.ValidString(line) {
		return Reading{}, fmt.Errorf("%w: invalid UTF-8 in %q", ErrDecode, line)
	}
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) < 4 {
		return Reading{}, fmt.Errorf("%w: expected 4 fields, got %d in %q", ErrDecode, len(fields), line)
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	ts, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return Reading{}, fmt.Errorf("%w: timestamp %q", ErrDecode, fields[0])
	}
	force, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return Reading{}, fmt.Errorf("%w: force %q", ErrDecode, fields[1])
	}
	temp, err := strconv.ParseFloat(fields[3], 64)
	if err != nil {
		return Reading{}, fmt.Errorf("%w: temperature %q", ErrDecode, fields[3])
	}

	return Reading{
		Timestamp:   ts,
		Force:       force,
		Unit:        fields[2],
		Temperature: temp,
	}, nil
}
