package proto

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// decimal is the only number syntax the pump prints. strconv alone would
// also take "NaN", "Inf" and hex floats.
var decimal = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

// ParseFloatReply decodes a numeric reply such as "12.345".
func ParseFloatReply(reply string) (float64, error) {
	s := strings.TrimSpace(reply)
	if s == "" {
		return 0, fmt.Errorf("%w: empty reply", ErrDecode)
	}
	if !decimal.MatchString(s) {
		return 0, fmt.Errorf("%w: %q is not a number", ErrDecode, s)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q is not a number", ErrDecode, s)
	}
	return v, nil
}

// ParseFlowRateReply decodes a RAT reply of the form "<value> <unit>".
func ParseFlowRateReply(reply string) (float64, Unit, error) {
	fields := strings.Fields(reply)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("%w: flow rate %q", ErrDecode, reply)
	}
	v, err := ParseFloatReply(fields[0])
	if err != nil {
		return 0, 0, err
	}
	u, err := ParseUnit(fields[1])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: unit %q", ErrDecode, fields[1])
	}
	return v, u, nil
}

// ParseModeReply normalises a MOD reply.
func ParseModeReply(reply string) string {
	return strings.ToLower(strings.TrimSpace(reply))
}
