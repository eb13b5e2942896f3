package proto

import (
	"fmt"
	"math"
	"strconv"
)

// FieldWidth is the width of numeric arguments on the wire.
const FieldWidth = 6

// MaxValue is the exclusive magnitude limit for numeric arguments.
const MaxValue = 1e6

// FormatFloat renders v for the pump's fixed width numeric field.
//
// The value is formatted with six decimals and then cut to FieldWidth
// characters. Truncation, not rounding, is what the pump firmware expects;
// note that it drops precision silently, e.g. 0.0000001 becomes "0.0000".
func FormatFloat(v float64) (string, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) >= MaxValue {
		return "", fmt.Errorf("%w: %v", ErrValueRange, v)
	}
	s := strconv.FormatFloat(v, 'f', 6, 64)
	if len(s) > FieldWidth {
		s = s[:FieldWidth]
	}
	return s, nil
}
