package proto

import (
	"fmt"
	"strings"
)

// Unit is a flow rate range understood by the pump.
type Unit int

const (
	UnitMicroLitersPerMinute Unit = iota
	UnitMilliLitersPerMinute
	UnitMicroLitersPerHour
	UnitMilliLitersPerHour
)

// unitNames holds, per unit, the display name, the wire code used by RAT
// and the token the pump prints in RAT replies.
var unitNames = [...]struct {
	name, code, token string
}{
	UnitMicroLitersPerMinute: {"uL/min", "UM", "ul/mn"},
	UnitMilliLitersPerMinute: {"mL/min", "MM", "ml/mn"},
	UnitMicroLitersPerHour:   {"uL/hr", "UH", "ul/hr"},
	UnitMilliLitersPerHour:   {"mL/hr", "MH", "ml/hr"},
}

// Units lists every unit the pump understands.
func Units() []Unit {
	return []Unit{
		UnitMicroLitersPerMinute,
		UnitMilliLitersPerMinute,
		UnitMicroLitersPerHour,
		UnitMilliLitersPerHour,
	}
}

func (u Unit) valid() bool {
	return u >= 0 && int(u) < len(unitNames)
}

func (u Unit) String() string {
	if !u.valid() {
		return fmt.Sprintf("Unit(%d)", int(u))
	}
	return unitNames[u].name
}

// Code returns the two letter RAT argument for u.
func (u Unit) Code() (string, error) {
	if !u.valid() {
		return "", fmt.Errorf("%w: %d", ErrInvalidUnit, int(u))
	}
	return unitNames[u].code, nil
}

func (u Unit) MarshalText() ([]byte, error) {
	if !u.valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidUnit, int(u))
	}
	return []byte(u.String()), nil
}

func (u *Unit) UnmarshalText(text []byte) error {
	v, err := ParseUnit(string(text))
	if err != nil {
		return err
	}
	*u = v
	return nil
}

// ParseUnit accepts a display name ("uL/min") or a reply token ("ul/mn"),
// ignoring case.
func ParseUnit(s string) (Unit, error) {
	s = strings.TrimSpace(s)
	for _, u := range Units() {
		n := unitNames[u]
		if strings.EqualFold(s, n.name) || strings.EqualFold(s, n.token) {
			return u, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidUnit, s)
}

// UnitFromCode is the inverse of Unit.Code.
func UnitFromCode(code string) (Unit, error) {
	for _, u := range Units() {
		if strings.EqualFold(code, unitNames[u].code) {
			return u, nil
		}
	}
	return 0, fmt.Errorf("%w: code %q", ErrInvalidUnit, code)
}

var (
	volumePrefix = map[byte]float64{'m': 1, 'u': 1e-3, 'n': 1e-6}
	timeInterval = map[string]float64{"hr": 1, "min": 1.0 / 60, "sec": 1.0 / 3600}
)

// litersPerHour returns how many mL/hr one unit of name is worth.
func litersPerHour(name string) (float64, error) {
	vol, interval, ok := strings.Cut(name, "/")
	if !ok || len(vol) == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidUnit, name)
	}
	prefix, ok := volumePrefix[strings.ToLower(vol)[0]]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidUnit, name)
	}
	per, ok := timeInterval[strings.ToLower(interval)]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidUnit, name)
	}
	return prefix / per, nil
}

// ConversionFactor returns the factor that converts a rate expressed in
// from into one expressed in to. Names have the form <m|u|n>L/<hr|min|sec>.
func ConversionFactor(from, to string) (float64, error) {
	f, err := litersPerHour(from)
	if err != nil {
		return 0, err
	}
	t, err := litersPerHour(to)
	if err != nil {
		return 0, err
	}
	return f / t, nil
}

// NormalizeRate maps a rate in any convertible unit onto one the pump
// accepts. nL/sec has no wire code and is sent as uL/hr.
func NormalizeRate(value float64, unit string) (float64, Unit, error) {
	if u, err := ParseUnit(unit); err == nil {
		return value, u, nil
	}
	if strings.EqualFold(strings.TrimSpace(unit), "nL/sec") {
		f, err := ConversionFactor("nL/sec", UnitMicroLitersPerHour.String())
		if err != nil {
			return 0, 0, err
		}
		return value * f, UnitMicroLitersPerHour, nil
	}
	return 0, 0, fmt.Errorf("%w: %q", ErrInvalidUnit, unit)
}
