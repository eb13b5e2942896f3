package proto

import "errors"

var (
	// ErrFraming is returned when a reply does not start with a line feed.
	//
	// The exchange is abandoned and the last known status is kept.
	ErrFraming = errors.New("framing error")

	// ErrNoPrompt is returned when no <digit><prompt> pair appears within
	// MaxScan bytes of a reply.
	//
	// This typically indicates a wrong pump address, a baud rate mismatch or
	// two hosts talking on the same bus.
	ErrNoPrompt = errors.New("expected prompt")

	// ErrDecode is returned when a reply does not have the shape the command
	// expects, e.g. a non-numeric diameter.
	ErrDecode = errors.New("decode error")

	// ErrValueRange is returned for numeric arguments that cannot be
	// represented in the pump's six character field.
	ErrValueRange = errors.New("value out of range")

	// ErrInvalidUnit is returned for flow rate units the pump does not know.
	ErrInvalidUnit = errors.New("invalid unit")

	// ErrInvalidMode is returned for operating modes other than pump and
	// volume.
	ErrInvalidMode = errors.New("invalid mode")
)
