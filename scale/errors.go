package scale

import "errors"

var (
	// ErrNoDialer is returned when a Scale is constructed without a Dialer.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrNotInitialized is returned when the Dialer produced no Transport.
	ErrNotInitialized = errors.New("scale not initialized")

	// ErrAlreadyClosed is returned by operations on a closed Scale.
	ErrAlreadyClosed = errors.New("scale already closed")

	// ErrPromptTimeout is returned when an expected banner or prompt does
	// not arrive within the configured prompt timeout.
	ErrPromptTimeout = errors.New("prompt timeout")

	// ErrNoReading is returned when no complete reading line is buffered.
	ErrNoReading = errors.New("no reading available")

	// ErrDecode is returned for reading lines that are not
	// "<timestamp>,<force>,<unit>,<temperature>".
	ErrDecode = errors.New("decode error")
)
