package pump

import "errors"

var (
	// ErrNoDialer is returned when a Bus is constructed without a Dialer.
	//
	// This indicates a configuration error. A Dialer is required in order to
	// establish a connection to the pump chain.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrNotInitialized is returned when the Dialer produced no Transport or
	// when an operation is attempted on a zero Bus.
	ErrNotInitialized = errors.New("bus not initialized")

	// ErrAlreadyClosed is returned when Close is called on a Bus that has
	// already been closed, and by every exchange attempted afterwards.
	ErrAlreadyClosed = errors.New("bus already closed")

	// ErrInvalidAddress is returned for negative pump addresses.
	ErrInvalidAddress = errors.New("invalid pump address")
)
