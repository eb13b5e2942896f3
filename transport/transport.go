package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

//go:generate go tool mockgen -source=transport.go -destination=mock_transport.go -package=transport

// Transport represents an established, bidirectional byte stream to an
// instrument.
//
// A Transport is assumed to be already connected and ready for use. Typical
// implementations are serial ports or in-memory fakes used for testing. A
// Read that returns (0, nil) means the read timeout elapsed without data,
// which is how go.bug.st/serial reports timeouts.
type Transport interface {
	io.ReadWriteCloser
}

// InputResetter is implemented by transports that can drop bytes received
// but not yet read. serial.Port implements it.
type InputResetter interface {
	ResetInputBuffer() error
}

// Dialer opens a Transport to an instrument.
//
// Dialer abstracts how the connection is created and is intended to be used
// during driver construction only. Once a Transport is obtained, the Dialer
// is no longer needed.
type Dialer interface {
	// Dial creates and returns a connected Transport. It should respect
	// cancellation of the context before blocking on the device.
	Dial(ctx context.Context) (Transport, error)
}

// ErrTimeout is returned when a read timeout elapses before a byte arrives.
var ErrTimeout = errors.New("transport: read timeout")

// SerialDialer opens a Transport over a serial port using go.bug.st/serial.
type SerialDialer struct {
	// PortName is the device path, e.g. /dev/ttyUSB0 or COM3.
	PortName string
	// Mode overrides BaudRate and StopBits when set.
	Mode *serial.Mode
	// BaudRate defaults to 9600.
	BaudRate int
	// StopBits is 1 or 2, defaults to 1.
	StopBits int
	// ReadTimeout bounds every Read. Zero makes reads non-blocking and a
	// negative value blocks until data arrives.
	ReadTimeout time.Duration
}

// Dial opens the configured serial port.
func (d SerialDialer) Dial(ctx context.Context) (Transport, error) {
	if d.PortName == "" {
		return nil, errors.New("transport: serial port name is required")
	}
	if ctx == nil {
		return nil, errors.New("transport: context is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mode := d.Mode
	if mode == nil {
		mode = d.defaultMode()
	}

	port, err := serial.Open(d.PortName, mode)
	if err != nil {
		return nil, fmt.Errorf("transport: open %s: %w", d.PortName, err)
	}

	timeout := d.ReadTimeout
	if timeout < 0 {
		timeout = serial.NoTimeout
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("transport: set read timeout on %s: %w", d.PortName, err)
	}

	return port, nil
}

func (d SerialDialer) defaultMode() *serial.Mode {
	baud := d.BaudRate
	if baud == 0 {
		baud = 9600
	}
	stopBits := serial.OneStopBit
	if d.StopBits == 2 {
		stopBits = serial.TwoStopBits
	}
	return &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: stopBits,
	}
}

// ReadByte reads exactly one byte from r.
//
// An empty read is reported as ErrTimeout; any other failure is wrapped so
// callers can still match the underlying error with errors.Is.
func ReadByte(r io.Reader) (byte, error) {
	var buf [1]byte
	n, err := r.Read(buf[:])
	if n == 1 {
		return buf[0], nil
	}
	if err != nil {
		return 0, fmt.Errorf("transport: read: %w", err)
	}
	return 0, ErrTimeout
}
