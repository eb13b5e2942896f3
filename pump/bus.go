package pump

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/encoding/unicode"

	"i4.energy/lab/pumpctl/proto"
	"i4.energy/lab/pumpctl/transport"
)

// Bus is one serial line shared by any number of daisy-chained pumps.
//
// The pumps do not tag their replies with a request identifier, so a Bus
// runs a single exchange at a time: the write of a command and the read of
// its frame happen under one lock. All Pump values sharing a Bus are safe
// for concurrent use.
type Bus struct {
	mu sync.Mutex
	// transport is the physical connection to the pump chain
	transport transport.Transport
	// closed indicates if the bus has been shut down
	closed bool
	// stale is set after a failed exchange; the input may still hold the
	// tail of its reply
	stale bool

	encoding Encoding
	logger   *slog.Logger
	observer Observer
}

// NewBus dials the transport described by config.
func NewBus(ctx context.Context, config Config) (*Bus, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	config.setDefaults()

	t, err := config.dialer.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("dial pump bus: %w", err)
	}
	if t == nil {
		return nil, ErrNotInitialized
	}

	return &Bus{
		transport: t,
		encoding:  config.encoding,
		logger:    config.logger,
		observer:  config.observer,
	}, nil
}

// Exchange sends one command to the pump at address and reads its frame.
//
// ctx is only consulted before the command is written. Once written, the
// reply is read to its prompt, bounded by MaxScan and the transport's read
// timeout, so that every command consumes exactly its own frame. Errors are
// never retried here; the caller decides whether an exchange is worth
// repeating.
func (b *Bus) Exchange(ctx context.Context, address int, verb string, args ...string) (proto.Frame, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return proto.Frame{}, ErrAlreadyClosed
	}
	if b.transport == nil {
		return proto.Frame{}, ErrNotInitialized
	}

	if err := ctx.Err(); err != nil {
		return proto.Frame{}, fmt.Errorf("command cancelled before sending: %w", err)
	}

	start := time.Now()
	frame, err := b.exchange(address, verb, args)
	if err != nil {
		b.stale = true
	}
	if b.observer != nil {
		b.observer.ObserveExchange(address, verb, time.Since(start), err)
	}
	return frame, err
}

func (b *Bus) exchange(address int, verb string, args []string) (proto.Frame, error) {
	line := proto.Command(address, verb, args...)
	cmd := strings.TrimSpace(line)

	if b.stale {
		if err := b.discardInput(); err != nil {
			return proto.Frame{}, fmt.Errorf("discard stale input before %q: %w", cmd, err)
		}
		b.stale = false
	}

	wire, err := b.encode(line)
	if err != nil {
		return proto.Frame{}, fmt.Errorf("encode command %q: %w", cmd, err)
	}
	b.logger.Debug("write", "command", cmd)
	if _, err := b.transport.Write(wire); err != nil {
		return proto.Frame{}, fmt.Errorf("write command %q: %w", cmd, err)
	}

	frame, err := proto.ReadFrame(b.transport)
	b.logger.Debug("read", "command", cmd, "raw", string(frame.Raw))
	if err != nil {
		return frame, fmt.Errorf("read reply to %q: %w", cmd, err)
	}
	return frame, nil
}

// discardInput drops whatever a failed exchange left unread. Transports
// without an input buffer to reset are left as they are.
func (b *Bus) discardInput() error {
	r, ok := b.transport.(transport.InputResetter)
	if !ok {
		return nil
	}
	b.logger.Debug("discarding stale input")
	return r.ResetInputBuffer()
}

func (b *Bus) encode(line string) ([]byte, error) {
	if b.encoding == EncodingUTF16LE {
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().Bytes([]byte(line))
	}
	return []byte(line), nil
}

// Close releases the transport. After calling Close, the bus cannot be
// reused.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrAlreadyClosed
	}
	b.closed = true

	if b.transport != nil {
		return b.transport.Close()
	}
	return nil
}
