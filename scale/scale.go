// Package scale drives a load-cell amplifier that streams CSV readings over
// a serial line and offers a single-key configuration menu.
package scale

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"i4.energy/lab/pumpctl/transport"
)

// Menu vocabulary
const (
	BannerReadings = "Readings:\r\n"
	BannerExiting  = "Exiting\r\n"
	MenuPrompt     = ">"

	KeyMenu = "x"
	KeyTare = "1"
)

// State is the position of the tare sequence in the device menu.
type State int

const (
	StateAwaitingBanner State = iota
	StateAwaitingMenuPrompt
	StateAwaitingExitBanner
	StateReady
)

func (s State) String() string {
	switch s {
	case StateAwaitingBanner:
		return "awaiting banner"
	case StateAwaitingMenuPrompt:
		return "awaiting menu prompt"
	case StateAwaitingExitBanner:
		return "awaiting exit banner"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// step waits for expect, then sends send (if any) and moves to next.
type step struct {
	expect string
	send   string
	next   State
}

var tareSequence = []step{
	{expect: BannerReadings, send: KeyMenu, next: StateAwaitingMenuPrompt},
	{expect: MenuPrompt, send: KeyTare, next: StateAwaitingMenuPrompt},
	{expect: MenuPrompt, send: KeyMenu, next: StateAwaitingExitBanner},
	{expect: BannerExiting, next: StateReady},
}

// Scale is a driver for the load cell. It is safe for concurrent use.
type Scale struct {
	mu        sync.Mutex
	transport transport.Transport
	// buf holds bytes read but not yet consumed as lines
	buf   []byte
	state State
	// streaming is set once the device is known to be past its banner,
	// which it prints only once after power-up
	streaming bool
	closed    bool

	config Config
	logger *slog.Logger
}

// New dials the scale. The transport is expected to have non-blocking
// reads.
func New(ctx context.Context, config Config) (*Scale, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	config.setDefaults()

	t, err := config.dialer.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("dial scale: %w", err)
	}
	if t == nil {
		return nil, ErrNotInitialized
	}

	return &Scale{
		transport: t,
		config:    config,
		logger:    config.logger,
	}, nil
}

// State returns the menu state reached by the last Tare.
func (s *Scale) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Tare zeroes the scale through its menu, waits for the load cell to
// settle and returns a check reading. A non-zero check reading is logged,
// not reported as an error.
//
// The banner is awaited only until the device has been seen streaming;
// after that the menu is opened straight away.
func (s *Scale) Tare(ctx context.Context) (Reading, error) {
	if err := s.runMenu(ctx); err != nil {
		return Reading{}, fmt.Errorf("tare: %w", err)
	}

	if err := sleep(ctx, s.config.settleDelay); err != nil {
		return Reading{}, err
	}

	r, err := s.Reading(ctx)
	if err != nil {
		return Reading{}, fmt.Errorf("tare: check reading: %w", err)
	}
	if math.Abs(r.Force) <= s.config.zeroTolerance {
		s.logger.Info("Scale tared", "force", r.Force, "unit", r.Unit)
	} else {
		s.logger.Warn("Scale not at zero after tare", "force", r.Force, "unit", r.Unit, "tolerance", s.config.zeroTolerance)
	}
	return r, nil
}

func (s *Scale) runMenu(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrAlreadyClosed
	}

	s.state = StateAwaitingBanner
	for _, st := range tareSequence {
		if st.expect == BannerReadings && s.streaming {
			s.logger.Debug("banner already seen")
		} else if err := s.waitFor(ctx, st.expect); err != nil {
			return fmt.Errorf("%s: %w", s.state, err)
		}
		if st.send != "" {
			s.logger.Debug("write", "key", st.send)
			if _, err := s.transport.Write([]byte(st.send)); err != nil {
				return fmt.Errorf("write %q: %w", st.send, err)
			}
		}
		s.state = st.next
	}
	return nil
}

// Reading drains every byte the scale has buffered and decodes the last
// complete line.
func (s *Scale) Reading(ctx context.Context) (Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Reading{}, ErrAlreadyClosed
	}

	for {
		if err := ctx.Err(); err != nil {
			return Reading{}, err
		}
		n, err := s.fill()
		if err != nil {
			return Reading{}, err
		}
		if n == 0 {
			break
		}
	}

	var last string
	for {
		line, ok := s.nextLine()
		if !ok {
			break
		}
		s.observe(line)
		if strings.TrimSpace(line) != "" {
			last = line
		}
	}
	if last == "" {
		return Reading{}, ErrNoReading
	}
	r, err := ParseReading(last)
	if err != nil {
		return Reading{}, err
	}
	s.streaming = true
	return r, nil
}

// Close releases the transport.
func (s *Scale) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrAlreadyClosed
	}
	s.closed = true
	return s.transport.Close()
}

// waitFor consumes input until expect has been seen, either as a complete
// line or, for the menu prompt which has no line ending, anywhere in the
// unterminated remainder of the buffer. The comparison is on raw bytes.
// Bytes after an unterminated match stay buffered.
func (s *Scale) waitFor(ctx context.Context, expect string) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.promptTimeout)
	defer cancel()

	for {
		for {
			line, ok := s.nextLine()
			if !ok {
				break
			}
			s.observe(line)
			if line == expect {
				return nil
			}
		}
		if !strings.HasSuffix(expect, "\n") {
			if i := bytes.Index(s.buf, []byte(expect)); i >= 0 {
				s.buf = s.buf[i+len(expect):]
				return nil
			}
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: waiting for %q: %w", ErrPromptTimeout, expect, err)
		}

		n, err := s.fill()
		if err != nil {
			return err
		}
		if n > 0 {
			continue
		}
		if err := sleep(ctx, s.config.pollInterval); err != nil {
			return fmt.Errorf("%w: waiting for %q: %w", ErrPromptTimeout, expect, err)
		}
	}
}

// fill appends whatever the transport has available to buf.
func (s *Scale) fill() (int, error) {
	var chunk [256]byte
	n, err := s.transport.Read(chunk[:])
	s.buf = append(s.buf, chunk[:n]...)
	if err != nil {
		return n, fmt.Errorf("read scale: %w", err)
	}
	return n, nil
}

// observe notes protocol landmarks in a consumed line.
func (s *Scale) observe(line string) {
	if line == BannerReadings {
		s.streaming = true
	}
}

// nextLine pops one line, terminator included, off buf.
func (s *Scale) nextLine() (string, bool) {
	i := bytes.IndexByte(s.buf, '\n')
	if i < 0 {
		return "", false
	}
	line := string(s.buf[:i+1])
	s.buf = s.buf[i+1:]
	return line, true
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
