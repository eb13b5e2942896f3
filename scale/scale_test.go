package scale_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"testing"
	"time"

	"go.uber.org/mock/gomock"
	"i4.energy/lab/pumpctl/scale"
	"i4.energy/lab/pumpctl/transport"
)

type staticDialer struct {
	transport transport.Transport
}

func (d staticDialer) Dial(ctx context.Context) (transport.Transport, error) {
	return d.transport, nil
}

func newScale(t *testing.T, tr transport.Transport) *scale.Scale {
	t.Helper()
	config, err := scale.NewConfigBuilder().
		WithDialer(staticDialer{tr}).
		WithLogger(slog.New(slog.DiscardHandler)).
		WithPromptTimeout(50 * time.Millisecond).
		WithPollInterval(time.Millisecond).
		WithSettleDelay(time.Millisecond).
		Build()
	if err != nil {
		t.Fatalf("unexpected error from Build(): %v", err)
	}
	s, err := scale.New(context.Background(), config)
	if err != nil {
		t.Fatalf("unexpected error from New(): %v", err)
	}
	return s
}

// menuDevice scripts the menu walk of a healthy scale.
func menuDevice(afterExit string) *transport.TestTransport {
	tr := transport.NewTestTransport()
	scriptMenu(tr, afterExit)
	return tr
}

// scriptMenu queues the replies to one more walk through the menu.
func scriptMenu(tr *transport.TestTransport, afterExit string) {
	tr.Respond("x", ">")
	tr.Respond("1", "\r\n>")
	tr.Respond("x", "Exiting\r\n"+afterExit)
}

func TestNew(t *testing.T) {
	t.Run("ErrNoDialer when no dialer provided", func(t *testing.T) {
		_, err := scale.New(context.Background(), scale.Config{})
		if !errors.Is(err, scale.ErrNoDialer) {
			t.Errorf("expected ErrNoDialer, got: %v", err)
		}
	})

	t.Run("ErrNotInitialized on nil transport", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		mockDialer := transport.NewMockDialer(ctrl)
		mockDialer.EXPECT().Dial(gomock.Any()).Return(nil, nil)

		config, _ := scale.NewConfigBuilder().WithDialer(mockDialer).Build()
		if _, err := scale.New(context.Background(), config); !errors.Is(err, scale.ErrNotInitialized) {
			t.Errorf("expected ErrNotInitialized, got: %v", err)
		}
	})
}

func TestTare(t *testing.T) {
	t.Run("Walks the menu and returns the check reading", func(t *testing.T) {
		tr := menuDevice("1000,0.0012,g,23.5\r\n")
		tr.SendData("Readings:\r\n")
		s := newScale(t, tr)

		r, err := s.Tare(context.Background())
		if err != nil {
			t.Fatalf("unexpected error from Tare(): %v", err)
		}
		if r.Force != 0.0012 || r.Unit != "g" {
			t.Errorf("unexpected check reading %+v", r)
		}
		if got := tr.Written(); !slices.Equal(got, []string{"x", "1", "x"}) {
			t.Errorf("expected keys x, 1, x, got %q", got)
		}
		if s.State() != scale.StateReady {
			t.Errorf("expected ready, got %v", s.State())
		}
	})

	t.Run("Skips streamed readings before the banner", func(t *testing.T) {
		tr := menuDevice("1003,-0.2500,g,23.6\r\n")
		tr.SendData("1001,5.0,g,23.5\r\n1002,5.0,g,23.5\r\nReadings:\r\n")
		s := newScale(t, tr)

		r, err := s.Tare(context.Background())
		if err != nil {
			t.Fatalf("unexpected error from Tare(): %v", err)
		}
		// Outside the zero tolerance is advisory only.
		if r.Force != -0.25 {
			t.Errorf("unexpected check reading %+v", r)
		}
	})

	t.Run("ErrPromptTimeout when the banner never arrives", func(t *testing.T) {
		tr := transport.NewTestTransport()
		s := newScale(t, tr)

		_, err := s.Tare(context.Background())
		if !errors.Is(err, scale.ErrPromptTimeout) {
			t.Errorf("expected ErrPromptTimeout, got: %v", err)
		}
		if len(tr.Written()) != 0 {
			t.Errorf("expected no keys to be sent, got %q", tr.Written())
		}
		if s.State() != scale.StateAwaitingBanner {
			t.Errorf("expected awaiting banner, got %v", s.State())
		}
	})

	t.Run("ErrPromptTimeout when the menu does not answer", func(t *testing.T) {
		tr := transport.NewTestTransport()
		tr.SendData("Readings:\r\n")
		s := newScale(t, tr)

		_, err := s.Tare(context.Background())
		if !errors.Is(err, scale.ErrPromptTimeout) {
			t.Errorf("expected ErrPromptTimeout, got: %v", err)
		}
		if s.State() != scale.StateAwaitingMenuPrompt {
			t.Errorf("expected awaiting menu prompt, got %v", s.State())
		}
	})

	t.Run("Tare after a reading consumed the banner", func(t *testing.T) {
		tr := menuDevice("1002,0.0010,g,23.5\r\n")
		tr.SendData("Readings:\r\n1000,5.0,g,23.5\r\n")
		s := newScale(t, tr)

		if r, err := s.Reading(context.Background()); err != nil || r.Force != 5 {
			t.Fatalf("expected reading of 5, got %+v, %v", r, err)
		}
		if _, err := s.Tare(context.Background()); err != nil {
			t.Fatalf("unexpected error from Tare(): %v", err)
		}
		if got := tr.Written(); !slices.Equal(got, []string{"x", "1", "x"}) {
			t.Errorf("expected keys x, 1, x, got %q", got)
		}
	})

	t.Run("Tare on a device already streaming at connect", func(t *testing.T) {
		tr := menuDevice("1002,0.0010,g,23.5\r\n")
		tr.SendData("1000,5.0,g,23.5\r\n1001,5.0,g,23.5\r\n")
		s := newScale(t, tr)

		if _, err := s.Reading(context.Background()); err != nil {
			t.Fatalf("unexpected error from Reading(): %v", err)
		}
		if _, err := s.Tare(context.Background()); err != nil {
			t.Errorf("unexpected error from Tare(): %v", err)
		}
	})

	t.Run("Two tares in a row", func(t *testing.T) {
		tr := menuDevice("1000,0.0012,g,23.5\r\n")
		scriptMenu(tr, "1001,0.0003,g,23.5\r\n")
		tr.SendData("Readings:\r\n")
		s := newScale(t, tr)

		if _, err := s.Tare(context.Background()); err != nil {
			t.Fatalf("unexpected error from first Tare(): %v", err)
		}
		r, err := s.Tare(context.Background())
		if err != nil {
			t.Fatalf("unexpected error from second Tare(): %v", err)
		}
		if r.Timestamp != 1001 {
			t.Errorf("expected the second check reading, got %+v", r)
		}
		if got := tr.Written(); !slices.Equal(got, []string{"x", "1", "x", "x", "1", "x"}) {
			t.Errorf("expected two menu walks, got %q", got)
		}
	})

	t.Run("Prompt followed by more output", func(t *testing.T) {
		tr := transport.NewTestTransport()
		tr.Respond("x", "> ")
		tr.Respond("1", "\r\n>1000,0.0")
		tr.Respond("x", "001,g,23.5\r\nExiting\r\n1001,0.0002,g,23.5\r\n")
		tr.SendData("Readings:\r\n")
		s := newScale(t, tr)

		r, err := s.Tare(context.Background())
		if err != nil {
			t.Fatalf("unexpected error from Tare(): %v", err)
		}
		if r.Timestamp != 1001 {
			t.Errorf("expected the check reading, got %+v", r)
		}
	})

	t.Run("Banner must match byte for byte", func(t *testing.T) {
		tr := menuDevice("")
		tr.SendData("readings:\n")
		s := newScale(t, tr)

		if _, err := s.Tare(context.Background()); !errors.Is(err, scale.ErrPromptTimeout) {
			t.Errorf("expected ErrPromptTimeout, got: %v", err)
		}
	})
}

func TestReading(t *testing.T) {
	t.Run("Decodes the single buffered line", func(t *testing.T) {
		tr := transport.NewTestTransport()
		tr.SendData("1000,0.0123,g,23.5\r\n")
		s := newScale(t, tr)

		r, err := s.Reading(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		expected := scale.Reading{Timestamp: 1000, Force: 0.0123, Unit: "g", Temperature: 23.5}
		if r != expected {
			t.Errorf("expected %+v, got %+v", expected, r)
		}
	})

	t.Run("Uses the most recent complete line", func(t *testing.T) {
		tr := transport.NewTestTransport()
		tr.SendData("1,1.0,g,20.0\r\n2,2.0,g,20.1\r\n3,3.0,g,20.2\r\n4,4.0")
		s := newScale(t, tr)

		r, err := s.Reading(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if r.Timestamp != 3 {
			t.Errorf("expected reading 3, got %+v", r)
		}

		// The partial line completes on the next read.
		tr.SendData(",g,20.3\r\n")
		r, err = s.Reading(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if r.Timestamp != 4 || r.Temperature != 20.3 {
			t.Errorf("expected reading 4, got %+v", r)
		}
	})

	t.Run("ErrNoReading on empty buffer", func(t *testing.T) {
		s := newScale(t, transport.NewTestTransport())

		if _, err := s.Reading(context.Background()); !errors.Is(err, scale.ErrNoReading) {
			t.Errorf("expected ErrNoReading, got: %v", err)
		}
	})

	t.Run("ErrDecode on short line", func(t *testing.T) {
		tr := transport.NewTestTransport()
		tr.SendData("1000,0.0123,g\r\n")
		s := newScale(t, tr)

		if _, err := s.Reading(context.Background()); !errors.Is(err, scale.ErrDecode) {
			t.Errorf("expected ErrDecode, got: %v", err)
		}
	})

	t.Run("Read errors surface", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		mockTransport := transport.NewMockTransport(ctrl)
		mockTransport.EXPECT().Read(gomock.Any()).Return(0, io.EOF)
		s := newScale(t, mockTransport)

		if _, err := s.Reading(context.Background()); !errors.Is(err, io.EOF) {
			t.Errorf("expected io.EOF, got: %v", err)
		}
	})

	t.Run("ErrAlreadyClosed after Close", func(t *testing.T) {
		tr := transport.NewTestTransport()
		s := newScale(t, tr)

		if err := s.Close(); err != nil {
			t.Fatalf("unexpected error from Close(): %v", err)
		}
		if !tr.Closed() {
			t.Error("expected transport to be closed")
		}
		if err := s.Close(); err != scale.ErrAlreadyClosed {
			t.Errorf("expected ErrAlreadyClosed, got: %v", err)
		}
		if _, err := s.Reading(context.Background()); err != scale.ErrAlreadyClosed {
			t.Errorf("expected ErrAlreadyClosed, got: %v", err)
		}
	})
}

func TestParseReading(t *testing.T) {
	r, err := scale.ParseReading("1000,0.0123,g,23.5\r\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Force != 0.0123 || r.Unit != "g" || r.Temperature != 23.5 || r.Timestamp != 1000 {
		t.Errorf("unexpected reading %+v", r)
	}

	for _, line := range []string{
		"1000,0.0123,g\r\n",
		"",
		"abc,0.0123,g,23.5",
		"1000,heavy,g,23.5",
		"1000,0.0123,g,warm",
		"1000,0.0123,g,\xff",
	} {
		if _, err := scale.ParseReading(line); !errors.Is(err, scale.ErrDecode) {
			t.Errorf("%q: expected ErrDecode, got: %v", line, err)
		}
	}
}
