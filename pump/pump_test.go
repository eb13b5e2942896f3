package pump_test

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"testing"

	"go.uber.org/mock/gomock"
	"i4.energy/lab/pumpctl/proto"
	"i4.energy/lab/pumpctl/pump"
	"i4.energy/lab/pumpctl/transport"
)

var discard = slog.New(slog.DiscardHandler)

// setup dials a bus over a mock transport, attaches pump 0 (which answers
// its version query with a stopped prompt) and scripts what follows.
func setup(t *testing.T, script func(*MockSequenceBuilder)) (*pump.Pump, *transport.MockTransport) {
	t.Helper()
	ctrl := gomock.NewController(t)

	mockTransport := transport.NewMockTransport(ctrl)
	mockDialer := transport.NewMockDialer(ctrl)

	seq := NewMockSequence(mockTransport).Version(0, "V44 1.2")
	if script != nil {
		script(seq)
	}
	gomock.InOrder(slices.Concat(
		[]any{
			mockDialer.EXPECT().Dial(gomock.Any()).Return(mockTransport, nil),
		},
		seq.Build(),
	)...)

	config, err := pump.NewConfigBuilder().
		WithDialer(mockDialer).
		WithLogger(discard).
		Build()
	if err != nil {
		t.Fatalf("unexpected error from Build(): %v", err)
	}

	ctx := context.Background()
	bus, err := pump.NewBus(ctx, config)
	if err != nil {
		t.Fatalf("unexpected error from NewBus(): %v", err)
	}
	p, err := pump.New(ctx, bus, 0)
	if err != nil {
		t.Fatalf("unexpected error from New(): %v", err)
	}
	return p, mockTransport
}

func TestPumpNew(t *testing.T) {
	t.Run("Version query sets status", func(t *testing.T) {
		p, _ := setup(t, nil)

		if p.Status() != proto.StatusStopped {
			t.Errorf("expected stopped, got %v", p.Status())
		}
		if p.Address() != 0 || p.String() != "pump 0" {
			t.Errorf("unexpected identity %q", p.String())
		}
	})

	t.Run("Silent pump is not connected", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		mockTransport := transport.NewMockTransport(ctrl)
		mockDialer := transport.NewMockDialer(ctrl)

		gomock.InOrder(slices.Concat(
			[]any{
				mockDialer.EXPECT().Dial(gomock.Any()).Return(mockTransport, nil),
			},
			NewMockSequence(mockTransport).Silent("3 VER\r").Build(),
		)...)

		config, _ := pump.NewConfigBuilder().WithDialer(mockDialer).WithLogger(discard).Build()
		bus, err := pump.NewBus(context.Background(), config)
		if err != nil {
			t.Fatalf("unexpected error from NewBus(): %v", err)
		}

		p, err := pump.New(context.Background(), bus, 3)
		if err != nil {
			t.Fatalf("New() should not fail for a silent pump, got: %v", err)
		}
		if p.Status() != proto.StatusNotConnected {
			t.Errorf("expected not connected, got %v", p.Status())
		}
	})

	t.Run("ErrInvalidAddress for negative address", func(t *testing.T) {
		p, err := pump.New(context.Background(), &pump.Bus{}, -1)
		if !errors.Is(err, pump.ErrInvalidAddress) {
			t.Errorf("expected ErrInvalidAddress, got: %v", err)
		}
		if p != nil {
			t.Error("New() should return nil pump on error")
		}
	})

	t.Run("ErrNotInitialized without bus", func(t *testing.T) {
		if _, err := pump.New(context.Background(), nil, 0); !errors.Is(err, pump.ErrNotInitialized) {
			t.Errorf("expected ErrNotInitialized, got: %v", err)
		}
	})
}

func TestPumpQueries(t *testing.T) {
	p, _ := setup(t, func(s *MockSequenceBuilder) {
		s.Exchange("0 VER\r", "\nV44 1.2\r0:").
			Exchange("0 RAT\r", "\n1.000 ml/hr\r0>").
			Exchange("0 DIA\r", "\n14.427\r0>").
			Exchange("0 TGT\r", "\n0.500\r0>").
			Exchange("0 DEL\r", "\n0.123\r0<").
			Exchange("0 MOD\r", "\nPUMP \r0/")
	})
	ctx := context.Background()

	version, err := p.Version(ctx)
	if err != nil || version != "V44 1.2" {
		t.Errorf("expected version V44 1.2, got %q, %v", version, err)
	}

	rate, unit, err := p.FlowRate(ctx)
	if err != nil {
		t.Fatalf("unexpected error from FlowRate(): %v", err)
	}
	if rate != 1 || unit != proto.UnitMilliLitersPerHour {
		t.Errorf("expected 1 mL/hr, got %v %v", rate, unit)
	}
	if p.Status() != proto.StatusRunning {
		t.Errorf("expected running, got %v", p.Status())
	}

	dia, err := p.Diameter(ctx)
	if err != nil || dia != 14.427 {
		t.Errorf("expected diameter 14.427, got %v, %v", dia, err)
	}

	target, err := p.TargetVolume(ctx)
	if err != nil || target != 0.5 {
		t.Errorf("expected target 0.5, got %v, %v", target, err)
	}

	delivered, err := p.VolumeAccumulated(ctx)
	if err != nil || delivered != 0.123 {
		t.Errorf("expected accumulated 0.123, got %v, %v", delivered, err)
	}
	if p.Status() != proto.StatusReverse {
		t.Errorf("expected reverse, got %v", p.Status())
	}

	mode, err := p.Mode(ctx)
	if err != nil || mode != "pump" {
		t.Errorf("expected mode pump, got %q, %v", mode, err)
	}
	if p.Status() != proto.StatusPaused {
		t.Errorf("expected paused, got %v", p.Status())
	}
}

func TestPumpCommands(t *testing.T) {
	tests := []struct {
		name    string
		call    func(*pump.Pump, context.Context) error
		request string
	}{
		{"Start", (*pump.Pump).Start, "0 RUN\r"},
		{"Stop", (*pump.Pump).Stop, "0 STP\r"},
		{"ClearVolumeAccumulated", (*pump.Pump).ClearVolumeAccumulated, "0 CLD\r"},
		{"ClearTarget", (*pump.Pump).ClearTarget, "0 TGT 0\r"},
		{"ReverseDirection", (*pump.Pump).ReverseDirection, "0 DIR REV\r"},
		{
			"SetDiameter",
			func(p *pump.Pump, ctx context.Context) error { return p.SetDiameter(ctx, 14.427) },
			"0 DIA 14.427\r",
		},
		{
			"SetTargetVolume",
			func(p *pump.Pump, ctx context.Context) error { return p.SetTargetVolume(ctx, 0.5) },
			"0 TGT 0.5000\r",
		},
		{
			"SetFlowRate uL/min",
			func(p *pump.Pump, ctx context.Context) error {
				return p.SetFlowRate(ctx, 0.5, proto.UnitMicroLitersPerMinute)
			},
			"0 RAT 0.5000 UM\r",
		},
		{
			"SetFlowRate truncates large values",
			func(p *pump.Pump, ctx context.Context) error {
				return p.SetFlowRate(ctx, 123456.789, proto.UnitMilliLitersPerHour)
			},
			"0 RAT 123456 MH\r",
		},
		{
			"SetDirection forward",
			func(p *pump.Pump, ctx context.Context) error { return p.SetDirection(ctx, true) },
			"0 DIR INF\r",
		},
		{
			"SetDirection backward",
			func(p *pump.Pump, ctx context.Context) error { return p.SetDirection(ctx, false) },
			"0 DIR REF\r",
		},
		{
			"SetMode pump",
			func(p *pump.Pump, ctx context.Context) error { return p.SetMode(ctx, proto.ModePump) },
			"0 MOD PMP\r",
		},
		{
			"SetMode volume",
			func(p *pump.Pump, ctx context.Context) error { return p.SetMode(ctx, proto.ModeVolume) },
			"0 MOD VOL\r",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := setup(t, func(s *MockSequenceBuilder) {
				s.Exchange(tt.request, "\n0>")
			})

			if err := tt.call(p, context.Background()); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.Status() != proto.StatusRunning {
				t.Errorf("expected status from acknowledgement, got %v", p.Status())
			}
		})
	}
}

func TestPumpErrors(t *testing.T) {
	t.Run("ErrDecode for non-numeric reply", func(t *testing.T) {
		p, _ := setup(t, func(s *MockSequenceBuilder) {
			s.Exchange("0 DIA\r", "\nOOR\r0:")
		})

		_, err := p.Diameter(context.Background())
		if !errors.Is(err, proto.ErrDecode) {
			t.Errorf("expected ErrDecode, got: %v", err)
		}
	})

	t.Run("ErrDecode for unknown flow rate unit", func(t *testing.T) {
		p, _ := setup(t, func(s *MockSequenceBuilder) {
			s.Exchange("0 RAT\r", "\n1.000 ft/dy\r0:")
		})

		_, _, err := p.FlowRate(context.Background())
		if !errors.Is(err, proto.ErrDecode) {
			t.Errorf("expected ErrDecode, got: %v", err)
		}
	})

	t.Run("ErrNoPrompt leaves status untouched", func(t *testing.T) {
		p, _ := setup(t, func(s *MockSequenceBuilder) {
			s.Exchange("0 RUN\r", "\n0>").
				Exchange("0 DIA\r", "\n"+strings.Repeat("a", proto.MaxScan))
		})
		ctx := context.Background()

		if err := p.Start(ctx); err != nil {
			t.Fatalf("unexpected error from Start(): %v", err)
		}
		_, err := p.Diameter(ctx)
		if !errors.Is(err, proto.ErrNoPrompt) {
			t.Errorf("expected ErrNoPrompt, got: %v", err)
		}
		if p.Status() != proto.StatusRunning {
			t.Errorf("expected status to stay running, got %v", p.Status())
		}
	})

	t.Run("ErrFraming leaves status untouched", func(t *testing.T) {
		p, _ := setup(t, func(s *MockSequenceBuilder) {
			s.Exchange("0 STP\r", "X")
		})

		err := p.Stop(context.Background())
		if !errors.Is(err, proto.ErrFraming) {
			t.Errorf("expected ErrFraming, got: %v", err)
		}
		if p.Status() != proto.StatusStopped {
			t.Errorf("expected status to stay stopped, got %v", p.Status())
		}
	})

	t.Run("Timeout surfaces as ErrTimeout", func(t *testing.T) {
		p, _ := setup(t, func(s *MockSequenceBuilder) {
			s.Silent("0 DEL\r")
		})

		_, err := p.VolumeAccumulated(context.Background())
		if !errors.Is(err, transport.ErrTimeout) {
			t.Errorf("expected ErrTimeout, got: %v", err)
		}
	})

	t.Run("Write errors are wrapped", func(t *testing.T) {
		writeErr := errors.New("device unplugged")
		p, mockTransport := setup(t, nil)
		mockTransport.EXPECT().Write([]byte("0 RUN\r")).Return(0, writeErr)

		err := p.Start(context.Background())
		if !errors.Is(err, writeErr) {
			t.Errorf("expected write error, got: %v", err)
		}
	})

	t.Run("Invalid arguments are rejected before any write", func(t *testing.T) {
		// The mock fails the test on any unexpected Write.
		p, _ := setup(t, nil)
		ctx := context.Background()

		if err := p.SetDiameter(ctx, 1e6); !errors.Is(err, proto.ErrValueRange) {
			t.Errorf("expected ErrValueRange, got: %v", err)
		}
		if err := p.SetTargetVolume(ctx, -2e6); !errors.Is(err, proto.ErrValueRange) {
			t.Errorf("expected ErrValueRange, got: %v", err)
		}
		if err := p.SetFlowRate(ctx, 1e6, proto.UnitMicroLitersPerHour); !errors.Is(err, proto.ErrValueRange) {
			t.Errorf("expected ErrValueRange, got: %v", err)
		}
		if err := p.SetFlowRate(ctx, 1.0, proto.Unit(42)); !errors.Is(err, proto.ErrInvalidUnit) {
			t.Errorf("expected ErrInvalidUnit, got: %v", err)
		}
		if err := p.SetMode(ctx, proto.Mode(5)); !errors.Is(err, proto.ErrInvalidMode) {
			t.Errorf("expected ErrInvalidMode, got: %v", err)
		}
		if p.Status() != proto.StatusStopped {
			t.Errorf("expected status to stay stopped, got %v", p.Status())
		}
	})
}
