package pump

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"i4.energy/lab/pumpctl/proto"
)

// Pump drives one syringe pump on a Bus.
//
// Every operation except Status performs exactly one exchange. The status
// is taken from the prompt that ends each successful frame and is left
// untouched by failed exchanges.
type Pump struct {
	bus     *Bus
	address int
	logger  *slog.Logger

	mu     sync.RWMutex
	status proto.Status
}

// New attaches a driver for the pump at address to bus and queries its
// firmware version.
//
// A pump that does not answer is not an error: the driver is returned with
// status StatusNotConnected and becomes usable as soon as the pump answers
// a later command.
func New(ctx context.Context, bus *Bus, address int) (*Pump, error) {
	if bus == nil {
		return nil, ErrNotInitialized
	}
	if address < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAddress, address)
	}

	p := &Pump{
		bus:     bus,
		address: address,
		logger:  bus.logger.With("pump", address),
	}

	version, err := p.Version(ctx)
	if err != nil {
		p.logger.Warn("Pump did not answer version query", "error", err)
		return p, nil
	}
	p.logger.Info("Connected to pump", "version", version, "status", p.Status())
	return p, nil
}

// Address returns the pump's position on the bus.
func (p *Pump) Address() int {
	return p.address
}

func (p *Pump) String() string {
	return fmt.Sprintf("pump %d", p.address)
}

// Status returns the status seen in the most recent frame. It performs no
// I/O.
func (p *Pump) Status() proto.Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

func (p *Pump) setStatus(s proto.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = s
}

// exec runs one exchange and records the resulting status.
func (p *Pump) exec(ctx context.Context, verb string, args ...string) (string, error) {
	frame, err := p.bus.Exchange(ctx, p.address, verb, args...)
	if err != nil {
		return "", fmt.Errorf("pump %d: %w", p.address, err)
	}
	p.setStatus(frame.Status)
	return frame.Reply, nil
}

// Version returns the firmware version string.
func (p *Pump) Version(ctx context.Context) (string, error) {
	r, err := p.run(ctx, opVersion)
	return r.text, err
}

// FlowRate returns the programmed flow rate and its unit.
func (p *Pump) FlowRate(ctx context.Context) (float64, proto.Unit, error) {
	r, err := p.run(ctx, opFlowRate)
	return r.value, r.unit, err
}

// Mode returns the operating mode as reported by the pump, lower-cased.
func (p *Pump) Mode(ctx context.Context) (string, error) {
	r, err := p.run(ctx, opMode)
	return proto.ParseModeReply(r.text), err
}

// Diameter returns the syringe inside diameter in millimeters.
func (p *Pump) Diameter(ctx context.Context) (float64, error) {
	return p.runValue(ctx, opDiameter)
}

// TargetVolume returns the volume at which the pump stops in volume mode.
func (p *Pump) TargetVolume(ctx context.Context) (float64, error) {
	return p.runValue(ctx, opTargetVolume)
}

// VolumeAccumulated returns the volume delivered since the last clear.
func (p *Pump) VolumeAccumulated(ctx context.Context) (float64, error) {
	return p.runValue(ctx, opVolumeAccumulated)
}

// Start runs the pump at the programmed rate and direction.
func (p *Pump) Start(ctx context.Context) error {
	return p.runAck(ctx, opStart)
}

// Stop halts the pump. A stopped pump keeps its accumulated volume.
func (p *Pump) Stop(ctx context.Context) error {
	return p.runAck(ctx, opStop)
}

// ClearVolumeAccumulated resets the delivered volume counter to zero.
func (p *Pump) ClearVolumeAccumulated(ctx context.Context) error {
	return p.runAck(ctx, opClearVolumeAccumulated)
}

// ClearTarget sets the target volume to zero.
func (p *Pump) ClearTarget(ctx context.Context) error {
	return p.runAck(ctx, opClearTarget)
}

// ReverseDirection swaps infuse and refill.
func (p *Pump) ReverseDirection(ctx context.Context) error {
	return p.runAck(ctx, opReverse)
}

// SetDiameter sets the syringe inside diameter in millimeters.
func (p *Pump) SetDiameter(ctx context.Context, value float64) error {
	v, err := proto.FormatFloat(value)
	if err != nil {
		return err
	}
	_, err = p.exec(ctx, proto.VerbDiameter, v)
	return err
}

// SetTargetVolume sets the volume to deliver in volume mode. The value is
// validated before anything is written to the bus.
func (p *Pump) SetTargetVolume(ctx context.Context, value float64) error {
	v, err := proto.FormatFloat(value)
	if err != nil {
		return err
	}
	_, err = p.exec(ctx, proto.VerbTarget, v)
	return err
}

// SetFlowRate programs the flow rate. Both arguments are validated before
// anything is written to the bus.
func (p *Pump) SetFlowRate(ctx context.Context, value float64, unit proto.Unit) error {
	code, err := unit.Code()
	if err != nil {
		return err
	}
	v, err := proto.FormatFloat(value)
	if err != nil {
		return err
	}
	_, err = p.exec(ctx, proto.VerbRate, v, code)
	return err
}

// SetDirection selects infuse when forward is true and refill otherwise.
func (p *Pump) SetDirection(ctx context.Context, forward bool) error {
	dir := proto.DirRefill
	if forward {
		dir = proto.DirInfuse
	}
	_, err := p.exec(ctx, proto.VerbDirection, dir)
	return err
}

// SetMode switches between continuous pumping and delivering the target
// volume.
func (p *Pump) SetMode(ctx context.Context, mode proto.Mode) error {
	code, err := mode.Code()
	if err != nil {
		return err
	}
	_, err = p.exec(ctx, proto.VerbMode, code)
	return err
}
