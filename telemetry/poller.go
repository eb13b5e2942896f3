package telemetry

import (
	"context"
	"log/slog"
	"time"

	"i4.energy/lab/pumpctl/proto"
	"i4.energy/lab/pumpctl/scale"
)

// DefaultInterval is the sampling period when none is configured.
const DefaultInterval = time.Second

// Pump is the part of a pump driver the poller samples.
type Pump interface {
	Address() int
	Status() proto.Status
	FlowRate(ctx context.Context) (float64, proto.Unit, error)
	VolumeAccumulated(ctx context.Context) (float64, error)
}

// Scale is the part of a scale driver the poller samples.
type Scale interface {
	Reading(ctx context.Context) (scale.Reading, error)
}

// Metrics receives every sample.
type Metrics interface {
	SetPumpStatus(address int, status proto.Status)
	SetFlowRate(address int, value float64, unit proto.Unit)
	SetVolumeAccumulated(address int, value float64)
	SetScaleReading(force float64, unit string, temperature float64)
	PollError(device string)
}

// Poller samples the pumps and the scale every Interval. Scale, Publisher
// and Metrics are optional.
type Poller struct {
	Pumps     []Pump
	Scale     Scale
	Publisher Publisher
	Metrics   Metrics
	Interval  time.Duration
	Logger    *slog.Logger
}

// Run polls until ctx is done and returns ctx.Err().
func (p *Poller) Run(ctx context.Context) error {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		p.Poll(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Poll takes one sample of every device. Failures are logged and counted,
// never retried.
func (p *Poller) Poll(ctx context.Context) {
	for _, pump := range p.Pumps {
		if ctx.Err() != nil {
			return
		}
		if s, ok := p.samplePump(ctx, pump); ok {
			p.publish(ctx, s)
		}
	}
	if p.Scale != nil && ctx.Err() == nil {
		if s, ok := p.sampleScale(ctx); ok {
			p.publish(ctx, s)
		}
	}
}

func (p *Poller) samplePump(ctx context.Context, pump Pump) (Snapshot, bool) {
	address := pump.Address()
	device := PumpDevice(address)

	rate, unit, err := pump.FlowRate(ctx)
	if err != nil {
		p.fail(device, "flow rate", err)
		p.setStatus(address, pump.Status())
		return Snapshot{}, false
	}
	volume, err := pump.VolumeAccumulated(ctx)
	if err != nil {
		p.fail(device, "accumulated volume", err)
		p.setStatus(address, pump.Status())
		return Snapshot{}, false
	}
	status := pump.Status()

	if p.Metrics != nil {
		p.Metrics.SetPumpStatus(address, status)
		p.Metrics.SetFlowRate(address, rate, unit)
		p.Metrics.SetVolumeAccumulated(address, volume)
	}

	return Snapshot{
		Device:    device,
		Timestamp: time.Now().UTC(),
		Pump: &PumpSample{
			Address:           address,
			Status:            status,
			FlowRate:          rate,
			Unit:              unit,
			VolumeAccumulated: volume,
		},
	}, true
}

func (p *Poller) sampleScale(ctx context.Context) (Snapshot, bool) {
	r, err := p.Scale.Reading(ctx)
	if err != nil {
		p.fail(DeviceScale, "reading", err)
		return Snapshot{}, false
	}
	if p.Metrics != nil {
		p.Metrics.SetScaleReading(r.Force, r.Unit, r.Temperature)
	}
	return Snapshot{
		Device:    DeviceScale,
		Timestamp: time.Now().UTC(),
		Scale:     &r,
	}, true
}

func (p *Poller) setStatus(address int, status proto.Status) {
	if p.Metrics != nil {
		p.Metrics.SetPumpStatus(address, status)
	}
}

func (p *Poller) publish(ctx context.Context, s Snapshot) {
	if p.Publisher == nil {
		return
	}
	if err := p.Publisher.Publish(ctx, s); err != nil {
		p.logger().Error("Failed to publish snapshot", "device", s.Device, "error", err)
	}
}

func (p *Poller) fail(device, what string, err error) {
	p.logger().Warn("Poll failed", "device", device, "sample", what, "error", err)
	if p.Metrics != nil {
		p.Metrics.PollError(device)
	}
}

func (p *Poller) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}
