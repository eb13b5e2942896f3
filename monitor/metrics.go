// Package monitor exposes the controller's instrument state as Prometheus
// metrics.
package monitor

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"i4.energy/lab/pumpctl/proto"
	"i4.energy/lab/pumpctl/transport"
)

const namespace = "pumpctl"

// Exchange results used as the "result" label.
const (
	ResultOK       = "ok"
	ResultTimeout  = "timeout"
	ResultFraming  = "framing"
	ResultNoPrompt = "no_prompt"
	ResultError    = "error"
)

var statuses = []proto.Status{
	proto.StatusNotConnected,
	proto.StatusStopped,
	proto.StatusRunning,
	proto.StatusReverse,
	proto.StatusPaused,
	proto.StatusWaitingForTrigger,
}

// Metrics holds every collector of the controller. It implements
// pump.Observer.
type Metrics struct {
	Exchanges        *prometheus.CounterVec
	ExchangeDuration *prometheus.HistogramVec
	PumpStatus       *prometheus.GaugeVec
	FlowRate         *prometheus.GaugeVec
	VolumeDelivered  *prometheus.GaugeVec
	ScaleForce       *prometheus.GaugeVec
	ScaleTemperature prometheus.Gauge
	PollErrors       *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exchanges_total",
			Help:      "Command/reply exchanges on the pump bus.",
		}, []string{"verb", "result"}),
		ExchangeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "exchange_duration_seconds",
			Help:      "Time from writing a command to reading its prompt.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"verb"}),
		PumpStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pump_status",
			Help:      "1 for the pump's last reported status, 0 for the others.",
		}, []string{"address", "status"}),
		FlowRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pump_flow_rate",
			Help:      "Configured flow rate in the pump's current unit.",
		}, []string{"address", "unit"}),
		VolumeDelivered: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pump_volume_accumulated",
			Help:      "Volume delivered since the counter was last cleared.",
		}, []string{"address"}),
		ScaleForce: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scale_force",
			Help:      "Last force reported by the load cell.",
		}, []string{"unit"}),
		ScaleTemperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scale_temperature_celsius",
			Help:      "Last temperature reported by the load cell.",
		}),
		PollErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_errors_total",
			Help:      "Failed samples per device.",
		}, []string{"device"}),
	}

	for _, c := range []prometheus.Collector{
		m.Exchanges,
		m.ExchangeDuration,
		m.PumpStatus,
		m.FlowRate,
		m.VolumeDelivered,
		m.ScaleForce,
		m.ScaleTemperature,
		m.PollErrors,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// NewRegistry returns a registry that already carries the Go runtime and
// process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// ObserveExchange records one bus exchange.
func (m *Metrics) ObserveExchange(address int, verb string, elapsed time.Duration, err error) {
	m.Exchanges.WithLabelValues(verb, Result(err)).Inc()
	m.ExchangeDuration.WithLabelValues(verb).Observe(elapsed.Seconds())
}

// SetPumpStatus marks status as the current state of the pump at address.
func (m *Metrics) SetPumpStatus(address int, status proto.Status) {
	addr := strconv.Itoa(address)
	for _, s := range statuses {
		v := 0.0
		if s == status {
			v = 1
		}
		m.PumpStatus.WithLabelValues(addr, s.String()).Set(v)
	}
}

// SetFlowRate records the pump's flow rate. Only the current unit carries
// a series.
func (m *Metrics) SetFlowRate(address int, value float64, unit proto.Unit) {
	addr := strconv.Itoa(address)
	m.FlowRate.DeletePartialMatch(prometheus.Labels{"address": addr})
	m.FlowRate.WithLabelValues(addr, unit.String()).Set(value)
}

func (m *Metrics) SetVolumeAccumulated(address int, value float64) {
	m.VolumeDelivered.WithLabelValues(strconv.Itoa(address)).Set(value)
}

func (m *Metrics) SetScaleReading(force float64, unit string, temperature float64) {
	m.ScaleForce.Reset()
	m.ScaleForce.WithLabelValues(unit).Set(force)
	m.ScaleTemperature.Set(temperature)
}

func (m *Metrics) PollError(device string) {
	m.PollErrors.WithLabelValues(device).Inc()
}

// Result classifies an exchange error for the "result" label.
func Result(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, transport.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ResultTimeout
	case errors.Is(err, proto.ErrFraming):
		return ResultFraming
	case errors.Is(err, proto.ErrNoPrompt):
		return ResultNoPrompt
	default:
		return ResultError
	}
}
