// Package telemetry samples the instruments periodically and publishes
// what it sees.
package telemetry

import (
	"fmt"
	"time"

	"i4.energy/lab/pumpctl/proto"
	"i4.energy/lab/pumpctl/scale"
)

// DeviceScale is the device name of the load cell.
const DeviceScale = "scale"

// PumpDevice returns the device name of the pump at address.
func PumpDevice(address int) string {
	return fmt.Sprintf("pump-%d", address)
}

// Snapshot is one sample of one device. Exactly one of Pump and Scale is
// set.
type Snapshot struct {
	Device    string         `json:"device"`
	Timestamp time.Time      `json:"timestamp"`
	Pump      *PumpSample    `json:"pump,omitempty"`
	Scale     *scale.Reading `json:"scale,omitempty"`
}

type PumpSample struct {
	Address           int          `json:"address"`
	Status            proto.Status `json:"status"`
	FlowRate          float64      `json:"flow_rate"`
	Unit              proto.Unit   `json:"unit"`
	VolumeAccumulated float64      `json:"volume_accumulated"`
}
