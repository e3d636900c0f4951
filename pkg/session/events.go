package session

import (
	"github.com/rovelink/rovelink/pkg/core"
	"github.com/rovelink/rovelink/pkg/proto"
)

// Observers of Session receive these values, in order, from one goroutine
type (
	StateEvent struct {
		State State `json:"state"`
	}

	StatusEvent struct {
		Text string `json:"text"`
	}

	TelemetryEvent struct {
		Kind      proto.Kind      `json:"kind"`
		Telemetry proto.Telemetry `json:"telemetry"`
	}

	VideoEvent struct {
		Track core.Track `json:"-"`
	}

	// ControlsEvent enables or disables command affordances
	ControlsEvent struct {
		Enabled bool `json:"enabled"`
	}

	// ClearedEvent tells to drop video and telemetry displays
	ClearedEvent struct{}
)

// Snapshot is the last telemetry of each kind
type Snapshot struct {
	State       State              `json:"state"`
	SensorData  *proto.SensorData  `json:"sensor_data,omitempty"`
	RobotStatus *proto.RobotStatus `json:"robot_status,omitempty"`
}
