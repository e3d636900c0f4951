package session

import (
	"errors"

	"github.com/rovelink/rovelink/pkg/proto"
)

var ErrSchemaMismatch = errors.New("session: intent does not match session schema")

// Intent is operator command without wire details, Session adds sequence
// and timestamp
type Intent struct {
	Steering float32 `json:"steering,omitempty"`
	Throttle float32 `json:"throttle,omitempty"`

	Direction proto.Direction `json:"type,omitempty"`
	Value     float32         `json:"value,omitempty"`
}

func Drive(steering, throttle float32) Intent {
	return Intent{Steering: steering, Throttle: throttle}
}

// Move is a discrete step, value is duration in seconds
func Move(direction proto.Direction, value float32) Intent {
	return Intent{Direction: direction, Value: value}
}

func (i Intent) Schema() proto.Schema {
	if i.Direction != "" {
		return proto.SchemaMove
	}
	return proto.SchemaDrive
}

func (i Intent) command(seq uint32, ts float64) proto.Command {
	return proto.Command{
		Schema:    i.Schema(),
		Sequence:  seq,
		Timestamp: ts,
		Steering:  i.Steering,
		Throttle:  i.Throttle,
		Direction: i.Direction,
		Value:     i.Value,
	}
}
