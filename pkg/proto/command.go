package proto

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Schema is the command layout a session speaks. The two layouts are not
// interoperable, so a session picks one for its whole lifetime.
type Schema byte

const (
	SchemaDrive Schema = iota + 1 // continuous steering/throttle
	SchemaMove                    // discrete direction + duration
)

var ErrSchema = errors.New("proto: unknown command schema")

func ParseSchema(s string) (Schema, error) {
	switch s {
	case "", "drive":
		return SchemaDrive, nil
	case "move":
		return SchemaMove, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrSchema, s)
}

func (s Schema) String() string {
	switch s {
	case SchemaDrive:
		return "drive"
	case SchemaMove:
		return "move"
	}
	return fmt.Sprintf("schema(%d)", byte(s))
}

func (s Schema) Tag() byte {
	switch s {
	case SchemaDrive:
		return TagDrive
	case SchemaMove:
		return TagMove
	}
	return 0
}

type Direction string

const (
	Up    Direction = "up"
	Down  Direction = "down"
	Left  Direction = "left"
	Right Direction = "right"
)

func (d Direction) Valid() bool {
	switch d {
	case Up, Down, Left, Right:
		return true
	}
	return false
}

// Command is an operator intent as it travels on the wire.
// Drive uses Steering and Throttle, Move uses Direction and Value (seconds).
type Command struct {
	Schema    Schema  `json:"-"`
	Sequence  uint32  `json:"sequence"`
	Timestamp float64 `json:"timestamp"`

	Steering float32 `json:"steering,omitempty"`
	Throttle float32 `json:"throttle,omitempty"`

	Direction Direction `json:"type,omitempty"`
	Value     float32   `json:"value,omitempty"`
}

// Drive fields:
//
//	1 steering  float
//	2 throttle  float
//	3 sequence  uint32
//	4 timestamp double
//
// Move fields:
//
//	1 sequence  uint32
//	2 timestamp double
//	3 type      string
//	4 value     float
func EncodeCommand(c Command) ([]byte, error) {
	b := []byte{c.Schema.Tag()}

	switch c.Schema {
	case SchemaDrive:
		b = appendFloat(b, 1, c.Steering)
		b = appendFloat(b, 2, c.Throttle)
		b = appendUint32(b, 3, c.Sequence)
		b = appendDouble(b, 4, c.Timestamp)
	case SchemaMove:
		if !c.Direction.Valid() {
			return nil, fmt.Errorf("proto: invalid direction %q", c.Direction)
		}
		b = appendUint32(b, 1, c.Sequence)
		b = appendDouble(b, 2, c.Timestamp)
		b = appendString(b, 3, string(c.Direction))
		b = appendFloat(b, 4, c.Value)
	default:
		return nil, ErrSchema
	}

	return b, nil
}

// DecodeCommand decodes a command that must match the given schema.
func DecodeCommand(schema Schema, b []byte) (Command, error) {
	if len(b) == 0 {
		return Command{}, decodeError(0, "empty message", nil)
	}

	tag := b[0]
	if tag != schema.Tag() || tag == 0 {
		return Command{}, decodeError(tag, "unexpected tag for schema "+schema.String(), nil)
	}

	c := Command{Schema: schema}

	var err error
	switch schema {
	case SchemaDrive:
		err = walk(b[1:], func(num protowire.Number, typ protowire.Type, v []byte) (err error) {
			switch num {
			case 1:
				c.Steering, err = readFloat(typ, v)
			case 2:
				c.Throttle, err = readFloat(typ, v)
			case 3:
				c.Sequence, err = readUint32(typ, v)
			case 4:
				c.Timestamp, err = readDouble(typ, v)
			}
			return
		})
	case SchemaMove:
		err = walk(b[1:], func(num protowire.Number, typ protowire.Type, v []byte) (err error) {
			switch num {
			case 1:
				c.Sequence, err = readUint32(typ, v)
			case 2:
				c.Timestamp, err = readDouble(typ, v)
			case 3:
				var s string
				if s, err = readString(typ, v); err == nil {
					c.Direction = Direction(s)
				}
			case 4:
				c.Value, err = readFloat(typ, v)
			}
			return
		})
		if err == nil && !c.Direction.Valid() {
			err = fmt.Errorf("invalid direction %q", c.Direction)
		}
	}

	if err != nil {
		return Command{}, decodeError(tag, "command", err)
	}

	return c, nil
}
