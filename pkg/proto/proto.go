// Package proto is the wire codec for the control channel.
//
// Every message is a single variant tag byte followed by a protobuf encoded
// body. The tag selects the schema, so the receiver never has to guess the
// variant from the shape of the payload.
package proto

import (
	"errors"
	"fmt"
	"math"
	"unicode/utf8"

	"google.golang.org/protobuf/encoding/protowire"
)

const (
	TagSensorData  byte = 'S'
	TagRobotStatus byte = 'R'
	TagDrive       byte = 'D'
	TagMove        byte = 'M'
)

var ErrDecode = errors.New("proto: decode")

type DecodeError struct {
	Tag    byte
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	s := fmt.Sprintf("proto: decode tag=0x%02x: %s", e.Tag, e.Reason)
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

func decodeError(tag byte, reason string, err error) error {
	return &DecodeError{Tag: tag, Reason: reason, Err: err}
}

var errWireType = errors.New("wrong wire type")

// walk calls visit for every field of a protobuf message body
func walk(b []byte, visit func(num protowire.Number, typ protowire.Type, v []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		m := protowire.ConsumeFieldValue(num, typ, b)
		if m < 0 {
			return protowire.ParseError(m)
		}
		if err := visit(num, typ, b[:m]); err != nil {
			return fmt.Errorf("field %d: %w", num, err)
		}
		b = b[m:]
	}
	return nil
}

func appendUint32(b []byte, num protowire.Number, v uint32) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

func appendFloat(b []byte, num protowire.Number, v float32) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, math.Float32bits(v))
}

func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendMessage(b []byte, num protowire.Number, body []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, body)
}

func readUint32(typ protowire.Type, v []byte) (uint32, error) {
	if typ != protowire.VarintType {
		return 0, errWireType
	}
	x, _ := protowire.ConsumeVarint(v)
	if x > math.MaxUint32 {
		return 0, errors.New("uint32 overflow")
	}
	return uint32(x), nil
}

func readFloat(typ protowire.Type, v []byte) (float32, error) {
	if typ != protowire.Fixed32Type {
		return 0, errWireType
	}
	x, _ := protowire.ConsumeFixed32(v)
	return math.Float32frombits(x), nil
}

func readDouble(typ protowire.Type, v []byte) (float64, error) {
	if typ != protowire.Fixed64Type {
		return 0, errWireType
	}
	x, _ := protowire.ConsumeFixed64(v)
	return math.Float64frombits(x), nil
}

func readBytes(typ protowire.Type, v []byte) ([]byte, error) {
	if typ != protowire.BytesType {
		return nil, errWireType
	}
	x, _ := protowire.ConsumeBytes(v)
	return x, nil
}

func readString(typ protowire.Type, v []byte) (string, error) {
	x, err := readBytes(typ, v)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(x) {
		return "", errors.New("invalid utf-8")
	}
	return string(x), nil
}
