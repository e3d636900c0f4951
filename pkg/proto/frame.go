package proto

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
)

// MaxFrameSize is the receive buffer of the motor controller firmware.
const MaxFrameSize = 128

var ErrFrameSize = errors.New("proto: invalid frame size")

// WriteFrame writes payload with a 2-byte big-endian length prefix.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) == 0 || len(payload) > MaxFrameSize {
		return ErrFrameSize
	}

	b := make([]byte, 2+len(payload))
	binary.BigEndian.PutUint16(b, uint16(len(payload)))
	copy(b[2:], payload)

	_, err := w.Write(b)
	return err
}

type FrameReader struct {
	rd *bufio.Reader
	// Skipped counts length prefixes that were rejected.
	Skipped int
}

func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{rd: bufio.NewReader(r)}
}

// ReadFrame returns the next payload. A zero or oversized length prefix is
// dropped and reading starts over with the next two bytes, the same way the
// firmware resynchronizes.
func (f *FrameReader) ReadFrame() ([]byte, error) {
	var prefix [2]byte
	for {
		if _, err := io.ReadFull(f.rd, prefix[:]); err != nil {
			return nil, err
		}

		size := binary.BigEndian.Uint16(prefix[:])
		if size == 0 || size > MaxFrameSize {
			f.Skipped++
			continue
		}

		payload := make([]byte, size)
		if _, err := io.ReadFull(f.rd, payload); err != nil {
			return nil, err
		}
		return payload, nil
	}
}
