package robot

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/rovelink/rovelink/pkg/proto"
	"github.com/rs/zerolog"
)

// OpenSerial opens already configured tty, ex. `stty -F /dev/ttyACM0 115200 raw`
func OpenSerial(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_RDWR|syscall.O_NOCTTY, 0)
}

// SerialLink talks to the motor controller: untagged Drive bodies go out,
// untagged RobotStatus bodies come back, both in length framed packets
type SerialLink struct {
	rw  io.ReadWriter
	log zerolog.Logger

	mu sync.Mutex
}

// neutral is steering=0, throttle=0 written explicitly, firmware drops
// empty frames
var neutral = []byte{0x0d, 0, 0, 0, 0, 0x15, 0, 0, 0, 0}

func NewSerialLink(rw io.ReadWriter, log zerolog.Logger) *SerialLink {
	return &SerialLink{rw: rw, log: log}
}

// Drive implements Motor
func (l *SerialLink) Drive(steering, throttle float32) error {
	b, err := proto.EncodeCommand(proto.Command{
		Schema: proto.SchemaDrive, Steering: steering, Throttle: throttle,
	})
	if err != nil {
		return err
	}

	// firmware doesn't know tags
	body := b[1:]
	if len(body) == 0 {
		body = neutral
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err = proto.WriteFrame(l.rw, body); err != nil {
		l.log.Warn().Err(err).Msg("[robot] serial write")
	}
	return err
}

// Run reads status frames into queue until error or ctx done
func (l *SerialLink) Run(ctx context.Context, queue *Queue) error {
	rd := proto.NewFrameReader(l.rw)

	for {
		payload, err := rd.ReadFrame()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		b := append([]byte{proto.TagRobotStatus}, payload...)
		if _, err = proto.DecodeTelemetry(b); err != nil {
			l.log.Debug().Err(err).Msg("[robot] serial frame")
			continue
		}

		queue.Push(b)
	}
}

// WitMotion reads 11-byte frames of WitMotion IMU:
//
//	0x55 type data[8] checksum
//
// type 0x51 acceleration, 0x52 angular velocity, 0x53 angle. Angle is
// reported in GPS fields as roll, pitch, yaw, there is no real GPS on board.
type WitMotion struct {
	rd  io.Reader
	log zerolog.Logger

	state proto.SensorData
	imu   proto.IMU
}

func NewWitMotion(rd io.Reader, log zerolog.Logger) *WitMotion {
	return &WitMotion{rd: rd, log: log}
}

var errWitMotion = errors.New("witmotion: wrong frame")

// Parse applies one frame to the state, returns true on angle frame, which
// is the last one in a report
func (w *WitMotion) Parse(frame []byte) (bool, error) {
	if len(frame) != 11 || frame[0] != 0x55 {
		return false, errWitMotion
	}

	var sum byte
	for _, b := range frame[:10] {
		sum += b
	}
	if sum != frame[10] {
		return false, errWitMotion
	}

	x := float64(int16(binary.LittleEndian.Uint16(frame[2:]))) / 32768
	y := float64(int16(binary.LittleEndian.Uint16(frame[4:]))) / 32768
	z := float64(int16(binary.LittleEndian.Uint16(frame[6:]))) / 32768

	switch frame[1] {
	case 0x51:
		w.imu.AccelX, w.imu.AccelY, w.imu.AccelZ = float32(x*16), float32(y*16), float32(z*16)
	case 0x52:
		w.imu.GyroX, w.imu.GyroY, w.imu.GyroZ = float32(x*2000), float32(y*2000), float32(z*2000)
	case 0x53:
		w.state.GPS = proto.GPS{Lat: x * 180, Lon: y * 180, Alt: z * 180}
		return true, nil
	}

	return false, nil
}

// Run pushes SensorData on every complete report
func (w *WitMotion) Run(ctx context.Context, queue *Queue) error {
	frame := make([]byte, 11)
	one := frame[:1]

	for {
		// sync to frame header
		if _, err := io.ReadFull(w.rd, one); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if one[0] != 0x55 {
			continue
		}
		if _, err := io.ReadFull(w.rd, frame[1:]); err != nil {
			return err
		}

		done, err := w.Parse(frame)
		if err != nil {
			w.log.Trace().Err(err).Send()
			continue
		}
		if !done {
			continue
		}

		w.state.Sequence++
		w.state.Timestamp = float64(time.Now().UnixNano()) / 1e9
		imu := w.imu
		w.state.IMU = &imu

		b, err := proto.EncodeTelemetry(&w.state)
		if err != nil {
			return err
		}
		queue.Push(b)
	}
}
