package proto

import (
	"errors"

	"google.golang.org/protobuf/encoding/protowire"
)

type Kind string

var ErrTelemetry = errors.New("proto: empty telemetry")

const (
	KindSensorData  Kind = "sensor_data"
	KindRobotStatus Kind = "robot_status"
)

// Telemetry is either *SensorData or *RobotStatus.
type Telemetry interface {
	Kind() Kind
	Seq() uint32
	appendBody(b []byte) []byte
}

type GPS struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	Alt float64 `json:"alt"`
}

type IMU struct {
	AccelX float32 `json:"accel_x"`
	AccelY float32 `json:"accel_y"`
	AccelZ float32 `json:"accel_z"`
	GyroX  float32 `json:"gyro_x"`
	GyroY  float32 `json:"gyro_y"`
	GyroZ  float32 `json:"gyro_z"`
}

// SensorData fields:
//
//	1 sequence  uint32
//	2 timestamp double
//	3 gps       GPS{1 lat, 2 lon, 3 alt double}
//	4 imu       IMU{1..6 accel_x, accel_y, accel_z, gyro_x, gyro_y, gyro_z float}
type SensorData struct {
	Sequence  uint32  `json:"sequence"`
	Timestamp float64 `json:"timestamp"`
	GPS       GPS     `json:"gps"`
	IMU       *IMU    `json:"imu,omitempty"`
}

func (s *SensorData) Kind() Kind  { return KindSensorData }
func (s *SensorData) Seq() uint32 { return s.Sequence }

func (s *SensorData) appendBody(b []byte) []byte {
	b = appendUint32(b, 1, s.Sequence)
	b = appendDouble(b, 2, s.Timestamp)

	var gps []byte
	gps = appendDouble(gps, 1, s.GPS.Lat)
	gps = appendDouble(gps, 2, s.GPS.Lon)
	gps = appendDouble(gps, 3, s.GPS.Alt)
	b = appendMessage(b, 3, gps)

	if s.IMU != nil {
		var imu []byte
		imu = appendFloat(imu, 1, s.IMU.AccelX)
		imu = appendFloat(imu, 2, s.IMU.AccelY)
		imu = appendFloat(imu, 3, s.IMU.AccelZ)
		imu = appendFloat(imu, 4, s.IMU.GyroX)
		imu = appendFloat(imu, 5, s.IMU.GyroY)
		imu = appendFloat(imu, 6, s.IMU.GyroZ)
		b = appendMessage(b, 4, imu)
	}

	return b
}

// RobotStatus fields:
//
//	1 sequence  uint32
//	2 timestamp double
//	3 steering  float
//	4 throttle  float
type RobotStatus struct {
	Sequence  uint32  `json:"sequence"`
	Timestamp float64 `json:"timestamp"`
	Steering  float32 `json:"steering"`
	Throttle  float32 `json:"throttle"`
}

func (s *RobotStatus) Kind() Kind  { return KindRobotStatus }
func (s *RobotStatus) Seq() uint32 { return s.Sequence }

func (s *RobotStatus) appendBody(b []byte) []byte {
	b = appendUint32(b, 1, s.Sequence)
	b = appendDouble(b, 2, s.Timestamp)
	b = appendFloat(b, 3, s.Steering)
	b = appendFloat(b, 4, s.Throttle)
	return b
}

// EncodeTelemetry fails with ErrTelemetry for a nil value, typed nil
// pointers included.
func EncodeTelemetry(t Telemetry) ([]byte, error) {
	switch t := t.(type) {
	case *SensorData:
		if t != nil {
			return t.appendBody([]byte{TagSensorData}), nil
		}
	case *RobotStatus:
		if t != nil {
			return t.appendBody([]byte{TagRobotStatus}), nil
		}
	}
	return nil, ErrTelemetry
}

// DecodeTelemetry returns a *DecodeError for anything that is not
// a well formed SensorData or RobotStatus message.
func DecodeTelemetry(b []byte) (Telemetry, error) {
	if len(b) == 0 {
		return nil, decodeError(0, "empty message", nil)
	}

	var t Telemetry
	var err error

	switch tag := b[0]; tag {
	case TagSensorData:
		t, err = decodeSensorData(b[1:])
	case TagRobotStatus:
		t, err = decodeRobotStatus(b[1:])
	default:
		return nil, decodeError(tag, "unknown telemetry tag", nil)
	}

	if err != nil {
		return nil, decodeError(b[0], string(t.Kind()), err)
	}

	return t, nil
}

func decodeSensorData(b []byte) (*SensorData, error) {
	s := &SensorData{}
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (err error) {
		switch num {
		case 1:
			s.Sequence, err = readUint32(typ, v)
		case 2:
			s.Timestamp, err = readDouble(typ, v)
		case 3:
			var body []byte
			if body, err = readBytes(typ, v); err == nil {
				err = decodeGPS(body, &s.GPS)
			}
		case 4:
			var body []byte
			if body, err = readBytes(typ, v); err == nil {
				s.IMU = &IMU{}
				err = decodeIMU(body, s.IMU)
			}
		}
		return
	})
	return s, err
}

func decodeGPS(b []byte, gps *GPS) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (err error) {
		switch num {
		case 1:
			gps.Lat, err = readDouble(typ, v)
		case 2:
			gps.Lon, err = readDouble(typ, v)
		case 3:
			gps.Alt, err = readDouble(typ, v)
		}
		return
	})
}

func decodeIMU(b []byte, imu *IMU) error {
	fields := []*float32{&imu.AccelX, &imu.AccelY, &imu.AccelZ, &imu.GyroX, &imu.GyroY, &imu.GyroZ}
	return walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (err error) {
		if num >= 1 && int(num) <= len(fields) {
			*fields[num-1], err = readFloat(typ, v)
		}
		return
	})
}

func decodeRobotStatus(b []byte) (*RobotStatus, error) {
	s := &RobotStatus{}
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (err error) {
		switch num {
		case 1:
			s.Sequence, err = readUint32(typ, v)
		case 2:
			s.Timestamp, err = readDouble(typ, v)
		case 3:
			s.Steering, err = readFloat(typ, v)
		case 4:
			s.Throttle, err = readFloat(typ, v)
		}
		return
	})
	return s, err
}
