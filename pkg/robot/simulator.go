package robot

import (
	"context"
	"math/rand"
	"time"

	"github.com/rovelink/rovelink/pkg/proto"
)

// Simulator produces dummy sensor data and status of the driver, used when
// the robot has no real sensors attached
type Simulator struct {
	Interval time.Duration
	Driver   *Driver
	Queue    *Queue

	// Status and Sensors enable each kind of messages
	Status  bool
	Sensors bool

	seq uint32
	gps proto.GPS
}

func NewSimulator(interval time.Duration, driver *Driver, queue *Queue) *Simulator {
	return &Simulator{
		Interval: interval,
		Driver:   driver,
		Queue:    queue,
		Status:   true,
		Sensors:  true,
		gps:      proto.GPS{Lat: 45, Lon: 90, Alt: 180},
	}
}

func (s *Simulator) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			s.Tick(now)
		}
	}
}

// Tick pushes one message of each enabled kind
func (s *Simulator) Tick(now time.Time) {
	s.seq++
	ts := float64(now.UnixNano()) / 1e9

	// also expires the last command
	steering, throttle := s.Driver.State()

	if s.Status {
		s.push(&proto.RobotStatus{
			Sequence: s.seq, Timestamp: ts, Steering: steering, Throttle: throttle,
		})
	}

	if !s.Sensors {
		return
	}

	// slow random walk around the start point
	s.gps.Lat += (rand.Float64() - 0.5) * 1e-5
	s.gps.Lon += (rand.Float64() - 0.5) * 1e-5

	s.push(&proto.SensorData{
		Sequence: s.seq, Timestamp: ts, GPS: s.gps,
		IMU: &proto.IMU{AccelZ: 1},
	})
}

func (s *Simulator) push(t proto.Telemetry) {
	if b, err := proto.EncodeTelemetry(t); err == nil {
		s.Queue.Push(b)
	}
}
