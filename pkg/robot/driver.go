package robot

import (
	"sync"
	"time"

	"github.com/rovelink/rovelink/pkg/proto"
)

const (
	DefaultHold = 100 * time.Millisecond
	MaxMove     = 5 * time.Second
)

// Motor receives every applied command, ex. SerialLink
type Motor interface {
	Drive(steering, throttle float32) error
}

// Driver keeps the current motion. A command holds only for Hold (drive)
// or its value in seconds (move), then motion returns to neutral.
type Driver struct {
	Hold    time.Duration
	Motor   Motor
	// Ordered drops drive commands with sequence not above the last one.
	// Off by default, operators may send random sequence numbers.
	Ordered bool

	mu       sync.Mutex
	steering float32
	throttle float32
	expires  time.Time
	lastSeq  uint32
	now      func() time.Time
}

func NewDriver(hold time.Duration, motor Motor) *Driver {
	if hold <= 0 {
		hold = DefaultHold
	}
	return &Driver{Hold: hold, Motor: motor, now: time.Now}
}

// Reset forgets sequence of previous operator
func (d *Driver) Reset() {
	d.mu.Lock()
	d.lastSeq = 0
	d.mu.Unlock()
}

// Apply returns false for an unknown schema or, with Ordered, for a drive
// command older than the last applied one. Zero sequence is never compared.
// Without Ordered the last arrival wins.
func (d *Driver) Apply(cmd proto.Command) bool {
	var steering, throttle float32
	hold := d.Hold

	switch cmd.Schema {
	case proto.SchemaDrive:
		steering, throttle = clamp(cmd.Steering), clamp(cmd.Throttle)
	case proto.SchemaMove:
		switch cmd.Direction {
		case proto.Up:
			throttle = 1
		case proto.Down:
			throttle = -1
		case proto.Left:
			steering = -1
		case proto.Right:
			steering = 1
		}
		if cmd.Value > 0 {
			hold = time.Duration(float64(cmd.Value) * float64(time.Second))
			if hold > MaxMove {
				hold = MaxMove
			}
		}
	default:
		return false
	}

	d.mu.Lock()
	if d.Ordered && cmd.Schema == proto.SchemaDrive && cmd.Sequence != 0 {
		if cmd.Sequence <= d.lastSeq {
			d.mu.Unlock()
			commandsStale.Inc()
			return false
		}
		d.lastSeq = cmd.Sequence
	}
	d.steering, d.throttle = steering, throttle
	d.expires = d.now().Add(hold)
	d.mu.Unlock()

	if d.Motor != nil {
		_ = d.Motor.Drive(steering, throttle)
	}

	return true
}

// State returns current motion, neutral after hold expires
func (d *Driver) State() (steering, throttle float32) {
	d.mu.Lock()
	if d.expires.IsZero() || d.now().Before(d.expires) {
		steering, throttle = d.steering, d.throttle
		d.mu.Unlock()
		return
	}

	moving := d.steering != 0 || d.throttle != 0
	d.steering, d.throttle = 0, 0
	d.mu.Unlock()

	if moving && d.Motor != nil {
		_ = d.Motor.Drive(0, 0)
	}
	return
}

func clamp(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
