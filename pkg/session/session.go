// Package session is the operator side of a teleoperation link. A Session
// negotiates a transport with the robot, receives video and telemetry and
// sends commands over an unordered, unreliable control channel.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rovelink/rovelink/pkg/core"
	"github.com/rovelink/rovelink/pkg/proto"
	"github.com/rovelink/rovelink/pkg/signaling"
	"github.com/rs/zerolog"
)

var (
	ErrBusy   = errors.New("session: already started")
	ErrClosed = errors.New("session: closed")
)

type Mode string

const (
	// ModeLocal creates control channel before the offer
	ModeLocal Mode = "local"
	// ModeRemote waits for the channel announced by the robot
	ModeRemote Mode = "remote"
)

const DefaultLabel = "protobuf"

type Config struct {
	Schema proto.Schema
	Mode   Mode
	Label  string
	// Timeout limits candidates gathering and offer/answer round trip
	Timeout time.Duration
}

type MediaSink interface {
	Attach(track core.Track) error
	Clear()
}

type Deps struct {
	NewTransport func() (core.Transport, error)
	Exchanger    signaling.Exchanger
	Sink         MediaSink
	Log          zerolog.Logger
}

type Session struct {
	ID string

	cfg  Config
	deps Deps
	log  zerolog.Logger

	loop      *mailbox
	events    *mailbox
	observers core.Listener

	// fields below are owned by the loop goroutine
	gen       uint64
	transport core.Transport
	sub       *core.Subscription
	channel   *control
	bootstrap core.Channel
	cancel    context.CancelFunc
	controls  bool
	sequence  uint32

	mu       sync.Mutex
	snapshot Snapshot
}

func New(cfg Config, deps Deps) *Session {
	if cfg.Schema == 0 {
		cfg.Schema = proto.SchemaDrive
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeLocal
	}
	if cfg.Label == "" {
		cfg.Label = DefaultLabel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}

	s := &Session{
		ID:       core.NewID(),
		cfg:      cfg,
		deps:     deps,
		loop:     newMailbox(),
		events:   newMailbox(),
		snapshot: Snapshot{State: StateIdle},
	}
	s.log = deps.Log.With().Str("session", s.ID).Logger()

	go s.loop.run()
	go s.events.run()

	return s
}

// Listen subscribes to session events, see events.go for types
func (s *Session) Listen(f core.EventFunc) *core.Subscription {
	return s.observers.Listen(f)
}

func (s *Session) Config() Config {
	return s.cfg
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot.State
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

// Start begins a new connection attempt. Returns ErrBusy if an attempt
// is already in progress.
func (s *Session) Start() error {
	return s.call(s.start)
}

// Stop tears the connection down and waits until transport is closed.
// It is safe in any state.
func (s *Session) Stop() {
	_ = s.call(func() error {
		s.teardown(StatusStopped)
		return nil
	})
}

// SendCommand sends intent once. When the session is not connected or the
// channel is not open the command is dropped with a warning, commands are
// never queued.
func (s *Session) SendCommand(intent Intent) error {
	return s.call(func() error {
		return s.sendCommand(intent)
	})
}

// Close stops session and its goroutines. Must not be called from a
// listener function.
func (s *Session) Close() {
	s.Stop()
	s.loop.close()
	s.events.close()
	s.observers.ReleaseAll()
}

func (s *Session) call(f func() error) error {
	done := make(chan error, 1)
	if !s.loop.push(func() { done <- f() }) {
		return ErrClosed
	}
	return <-done
}

// post runs f on the loop only if connection attempt gen is still current
func (s *Session) post(gen uint64, f func()) {
	s.loop.push(func() {
		if gen == s.gen {
			f()
		}
	})
}

func (s *Session) emit(msg any) {
	s.events.push(func() {
		s.observers.Fire(msg)
	})
}

func (s *Session) status(text string) {
	s.log.Debug().Msgf("[session] %s", text)
	s.emit(StatusEvent{Text: text})
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	prev := s.snapshot.State
	s.snapshot.State = state
	s.mu.Unlock()

	if prev == state {
		return
	}

	s.log.Debug().Msgf("[session] state %s => %s", prev, state)
	transitions.WithLabelValues(string(state)).Inc()
	s.emit(StateEvent{State: state})
}

func (s *Session) setControls(enabled bool) {
	if s.controls == enabled {
		return
	}
	s.controls = enabled
	s.emit(ControlsEvent{Enabled: enabled})
}

func (s *Session) start() error {
	if s.State().Active() {
		return ErrBusy
	}

	t, err := s.deps.NewTransport()
	if err != nil {
		s.status("Failed to create transport: " + err.Error())
		return fmt.Errorf("session: transport: %w", err)
	}

	s.gen++
	gen := s.gen

	s.transport = t
	s.sequence = 0
	s.setState(StateConnecting)
	s.status(StatusStarting)

	// handlers go first, events during the handshake must not be lost
	s.sub = t.Listen(func(msg any) {
		s.post(gen, func() {
			s.onTransport(gen, msg)
		})
	})

	if err = t.AddVideoReceiver(); err != nil {
		s.teardown("Failed to add video: " + err.Error())
		return err
	}

	ch, err := t.CreateChannel(s.cfg.Label)
	if err != nil {
		s.teardown("Failed to create data channel: " + err.Error())
		return err
	}

	if s.cfg.Mode == ModeLocal {
		s.adopt(gen, ch)
	} else {
		// offer needs at least one channel for SCTP section
		s.bootstrap = ch
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	s.cancel = cancel

	s.status(StatusWaitAnswer)

	go func() {
		answer, err := signaling.Negotiate(ctx, t, s.deps.Exchanger)
		s.post(gen, func() {
			s.onAnswer(answer, err)
		})
	}()

	return nil
}

func (s *Session) onAnswer(answer core.Descriptor, err error) {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}

	if err != nil {
		s.log.Warn().Err(err).Msg("[session] signaling")
		s.teardown("Signaling failed: " + err.Error())
		return
	}

	if err = s.transport.SetRemoteDescription(answer); err != nil {
		s.log.Warn().Err(err).Msg("[session] remote description")
		s.teardown("Failed to apply answer: " + err.Error())
		return
	}

	s.status(StatusAnswer)
}

func (s *Session) onTransport(gen uint64, msg any) {
	switch msg := msg.(type) {
	case core.ConnState:
		s.status("Connection state: " + string(msg))

		switch {
		case msg == core.ConnStateConnected:
			if s.State() == StateConnecting {
				s.setState(StateConnected)
				s.setControls(true)
			}
		case msg.Terminal():
			s.teardown("Connection " + string(msg))
		}

	case core.Track:
		if msg.Kind() != "video" {
			s.log.Debug().Msgf("[session] skip track kind=%s", msg.Kind())
			return
		}
		if s.deps.Sink != nil {
			if err := s.deps.Sink.Attach(msg); err != nil {
				s.log.Warn().Err(err).Msg("[session] attach video")
				return
			}
		}
		s.emit(VideoEvent{Track: msg})

	case core.Channel:
		if msg.Label() != s.cfg.Label {
			s.log.Debug().Msgf("[session] skip channel label=%s", msg.Label())
			return
		}
		// the robot may announce own channel, it wins over a local one that
		// never opened
		if s.channel != nil && s.channel.Open() {
			s.log.Debug().Msg("[session] skip remote channel, local one is open")
			return
		}
		s.adopt(gen, msg)
	}
}

// adopt handles local and remote channels the same way
func (s *Session) adopt(gen uint64, ch core.Channel) {
	if s.channel != nil {
		s.channel.Detach()
	}

	c := &control{ch: ch}
	s.channel = c

	ch.OnOpen(func() {
		s.post(gen, func() {
			if s.channel == c {
				s.status(StatusChannelOpen)
			}
		})
	})

	ch.OnClose(func() {
		s.post(gen, func() {
			if s.channel == c {
				c.Detach()
				s.channel = nil
				s.status(StatusChannelClose)
			}
		})
	})

	ch.OnMessage(func(data []byte) {
		s.post(gen, func() {
			if s.channel == c {
				s.onMessage(data)
			}
		})
	})

	s.log.Debug().Msgf("[session] channel label=%s state=%s", ch.Label(), ch.State())

	if c.Open() {
		s.status(StatusChannelOpen)
	}
}

func (s *Session) onMessage(data []byte) {
	t, err := proto.DecodeTelemetry(data)
	if err != nil {
		decodeErrors.Inc()
		s.log.Warn().Err(err).Int("size", len(data)).Msg("[session] telemetry dropped")
		return
	}

	telemetryReceived.WithLabelValues(string(t.Kind())).Inc()

	s.mu.Lock()
	switch t := t.(type) {
	case *proto.SensorData:
		s.snapshot.SensorData = t
	case *proto.RobotStatus:
		s.snapshot.RobotStatus = t
	}
	s.mu.Unlock()

	s.emit(TelemetryEvent{Kind: t.Kind(), Telemetry: t})
}

func (s *Session) sendCommand(intent Intent) error {
	if intent.Schema() != s.cfg.Schema {
		return ErrSchemaMismatch
	}

	if s.State() != StateConnected {
		s.drop(dropNotConnected, nil)
		return nil
	}

	if s.channel == nil || !s.channel.Open() {
		s.drop(dropChannel, ErrChannelNotOpen)
		return nil
	}

	s.sequence++
	ts := float64(time.Now().UnixNano()) / 1e9

	b, err := proto.EncodeCommand(intent.command(s.sequence, ts))
	if err != nil {
		return err
	}

	if err = s.channel.Send(b); err != nil {
		if errors.Is(err, ErrChannelNotOpen) {
			s.drop(dropChannel, err)
		} else {
			s.drop(dropSend, err)
		}
		return nil
	}

	commandsSent.WithLabelValues(s.cfg.Schema.String()).Inc()
	s.log.Trace().Msgf("[session] command seq=%d size=%d", s.sequence, len(b))

	return nil
}

func (s *Session) drop(reason string, err error) {
	commandsDropped.WithLabelValues(reason).Inc()
	s.log.Warn().Err(err).Str("reason", reason).Msg("[session] command dropped")
}

// teardown is the only way out of active states, safe to call many times
func (s *Session) teardown(reason string) {
	if !s.State().Active() {
		return
	}

	// everything posted for this attempt is stale from now on
	s.gen++

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}

	if s.sub != nil {
		s.sub.Release()
		s.sub = nil
	}

	if s.channel != nil {
		s.channel.Detach()
		s.channel = nil
	}

	if s.bootstrap != nil {
		s.bootstrap.Detach()
		s.bootstrap = nil
	}

	if s.transport != nil {
		if err := s.transport.Close(); err != nil {
			s.log.Debug().Err(err).Msg("[session] close transport")
		}
		s.transport = nil
	}

	if s.deps.Sink != nil {
		s.deps.Sink.Clear()
	}

	s.mu.Lock()
	s.snapshot.SensorData = nil
	s.snapshot.RobotStatus = nil
	s.mu.Unlock()

	s.setControls(false)
	s.emit(ClearedEvent{})
	s.status(reason)
	s.setState(StateDisconnected)
	s.status(StatusReady)
}
