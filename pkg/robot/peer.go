package robot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rovelink/rovelink/pkg/core"
	"github.com/rovelink/rovelink/pkg/proto"
	"github.com/rovelink/rovelink/pkg/webrtc"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const OpenTimeout = 15 * time.Second

var ErrPeerClosed = errors.New("robot: peer closed")

// Peer is one operator connection. Commands are read from every control
// channel and telemetry is written to every open one, so it does not
// matter which side created the channel.
type Peer struct {
	ID string

	robot *Robot
	conn  *webrtc.Conn
	track *webrtc.LocalTrack
	log   zerolog.Logger

	opened core.Waiter
	closed chan struct{}
	once   sync.Once

	mu       sync.Mutex
	channels []core.Channel
}

func newPeer(r *Robot, conn *webrtc.Conn) *Peer {
	id := core.NewID()
	return &Peer{
		ID:     id,
		robot:  r,
		conn:   conn,
		track:  webrtc.NewLocalTrack("video", "rovelink"),
		log:    r.log.With().Str("peer", id).Logger(),
		closed: make(chan struct{}),
	}
}

func (p *Peer) setup() error {
	p.conn.Listen(func(msg any) {
		switch msg := msg.(type) {
		case core.ConnState:
			p.log.Debug().Msgf("[robot] connection state: %s", msg)
			if msg.Terminal() {
				p.Close()
			}
		case core.Channel:
			p.accept(msg)
		}
	})

	if err := p.conn.AddVideoSender(p.track); err != nil {
		return err
	}

	if p.robot.cfg.CreateChannel {
		ch, err := p.conn.CreateChannel(p.robot.cfg.Label)
		if err != nil {
			return err
		}
		p.accept(ch)
	}

	return nil
}

func (p *Peer) accept(ch core.Channel) {
	if ch.Label() != p.robot.cfg.Label {
		p.log.Debug().Msgf("[robot] skip channel label=%s", ch.Label())
		return
	}

	ch.OnOpen(func() {
		p.log.Debug().Msg("[robot] control channel open")
		p.opened.Done(nil)
	})
	ch.OnClose(func() {
		p.log.Debug().Msg("[robot] control channel closed")
		p.remove(ch)
	})
	ch.OnMessage(p.onCommand)

	p.mu.Lock()
	p.channels = append(p.channels, ch)
	p.mu.Unlock()

	if ch.State() == core.ChannelStateOpen {
		p.opened.Done(nil)
	}
}

func (p *Peer) remove(ch core.Channel) {
	ch.Detach()

	p.mu.Lock()
	for i, c := range p.channels {
		if c == ch {
			p.channels = append(p.channels[:i], p.channels[i+1:]...)
			break
		}
	}
	p.mu.Unlock()
}

func (p *Peer) onCommand(data []byte) {
	cmd, err := proto.DecodeCommand(p.robot.schema, data)
	if err != nil {
		commandErrors.Inc()
		p.log.Warn().Err(err).Msg("[robot] command dropped")
		return
	}

	commandsReceived.WithLabelValues(cmd.Schema.String()).Inc()

	if p.robot.Driver.Apply(cmd) {
		p.log.Trace().Msgf("[robot] command seq=%d steering=%.2f throttle=%.2f type=%s value=%.2f",
			cmd.Sequence, cmd.Steering, cmd.Throttle, cmd.Direction, cmd.Value)
	}
}

// run lives until the connection is over
func (p *Peer) run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case <-p.closed:
			return ErrPeerClosed
		case <-ctx.Done():
			return nil
		}
	})

	g.Go(func() error {
		return p.pump(ctx)
	})

	err := g.Wait()

	p.Close()
	p.robot.release(p)

	if errors.Is(err, ErrPeerClosed) {
		return nil
	}
	return err
}

// pump sends queued telemetry every interval
func (p *Peer) pump(ctx context.Context) error {
	if err := p.opened.WaitTimeout(OpenTimeout); err != nil {
		return fmt.Errorf("robot: control channel: %w", err)
	}

	ticker := time.NewTicker(p.robot.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.flush()
		}
	}
}

func (p *Peer) flush() {
	items := p.robot.Queue.Drain()
	if len(items) == 0 {
		return
	}

	p.mu.Lock()
	channels := append([]core.Channel(nil), p.channels...)
	p.mu.Unlock()

	for _, ch := range channels {
		if ch.State() != core.ChannelStateOpen {
			continue
		}
		for _, b := range items {
			if err := ch.Send(b); err != nil {
				p.log.Debug().Err(err).Msg("[robot] telemetry send")
				break
			}
			telemetrySent.Inc()
		}
	}
}

func (p *Peer) Close() {
	p.once.Do(func() {
		close(p.closed)
		p.opened.Done(ErrPeerClosed)

		p.mu.Lock()
		for _, ch := range p.channels {
			ch.Detach()
		}
		p.channels = nil
		p.mu.Unlock()

		_ = p.conn.Close()
		p.log.Debug().Msg("[robot] peer closed")
	})
}

func (p *Peer) Closed() <-chan struct{} {
	return p.closed
}

func (p *Peer) RemoteAddr() string {
	return p.conn.RemoteAddr()
}
