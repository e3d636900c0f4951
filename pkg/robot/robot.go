// Package robot is the answering endpoint of a teleoperation link: it
// streams camera video and telemetry to one operator and applies the
// commands it receives.
package robot

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/rovelink/rovelink/pkg/core"
	"github.com/rovelink/rovelink/pkg/proto"
	"github.com/rovelink/rovelink/pkg/signaling"
	"github.com/rovelink/rovelink/pkg/webrtc"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	Schema string `yaml:"schema"`
	Label  string `yaml:"label"`
	// CreateChannel makes the robot announce own control channel
	CreateChannel bool          `yaml:"create_channel"`
	Interval      time.Duration `yaml:"interval"`
	Hold          time.Duration `yaml:"hold"`
	// Ordered drops late drive commands, needs monotonic operator sequence
	Ordered       bool          `yaml:"ordered"`
	QueueSize     int           `yaml:"queue_size"`

	// Video is UDP address for incoming camera RTP
	Video string `yaml:"video"`
	// Camera is a capture command that sends RTP to Video address
	Camera string `yaml:"camera"`
	// Serial is tty of the motor controller
	Serial string `yaml:"serial"`
	// IMU is tty of WitMotion sensor
	IMU string `yaml:"imu"`
	// Simulate produces dummy telemetry
	Simulate bool `yaml:"simulate"`
}

func DefaultConfig() Config {
	return Config{
		Schema:        "drive",
		Label:         "protobuf",
		CreateChannel: true,
		Interval:      50 * time.Millisecond,
		Hold:          DefaultHold,
		QueueSize:     200,
		Simulate:      true,
	}
}

type Robot struct {
	Queue  *Queue
	Driver *Driver
	Feed   *Feed

	cfg    Config
	schema proto.Schema
	api    *webrtc.API
	log    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	peer *Peer
}

func New(cfg Config, api *webrtc.API, log zerolog.Logger) (*Robot, error) {
	schema, err := proto.ParseSchema(cfg.Schema)
	if err != nil {
		return nil, err
	}

	def := DefaultConfig()
	if cfg.Label == "" {
		cfg.Label = def.Label
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}

	r := &Robot{
		Queue:  NewQueue(cfg.QueueSize),
		Feed:   NewFeed(log),
		cfg:    cfg,
		schema: schema,
		api:    api,
		log:    log,
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.Driver = NewDriver(cfg.Hold, nil)
	r.Driver.Ordered = cfg.Ordered
	r.Feed.Exec = cfg.Camera

	return r, nil
}

// Answer implements signaling.AnswerFunc. A new operator replaces the
// previous one.
func (r *Robot) Answer(ctx context.Context, offer core.Descriptor) (core.Descriptor, error) {
	if err := r.ctx.Err(); err != nil {
		return core.Descriptor{}, errors.New("robot: closed")
	}

	conn, err := r.api.NewConn()
	if err != nil {
		return core.Descriptor{}, err
	}

	peer := newPeer(r, conn)
	if err = peer.setup(); err != nil {
		peer.Close()
		return core.Descriptor{}, err
	}

	answer, err := r.answer(ctx, peer, offer)
	if err != nil {
		peer.Close()
		return core.Descriptor{}, err
	}

	r.mu.Lock()
	prev := r.peer
	r.peer = peer
	r.mu.Unlock()

	if prev != nil {
		r.log.Info().Msgf("[robot] peer %s replaced by %s", prev.ID, peer.ID)
		prev.Close()
	}

	peersActive.Set(1)
	r.Driver.Reset()
	r.Feed.SetTrack(peer.track)

	go func() {
		if err := peer.run(r.ctx); err != nil {
			peer.log.Warn().Err(err).Send()
		}
	}()

	r.log.Info().Msgf("[robot] peer %s answered", peer.ID)

	return answer, nil
}

func (r *Robot) answer(ctx context.Context, peer *Peer, offer core.Descriptor) (core.Descriptor, error) {
	if err := signaling.ValidateSDP(offer); err != nil {
		return core.Descriptor{}, err
	}

	type result struct {
		desc core.Descriptor
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		desc, err := peer.conn.GetCompleteAnswer(offer)
		ch <- result{desc, err}
	}()

	select {
	case res := <-ch:
		return res.desc, res.err
	case <-ctx.Done():
		return core.Descriptor{}, ctx.Err()
	}
}

func (r *Robot) release(peer *Peer) {
	r.Feed.Release(peer.track)

	r.mu.Lock()
	if r.peer == peer {
		r.peer = nil
		peersActive.Set(0)
	}
	r.mu.Unlock()
}

func (r *Robot) Peer() *Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peer
}

func (r *Robot) Config() Config {
	return r.cfg
}

// Run starts configured sources and blocks until ctx done or any of them
// fails
func (r *Robot) Run(ctx context.Context) error {
	// open every device before any worker starts
	var serial, imu *os.File
	var err error

	if r.cfg.Serial != "" {
		if serial, err = OpenSerial(r.cfg.Serial); err != nil {
			return err
		}
	}

	if r.cfg.IMU != "" {
		if imu, err = OpenSerial(r.cfg.IMU); err != nil {
			if serial != nil {
				_ = serial.Close()
			}
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	if serial != nil {
		link := NewSerialLink(serial, r.log)
		r.Driver.Motor = link

		g.Go(func() error {
			<-ctx.Done()
			return serial.Close()
		})
		g.Go(func() error {
			return link.Run(ctx, r.Queue)
		})
	}

	if imu != nil {
		wit := NewWitMotion(imu, r.log)

		g.Go(func() error {
			<-ctx.Done()
			return imu.Close()
		})
		g.Go(func() error {
			return wit.Run(ctx, r.Queue)
		})
	}

	if r.cfg.Simulate {
		sim := NewSimulator(r.cfg.Interval, r.Driver, r.Queue)
		// real devices replace fake values
		sim.Status = r.cfg.Serial == ""
		sim.Sensors = r.cfg.IMU == ""
		if sim.Status || sim.Sensors {
			g.Go(func() error {
				return sim.Run(ctx)
			})
		}
	}

	// returns motors to neutral when the last command expires
	g.Go(func() error {
		ticker := time.NewTicker(r.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				r.Driver.State()
			}
		}
	})

	if r.cfg.Video != "" {
		g.Go(func() error {
			return r.Feed.ListenAndServe(ctx, r.cfg.Video)
		})
	}

	return g.Wait()
}

func (r *Robot) Close() {
	r.cancel()

	r.mu.Lock()
	peer := r.peer
	r.mu.Unlock()

	if peer != nil {
		peer.Close()
	}

	r.Feed.Close()
}
