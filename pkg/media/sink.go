// Package media holds the receive-only video sink of an operator session.
package media

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/rovelink/rovelink/pkg/core"
	"github.com/rs/zerolog"
)

var ErrAttached = errors.New("media: sink already has a track")

// Stats of the current track, zero after Clear
type Stats struct {
	TrackID   string    `json:"track_id,omitempty"`
	Packets   uint64    `json:"packets"`
	Bytes     uint64    `json:"bytes"`
	Keyframes uint64    `json:"keyframes"`
	Attached  time.Time `json:"attached,omitempty"`
}

// Sink receives exactly one video track. Payload is counted and optionally
// forwarded as raw RTP to UDP address, ex. for `ffplay rtp://127.0.0.1:5004`.
type Sink struct {
	// keyframe is requested again until first one arrives
	KeyframeInterval time.Duration

	log     zerolog.Logger
	forward *net.UDPConn

	mu     sync.Mutex
	track  core.Track
	stats  Stats
	done   chan struct{}
	worker *core.Worker
}

func NewSink(log zerolog.Logger) *Sink {
	return &Sink{KeyframeInterval: time.Second, log: log}
}

// Forward sends every packet to UDP address
func (s *Sink) Forward(address string) error {
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return err
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.forward = conn
	s.mu.Unlock()
	return nil
}

func (s *Sink) Attach(track core.Track) error {
	if track.Kind() != "video" {
		return errors.New("media: unsupported track kind: " + track.Kind())
	}

	s.mu.Lock()
	if s.track != nil {
		s.mu.Unlock()
		return ErrAttached
	}
	s.track = track
	s.stats = Stats{TrackID: track.ID(), Attached: time.Now()}
	s.done = make(chan struct{})
	done := s.done
	// repeat request until the first keyframe arrives
	s.worker = core.NewWorker(s.KeyframeInterval, func() time.Duration {
		if s.Track() != track || s.Stats().Keyframes > 0 {
			return 0
		}
		if err := track.RequestKeyframe(); err != nil {
			s.log.Trace().Err(err).Msg("[media] keyframe request")
		}
		return s.KeyframeInterval
	})
	s.mu.Unlock()

	s.log.Debug().Msgf("[media] attach track=%s", track.ID())

	if err := track.RequestKeyframe(); err != nil {
		s.log.Trace().Err(err).Msg("[media] keyframe request")
	}

	go s.read(track, done)

	return nil
}

// Clear drops the current track, so nothing stale stays visible
func (s *Sink) Clear() {
	s.mu.Lock()
	if s.track != nil {
		s.log.Debug().Msgf("[media] clear track=%s", s.track.ID())
		close(s.done)
		s.worker.Stop()
	}
	s.track = nil
	s.worker = nil
	s.stats = Stats{}
	s.done = nil
	s.mu.Unlock()
}

func (s *Sink) Track() core.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.track
}

func (s *Sink) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Close stops forwarding
func (s *Sink) Close() error {
	s.Clear()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.forward != nil {
		err := s.forward.Close()
		s.forward = nil
		return err
	}
	return nil
}

func (s *Sink) read(track core.Track, done chan struct{}) {
	for {
		packet, err := track.ReadRTP()
		if err != nil {
			s.log.Trace().Err(err).Msgf("[media] read track=%s", track.ID())
			return
		}

		s.mu.Lock()
		if s.track != track {
			// cleared or replaced, the rest of the stream is dropped
			s.mu.Unlock()
			return
		}
		s.stats.Packets++
		s.stats.Bytes += uint64(len(packet.Payload))
		if IsKeyframe(packet) {
			s.stats.Keyframes++
		}
		forward := s.forward
		s.mu.Unlock()

		if forward != nil {
			if b, err := packet.Marshal(); err == nil {
				_, _ = forward.Write(b)
			}
		}

		select {
		case <-done:
			return
		default:
		}
	}
}

// IsKeyframe checks H264 payload for IDR, SPS or PPS NAL units
func IsKeyframe(packet *rtp.Packet) bool {
	if len(packet.Payload) == 0 {
		return false
	}

	switch packet.Payload[0] & 0x1F {
	case 5, 7, 8:
		return true
	case 24: // STAP-A
		b := packet.Payload[1:]
		for len(b) > 2 {
			size := int(b[0])<<8 | int(b[1])
			if size == 0 || 2+size > len(b) {
				return false
			}
			switch b[2] & 0x1F {
			case 5, 7, 8:
				return true
			}
			b = b[2+size:]
		}
	case 28: // FU-A, start of fragment
		if len(packet.Payload) > 1 && packet.Payload[1]&0x80 != 0 {
			switch packet.Payload[1] & 0x1F {
			case 5, 7, 8:
				return true
			}
		}
	}

	return false
}
