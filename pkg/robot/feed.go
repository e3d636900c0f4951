package robot

import (
	"context"
	"net"
	"sync"

	"github.com/pion/rtp"
	"github.com/rovelink/rovelink/pkg/shell"
	"github.com/rs/zerolog"
)

type RTPWriter interface {
	WriteRTP(packet *rtp.Packet) error
}

// Feed receives camera RTP over UDP and passes it to the track of the
// current peer, ex.
//
//	gst-launch-1.0 libcamerasrc ! x264enc tune=zerolatency ! rtph264pay ! udpsink port=5004
type Feed struct {
	// Exec is a capture command, started while any peer is connected,
	// so the camera is only busy on demand
	Exec string

	log zerolog.Logger

	mu      sync.Mutex
	track   RTPWriter
	cmd     *shell.Command
	packets uint64
}

func NewFeed(log zerolog.Logger) *Feed {
	return &Feed{log: log}
}

// SetTrack switches output, nil drops packets
func (f *Feed) SetTrack(track RTPWriter) {
	f.mu.Lock()
	f.track = track
	if track != nil {
		f.startCamera()
	} else {
		f.stopCamera()
	}
	f.mu.Unlock()
}

// Release drops output only if it is still track
func (f *Feed) Release(track RTPWriter) {
	f.mu.Lock()
	if f.track == track {
		f.track = nil
		f.stopCamera()
	}
	f.mu.Unlock()
}

// Camera returns running capture command or nil
func (f *Feed) Camera() *shell.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cmd
}

func (f *Feed) Close() {
	f.mu.Lock()
	f.track = nil
	f.stopCamera()
	f.mu.Unlock()
}

func (f *Feed) startCamera() {
	if f.Exec == "" || f.cmd != nil {
		return
	}

	cmd, err := shell.NewCommand(f.Exec)
	if err != nil {
		f.log.Error().Err(err).Msg("[robot] camera")
		return
	}
	if err = cmd.Start(); err != nil {
		f.log.Error().Err(err).Msg("[robot] camera")
		return
	}

	f.log.Debug().Msgf("[robot] camera started pid=%d", cmd.Process.Pid)
	f.cmd = cmd

	go func() {
		err := cmd.Wait()

		f.mu.Lock()
		if f.cmd == cmd {
			// exited by itself
			f.cmd = nil
			f.log.Warn().Err(err).Msg("[robot] camera exited")
		}
		f.mu.Unlock()
	}()
}

func (f *Feed) stopCamera() {
	if f.cmd == nil {
		return
	}
	_ = f.cmd.Close()
	f.cmd = nil
	f.log.Debug().Msg("[robot] camera stopped")
}

func (f *Feed) Packets() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.packets
}

func (f *Feed) ListenAndServe(ctx context.Context, address string) error {
	conn, err := net.ListenPacket("udp", address)
	if err != nil {
		return err
	}
	f.log.Info().Str("addr", address).Msg("[robot] video feed listen")
	return f.Serve(ctx, conn)
}

// Serve reads packets until ctx is done
func (f *Feed) Serve(ctx context.Context, conn net.PacketConn) error {
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	b := make([]byte, 1500)
	for {
		n, _, err := conn.ReadFrom(b)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		packet := &rtp.Packet{}
		if err = packet.Unmarshal(b[:n]); err != nil {
			f.log.Trace().Err(err).Msg("[robot] video feed")
			continue
		}

		f.mu.Lock()
		f.packets++
		track := f.track
		f.mu.Unlock()

		if track != nil {
			_ = track.WriteRTP(packet)
		}
	}
}
