package webrtc

import (
	"sync"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
)

// Track is incoming remote track
type Track struct {
	remote *webrtc.TrackRemote
	pc     *webrtc.PeerConnection
}

func (t *Track) ID() string {
	return t.remote.ID()
}

func (t *Track) Kind() string {
	return t.remote.Kind().String()
}

func (t *Track) ReadRTP() (*rtp.Packet, error) {
	packet, _, err := t.remote.ReadRTP()
	return packet, err
}

// RequestKeyframe sends PLI, so the sender starts a new GOP
func (t *Track) RequestKeyframe() error {
	return t.pc.WriteRTCP([]rtcp.Packet{
		&rtcp.PictureLossIndication{MediaSSRC: uint32(t.remote.SSRC())},
	})
}

// LocalTrack is outgoing track, fed from any RTP source. Packets are
// rewritten with own sequence, so sources can be switched on the fly.
type LocalTrack struct {
	kind     string
	id       string
	streamID string
	sequence uint16
	ssrc     uint32
	payload  uint8
	writer   webrtc.TrackLocalWriter
	mu       sync.Mutex
}

func NewLocalTrack(kind, streamID string) *LocalTrack {
	return &LocalTrack{
		kind:     kind,
		id:       streamID + "-" + kind,
		streamID: streamID,
	}
}

func (t *LocalTrack) Bind(context webrtc.TrackLocalContext) (webrtc.RTPCodecParameters, error) {
	var parameters webrtc.RTPCodecParameters
	if codecs := context.CodecParameters(); len(codecs) > 0 {
		// use first negotiated codec
		parameters = codecs[0]
	}

	t.mu.Lock()
	t.ssrc = uint32(context.SSRC())
	t.payload = uint8(parameters.PayloadType)
	t.writer = context.WriteStream()
	t.mu.Unlock()

	return parameters, nil
}

func (t *LocalTrack) Unbind(context webrtc.TrackLocalContext) error {
	t.mu.Lock()
	t.writer = nil
	t.mu.Unlock()
	return nil
}

func (t *LocalTrack) ID() string {
	return t.id
}

func (t *LocalTrack) RID() string {
	return ""
}

func (t *LocalTrack) StreamID() string {
	return t.streamID
}

func (t *LocalTrack) Kind() webrtc.RTPCodecType {
	return webrtc.NewRTPCodecType(t.kind)
}

// WriteRTP is safe before Bind and after Unbind, packets are dropped there
func (t *LocalTrack) WriteRTP(packet *rtp.Packet) (err error) {
	t.mu.Lock()

	if t.writer != nil {
		t.sequence++

		header := packet.Header
		header.SSRC = t.ssrc
		header.PayloadType = t.payload
		header.SequenceNumber = t.sequence
		_, err = t.writer.WriteRTP(&header, packet.Payload)
	}

	t.mu.Unlock()
	return
}
