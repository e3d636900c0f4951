package webrtc

import (
	"errors"
	"sync"

	"github.com/pion/webrtc/v3"
	"github.com/rovelink/rovelink/pkg/core"
)

var ErrClosed = errors.New("webrtc: connection closed")

// Conn implements core.Transport over a pion PeerConnection.
// Events:
//   - core.ConnState on connection state change
//   - core.Track on incoming track
//   - core.Channel on channel created by the remote peer
type Conn struct {
	core.Listener

	pc *webrtc.PeerConnection

	mu     sync.Mutex
	gather <-chan struct{}
	closed bool
}

func NewConn(pc *webrtc.PeerConnection) *Conn {
	c := &Conn{pc: pc}

	// OK connection:
	// 15:01:46 ICE connection state changed: checking
	// 15:01:46 peer connection state changed: connected
	// 15:01:54 peer connection state changed: disconnected
	// 15:02:20 peer connection state changed: failed
	//
	// Fail connection:
	// 14:53:08 ICE connection state changed: checking
	// 14:53:39 peer connection state changed: failed
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		c.Fire(ConnState(state))
	})

	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		c.Fire(core.Track(&Track{remote: remote, pc: pc}))
	})

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		c.Fire(core.Channel(NewChannel(dc)))
	})

	return c
}

func ConnState(state webrtc.PeerConnectionState) core.ConnState {
	switch state {
	case webrtc.PeerConnectionStateConnecting:
		return core.ConnStateConnecting
	case webrtc.PeerConnectionStateConnected:
		return core.ConnStateConnected
	case webrtc.PeerConnectionStateDisconnected:
		return core.ConnStateDisconnected
	case webrtc.PeerConnectionStateFailed:
		return core.ConnStateFailed
	case webrtc.PeerConnectionStateClosed:
		return core.ConnStateClosed
	}
	return core.ConnStateNew
}

// AddVideoReceiver adds recvonly video media to the offer
func (c *Conn) AddVideoReceiver() error {
	_, err := c.pc.AddTransceiverFromKind(
		webrtc.RTPCodecTypeVideo,
		webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly},
	)
	return err
}

// AddVideoSender adds sendonly video media for local track
func (c *Conn) AddVideoSender(track webrtc.TrackLocal) error {
	tr, err := c.pc.AddTransceiverFromTrack(
		track, webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionSendonly},
	)
	if err != nil {
		return err
	}

	// read incoming RTCP packets, before these packets are returned they are
	// processed by interceptors (NACK, PLI)
	go func() {
		buf := make([]byte, ReceiveMTU)
		for {
			if _, _, err := tr.Sender().Read(buf); err != nil {
				return
			}
		}
	}()

	return nil
}

// CreateChannel creates unordered channel without retransmits, old control
// messages are useless so they are never resent
func (c *Conn) CreateChannel(label string) (core.Channel, error) {
	ordered := false
	maxRetransmits := uint16(0)

	dc, err := c.pc.CreateDataChannel(label, &webrtc.DataChannelInit{
		Ordered:        &ordered,
		MaxRetransmits: &maxRetransmits,
	})
	if err != nil {
		return nil, err
	}

	return NewChannel(dc), nil
}

func (c *Conn) CreateOffer() (core.Descriptor, error) {
	desc, err := c.pc.CreateOffer(nil)
	if err != nil {
		return core.Descriptor{}, err
	}
	return core.Descriptor{Type: core.DescriptorOffer, SDP: desc.SDP}, nil
}

func (c *Conn) CreateAnswer() (core.Descriptor, error) {
	desc, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return core.Descriptor{}, err
	}
	return core.Descriptor{Type: core.DescriptorAnswer, SDP: desc.SDP}, nil
}

func (c *Conn) SetLocalDescription(desc core.Descriptor) error {
	sd, err := sessionDescription(desc)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.gather == nil {
		c.gather = webrtc.GatheringCompletePromise(c.pc)
	}
	c.mu.Unlock()

	return c.pc.SetLocalDescription(sd)
}

func (c *Conn) SetRemoteDescription(desc core.Descriptor) error {
	sd, err := sessionDescription(desc)
	if err != nil {
		return err
	}
	return c.pc.SetRemoteDescription(sd)
}

func (c *Conn) LocalDescription() *core.Descriptor {
	sd := c.pc.LocalDescription()
	if sd == nil {
		return nil
	}
	return &core.Descriptor{Type: sd.Type.String(), SDP: sd.SDP}
}

func (c *Conn) GatheringComplete() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gather == nil {
		c.gather = webrtc.GatheringCompletePromise(c.pc)
	}
	return c.gather
}

// GetCompleteAnswer applies offer and returns answer with all candidates
func (c *Conn) GetCompleteAnswer(offer core.Descriptor) (core.Descriptor, error) {
	if err := c.SetRemoteDescription(offer); err != nil {
		return core.Descriptor{}, err
	}

	answer, err := c.CreateAnswer()
	if err != nil {
		return core.Descriptor{}, err
	}

	if err = c.SetLocalDescription(answer); err != nil {
		return core.Descriptor{}, err
	}

	<-c.GatheringComplete()

	return *c.LocalDescription(), nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	return c.pc.Close()
}

// RemoteAddr returns the remote side of selected candidate pair
func (c *Conn) RemoteAddr() string {
	sctp := c.pc.SCTP()
	if sctp == nil || sctp.Transport() == nil {
		return ""
	}

	ice := sctp.Transport().ICETransport()
	if ice == nil {
		return ""
	}

	pair, _ := ice.GetSelectedCandidatePair()
	if pair == nil || pair.Remote == nil {
		return ""
	}

	return pair.Remote.String()
}

func sessionDescription(desc core.Descriptor) (webrtc.SessionDescription, error) {
	sd := webrtc.SessionDescription{Type: webrtc.NewSDPType(desc.Type), SDP: desc.SDP}
	if sd.Type == webrtc.SDPType(webrtc.Unknown) {
		return sd, errors.New("webrtc: wrong description type: " + desc.Type)
	}
	return sd, nil
}
