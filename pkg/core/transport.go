package core

import "github.com/pion/rtp"

// Descriptor is a session description as it travels through signaling.
type Descriptor struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

const (
	DescriptorOffer  = "offer"
	DescriptorAnswer = "answer"
)

// ConnState is the aggregate state of a peer transport. Transport fires it
// as an event on every change.
type ConnState string

const (
	ConnStateNew          ConnState = "new"
	ConnStateConnecting   ConnState = "connecting"
	ConnStateConnected    ConnState = "connected"
	ConnStateDisconnected ConnState = "disconnected"
	ConnStateFailed       ConnState = "failed"
	ConnStateClosed       ConnState = "closed"
)

// Terminal states end the session
func (s ConnState) Terminal() bool {
	switch s {
	case ConnStateDisconnected, ConnStateFailed, ConnStateClosed:
		return true
	}
	return false
}

type ChannelState string

const (
	ChannelStateConnecting ChannelState = "connecting"
	ChannelStateOpen       ChannelState = "open"
	ChannelStateClosing    ChannelState = "closing"
	ChannelStateClosed     ChannelState = "closed"
)

// Channel is a best-effort message channel inside a Transport.
type Channel interface {
	Label() string
	State() ChannelState
	Send(data []byte) error

	OnOpen(f func())
	OnClose(f func())
	OnMessage(f func(data []byte))
	// Detach drops all handlers, no callback runs after it returns
	Detach()

	Close() error
}

// Track is an incoming media track.
type Track interface {
	ID() string
	Kind() string
	ReadRTP() (*rtp.Packet, error)
	RequestKeyframe() error
}

// Transport is the peer connection contract the session relies on.
// Events delivered to Listen functions:
//   - ConnState on every connection state change
//   - Track for every incoming media track
//   - Channel for every channel created by the remote side
type Transport interface {
	Listen(f EventFunc) *Subscription

	AddVideoReceiver() error
	CreateChannel(label string) (Channel, error)

	CreateOffer() (Descriptor, error)
	SetLocalDescription(desc Descriptor) error
	SetRemoteDescription(desc Descriptor) error
	LocalDescription() *Descriptor
	// GatheringComplete closes when all local candidates are in LocalDescription
	GatheringComplete() <-chan struct{}

	Close() error
}
