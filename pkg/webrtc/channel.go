package webrtc

import (
	"sync"

	"github.com/pion/webrtc/v3"
	"github.com/rovelink/rovelink/pkg/core"
)

// Channel wraps pion DataChannel, so handlers can be dropped at once
type Channel struct {
	dc *webrtc.DataChannel

	mu       sync.Mutex
	onOpen   func()
	onClose  func()
	onMsg    func(data []byte)
	detached bool
}

func NewChannel(dc *webrtc.DataChannel) *Channel {
	c := &Channel{dc: dc}

	dc.OnOpen(func() {
		if f := c.handler(func() func() { return c.onOpen }); f != nil {
			f()
		}
	})

	dc.OnClose(func() {
		if f := c.handler(func() func() { return c.onClose }); f != nil {
			f()
		}
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		c.mu.Lock()
		f := c.onMsg
		if c.detached {
			f = nil
		}
		c.mu.Unlock()

		if f != nil {
			f(msg.Data)
		}
	})

	return c
}

func (c *Channel) handler(get func() func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.detached {
		return nil
	}
	return get()
}

func (c *Channel) Label() string {
	return c.dc.Label()
}

func (c *Channel) State() core.ChannelState {
	switch c.dc.ReadyState() {
	case webrtc.DataChannelStateOpen:
		return core.ChannelStateOpen
	case webrtc.DataChannelStateClosing:
		return core.ChannelStateClosing
	case webrtc.DataChannelStateClosed:
		return core.ChannelStateClosed
	}
	return core.ChannelStateConnecting
}

func (c *Channel) Send(data []byte) error {
	return c.dc.Send(data)
}

func (c *Channel) OnOpen(f func()) {
	c.mu.Lock()
	c.onOpen = f
	c.mu.Unlock()
}

func (c *Channel) OnClose(f func()) {
	c.mu.Lock()
	c.onClose = f
	c.mu.Unlock()
}

func (c *Channel) OnMessage(f func(data []byte)) {
	c.mu.Lock()
	c.onMsg = f
	c.mu.Unlock()
}

func (c *Channel) Detach() {
	c.mu.Lock()
	c.detached = true
	c.onOpen, c.onClose, c.onMsg = nil, nil, nil
	c.mu.Unlock()
}

func (c *Channel) Close() error {
	return c.dc.Close()
}
