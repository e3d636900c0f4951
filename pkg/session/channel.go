package session

import (
	"errors"

	"github.com/rovelink/rovelink/pkg/core"
)

var ErrChannelNotOpen = errors.New("session: control channel not open")

// control guards a transport channel: no send before open, no read after
// close
type control struct {
	ch core.Channel
}

func (c *control) Label() string {
	return c.ch.Label()
}

func (c *control) Open() bool {
	return c.ch.State() == core.ChannelStateOpen
}

func (c *control) Send(data []byte) error {
	if !c.Open() {
		return ErrChannelNotOpen
	}
	return c.ch.Send(data)
}

func (c *control) Detach() {
	c.ch.Detach()
}
