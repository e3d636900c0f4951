package session

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/rtp"
	"github.com/rovelink/rovelink/pkg/core"
)

type fakeChannel struct {
	label string

	mu       sync.Mutex
	state    core.ChannelState
	sent     [][]byte
	onOpen   func()
	onClose  func()
	onMsg    func([]byte)
	detached bool
}

func newFakeChannel(label string) *fakeChannel {
	return &fakeChannel{label: label, state: core.ChannelStateConnecting}
}

func (c *fakeChannel) Label() string { return c.label }

func (c *fakeChannel) State() core.ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeChannel) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != core.ChannelStateOpen {
		return errors.New("fake: not open")
	}
	c.sent = append(c.sent, data)
	return nil
}

func (c *fakeChannel) Sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.sent...)
}

func (c *fakeChannel) OnOpen(f func())          { c.mu.Lock(); c.onOpen = f; c.mu.Unlock() }
func (c *fakeChannel) OnClose(f func())         { c.mu.Lock(); c.onClose = f; c.mu.Unlock() }
func (c *fakeChannel) OnMessage(f func([]byte)) { c.mu.Lock(); c.onMsg = f; c.mu.Unlock() }

func (c *fakeChannel) Detach() {
	c.mu.Lock()
	c.detached = true
	c.onOpen, c.onClose, c.onMsg = nil, nil, nil
	c.mu.Unlock()
}

func (c *fakeChannel) Detached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.detached
}

func (c *fakeChannel) Close() error {
	c.setState(core.ChannelStateClosed)
	return nil
}

func (c *fakeChannel) setState(state core.ChannelState) {
	c.mu.Lock()
	c.state = state
	var f func()
	switch state {
	case core.ChannelStateOpen:
		f = c.onOpen
	case core.ChannelStateClosed:
		f = c.onClose
	}
	c.mu.Unlock()

	if f != nil {
		f()
	}
}

func (c *fakeChannel) deliver(data []byte) {
	c.mu.Lock()
	f := c.onMsg
	c.mu.Unlock()
	if f != nil {
		f(data)
	}
}

type fakeTrack struct {
	kind string
}

func (t *fakeTrack) ID() string                    { return t.kind + "0" }
func (t *fakeTrack) Kind() string                  { return t.kind }
func (t *fakeTrack) ReadRTP() (*rtp.Packet, error) { return nil, errors.New("fake: no media") }
func (t *fakeTrack) RequestKeyframe() error        { return nil }

type fakeTransport struct {
	core.Listener

	mu        sync.Mutex
	channels  []*fakeChannel
	receivers int
	local     *core.Descriptor
	remote    *core.Descriptor
	closed    int
	gather    chan struct{}
}

func newFakeTransport() *fakeTransport {
	t := &fakeTransport{gather: make(chan struct{})}
	close(t.gather)
	return t
}

func (t *fakeTransport) AddVideoReceiver() error {
	t.mu.Lock()
	t.receivers++
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) CreateChannel(label string) (core.Channel, error) {
	ch := newFakeChannel(label)
	t.mu.Lock()
	t.channels = append(t.channels, ch)
	t.mu.Unlock()
	return ch, nil
}

func (t *fakeTransport) Channel(i int) *fakeChannel {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.channels[i]
}

func (t *fakeTransport) CreateOffer() (core.Descriptor, error) {
	return core.Descriptor{Type: core.DescriptorOffer, SDP: "v=0\r\n"}, nil
}

func (t *fakeTransport) SetLocalDescription(desc core.Descriptor) error {
	t.mu.Lock()
	t.local = &desc
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) SetRemoteDescription(desc core.Descriptor) error {
	t.mu.Lock()
	t.remote = &desc
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) Remote() *core.Descriptor {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remote
}

func (t *fakeTransport) LocalDescription() *core.Descriptor {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.local
}

func (t *fakeTransport) GatheringComplete() <-chan struct{} {
	return t.gather
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	t.closed++
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) Closed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// fakeExchanger answers every offer, optionally after release
type fakeExchanger struct {
	mu      sync.Mutex
	calls   int
	err     error
	release chan struct{}
	done    chan struct{}
}

func (e *fakeExchanger) Exchange(ctx context.Context, offer core.Descriptor) (core.Descriptor, error) {
	e.mu.Lock()
	e.calls++
	release, err := e.release, e.err
	e.mu.Unlock()

	if e.done != nil {
		defer close(e.done)
	}

	if release != nil {
		<-release
	}

	if err != nil {
		return core.Descriptor{}, err
	}
	return core.Descriptor{Type: core.DescriptorAnswer, SDP: "X"}, nil
}

func (e *fakeExchanger) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type fakeSink struct {
	mu      sync.Mutex
	tracks  []core.Track
	cleared int
}

func (s *fakeSink) Attach(track core.Track) error {
	s.mu.Lock()
	s.tracks = append(s.tracks, track)
	s.mu.Unlock()
	return nil
}

func (s *fakeSink) Clear() {
	s.mu.Lock()
	s.cleared++
	s.mu.Unlock()
}

func (s *fakeSink) Cleared() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleared
}

func (s *fakeSink) Tracks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tracks)
}

// recorder keeps all session events
type recorder struct {
	mu     sync.Mutex
	events []any
}

func (r *recorder) add(msg any) {
	r.mu.Lock()
	r.events = append(r.events, msg)
	r.mu.Unlock()
}

func (r *recorder) states() (states []State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev, ok := ev.(StateEvent); ok {
			states = append(states, ev.State)
		}
	}
	return
}

func (r *recorder) count(match func(msg any) bool) (n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if match(ev) {
			n++
		}
	}
	return
}

func (r *recorder) controls(enabled bool) int {
	return r.count(func(msg any) bool {
		ev, ok := msg.(ControlsEvent)
		return ok && ev.Enabled == enabled
	})
}

func (r *recorder) cleared() int {
	return r.count(func(msg any) bool {
		_, ok := msg.(ClearedEvent)
		return ok
	})
}
