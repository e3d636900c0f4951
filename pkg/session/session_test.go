package session

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rovelink/rovelink/pkg/core"
	"github.com/rovelink/rovelink/pkg/proto"
	"github.com/rovelink/rovelink/pkg/signaling"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	*Session
	sink *fakeSink
	rec  *recorder

	mu         sync.Mutex
	transports []*fakeTransport
}

func newHarness(t *testing.T, cfg Config, ex signaling.Exchanger) *harness {
	h := &harness{sink: &fakeSink{}, rec: &recorder{}}
	h.Session = New(cfg, Deps{
		NewTransport: func() (core.Transport, error) {
			tr := newFakeTransport()
			h.mu.Lock()
			h.transports = append(h.transports, tr)
			h.mu.Unlock()
			return tr, nil
		},
		Exchanger: ex,
		Sink:      h.sink,
		Log:       zerolog.Nop(),
	})
	h.Listen(h.rec.add)
	t.Cleanup(h.Close)
	return h
}

func (h *harness) transport(i int) *fakeTransport {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.transports[i]
}

// flush waits until all queued tasks and events are processed
func (h *harness) flush() {
	_ = h.call(func() error { return nil })
	done := make(chan struct{})
	h.events.push(func() { close(done) })
	<-done
}

func (h *harness) connect(t *testing.T) *fakeTransport {
	require.Nil(t, h.Start())

	h.mu.Lock()
	tr := h.transports[len(h.transports)-1]
	h.mu.Unlock()

	require.Eventually(t, func() bool { return tr.Remote() != nil }, time.Second, time.Millisecond)

	tr.Fire(core.ConnStateConnecting)
	tr.Fire(core.ConnStateConnected)
	h.flush()
	require.Equal(t, StateConnected, h.State())
	return tr
}

func TestOneOfferAndConnect(t *testing.T) {
	var posts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&posts, 1)
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/offer", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_, _ = w.Write([]byte(`{"sdp":"X","type":"answer"}`))
	}))
	defer srv.Close()

	h := newHarness(t, Config{}, signaling.NewClient(srv.URL+"/offer"))
	tr := h.connect(t)

	require.Equal(t, int32(1), atomic.LoadInt32(&posts))
	require.Equal(t, "X", tr.Remote().SDP)
	require.Equal(t, 1, tr.receivers)

	// repeated connected state does not enable controls twice
	tr.Fire(core.ConnStateConnected)
	h.flush()

	require.Equal(t, 1, h.rec.controls(true))
	require.Equal(t, []State{StateConnecting, StateConnected}, h.rec.states())
}

func TestSignalingFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	h := newHarness(t, Config{}, signaling.NewClient(srv.URL+"/offer"))
	require.Nil(t, h.Start())

	require.Eventually(t, func() bool { return h.State() == StateDisconnected }, time.Second, time.Millisecond)
	h.flush()

	require.Equal(t, []State{StateConnecting, StateDisconnected}, h.rec.states())
	require.Zero(t, h.rec.controls(true))
	require.Equal(t, 1, h.transport(0).Closed())
	require.Equal(t, 1, h.sink.Cleared())
	require.Nil(t, h.transport(0).Remote())

	statuses := h.rec.count(func(msg any) bool {
		ev, ok := msg.(StatusEvent)
		return ok && ev.Text == StatusReady
	})
	require.Equal(t, 1, statuses)
}

func TestFailurePreemptsAnswer(t *testing.T) {
	ex := &fakeExchanger{release: make(chan struct{}), done: make(chan struct{})}
	h := newHarness(t, Config{}, ex)

	require.Nil(t, h.Start())
	require.Eventually(t, func() bool { return ex.Calls() == 1 }, time.Second, time.Millisecond)

	tr := h.transport(0)
	tr.Fire(core.ConnStateFailed)
	h.flush()
	require.Equal(t, StateDisconnected, h.State())

	// late answer must not touch torn down transport
	close(ex.release)
	<-ex.done
	require.Never(t, func() bool { return tr.Remote() != nil }, 100*time.Millisecond, 10*time.Millisecond)

	h.flush()
	require.Equal(t, StateDisconnected, h.State())
	require.Equal(t, 1, tr.Closed())
}

func TestStopIdempotent(t *testing.T) {
	h := newHarness(t, Config{}, &fakeExchanger{})

	// stop before start
	h.Stop()
	h.Stop()
	require.Equal(t, StateIdle, h.State())
	require.Zero(t, h.sink.Cleared())

	tr := h.connect(t)
	ch := tr.Channel(0)

	h.Stop()
	h.Stop()
	h.flush()

	require.Equal(t, StateDisconnected, h.State())
	require.Equal(t, 1, tr.Closed())
	require.True(t, ch.Detached())
	var transport core.Transport
	var channel *control
	_ = h.call(func() error {
		transport, channel = h.Session.transport, h.channel
		return nil
	})
	require.Nil(t, transport)
	require.Nil(t, channel)
	require.Equal(t, 1, h.sink.Cleared())
	require.Equal(t, 1, h.rec.cleared())
	require.Equal(t, 1, h.rec.controls(false))
}

func TestFailedClearsOnce(t *testing.T) {
	h := newHarness(t, Config{}, &fakeExchanger{})
	tr := h.connect(t)

	ch := tr.Channel(0)
	ch.setState(core.ChannelStateOpen)
	ch.deliver(encodeTelemetry(t, &proto.RobotStatus{Sequence: 1, Steering: 0.5}))
	h.flush()
	require.NotNil(t, h.Snapshot().RobotStatus)

	// pion reports disconnected, then failed, then closed
	tr.Fire(core.ConnStateDisconnected)
	tr.Fire(core.ConnStateFailed)
	tr.Fire(core.ConnStateClosed)
	h.Stop()
	h.flush()

	require.Equal(t, StateDisconnected, h.State())
	require.Nil(t, h.Snapshot().RobotStatus)
	require.Equal(t, 1, h.sink.Cleared())
	require.Equal(t, 1, h.rec.cleared())
	require.Equal(t, 1, tr.Closed())
}

func TestRestart(t *testing.T) {
	h := newHarness(t, Config{}, &fakeExchanger{})
	old := h.connect(t)

	require.ErrorIs(t, h.Start(), ErrBusy)

	h.Stop()
	require.Nil(t, h.Start())
	require.Equal(t, StateConnecting, h.State())

	// events of previous transport are ignored
	old.Fire(core.ConnStateConnected)
	h.flush()
	require.Equal(t, StateConnecting, h.State())

	tr := h.transport(1)
	require.Eventually(t, func() bool { return tr.Remote() != nil }, time.Second, time.Millisecond)
	tr.Fire(core.ConnStateConnected)
	h.flush()
	require.Equal(t, StateConnected, h.State())
}

func TestTransportError(t *testing.T) {
	h := newHarness(t, Config{}, &fakeExchanger{})
	h.deps.NewTransport = func() (core.Transport, error) {
		return nil, errors.New("no network")
	}

	require.NotNil(t, h.Start())
	require.Equal(t, StateIdle, h.State())
}

func TestSendCommand(t *testing.T) {
	h := newHarness(t, Config{Schema: proto.SchemaMove}, &fakeExchanger{})

	dropped := testutil.ToFloat64(commandsDropped.WithLabelValues(dropNotConnected))
	require.Nil(t, h.SendCommand(Move(proto.Up, 1)))
	require.Equal(t, dropped+1, testutil.ToFloat64(commandsDropped.WithLabelValues(dropNotConnected)))

	tr := h.connect(t)
	ch := tr.Channel(0)
	require.Equal(t, DefaultLabel, ch.Label())

	// connected, but channel is not open yet
	dropped = testutil.ToFloat64(commandsDropped.WithLabelValues(dropChannel))
	require.Nil(t, h.SendCommand(Move(proto.Up, 1)))
	require.Equal(t, dropped+1, testutil.ToFloat64(commandsDropped.WithLabelValues(dropChannel)))
	require.Empty(t, ch.Sent())

	ch.setState(core.ChannelStateOpen)
	require.Nil(t, h.SendCommand(Move(proto.Left, 2)))
	require.ErrorIs(t, h.SendCommand(Drive(1, 1)), ErrSchemaMismatch)
	require.NotNil(t, h.SendCommand(Move("forward", 1)))

	sent := ch.Sent()
	require.Len(t, sent, 1)

	cmd, err := proto.DecodeCommand(proto.SchemaMove, sent[0])
	require.Nil(t, err)
	require.Equal(t, proto.Left, cmd.Direction)
	require.Equal(t, float32(2), cmd.Value)
	require.Equal(t, uint32(1), cmd.Sequence)
	require.NotZero(t, cmd.Timestamp)
}

func TestSendFromListener(t *testing.T) {
	h := newHarness(t, Config{}, &fakeExchanger{})

	errs := make(chan error, 1)
	h.Listen(func(msg any) {
		if ev, ok := msg.(ControlsEvent); ok && ev.Enabled {
			errs <- h.SendCommand(Drive(0, 0.5))
		}
	})

	h.connect(t)

	select {
	case err := <-errs:
		require.Nil(t, err)
	case <-time.After(time.Second):
		t.Fatal("listener blocked")
	}
}

func TestTelemetry(t *testing.T) {
	h := newHarness(t, Config{}, &fakeExchanger{})
	tr := h.connect(t)

	ch := tr.Channel(0)
	ch.setState(core.ChannelStateOpen)

	errors0 := testutil.ToFloat64(decodeErrors)
	ch.deliver([]byte("TEST_MESSAGE"))
	h.flush()

	require.Equal(t, errors0+1, testutil.ToFloat64(decodeErrors))
	require.Nil(t, h.Snapshot().RobotStatus)
	require.Nil(t, h.Snapshot().SensorData)
	require.Equal(t, StateConnected, h.State())

	sensor := &proto.SensorData{Sequence: 1, Timestamp: 2, GPS: proto.GPS{Lat: 45, Lon: 90, Alt: 180}}
	ch.deliver(encodeTelemetry(t, sensor))
	h.flush()

	require.Equal(t, sensor, h.Snapshot().SensorData)
	require.Equal(t, 1, h.rec.count(func(msg any) bool {
		ev, ok := msg.(TelemetryEvent)
		return ok && ev.Kind == proto.KindSensorData
	}))
}

func TestTelemetryReorderAndLoss(t *testing.T) {
	h := newHarness(t, Config{}, &fakeExchanger{})
	tr := h.connect(t)

	ch := tr.Channel(0)
	ch.setState(core.ChannelStateOpen)

	// 6 arrives before 5, 7 is lost, 8 arrives
	for _, seq := range []uint32{6, 5, 8} {
		ch.deliver(encodeTelemetry(t, &proto.RobotStatus{Sequence: seq, Throttle: float32(seq)}))
	}
	h.flush()

	// every message is published, the snapshot shows the last arrival
	require.Equal(t, 3, h.rec.count(func(msg any) bool {
		_, ok := msg.(TelemetryEvent)
		return ok
	}))
	require.Equal(t, uint32(8), h.Snapshot().RobotStatus.Sequence)
	require.Equal(t, StateConnected, h.State())
}

func TestCommandsReorderAndLoss(t *testing.T) {
	h := newHarness(t, Config{}, &fakeExchanger{})
	tr := h.connect(t)

	ch := tr.Channel(0)
	ch.setState(core.ChannelStateOpen)

	require.Nil(t, h.SendCommand(Drive(0.1, 0.5)))
	require.Nil(t, h.SendCommand(Drive(0.2, 0.5)))
	sent := ch.Sent()
	require.Len(t, sent, 2)

	// the robot may see any subset in any order, each message alone is a
	// complete command
	for _, received := range [][][]byte{
		{sent[0], sent[1]},
		{sent[1], sent[0]},
		{sent[1]},
		{sent[0]},
	} {
		var last uint32
		for _, b := range received {
			cmd, err := proto.DecodeCommand(proto.SchemaDrive, b)
			require.Nil(t, err)
			require.Equal(t, float32(0.5), cmd.Throttle)
			if cmd.Sequence > last {
				last = cmd.Sequence
			}
		}
		require.NotZero(t, last)
	}
}

func TestRemoteChannel(t *testing.T) {
	h := newHarness(t, Config{Mode: ModeRemote}, &fakeExchanger{})
	tr := h.connect(t)

	bootstrap := tr.Channel(0)

	// not ours
	other := newFakeChannel("chat")
	tr.Fire(core.Channel(other))

	robot := newFakeChannel(DefaultLabel)
	robot.state = core.ChannelStateOpen
	tr.Fire(core.Channel(robot))
	h.flush()

	require.Nil(t, h.SendCommand(Drive(1, 0)))
	require.Len(t, robot.Sent(), 1)
	require.Empty(t, other.Sent())
	require.Empty(t, bootstrap.Sent())

	robot.deliver(encodeTelemetry(t, &proto.RobotStatus{Sequence: 3}))
	h.flush()
	require.Equal(t, uint32(3), h.Snapshot().RobotStatus.Sequence)

	// closed channel is never read again
	robot.setState(core.ChannelStateClosed)
	h.flush()
	require.True(t, robot.Detached())

	robot.deliver(encodeTelemetry(t, &proto.RobotStatus{Sequence: 4}))
	h.flush()
	require.Equal(t, uint32(3), h.Snapshot().RobotStatus.Sequence)

	h.Stop()
	require.True(t, bootstrap.Detached())
}

func TestVideo(t *testing.T) {
	h := newHarness(t, Config{}, &fakeExchanger{})
	tr := h.connect(t)

	tr.Fire(core.Track(&fakeTrack{kind: "audio"}))
	tr.Fire(core.Track(&fakeTrack{kind: "video"}))
	h.flush()

	require.Equal(t, 1, h.sink.Tracks())
	require.Equal(t, 1, h.rec.count(func(msg any) bool {
		_, ok := msg.(VideoEvent)
		return ok
	}))
}

func TestClosedSession(t *testing.T) {
	h := newHarness(t, Config{}, &fakeExchanger{})
	h.Close()

	require.ErrorIs(t, h.Start(), ErrClosed)
	require.ErrorIs(t, h.SendCommand(Drive(0, 0)), ErrClosed)
	h.Stop()
}

func TestMailboxOrder(t *testing.T) {
	m := newMailbox()
	go m.run()

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		require.True(t, m.push(func() { got = append(got, i) }))
	}
	m.close()

	require.Len(t, got, 100)
	for i, v := range got {
		require.Equal(t, i, v)
	}
	require.False(t, m.push(func() {}))
}

func encodeTelemetry(t *testing.T, tel proto.Telemetry) []byte {
	b, err := proto.EncodeTelemetry(tel)
	require.Nil(t, err)
	return b
}
