package webrtc

import (
	"bytes"
	"testing"
	"time"

	"github.com/pion/logging"
	"github.com/pion/sdp/v3"
	"github.com/pion/transport/test"
	"github.com/pion/transport/vnet"
	"github.com/pion/webrtc/v3"
	"github.com/rovelink/rovelink/pkg/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOffer(t *testing.T) {
	api, err := NewAPI(Config{}, zerolog.Nop())
	require.Nil(t, err)

	conn, err := api.NewConn()
	require.Nil(t, err)
	defer conn.Close()

	require.Nil(t, conn.AddVideoReceiver())

	ch, err := conn.CreateChannel("protobuf")
	require.Nil(t, err)
	assert.Equal(t, "protobuf", ch.Label())
	assert.Equal(t, core.ChannelStateConnecting, ch.State())

	offer, err := conn.CreateOffer()
	require.Nil(t, err)
	require.Equal(t, core.DescriptorOffer, offer.Type)

	sd := &sdp.SessionDescription{}
	require.Nil(t, sd.Unmarshal([]byte(offer.SDP)))
	require.Len(t, sd.MediaDescriptions, 2)

	video := sd.MediaDescriptions[0]
	assert.Equal(t, "video", video.MediaName.Media)
	_, recvonly := video.Attribute("recvonly")
	assert.True(t, recvonly)

	assert.Equal(t, "application", sd.MediaDescriptions[1].MediaName.Media)

	assert.Nil(t, conn.LocalDescription())
	require.Nil(t, conn.SetLocalDescription(offer))
	require.NotNil(t, conn.LocalDescription())

	select {
	case <-conn.GatheringComplete():
	case <-time.After(5 * time.Second):
		t.Fatal("gathering timeout")
	}

	require.Nil(t, conn.Close())
	require.Nil(t, conn.Close())
}

func TestWrongDescription(t *testing.T) {
	api, err := NewAPI(Config{}, zerolog.Nop())
	require.Nil(t, err)

	conn, err := api.NewConn()
	require.Nil(t, err)
	defer conn.Close()

	err = conn.SetRemoteDescription(core.Descriptor{Type: "hello", SDP: "v=0"})
	require.NotNil(t, err)
}

func TestConnState(t *testing.T) {
	assert.Equal(t, core.ConnStateNew, ConnState(webrtc.PeerConnectionStateNew))
	assert.Equal(t, core.ConnStateConnecting, ConnState(webrtc.PeerConnectionStateConnecting))
	assert.Equal(t, core.ConnStateConnected, ConnState(webrtc.PeerConnectionStateConnected))
	assert.Equal(t, core.ConnStateDisconnected, ConnState(webrtc.PeerConnectionStateDisconnected))
	assert.Equal(t, core.ConnStateFailed, ConnState(webrtc.PeerConnectionStateFailed))
	assert.Equal(t, core.ConnStateClosed, ConnState(webrtc.PeerConnectionStateClosed))
}

func TestResolveCandidates(t *testing.T) {
	ips, err := ResolveCandidates([]string{"192.168.1.123", "::1"})
	require.Nil(t, err)
	require.Equal(t, []string{"192.168.1.123", "::1"}, ips)
}

func TestLoggerFactory(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	log := zerolog.New(buf).Level(zerolog.DebugLevel)

	var f logging.LoggerFactory = &LoggerFactory{Log: log}
	l := f.NewLogger("ice")
	l.Tracef("hidden %d", 1)
	l.Warnf("lost %d", 2)

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "[webrtc] ice: lost 2")
}

func TestVirtualPair(t *testing.T) {
	if testing.Short() {
		t.Skip()
	}

	lim := test.TimeOut(20 * time.Second)
	defer lim.Stop()

	wan, err := vnet.NewRouter(&vnet.RouterConfig{
		CIDR: "1.2.3.0/24", LoggerFactory: logging.NewDefaultLoggerFactory(),
	})
	require.Nil(t, err)

	net1 := vnet.NewNet(&vnet.NetConfig{StaticIPs: []string{"1.2.3.4"}})
	require.Nil(t, wan.AddNet(net1))
	net2 := vnet.NewNet(&vnet.NetConfig{StaticIPs: []string{"1.2.3.5"}})
	require.Nil(t, wan.AddNet(net2))

	require.Nil(t, wan.Start())
	defer wan.Stop()

	api1, err := NewAPI(Config{}, zerolog.Nop(), WithVNet(net1))
	require.Nil(t, err)
	api2, err := NewAPI(Config{}, zerolog.Nop(), WithVNet(net2))
	require.Nil(t, err)

	offerer, err := api1.NewConn()
	require.Nil(t, err)
	defer offerer.Close()

	answerer, err := api2.NewConn()
	require.Nil(t, err)
	defer answerer.Close()

	received := make(chan []byte, 1)
	answerer.Listen(func(msg any) {
		if ch, ok := msg.(core.Channel); ok {
			ch.OnMessage(func(data []byte) {
				select {
				case received <- data:
				default:
				}
			})
		}
	})

	ch, err := offerer.CreateChannel("protobuf")
	require.Nil(t, err)

	opened := make(chan struct{})
	ch.OnOpen(func() { close(opened) })

	offer, err := offerer.CreateOffer()
	require.Nil(t, err)
	require.Nil(t, offerer.SetLocalDescription(offer))
	<-offerer.GatheringComplete()

	answer, err := answerer.GetCompleteAnswer(*offerer.LocalDescription())
	require.Nil(t, err)
	require.Equal(t, core.DescriptorAnswer, answer.Type)
	require.Nil(t, offerer.SetRemoteDescription(answer))

	<-opened
	require.Equal(t, core.ChannelStateOpen, ch.State())

	// channel is unreliable, so repeat until the first message arrives
	for i := 0; ; i++ {
		require.Nil(t, ch.Send([]byte{byte(i)}))
		select {
		case data := <-received:
			require.Len(t, data, 1)
			return
		case <-time.After(100 * time.Millisecond):
		}
	}
}
