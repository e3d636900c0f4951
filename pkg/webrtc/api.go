package webrtc

import (
	"net"
	"time"

	"github.com/pion/ice/v2"
	"github.com/pion/interceptor"
	"github.com/pion/transport/vnet"
	"github.com/pion/webrtc/v3"
	"github.com/rs/zerolog"
)

// ReceiveMTU = Ethernet MTU (1500) - IP Header (20) - UDP Header (8)
const ReceiveMTU = 1472

type Config struct {
	// Listen is an optional UDP address for a single ICE port, ex. ":8555"
	Listen     string   `yaml:"listen"`
	ICEServers []string `yaml:"ice_servers"`
	// Candidates are public IPs announced instead of local host addresses
	Candidates []string `yaml:"candidates"`
}

// Option tunes the setting engine
type Option func(s *webrtc.SettingEngine)

// WithVNet runs peers inside virtual network
func WithVNet(n *vnet.Net) Option {
	return func(s *webrtc.SettingEngine) {
		s.SetVNet(n)
		s.SetICETimeouts(time.Second, 2*time.Second, 200*time.Millisecond)
	}
}

type API struct {
	api    *webrtc.API
	config webrtc.Configuration
	mux    ice.UDPMux
}

func NewAPI(cfg Config, log zerolog.Logger, opts ...Option) (*API, error) {
	// for debug logs set log level of webrtc module to trace
	m := &webrtc.MediaEngine{}
	if err := RegisterDefaultCodecs(m); err != nil {
		return nil, err
	}

	i := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, err
	}

	s := webrtc.SettingEngine{
		LoggerFactory: &LoggerFactory{Log: log},
	}

	if len(cfg.Candidates) > 0 {
		ips, err := ResolveCandidates(cfg.Candidates)
		if err != nil {
			return nil, err
		}
		s.SetNAT1To1IPs(ips, webrtc.ICECandidateTypeHost)
	}

	a := &API{}

	if cfg.Listen != "" {
		ln, err := net.ListenPacket("udp", cfg.Listen)
		if err != nil {
			return nil, err
		}
		a.mux = ice.NewUDPMuxDefault(ice.UDPMuxParams{UDPConn: ln})
		s.SetICEUDPMux(a.mux)
	}

	for _, opt := range opts {
		opt(&s)
	}

	if len(cfg.ICEServers) > 0 {
		a.config.ICEServers = []webrtc.ICEServer{{URLs: cfg.ICEServers}}
	}

	a.api = webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(i),
		webrtc.WithSettingEngine(s),
	)

	return a, nil
}

// NewConn creates a new peer and wraps it into Conn
func (a *API) NewConn() (*Conn, error) {
	pc, err := a.api.NewPeerConnection(a.config)
	if err != nil {
		return nil, err
	}
	return NewConn(pc), nil
}

// Close releases the shared ICE port
func (a *API) Close() error {
	if a.mux != nil {
		return a.mux.Close()
	}
	return nil
}

// RegisterDefaultCodecs registers the H264 profiles the robot camera may use.
// Session never carries audio.
func RegisterDefaultCodecs(m *webrtc.MediaEngine) error {
	videoRTCPFeedback := []webrtc.RTCPFeedback{
		{Type: "goog-remb"},
		{Type: "ccm", Parameter: "fir"},
		{Type: "nack"},
		{Type: "nack", Parameter: "pli"},
	}
	for _, codec := range []webrtc.RTPCodecParameters{
		{
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:     webrtc.MimeTypeH264,
				ClockRate:    90000,
				SDPFmtpLine:  "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42001f",
				RTCPFeedback: videoRTCPFeedback,
			},
			PayloadType: 96,
		},
		{
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:     webrtc.MimeTypeH264,
				ClockRate:    90000,
				SDPFmtpLine:  "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
				RTCPFeedback: videoRTCPFeedback,
			},
			PayloadType: 97,
		},
		{
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:     webrtc.MimeTypeH264,
				ClockRate:    90000,
				SDPFmtpLine:  "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=640032",
				RTCPFeedback: videoRTCPFeedback,
			},
			PayloadType: 98,
		},
	} {
		if err := m.RegisterCodec(codec, webrtc.RTPCodecTypeVideo); err != nil {
			return err
		}
	}

	return nil
}
