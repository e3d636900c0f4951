// Package operator runs a teleoperation session against one robot and
// exposes it to a UI over HTTP and websocket.
package operator

import (
	"context"
	"fmt"
	"time"

	"github.com/rovelink/rovelink/internal/api"
	"github.com/rovelink/rovelink/internal/api/ws"
	"github.com/rovelink/rovelink/internal/app"
	"github.com/rovelink/rovelink/pkg/core"
	"github.com/rovelink/rovelink/pkg/discovery"
	"github.com/rovelink/rovelink/pkg/media"
	"github.com/rovelink/rovelink/pkg/proto"
	"github.com/rovelink/rovelink/pkg/session"
	"github.com/rovelink/rovelink/pkg/signaling"
	"github.com/rovelink/rovelink/pkg/webrtc"
	"github.com/rs/zerolog"
)

type Config struct {
	// URL of robot signaling endpoint or `mdns:<robot name>`
	URL     string        `yaml:"url"`
	Schema  string        `yaml:"schema"`
	Mode    string        `yaml:"mode"`
	Label   string        `yaml:"label"`
	Timeout time.Duration `yaml:"timeout"`
	// Forward is UDP address for received video RTP, ex. for ffplay
	Forward   string `yaml:"forward"`
	AutoStart bool   `yaml:"autostart"`
}

func DefaultConfig() Config {
	return Config{
		Schema:  "drive",
		Mode:    string(session.ModeLocal),
		Label:   session.DefaultLabel,
		Timeout: 15 * time.Second,
	}
}

func Init() {
	var cfg struct {
		Mod    Config        `yaml:"operator"`
		WebRTC webrtc.Config `yaml:"webrtc"`
	}

	cfg.Mod = DefaultConfig()

	app.LoadConfig(&cfg)

	if cfg.Mod.URL == "" {
		return
	}

	log = app.GetLogger("operator")

	// operator never needs a fixed port
	cfg.WebRTC.Listen = ""

	var err error
	if webrtcAPI, err = webrtc.NewAPI(cfg.WebRTC, app.GetLogger("webrtc")); err != nil {
		log.Error().Err(err).Caller().Send()
		return
	}

	newTransport := func() (core.Transport, error) {
		conn, err := webrtcAPI.NewConn()
		if err != nil {
			return nil, err
		}
		return conn, nil
	}

	if op, err = New(cfg.Mod, newTransport, log); err != nil {
		log.Error().Err(err).Msg("[operator] config")
		return
	}

	api.HandleFunc("api/session", op.apiSession)
	api.HandleFunc("api/session/start", op.apiStart)
	api.HandleFunc("api/session/stop", op.apiStop)
	api.HandleFunc("api/session/command", op.apiCommand)

	ws.HandleFunc("session", op.wsSession)
	ws.HandleFunc("session/start", op.wsStart)
	ws.HandleFunc("session/stop", op.wsStop)
	ws.HandleFunc("session/command", op.wsCommand)

	log.Info().Str("url", cfg.Mod.URL).Str("schema", cfg.Mod.Schema).
		Str("mode", cfg.Mod.Mode).Msg("[operator] ready")

	if cfg.Mod.AutoStart {
		if err = op.Session.Start(); err != nil {
			log.Warn().Err(err).Msg("[operator] autostart")
		}
	}
}

func Close() {
	if op != nil {
		op.Close()
	}
	if webrtcAPI != nil {
		_ = webrtcAPI.Close()
	}
}

var log = zerolog.Nop()
var op *Operator
var webrtcAPI *webrtc.API

type Operator struct {
	Session *session.Session
	Sink    *media.Sink

	cfg Config
	log zerolog.Logger
}

func New(cfg Config, newTransport func() (core.Transport, error), log zerolog.Logger) (*Operator, error) {
	schema, err := proto.ParseSchema(cfg.Schema)
	if err != nil {
		return nil, err
	}

	mode := session.Mode(cfg.Mode)
	switch mode {
	case "", session.ModeLocal, session.ModeRemote:
	default:
		return nil, fmt.Errorf("operator: unknown channel mode %q", cfg.Mode)
	}

	sink := media.NewSink(log)
	if cfg.Forward != "" {
		if err = sink.Forward(cfg.Forward); err != nil {
			return nil, err
		}
	}

	s := session.New(session.Config{
		Schema:  schema,
		Mode:    mode,
		Label:   cfg.Label,
		Timeout: cfg.Timeout,
	}, session.Deps{
		NewTransport: newTransport,
		Exchanger:    &exchanger{url: cfg.URL},
		Sink:         sink,
		Log:          log,
	})

	return &Operator{Session: s, Sink: sink, cfg: cfg, log: log}, nil
}

func (o *Operator) Close() {
	o.Session.Close()
	_ = o.Sink.Close()
}

// Info is the session state for a UI that just connected
type Info struct {
	ID     string       `json:"id"`
	URL    string       `json:"url"`
	Schema string       `json:"schema"`
	Mode   session.Mode `json:"mode"`
	Label  string       `json:"label"`
	session.Snapshot
	Video media.Stats `json:"video"`
}

func (o *Operator) Info() Info {
	cfg := o.Session.Config()
	return Info{
		ID:       o.Session.ID,
		URL:      o.cfg.URL,
		Schema:   cfg.Schema.String(),
		Mode:     cfg.Mode,
		Label:    cfg.Label,
		Snapshot: o.Session.Snapshot(),
		Video:    o.Sink.Stats(),
	}
}

// exchanger resolves robot address on every attempt, a robot found with
// mDNS may change its IP between connections
type exchanger struct {
	url string
}

func (e *exchanger) Exchange(ctx context.Context, offer core.Descriptor) (core.Descriptor, error) {
	url, err := discovery.Resolve(ctx, e.url)
	if err != nil {
		return core.Descriptor{}, &signaling.Error{Err: err}
	}
	return signaling.NewClient(url).Exchange(ctx, offer)
}
