// Package robot serves the robot end of a teleoperation link: the `/offer`
// signaling endpoint, mDNS announce and the robot workers.
package robot

import (
	"context"

	"github.com/hashicorp/mdns"
	"github.com/rovelink/rovelink/internal/api"
	"github.com/rovelink/rovelink/internal/app"
	"github.com/rovelink/rovelink/pkg/discovery"
	"github.com/rovelink/rovelink/pkg/robot"
	"github.com/rovelink/rovelink/pkg/signaling"
	"github.com/rovelink/rovelink/pkg/webrtc"
	"github.com/rs/zerolog"
)

type Config struct {
	robot.Config `yaml:",inline"`

	Enabled bool `yaml:"enabled"`
	// Path of signaling endpoint
	Path string `yaml:"path"`
	// Name announced with mDNS, empty disables announce
	Name string `yaml:"name"`
}

func DefaultConfig() Config {
	return Config{
		Config: robot.DefaultConfig(),
		Path:   discovery.DefaultPath,
	}
}

func Init() {
	var cfg struct {
		Mod    Config        `yaml:"robot"`
		WebRTC webrtc.Config `yaml:"webrtc"`
	}

	cfg.Mod = DefaultConfig()

	app.LoadConfig(&cfg)

	if !cfg.Mod.Enabled {
		return
	}

	log = app.GetLogger("robot")

	var err error
	if webrtcAPI, err = webrtc.NewAPI(cfg.WebRTC, app.GetLogger("webrtc")); err != nil {
		log.Error().Err(err).Caller().Send()
		return
	}

	if rb, err = robot.New(cfg.Mod.Config, webrtcAPI, log); err != nil {
		log.Error().Err(err).Msg("[robot] config")
		return
	}

	api.HandleFunc(cfg.Mod.Path, signaling.Handler(rb.Answer, log))

	var ctx context.Context
	ctx, cancel = context.WithCancel(context.Background())

	go func() {
		if err := rb.Run(ctx); err != nil {
			log.Error().Err(err).Msg("[robot] run")
		}
	}()

	if cfg.Mod.Name != "" {
		announce(cfg.Mod.Name, cfg.Mod.Path)
	}

	log.Info().Str("path", cfg.Mod.Path).Str("schema", cfg.Mod.Schema).Msg("[robot] ready")
}

func Close() {
	if cancel != nil {
		cancel()
	}
	if server != nil {
		_ = server.Shutdown()
	}
	if rb != nil {
		rb.Close()
	}
	if webrtcAPI != nil {
		_ = webrtcAPI.Close()
	}
}

var log = zerolog.Nop()
var rb *robot.Robot
var webrtcAPI *webrtc.API
var cancel context.CancelFunc
var server *mdns.Server

func announce(name, path string) {
	if api.Port == 0 {
		log.Warn().Msg("[robot] mdns announce needs api listen")
		return
	}

	var err error
	if server, err = discovery.NewServer(name, api.Port, path, nil); err != nil {
		log.Warn().Err(err).Msg("[robot] mdns")
		return
	}

	log.Info().Str("name", name).Int("port", api.Port).Msg("[robot] mdns announce")
}
