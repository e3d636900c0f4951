package robot

import (
	"testing"
	"time"

	"github.com/rovelink/rovelink/pkg/yaml"
	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	var cfg struct {
		Mod Config `yaml:"robot"`
	}
	cfg.Mod = DefaultConfig()

	data := `
robot:
  enabled: true
  name: rover
  schema: move
  interval: 20ms
  ordered: true
  serial: /dev/ttyACM0
  camera: gst-launch-1.0 libcamerasrc ! x264enc ! rtph264pay ! udpsink port=5004
`
	require.Nil(t, yaml.Unmarshal([]byte(data), &cfg))

	require.True(t, cfg.Mod.Enabled)
	require.Equal(t, "rover", cfg.Mod.Name)
	require.Equal(t, "/offer", cfg.Mod.Path)
	require.Equal(t, "move", cfg.Mod.Schema)
	require.Equal(t, 20*time.Millisecond, cfg.Mod.Interval)
	require.True(t, cfg.Mod.Ordered)
	require.Equal(t, "/dev/ttyACM0", cfg.Mod.Serial)
	require.Contains(t, cfg.Mod.Camera, "udpsink")

	// defaults from the robot package survive
	require.Equal(t, "protobuf", cfg.Mod.Label)
	require.Equal(t, 200, cfg.Mod.QueueSize)
	require.True(t, cfg.Mod.Simulate)
}

func TestAnnounceWithoutAPI(t *testing.T) {
	announce("rover", "/offer")
	require.Nil(t, server)
}
