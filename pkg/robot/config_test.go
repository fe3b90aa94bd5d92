package robot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/rover/pkg/drive"
)

func TestDefault_MatchesDrivePolicy(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, drive.DefaultPolicy(), cfg.DrivePolicy())
	assert.Equal(t, 9600, cfg.Serial.BaudRate)
	assert.Equal(t, time.Second, cfg.ShutdownSettle)
}

func TestLoadConfigFrom_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rover.yaml")
	data := `
serial:
  port: /dev/ttyACM0
  baud_rate: 115200
vision:
  model: models/cones.pt
  camera: 2
policy:
  near_obstacle_cm: 35
  stop_settle: 250ms
  fail_closed: true
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := LoadConfigFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyACM0", cfg.Serial.Port)
	assert.Equal(t, 115200, cfg.Serial.BaudRate)
	assert.Equal(t, "models/cones.pt", cfg.Vision.Model)
	assert.Equal(t, 2, cfg.Vision.Camera)
	// untouched fields keep their defaults
	assert.Equal(t, "rover-detector", cfg.Vision.Command)
	assert.Equal(t, 0.85, cfg.Policy.ConfidenceThreshold)

	p := cfg.DrivePolicy()
	assert.Equal(t, 35.0, p.NearObstacleCM)
	assert.Equal(t, 250*time.Millisecond, p.StopSettle)
	assert.True(t, p.FailClosed)
}

func TestLoadConfigFrom_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"syntax", "serial: [\n"},
		{"threshold", "policy:\n  confidence_threshold: 1.5\n"},
		{"baud", "serial:\n  baud_rate: -1\n"},
		{"level", "log:\n  level: loud\n"},
		{"settle", "shutdown_settle: -1s\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "rover.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.data), 0644))
			_, err := LoadConfigFrom(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadOrDefault_Missing(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestConfigExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultConfigFile)
	assert.False(t, ConfigExists(path))
	assert.False(t, ConfigExists(dir), "a directory is not a config file")

	require.NoError(t, Default().SaveTo(path))
	assert.True(t, ConfigExists(path))
}

func TestConfig_SaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rover.yaml")
	cfg := Default()
	cfg.Serial.Port = "/dev/ttyUSB0"
	cfg.Policy.AvoidSettle = 750 * time.Millisecond

	require.NoError(t, cfg.SaveTo(path))
	loaded, err := LoadConfigFrom(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestConfig_Conversions(t *testing.T) {
	cfg := Default()
	cfg.Serial.Port = "COM3"
	cfg.Vision.Args = []string{"detector.py"}

	lc := cfg.LinkConfig()
	assert.Equal(t, "COM3", lc.Port)
	assert.Equal(t, cfg.Serial.PollTimeout, lc.PollTimeout)

	sc := cfg.SidecarConfig(nil)
	assert.Equal(t, "best.pt", sc.ModelPath)
	assert.Equal(t, []string{"detector.py"}, sc.Args)
	assert.Equal(t, 640, sc.ImageSize)
}
