// Package robot holds the rover configuration file.
package robot

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gwillem/rover/pkg/drive"
	"github.com/gwillem/rover/pkg/link"
	"github.com/gwillem/rover/pkg/vision"
)

const DefaultConfigFile = "rover.yaml"

// Config holds the rover configuration.
type Config struct {
	Serial         SerialConfig  `yaml:"serial"`
	Vision         VisionConfig  `yaml:"vision"`
	Policy         PolicyConfig  `yaml:"policy"`
	ShutdownSettle time.Duration `yaml:"shutdown_settle"` // wait after the final STOP
	Log            LogConfig     `yaml:"log"`
}

// SerialConfig describes the microcontroller link.
type SerialConfig struct {
	Port        string        `yaml:"port"` // empty: auto-detect
	BaudRate    int           `yaml:"baud_rate"`
	ResetDelay  time.Duration `yaml:"reset_delay"`
	PollTimeout time.Duration `yaml:"poll_timeout"`
}

// VisionConfig describes the detector process.
type VisionConfig struct {
	Model           string        `yaml:"model"`
	Command         string        `yaml:"command"`
	Args            []string      `yaml:"args,omitempty"`
	Camera          int           `yaml:"camera"`
	ImageSize       int           `yaml:"image_size"`
	ConfidenceFloor float64       `yaml:"confidence_floor"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
}

// PolicyConfig holds the decision thresholds and settle timings.
type PolicyConfig struct {
	NearObstacleCM      float64       `yaml:"near_obstacle_cm"`
	ConfidenceThreshold float64       `yaml:"confidence_threshold"`
	AvoidSettle         time.Duration `yaml:"avoid_settle"`
	StopSettle          time.Duration `yaml:"stop_settle"`
	ForwardPause        time.Duration `yaml:"forward_pause"`
	FailClosed          bool          `yaml:"fail_closed"`
}

// LogConfig selects log verbosity and destination.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	File  string `yaml:"file,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	p := drive.DefaultPolicy()
	return &Config{
		Serial: SerialConfig{
			BaudRate:    link.DefaultBaudRate,
			ResetDelay:  link.DefaultResetDelay,
			PollTimeout: link.DefaultPollTimeout,
		},
		Vision: VisionConfig{
			Model:           "best.pt",
			Command:         "rover-detector",
			ImageSize:       vision.DefaultImageSize,
			ConfidenceFloor: vision.DefaultConfidenceFloor,
			RequestTimeout:  vision.DefaultRequestTimeout,
		},
		Policy: PolicyConfig{
			NearObstacleCM:      p.NearObstacleCM,
			ConfidenceThreshold: p.ConfidenceThreshold,
			AvoidSettle:         p.AvoidSettle,
			StopSettle:          p.StopSettle,
			ForwardPause:        p.ForwardPause,
		},
		ShutdownSettle: time.Second,
		Log:            LogConfig{Level: "info"},
	}
}

// LoadConfigFrom loads configuration from path on top of the defaults.
func LoadConfigFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads path, falling back to defaults if it does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := LoadConfigFrom(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Serial.BaudRate <= 0 {
		return fmt.Errorf("serial.baud_rate must be > 0")
	}
	if c.Vision.Model == "" {
		return fmt.Errorf("vision.model is required")
	}
	if c.Vision.Command == "" {
		return fmt.Errorf("vision.command is required")
	}
	if c.Vision.ImageSize <= 0 {
		return fmt.Errorf("vision.image_size must be > 0")
	}
	if c.Vision.ConfidenceFloor < 0 || c.Vision.ConfidenceFloor > 1 {
		return fmt.Errorf("vision.confidence_floor must be in [0, 1]")
	}
	if c.Policy.NearObstacleCM <= 0 {
		return fmt.Errorf("policy.near_obstacle_cm must be > 0")
	}
	if c.Policy.ConfidenceThreshold < 0 || c.Policy.ConfidenceThreshold > 1 {
		return fmt.Errorf("policy.confidence_threshold must be in [0, 1]")
	}
	for name, d := range map[string]time.Duration{
		"policy.avoid_settle":  c.Policy.AvoidSettle,
		"policy.stop_settle":   c.Policy.StopSettle,
		"policy.forward_pause": c.Policy.ForwardPause,
		"shutdown_settle":      c.ShutdownSettle,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// DrivePolicy converts the policy section for the decision engine.
func (c *Config) DrivePolicy() drive.Policy {
	return drive.Policy{
		NearObstacleCM:      c.Policy.NearObstacleCM,
		ConfidenceThreshold: c.Policy.ConfidenceThreshold,
		AvoidSettle:         c.Policy.AvoidSettle,
		StopSettle:          c.Policy.StopSettle,
		ForwardPause:        c.Policy.ForwardPause,
		FailClosed:          c.Policy.FailClosed,
	}
}

// LinkConfig converts the serial section for link.Open.
func (c *Config) LinkConfig() link.Config {
	return link.Config{
		Port:        c.Serial.Port,
		BaudRate:    c.Serial.BaudRate,
		ResetDelay:  c.Serial.ResetDelay,
		PollTimeout: c.Serial.PollTimeout,
	}
}

// SidecarConfig converts the vision section for vision.StartSidecar.
func (c *Config) SidecarConfig(logger *slog.Logger) vision.SidecarConfig {
	return vision.SidecarConfig{
		Command:         c.Vision.Command,
		Args:            c.Vision.Args,
		ModelPath:       c.Vision.Model,
		Camera:          c.Vision.Camera,
		ImageSize:       c.Vision.ImageSize,
		ConfidenceFloor: c.Vision.ConfidenceFloor,
		RequestTimeout:  c.Vision.RequestTimeout,
		Logger:          logger,
	}
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

// SaveTo writes the configuration as YAML.
func (c *Config) SaveTo(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ConfigExists reports whether a configuration file is present at path.
func ConfigExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
