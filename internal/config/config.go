package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete formtrackd configuration
type Config struct {
	ShutdownTimeoutS int          `yaml:"shutdown_timeout_s"` // Graceful shutdown timeout in seconds (default: 5)
	Server           ServerConfig `yaml:"server"`
	Camera           CameraConfig `yaml:"camera"`
	Model            ModelConfig  `yaml:"model"`
	Stream           StreamConfig `yaml:"stream"`
	MQTT             MQTTConfig   `yaml:"mqtt"`
	Log              LogConfig    `yaml:"log"`
	ExercisesFile    string       `yaml:"exercises_file"` // Extra exercise definitions (optional)
}

// ServerConfig contains HTTP listener settings
type ServerConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	MaxSessions int    `yaml:"max_sessions"` // 0 = unlimited
}

// CameraConfig contains capture device settings
type CameraConfig struct {
	Backend               string `yaml:"backend"` // opencv, gstreamer, synthetic
	Index                 int    `yaml:"index"`
	FallbackIndices       []int  `yaml:"fallback_indices"`
	DevicePath            string `yaml:"device_path"`    // gstreamer only, e.g. /dev/video0
	SourceElement         string `yaml:"source_element"` // gstreamer only, default v4l2src
	Width                 int    `yaml:"width"`
	Height                int    `yaml:"height"`
	FPS                   int    `yaml:"fps"`
	StartupTimeoutS       int    `yaml:"startup_timeout_s"`
	StallTimeoutMS        int    `yaml:"stall_timeout_ms"`
	PlaceholderIntervalMS int    `yaml:"placeholder_interval_ms"`
	ReadTimeoutMS         int    `yaml:"read_timeout_ms"`
}

// ModelConfig contains keypoint model settings
type ModelConfig struct {
	Path       string  `yaml:"path"`
	InputSize  int     `yaml:"input_size"`
	Confidence float64 `yaml:"confidence"`
	PoolSize   int     `yaml:"pool_size"`
}

// StreamConfig contains MJPEG output settings
type StreamConfig struct {
	JPEGQuality int `yaml:"jpeg_quality"`
	MaxFPS      int `yaml:"max_fps"` // per-session output cap, 0 = camera rate
}

// MQTTConfig contains rep event publishing settings. Empty broker disables it.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
	QueueSize   int    `yaml:"queue_size"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// Load reads and parses a YAML configuration file. A missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns a validated configuration with every default applied.
func Default() *Config {
	var cfg Config
	if err := Validate(&cfg); err != nil {
		panic(err)
	}
	return &cfg
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutS) * time.Second
}

func (c CameraConfig) StartupTimeout() time.Duration {
	return time.Duration(c.StartupTimeoutS) * time.Second
}

func (c CameraConfig) StallTimeout() time.Duration {
	return time.Duration(c.StallTimeoutMS) * time.Millisecond
}

func (c CameraConfig) PlaceholderInterval() time.Duration {
	return time.Duration(c.PlaceholderIntervalMS) * time.Millisecond
}

func (c CameraConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutMS) * time.Millisecond
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
