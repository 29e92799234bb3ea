package config

import (
	"fmt"
	"strings"
)

var backends = map[string]bool{"opencv": true, "gstreamer": true, "synthetic": true}

// Validate checks if the configuration is valid and fills defaults
func Validate(cfg *Config) error {
	if cfg.ShutdownTimeoutS <= 0 {
		cfg.ShutdownTimeoutS = 5
	}

	// Server
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5001
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1-65535, got %d", cfg.Server.Port)
	}
	if cfg.Server.MaxSessions < 0 {
		return fmt.Errorf("server.max_sessions must be >= 0")
	}

	// Camera
	if cfg.Camera.Backend == "" {
		cfg.Camera.Backend = "opencv"
	}
	cfg.Camera.Backend = strings.ToLower(cfg.Camera.Backend)
	if !backends[cfg.Camera.Backend] {
		return fmt.Errorf("camera.backend must be one of opencv, gstreamer, synthetic, got %q", cfg.Camera.Backend)
	}
	if cfg.Camera.Index < 0 {
		return fmt.Errorf("camera.index must be >= 0")
	}
	if cfg.Camera.FallbackIndices == nil {
		cfg.Camera.FallbackIndices = []int{1, 2, 3}
	}
	if cfg.Camera.Width == 0 && cfg.Camera.Height == 0 {
		cfg.Camera.Width, cfg.Camera.Height = 640, 480
	}
	if cfg.Camera.Width <= 0 || cfg.Camera.Height <= 0 {
		return fmt.Errorf("camera resolution must be positive, got %dx%d", cfg.Camera.Width, cfg.Camera.Height)
	}
	if cfg.Camera.FPS == 0 {
		cfg.Camera.FPS = 30
	}
	if cfg.Camera.FPS < 0 || cfg.Camera.FPS > 240 {
		return fmt.Errorf("camera.fps must be in 1-240, got %d", cfg.Camera.FPS)
	}
	if cfg.Camera.StartupTimeoutS <= 0 {
		cfg.Camera.StartupTimeoutS = 5
	}
	if cfg.Camera.StallTimeoutMS <= 0 {
		cfg.Camera.StallTimeoutMS = 2000
	}
	if cfg.Camera.PlaceholderIntervalMS <= 0 {
		cfg.Camera.PlaceholderIntervalMS = 200
	}
	if cfg.Camera.ReadTimeoutMS <= 0 {
		cfg.Camera.ReadTimeoutMS = 1000
	}

	// Model
	if cfg.Model.Path == "" {
		cfg.Model.Path = "graph_opt.pb"
	}
	if cfg.Model.InputSize == 0 {
		cfg.Model.InputSize = 368
	}
	if cfg.Model.InputSize < 32 {
		return fmt.Errorf("model.input_size must be >= 32, got %d", cfg.Model.InputSize)
	}
	if cfg.Model.Confidence == 0 {
		cfg.Model.Confidence = 0.2
	}
	if cfg.Model.Confidence < 0 || cfg.Model.Confidence >= 1 {
		return fmt.Errorf("model.confidence must be in (0, 1), got %g", cfg.Model.Confidence)
	}
	if cfg.Model.PoolSize <= 0 {
		cfg.Model.PoolSize = 2
	}

	// Stream
	if cfg.Stream.JPEGQuality == 0 {
		cfg.Stream.JPEGQuality = 80
	}
	if cfg.Stream.JPEGQuality < 1 || cfg.Stream.JPEGQuality > 100 {
		return fmt.Errorf("stream.jpeg_quality must be in 1-100, got %d", cfg.Stream.JPEGQuality)
	}
	if cfg.Stream.MaxFPS < 0 {
		return fmt.Errorf("stream.max_fps must be >= 0")
	}

	// MQTT (optional)
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "formtrack"
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "formtrackd"
	}
	if cfg.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", cfg.MQTT.QoS)
	}
	if cfg.MQTT.QueueSize <= 0 {
		cfg.MQTT.QueueSize = 64
	}

	// Log
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", cfg.Log.Level)
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("log.format must be json or text, got %q", cfg.Log.Format)
	}

	return nil
}
