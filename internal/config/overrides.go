package config

import (
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. FORMTRACK_CAMERA_INDEX.
const EnvPrefix = "FORMTRACK"

// Override keys. Flags bound under these names and FORMTRACK_* variables win
// over the file.
const (
	KeyHost          = "server.host"
	KeyPort          = "server.port"
	KeyMaxSessions   = "server.max_sessions"
	KeyBackend       = "camera.backend"
	KeyCameraIndex   = "camera.index"
	KeyDevicePath    = "camera.device_path"
	KeyModelPath     = "model.path"
	KeyMQTTBroker    = "mqtt.broker"
	KeyLogLevel      = "log.level"
	KeyLogFormat     = "log.format"
	KeyExercisesFile = "exercises_file"
)

// NewViper returns a viper instance reading FORMTRACK_* environment variables.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// ApplyOverrides copies every key set in v onto cfg and validates the result.
func ApplyOverrides(cfg *Config, v *viper.Viper) error {
	if v == nil {
		return Validate(cfg)
	}

	setString := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	setInt := func(key string, dst *int) {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}

	setString(KeyHost, &cfg.Server.Host)
	setInt(KeyPort, &cfg.Server.Port)
	setInt(KeyMaxSessions, &cfg.Server.MaxSessions)
	setString(KeyBackend, &cfg.Camera.Backend)
	setInt(KeyCameraIndex, &cfg.Camera.Index)
	setString(KeyDevicePath, &cfg.Camera.DevicePath)
	setString(KeyModelPath, &cfg.Model.Path)
	setString(KeyMQTTBroker, &cfg.MQTT.Broker)
	setString(KeyLogLevel, &cfg.Log.Level)
	setString(KeyLogFormat, &cfg.Log.Format)
	setString(KeyExercisesFile, &cfg.ExercisesFile)

	return Validate(cfg)
}
