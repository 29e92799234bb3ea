package cmd

import (
	"context"
	"fmt"

	"github.com/trainr/formtrack/internal/camera"
	"github.com/trainr/formtrack/internal/camera/gstreamer"
	"github.com/trainr/formtrack/internal/camera/opencv"
	"github.com/trainr/formtrack/internal/config"
	"github.com/trainr/formtrack/internal/emitter"
	"github.com/trainr/formtrack/internal/exercise"
	"github.com/trainr/formtrack/internal/pose/openpose"
)

func newRegistry(cfg *config.Config) (*exercise.Registry, error) {
	extra, err := exercise.LoadFile(cfg.ExercisesFile)
	if err != nil {
		return nil, err
	}
	return exercise.NewRegistry(extra...)
}

func newEstimator(cfg *config.Config) (*openpose.Estimator, error) {
	return openpose.New(openpose.Config{
		ModelPath:       cfg.Model.Path,
		InputSize:       cfg.Model.InputSize,
		ConfidenceFloor: cfg.Model.Confidence,
		PoolSize:        cfg.Model.PoolSize,
	})
}

func newDevice(cfg *config.Config) (camera.Device, error) {
	c := cfg.Camera
	switch c.Backend {
	case "opencv":
		return opencv.New(opencv.Config{
			Index:           c.Index,
			FallbackIndices: c.FallbackIndices,
			Width:           c.Width,
			Height:          c.Height,
			FPS:             c.FPS,
		}), nil
	case "gstreamer":
		dev, err := gstreamer.New(gstreamer.Config{
			SourceElement: c.SourceElement,
			DevicePath:    c.DevicePath,
			Width:         c.Width,
			Height:        c.Height,
			FPS:           c.FPS,
			ReadTimeout:   c.ReadTimeout(),
		})
		if err != nil {
			return nil, err
		}
		return dev, nil
	case "synthetic":
		return camera.NewSynthetic(c.Width, c.Height, c.FPS), nil
	default:
		return nil, fmt.Errorf("unknown camera backend %q", c.Backend)
	}
}

func sourceConfig(cfg *config.Config) camera.Config {
	sc := camera.DefaultConfig()
	sc.StartupTimeout = cfg.Camera.StartupTimeout()
	sc.StallTimeout = cfg.Camera.StallTimeout()
	sc.PlaceholderInterval = cfg.Camera.PlaceholderInterval()
	sc.Width = cfg.Camera.Width
	sc.Height = cfg.Camera.Height
	return sc
}

// newEmitter connects to MQTT when a broker is configured. The returned
// stats func is nil for the no-op emitter.
func newEmitter(ctx context.Context, cfg *config.Config) (emitter.Emitter, func() emitter.Stats, func(), error) {
	if cfg.MQTT.Broker == "" {
		return emitter.Nop{}, nil, func() {}, nil
	}
	mq, err := emitter.NewMQTT(ctx, emitter.Config{
		Broker:      cfg.MQTT.Broker,
		ClientID:    cfg.MQTT.ClientID,
		TopicPrefix: cfg.MQTT.TopicPrefix,
		QoS:         cfg.MQTT.QoS,
		QueueSize:   cfg.MQTT.QueueSize,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return mq, mq.Stats, mq.Close, nil
}
