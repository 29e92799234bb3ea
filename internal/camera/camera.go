// Package camera owns the physical capture device and shares its frames
// with every viewer session.
//
// The device is opened when the first session acquires the Source and closed
// when the last one releases it. Exactly one goroutine reads from the device;
// frames are fanned out through a framesupplier so slow sessions skip frames
// instead of queueing them.
package camera

import (
	"errors"
	"time"

	"github.com/trainr/formtrack/internal/framesupplier"
)

var (
	// ErrDeviceUnavailable means the device could not be opened.
	ErrDeviceUnavailable = errors.New("camera: device unavailable")
	// ErrNoFirstFrame means the device opened but produced no frame within
	// the startup window.
	ErrNoFirstFrame = errors.New("camera: no frame within startup window")
	// ErrReadTimeout is returned by backends whose Read gave up waiting.
	ErrReadTimeout = errors.New("camera: read timeout")
	// ErrClosed is returned by Read on a closed device.
	ErrClosed = errors.New("camera: device closed")
)

// Device is a capture backend. Read blocks for at most a backend specific
// timeout and returns a fresh RGB frame the caller owns. Open after Close
// must reopen the device.
type Device interface {
	Open() error
	Read() (*framesupplier.Frame, error)
	Close() error
	Name() string
}

// ErrorCounter is implemented by devices that classify their failures.
// Source.Stats reports the counts.
type ErrorCounter interface {
	ErrorCounts() map[string]uint64
}

// Config controls the Source.
type Config struct {
	// StartupTimeout bounds the wait for the first frame after opening.
	StartupTimeout time.Duration
	// StallTimeout is how long without a frame before placeholders are sent.
	StallTimeout time.Duration
	// PlaceholderInterval is the placeholder publish period while degraded.
	PlaceholderInterval time.Duration
	// Width and Height size placeholders before any real frame arrived.
	Width  int
	Height int
	// WarmupFrames is the number of initial frames used for FPS statistics.
	WarmupFrames int
	Reconnect    ReconnectConfig
}

// DefaultConfig returns settings suited to a 30fps webcam.
func DefaultConfig() Config {
	return Config{
		StartupTimeout:      5 * time.Second,
		StallTimeout:        2 * time.Second,
		PlaceholderInterval: 200 * time.Millisecond,
		Width:               640,
		Height:              480,
		WarmupFrames:        30,
		Reconnect:           DefaultReconnectConfig(),
	}
}
