// Package opencv captures webcam frames through OpenCV's VideoCapture.
package opencv

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/trainr/formtrack/internal/camera"
	"github.com/trainr/formtrack/internal/framesupplier"
)

// Config selects and sizes the webcam.
type Config struct {
	// Index is the preferred device index.
	Index int
	// FallbackIndices are tried in order when Index cannot be opened.
	FallbackIndices []int
	Width           int
	Height          int
	FPS             int
}

// Device implements camera.Device. Read blocks until the driver delivers the
// next frame, which is bounded by the camera frame interval.
type Device struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	vc     *gocv.VideoCapture
	active int
	bgr    gocv.Mat
	rgb    gocv.Mat
	sized  gocv.Mat
}

// New returns a closed device.
func New(cfg Config) *Device {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = 640, 480
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 30
	}
	return &Device{cfg: cfg, active: -1, logger: slog.With("component", "opencv")}
}

func (d *Device) Name() string {
	return fmt.Sprintf("opencv:%d", d.cfg.Index)
}

// Open opens the first index from Index followed by FallbackIndices that
// yields an opened capture.
func (d *Device) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.vc != nil {
		return nil
	}

	var errs []error
	for _, idx := range candidates(d.cfg.Index, d.cfg.FallbackIndices) {
		vc, err := gocv.OpenVideoCapture(idx)
		if err != nil {
			errs = append(errs, fmt.Errorf("index %d: %w", idx, err))
			continue
		}
		if !vc.IsOpened() {
			_ = vc.Close()
			errs = append(errs, fmt.Errorf("index %d: not opened", idx))
			continue
		}

		vc.Set(gocv.VideoCaptureFrameWidth, float64(d.cfg.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(d.cfg.Height))
		vc.Set(gocv.VideoCaptureFPS, float64(d.cfg.FPS))

		d.vc = vc
		d.active = idx
		d.bgr = gocv.NewMat()
		d.rgb = gocv.NewMat()
		d.sized = gocv.NewMat()
		if idx != d.cfg.Index {
			d.logger.Warn("using fallback camera index", "requested", d.cfg.Index, "opened", idx)
		}
		d.logger.Info("camera opened", "index", idx)
		return nil
	}
	return fmt.Errorf("opencv: no camera could be opened: %w", errors.Join(errs...))
}

// Read grabs one frame, converted to RGB at the configured size.
func (d *Device) Read() (*framesupplier.Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.vc == nil {
		return nil, camera.ErrClosed
	}
	if ok := d.vc.Read(&d.bgr); !ok || d.bgr.Empty() {
		return nil, fmt.Errorf("opencv: read failed on index %d", d.active)
	}

	src := d.bgr
	if d.bgr.Cols() != d.cfg.Width || d.bgr.Rows() != d.cfg.Height {
		gocv.Resize(d.bgr, &d.sized, image.Pt(d.cfg.Width, d.cfg.Height), 0, 0, gocv.InterpolationLinear)
		src = d.sized
	}
	if err := gocv.CvtColor(src, &d.rgb, gocv.ColorBGRToRGB); err != nil {
		return nil, fmt.Errorf("opencv: color conversion: %w", err)
	}

	return &framesupplier.Frame{
		Data:      d.rgb.ToBytes(),
		Width:     d.rgb.Cols(),
		Height:    d.rgb.Rows(),
		Timestamp: time.Now(),
	}, nil
}

// Close releases the capture. Safe on a closed device.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.vc == nil {
		return nil
	}
	err := d.vc.Close()
	d.bgr.Close()
	d.rgb.Close()
	d.sized.Close()
	d.vc = nil
	d.active = -1
	return err
}

// candidates returns primary followed by the fallbacks, without duplicates.
func candidates(primary int, fallbacks []int) []int {
	out := []int{primary}
	seen := map[int]bool{primary: true}
	for _, i := range fallbacks {
		if i < 0 || seen[i] {
			continue
		}
		seen[i] = true
		out = append(out, i)
	}
	return out
}

var _ camera.Device = (*Device)(nil)
