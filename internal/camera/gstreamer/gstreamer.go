// Package gstreamer captures frames from a V4L2 webcam (or any GStreamer
// source element) into packed RGB through an appsink.
package gstreamer

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/trainr/formtrack/internal/camera"
	"github.com/trainr/formtrack/internal/framesupplier"
)

// Config describes the capture pipeline.
type Config struct {
	// SourceElement is the GStreamer source factory, "v4l2src" by default.
	SourceElement string
	// DevicePath is set as the "device" property when non-empty.
	DevicePath string
	Width      int
	Height     int
	FPS        int
	// ReadTimeout bounds a single Read.
	ReadTimeout time.Duration
}

// Device implements camera.Device on top of a GStreamer pipeline:
//
//	source ! videoconvert ! videoscale ! videorate ! video/x-raw,format=RGB,... ! appsink
type Device struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	pipeline *gst.Pipeline
	frames   chan *framesupplier.Frame
	errs     chan error
	stop     chan struct{}
	wg       sync.WaitGroup

	samples atomic.Uint64
	dropped atomic.Uint64
	errors  [categoryCount]atomic.Uint64
}

// New validates cfg and checks GStreamer is usable. The pipeline is built on
// Open.
func New(cfg Config) (*Device, error) {
	if cfg.SourceElement == "" {
		cfg.SourceElement = "v4l2src"
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("gstreamer: invalid resolution %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 30
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = time.Second
	}

	gst.Init(nil)
	probe, err := gst.NewElement(cfg.SourceElement)
	if err != nil {
		return nil, fmt.Errorf("gstreamer: source element %q unavailable: %w", cfg.SourceElement, err)
	}
	probe.SetState(gst.StateNull)

	return &Device{
		cfg:    cfg,
		logger: slog.With("component", "gstreamer", "source", cfg.SourceElement),
	}, nil
}

func (d *Device) Name() string {
	if d.cfg.DevicePath != "" {
		return "gstreamer:" + d.cfg.DevicePath
	}
	return "gstreamer:" + d.cfg.SourceElement
}

// Open builds the pipeline and sets it PLAYING.
func (d *Device) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pipeline != nil {
		return nil
	}

	pipeline, sink, err := d.build()
	if err != nil {
		return err
	}

	frames := make(chan *framesupplier.Frame, 1)
	errs := make(chan error, 1)
	stop := make(chan struct{})

	sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(s *app.Sink) gst.FlowReturn {
			return d.onSample(s, frames)
		},
	})

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		pipeline.SetState(gst.StateNull)
		return fmt.Errorf("gstreamer: failed to start pipeline: %w", err)
	}

	d.pipeline, d.frames, d.errs, d.stop = pipeline, frames, errs, stop
	d.wg.Add(1)
	go d.watchBus(pipeline, errs, stop)

	d.logger.Info("pipeline playing", "width", d.cfg.Width, "height", d.cfg.Height, "fps", d.cfg.FPS)
	return nil
}

func (d *Device) build() (*gst.Pipeline, *app.Sink, error) {
	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, nil, fmt.Errorf("gstreamer: failed to create pipeline: %w", err)
	}

	src, err := gst.NewElement(d.cfg.SourceElement)
	if err != nil {
		return nil, nil, fmt.Errorf("gstreamer: failed to create %s: %w", d.cfg.SourceElement, err)
	}
	if d.cfg.DevicePath != "" {
		src.SetProperty("device", d.cfg.DevicePath)
	}

	var elems []*gst.Element
	elems = append(elems, src)
	for _, name := range []string{"videoconvert", "videoscale", "videorate"} {
		e, err := gst.NewElement(name)
		if err != nil {
			return nil, nil, fmt.Errorf("gstreamer: failed to create %s: %w", name, err)
		}
		elems = append(elems, e)
	}

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, nil, fmt.Errorf("gstreamer: failed to create capsfilter: %w", err)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(rgbCaps(d.cfg.Width, d.cfg.Height, d.cfg.FPS)))
	elems = append(elems, capsfilter)

	sink, err := app.NewAppSink()
	if err != nil {
		return nil, nil, fmt.Errorf("gstreamer: failed to create appsink: %w", err)
	}
	sink.SetProperty("sync", false)
	sink.SetProperty("max-buffers", 1)
	sink.SetProperty("drop", true)
	elems = append(elems, sink.Element)

	if err := pipeline.AddMany(elems...); err != nil {
		return nil, nil, fmt.Errorf("gstreamer: failed to add elements: %w", err)
	}
	if err := gst.ElementLinkMany(elems...); err != nil {
		return nil, nil, fmt.Errorf("gstreamer: failed to link elements: %w", err)
	}
	return pipeline, sink, nil
}

func rgbCaps(w, h, fps int) string {
	return fmt.Sprintf("video/x-raw,format=RGB,width=%d,height=%d,framerate=%d/1", w, h, fps)
}

// onSample copies the sample out of GStreamer memory and offers it to Read,
// replacing an unread frame.
func (d *Device) onSample(sink *app.Sink, frames chan *framesupplier.Frame) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	buf, ok := packRGB(data, d.cfg.Width, d.cfg.Height)
	buffer.Unmap()
	if !ok {
		d.logger.Debug("short buffer", "size", len(data), "width", d.cfg.Width, "height", d.cfg.Height)
		return gst.FlowOK
	}

	d.samples.Add(1)
	f := &framesupplier.Frame{
		Data:      buf,
		Width:     d.cfg.Width,
		Height:    d.cfg.Height,
		Timestamp: time.Now(),
	}

	select {
	case frames <- f:
	default:
		select {
		case <-frames:
			d.dropped.Add(1)
		default:
		}
		select {
		case frames <- f:
		default:
			d.dropped.Add(1)
		}
	}
	return gst.FlowOK
}

// packRGB copies a w x h RGB image out of a mapped buffer. GStreamer pads
// each RGB row to a multiple of 4 bytes; a buffer too small for that layout
// is taken as tightly packed.
func packRGB(data []byte, w, h int) ([]byte, bool) {
	row := w * 3
	if w <= 0 || h <= 0 {
		return nil, false
	}
	stride := (row + 3) &^ 3
	if len(data) < stride*(h-1)+row {
		stride = row
	}
	if len(data) < stride*(h-1)+row {
		return nil, false
	}

	out := make([]byte, row*h)
	if stride == row {
		copy(out, data[:row*h])
		return out, true
	}
	for y := 0; y < h; y++ {
		copy(out[y*row:(y+1)*row], data[y*stride:y*stride+row])
	}
	return out, true
}

func (d *Device) watchBus(pipeline *gst.Pipeline, errs chan<- error, stop <-chan struct{}) {
	defer d.wg.Done()

	bus := pipeline.GetPipelineBus()
	for {
		select {
		case <-stop:
			return
		default:
		}

		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		var err error
		switch msg.Type() {
		case gst.MessageEOS:
			err = errors.New("gstreamer: end of stream")
		case gst.MessageError:
			gerr := msg.ParseError()
			cat := Classify(gerr)
			d.errors[cat].Add(1)
			d.logger.Error("pipeline error",
				"error", gerr.Error(),
				"debug", gerr.DebugString(),
				"category", cat.String(),
			)
			err = fmt.Errorf("gstreamer: pipeline error [%s]: %s", cat, gerr.Error())
		default:
			continue
		}

		select {
		case errs <- err:
		default:
		}
	}
}

// Read returns the next frame, a pipeline error, or camera.ErrReadTimeout.
func (d *Device) Read() (*framesupplier.Frame, error) {
	d.mu.Lock()
	frames, errs := d.frames, d.errs
	d.mu.Unlock()

	if frames == nil {
		return nil, camera.ErrClosed
	}

	t := time.NewTimer(d.cfg.ReadTimeout)
	defer t.Stop()

	select {
	case f := <-frames:
		return f, nil
	case err := <-errs:
		return nil, err
	case <-t.C:
		return nil, camera.ErrReadTimeout
	}
}

// Close stops the pipeline. Safe to call on a closed device.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pipeline == nil {
		return nil
	}

	close(d.stop)
	d.wg.Wait()

	err := d.pipeline.SetState(gst.StateNull)
	d.pipeline, d.frames, d.errs, d.stop = nil, nil, nil, nil
	if err != nil {
		return fmt.Errorf("gstreamer: failed to set pipeline to NULL: %w", err)
	}
	d.logger.Info("pipeline stopped", "samples", d.samples.Load(), "dropped", d.dropped.Load())
	return nil
}

// ErrorCounts returns pipeline errors by category.
func (d *Device) ErrorCounts() map[string]uint64 {
	out := make(map[string]uint64, categoryCount)
	for c := Category(0); c < categoryCount; c++ {
		out[c.String()] = d.errors[c].Load()
	}
	return out
}

var (
	_ camera.Device       = (*Device)(nil)
	_ camera.ErrorCounter = (*Device)(nil)
)
