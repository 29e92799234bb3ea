package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/trainr/formtrack/internal/framesupplier"
)

// Source is the shared, reference counted camera.
type Source struct {
	cfg    Config
	dev    Device
	logger *slog.Logger

	mu   sync.Mutex
	refs int
	run  *captureRun

	framesCaptured atomic.Uint64
	readErrors     atomic.Uint64
	reconnects     atomic.Uint64
	placeholders   atomic.Uint64
	opens          atomic.Uint64
}

// captureRun is one open period of the device, from first acquire to last
// release.
type captureRun struct {
	sup    *framesupplier.Supplier
	cancel context.CancelFunc
	done   chan struct{}

	firstFrame     chan struct{}
	firstFrameOnce sync.Once

	degraded    atomic.Bool
	lastFrameAt atomic.Int64 // unix nanos
	width       atomic.Int64
	height      atomic.Int64

	warmupMu sync.Mutex
	warmup   []time.Time
	stats    *WarmupStats
}

// NewSource wraps dev. Nothing is opened until the first Acquire.
func NewSource(dev Device, cfg Config) *Source {
	def := DefaultConfig()
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = def.StartupTimeout
	}
	if cfg.StallTimeout <= 0 {
		cfg.StallTimeout = def.StallTimeout
	}
	if cfg.PlaceholderInterval <= 0 {
		cfg.PlaceholderInterval = def.PlaceholderInterval
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = def.Width, def.Height
	}
	if cfg.WarmupFrames <= 0 {
		cfg.WarmupFrames = def.WarmupFrames
	}
	if cfg.Reconnect.RetryDelay <= 0 {
		cfg.Reconnect = def.Reconnect
	}
	return &Source{
		cfg:    cfg,
		dev:    dev,
		logger: slog.With("component", "camera", "device", dev.Name()),
	}
}

// Acquire subscribes id to the camera, opening the device if id is the first
// subscriber, and waits until at least one frame has been captured.
//
// The returned read function blocks for the next frame and returns nil after
// release. release is idempotent and closes the device when the last
// subscriber leaves. On error nothing needs releasing.
func (s *Source) Acquire(ctx context.Context, id string) (read func() *framesupplier.Frame, release func(), err error) {
	s.mu.Lock()
	if s.run == nil {
		run, err := s.start()
		if err != nil {
			s.mu.Unlock()
			return nil, nil, err
		}
		s.run = run
	}
	run := s.run
	s.refs++
	read = run.sup.Subscribe(id)
	s.mu.Unlock()

	var once sync.Once
	release = func() {
		once.Do(func() { s.release(run, id) })
	}

	timer := time.NewTimer(s.cfg.StartupTimeout)
	defer timer.Stop()

	select {
	case <-run.firstFrame:
		return read, release, nil
	case <-run.done:
		release()
		return nil, nil, fmt.Errorf("%w: capture stopped before first frame", ErrNoFirstFrame)
	case <-timer.C:
		release()
		return nil, nil, fmt.Errorf("%w (%s)", ErrNoFirstFrame, s.cfg.StartupTimeout)
	case <-ctx.Done():
		release()
		return nil, nil, ctx.Err()
	}
}

// start opens the device and launches the capture and watchdog goroutines.
// Called with s.mu held.
func (s *Source) start() (*captureRun, error) {
	if err := s.dev.Open(); err != nil {
		s.logger.Error("device open failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	s.opens.Add(1)

	ctx, cancel := context.WithCancel(context.Background())
	run := &captureRun{
		sup:        framesupplier.New(),
		cancel:     cancel,
		done:       make(chan struct{}),
		firstFrame: make(chan struct{}),
	}
	run.width.Store(int64(s.cfg.Width))
	run.height.Store(int64(s.cfg.Height))
	run.lastFrameAt.Store(time.Now().UnixNano())

	if err := run.sup.Start(ctx); err != nil {
		cancel()
		_ = s.dev.Close()
		return nil, err
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.captureLoop(ctx, run)
	}()
	go func() {
		defer wg.Done()
		s.watchdog(ctx, run)
	}()
	go func() {
		wg.Wait()
		_ = run.sup.Stop()
		close(run.done)
	}()

	s.logger.Info("device opened")
	return run, nil
}

func (s *Source) release(run *captureRun, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run.sup.Unsubscribe(id)
	s.refs--
	if s.refs > 0 || s.run != run {
		return
	}

	s.run = nil
	run.cancel()
	<-run.done
	s.logger.Info("device closed", "frames_captured", s.framesCaptured.Load())
}

// captureLoop is the only reader of the device.
func (s *Source) captureLoop(ctx context.Context, run *captureRun) {
	defer func() {
		if err := s.dev.Close(); err != nil {
			s.logger.Debug("device close failed", "error", err)
		}
	}()

	failures := 0
	for ctx.Err() == nil {
		frame, err := s.dev.Read()
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.readErrors.Add(1)
			if errors.Is(err, ErrReadTimeout) {
				// Stalls are covered by the watchdog.
				continue
			}

			if !run.degraded.Swap(true) {
				s.logger.Warn("device read failed, reopening", "error", err)
			}
			_ = s.dev.Close()

			// A device that reopens fine but keeps failing reads must not spin.
			failures++
			if !sleepCtx(ctx, backoff(failures, s.cfg.Reconnect)) {
				return
			}
			err = reconnect(ctx, s.logger, s.dev.Open, s.cfg.Reconnect, func() { s.reconnects.Add(1) })
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Error("device lost", "error", err)
				}
				return
			}
			continue
		}
		if !frame.Valid() {
			s.readErrors.Add(1)
			continue
		}

		failures = 0
		now := time.Now()
		if frame.Timestamp.IsZero() {
			frame.Timestamp = now
		}
		if frame.TraceID == "" {
			frame.TraceID = uuid.NewString()
		}
		run.lastFrameAt.Store(now.UnixNano())
		run.width.Store(int64(frame.Width))
		run.height.Store(int64(frame.Height))
		if run.degraded.Swap(false) {
			s.logger.Info("device recovered")
		}

		s.framesCaptured.Add(1)
		s.recordWarmup(run, now)
		run.sup.Publish(frame)
		run.firstFrameOnce.Do(func() { close(run.firstFrame) })
	}
}

// watchdog publishes placeholder frames while the device is failing or has
// not delivered a frame for StallTimeout.
func (s *Source) watchdog(ctx context.Context, run *captureRun) {
	ticker := time.NewTicker(s.cfg.PlaceholderInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// Before the first frame the startup timeout applies instead.
		select {
		case <-run.firstFrame:
		default:
			continue
		}

		last := time.Unix(0, run.lastFrameAt.Load())
		stalled := time.Since(last) > s.cfg.StallTimeout
		if !stalled && !run.degraded.Load() {
			continue
		}

		reason := "Signal lost"
		if stalled && !run.degraded.Swap(true) {
			s.logger.Warn("device stalled", "since", last)
		}
		s.placeholders.Add(1)
		run.sup.Publish(&framesupplier.Frame{
			Width:     int(run.width.Load()),
			Height:    int(run.height.Load()),
			Timestamp: time.Now(),
			Degraded:  true,
			Reason:    reason,
		})
	}
}

func (s *Source) recordWarmup(run *captureRun, at time.Time) {
	run.warmupMu.Lock()
	defer run.warmupMu.Unlock()

	if run.stats != nil {
		return
	}
	run.warmup = append(run.warmup, at)
	if len(run.warmup) < s.cfg.WarmupFrames {
		return
	}
	ws := computeWarmup(run.warmup)
	run.stats = &ws
	run.warmup = nil
	s.logger.Info("warmup complete",
		"frames", ws.FramesReceived,
		"fps_mean", ws.FPSMean,
		"fps_stddev", ws.FPSStdDev,
		"jitter_mean", ws.JitterMean,
		"stable", ws.IsStable,
	)
}

// Stats is a snapshot of the source.
type Stats struct {
	Device         string               `json:"device"`
	Open           bool                 `json:"open"`
	Degraded       bool                 `json:"degraded"`
	Subscribers    int                  `json:"subscribers"`
	Opens          uint64               `json:"opens"`
	FramesCaptured uint64               `json:"frames_captured"`
	ReadErrors     uint64               `json:"read_errors"`
	Reconnects     uint64               `json:"reconnects"`
	Placeholders   uint64               `json:"placeholders"`
	DeviceErrors   map[string]uint64    `json:"device_errors,omitempty"`
	LastFrameAt    time.Time            `json:"last_frame_at,omitempty"`
	Warmup         *WarmupStats         `json:"warmup,omitempty"`
	Distribution   *framesupplier.Stats `json:"distribution,omitempty"`
}

// Stats returns a snapshot. Safe for concurrent use.
func (s *Source) Stats() Stats {
	s.mu.Lock()
	run, refs := s.run, s.refs
	s.mu.Unlock()

	st := Stats{
		Device:         s.dev.Name(),
		Subscribers:    refs,
		Opens:          s.opens.Load(),
		FramesCaptured: s.framesCaptured.Load(),
		ReadErrors:     s.readErrors.Load(),
		Reconnects:     s.reconnects.Load(),
		Placeholders:   s.placeholders.Load(),
	}
	if ec, ok := s.dev.(ErrorCounter); ok {
		st.DeviceErrors = ec.ErrorCounts()
	}
	if run == nil {
		return st
	}
	st.Open = true
	st.Degraded = run.degraded.Load()
	st.LastFrameAt = time.Unix(0, run.lastFrameAt.Load())
	dist := run.sup.Stats()
	st.Distribution = &dist
	run.warmupMu.Lock()
	if run.stats != nil {
		ws := *run.stats
		st.Warmup = &ws
	}
	run.warmupMu.Unlock()
	return st
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
