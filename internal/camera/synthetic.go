package camera

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/trainr/formtrack/internal/framesupplier"
)

// Synthetic is a generated-frame device for demos and tests. Frames are a
// grey background with a bar sweeping left to right at the configured rate.
type Synthetic struct {
	width  int
	height int
	fps    int

	mu     sync.Mutex
	open   bool
	next   time.Time
	frames uint64

	// Failure injection.
	openErr atomic.Pointer[error]
	failing atomic.Bool
	stalled atomic.Bool

	opens     atomic.Int64
	closes    atomic.Int64
	openFails atomic.Uint64
	readFails atomic.Uint64
}

// NewSynthetic returns a closed synthetic device.
func NewSynthetic(width, height, fps int) *Synthetic {
	if fps <= 0 {
		fps = 30
	}
	return &Synthetic{width: width, height: height, fps: fps}
}

func (s *Synthetic) Name() string {
	return fmt.Sprintf("synthetic:%dx%d@%d", s.width, s.height, s.fps)
}

func (s *Synthetic) Open() error {
	if p := s.openErr.Load(); p != nil && *p != nil {
		s.openFails.Add(1)
		return *p
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = true
	s.next = time.Now()
	s.opens.Add(1)
	return nil
}

func (s *Synthetic) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open {
		s.open = false
		s.closes.Add(1)
	}
	return nil
}

// Read paces frames at fps.
func (s *Synthetic) Read() (*framesupplier.Frame, error) {
	interval := time.Second / time.Duration(s.fps)

	if s.stalled.Load() {
		time.Sleep(interval)
		return nil, ErrReadTimeout
	}
	if s.failing.Load() {
		time.Sleep(interval)
		s.readFails.Add(1)
		return nil, errors.New("synthetic: injected read failure")
	}

	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	wait := time.Until(s.next)
	s.next = s.next.Add(interval)
	if wait < -interval {
		// Reader fell behind; resynchronise instead of bursting.
		s.next = time.Now().Add(interval)
	}
	n := s.frames
	s.frames++
	s.mu.Unlock()

	if wait > 0 {
		time.Sleep(wait)
	}

	return &framesupplier.Frame{
		Data:      s.render(n),
		Width:     s.width,
		Height:    s.height,
		Timestamp: time.Now(),
	}, nil
}

func (s *Synthetic) render(n uint64) []byte {
	buf := make([]byte, s.width*s.height*3)
	for i := range buf {
		buf[i] = 64
	}
	barW := max(s.width/20, 1)
	x0 := int(n*uint64(barW)) % s.width
	for y := 0; y < s.height; y++ {
		for x := x0; x < x0+barW && x < s.width; x++ {
			p := (y*s.width + x) * 3
			buf[p], buf[p+1], buf[p+2] = 220, 220, 220
		}
	}
	return buf
}

// SetOpenError makes subsequent Open calls fail with err (nil clears it).
func (s *Synthetic) SetOpenError(err error) { s.openErr.Store(&err) }

// SetFailing makes Read return an error.
func (s *Synthetic) SetFailing(v bool) { s.failing.Store(v) }

// SetStalled makes Read time out without producing frames.
func (s *Synthetic) SetStalled(v bool) { s.stalled.Store(v) }

// Opens and Closes count device open/close transitions.
func (s *Synthetic) Opens() int64  { return s.opens.Load() }
func (s *Synthetic) Closes() int64 { return s.closes.Load() }

// ErrorCounts reports injected failures by kind.
func (s *Synthetic) ErrorCounts() map[string]uint64 {
	return map[string]uint64{
		"open": s.openFails.Load(),
		"read": s.readFails.Load(),
	}
}

// IsOpen reports whether the device is currently open.
func (s *Synthetic) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}
