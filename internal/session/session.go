// Package session runs the per-viewer analysis pipeline: latest camera frame
// -> keypoints -> rule angles -> rep counter -> overlay -> JPEG.
//
// Each Session owns its rep counter and is driven by exactly one goroutine.
// Sessions share the camera, the estimator and the renderer, never state.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/trainr/formtrack/internal/emitter"
	"github.com/trainr/formtrack/internal/exercise"
	"github.com/trainr/formtrack/internal/framesupplier"
	"github.com/trainr/formtrack/internal/overlay"
	"github.com/trainr/formtrack/internal/pose"
	"github.com/trainr/formtrack/internal/repcount"
)

// State is the session lifecycle.
type State string

const (
	StateConnecting State = "connecting"
	StateStreaming  State = "streaming"
	StateClosed     State = "closed"
)

// ErrTooManySessions is returned when the session limit is reached.
var ErrTooManySessions = errors.New("session: too many concurrent sessions")

// FrameSource hands out subscriptions to the shared camera.
type FrameSource interface {
	Acquire(ctx context.Context, id string) (read func() *framesupplier.Frame, release func(), err error)
}

// FrameWriter receives encoded output frames. An error ends the stream.
type FrameWriter interface {
	WriteFrame(jpeg []byte) error
}

// FrameWriterFunc adapts a function to FrameWriter.
type FrameWriterFunc func(jpeg []byte) error

func (f FrameWriterFunc) WriteFrame(b []byte) error { return f(b) }

// Session is one viewer connection.
type Session struct {
	ID          string
	ExerciseID  string
	ConnectedAt time.Time

	cfg     exercise.Config
	counter *repcount.Counter
	mgr     *Manager
	logger  *slog.Logger

	read    func() *framesupplier.Frame
	release func()

	mu     sync.Mutex
	state  State
	last   repcount.State
	closed bool

	framesOut    atomic.Uint64
	placeholders atomic.Uint64
	lastSeq      atomic.Uint64
}

// Info is a snapshot of a session for monitoring.
type Info struct {
	ID           string    `json:"id"`
	Exercise     string    `json:"exercise"`
	State        State     `json:"state"`
	ConnectedAt  time.Time `json:"connected_at"`
	FramesOut    uint64    `json:"frames_out"`
	Placeholders uint64    `json:"placeholders"`
	LastSeq      uint64    `json:"last_seq"`
	Reps         int       `json:"reps"`
	Good         int       `json:"good"`
	Bad          int       `json:"bad"`
	Phase        string    `json:"phase"`
}

func newSession(m *Manager, cfg exercise.Config) *Session {
	id := uuid.NewString()
	c := repcount.New(cfg)
	return &Session{
		ID:          id,
		ExerciseID:  cfg.ID,
		ConnectedAt: time.Now(),
		cfg:         cfg,
		counter:     c,
		mgr:         m,
		state:       StateConnecting,
		last:        c.State(),
		logger:      slog.With("session_id", id, "exercise", cfg.ID),
	}
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Counts returns the latest rep counter state.
func (s *Session) Counts() repcount.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Info returns a monitoring snapshot.
func (s *Session) Info() Info {
	s.mu.Lock()
	st, last := s.state, s.last
	s.mu.Unlock()
	return Info{
		ID:           s.ID,
		Exercise:     s.ExerciseID,
		State:        st,
		ConnectedAt:  s.ConnectedAt,
		FramesOut:    s.framesOut.Load(),
		Placeholders: s.placeholders.Load(),
		LastSeq:      s.lastSeq.Load(),
		Reps:         last.RepCount,
		Good:         last.GoodCount,
		Bad:          last.BadCount,
		Phase:        last.Phase,
	}
}

// Stream processes frames and writes them to w until ctx is done, the camera
// subscription ends or w fails. The session is closed on return.
func (s *Session) Stream(ctx context.Context, w FrameWriter) error {
	defer s.Close()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.state = StateStreaming
	s.mu.Unlock()

	// Cancellation wakes a read blocked on an idle camera.
	stop := context.AfterFunc(ctx, s.release)
	defer stop()

	var minInterval time.Duration
	if s.mgr.deps.MaxFPS > 0 {
		minInterval = time.Second / time.Duration(s.mgr.deps.MaxFPS)
	}
	var lastOut time.Time

	s.logger.Info("session streaming")
	for {
		frame := s.read()
		if frame == nil || ctx.Err() != nil {
			return nil
		}
		s.lastSeq.Store(frame.Seq)

		if minInterval > 0 && time.Since(lastOut) < minInterval {
			continue
		}

		out, err := s.process(ctx, frame)
		if err != nil {
			s.logger.Debug("frame dropped", "seq", frame.Seq, "error", err)
			continue
		}
		if err := w.WriteFrame(out); err != nil {
			return fmt.Errorf("write frame: %w", err)
		}
		lastOut = time.Now()
		s.framesOut.Add(1)
	}
}

// process renders one output frame.
func (s *Session) process(ctx context.Context, frame *framesupplier.Frame) ([]byte, error) {
	d := s.mgr.deps

	var img *image.RGBA
	if !frame.Valid() {
		s.placeholders.Add(1)
		w, h := frame.Width, frame.Height
		if w <= 0 || h <= 0 {
			w, h = 640, 480
		}
		msg := frame.Reason
		if msg == "" {
			msg = "Signal lost"
		}
		img = d.Renderer.Placeholder(w, h, msg)
	} else {
		est := d.Estimator.Estimate(ctx, frame)
		angles := exercise.Measure(s.cfg, est)
		st, ev := s.counter.Observe(angles)

		s.mu.Lock()
		s.last = st
		s.mu.Unlock()

		if ev != nil {
			s.emitRep(ev, st)
		}

		img = overlay.ToRGBA(frame)
		d.Renderer.Render(img, est, s.cfg, st)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: d.JPEGQuality}); err != nil {
		return nil, fmt.Errorf("jpeg encode: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *Session) emitRep(ev *repcount.Event, st repcount.State) {
	angles := make(map[string]float64, len(ev.Angles))
	for name, a := range ev.Angles {
		if a.Defined {
			angles[name] = a.Degrees
		}
	}
	s.logger.Info("rep completed",
		"rep", ev.Rep,
		"status", ev.Status,
		"violations", ev.Violations,
	)
	s.mgr.deps.Emitter.Rep(emitter.RepEvent{
		SessionID:  s.ID,
		Exercise:   s.ExerciseID,
		Rep:        ev.Rep,
		Status:     string(ev.Status),
		Good:       st.GoodCount,
		Bad:        st.BadCount,
		Violations: ev.Violations,
		Angles:     angles,
		At:         time.Now(),
	})
}

// Close releases the camera and unregisters the session. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.state = StateClosed
	last, release := s.last, s.release
	s.mu.Unlock()

	s.mgr.remove(s)
	if release == nil {
		// Never subscribed to the camera.
		return
	}
	release()

	s.logger.Info("session closed",
		"duration", time.Since(s.ConnectedAt),
		"frames_out", s.framesOut.Load(),
		"reps", last.RepCount,
		"good", last.GoodCount,
		"bad", last.BadCount,
	)
	s.mgr.deps.Emitter.Session(emitter.SessionEvent{
		SessionID: s.ID,
		Exercise:  s.ExerciseID,
		State:     string(StateClosed),
		Reps:      last.RepCount,
		Good:      last.GoodCount,
		Bad:       last.BadCount,
		At:        time.Now(),
	})
}

// Render produces a single annotated frame outside of a stream. Used by the
// probe command.
func Render(deps Deps, cfg exercise.Config, frame *framesupplier.Frame) (pose.Estimate, []byte, error) {
	deps = deps.withDefaults()
	est := deps.Estimator.Estimate(context.Background(), frame)
	c := repcount.New(cfg)
	st, _ := c.Observe(exercise.Measure(cfg, est))
	img := overlay.ToRGBA(frame)
	deps.Renderer.Render(img, est, cfg, st)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: deps.JPEGQuality}); err != nil {
		return est, nil, fmt.Errorf("jpeg encode: %w", err)
	}
	return est, buf.Bytes(), nil
}
