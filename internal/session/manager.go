package session

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/trainr/formtrack/internal/emitter"
	"github.com/trainr/formtrack/internal/exercise"
	"github.com/trainr/formtrack/internal/overlay"
	"github.com/trainr/formtrack/internal/pose"
)

// Deps are the collaborators shared by all sessions.
type Deps struct {
	Source    FrameSource
	Estimator pose.Estimator
	Registry  *exercise.Registry
	Renderer  *overlay.Renderer
	Emitter   emitter.Emitter

	JPEGQuality int
	// MaxFPS caps each session's output rate. Zero follows the camera.
	MaxFPS int
	// MaxSessions limits concurrent sessions. Zero is unlimited.
	MaxSessions int
}

func (d Deps) withDefaults() Deps {
	if d.Renderer == nil {
		d.Renderer = overlay.New(overlay.DefaultOptions())
	}
	if d.Emitter == nil {
		d.Emitter = emitter.Nop{}
	}
	if d.JPEGQuality <= 0 {
		d.JPEGQuality = 80
	}
	return d
}

// Manager creates sessions and tracks the live ones.
type Manager struct {
	deps Deps

	mu       sync.Mutex
	sessions map[string]*Session
	opened   uint64
}

// NewManager returns a manager. Source, Estimator and Registry are required.
func NewManager(deps Deps) *Manager {
	return &Manager{
		deps:     deps.withDefaults(),
		sessions: make(map[string]*Session),
	}
}

// Open creates a session for exerciseID (unknown ids fall back to the
// baseline) and subscribes it to the camera. The returned session is in the
// connecting state until Stream is called. On error no session remains.
func (m *Manager) Open(ctx context.Context, exerciseID string) (*Session, error) {
	cfg, known := m.deps.Registry.Resolve(exerciseID)

	m.mu.Lock()
	if m.deps.MaxSessions > 0 && len(m.sessions) >= m.deps.MaxSessions {
		m.mu.Unlock()
		return nil, ErrTooManySessions
	}
	s := newSession(m, cfg)
	m.sessions[s.ID] = s
	m.opened++
	m.mu.Unlock()

	if !known && exerciseID != "" {
		s.logger.Warn("unknown exercise, using baseline", "requested", exerciseID)
	}

	read, release, err := m.deps.Source.Acquire(ctx, s.ID)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("session %s: %w", s.ID, err)
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		release()
		return nil, fmt.Errorf("session %s: closed during startup", s.ID)
	}
	s.read, s.release = read, release
	s.mu.Unlock()

	s.logger.Info("session opened")
	m.deps.Emitter.Session(emitter.SessionEvent{
		SessionID: s.ID,
		Exercise:  s.ExerciseID,
		State:     string(StateConnecting),
		At:        s.ConnectedAt,
	})
	return s, nil
}

func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	delete(m.sessions, s.ID)
	m.mu.Unlock()
}

// Active returns snapshots of live sessions ordered by connect time.
func (m *Manager) Active() []Info {
	m.mu.Lock()
	list := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	m.mu.Unlock()

	out := make([]Info, 0, len(list))
	for _, s := range list {
		out = append(out, s.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnectedAt.Before(out[j].ConnectedAt) })
	return out
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Opened returns how many sessions were ever opened.
func (m *Manager) Opened() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opened
}

// CloseAll closes every live session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	list := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	m.mu.Unlock()

	for _, s := range list {
		s.Close()
	}
}

// Registry exposes the exercise registry sessions resolve against.
func (m *Manager) Registry() *exercise.Registry {
	return m.deps.Registry
}
