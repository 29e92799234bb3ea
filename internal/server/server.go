// Package server exposes the annotated camera feed as an MJPEG stream plus
// health and monitoring endpoints.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/trainr/formtrack/internal/camera"
	"github.com/trainr/formtrack/internal/emitter"
	"github.com/trainr/formtrack/internal/session"
)

// CameraStats reports the shared camera state.
type CameraStats interface {
	Stats() camera.Stats
}

// Server serves /video-feed and the monitoring endpoints.
type Server struct {
	mgr     *session.Manager
	cam     CameraStats
	events  func() emitter.Stats
	model   string
	started time.Time
	logger  *slog.Logger

	httpServer   *http.Server
	shuttingDown atomic.Bool

	streamsServed atomic.Uint64
	streamsFailed atomic.Uint64
}

// Option customises a Server.
type Option func(*Server)

// WithEventStats adds emitter counters to /stats and /metrics.
func WithEventStats(f func() emitter.Stats) Option {
	return func(s *Server) { s.events = f }
}

// WithModel reports the loaded keypoint model on /readiness.
func WithModel(path string) Option {
	return func(s *Server) { s.model = path }
}

// New builds a server listening on addr.
func New(addr string, mgr *session.Manager, cam CameraStats, opts ...Option) *Server {
	s := &Server{
		mgr:     mgr,
		cam:     cam,
		started: time.Now(),
		logger:  slog.With("component", "server"),
	}
	for _, o := range opts {
		o(s)
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		// No WriteTimeout: /video-feed responses are unbounded.
	}
	return s
}

// Handler returns the routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /video-feed", s.handleVideoFeed)
	mux.HandleFunc("GET /exercises", s.handleExercises)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /readiness", s.handleReadiness)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	return mux
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("http server listening",
		"addr", ln.Addr().String(),
		"endpoints", []string{"/video-feed", "/exercises", "/health", "/readiness", "/stats", "/metrics"},
	)
	err := s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// ListenAndServe listens on the configured address.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Shutdown stops accepting connections, ends live streams and waits for
// handlers until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shuttingDown.Store(true)
	// Streams never finish on their own; closing sessions lets handlers return.
	s.mgr.CloseAll()
	return s.httpServer.Shutdown(ctx)
}
