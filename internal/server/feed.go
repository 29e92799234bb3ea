package server

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"

	"github.com/trainr/formtrack/internal/camera"
	"github.com/trainr/formtrack/internal/session"
)

// boundary separates JPEG parts in the multipart response.
const boundary = "frame"

// mjpegWriter writes each frame as one multipart part and flushes it.
type mjpegWriter struct {
	mw *multipart.Writer
	rc *http.ResponseController
}

func (m *mjpegWriter) WriteFrame(jpeg []byte) error {
	part, err := m.mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":   {"image/jpeg"},
		"Content-Length": {strconv.Itoa(len(jpeg))},
	})
	if err != nil {
		return err
	}
	if _, err := part.Write(jpeg); err != nil {
		return err
	}
	return m.rc.Flush()
}

// handleVideoFeed streams the annotated camera feed for ?exercise=<id>. An
// unknown or missing id streams the baseline with no rep counting. Any other
// query parameter (the cache buster "t" for instance) is ignored.
func (s *Server) handleVideoFeed(w http.ResponseWriter, r *http.Request) {
	if s.shuttingDown.Load() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	exerciseID := r.URL.Query().Get("exercise")
	sess, err := s.mgr.Open(r.Context(), exerciseID)
	if err != nil {
		s.streamsFailed.Add(1)
		status := statusFor(err)
		if status == 0 {
			return
		}
		s.logger.Warn("video feed rejected", "exercise", exerciseID, "status", status, "error", err)
		http.Error(w, fmt.Sprintf("video feed unavailable: %v", err), status)
		return
	}
	s.streamsServed.Add(1)

	h := w.Header()
	h.Set("Content-Type", "multipart/x-mixed-replace; boundary="+boundary)
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
	w.WriteHeader(http.StatusOK)

	mw := multipart.NewWriter(w)
	if err := mw.SetBoundary(boundary); err != nil {
		sess.Close()
		return
	}

	// Stream closes the session on every exit path.
	if err := sess.Stream(r.Context(), &mjpegWriter{mw: mw, rc: http.NewResponseController(w)}); err != nil {
		s.logger.Debug("video feed ended", "session_id", sess.ID, "error", err)
	}
}

// statusFor maps session start errors to HTTP status codes. Zero means the
// client already left.
func statusFor(err error) int {
	switch {
	case errors.Is(err, context.Canceled):
		return 0
	case errors.Is(err, session.ErrTooManySessions),
		errors.Is(err, camera.ErrDeviceUnavailable),
		errors.Is(err, camera.ErrNoFirstFrame):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
