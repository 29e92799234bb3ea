package server

import (
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"time"

	"github.com/trainr/formtrack/internal/camera"
	"github.com/trainr/formtrack/internal/emitter"
	"github.com/trainr/formtrack/internal/exercise"
	"github.com/trainr/formtrack/internal/session"
)

// HealthStatus is the readiness payload.
type HealthStatus struct {
	Status         string `json:"status"` // "healthy", "degraded", "unhealthy"
	UptimeSeconds  int64  `json:"uptime_seconds"`
	Sessions       int    `json:"sessions"`
	CameraOpen     bool   `json:"camera_open"`
	CameraDegraded bool   `json:"camera_degraded"`
	Model          string `json:"model,omitempty"`
}

// StatsPayload is the /stats payload.
type StatsPayload struct {
	UptimeSeconds int64          `json:"uptime_seconds"`
	Camera        camera.Stats   `json:"camera"`
	Sessions      []session.Info `json:"sessions"`
	Events        *emitter.Stats `json:"events,omitempty"`
}

type exerciseView struct {
	ID     string              `json:"id"`
	Name   string              `json:"name"`
	Counts bool                `json:"counts_reps"`
	Rules  []ruleView          `json:"rules"`
	Phases *exercise.PhaseRule `json:"phases,omitempty"`
}

type ruleView struct {
	Name       string         `json:"name"`
	Joints     [3]string      `json:"joints"`
	Valid      exercise.Range `json:"valid"`
	Checkpoint string         `json:"checkpoint,omitempty"`
	Grade      exercise.Grade `json:"grade,omitempty"`
}

func (s *Server) health() HealthStatus {
	cs := s.cam.Stats()
	st := HealthStatus{
		Status:         "healthy",
		UptimeSeconds:  int64(time.Since(s.started).Seconds()),
		Sessions:       s.mgr.Count(),
		CameraOpen:     cs.Open,
		CameraDegraded: cs.Degraded,
		Model:          s.model,
	}
	switch {
	case s.shuttingDown.Load():
		st.Status = "unhealthy"
	case cs.Degraded:
		st.Status = "degraded"
	}
	return st
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "alive",
		"uptime": int64(time.Since(s.started).Seconds()),
	})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	h := s.health()
	code := http.StatusOK
	if h.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, h)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	p := StatsPayload{
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Camera:        s.cam.Stats(),
		Sessions:      s.mgr.Active(),
	}
	if s.events != nil {
		ev := s.events()
		p.Events = &ev
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleExercises(w http.ResponseWriter, r *http.Request) {
	list := s.mgr.Registry().List()
	out := make([]exerciseView, 0, len(list))
	for _, c := range list {
		v := exerciseView{ID: c.ID, Name: c.DisplayName, Counts: c.Counts(), Phases: c.Phases, Rules: []ruleView{}}
		for _, rule := range c.Rules {
			v.Rules = append(v.Rules, ruleView{
				Name:       rule.Name,
				Joints:     [3]string{rule.A.String(), rule.Vertex.String(), rule.B.String()},
				Valid:      rule.Valid,
				Checkpoint: rule.Checkpoint,
				Grade:      rule.Grade,
			})
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	cs := s.cam.Stats()
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "formtrack_uptime_seconds %d\n", int64(time.Since(s.started).Seconds()))
	fmt.Fprintf(w, "formtrack_sessions_active %d\n", s.mgr.Count())
	fmt.Fprintf(w, "formtrack_sessions_opened_total %d\n", s.mgr.Opened())
	fmt.Fprintf(w, "formtrack_streams_served_total %d\n", s.streamsServed.Load())
	fmt.Fprintf(w, "formtrack_streams_rejected_total %d\n", s.streamsFailed.Load())
	fmt.Fprintf(w, "formtrack_camera_open %d\n", boolGauge(cs.Open))
	fmt.Fprintf(w, "formtrack_camera_degraded %d\n", boolGauge(cs.Degraded))
	fmt.Fprintf(w, "formtrack_camera_frames_total %d\n", cs.FramesCaptured)
	fmt.Fprintf(w, "formtrack_camera_read_errors_total %d\n", cs.ReadErrors)
	fmt.Fprintf(w, "formtrack_camera_reconnects_total %d\n", cs.Reconnects)
	fmt.Fprintf(w, "formtrack_camera_placeholders_total %d\n", cs.Placeholders)
	for _, category := range slices.Sorted(maps.Keys(cs.DeviceErrors)) {
		fmt.Fprintf(w, "formtrack_camera_device_errors_total{category=%q} %d\n", category, cs.DeviceErrors[category])
	}
	for _, info := range s.mgr.Active() {
		fmt.Fprintf(w, "formtrack_session_reps{session=%q,exercise=%q,grade=\"good\"} %d\n", info.ID, info.Exercise, info.Good)
		fmt.Fprintf(w, "formtrack_session_reps{session=%q,exercise=%q,grade=\"bad\"} %d\n", info.ID, info.Exercise, info.Bad)
	}
	if s.events != nil {
		ev := s.events()
		fmt.Fprintf(w, "formtrack_events_published_total %d\n", ev.Published)
		fmt.Fprintf(w, "formtrack_events_dropped_total %d\n", ev.Dropped)
	}
}

func boolGauge(b bool) int {
	if b {
		return 1
	}
	return 0
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
