// Package emitter publishes rep and session events to external consumers.
package emitter

import "time"

// RepEvent is emitted for every completed rep.
type RepEvent struct {
	SessionID  string             `json:"session_id"`
	Exercise   string             `json:"exercise"`
	Rep        int                `json:"rep"`
	Status     string             `json:"status"`
	Good       int                `json:"good"`
	Bad        int                `json:"bad"`
	Violations []string           `json:"violations,omitempty"`
	Angles     map[string]float64 `json:"angles,omitempty"`
	At         time.Time          `json:"at"`
}

// SessionEvent is emitted when a viewer session starts or ends.
type SessionEvent struct {
	SessionID string    `json:"session_id"`
	Exercise  string    `json:"exercise"`
	State     string    `json:"state"`
	Reps      int       `json:"reps"`
	Good      int       `json:"good"`
	Bad       int       `json:"bad"`
	At        time.Time `json:"at"`
}

// Emitter accepts events without blocking the caller.
type Emitter interface {
	Rep(RepEvent)
	Session(SessionEvent)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Rep(RepEvent)         {}
func (Nop) Session(SessionEvent) {}
