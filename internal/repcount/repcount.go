// Package repcount turns per-frame rule angles into counted, graded reps.
//
// A Counter walks the cyclic phase sequence of an exercise using the gate
// angle. Returning to the start phase completes a rep, which is graded good
// only if every rule was observed at least once during its checkpoint phase
// and its graded observations were inside the rule's valid range: every one
// of them, or only the extreme for Deepest and Widest rules.
//
// Counters are single-owner and not safe for concurrent use.
package repcount

import (
	"maps"

	"github.com/trainr/formtrack/internal/exercise"
)

// Status is the grade of the most recent rep.
type Status string

const (
	StatusNone Status = "none"
	StatusGood Status = "good"
	StatusBad  Status = "bad"
)

// State is the externally visible counter state.
//
// GoodCount + BadCount == RepCount always holds.
type State struct {
	Phase      string          `json:"phase"`
	RepCount   int             `json:"reps"`
	GoodCount  int             `json:"good"`
	BadCount   int             `json:"bad"`
	LastStatus Status          `json:"last_status"`
	LastAngles exercise.Angles `json:"angles"`
	// Violations lists the rules that failed the last bad rep.
	Violations []string `json:"violations,omitempty"`
}

// Event describes a completed rep.
type Event struct {
	Rep        int
	Status     Status
	Violations []string
	Angles     exercise.Angles
}

type ruleTally struct {
	samples  int
	failed   bool
	min, max float64
}

func (t *ruleTally) passes(r exercise.AngleRule) bool {
	if t.samples == 0 {
		return false
	}
	switch r.Grade {
	case exercise.Deepest:
		return r.Valid.Contains(t.min)
	case exercise.Widest:
		return r.Valid.Contains(t.max)
	default:
		return !t.failed
	}
}

// Counter owns one State.
type Counter struct {
	cfg   exercise.Config
	state State
	pos   int // index into cfg.Phases.Sequence
	tally map[string]*ruleTally
}

// New returns a counter in the start phase of cfg.
func New(cfg exercise.Config) *Counter {
	c := &Counter{
		cfg:   cfg,
		tally: make(map[string]*ruleTally, len(cfg.Rules)),
		state: State{LastStatus: StatusNone, LastAngles: exercise.Angles{}},
	}
	c.resetTally()
	if cfg.Counts() {
		c.state.Phase = cfg.Phases.Sequence[0].Name
	} else {
		c.state.Phase = exercise.Indeterminate
	}
	return c
}

// State returns a copy of the current state.
func (c *Counter) State() State {
	s := c.state
	s.LastAngles = maps.Clone(c.state.LastAngles)
	s.Violations = append([]string(nil), c.state.Violations...)
	return s
}

// Observe feeds one frame's angles. It returns the completed rep, if any.
func (c *Counter) Observe(angles exercise.Angles) (State, *Event) {
	c.state.LastAngles = maps.Clone(angles)
	if c.state.LastAngles == nil {
		c.state.LastAngles = exercise.Angles{}
	}

	if !c.cfg.Counts() {
		return c.State(), nil
	}

	seq := c.cfg.Phases.Sequence
	gate, ok := angles[c.cfg.Phases.Gate]
	if !ok || !gate.Defined {
		c.state.Phase = exercise.Indeterminate
		return c.State(), nil
	}

	var ev *Event
	next := (c.pos + 1) % len(seq)
	if seq[next].Enter.Met(gate.Degrees) {
		c.pos = next
		if next == 0 {
			ev = c.complete()
		}
	}
	c.state.Phase = seq[c.pos].Name

	c.record(angles)
	return c.State(), ev
}

// record adds this frame's defined angles as samples for rules whose
// checkpoint is the current phase.
func (c *Counter) record(angles exercise.Angles) {
	phase := c.state.Phase
	for _, r := range c.cfg.Rules {
		if r.Checkpoint != phase {
			continue
		}
		a, ok := angles[r.Name]
		if !ok || !a.Defined {
			continue
		}
		t := c.tally[r.Name]
		if t.samples == 0 || a.Degrees < t.min {
			t.min = a.Degrees
		}
		if t.samples == 0 || a.Degrees > t.max {
			t.max = a.Degrees
		}
		t.samples++
		if !r.Valid.Contains(a.Degrees) {
			t.failed = true
		}
	}
}

func (c *Counter) complete() *Event {
	var violations []string
	for _, r := range c.cfg.Rules {
		if !c.tally[r.Name].passes(r) {
			violations = append(violations, r.Name)
		}
	}

	status := StatusGood
	if len(violations) > 0 {
		status = StatusBad
	}

	c.state.RepCount++
	if status == StatusGood {
		c.state.GoodCount++
	} else {
		c.state.BadCount++
	}
	c.state.LastStatus = status
	c.state.Violations = violations
	c.resetTally()

	return &Event{
		Rep:        c.state.RepCount,
		Status:     status,
		Violations: append([]string(nil), violations...),
		Angles:     maps.Clone(c.state.LastAngles),
	}
}

func (c *Counter) resetTally() {
	for _, r := range c.cfg.Rules {
		c.tally[r.Name] = &ruleTally{}
	}
}
