// Package exercise holds exercise definitions: which joint angles matter,
// what range each must stay in, and which gate angle drives the rep phases.
//
// Exercises are plain data. Adding one means adding a Config value, either in
// builtins.go or in a YAML file loaded at startup.
package exercise

import (
	"errors"
	"fmt"

	"github.com/trainr/formtrack/internal/pose"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("exercise: invalid definition")

// Range is an inclusive angle interval in degrees.
type Range struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// Contains reports whether deg lies in [Min, Max].
func (r Range) Contains(deg float64) bool {
	return deg >= r.Min && deg <= r.Max
}

// Grade selects which checkpoint samples of a rule must fall in range.
type Grade string

const (
	// EveryFrame requires every sample to be in range.
	EveryFrame Grade = ""
	// Deepest grades only the smallest sample, e.g. the bottom of a press.
	Deepest Grade = "min"
	// Widest grades only the largest sample.
	Widest Grade = "max"
)

// AngleRule names the angle A-Vertex-B and the range it must stay in while
// the rep is in the Checkpoint phase.
type AngleRule struct {
	Name       string       `yaml:"name" json:"name"`
	A          pose.JointID `yaml:"a" json:"a"`
	Vertex     pose.JointID `yaml:"vertex" json:"vertex"`
	B          pose.JointID `yaml:"b" json:"b"`
	Valid      Range        `yaml:"valid" json:"valid"`
	Checkpoint string       `yaml:"checkpoint" json:"checkpoint"`
	Grade      Grade        `yaml:"grade,omitempty" json:"grade,omitempty"`
}

// Op is the comparison of a phase threshold.
type Op string

const (
	Below Op = "below"
	Above Op = "above"
)

// Threshold is the gate-angle condition for entering a phase.
type Threshold struct {
	Op      Op      `yaml:"op" json:"op"`
	Degrees float64 `yaml:"degrees" json:"degrees"`
}

// Met reports whether the gate angle deg satisfies the threshold.
func (t Threshold) Met(deg float64) bool {
	switch t.Op {
	case Below:
		return deg <= t.Degrees
	case Above:
		return deg >= t.Degrees
	}
	return false
}

// Phase is one step of the rep cycle.
type Phase struct {
	Name  string    `yaml:"name" json:"name"`
	Enter Threshold `yaml:"enter" json:"enter"`
}

// PhaseRule drives the rep cycle from the Gate rule's angle. Sequence is
// cyclic and Sequence[0] is the start phase; returning to it completes a rep.
type PhaseRule struct {
	Gate     string  `yaml:"gate" json:"gate"`
	Sequence []Phase `yaml:"sequence" json:"sequence"`
}

// Indeterminate is the phase reported while the gate angle is undefined.
const Indeterminate = "indeterminate"

// Config is one exercise. A nil Phases disables rep counting.
type Config struct {
	ID          string      `yaml:"id" json:"id"`
	DisplayName string      `yaml:"name" json:"name"`
	Rules       []AngleRule `yaml:"rules" json:"rules"`
	Phases      *PhaseRule  `yaml:"phases" json:"phases,omitempty"`
}

// Rule returns the rule with the given name.
func (c Config) Rule(name string) (AngleRule, bool) {
	for _, r := range c.Rules {
		if r.Name == name {
			return r, true
		}
	}
	return AngleRule{}, false
}

// Counts reports whether the exercise counts reps.
func (c Config) Counts() bool {
	return c.Phases != nil
}

// Validate checks internal consistency of the definition.
func (c Config) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalid)
	}

	names := make(map[string]bool, len(c.Rules))
	for _, r := range c.Rules {
		if r.Name == "" {
			return fmt.Errorf("%w: %s: rule without name", ErrInvalid, c.ID)
		}
		if names[r.Name] {
			return fmt.Errorf("%w: %s: duplicate rule %q", ErrInvalid, c.ID, r.Name)
		}
		names[r.Name] = true

		for _, j := range []pose.JointID{r.A, r.Vertex, r.B} {
			if j < 0 || int(j) >= pose.NumJoints {
				return fmt.Errorf("%w: %s/%s: joint %d out of range", ErrInvalid, c.ID, r.Name, int(j))
			}
		}
		if r.A == r.Vertex || r.B == r.Vertex {
			return fmt.Errorf("%w: %s/%s: vertex repeated", ErrInvalid, c.ID, r.Name)
		}
		if r.Valid.Min < 0 || r.Valid.Max > 180 || r.Valid.Min > r.Valid.Max {
			return fmt.Errorf("%w: %s/%s: bad range [%g, %g]", ErrInvalid, c.ID, r.Name, r.Valid.Min, r.Valid.Max)
		}
		switch r.Grade {
		case EveryFrame, Deepest, Widest:
		default:
			return fmt.Errorf("%w: %s/%s: unknown grade %q", ErrInvalid, c.ID, r.Name, r.Grade)
		}
	}

	if c.Phases == nil {
		return nil
	}

	if _, ok := c.Rule(c.Phases.Gate); !ok {
		return fmt.Errorf("%w: %s: gate %q is not a rule", ErrInvalid, c.ID, c.Phases.Gate)
	}
	if len(c.Phases.Sequence) < 2 {
		return fmt.Errorf("%w: %s: need at least two phases", ErrInvalid, c.ID)
	}
	phases := make(map[string]bool, len(c.Phases.Sequence))
	for _, p := range c.Phases.Sequence {
		if p.Name == "" || p.Name == Indeterminate {
			return fmt.Errorf("%w: %s: bad phase name %q", ErrInvalid, c.ID, p.Name)
		}
		if phases[p.Name] {
			return fmt.Errorf("%w: %s: duplicate phase %q", ErrInvalid, c.ID, p.Name)
		}
		phases[p.Name] = true
		if p.Enter.Op != Below && p.Enter.Op != Above {
			return fmt.Errorf("%w: %s/%s: unknown op %q", ErrInvalid, c.ID, p.Name, p.Enter.Op)
		}
	}
	for _, r := range c.Rules {
		if !phases[r.Checkpoint] {
			return fmt.Errorf("%w: %s/%s: checkpoint %q is not a phase", ErrInvalid, c.ID, r.Name, r.Checkpoint)
		}
	}
	return nil
}
