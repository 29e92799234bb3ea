package exercise

import (
	"github.com/trainr/formtrack/internal/geometry"
	"github.com/trainr/formtrack/internal/pose"
)

// Angle is a measured rule angle. Defined is false when a joint was missing.
type Angle struct {
	Degrees float64 `json:"degrees"`
	Defined bool    `json:"defined"`
}

// Angles maps rule names to this frame's measurements.
type Angles map[string]Angle

// Measure evaluates every rule of c against est.
func Measure(c Config, est pose.Estimate) Angles {
	out := make(Angles, len(c.Rules))
	for _, r := range c.Rules {
		deg, ok := geometry.JointAngle(est, r.A, r.Vertex, r.B)
		out[r.Name] = Angle{Degrees: deg, Defined: ok}
	}
	return out
}
