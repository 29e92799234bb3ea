// Package geometry derives joint angles from keypoints.
package geometry

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/trainr/formtrack/internal/pose"
)

// epsilon is the squared ray length under which a ray is treated as zero.
const epsilon = 1e-12

// Angle returns the angle at vertex between the rays vertex->a and vertex->b,
// in degrees within [0, 180]. ok is false when either ray has zero length.
func Angle(a, vertex, b r2.Vec) (deg float64, ok bool) {
	ba := r2.Sub(a, vertex)
	bc := r2.Sub(b, vertex)

	na, nc := r2.Norm2(ba), r2.Norm2(bc)
	if na < epsilon || nc < epsilon {
		return 0, false
	}

	cos := r2.Dot(ba, bc) / math.Sqrt(na*nc)
	cos = math.Max(-1, math.Min(1, cos))
	return math.Acos(cos) * 180 / math.Pi, true
}

// JointAngle computes the angle a-vertex-b from an estimate. ok is false when
// any of the three joints is absent or the angle is degenerate.
func JointAngle(est pose.Estimate, a, vertex, b pose.JointID) (float64, bool) {
	pa, ok := est.Get(a)
	if !ok {
		return 0, false
	}
	pv, ok := est.Get(vertex)
	if !ok {
		return 0, false
	}
	pb, ok := est.Get(b)
	if !ok {
		return 0, false
	}
	return Angle(vec(pa), vec(pv), vec(pb))
}

func vec(kp pose.Keypoint) r2.Vec {
	return r2.Vec{X: kp.X, Y: kp.Y}
}
