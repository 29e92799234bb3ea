// Package pose defines body keypoints and the estimator boundary between
// camera frames and the rest of the analysis pipeline.
package pose

import (
	"context"
	"fmt"
	"time"

	"github.com/trainr/formtrack/internal/framesupplier"
)

// JointID identifies one of the 18 COCO body parts produced by the model.
// The numeric value is the heatmap channel index.
type JointID int

const (
	Nose JointID = iota
	Neck
	RShoulder
	RElbow
	RWrist
	LShoulder
	LElbow
	LWrist
	RHip
	RKnee
	RAnkle
	LHip
	LKnee
	LAnkle
	REye
	LEye
	REar
	LEar

	NumJoints = 18
)

var jointNames = [NumJoints]string{
	"Nose", "Neck", "RShoulder", "RElbow", "RWrist",
	"LShoulder", "LElbow", "LWrist", "RHip", "RKnee",
	"RAnkle", "LHip", "LKnee", "LAnkle", "REye",
	"LEye", "REar", "LEar",
}

func (j JointID) String() string {
	if j < 0 || int(j) >= NumJoints {
		return fmt.Sprintf("JointID(%d)", int(j))
	}
	return jointNames[j]
}

// ParseJoint maps a canonical joint name ("RElbow") to its id.
func ParseJoint(name string) (JointID, error) {
	for i, n := range jointNames {
		if n == name {
			return JointID(i), nil
		}
	}
	return 0, fmt.Errorf("pose: unknown joint %q", name)
}

// MarshalText encodes the joint by name.
func (j JointID) MarshalText() ([]byte, error) {
	if j < 0 || int(j) >= NumJoints {
		return nil, fmt.Errorf("pose: invalid joint %d", int(j))
	}
	return []byte(j.String()), nil
}

// UnmarshalText decodes a joint name.
func (j *JointID) UnmarshalText(text []byte) error {
	v, err := ParseJoint(string(text))
	if err != nil {
		return err
	}
	*j = v
	return nil
}

// Skeleton lists the limb segments drawn between adjacent joints.
var Skeleton = [][2]JointID{
	{Neck, RShoulder}, {Neck, LShoulder},
	{RShoulder, RElbow}, {RElbow, RWrist},
	{LShoulder, LElbow}, {LElbow, LWrist},
	{Neck, RHip}, {RHip, RKnee}, {RKnee, RAnkle},
	{Neck, LHip}, {LHip, LKnee}, {LKnee, LAnkle},
	{Neck, Nose}, {Nose, REye}, {REye, REar},
	{Nose, LEye}, {LEye, LEar},
}

// Keypoint is a joint location in frame pixel coordinates.
type Keypoint struct {
	Joint      JointID
	X, Y       float64
	Confidence float64
}

// DefaultConfidenceFloor is the minimum heatmap peak accepted as a detection.
const DefaultConfidenceFloor = 0.2

// Estimate is the keypoint set found in one frame. A joint with no entry, or
// whose confidence is below Floor, is absent.
type Estimate struct {
	Keypoints [NumJoints]Keypoint
	Present   [NumJoints]bool
	Floor     float64
	Timestamp time.Time
}

// Empty returns an estimate with every joint absent.
func Empty(ts time.Time) Estimate {
	return Estimate{Floor: DefaultConfidenceFloor, Timestamp: ts}
}

// Set records a detection for kp.Joint.
func (e *Estimate) Set(kp Keypoint) {
	if kp.Joint < 0 || int(kp.Joint) >= NumJoints {
		return
	}
	e.Keypoints[kp.Joint] = kp
	e.Present[kp.Joint] = true
}

// Get returns the keypoint of j and whether it is present and confident.
func (e Estimate) Get(j JointID) (Keypoint, bool) {
	if j < 0 || int(j) >= NumJoints || !e.Present[j] {
		return Keypoint{}, false
	}
	kp := e.Keypoints[j]
	if kp.Confidence < e.Floor {
		return Keypoint{}, false
	}
	return kp, true
}

// Count returns how many joints are present.
func (e Estimate) Count() int {
	n := 0
	for j := JointID(0); j < NumJoints; j++ {
		if _, ok := e.Get(j); ok {
			n++
		}
	}
	return n
}

// Estimator turns a frame into keypoints. Implementations never fail a frame:
// anything that goes wrong yields an empty estimate.
type Estimator interface {
	Estimate(ctx context.Context, frame *framesupplier.Frame) Estimate
}

// EstimatorFunc adapts a function to Estimator.
type EstimatorFunc func(ctx context.Context, frame *framesupplier.Frame) Estimate

func (f EstimatorFunc) Estimate(ctx context.Context, frame *framesupplier.Frame) Estimate {
	return f(ctx, frame)
}
