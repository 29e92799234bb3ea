package exercise

import "github.com/trainr/formtrack/internal/pose"

// BaselineID is the exercise used for unknown or missing ids.
const BaselineID = "none"

// Phase names shared by the built-in exercises.
const (
	Extended   = "extended"
	Contracted = "contracted"
)

// Builtins returns the exercises compiled into the binary.
func Builtins() []Config {
	return []Config{
		{
			ID:          BaselineID,
			DisplayName: "Free movement",
		},
		{
			ID:          "external_rotation",
			DisplayName: "External Rotation",
			Rules: []AngleRule{
				{Name: "elbow_angle", A: pose.RShoulder, Vertex: pose.RElbow, B: pose.RWrist,
					Valid: Range{0, 120}, Checkpoint: Contracted},
				{Name: "shoulder_angle", A: pose.Neck, Vertex: pose.RShoulder, B: pose.RElbow,
					Valid: Range{70, 120}, Checkpoint: Contracted},
			},
			Phases: &PhaseRule{
				Gate: "elbow_angle",
				Sequence: []Phase{
					{Name: Extended, Enter: Threshold{Below, 30}},
					{Name: Contracted, Enter: Threshold{Above, 80}},
				},
			},
		},
		{
			ID:          "pushup",
			DisplayName: "Push-up",
			Rules: []AngleRule{
				{Name: "elbow_angle", A: pose.RShoulder, Vertex: pose.RElbow, B: pose.RWrist,
					Valid: Range{60, 160}, Checkpoint: Contracted},
				{Name: "body_alignment", A: pose.RShoulder, Vertex: pose.RHip, B: pose.RAnkle,
					Valid: Range{160, 180}, Checkpoint: Contracted},
			},
			Phases: &PhaseRule{
				Gate: "elbow_angle",
				Sequence: []Phase{
					{Name: Extended, Enter: Threshold{Above, 150}},
					{Name: Contracted, Enter: Threshold{Below, 100}},
				},
			},
		},
		{
			ID:          "bicep_curl",
			DisplayName: "Bicep Curl",
			Rules: []AngleRule{
				{Name: "elbow_angle", A: pose.RShoulder, Vertex: pose.RElbow, B: pose.RWrist,
					Valid: Range{0, 60}, Checkpoint: Contracted, Grade: Deepest},
				{Name: "upper_arm", A: pose.RHip, Vertex: pose.RShoulder, B: pose.RElbow,
					Valid: Range{0, 35}, Checkpoint: Contracted},
			},
			Phases: &PhaseRule{
				Gate: "elbow_angle",
				Sequence: []Phase{
					{Name: Extended, Enter: Threshold{Above, 140}},
					{Name: Contracted, Enter: Threshold{Below, 90}},
				},
			},
		},
		{
			ID:          "bench_press",
			DisplayName: "Bench Press",
			Rules: []AngleRule{
				{Name: "elbow_angle", A: pose.RShoulder, Vertex: pose.RElbow, B: pose.RWrist,
					Valid: Range{70, 110}, Checkpoint: Contracted, Grade: Deepest},
			},
			Phases: &PhaseRule{
				Gate: "elbow_angle",
				Sequence: []Phase{
					{Name: Extended, Enter: Threshold{Above, 160}},
					{Name: Contracted, Enter: Threshold{Below, 140}},
				},
			},
		},
	}
}
