package exercise

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trainr/formtrack/internal/pose"
)

func TestBuiltinsValid(t *testing.T) {
	for _, c := range Builtins() {
		t.Run(c.ID, func(t *testing.T) {
			require.NoError(t, c.Validate())
		})
	}
}

func TestLookupFallsBackToBaseline(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	assert.Equal(t, "external_rotation", r.Lookup("external_rotation").ID)
	assert.Equal(t, BaselineID, r.Lookup("").ID)
	assert.Equal(t, BaselineID, r.Lookup("juggling").ID)

	c, ok := r.Resolve("juggling")
	assert.False(t, ok)
	assert.Equal(t, BaselineID, c.ID)
	assert.False(t, c.Counts())
	assert.Empty(t, c.Rules)
}

func TestValidateRejects(t *testing.T) {
	good := func() Config {
		return Config{
			ID: "x",
			Rules: []AngleRule{{Name: "knee", A: pose.RHip, Vertex: pose.RKnee, B: pose.RAnkle,
				Valid: Range{70, 170}, Checkpoint: Contracted}},
			Phases: &PhaseRule{Gate: "knee", Sequence: []Phase{
				{Name: Extended, Enter: Threshold{Above, 160}},
				{Name: Contracted, Enter: Threshold{Below, 100}},
			}},
		}
	}
	require.NoError(t, good().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty id", func(c *Config) { c.ID = "" }},
		{"range inverted", func(c *Config) { c.Rules[0].Valid = Range{100, 50} }},
		{"range above 180", func(c *Config) { c.Rules[0].Valid.Max = 200 }},
		{"bad joint", func(c *Config) { c.Rules[0].B = pose.JointID(40) }},
		{"vertex repeated", func(c *Config) { c.Rules[0].A = pose.RKnee }},
		{"unknown gate", func(c *Config) { c.Phases.Gate = "hip" }},
		{"one phase", func(c *Config) { c.Phases.Sequence = c.Phases.Sequence[:1] }},
		{"bad op", func(c *Config) { c.Phases.Sequence[0].Enter.Op = "near" }},
		{"reserved phase", func(c *Config) { c.Phases.Sequence[1].Name = Indeterminate; c.Rules[0].Checkpoint = Indeterminate }},
		{"unknown checkpoint", func(c *Config) { c.Rules[0].Checkpoint = "bottom" }},
		{"duplicate rule", func(c *Config) { c.Rules = append(c.Rules, c.Rules[0]) }},
		{"unknown grade", func(c *Config) { c.Rules[0].Grade = "median" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := good()
			tt.mutate(&c)
			assert.ErrorIs(t, c.Validate(), ErrInvalid)
		})
	}
}

func TestRegistryRejectsDuplicateID(t *testing.T) {
	_, err := NewRegistry(Config{ID: "pushup"})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exercises.yaml")
	body := `exercises:
  - id: squat
    name: Squat
    rules:
      - {name: knee_angle, a: RHip, vertex: RKnee, b: RAnkle, valid: {min: 70, max: 170}, checkpoint: contracted}
    phases:
      gate: knee_angle
      sequence:
        - {name: extended, enter: {op: above, degrees: 160}}
        - {name: contracted, enter: {op: below, degrees: 100}}
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	defs, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, pose.RKnee, defs[0].Rules[0].Vertex)

	r, err := NewRegistry(defs...)
	require.NoError(t, err)
	assert.Equal(t, "Squat", r.Lookup("squat").DisplayName)
	assert.Contains(t, r.IDs(), "squat")

	defs, err = LoadFile("")
	require.NoError(t, err)
	assert.Nil(t, defs)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestMeasure(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)
	c := r.Lookup("external_rotation")

	est := pose.Empty(time.Now())
	est.Set(pose.Keypoint{Joint: pose.RShoulder, X: 0, Y: 0, Confidence: 1})
	est.Set(pose.Keypoint{Joint: pose.RElbow, X: 0, Y: 10, Confidence: 1})
	est.Set(pose.Keypoint{Joint: pose.RWrist, X: 10, Y: 10, Confidence: 1})

	got := Measure(c, est)
	require.Len(t, got, 2)
	assert.True(t, got["elbow_angle"].Defined)
	assert.InDelta(t, 90, got["elbow_angle"].Degrees, 1e-9)
	assert.False(t, got["shoulder_angle"].Defined, "neck missing")
}
