package pose

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestEstimateGetRespectsFloor(t *testing.T) {
	e := Empty(time.Now())
	e.Set(Keypoint{Joint: RElbow, X: 10, Y: 20, Confidence: 0.9})
	e.Set(Keypoint{Joint: RWrist, X: 1, Y: 2, Confidence: 0.1})

	kp, ok := e.Get(RElbow)
	require.True(t, ok)
	assert.Equal(t, 10.0, kp.X)

	_, ok = e.Get(RWrist)
	assert.False(t, ok, "below floor is absent")

	_, ok = e.Get(Nose)
	assert.False(t, ok)

	_, ok = e.Get(JointID(99))
	assert.False(t, ok)

	assert.Equal(t, 1, e.Count())
}

func TestJointNames(t *testing.T) {
	for j := JointID(0); j < NumJoints; j++ {
		got, err := ParseJoint(j.String())
		require.NoError(t, err)
		assert.Equal(t, j, got)
	}
	_, err := ParseJoint("Tail")
	assert.Error(t, err)
	assert.Equal(t, "JointID(42)", JointID(42).String())
}

func TestJointYAML(t *testing.T) {
	var v struct {
		Vertex JointID `yaml:"vertex"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("vertex: LKnee\n"), &v))
	assert.Equal(t, LKnee, v.Vertex)

	assert.Error(t, yaml.Unmarshal([]byte("vertex: Knee\n"), &v))
}
