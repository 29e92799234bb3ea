package overlay

import (
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trainr/formtrack/internal/exercise"
	"github.com/trainr/formtrack/internal/framesupplier"
	"github.com/trainr/formtrack/internal/pose"
	"github.com/trainr/formtrack/internal/repcount"
)

func rotationConfig(t *testing.T) exercise.Config {
	t.Helper()
	r, err := exercise.NewRegistry()
	require.NoError(t, err)
	return r.Lookup("external_rotation")
}

func sampleEstimate() pose.Estimate {
	est := pose.Empty(time.Now())
	est.Set(pose.Keypoint{Joint: pose.Neck, X: 100, Y: 60, Confidence: 1})
	est.Set(pose.Keypoint{Joint: pose.RShoulder, X: 70, Y: 70, Confidence: 1})
	est.Set(pose.Keypoint{Joint: pose.RElbow, X: 70, Y: 120, Confidence: 1})
	est.Set(pose.Keypoint{Joint: pose.RWrist, X: 110, Y: 120, Confidence: 1})
	return est
}

func TestBorderFollowsStatus(t *testing.T) {
	r := New(DefaultOptions())
	cfg := rotationConfig(t)

	tests := []struct {
		name   string
		phase  string
		status repcount.Status
		want   color.RGBA
	}{
		{"good", exercise.Extended, repcount.StatusGood, Green},
		{"bad", exercise.Extended, repcount.StatusBad, Red},
		{"none", exercise.Extended, repcount.StatusNone, Neutral},
		{"gate lost after good rep", exercise.Indeterminate, repcount.StatusGood, Neutral},
		{"gate lost after bad rep", exercise.Indeterminate, repcount.StatusBad, Neutral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := image.NewRGBA(image.Rect(0, 0, 320, 240))
			st := repcount.State{Phase: tt.phase, LastStatus: tt.status, LastAngles: exercise.Angles{}}
			r.Render(img, sampleEstimate(), cfg, st)

			// A pixel well inside the bottom border band.
			got := img.RGBAAt(160, 235)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderDoesNotTouchState(t *testing.T) {
	r := New(DefaultOptions())
	st := repcount.State{
		Phase:      exercise.Contracted,
		RepCount:   3,
		GoodCount:  2,
		BadCount:   1,
		LastStatus: repcount.StatusBad,
		LastAngles: exercise.Angles{"elbow_angle": {Degrees: 90, Defined: true}},
		Violations: []string{"shoulder_angle"},
	}
	img := image.NewRGBA(image.Rect(0, 0, 320, 240))
	r.Render(img, sampleEstimate(), rotationConfig(t), st)

	assert.Equal(t, 3, st.RepCount)
	assert.Equal(t, 90.0, st.LastAngles["elbow_angle"].Degrees)
}

func TestRenderDrawsSkeleton(t *testing.T) {
	r := New(DefaultOptions())
	img := image.NewRGBA(image.Rect(0, 0, 320, 240))
	r.Render(img, sampleEstimate(), rotationConfig(t), repcount.State{LastStatus: repcount.StatusNone})

	// Midpoint of the upper arm segment.
	assert.NotEqual(t, color.RGBA{}, img.RGBAAt(70, 95))
}

func TestPlaceholder(t *testing.T) {
	img := New(DefaultOptions()).Placeholder(640, 480, "Signal lost")
	require.NotNil(t, img)
	assert.Equal(t, image.Rect(0, 0, 640, 480), img.Bounds())
	assert.Equal(t, Neutral, img.RGBAAt(320, 3))
}

func TestToRGBA(t *testing.T) {
	f := &framesupplier.Frame{Width: 2, Height: 1, Data: []byte{1, 2, 3, 4, 5, 6}}
	img := ToRGBA(f)
	assert.Equal(t, []uint8{1, 2, 3, 255, 4, 5, 6, 255}, img.Pix)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, f.Data)

	short := ToRGBA(&framesupplier.Frame{Width: 2, Height: 2, Data: []byte{1}})
	assert.Equal(t, image.Rect(0, 0, 2, 2), short.Bounds())
}
