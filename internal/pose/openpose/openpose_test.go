package openpose

import (
	"image"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMissingModel(t *testing.T) {
	_, err := New(Config{ModelPath: filepath.Join(t.TempDir(), "graph_opt.pb")})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestScalePoint(t *testing.T) {
	tests := []struct {
		name         string
		loc          image.Point
		hmW, hmH     int
		fw, fh       int
		wantX, wantY float64
	}{
		{"origin", image.Pt(0, 0), 46, 46, 640, 480, 0, 0},
		{"center", image.Pt(23, 23), 46, 46, 640, 480, 320, 240},
		{"non square heatmap", image.Pt(10, 5), 20, 10, 200, 100, 100, 50},
		{"degenerate heatmap", image.Pt(3, 3), 0, 0, 640, 480, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y := scalePoint(tt.loc, tt.hmW, tt.hmH, tt.fw, tt.fh)
			assert.InDelta(t, tt.wantX, x, 1e-9)
			assert.InDelta(t, tt.wantY, y, 1e-9)
		})
	}
}
