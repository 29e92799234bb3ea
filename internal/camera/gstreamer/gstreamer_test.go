package gstreamer

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rows builds h rows of w RGB pixels, each row filled with its index, followed
// by pad bytes of 0xEE.
func rows(w, h, pad int) []byte {
	var b []byte
	for y := 0; y < h; y++ {
		b = append(b, bytes.Repeat([]byte{byte(y + 1)}, w*3)...)
		b = append(b, bytes.Repeat([]byte{0xEE}, pad)...)
	}
	return b
}

func TestPackRGB(t *testing.T) {
	tests := []struct {
		name string
		w, h int
		data []byte
	}{
		{"aligned rows", 4, 3, rows(4, 3, 0)},
		{"padded rows", 5, 3, rows(5, 3, 1)},
		{"padded rows, odd width", 7, 2, rows(7, 2, 3)},
		{"tightly packed", 5, 3, rows(5, 3, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := packRGB(tt.data, tt.w, tt.h)
			require.True(t, ok)
			assert.Equal(t, rows(tt.w, tt.h, 0), got)
			assert.NotContains(t, string(got), "\xee")
		})
	}
}

func TestPackRGBShortBuffer(t *testing.T) {
	_, ok := packRGB(make([]byte, 20), 5, 3)
	assert.False(t, ok)

	_, ok = packRGB(nil, 0, 3)
	assert.False(t, ok)
}
