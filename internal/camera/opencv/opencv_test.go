package opencv

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCandidates(t *testing.T) {
	tests := []struct {
		name      string
		primary   int
		fallbacks []int
		want      []int
	}{
		{"no fallbacks", 0, nil, []int{0}},
		{"fallbacks", 0, []int{1, 2, 3}, []int{0, 1, 2, 3}},
		{"dedup", 1, []int{1, 2, 2, 3}, []int{1, 2, 3}},
		{"skip negative", 2, []int{-1, 0}, []int{2, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, candidates(tt.primary, tt.fallbacks))
		})
	}
}

func TestClosedDevice(t *testing.T) {
	d := New(Config{Index: 7})
	assert.Equal(t, "opencv:7", d.Name())
	_, err := d.Read()
	assert.Error(t, err)
	assert.NoError(t, d.Close())
}
