package camera

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	// A stream is stable when the FPS stddev is under 15% of the mean and
	// the mean jitter is under 20% of the expected frame interval.
	fpsStabilityThreshold    = 0.15
	jitterStabilityThreshold = 0.20
)

// WarmupStats summarises frame pacing over the first frames after open.
type WarmupStats struct {
	FramesReceived int           `json:"frames_received"`
	Duration       time.Duration `json:"duration"`
	FPSMean        float64       `json:"fps_mean"`
	FPSStdDev      float64       `json:"fps_stddev"`
	FPSMin         float64       `json:"fps_min"`
	FPSMax         float64       `json:"fps_max"`
	JitterMean     float64       `json:"jitter_mean"`
	JitterMax      float64       `json:"jitter_max"`
	IsStable       bool          `json:"is_stable"`
}

// computeWarmup derives pacing statistics from frame arrival times.
func computeWarmup(times []time.Time) WarmupStats {
	n := len(times)
	if n < 2 {
		return WarmupStats{FramesReceived: n}
	}

	total := times[n-1].Sub(times[0])
	ws := WarmupStats{FramesReceived: n, Duration: total}
	if total <= 0 {
		return ws
	}
	ws.FPSMean = float64(n-1) / total.Seconds()

	intervals := make([]float64, 0, n-1)
	fps := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		d := times[i].Sub(times[i-1]).Seconds()
		intervals = append(intervals, d)
		if d > 0 {
			fps = append(fps, 1/d)
		}
	}
	if len(fps) == 0 {
		return ws
	}

	ws.FPSMin = floats.Min(fps)
	ws.FPSMax = floats.Max(fps)
	if len(fps) > 1 {
		ws.FPSStdDev = stat.PopStdDev(fps, nil)
	}

	expected := 1 / ws.FPSMean
	jitter := make([]float64, len(intervals))
	for i, d := range intervals {
		jitter[i] = math.Abs(d - expected)
	}
	ws.JitterMean = stat.Mean(jitter, nil)
	ws.JitterMax = floats.Max(jitter)

	ws.IsStable = ws.FPSStdDev < ws.FPSMean*fpsStabilityThreshold &&
		ws.JitterMean < expected*jitterStabilityThreshold
	return ws
}
