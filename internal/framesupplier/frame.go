package framesupplier

import "time"

// Frame is one captured RGB image shared read-only by every subscriber.
type Frame struct {
	// Data holds Width*Height*3 bytes of packed RGB. Empty for degraded frames.
	Data []byte

	Width  int
	Height int

	// Timestamp is the capture time reported by the source, raised if needed
	// so it never decreases along Seq.
	Timestamp time.Time

	// Seq is assigned by the supplier during distribution and increases
	// monotonically across all published frames.
	Seq uint64

	// Degraded marks a placeholder published while the device is stalled or
	// failing. Reason carries a short human readable cause.
	Degraded bool
	Reason   string

	// TraceID correlates a frame across log lines.
	TraceID string
}

// Valid reports whether the frame carries a complete RGB buffer.
func (f *Frame) Valid() bool {
	return f != nil && !f.Degraded && f.Width > 0 && f.Height > 0 && len(f.Data) == f.Width*f.Height*3
}
