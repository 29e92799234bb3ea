package framesupplier

// publishBatchSize is the subscriber count above which delivery is split
// across goroutines.
const publishBatchSize = 8

// distribute stamps the frame with the next sequence number and delivers it
// to every subscribed slot. Delivery is fire-and-forget; slot.deliver keeps
// per-reader ordering.
//
// Timestamps are clamped to the previous frame's so they never decrease
// along Seq, even when a capture-time stamp is published after a newer one.
func (s *Supplier) distribute(frame *Frame) {
	frame.Seq = s.publishSeq.Add(1)
	if frame.Timestamp.Before(s.lastStamp) {
		frame.Timestamp = s.lastStamp
	}
	s.lastStamp = frame.Timestamp

	var slots []*slot
	s.slots.Range(func(_, value any) bool {
		slots = append(slots, value.(*slot))
		return true
	})

	if len(slots) <= publishBatchSize {
		for _, sl := range slots {
			sl.deliver(frame)
		}
		return
	}

	for i := 0; i < len(slots); i += publishBatchSize {
		end := min(i+publishBatchSize, len(slots))
		go func(batch []*slot) {
			for _, sl := range batch {
				sl.deliver(frame)
			}
		}(slots[i:end])
	}
}
