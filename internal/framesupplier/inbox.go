package framesupplier

// Publish hands a frame to the distribution loop without blocking. An
// undistributed frame still sitting in the inbox is overwritten and counted
// in InboxDrops. Publishing after Stop silently drops the frame.
//
// frame must not be nil and must not be modified afterwards.
func (s *Supplier) Publish(frame *Frame) {
	if s.stopping.Load() {
		return
	}

	s.inboxMu.Lock()
	if s.inboxFrame != nil {
		s.inboxDrops.Add(1)
	}
	s.inboxFrame = frame
	s.inboxCond.Signal()
	s.inboxMu.Unlock()
}
