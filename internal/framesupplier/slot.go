package framesupplier

import (
	"sync"
	"time"
)

// slot is the single-frame mailbox of one subscriber.
type slot struct {
	mu    sync.Mutex
	cond  *sync.Cond
	frame *Frame

	lastConsumedAt   time.Time
	lastConsumedSeq  uint64
	consecutiveDrops uint64
	totalDrops       uint64
	consumed         uint64

	closed bool
}

// deliver stores frame in the slot, overwriting any unread frame. Frames not
// newer than what the slot already holds or already returned are ignored, so
// a reader never observes Seq going backwards even with batched delivery.
func (sl *slot) deliver(frame *Frame) {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.closed || frame.Seq <= sl.lastConsumedSeq {
		return
	}

	if sl.frame != nil {
		if frame.Seq <= sl.frame.Seq {
			return
		}
		sl.consecutiveDrops++
		sl.totalDrops++
	}

	sl.frame = frame
	sl.cond.Signal()
}

// Subscribe registers id and returns its blocking read function.
//
// The read function must be called from a single goroutine. It returns nil
// once Unsubscribe(id) or Stop has been called. Subscribing an id that is
// already registered replaces the previous slot, which is closed.
//
//	read := sup.Subscribe(sessionID)
//	defer sup.Unsubscribe(sessionID)
//	for f := read(); f != nil; f = read() {
//		handle(f)
//	}
func (s *Supplier) Subscribe(id string) func() *Frame {
	if s.stopping.Load() {
		return func() *Frame { return nil }
	}

	sl := &slot{lastConsumedAt: time.Now()}
	sl.cond = sync.NewCond(&sl.mu)

	if prev, loaded := s.slots.Swap(id, sl); loaded {
		prev.(*slot).close()
	}

	return func() *Frame {
		sl.mu.Lock()
		defer sl.mu.Unlock()

		for sl.frame == nil && !sl.closed {
			sl.cond.Wait()
		}
		if sl.closed {
			return nil
		}

		f := sl.frame
		sl.frame = nil
		sl.lastConsumedAt = time.Now()
		sl.lastConsumedSeq = f.Seq
		sl.consecutiveDrops = 0
		sl.consumed++
		return f
	}
}

// Unsubscribe closes the slot of id and wakes its reader, which returns nil.
// Unknown ids are ignored.
func (s *Supplier) Unsubscribe(id string) {
	val, ok := s.slots.LoadAndDelete(id)
	if !ok {
		return
	}
	val.(*slot).close()
}

func (sl *slot) close() {
	sl.mu.Lock()
	sl.closed = true
	sl.cond.Broadcast()
	sl.mu.Unlock()
}
