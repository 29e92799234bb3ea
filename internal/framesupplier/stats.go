package framesupplier

import "time"

// idleThreshold is how long a subscriber may go without reading before it is
// reported idle.
const idleThreshold = 30 * time.Second

// Stats is a point-in-time snapshot of the supplier.
type Stats struct {
	// Published is the number of frames distributed so far.
	Published uint64 `json:"published"`

	// InboxDrops counts frames overwritten before the distribution loop
	// picked them up. Should stay near zero.
	InboxDrops uint64 `json:"inbox_drops"`

	Subscribers map[string]SubscriberStats `json:"subscribers"`
}

// SubscriberStats describes one reader.
type SubscriberStats struct {
	ID               string    `json:"id"`
	LastConsumedAt   time.Time `json:"last_consumed_at"`
	LastConsumedSeq  uint64    `json:"last_consumed_seq"`
	Consumed         uint64    `json:"consumed"`
	ConsecutiveDrops uint64    `json:"consecutive_drops"`
	TotalDrops       uint64    `json:"total_drops"`
	IsIdle           bool      `json:"is_idle"`
}

// Stats returns a snapshot. Values may be slightly stale.
func (s *Supplier) Stats() Stats {
	out := Stats{
		Published:   s.publishSeq.Load(),
		InboxDrops:  s.inboxDrops.Load(),
		Subscribers: make(map[string]SubscriberStats),
	}

	s.slots.Range(func(key, value any) bool {
		id := key.(string)
		sl := value.(*slot)

		sl.mu.Lock()
		out.Subscribers[id] = SubscriberStats{
			ID:               id,
			LastConsumedAt:   sl.lastConsumedAt,
			LastConsumedSeq:  sl.lastConsumedSeq,
			Consumed:         sl.consumed,
			ConsecutiveDrops: sl.consecutiveDrops,
			TotalDrops:       sl.totalDrops,
			IsIdle:           time.Since(sl.lastConsumedAt) > idleThreshold,
		}
		sl.mu.Unlock()
		return true
	})

	return out
}

// SubscriberCount returns the number of registered readers.
func (s *Supplier) SubscriberCount() int {
	n := 0
	s.slots.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
