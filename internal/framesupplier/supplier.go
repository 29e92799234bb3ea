package framesupplier

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrAlreadyStarted is returned by Start on a running supplier.
var ErrAlreadyStarted = errors.New("framesupplier: already started")

// Supplier distributes published frames to subscribers.
//
// Goroutines: one distributionLoop owned by the supplier, plus short lived
// batch goroutines when more than publishBatchSize readers are subscribed.
// Reader goroutines belong to the callers.
//
// All methods are safe for concurrent use.
type Supplier struct {
	inboxMu    sync.Mutex
	inboxCond  *sync.Cond
	inboxFrame *Frame
	inboxDrops atomic.Uint64

	slots sync.Map // subscriber id -> *slot

	publishSeq atomic.Uint64
	lastStamp  time.Time // owned by distributionLoop

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startedMu sync.Mutex
	started   bool
	stopping  atomic.Bool
}

// New returns a supplier that is ready to Start.
func New() *Supplier {
	s := &Supplier{}
	s.inboxCond = sync.NewCond(&s.inboxMu)
	return s
}

// Start spawns the distribution loop and returns immediately. The loop runs
// until ctx is cancelled or Stop is called.
func (s *Supplier) Start(ctx context.Context) error {
	s.startedMu.Lock()
	defer s.startedMu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true

	s.wg.Add(1)
	go s.distributionLoop()

	// Cancellation of the parent must also wake a loop parked in Wait.
	context.AfterFunc(s.ctx, func() {
		s.inboxMu.Lock()
		s.inboxCond.Broadcast()
		s.inboxMu.Unlock()
	})

	return nil
}

// Stop shuts the distribution loop down and closes every subscriber slot, so
// blocked readers return nil. Stop is idempotent.
func (s *Supplier) Stop() error {
	s.startedMu.Lock()
	if !s.started || s.stopping.Load() {
		s.startedMu.Unlock()
		return nil
	}
	s.stopping.Store(true)
	s.startedMu.Unlock()

	s.cancel()

	s.inboxMu.Lock()
	s.inboxCond.Broadcast()
	s.inboxMu.Unlock()

	s.wg.Wait()

	s.slots.Range(func(key, value any) bool {
		s.Unsubscribe(key.(string))
		return true
	})

	return nil
}

func (s *Supplier) distributionLoop() {
	defer s.wg.Done()

	for {
		s.inboxMu.Lock()
		for s.inboxFrame == nil {
			if s.ctx.Err() != nil {
				s.inboxMu.Unlock()
				return
			}
			s.inboxCond.Wait()
		}
		if s.ctx.Err() != nil {
			s.inboxMu.Unlock()
			return
		}

		frame := s.inboxFrame
		s.inboxFrame = nil
		s.inboxMu.Unlock()

		s.distribute(frame)
	}
}
