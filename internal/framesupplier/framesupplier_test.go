package framesupplier_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trainr/formtrack/internal/framesupplier"
)

func newFrame() *framesupplier.Frame {
	return &framesupplier.Frame{
		Data:      make([]byte, 4*2*3),
		Width:     4,
		Height:    2,
		Timestamp: time.Now(),
	}
}

func startSupplier(t *testing.T) *framesupplier.Supplier {
	t.Helper()
	sup := framesupplier.New()
	require.NoError(t, sup.Start(context.Background()))
	t.Cleanup(func() { _ = sup.Stop() })
	return sup
}

// readWithTimeout runs read in a goroutine so a broken mailbox fails the test
// instead of hanging it.
func readWithTimeout(t *testing.T, read func() *framesupplier.Frame, d time.Duration) (*framesupplier.Frame, bool) {
	t.Helper()
	ch := make(chan *framesupplier.Frame, 1)
	go func() { ch <- read() }()
	select {
	case f := <-ch:
		return f, true
	case <-time.After(d):
		return nil, false
	}
}

// TestPublishNonBlocking checks Publish returns immediately with no reader
// draining anything.
func TestPublishNonBlocking(t *testing.T) {
	sup := startSupplier(t)
	_ = sup.Subscribe("slow")

	start := time.Now()
	for i := 0; i < 1000; i++ {
		sup.Publish(newFrame())
	}
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 200*time.Millisecond)
	t.Logf("✅ 1000 publishes in %v", elapsed)
}

// TestSlotOverwrite checks a reader that falls behind gets the newest frame
// and the skipped ones are counted as drops.
//
// Scenario:
//  1. subscribe, never read
//  2. publish 5 frames, wait until all are delivered
//  3. read once: Seq 5, TotalDrops 4
func TestSlotOverwrite(t *testing.T) {
	sup := startSupplier(t)
	read := sup.Subscribe("viewer")

	for i := 0; i < 5; i++ {
		sup.Publish(newFrame())
		// Let the distribution loop drain the inbox so drops land in the slot.
		require.Eventually(t, func() bool { return sup.Stats().Published == uint64(i+1) }, time.Second, time.Millisecond)
	}
	require.Eventually(t, func() bool { return sup.Stats().Subscribers["viewer"].TotalDrops == 4 }, time.Second, time.Millisecond)

	f, ok := readWithTimeout(t, read, time.Second)
	require.True(t, ok)
	require.NotNil(t, f)
	assert.Equal(t, uint64(5), f.Seq)

	st := sup.Stats().Subscribers["viewer"]
	assert.Equal(t, uint64(4), st.TotalDrops)
	assert.Equal(t, uint64(0), st.ConsecutiveDrops)
	assert.Equal(t, uint64(1), st.Consumed)
}

// TestUnsubscribeWakesReader checks a reader blocked on an empty slot returns
// nil promptly after Unsubscribe, and that other readers keep receiving.
func TestUnsubscribeWakesReader(t *testing.T) {
	sup := startSupplier(t)
	readA := sup.Subscribe("a")
	readB := sup.Subscribe("b")

	done := make(chan *framesupplier.Frame, 1)
	go func() { done <- readA() }()

	time.Sleep(20 * time.Millisecond)
	sup.Unsubscribe("a")

	select {
	case f := <-done:
		assert.Nil(t, f)
	case <-time.After(time.Second):
		t.Fatal("reader a still blocked after Unsubscribe")
	}

	sup.Publish(newFrame())
	f, ok := readWithTimeout(t, readB, time.Second)
	require.True(t, ok)
	require.NotNil(t, f)
	assert.Equal(t, 1, sup.SubscriberCount())

	// Idempotent.
	sup.Unsubscribe("a")
	sup.Unsubscribe("missing")
}

// TestStopReleasesReaders checks Stop closes every slot.
func TestStopReleasesReaders(t *testing.T) {
	sup := framesupplier.New()
	require.NoError(t, sup.Start(context.Background()))

	read := sup.Subscribe("a")
	require.NoError(t, sup.Stop())

	f, ok := readWithTimeout(t, read, time.Second)
	require.True(t, ok)
	assert.Nil(t, f)

	// Subscribing after Stop yields a reader that exits at once.
	f, ok = readWithTimeout(t, sup.Subscribe("late"), time.Second)
	require.True(t, ok)
	assert.Nil(t, f)

	require.NoError(t, sup.Stop())
}

func TestStartTwice(t *testing.T) {
	sup := startSupplier(t)
	assert.ErrorIs(t, sup.Start(context.Background()), framesupplier.ErrAlreadyStarted)
}

// TestOrderingAcrossManyReaders checks every reader sees strictly increasing
// Seq values while more than one delivery batch is in flight.
func TestOrderingAcrossManyReaders(t *testing.T) {
	sup := startSupplier(t)

	const readers = 20
	const frames = 200

	var wg sync.WaitGroup
	errs := make(chan string, readers)
	for i := 0; i < readers; i++ {
		read := sup.Subscribe(string(rune('a' + i)))
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			var last uint64
			for {
				f := read()
				if f == nil {
					return
				}
				if f.Seq <= last {
					errs <- "out of order"
					return
				}
				last = f.Seq
			}
		}(i)
	}

	for i := 0; i < frames; i++ {
		sup.Publish(newFrame())
		time.Sleep(100 * time.Microsecond)
	}
	require.Eventually(t, func() bool { return sup.Stats().Published > 0 }, time.Second, time.Millisecond)

	require.NoError(t, sup.Stop())
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Error(e)
	}
	t.Logf("✅ %d readers, %d frames, ordering preserved", readers, frames)
}

func TestFrameValid(t *testing.T) {
	tests := []struct {
		name  string
		frame *framesupplier.Frame
		want  bool
	}{
		{"nil", nil, false},
		{"ok", newFrame(), true},
		{"short buffer", &framesupplier.Frame{Data: []byte{1, 2}, Width: 4, Height: 2}, false},
		{"degraded", &framesupplier.Frame{Degraded: true, Width: 4, Height: 2, Data: make([]byte, 24)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.frame.Valid())
		})
	}
}

// TestTimestampsNeverDecrease publishes a frame stamped earlier than the one
// before it, as happens when a capture races a placeholder.
func TestTimestampsNeverDecrease(t *testing.T) {
	sup := startSupplier(t)
	read := sup.Subscribe("viewer")

	later := newFrame()
	earlier := newFrame()
	earlier.Timestamp = later.Timestamp.Add(-50 * time.Millisecond)

	sup.Publish(later)
	first, ok := readWithTimeout(t, read, time.Second)
	require.True(t, ok)

	sup.Publish(earlier)
	second, ok := readWithTimeout(t, read, time.Second)
	require.True(t, ok)

	assert.Greater(t, second.Seq, first.Seq)
	assert.False(t, second.Timestamp.Before(first.Timestamp))
	assert.Equal(t, later.Timestamp, second.Timestamp)
}
