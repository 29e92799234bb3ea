package emitter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu    sync.Mutex
	msgs  map[string][][]byte
	fail  bool
	block chan struct{}
}

func (f *fakePublisher) Publish(topic string, _ byte, payload []byte) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broker down")
	}
	if f.msgs == nil {
		f.msgs = map[string][][]byte{}
	}
	f.msgs[topic] = append(f.msgs[topic], payload)
	return nil
}

func (f *fakePublisher) count(topic string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs[topic])
}

func TestRepEventsReachTopic(t *testing.T) {
	pub := &fakePublisher{}
	e := newEmitter(Config{TopicPrefix: "gym", QueueSize: 8}, pub, slog.Default())

	e.Rep(RepEvent{SessionID: "s1", Exercise: "pushup", Rep: 1, Status: "good", Good: 1, At: time.Now()})
	e.Session(SessionEvent{SessionID: "s1", Exercise: "pushup", State: "closed"})
	e.Close()

	require.Equal(t, 1, pub.count("gym/pushup/reps"))
	require.Equal(t, 1, pub.count("gym/sessions"))

	var got RepEvent
	require.NoError(t, json.Unmarshal(pub.msgs["gym/pushup/reps"][0], &got))
	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, "good", got.Status)
	assert.Equal(t, uint64(2), e.Stats().Published)
}

// TestFullQueueDrops checks enqueueing never blocks on a stuck broker.
func TestFullQueueDrops(t *testing.T) {
	pub := &fakePublisher{block: make(chan struct{})}
	e := newEmitter(Config{TopicPrefix: "gym", QueueSize: 2}, pub, slog.Default())

	start := time.Now()
	for i := 0; i < 20; i++ {
		e.Rep(RepEvent{Exercise: "pushup", Rep: i})
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.NotZero(t, e.Stats().Dropped)

	close(pub.block)
	e.Close()
	st := e.Stats()
	assert.Equal(t, uint64(20), st.Published+st.Dropped)
}

func TestPublishFailureCounted(t *testing.T) {
	pub := &fakePublisher{fail: true}
	e := newEmitter(Config{TopicPrefix: "gym"}, pub, slog.Default())
	e.Rep(RepEvent{Exercise: "pushup"})
	e.Close()
	assert.Equal(t, uint64(1), e.Stats().Failed)

	// Events after Close are dropped, not panics.
	e.Rep(RepEvent{Exercise: "pushup"})
	assert.Equal(t, uint64(1), e.Stats().Dropped)
}

func TestNop(t *testing.T) {
	var e Emitter = Nop{}
	e.Rep(RepEvent{})
	e.Session(SessionEvent{})
}
