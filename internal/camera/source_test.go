package camera

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trainr/formtrack/internal/framesupplier"
)

func testConfig() Config {
	return Config{
		StartupTimeout:      time.Second,
		StallTimeout:        100 * time.Millisecond,
		PlaceholderInterval: 20 * time.Millisecond,
		Width:               32,
		Height:              24,
		WarmupFrames:        5,
		Reconnect: ReconnectConfig{
			RetryDelay:    10 * time.Millisecond,
			MaxRetryDelay: 50 * time.Millisecond,
		},
	}
}

// nextFrame reads with a deadline so a broken source fails instead of hanging.
func nextFrame(t *testing.T, read func() *framesupplier.Frame) *framesupplier.Frame {
	t.Helper()
	ch := make(chan *framesupplier.Frame, 1)
	go func() { ch <- read() }()
	select {
	case f := <-ch:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("no frame within 2s")
		return nil
	}
}

// TestSharedDeviceLifecycle checks the device is opened once for concurrent
// first subscribers and closed only after the last one releases.
func TestSharedDeviceLifecycle(t *testing.T) {
	dev := NewSynthetic(32, 24, 60)
	src := NewSource(dev, testConfig())

	var wg sync.WaitGroup
	reads := make([]func() *framesupplier.Frame, 2)
	releases := make([]func(), 2)
	for i := range reads {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, rel, err := src.Acquire(context.Background(), []string{"a", "b"}[i])
			assert.NoError(t, err)
			reads[i], releases[i] = r, rel
		}(i)
	}
	wg.Wait()
	require.NotNil(t, reads[0])
	require.NotNil(t, reads[1])

	assert.Equal(t, int64(1), dev.Opens())
	assert.Equal(t, 2, src.Stats().Subscribers)

	f := nextFrame(t, reads[0])
	require.NotNil(t, f)
	assert.True(t, f.Valid())
	assert.NotEmpty(t, f.TraceID)

	releases[0]()
	releases[0]() // idempotent
	assert.True(t, dev.IsOpen(), "second subscriber still holds the device")
	assert.Nil(t, nextFrame(t, reads[0]), "released reader returns nil")

	f = nextFrame(t, reads[1])
	require.NotNil(t, f)

	releases[1]()
	assert.False(t, dev.IsOpen())
	assert.Equal(t, int64(1), dev.Closes())
	assert.False(t, src.Stats().Open)

	// Reacquiring reopens.
	_, rel, err := src.Acquire(context.Background(), "c")
	require.NoError(t, err)
	rel()
	assert.Equal(t, int64(2), dev.Opens())
	t.Logf("✅ opens=%d closes=%d", dev.Opens(), dev.Closes())
}

func TestAcquireDeviceUnavailable(t *testing.T) {
	dev := NewSynthetic(32, 24, 30)
	dev.SetOpenError(errors.New("no such device"))
	src := NewSource(dev, testConfig())

	_, _, err := src.Acquire(context.Background(), "a")
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
	assert.Equal(t, 0, src.Stats().Subscribers)
	assert.Equal(t, uint64(1), src.Stats().DeviceErrors["open"], "device error counts surface in stats")

	dev.SetOpenError(nil)
	_, rel, err := src.Acquire(context.Background(), "a")
	require.NoError(t, err)
	rel()
}

func TestAcquireNoFirstFrame(t *testing.T) {
	dev := NewSynthetic(32, 24, 50)
	dev.SetStalled(true)
	cfg := testConfig()
	cfg.StartupTimeout = 150 * time.Millisecond
	src := NewSource(dev, cfg)

	start := time.Now()
	_, _, err := src.Acquire(context.Background(), "a")
	assert.ErrorIs(t, err, ErrNoFirstFrame)
	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, dev.IsOpen(), "device closed after failed startup")
	assert.Equal(t, 0, src.Stats().Subscribers)
}

func TestAcquireContextCancelled(t *testing.T) {
	dev := NewSynthetic(32, 24, 50)
	dev.SetStalled(true)
	src := NewSource(dev, testConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, _, err := src.Acquire(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, dev.IsOpen())
}

// TestReadFailureDegradesAndRecovers checks subscribers receive degraded
// placeholders while reads fail and real frames once they succeed again.
func TestReadFailureDegradesAndRecovers(t *testing.T) {
	dev := NewSynthetic(32, 24, 60)
	src := NewSource(dev, testConfig())

	read, release, err := src.Acquire(context.Background(), "a")
	require.NoError(t, err)
	defer release()

	require.True(t, nextFrame(t, read).Valid())

	dev.SetFailing(true)
	var degraded *framesupplier.Frame
	for i := 0; i < 200 && degraded == nil; i++ {
		if f := nextFrame(t, read); f.Degraded {
			degraded = f
		}
	}
	require.NotNil(t, degraded, "no placeholder while failing")
	assert.Equal(t, 32, degraded.Width)
	assert.Equal(t, "Signal lost", degraded.Reason)
	assert.True(t, src.Stats().Degraded)

	dev.SetFailing(false)
	var recovered bool
	for i := 0; i < 200 && !recovered; i++ {
		recovered = nextFrame(t, read).Valid()
	}
	require.True(t, recovered)
	require.Eventually(t, func() bool { return !src.Stats().Degraded }, time.Second, 10*time.Millisecond)
	assert.NotZero(t, src.Stats().ReadErrors)
	assert.NotZero(t, src.Stats().DeviceErrors["read"])
}

// TestStallPublishesPlaceholders checks the watchdog covers a device that
// stops delivering without reporting an error.
func TestStallPublishesPlaceholders(t *testing.T) {
	dev := NewSynthetic(32, 24, 60)
	src := NewSource(dev, testConfig())

	read, release, err := src.Acquire(context.Background(), "a")
	require.NoError(t, err)
	defer release()
	require.True(t, nextFrame(t, read).Valid())

	dev.SetStalled(true)
	var seen bool
	for i := 0; i < 100 && !seen; i++ {
		seen = nextFrame(t, read).Degraded
	}
	assert.True(t, seen)
	assert.NotZero(t, src.Stats().Placeholders)
}

func TestSeqIncreasesPerReader(t *testing.T) {
	dev := NewSynthetic(32, 24, 120)
	src := NewSource(dev, testConfig())

	read, release, err := src.Acquire(context.Background(), "a")
	require.NoError(t, err)
	defer release()

	var last uint64
	for i := 0; i < 20; i++ {
		f := nextFrame(t, read)
		require.Greater(t, f.Seq, last)
		last = f.Seq
	}

	require.Eventually(t, func() bool { return src.Stats().Warmup != nil }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 5, src.Stats().Warmup.FramesReceived)
}

func TestBackoff(t *testing.T) {
	cfg := ReconnectConfig{RetryDelay: time.Second, MaxRetryDelay: 30 * time.Second}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{64, 30 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, backoff(tt.attempt, cfg), "attempt %d", tt.attempt)
	}
}

func TestReconnectGivesUp(t *testing.T) {
	var calls int
	open := func() error { calls++; return errors.New("busy") }
	cfg := ReconnectConfig{MaxRetries: 3, RetryDelay: time.Millisecond, MaxRetryDelay: time.Millisecond}

	var attempts int
	err := reconnect(context.Background(), slog.Default(), open, cfg, func() { attempts++ })
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, attempts)
}

func TestComputeWarmup(t *testing.T) {
	base := time.Now()
	steady := make([]time.Time, 30)
	for i := range steady {
		steady[i] = base.Add(time.Duration(i) * 33 * time.Millisecond)
	}
	ws := computeWarmup(steady)
	assert.InDelta(t, 30.3, ws.FPSMean, 0.1)
	assert.True(t, ws.IsStable)
	assert.InDelta(t, 0, ws.FPSStdDev, 1e-6)

	jittery := []time.Time{base, base.Add(10 * time.Millisecond), base.Add(100 * time.Millisecond), base.Add(110 * time.Millisecond), base.Add(200 * time.Millisecond)}
	assert.False(t, computeWarmup(jittery).IsStable)

	assert.Equal(t, 1, computeWarmup(steady[:1]).FramesReceived)
	assert.Zero(t, computeWarmup(nil).FPSMean)
}
