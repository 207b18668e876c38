package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero capacity", Config{Capacity: 0, Refill: 1}},
		{"zero refill", Config{Capacity: 1, Refill: 0}},
		{"negative interval", Config{Capacity: 1, Refill: 1, Interval: -time.Second}},
		{"unknown mode", Config{Capacity: 1, Refill: 1, Mode: Mode(7)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			require.Error(t, err)
		})
	}
}

func TestReject_CapacityPlusOne(t *testing.T) {
	clock := newFakeClock()
	l, err := New(Config{Capacity: 3, Refill: 2, Interval: time.Second, Mode: ModeReject}, WithClock(clock.Now))
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Acquire(ctx), "request %d", i+1)
	}
	assert.ErrorIs(t, l.Acquire(ctx), ErrLimited)

	// One interval later exactly R tokens are back
	clock.Advance(time.Second)
	assert.InDelta(t, 2.0, l.Tokens(), 1e-9)
	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.Acquire(ctx))
	assert.ErrorIs(t, l.Acquire(ctx), ErrLimited)

	// Refill never exceeds capacity
	clock.Advance(time.Minute)
	assert.InDelta(t, 3.0, l.Tokens(), 1e-9)
}

func TestReject_ConcurrentNoOverAdmission(t *testing.T) {
	l, err := New(Config{Capacity: 5, Refill: 1, Interval: time.Hour, Mode: ModeReject})
	require.NoError(t, err)

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Acquire(context.Background()) == nil {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(5), admitted.Load())
}

func TestWait_DelaysUntilRefill(t *testing.T) {
	l, err := New(Config{Capacity: 1, Refill: 1, Interval: 100 * time.Millisecond, Mode: ModeWait})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx))

	start := time.Now()
	require.NoError(t, l.Acquire(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestWait_DeadlineTooShort(t *testing.T) {
	l, err := New(Config{Capacity: 1, Refill: 1, Interval: time.Hour, Mode: ModeWait})
	require.NoError(t, err)

	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Acquire(ctx), ErrDeadline)
}

func TestWait_Cancelled(t *testing.T) {
	l, err := New(Config{Capacity: 1, Refill: 1, Interval: time.Hour, Mode: ModeWait})
	require.NoError(t, err)

	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	assert.ErrorIs(t, l.Acquire(ctx), context.Canceled)
}

func TestNilLimiterAdmitsEverything(t *testing.T) {
	var l *Limiter
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Acquire(context.Background()))
	}
	assert.Equal(t, ModeWait, l.Mode())
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("reject")
	require.NoError(t, err)
	assert.Equal(t, ModeReject, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeWait, m)

	_, err = ParseMode("drop")
	assert.Error(t, err)
}
