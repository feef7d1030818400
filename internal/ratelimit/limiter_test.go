package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suPer8Hu/weirdling/internal/logging"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(limit int, window time.Duration) (*Limiter, *fakeClock) {
	clk := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	return New(NewMemoryStore(), limit, window, WithClock(clk.Now), WithLogger(logging.Discard())), clk
}

func TestCheck_AllowsUpToLimitThenDenies(t *testing.T) {
	l, clk := newTestLimiter(10, time.Minute)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		d := l.Check(ctx, "user-1")
		require.Truef(t, d.Allowed, "request %d should be allowed", i+1)
		clk.Advance(time.Second)
	}

	d := l.Check(ctx, "user-1")
	assert.False(t, d.Allowed)
	// 10s elapsed of a 60s window
	assert.Equal(t, 50, d.RetryAfterSeconds)
}

func TestCheck_RetryAfterRoundsUp(t *testing.T) {
	l, clk := newTestLimiter(1, time.Minute)
	ctx := context.Background()

	require.True(t, l.Check(ctx, "u").Allowed)
	clk.Advance(59*time.Second + 100*time.Millisecond)

	d := l.Check(ctx, "u")
	assert.False(t, d.Allowed)
	assert.Equal(t, 1, d.RetryAfterSeconds)
}

func TestCheck_WindowExpiryStartsFresh(t *testing.T) {
	l, clk := newTestLimiter(2, time.Minute)
	ctx := context.Background()

	require.True(t, l.Check(ctx, "u").Allowed)
	require.True(t, l.Check(ctx, "u").Allowed)
	require.False(t, l.Check(ctx, "u").Allowed)

	clk.Advance(time.Minute)

	require.True(t, l.Check(ctx, "u").Allowed, "first request of a new window")
	// fresh count of 1 means exactly one more is admitted
	require.True(t, l.Check(ctx, "u").Allowed)
	require.False(t, l.Check(ctx, "u").Allowed)
}

func TestCheck_IdentitiesAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)
	ctx := context.Background()

	assert.True(t, l.Check(ctx, "a").Allowed)
	assert.True(t, l.Check(ctx, "b").Allowed)
	assert.False(t, l.Check(ctx, "a").Allowed)
}

func TestCheck_ConcurrentSameIdentityNeverExceedsLimit(t *testing.T) {
	l, _ := newTestLimiter(10, time.Minute)
	ctx := context.Background()

	var allowed int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Check(ctx, "same").Allowed {
				atomic.AddInt64(&allowed, 1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 10, allowed)
}

type brokenStore struct{}

func (brokenStore) Take(context.Context, string, int, time.Duration, time.Time) (Window, error) {
	return Window{}, errors.New("connection refused")
}

func TestCheck_StoreFailureAdmits(t *testing.T) {
	l := New(brokenStore{}, 1, time.Minute, WithLogger(logging.Discard()))
	for i := 0; i < 3; i++ {
		assert.True(t, l.Check(context.Background(), "u").Allowed)
	}
}

func TestNew_Defaults(t *testing.T) {
	l := New(nil, 0, 0)
	assert.Equal(t, DefaultLimit, l.limit)
	assert.Equal(t, DefaultWindow, l.window)
	assert.NotNil(t, l.store)
}
