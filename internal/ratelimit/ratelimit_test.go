package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests advance time deterministically.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
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

func newTestLimiter(maxRequests int, window, blockDuration time.Duration) (*SlidingWindow, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	l := NewSlidingWindow(maxRequests, window, blockDuration)
	l.now = clock.Now
	return l, clock
}

func TestSlidingWindow_AllowsUnderLimit(t *testing.T) {
	t.Parallel()
	l, _ := newTestLimiter(3, time.Minute, 0)

	for i := range 3 {
		d := l.Allow("client")
		assert.True(t, d.Allowed, "request %d", i)
		assert.Equal(t, 2-i, d.Remaining)
	}
}

func TestSlidingWindow_DeniesOverLimit(t *testing.T) {
	t.Parallel()
	l, _ := newTestLimiter(2, time.Minute, 0)

	require.True(t, l.Allow("client").Allowed)
	require.True(t, l.Allow("client").Allowed)

	d := l.Allow("client")
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
}

func TestSlidingWindow_WindowSlides(t *testing.T) {
	t.Parallel()
	l, clock := newTestLimiter(2, time.Minute, 0)

	require.True(t, l.Allow("client").Allowed)
	require.True(t, l.Allow("client").Allowed)
	require.False(t, l.Allow("client").Allowed)

	clock.Advance(61 * time.Second)
	assert.True(t, l.Allow("client").Allowed, "old requests should have expired")
}

func TestSlidingWindow_PerClientIsolation(t *testing.T) {
	t.Parallel()
	l, _ := newTestLimiter(1, time.Minute, 0)

	require.True(t, l.Allow("a").Allowed)
	require.False(t, l.Allow("a").Allowed)
	assert.True(t, l.Allow("b").Allowed, "client b has its own window")
}

func TestSlidingWindow_BlockDuration(t *testing.T) {
	t.Parallel()
	l, clock := newTestLimiter(1, time.Second, time.Minute)

	require.True(t, l.Allow("client").Allowed)

	d := l.Allow("client")
	require.False(t, d.Allowed)
	assert.Equal(t, time.Minute, d.RetryAfter)

	// The window itself has long expired, but the block holds.
	clock.Advance(10 * time.Second)
	assert.False(t, l.Allow("client").Allowed)

	clock.Advance(51 * time.Second)
	assert.True(t, l.Allow("client").Allowed, "block should have expired")
}

func TestSlidingWindow_Reset(t *testing.T) {
	t.Parallel()
	l, _ := newTestLimiter(1, time.Minute, time.Minute)

	require.True(t, l.Allow("a").Allowed)
	require.False(t, l.Allow("a").Allowed)

	l.Reset("a")
	assert.True(t, l.Allow("a").Allowed)
}

func TestSlidingWindow_ResetAll(t *testing.T) {
	t.Parallel()
	l, _ := newTestLimiter(1, time.Minute, 0)

	require.True(t, l.Allow("a").Allowed)
	require.True(t, l.Allow("b").Allowed)
	require.False(t, l.Allow("a").Allowed)

	l.Reset("")
	assert.True(t, l.Allow("a").Allowed)
	assert.True(t, l.Allow("b").Allowed)
}

func TestSlidingWindow_Concurrent(t *testing.T) {
	t.Parallel()
	l, _ := newTestLimiter(100, time.Minute, 0)

	var wg sync.WaitGroup
	allowed := make([]bool, 200)
	for i := range 200 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			allowed[n] = l.Allow("client").Allowed
		}(i)
	}
	wg.Wait()

	count := 0
	for _, ok := range allowed {
		if ok {
			count++
		}
	}
	assert.Equal(t, 100, count, "exactly the limit should be admitted")
}
