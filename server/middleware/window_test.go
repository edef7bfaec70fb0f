package middleware

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/hrygo/weatherproxy/server/internal/errors"
)

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
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestSlidingWindow_AdmitsUpToLimit(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	limiter := NewSlidingWindow(3, WithWindowClock(clock.Now))

	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.Admit(), "admission %d", i+1)
	}

	err := limiter.Admit()
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeRateLimitExceeded))
	assert.Equal(t, 3, limiter.Usage())
	assert.Equal(t, 3, limiter.Limit())
}

func TestSlidingWindow_RecoversAfterWindow(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	limiter := NewSlidingWindow(2, WithWindowClock(clock.Now))

	require.NoError(t, limiter.Admit())
	clock.Advance(30 * time.Second)
	require.NoError(t, limiter.Admit())
	require.Error(t, limiter.Admit())

	// The first stamp rolls off; the second is still inside the window.
	clock.Advance(31 * time.Second)
	require.NoError(t, limiter.Admit())
	require.Error(t, limiter.Admit())

	clock.Advance(61 * time.Second)
	assert.Equal(t, 0, limiter.Usage())
	require.NoError(t, limiter.Admit())
}

func TestSlidingWindow_RejectionDoesNotConsume(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	limiter := NewSlidingWindow(1, WithWindowClock(clock.Now))

	require.NoError(t, limiter.Admit())
	for i := 0; i < 5; i++ {
		require.Error(t, limiter.Admit())
	}
	assert.Equal(t, 1, limiter.Usage())
}

func TestSlidingWindow_CustomWindow(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	limiter := NewSlidingWindow(1, WithWindowClock(clock.Now), WithWindow(time.Second))

	require.NoError(t, limiter.Admit())
	require.Error(t, limiter.Admit())
	clock.Advance(time.Second)
	require.NoError(t, limiter.Admit())
}

func TestSlidingWindow_ConcurrentAdmissions(t *testing.T) {
	limiter := NewSlidingWindow(25)

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Admit() == nil {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(25), admitted.Load())
	assert.Equal(t, 25, limiter.Usage())
}
