package middleware

import (
	"sync"
	"time"

	apperrors "github.com/hrygo/weatherproxy/server/internal/errors"
)

// DefaultWindow is the trailing interval counted by SlidingWindow.
const DefaultWindow = time.Minute

// SlidingWindow admits at most limit calls within any trailing window.
// Rejection is immediate; nothing is queued.
type SlidingWindow struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	stamps []time.Time // accepted calls, oldest first
	now    func() time.Time
}

// WindowOption configures a SlidingWindow.
type WindowOption func(*SlidingWindow)

// WithWindowClock replaces time.Now, mainly for tests.
func WithWindowClock(now func() time.Time) WindowOption {
	return func(w *SlidingWindow) {
		w.now = now
	}
}

// WithWindow overrides the trailing interval.
func WithWindow(d time.Duration) WindowOption {
	return func(w *SlidingWindow) {
		w.window = d
	}
}

// NewSlidingWindow creates a limiter admitting limit calls per window.
func NewSlidingWindow(limit int, opts ...WindowOption) *SlidingWindow {
	w := &SlidingWindow{
		limit:  limit,
		window: DefaultWindow,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Admit records the call and returns nil, or returns a RATE_LIMIT_EXCEEDED
// error when the window is already full.
func (w *SlidingWindow) Admit() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.prune(now)

	if len(w.stamps) >= w.limit {
		return apperrors.RateLimitExceeded("Rate limit exceeded. Please try again later.")
	}

	w.stamps = append(w.stamps, now)
	return nil
}

// Usage returns the number of admissions still inside the window.
func (w *SlidingWindow) Usage() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(w.now())
	return len(w.stamps)
}

// Limit returns the configured ceiling.
func (w *SlidingWindow) Limit() int {
	return w.limit
}

// prune drops stamps that are a full window old or older.
// Must be called with lock held.
func (w *SlidingWindow) prune(now time.Time) {
	i := 0
	for i < len(w.stamps) && now.Sub(w.stamps[i]) >= w.window {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}
