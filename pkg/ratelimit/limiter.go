// Package ratelimit admits requests per identity using a sliding window of
// admission timestamps.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrLimited matches every rejection returned by Allow.
var ErrLimited = errors.New("rate limit exceeded")

// LimitError is returned when an identity has used its quota for the window.
type LimitError struct {
	Quota      int
	Window     time.Duration
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("Rate limit exceeded. Max %d requests per %d seconds.", e.Quota, int(e.Window/time.Second))
}

func (e *LimitError) Is(target error) bool { return target == ErrLimited }

// Limiter keeps one window per identity. It is safe for concurrent use.
type Limiter struct {
	quota  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	windows map[string][]time.Time
}

// New creates a Limiter admitting quota requests per window.
func New(quota int, window time.Duration) *Limiter {
	return &Limiter{
		quota:   quota,
		window:  window,
		now:     time.Now,
		windows: make(map[string][]time.Time),
	}
}

// Quota returns the number of requests admitted per window.
func (l *Limiter) Quota() int { return l.quota }

// Window returns the window length.
func (l *Limiter) Window() time.Duration { return l.window }

// Allow admits a request for identity or returns a *LimitError. Rejected
// requests are not recorded.
func (l *Limiter) Allow(identity string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w := prune(l.windows[identity], now.Add(-l.window))
	if len(w) >= l.quota {
		l.windows[identity] = w
		return &LimitError{
			Quota:      l.quota,
			Window:     l.window,
			RetryAfter: w[0].Add(l.window).Sub(now),
		}
	}
	l.windows[identity] = append(w, now)
	return nil
}

// Remaining reports how many more requests identity may make right now.
func (l *Limiter) Remaining(identity string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	w := prune(l.windows[identity], l.now().Add(-l.window))
	l.windows[identity] = w
	if n := l.quota - len(w); n > 0 {
		return n
	}
	return 0
}

// Sweep drops identities whose windows are empty and returns how many were
// removed.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := l.now().Add(-l.window)
	removed := 0
	for id, w := range l.windows {
		w = prune(w, start)
		if len(w) == 0 {
			delete(l.windows, id)
			removed++
			continue
		}
		l.windows[id] = w
	}
	return removed
}

// Len returns the number of tracked identities.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Run calls Sweep every interval until ctx is cancelled.
func (l *Limiter) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

// prune drops timestamps strictly before start. Timestamps are appended in
// order, so the kept entries are a suffix.
func prune(w []time.Time, start time.Time) []time.Time {
	i := 0
	for i < len(w) && w[i].Before(start) {
		i++
	}
	if i == 0 {
		return w
	}
	return append(w[:0:0], w[i:]...)
}
