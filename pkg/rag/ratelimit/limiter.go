package ratelimit

import (
	"sync"
	"time"

	"docchat-be/pkg/rag/ragerr"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// window holds one session's recent query timestamps and its active
// stream counter. Guarded by its own mutex so sessions never contend.
type window struct {
	mu            sync.Mutex
	queryTimes    []time.Time
	activeStreams int
}

// RateLimiter enforces the per-session query quota (sliding one-hour
// window) and the concurrent-stream ceiling. Idle windows age out of the
// backing store; go-cache's janitor doubles as the background sweep.
type RateLimiter struct {
	mu             sync.Mutex
	windows        *cache.Cache
	queriesPerHour int
	maxStreams     int
	now            func() time.Time
}

const windowSpan = time.Hour

func NewRateLimiter(queriesPerHour, maxStreams int, sweepInterval time.Duration) *RateLimiter {
	// Windows idle for two hours can no longer affect admission.
	return &RateLimiter{
		windows:        cache.New(2*windowSpan, sweepInterval),
		queriesPerHour: queriesPerHour,
		maxStreams:     maxStreams,
		now:            time.Now,
	}
}

func (l *RateLimiter) windowFor(sessionId uuid.UUID) *window {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := sessionId.String()
	if x, found := l.windows.Get(key); found {
		w := x.(*window)
		l.windows.Set(key, w, cache.DefaultExpiration) // refresh idle TTL
		return w
	}
	w := &window{}
	l.windows.Set(key, w, cache.DefaultExpiration)
	return w
}

// CheckQueryLimit prunes the trailing-hour window, then either admits
// and records the query or rejects with RateLimitExceeded.
func (l *RateLimiter) CheckQueryLimit(sessionId uuid.UUID) error {
	w := l.windowFor(sessionId)
	w.mu.Lock()
	defer w.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-windowSpan)

	kept := w.queryTimes[:0]
	for _, ts := range w.queryTimes {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	w.queryTimes = kept

	if len(w.queryTimes) >= l.queriesPerHour {
		retryAfter := w.queryTimes[0].Add(windowSpan).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return &ragerr.RateLimitExceeded{
			Limit:      l.queriesPerHour,
			Used:       len(w.queryTimes),
			RetryAfter: retryAfter,
		}
	}

	w.queryTimes = append(w.queryTimes, now)
	return nil
}

// CheckStreamLimit reports whether a new stream would be admitted,
// without reserving a slot.
func (l *RateLimiter) CheckStreamLimit(sessionId uuid.UUID) bool {
	w := l.windowFor(sessionId)
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.activeStreams < l.maxStreams
}

// AcquireStream reserves a stream slot or fails with StreamLimitExceeded.
func (l *RateLimiter) AcquireStream(sessionId uuid.UUID) error {
	w := l.windowFor(sessionId)
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.activeStreams >= l.maxStreams {
		return &ragerr.StreamLimitExceeded{Limit: l.maxStreams}
	}
	w.activeStreams++
	return nil
}

// ReleaseStream frees a stream slot; the counter never goes negative.
func (l *RateLimiter) ReleaseStream(sessionId uuid.UUID) {
	w := l.windowFor(sessionId)
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.activeStreams > 0 {
		w.activeStreams--
	}
}
