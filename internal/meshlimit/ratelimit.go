// Package meshlimit rate-limits dispatched reflected-trait calls with a
// sliding-window counter keyed by (protocol, method) rather than the
// (userID, endpoint) pair an HTTP-style request throttler would use, and
// without the day/hour tiers and per-user/per-endpoint config overrides a
// multi-tenant API needs but kindmesh's method-table dispatch has no
// equivalent of.
package meshlimit

import (
	"sync"
	"time"
)

// slidingWindow counts events in the trailing windowSeconds, bucketed for
// O(bucketCount) eviction instead of storing every timestamp.
type slidingWindow struct {
	windowSeconds float64
	bucketCount   int64
	mu            sync.Mutex
	buckets       map[int64]int
}

func newSlidingWindow(windowSeconds float64) *slidingWindow {
	return &slidingWindow{windowSeconds: windowSeconds, bucketCount: 10, buckets: make(map[int64]int)}
}

func (w *slidingWindow) bucketSize() float64 { return w.windowSeconds / float64(w.bucketCount) }

func (w *slidingWindow) record(now float64) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	bucket := int64(now / w.bucketSize())
	minBucket := bucket - w.bucketCount
	for b := range w.buckets {
		if b < minBucket {
			delete(w.buckets, b)
		}
	}
	w.buckets[bucket]++
	return w.countLocked(now)
}

func (w *slidingWindow) countLocked(now float64) int {
	bucket := int64(now / w.bucketSize())
	minBucket := bucket - w.bucketCount
	total := 0
	for b, c := range w.buckets {
		if b >= minBucket {
			total += c
		}
	}
	return total
}

// key identifies one rate-limited call path.
type key struct{ protocol, method string }

// Limiter throttles Call dispatch per (protocol, method) pair over a fixed
// window.
type Limiter struct {
	window float64
	limit  int

	mu       sync.Mutex
	counters map[key]*slidingWindow
}

// New builds a Limiter allowing at most limit calls per windowSeconds for
// any single (protocol, method) pair. limit <= 0 disables limiting.
func New(windowSeconds float64, limit int) *Limiter {
	return &Limiter{window: windowSeconds, limit: limit, counters: make(map[key]*slidingWindow)}
}

// Allow records one call attempt for protocol/method at timestamp (seconds
// since epoch, fractional) and reports whether it is within the limit.
func (l *Limiter) Allow(protocol, method string, timestamp float64) bool {
	if l == nil || l.limit <= 0 {
		return true
	}
	k := key{protocol, method}
	l.mu.Lock()
	w, ok := l.counters[k]
	if !ok {
		w = newSlidingWindow(l.window)
		l.counters[k] = w
	}
	l.mu.Unlock()
	return w.record(timestamp) <= l.limit
}

// Now returns the current time as Limiter.Allow's fractional-seconds
// timestamp; split out so callers (and tests) can supply their own clock.
func Now() float64 { return float64(time.Now().UnixNano()) / 1e9 }
