// Package limiter implements fixed-window token buckets for per-client
// admission control. Each key gets a bucket of points that refills at the
// start of every window; a consume past the budget is rejected until the
// window rolls over.
package limiter

import (
	"sync"
	"time"
)

// Bucket is a keyed fixed-window limiter. The zero value is not usable;
// construct with NewBucket.
type Bucket struct {
	points int
	window time.Duration

	mu      sync.Mutex
	clients map[string]*windowState
}

type windowState struct {
	used  int
	start time.Time
}

// NewBucket creates a limiter granting points consumes per window per key.
func NewBucket(points int, window time.Duration) *Bucket {
	return &Bucket{
		points:  points,
		window:  window,
		clients: make(map[string]*windowState),
	}
}

// Allow consumes one point for key. It returns false when the key has
// exhausted its budget for the current window.
func (b *Bucket) Allow(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	st, ok := b.clients[key]
	if !ok || now.Sub(st.start) >= b.window {
		b.clients[key] = &windowState{used: 1, start: now}
		return true
	}
	if st.used >= b.points {
		return false
	}
	st.used++
	return true
}

// Prune drops keys whose window has been expired for longer than maxIdle.
// Called from the registry sweep so abandoned clients do not accumulate.
func (b *Bucket) Prune(maxIdle time.Duration) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	removed := 0
	for key, st := range b.clients {
		if now.Sub(st.start) > b.window+maxIdle {
			delete(b.clients, key)
			removed++
		}
	}
	return removed
}

// Keys returns the number of tracked keys (for monitoring).
func (b *Bucket) Keys() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}
