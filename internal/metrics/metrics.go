// Package metrics tracks server counters exposed on the status endpoint.
package metrics

import (
	"sync/atomic"
	"time"
)

// Metrics is a set of monotonically increasing counters. All methods are
// safe for concurrent use.
type Metrics struct {
	startTime time.Time

	connections     atomic.Int64
	messages        atomic.Int64
	errors          atomic.Int64
	rateLimitHits   atomic.Int64
	rateLimitBlocks atomic.Int64
}

// New creates a Metrics anchored at the current time.
func New() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// ConnectionAccepted records an admitted connection.
func (m *Metrics) ConnectionAccepted() { m.connections.Add(1) }

// MessageSent records an outbound event emission.
func (m *Metrics) MessageSent() { m.messages.Add(1) }

// HandlerError records a handler failure caught at the gateway boundary.
func (m *Metrics) HandlerError() { m.errors.Add(1) }

// RateLimitHit records an individual event dropped by the limiter.
func (m *Metrics) RateLimitHit() { m.rateLimitHits.Add(1) }

// RateLimitBlock records a connection refused at admission.
func (m *Metrics) RateLimitBlock() { m.rateLimitBlocks.Add(1) }

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	UptimeSeconds   int64 `json:"uptime"`
	Connections     int64 `json:"connections"`
	Messages        int64 `json:"messages"`
	Errors          int64 `json:"errors"`
	RateLimitHits   int64 `json:"rateLimitHits"`
	RateLimitBlocks int64 `json:"rateLimitBlocks"`
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		UptimeSeconds:   int64(time.Since(m.startTime).Seconds()),
		Connections:     m.connections.Load(),
		Messages:        m.messages.Load(),
		Errors:          m.errors.Load(),
		RateLimitHits:   m.rateLimitHits.Load(),
		RateLimitBlocks: m.rateLimitBlocks.Load(),
	}
}
