// Package stats provides runtime counters for Vox.
package stats

import (
	"runtime"
	"sync/atomic"
	"time"
)

// Collector collects dispatch and connection statistics.
// All methods are safe for concurrent use; a nil Collector ignores records.
type Collector struct {
	startTime time.Time

	dispatches     atomic.Int64
	notFound       atomic.Int64
	failures       atomic.Int64
	remoteCalls    atomic.Int64
	remoteTimeouts atomic.Int64
	protocolErrors atomic.Int64
	connsTotal     atomic.Int64
	connsActive    atomic.Int64
	regenerations  atomic.Int64
	totalDuration  atomic.Int64 // nanoseconds spent in handlers
}

// NewCollector creates a new stats collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
	}
}

// Stats represents system statistics at a point in time.
type Stats struct {
	Uptime     string `json:"uptime"`
	Goroutines int    `json:"goroutines"`

	// Dispatch metrics
	Dispatches   int64   `json:"dispatches"`
	NotFound     int64   `json:"not_found"`
	Failures     int64   `json:"failures"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`

	// Remote metrics
	RemoteCalls    int64 `json:"remote_calls"`
	RemoteTimeouts int64 `json:"remote_timeouts"`

	// Connection metrics
	ConnectionsTotal  int64 `json:"connections_total"`
	ConnectionsActive int64 `json:"connections_active"`
	ProtocolErrors    int64 `json:"protocol_errors"`

	// Orchestrator metrics
	Regenerations int64 `json:"regenerations"`
}

// Collect returns current statistics.
func (c *Collector) Collect() *Stats {
	if c == nil {
		return &Stats{Goroutines: runtime.NumGoroutine()}
	}

	dispatches := c.dispatches.Load()
	avgLatency := float64(0)
	if dispatches > 0 {
		avgLatency = float64(c.totalDuration.Load()) / float64(dispatches) / 1e6 // nanos to millis
	}

	return &Stats{
		Uptime:            time.Since(c.startTime).Round(time.Second).String(),
		Goroutines:        runtime.NumGoroutine(),
		Dispatches:        dispatches,
		NotFound:          c.notFound.Load(),
		Failures:          c.failures.Load(),
		AvgLatencyMs:      avgLatency,
		RemoteCalls:       c.remoteCalls.Load(),
		RemoteTimeouts:    c.remoteTimeouts.Load(),
		ConnectionsTotal:  c.connsTotal.Load(),
		ConnectionsActive: c.connsActive.Load(),
		ProtocolErrors:    c.protocolErrors.Load(),
		Regenerations:     c.regenerations.Load(),
	}
}

// RecordDispatch records a handler invocation and how long it took.
func (c *Collector) RecordDispatch(duration time.Duration, failed bool) {
	if c == nil {
		return
	}
	c.dispatches.Add(1)
	c.totalDuration.Add(duration.Nanoseconds())
	if failed {
		c.failures.Add(1)
	}
}

// RecordNotFound records a dispatch that named no known action.
func (c *Collector) RecordNotFound() {
	if c == nil {
		return
	}
	c.notFound.Add(1)
}

// RecordRemoteCall records a remote invocation and whether it timed out.
func (c *Collector) RecordRemoteCall(timedOut bool) {
	if c == nil {
		return
	}
	c.remoteCalls.Add(1)
	if timedOut {
		c.remoteTimeouts.Add(1)
	}
}

// RecordProtocolError records a rejected inbound message.
func (c *Collector) RecordProtocolError() {
	if c == nil {
		return
	}
	c.protocolErrors.Add(1)
}

// ConnectionOpened records a new peer connection.
func (c *Collector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.connsTotal.Add(1)
	c.connsActive.Add(1)
}

// ConnectionClosed records a peer disconnect.
func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.connsActive.Add(-1)
}

// RecordRegeneration records a response discarded for unmet forced actions.
func (c *Collector) RecordRegeneration() {
	if c == nil {
		return
	}
	c.regenerations.Add(1)
}

