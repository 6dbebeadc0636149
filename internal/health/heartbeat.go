// Package health implements the Health Monitor component.
//
// Two checks run on one ticker:
//   - Connection liveness: a disconnected manager is asked to reconnect
//   - Processing liveness: a heartbeat that stops advancing triggers a
//     full restart of the monitor
package health

import (
	"sync/atomic"
	"time"
)

// Heartbeat records the last time the processing pipeline made progress.
// It is safe for concurrent use.
type Heartbeat struct {
	last atomic.Int64 // UnixNano
	now  func() time.Time
}

// NewHeartbeat creates a heartbeat that has just beaten.
func NewHeartbeat() *Heartbeat {
	return newHeartbeat(time.Now)
}

func newHeartbeat(now func() time.Time) *Heartbeat {
	h := &Heartbeat{now: now}
	h.Beat()
	return h
}

// Beat records progress.
func (h *Heartbeat) Beat() {
	h.last.Store(h.now().UnixNano())
}

// Last returns the time of the last beat.
func (h *Heartbeat) Last() time.Time {
	return time.Unix(0, h.last.Load())
}

// Age returns how long ago the heartbeat last advanced.
func (h *Heartbeat) Age() time.Duration {
	return h.now().Sub(h.Last())
}
