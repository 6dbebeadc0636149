// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Venue connection state, reconnect attempts and subscription failures
//   - Frame rates per channel and bounded-buffer drops
//   - Event outcomes (admitted, duplicate, malformed) per kind
//   - Store and consumer failures, consumer latency
//   - Heartbeat age, lifecycle state and restarts
package metrics
