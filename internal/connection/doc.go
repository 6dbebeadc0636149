// Package connection implements the Subscription Manager component.
//
// The Subscription Manager:
//   - Holds at most one WebSocket connection to the venue
//   - Subscribes userEvents and userFills for every monitored address
//   - Treats the subscription set as all-or-nothing
//   - Reconnects with a fixed, indefinitely repeated backoff
//   - Routes data messages to the Message Router
package connection
