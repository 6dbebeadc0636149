package connection

import (
	"errors"
	"time"

	"github.com/segmentio/encoding/json"

	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/model"
)

// Errors
var (
	ErrNotConnected      = errors.New("not connected")
	ErrStaleConnection   = errors.New("connection stale: no frames received")
	ErrTimeout           = errors.New("operation timeout")
	ErrAlreadyClosed     = errors.New("already closed")
	ErrSubscribeRejected = errors.New("subscription rejected")
	ErrShuttingDown      = errors.New("shutting down")
)

// Venue channels.
const (
	ChannelSubscriptionResponse = "subscriptionResponse"
	ChannelError                = "error"
	ChannelPong                 = "pong"
	ChannelUser                 = "user"
	ChannelUserFills            = "userFills"
)

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// RawMessage is a data message from the Subscription Manager to the router.
type RawMessage struct {
	Channel    string          // "user" or "userFills"
	Data       json.RawMessage // The envelope's data field
	Address    string          // Resolved monitored address, empty if ambiguous
	ReceivedAt time.Time       // Local timestamp when the client received it
}

// Request is a command sent to the venue.
type Request struct {
	Method       string               `json:"method"` // "subscribe", "unsubscribe", "ping"
	Subscription *SubscriptionRequest `json:"subscription,omitempty"`
}

// SubscriptionRequest names a stream.
type SubscriptionRequest struct {
	Type string `json:"type"`
	User string `json:"user"`
}

// Envelope is every inbound frame.
type Envelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// SubscriptionResponse is the data of a subscriptionResponse frame.
type SubscriptionResponse struct {
	Method       string              `json:"method"`
	Subscription SubscriptionRequest `json:"subscription"`
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL              string        // WebSocket URL (e.g., wss://api.hyperliquid.xyz/ws)
	UserAgent        string        // Sent on the handshake
	HandshakeTimeout time.Duration // Dial handshake timeout
	PingInterval     time.Duration // Interval between application pings
	ReadTimeout      time.Duration // Max silence before the connection is considered stale
	WriteTimeout     time.Duration // Write deadline for sends
	BufferSize       int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 15 * time.Second,
		PingInterval:     50 * time.Second,
		ReadTimeout:      3 * time.Minute,
		WriteTimeout:     5 * time.Second,
		BufferSize:       1000,
	}
}

// ManagerConfig configures the Subscription Manager.
type ManagerConfig struct {
	Client            ClientConfig     // Template for every client the manager opens
	Addresses         []string         // Monitored addresses
	Categories        []model.Category // Streams subscribed per address
	ReconnectDelay    time.Duration    // Fixed wait before every reconnect attempt
	SubscribeTimeout  time.Duration    // Timeout for each subscription acknowledgement
	MessageBufferSize int              // Buffer size for output message channel
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Client:            DefaultClientConfig(),
		Categories:        model.DefaultCategories,
		ReconnectDelay:    120 * time.Second,
		SubscribeTimeout:  10 * time.Second,
		MessageBufferSize: 10000,
	}
}

// TeardownReport is the best-effort result of tearing down a connection.
// Teardown never fails; the report records what was attempted and what went
// wrong along the way.
type TeardownReport struct {
	Attempted     bool    // A live client or subscriptions existed
	Subscriptions int     // Subscriptions held before teardown
	Unsubscribed  int     // Unsubscribe frames written successfully
	ClientClosed  bool    // Client.Close was called
	Errors        []error // Every error swallowed
}

// Err joins every swallowed error, or returns nil.
func (r TeardownReport) Err() error {
	return errors.Join(r.Errors...)
}

// ManagerStats provides statistics about the Subscription Manager.
type ManagerStats struct {
	State         model.ConnectionState
	Connected     bool
	Subscriptions int
	Reconnects    int64
	Dropped       int64
}
