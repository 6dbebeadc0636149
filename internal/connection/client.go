package connection

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/segmentio/encoding/json"
)

// Client is one WebSocket session with the venue. It knows nothing about
// subscriptions; the Manager layers those on top.
type Client interface {
	Connect(ctx context.Context) error
	Close() error

	// Send writes one text frame. Writes are serialized.
	Send(data []byte) error

	// Messages carries every inbound frame, stamped on arrival.
	Messages() <-chan TimestampedMessage

	// Errors carries at most one terminal read or staleness error.
	Errors() <-chan error

	IsConnected() bool
}

type client struct {
	cfg    ClientConfig
	logger *slog.Logger

	conn     *websocket.Conn
	messages chan TimestampedMessage
	errors   chan error
	done     chan struct{}

	writeMu sync.Mutex

	mu         sync.RWMutex
	connected  bool
	closed     bool
	lastReadAt time.Time
}

// NewClient returns an unconnected client.
func NewClient(cfg ClientConfig, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &client{
		cfg:      cfg,
		logger:   logger,
		messages: make(chan TimestampedMessage, cfg.BufferSize),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
	}
}

// Connect dials the venue and starts the receive and keepalive goroutines.
// A client is single use: once closed it cannot reconnect.
func (c *client) Connect(ctx context.Context) error {
	if c.isClosed() {
		return ErrAlreadyClosed
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return ErrAlreadyClosed
	}
	c.conn = conn
	c.connected = true
	c.lastReadAt = time.Now()
	c.mu.Unlock()

	// Server-initiated protocol pings count as read activity.
	conn.SetPingHandler(func(data string) error {
		c.touch()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	go c.receive(conn)
	go c.keepalive(conn)

	c.logger.Debug("websocket connected", "url", c.cfg.URL)
	return nil
}

func (c *client) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.cfg.UserAgent != "" {
		header.Set("User-Agent", c.cfg.UserAgent)
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	return conn, err
}

// Close sends a normal closure frame and releases the socket. It is safe to
// call more than once.
func (c *client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	conn := c.conn
	c.mu.Unlock()

	close(c.done)
	if conn == nil {
		return nil
	}

	closing := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	c.writeMu.Lock()
	conn.WriteControl(websocket.CloseMessage, closing, time.Now().Add(time.Second))
	c.writeMu.Unlock()

	return conn.Close()
}

func (c *client) Send(data []byte) error {
	c.mu.RLock()
	conn, ok := c.conn, c.connected
	c.mu.RUnlock()
	if !ok {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *client) Messages() <-chan TimestampedMessage { return c.messages }

func (c *client) Errors() <-chan error { return c.errors }

func (c *client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *client) touch() {
	c.mu.Lock()
	c.lastReadAt = time.Now()
	c.mu.Unlock()
}

func (c *client) sinceLastRead() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Since(c.lastReadAt)
}

// fail marks the session dead and reports err unless one is already queued.
func (c *client) fail(err error) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	select {
	case c.errors <- err:
	default:
	}
}

// closing reports whether Close has been called.
func (c *client) closing() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// receive pumps frames into the messages channel until the socket fails or
// the client is closed. A full buffer drops the frame rather than stalling
// reads.
func (c *client) receive(conn *websocket.Conn) {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	}()

	for !c.closing() {
		_, data, err := conn.ReadMessage()
		receivedAt := time.Now()
		if err != nil {
			if !c.closing() {
				c.fail(err)
			}
			return
		}
		c.touch()

		select {
		case c.messages <- TimestampedMessage{Data: data, ReceivedAt: receivedAt}:
		case <-c.done:
			return
		default:
			c.logger.Warn("message buffer full, dropping message", "bytes", len(data))
		}
	}
}

var pingFrame, _ = json.Marshal(Request{Method: "ping"})

// keepalive sends an application ping every PingInterval. When nothing has
// been read for ReadTimeout the session is failed and the socket closed,
// which also ends receive.
func (c *client) keepalive(conn *websocket.Conn) {
	if c.cfg.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
		}

		if err := c.Send(pingFrame); err != nil {
			c.logger.Debug("ping failed", "error", err)
		}

		idle := c.sinceLastRead()
		if c.cfg.ReadTimeout <= 0 || idle <= c.cfg.ReadTimeout {
			continue
		}
		c.logger.Warn("no frames received, connection stale",
			"idle", idle,
			"timeout", c.cfg.ReadTimeout,
		)
		c.fail(ErrStaleConnection)
		conn.Close()
		return
	}
}
