package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/segmentio/encoding/json"

	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/config"
	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/model"
)

// natsConn is the part of *nats.Conn the consumer uses.
type natsConn interface {
	Publish(subject string, data []byte) error
	Drain() error
	Close()
}

// NATS publishes every event as JSON on "<prefix>.<address>".
type NATS struct {
	nc     natsConn
	prefix string
	logger *slog.Logger
}

// NewNATS connects to the server.
func NewNATS(cfg config.NATSConfig, logger *slog.Logger) (*NATS, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "notify", "consumer", "nats")

	nc, err := nats.Connect(cfg.URL,
		nats.Name("hyperliquid-monitor"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectHandler(func(nc *nats.Conn) {
			logger.Warn("nats disconnected", "error", nc.LastError())
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats: connect: %w", err)
	}
	return newNATS(nc, cfg.SubjectPrefix, logger), nil
}

func newNATS(nc natsConn, prefix string, logger *slog.Logger) *NATS {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATS{nc: nc, prefix: prefix, logger: logger}
}

// Name implements dispatch.Consumer.
func (n *NATS) Name() string { return "nats" }

// Notify publishes ev. The client buffers the write, so ctx is not consulted.
func (n *NATS) Notify(ctx context.Context, ev model.TradeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("nats: marshal event: %w", err)
	}
	subject := n.subject(ev.Address)
	if err := n.nc.Publish(subject, payload); err != nil {
		return fmt.Errorf("nats: publish %s: %w", subject, err)
	}
	return nil
}

func (n *NATS) subject(address string) string {
	return n.prefix + "." + address
}

// Close drains pending publishes and closes the connection.
func (n *NATS) Close() error {
	err := n.nc.Drain()
	n.nc.Close()
	return err
}
