// Package notify holds the notification consumers registered with the
// dispatch pipeline: a Discord webhook, a Telegram bot, Redis pub/sub and
// NATS. A consumer is enabled when its endpoint is configured.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/config"
	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/dispatch"
)

// Build creates every enabled consumer. Network consumers (Redis, NATS)
// connect here, so a bad endpoint fails startup. On error, consumers already
// built are closed.
func Build(ctx context.Context, cfg config.NotifyConfig, logger *slog.Logger) ([]dispatch.Consumer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var consumers []dispatch.Consumer
	fail := func(err error) ([]dispatch.Consumer, error) {
		var errs []error
		for _, c := range consumers {
			if closer, ok := c.(io.Closer); ok {
				errs = append(errs, closer.Close())
			}
		}
		return nil, errors.Join(append([]error{err}, errs...)...)
	}

	if cfg.Discord.WebhookURL != "" {
		consumers = append(consumers, NewDiscord(cfg.Discord, logger))
	}
	if cfg.Telegram.Token != "" {
		consumers = append(consumers, NewTelegram(cfg.Telegram, logger))
	}
	if cfg.Redis.Addr != "" {
		r, err := NewRedis(ctx, cfg.Redis, logger)
		if err != nil {
			return fail(fmt.Errorf("redis consumer: %w", err))
		}
		consumers = append(consumers, r)
	}
	if cfg.NATS.URL != "" {
		n, err := NewNATS(cfg.NATS, logger)
		if err != nil {
			return fail(fmt.Errorf("nats consumer: %w", err))
		}
		consumers = append(consumers, n)
	}

	for _, c := range consumers {
		logger.Info("notification consumer enabled", "consumer", c.Name())
	}
	return consumers, nil
}
