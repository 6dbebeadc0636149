// Package store persists raw fills and order updates.
//
// Two backends exist:
//   - SQLite (gorm): a local file, the default for a single monitor
//   - PostgreSQL (pgx): a shared database
//
// Both are idempotent: fills are unique per (address, tx_hash, trade_id),
// order updates per (address, order_id, action).
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/config"
	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/database"
	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/model"
)

// Store is a persistence backend.
type Store interface {
	StoreFill(ctx context.Context, fill model.RawFill) error
	StoreOrder(ctx context.Context, update model.RawOrderUpdate, action model.OrderAction) error
	Stats() Stats
	Close() error
}

// Stats contains write statistics.
type Stats struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
}

// Open opens the configured backend. It returns nil, nil when storage is
// disabled.
func Open(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch {
	case cfg.SQLitePath != "":
		s, err := OpenSQLite(cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		return s, nil

	case cfg.Postgres.Host != "":
		pool, err := database.Connect(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		p := NewPostgres(pool, pool.Close, logger)
		if err := p.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("postgres store opened",
			"host", cfg.Postgres.Host,
			"database", cfg.Postgres.Name,
		)
		return p, nil

	default:
		return nil, nil
	}
}
