package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/model"
)

// execer is the part of *pgxpool.Pool the store uses.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS fills (
	id             BIGSERIAL PRIMARY KEY,
	timestamp      TIMESTAMPTZ NOT NULL,
	address        TEXT NOT NULL,
	coin           TEXT NOT NULL,
	side           TEXT NOT NULL,
	size           NUMERIC NOT NULL,
	price          NUMERIC NOT NULL,
	direction      TEXT,
	tx_hash        TEXT NOT NULL,
	trade_id       BIGINT NOT NULL,
	order_id       BIGINT,
	crossed        BOOLEAN,
	fee            NUMERIC,
	fee_token      TEXT,
	start_position NUMERIC,
	closed_pnl     NUMERIC,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (address, tx_hash, trade_id)
);
CREATE INDEX IF NOT EXISTS idx_fills_address ON fills (address);
CREATE INDEX IF NOT EXISTS idx_fills_timestamp ON fills (timestamp);

CREATE TABLE IF NOT EXISTS orders (
	id         BIGSERIAL PRIMARY KEY,
	timestamp  TIMESTAMPTZ NOT NULL,
	address    TEXT NOT NULL,
	coin       TEXT NOT NULL,
	action     TEXT NOT NULL,
	side       TEXT NOT NULL,
	size       NUMERIC NOT NULL,
	price      NUMERIC NOT NULL,
	order_id   BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (address, order_id, action)
);
CREATE INDEX IF NOT EXISTS idx_orders_address ON orders (address);
CREATE INDEX IF NOT EXISTS idx_orders_timestamp ON orders (timestamp);
`

// Postgres stores fills and orders in PostgreSQL.
type Postgres struct {
	db     execer
	close  func()
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	metrics Stats
}

// NewPostgres wraps an open pool. closeFn, if non-nil, is called by Close.
func NewPostgres(db execer, closeFn func(), logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{
		db:     db,
		close:  closeFn,
		logger: logger.With("component", "store", "backend", "postgres"),
		now:    time.Now,
	}
}

// EnsureSchema creates the tables and indexes if they do not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// StoreFill inserts a fill with ON CONFLICT DO NOTHING.
func (p *Postgres) StoreFill(ctx context.Context, fill model.RawFill) error {
	r, err := transformFill(fill, p.now())
	if err != nil {
		p.count(func(m *Stats) { m.Errors++ })
		return fmt.Errorf("store fill: %w", err)
	}

	ct, err := p.db.Exec(ctx, `
		INSERT INTO fills (timestamp, address, coin, side, size, price, direction, tx_hash,
			trade_id, order_id, crossed, fee, fee_token, start_position, closed_pnl, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (address, tx_hash, trade_id) DO NOTHING
	`, r.Timestamp, r.Address, r.Coin, r.Side, r.Size.String(), r.Price.String(), r.Direction, r.TxHash,
		r.TradeID, r.OrderID, r.Crossed, r.Fee.String(), r.FeeToken, r.StartPosition.String(), r.ClosedPnL.String(), r.CreatedAt)

	return p.result(ct, err, "fill")
}

// StoreOrder inserts an order update with ON CONFLICT DO NOTHING.
func (p *Postgres) StoreOrder(ctx context.Context, update model.RawOrderUpdate, action model.OrderAction) error {
	r, err := transformOrder(update, action, p.now())
	if err != nil {
		p.count(func(m *Stats) { m.Errors++ })
		return fmt.Errorf("store %s order: %w", action, err)
	}

	ct, err := p.db.Exec(ctx, `
		INSERT INTO orders (timestamp, address, coin, action, side, size, price, order_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (address, order_id, action) DO NOTHING
	`, r.Timestamp, r.Address, r.Coin, r.Action, r.Side, r.Size.String(), r.Price.String(), r.OrderID, r.CreatedAt)

	return p.result(ct, err, "order")
}

func (p *Postgres) result(ct pgconn.CommandTag, err error, what string) error {
	if err != nil {
		p.count(func(m *Stats) { m.Errors++ })
		return fmt.Errorf("insert %s: %w", what, err)
	}
	if ct.RowsAffected() == 0 {
		p.count(func(m *Stats) { m.Conflicts++ })
		p.logger.Debug("already stored", "kind", what)
		return nil
	}
	p.count(func(m *Stats) { m.Inserts++ })
	return nil
}

// Stats returns current metrics.
func (p *Postgres) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metrics
}

// Close releases the pool.
func (p *Postgres) Close() error {
	if p.close != nil {
		p.close()
	}
	return nil
}

func (p *Postgres) count(update func(*Stats)) {
	p.mu.Lock()
	update(&p.metrics)
	p.mu.Unlock()
}
