package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/model"
)

// ErrActionMismatch is returned when the action passed to StoreOrder does not
// match the populated branch of the update.
var ErrActionMismatch = errors.New("order action does not match update")

// SQLite stores fills and orders in a local SQLite file.
type SQLite struct {
	db     *gorm.DB
	path   string
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	metrics Stats
}

// OpenSQLite opens (creating if needed) the database at path, including any
// missing parent directories, and migrates the schema.
func OpenSQLite(path string, logger *slog.Logger) (*SQLite, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		return nil, errors.New("sqlite path is empty")
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if err := db.AutoMigrate(&fillRow{}, &orderRow{}); err != nil {
		closeGorm(db)
		return nil, fmt.Errorf("migrate sqlite %s: %w", path, err)
	}

	logger.Info("sqlite store opened", "path", path)

	return &SQLite{
		db:     db,
		path:   path,
		logger: logger.With("component", "store", "backend", "sqlite"),
		now:    time.Now,
	}, nil
}

// StoreFill inserts a fill. A fill already stored is a no-op.
func (s *SQLite) StoreFill(ctx context.Context, fill model.RawFill) error {
	row, err := transformFill(fill, s.now())
	if err != nil {
		s.count(func(m *Stats) { m.Errors++ })
		return fmt.Errorf("store fill: %w", err)
	}
	return s.insert(ctx, &row, "fill")
}

// StoreOrder inserts an order update. An update already stored is a no-op.
func (s *SQLite) StoreOrder(ctx context.Context, update model.RawOrderUpdate, action model.OrderAction) error {
	row, err := transformOrder(update, action, s.now())
	if err != nil {
		s.count(func(m *Stats) { m.Errors++ })
		return fmt.Errorf("store %s order: %w", action, err)
	}
	return s.insert(ctx, &row, "order")
}

func (s *SQLite) insert(ctx context.Context, row any, what string) error {
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(row)
	if result.Error != nil {
		s.count(func(m *Stats) { m.Errors++ })
		return fmt.Errorf("insert %s: %w", what, result.Error)
	}

	if result.RowsAffected == 0 {
		s.count(func(m *Stats) { m.Conflicts++ })
		s.logger.Debug("already stored", "kind", what)
		return nil
	}
	s.count(func(m *Stats) { m.Inserts++ })
	return nil
}

// Stats returns current metrics.
func (s *SQLite) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return closeGorm(s.db)
}

func (s *SQLite) count(update func(*Stats)) {
	s.mu.Lock()
	update(&s.metrics)
	s.mu.Unlock()
}

func closeGorm(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
