package store

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/model"
	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/normalize"
)

// fillRow is one row of the fills table. A fill is unique per address,
// transaction hash and trade id.
type fillRow struct {
	ID            int64     `gorm:"primaryKey;autoIncrement"`
	Timestamp     time.Time `gorm:"index:idx_fills_timestamp"`
	Address       string    `gorm:"index:idx_fills_address;uniqueIndex:idx_fills_identity,priority:1"`
	Coin          string
	Side          string
	Size          decimal.Decimal `gorm:"type:text"`
	Price         decimal.Decimal `gorm:"type:text"`
	Direction     string
	TxHash        string `gorm:"uniqueIndex:idx_fills_identity,priority:2"`
	TradeID       int64  `gorm:"uniqueIndex:idx_fills_identity,priority:3"`
	OrderID       int64
	Crossed       bool
	Fee           decimal.Decimal `gorm:"type:text"`
	FeeToken      string
	StartPosition decimal.Decimal `gorm:"type:text"`
	ClosedPnL     decimal.Decimal `gorm:"type:text"`
	CreatedAt     time.Time
}

func (fillRow) TableName() string { return "fills" }

// orderRow is one row of the orders table. An order update is unique per
// address, order id and action.
type orderRow struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	Timestamp time.Time `gorm:"index:idx_orders_timestamp"`
	Address   string    `gorm:"index:idx_orders_address;uniqueIndex:idx_orders_identity,priority:1"`
	Coin      string
	Action    string `gorm:"uniqueIndex:idx_orders_identity,priority:3"`
	Side      string
	Size      decimal.Decimal `gorm:"type:text"`
	Price     decimal.Decimal `gorm:"type:text"`
	OrderID   int64           `gorm:"uniqueIndex:idx_orders_identity,priority:2"`
	CreatedAt time.Time
}

func (orderRow) TableName() string { return "orders" }

// transformFill converts a raw fill to a row. The normalizer's rules apply,
// so a fill that cannot be normalized cannot be stored either.
func transformFill(raw model.RawFill, now time.Time) (fillRow, error) {
	ev, err := normalize.Fill(raw)
	if err != nil {
		return fillRow{}, err
	}

	return fillRow{
		Timestamp:     ev.Timestamp,
		Address:       ev.Address,
		Coin:          ev.Coin,
		Side:          string(ev.Side),
		Size:          ev.Size,
		Price:         ev.Price,
		Direction:     ev.Direction,
		TxHash:        ev.TxHash,
		TradeID:       raw.Tid,
		OrderID:       raw.Oid,
		Crossed:       raw.Crossed,
		Fee:           ev.Fee,
		FeeToken:      ev.FeeToken,
		StartPosition: ev.StartPosition,
		ClosedPnL:     ev.ClosedPnL,
		CreatedAt:     now.UTC(),
	}, nil
}

// transformOrder converts a raw order update to a row. action must match the
// populated branch.
func transformOrder(raw model.RawOrderUpdate, action model.OrderAction, now time.Time) (orderRow, error) {
	ev, err := normalize.OrderUpdate(raw)
	if err != nil {
		return orderRow{}, err
	}
	if ev.Kind != action.Kind() {
		return orderRow{}, ErrActionMismatch
	}

	return orderRow{
		Timestamp: ev.Timestamp,
		Address:   ev.Address,
		Coin:      ev.Coin,
		Action:    string(action),
		Side:      string(ev.Side),
		Size:      ev.Size,
		Price:     ev.Price,
		OrderID:   ev.OrderID,
		CreatedAt: now.UTC(),
	}, nil
}
