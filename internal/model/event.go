package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a trade from the monitored address's perspective.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// EventKind classifies a TradeEvent.
type EventKind string

const (
	KindFill           EventKind = "FILL"
	KindOrderPlaced    EventKind = "ORDER_PLACED"
	KindOrderCancelled EventKind = "ORDER_CANCELLED"
)

// OrderAction is the lifecycle branch carried by a raw order update.
type OrderAction string

const (
	ActionPlaced   OrderAction = "placed"
	ActionCanceled OrderAction = "canceled"
)

// Kind maps an order action to the event kind it produces.
func (a OrderAction) Kind() EventKind {
	if a == ActionCanceled {
		return KindOrderCancelled
	}
	return KindOrderPlaced
}

// UnknownCoin is used when a payload omits the asset symbol.
const UnknownCoin = "Unknown"

// TradeEvent is the canonical, venue-independent record of one fill or order
// update. Values are never mutated after normalization.
type TradeEvent struct {
	Timestamp time.Time       `json:"timestamp"`
	Address   string          `json:"address"`
	Coin      string          `json:"coin"`
	Side      Side            `json:"side"`
	Size      decimal.Decimal `json:"size"`
	Price     decimal.Decimal `json:"price"`
	Kind      EventKind       `json:"kind"`

	// Fill only
	Fee           decimal.Decimal `json:"fee"`
	FeeToken      string          `json:"fee_token,omitempty"`
	ClosedPnL     decimal.Decimal `json:"closed_pnl"`
	StartPosition decimal.Decimal `json:"start_position"`
	Direction     string          `json:"direction,omitempty"`
	TxHash        string          `json:"tx_hash,omitempty"`

	// Order updates only
	OrderID int64 `json:"order_id,omitempty"`
}

// Notional returns size × price.
func (e TradeEvent) Notional() decimal.Decimal {
	return e.Size.Mul(e.Price)
}

// IsFill reports whether the event is an execution.
func (e TradeEvent) IsFill() bool {
	return e.Kind == KindFill
}

// EventIdentity is the dedup key of a raw event. Fills are keyed by the venue
// transaction hash, order updates by (order id, action).
//
// Identities are scoped to the monitored address, so a fill key is
// (address, hash) rather than the hash alone. A trade between two monitored
// counterparties is therefore delivered once per side, while a hash replayed
// for the same address is still suppressed.
type EventIdentity struct {
	Address string
	TxHash  string
	OrderID int64
	Action  OrderAction
}

// FillIdentity returns the identity of a fill.
func FillIdentity(address, txHash string) EventIdentity {
	return EventIdentity{Address: address, TxHash: txHash}
}

// OrderIdentity returns the identity of an order update.
func OrderIdentity(address string, oid int64, action OrderAction) EventIdentity {
	return EventIdentity{Address: address, OrderID: oid, Action: action}
}

func (id EventIdentity) String() string {
	if id.TxHash != "" {
		return fmt.Sprintf("fill:%s:%s", id.Address, id.TxHash)
	}
	return fmt.Sprintf("order:%s:%d:%s", id.Address, id.OrderID, id.Action)
}
