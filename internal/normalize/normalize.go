// Package normalize converts raw venue payloads into model.TradeEvent values.
//
// Every function is pure: the same raw payload always yields the same event
// and identity, which is what makes replays after a reconnect deduplicable.
package normalize

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/model"
)

// ErrMalformed is wrapped by every normalization failure.
var ErrMalformed = errors.New("malformed payload")

// sideCodeBuy is the venue side code mapped to BUY. Every other code,
// including an absent one, maps to SELL.
const sideCodeBuy = "A"

// Side maps a venue side code to a Side.
func Side(code string) model.Side {
	if code == sideCodeBuy {
		return model.SideBuy
	}
	return model.SideSell
}

// FillIdentity derives the dedup key of a fill.
func FillIdentity(raw model.RawFill) (model.EventIdentity, error) {
	if strings.TrimSpace(raw.Hash) == "" {
		return model.EventIdentity{}, fmt.Errorf("%w: fill has no hash", ErrMalformed)
	}
	return model.FillIdentity(raw.Address, raw.Hash), nil
}

// OrderIdentity derives the dedup key of an order update.
func OrderIdentity(raw model.RawOrderUpdate) (model.EventIdentity, error) {
	detail, action, ok := raw.Branch()
	if !ok {
		return model.EventIdentity{}, fmt.Errorf("%w: order update has neither placed nor canceled", ErrMalformed)
	}
	if detail.Oid == nil {
		return model.EventIdentity{}, fmt.Errorf("%w: %s order has no oid", ErrMalformed, action)
	}
	return model.OrderIdentity(raw.Address, *detail.Oid, action), nil
}

// Fill converts a raw fill. Missing numeric fields become zero; unparseable
// or negative size and price are rejected. A missing time becomes the Unix
// epoch.
func Fill(raw model.RawFill) (model.TradeEvent, error) {
	if _, err := FillIdentity(raw); err != nil {
		return model.TradeEvent{}, err
	}

	size, err := amount("sz", raw.Sz)
	if err != nil {
		return model.TradeEvent{}, err
	}
	price, err := amount("px", raw.Px)
	if err != nil {
		return model.TradeEvent{}, err
	}
	fee, err := signed("fee", raw.Fee)
	if err != nil {
		return model.TradeEvent{}, err
	}
	pnl, err := signed("closedPnl", raw.ClosedPnl)
	if err != nil {
		return model.TradeEvent{}, err
	}
	start, err := signed("startPosition", raw.StartPosition)
	if err != nil {
		return model.TradeEvent{}, err
	}

	return model.TradeEvent{
		Timestamp:     timestamp(raw.Time),
		Address:       raw.Address,
		Coin:          coin(raw.Coin),
		Side:          Side(raw.Side),
		Size:          size,
		Price:         price,
		Kind:          model.KindFill,
		Fee:           fee,
		FeeToken:      raw.FeeToken,
		ClosedPnL:     pnl,
		StartPosition: start,
		Direction:     raw.Dir,
		TxHash:        raw.Hash,
	}, nil
}

// OrderUpdate converts a raw order update carrying a placed or canceled
// branch.
func OrderUpdate(raw model.RawOrderUpdate) (model.TradeEvent, error) {
	if _, err := OrderIdentity(raw); err != nil {
		return model.TradeEvent{}, err
	}
	detail, action, _ := raw.Branch()

	size, err := amount("sz", detail.Sz)
	if err != nil {
		return model.TradeEvent{}, err
	}
	price, err := amount("px", detail.Px)
	if err != nil {
		return model.TradeEvent{}, err
	}

	return model.TradeEvent{
		Timestamp: timestamp(raw.Time),
		Address:   raw.Address,
		Coin:      coin(raw.Coin),
		Side:      Side(detail.Side),
		Size:      size,
		Price:     price,
		Kind:      action.Kind(),
		OrderID:   *detail.Oid,
	}, nil
}

func amount(field string, n model.Numeric) (decimal.Decimal, error) {
	d, err := signed(field, n)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %s is negative (%s)", ErrMalformed, field, n)
	}
	return d, nil
}

func signed(field string, n model.Numeric) (decimal.Decimal, error) {
	s := strings.TrimSpace(string(n))
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s %q: %v", ErrMalformed, field, s, err)
	}
	return d, nil
}

// timestamp is the venue-reported event time. It never falls back to the
// receive time, so a payload always maps to the same instant.
func timestamp(ms int64) time.Time {
	if ms <= 0 {
		return time.Unix(0, 0).UTC()
	}
	return time.UnixMilli(ms).UTC()
}

func coin(c string) string {
	if c == "" {
		return model.UnknownCoin
	}
	return c
}
