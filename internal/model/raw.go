package model

import (
	"bytes"
	"strconv"
)

// Numeric holds a venue number in its textual form. The venue encodes most
// amounts as JSON strings, but bare numbers and null are accepted too.
type Numeric string

// UnmarshalJSON implements json.Unmarshaler.
func (n *Numeric) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		s, err := strconv.Unquote(string(data))
		if err != nil {
			return err
		}
		*n = Numeric(s)
		return nil
	}
	*n = Numeric(data)
	return nil
}

// RawFill is a fill as delivered on the userFills and user channels.
type RawFill struct {
	Address       string  `json:"-"`
	Coin          string  `json:"coin"`
	Px            Numeric `json:"px"`
	Sz            Numeric `json:"sz"`
	Side          string  `json:"side"`
	Time          int64   `json:"time"`
	StartPosition Numeric `json:"startPosition"`
	Dir           string  `json:"dir"`
	ClosedPnl     Numeric `json:"closedPnl"`
	Hash          string  `json:"hash"`
	Oid           int64   `json:"oid"`
	Crossed       bool    `json:"crossed"`
	Fee           Numeric `json:"fee"`
	Tid           int64   `json:"tid"`
	FeeToken      string  `json:"feeToken"`
}

// RawOrderDetail is the body of a placed or canceled branch.
type RawOrderDetail struct {
	Px   Numeric `json:"px"`
	Sz   Numeric `json:"sz"`
	Side string  `json:"side"`
	Oid  *int64  `json:"oid"`
}

// RawOrderUpdate is an order lifecycle update. Exactly one of Placed or
// Canceled is expected to be set.
type RawOrderUpdate struct {
	Address  string          `json:"-"`
	Coin     string          `json:"coin"`
	Time     int64           `json:"time"`
	Placed   *RawOrderDetail `json:"placed,omitempty"`
	Canceled *RawOrderDetail `json:"canceled,omitempty"`
}

// Branch returns the populated branch and its action. ok is false when
// neither branch is present.
func (u RawOrderUpdate) Branch() (detail *RawOrderDetail, action OrderAction, ok bool) {
	switch {
	case u.Placed != nil:
		return u.Placed, ActionPlaced, true
	case u.Canceled != nil:
		return u.Canceled, ActionCanceled, true
	default:
		return nil, "", false
	}
}
