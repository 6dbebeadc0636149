package model

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestNumeric_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Numeric
	}{
		{"string", `"1.25"`, "1.25"},
		{"number", `42.5`, "42.5"},
		{"null", `null`, ""},
		{"empty string", `""`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var n Numeric
			if err := json.Unmarshal([]byte(tt.input), &n); err != nil {
				t.Fatalf("Unmarshal(%s) error: %v", tt.input, err)
			}
			if n != tt.want {
				t.Errorf("Numeric = %q, want %q", n, tt.want)
			}
		})
	}
}

func TestRawOrderUpdate_Branch(t *testing.T) {
	oid := int64(7)
	detail := &RawOrderDetail{Oid: &oid}

	tests := []struct {
		name       string
		update     RawOrderUpdate
		wantAction OrderAction
		wantOK     bool
	}{
		{"placed", RawOrderUpdate{Placed: detail}, ActionPlaced, true},
		{"canceled", RawOrderUpdate{Canceled: detail}, ActionCanceled, true},
		{"neither", RawOrderUpdate{Coin: "BTC"}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, action, ok := tt.update.Branch()
			if ok != tt.wantOK {
				t.Errorf("ok = %v, want %v", ok, tt.wantOK)
			}
			if action != tt.wantAction {
				t.Errorf("action = %q, want %q", action, tt.wantAction)
			}
		})
	}
}

func TestOrderAction_Kind(t *testing.T) {
	if got := ActionPlaced.Kind(); got != KindOrderPlaced {
		t.Errorf("ActionPlaced.Kind() = %s, want %s", got, KindOrderPlaced)
	}
	if got := ActionCanceled.Kind(); got != KindOrderCancelled {
		t.Errorf("ActionCanceled.Kind() = %s, want %s", got, KindOrderCancelled)
	}
}

func TestEventIdentity_Comparable(t *testing.T) {
	a := FillIdentity("0xabc", "0xhash")
	b := FillIdentity("0xabc", "0xhash")
	if a != b {
		t.Error("identical fill identities should be equal")
	}

	if FillIdentity("0xabc", "0xhash") == FillIdentity("0xdef", "0xhash") {
		t.Error("fill identities for different addresses should differ")
	}

	placed := OrderIdentity("0xabc", 42, ActionPlaced)
	canceled := OrderIdentity("0xabc", 42, ActionCanceled)
	if placed == canceled {
		t.Error("placed and canceled identities for one order should differ")
	}

	if got, want := placed.String(), "order:0xabc:42:placed"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestTradeEvent_Notional(t *testing.T) {
	e := TradeEvent{
		Size:  decimal.RequireFromString("0.5"),
		Price: decimal.RequireFromString("60000"),
	}
	if got := e.Notional(); !got.Equal(decimal.NewFromInt(30000)) {
		t.Errorf("Notional() = %s, want 30000", got)
	}
}

func TestStateStrings(t *testing.T) {
	if StateActive.String() != "active" {
		t.Errorf("StateActive.String() = %q", StateActive.String())
	}
	if LifecycleStopping.String() != "stopping" {
		t.Errorf("LifecycleStopping.String() = %q", LifecycleStopping.String())
	}
	if ConnectionState(99).String() != "unknown" {
		t.Errorf("unknown state should stringify as unknown")
	}
}
