package notify

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/model"
)

const txURLBase = "https://hyperliquid.xyz/transactions/"

// usd renders d as dollars with thousands separators and two decimals.
func usd(d decimal.Decimal) string {
	if d.IsNegative() {
		return "-" + usd(d.Neg())
	}
	return "$" + humanize.FormatFloat("#,###.##", d.Round(2).InexactFloat64())
}

// amount renders d with thousands separators and the given decimals.
func amount(d decimal.Decimal, places int32) string {
	format := "#,###."
	for i := int32(0); i < places; i++ {
		format += "#"
	}
	return humanize.FormatFloat(format, d.Round(places).InexactFloat64())
}

func title(ev model.TradeEvent) string {
	return fmt.Sprintf("%s: %s %s", ev.Kind, ev.Coin, ev.Side)
}

func txURL(hash string) string {
	return txURLBase + hash
}
