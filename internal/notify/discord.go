package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/config"
	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/model"
)

// Embed colors.
const (
	colorGreen = 0x2ecc71
	colorRed   = 0xe74c3c
)

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordFooter struct {
	Text string `json:"text"`
}

type discordEmbed struct {
	Title     string         `json:"title"`
	Color     int            `json:"color"`
	Timestamp string         `json:"timestamp,omitempty"`
	Fields    []discordField `json:"fields"`
	Footer    discordFooter  `json:"footer"`
}

type discordPayload struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds"`
}

// Discord posts trade embeds to a Discord webhook.
type Discord struct {
	webhookURL string
	sendAll    bool
	alerts     bool
	threshold  decimal.Decimal

	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[struct{}]
	logger  *slog.Logger
}

// NewDiscord creates a Discord webhook consumer.
func NewDiscord(cfg config.DiscordConfig, logger *slog.Logger) *Discord {
	if logger == nil {
		logger = slog.Default()
	}
	perMinute := cfg.RatePerMinute
	if perMinute <= 0 {
		perMinute = config.DefaultDiscordRate
	}
	logger = logger.With("component", "notify", "consumer", "discord")

	return &Discord{
		webhookURL: cfg.WebhookURL,
		sendAll:    cfg.SendAllEvents,
		alerts:     cfg.LargeTradeAlerts,
		threshold:  decimal.NewFromFloat(cfg.LargeTradeThreshold),
		client:     &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 5),
		breaker:    newBreaker("discord", logger),
		logger:     logger,
	}
}

// Name implements dispatch.Consumer.
func (d *Discord) Name() string { return "discord" }

// Notify posts one embed. Order updates are skipped unless all events are
// enabled.
func (d *Discord) Notify(ctx context.Context, ev model.TradeEvent) error {
	if !ev.IsFill() && !d.sendAll {
		return nil
	}

	body, err := json.Marshal(d.payload(ev))
	if err != nil {
		return fmt.Errorf("discord: marshal payload: %w", err)
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("discord: rate limit: %w", err)
	}

	_, err = d.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, postJSON(ctx, d.client, d.webhookURL, body)
	})
	if err != nil {
		return fmt.Errorf("discord: %w", err)
	}

	d.logger.Debug("notification sent",
		"address", ev.Address,
		"kind", ev.Kind,
		"coin", ev.Coin,
	)
	return nil
}

func (d *Discord) payload(ev model.TradeEvent) discordPayload {
	value := ev.Notional()

	color := colorRed
	if ev.Side == model.SideBuy {
		color = colorGreen
	}

	fields := []discordField{
		{Name: "Address", Value: "`" + ev.Address + "`"},
		{Name: "Size", Value: amount(ev.Size, 4), Inline: true},
		{Name: "Price", Value: usd(ev.Price), Inline: true},
		{Name: "Value", Value: usd(value), Inline: true},
	}

	if ev.IsFill() {
		fields = append(fields,
			discordField{Name: "Fee", Value: amount(ev.Fee, 6) + " " + ev.FeeToken, Inline: true},
			discordField{Name: "Closed PnL", Value: usd(ev.ClosedPnL), Inline: true},
		)
		if ev.Direction != "" {
			fields = append(fields, discordField{Name: "Direction", Value: ev.Direction, Inline: true})
		}
		if ev.TxHash != "" {
			fields = append(fields, discordField{Name: "Transaction", Value: "[View](" + txURL(ev.TxHash) + ")", Inline: true})
		}
	} else if ev.OrderID != 0 {
		fields = append(fields, discordField{Name: "Order ID", Value: strconv.FormatInt(ev.OrderID, 10), Inline: true})
	}

	p := discordPayload{
		Embeds: []discordEmbed{{
			Title:     title(ev),
			Color:     color,
			Timestamp: ev.Timestamp.UTC().Format(time.RFC3339),
			Fields:    fields,
			Footer:    discordFooter{Text: "Hyperliquid " + string(ev.Kind)},
		}},
	}
	if d.alerts && ev.IsFill() && value.GreaterThanOrEqual(d.threshold) {
		p.Content = "@everyone Large trade detected: " + usd(value)
	}
	return p
}
