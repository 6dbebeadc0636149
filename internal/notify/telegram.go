package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/config"
	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/model"
)

const telegramAPI = "https://api.telegram.org"

// Telegram sends trade messages through the Telegram Bot API.
type Telegram struct {
	apiURL  string
	token   string
	chatID  string
	sendAll bool

	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[struct{}]
	logger  *slog.Logger
}

// NewTelegram creates a Telegram consumer.
func NewTelegram(cfg config.TelegramConfig, logger *slog.Logger) *Telegram {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "notify", "consumer", "telegram")

	return &Telegram{
		apiURL:  telegramAPI,
		token:   cfg.Token,
		chatID:  cfg.ChatID,
		sendAll: cfg.SendAllEvents,
		client:  &http.Client{Timeout: 10 * time.Second},
		// One message per second per chat.
		limiter: rate.NewLimiter(rate.Every(time.Second), 3),
		breaker: newBreaker("telegram", logger),
		logger:  logger,
	}
}

// Name implements dispatch.Consumer.
func (t *Telegram) Name() string { return "telegram" }

// Notify sends one message. Order updates are skipped unless all events are
// enabled.
func (t *Telegram) Notify(ctx context.Context, ev model.TradeEvent) error {
	if !ev.IsFill() && !t.sendAll {
		return nil
	}

	body, err := json.Marshal(map[string]string{
		"chat_id":    t.chatID,
		"text":       telegramText(ev),
		"parse_mode": "Markdown",
	})
	if err != nil {
		return fmt.Errorf("telegram: marshal payload: %w", err)
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram: rate limit: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiURL, t.token)
	_, err = t.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, postJSON(ctx, t.client, url, body)
	})
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}

	t.logger.Debug("notification sent", "address", ev.Address, "kind", ev.Kind)
	return nil
}

func telegramText(ev model.TradeEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n", title(ev))
	fmt.Fprintf(&b, "Address: `%s`\n", ev.Address)
	fmt.Fprintf(&b, "Size: %s\n", amount(ev.Size, 4))
	fmt.Fprintf(&b, "Price: %s\n", usd(ev.Price))
	fmt.Fprintf(&b, "Value: %s", usd(ev.Notional()))

	if ev.IsFill() {
		fmt.Fprintf(&b, "\nClosed PnL: %s", usd(ev.ClosedPnL))
		if ev.Direction != "" {
			fmt.Fprintf(&b, "\nDirection: %s", ev.Direction)
		}
		if ev.TxHash != "" {
			fmt.Fprintf(&b, "\n[Transaction](%s)", txURL(ev.TxHash))
		}
	} else if ev.OrderID != 0 {
		fmt.Fprintf(&b, "\nOrder ID: %d", ev.OrderID)
	}
	return b.String()
}
