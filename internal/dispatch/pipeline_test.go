package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/metrics"
	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/model"
)

type fakeStore struct {
	mu     sync.Mutex
	fills  []model.RawFill
	orders []model.OrderAction
	err    error
	closed bool
}

func (s *fakeStore) StoreFill(ctx context.Context, fill model.RawFill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.fills = append(s.fills, fill)
	return nil
}

func (s *fakeStore) StoreOrder(ctx context.Context, update model.RawOrderUpdate, action model.OrderAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.orders = append(s.orders, action)
	return nil
}

func (s *fakeStore) Close() error {
	s.closed = true
	return nil
}

type fakeConsumer struct {
	name   string
	mu     sync.Mutex
	events []model.TradeEvent
	notify func(ctx context.Context) error
	closed bool
}

func (c *fakeConsumer) Name() string { return c.name }

func (c *fakeConsumer) Notify(ctx context.Context, ev model.TradeEvent) error {
	if c.notify != nil {
		if err := c.notify(ctx); err != nil {
			return err
		}
	}
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
	return nil
}

func (c *fakeConsumer) Close() error {
	c.closed = true
	return nil
}

func (c *fakeConsumer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func fillEvent(hash string) Event {
	raw := model.RawFill{Address: "0xabc", Coin: "BTC", Px: "100", Sz: "1", Hash: hash}
	return Event{
		Trade: model.TradeEvent{
			Address: "0xabc",
			Coin:    "BTC",
			Kind:    model.KindFill,
			Size:    decimal.NewFromInt(1),
			Price:   decimal.NewFromInt(100),
			TxHash:  hash,
		},
		Identity: model.FillIdentity("0xabc", hash),
		Fill:     &raw,
	}
}

func orderEvent(oid int64, action model.OrderAction) Event {
	raw := model.RawOrderUpdate{Address: "0xabc", Coin: "ETH"}
	detail := &model.RawOrderDetail{Px: "10", Sz: "2", Oid: &oid}
	if action == model.ActionPlaced {
		raw.Placed = detail
	} else {
		raw.Canceled = detail
	}
	return Event{
		Trade:    model.TradeEvent{Address: "0xabc", Coin: "ETH", Kind: action.Kind(), OrderID: oid},
		Identity: model.OrderIdentity("0xabc", oid, action),
		Order:    &raw,
		Action:   action,
	}
}

func TestPipeline_PersistThenNotify(t *testing.T) {
	store := &fakeStore{}
	consumer := &fakeConsumer{name: "test"}
	p := NewPipeline(DefaultConfig(), store, []Consumer{consumer}, nil)

	p.Dispatch(context.Background(), fillEvent("0x1"))
	p.Dispatch(context.Background(), orderEvent(7, model.ActionCanceled))

	if len(store.fills) != 1 {
		t.Errorf("stored fills = %d, want 1", len(store.fills))
	}
	if len(store.orders) != 1 || store.orders[0] != model.ActionCanceled {
		t.Errorf("stored orders = %v, want [canceled]", store.orders)
	}
	if consumer.count() != 2 {
		t.Errorf("notified = %d, want 2", consumer.count())
	}

	stats := p.Stats()
	if stats.Dispatched != 2 || stats.Stored != 2 || stats.Notified != 2 {
		t.Errorf("Stats = %+v", stats)
	}
}

func TestPipeline_Silent(t *testing.T) {
	store := &fakeStore{}
	consumer := &fakeConsumer{name: "test"}
	p := NewPipeline(Config{Silent: true}, store, []Consumer{consumer}, nil)

	p.Dispatch(context.Background(), fillEvent("0x1"))

	if len(store.fills) != 1 {
		t.Errorf("stored fills = %d, want 1", len(store.fills))
	}
	if consumer.count() != 0 {
		t.Errorf("notified = %d, want 0 in silent mode", consumer.count())
	}
}

func TestPipeline_StoreFailureDoesNotGateConsumers(t *testing.T) {
	store := &fakeStore{err: errors.New("disk full")}
	consumer := &fakeConsumer{name: "test"}
	p := NewPipeline(DefaultConfig(), store, []Consumer{consumer}, nil)

	p.Dispatch(context.Background(), fillEvent("0x1"))

	if consumer.count() != 1 {
		t.Errorf("notified = %d, want 1", consumer.count())
	}
	if got := p.Stats().StoreErrors; got != 1 {
		t.Errorf("StoreErrors = %d, want 1", got)
	}
}

func TestPipeline_NilStore(t *testing.T) {
	consumer := &fakeConsumer{name: "test"}
	p := NewPipeline(DefaultConfig(), nil, []Consumer{consumer}, nil)

	p.Dispatch(context.Background(), fillEvent("0x1"))

	if consumer.count() != 1 {
		t.Errorf("notified = %d, want 1", consumer.count())
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close = %v", err)
	}
}

func TestPipeline_ConsumerIsolation(t *testing.T) {
	tests := []struct {
		name   string
		notify func(ctx context.Context) error
	}{
		{"error", func(ctx context.Context) error { return errors.New("boom") }},
		{"panic", func(ctx context.Context) error { panic("boom") }},
		{"timeout", func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}},
		{"ignores context", func(ctx context.Context) error {
			time.Sleep(time.Second)
			return nil
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := &fakeConsumer{name: "bad", notify: tt.notify}
			good := &fakeConsumer{name: "good"}
			cfg := Config{ConsumerTimeout: 50 * time.Millisecond}
			p := NewPipeline(cfg, nil, []Consumer{bad, good}, nil)

			start := time.Now()
			p.Dispatch(context.Background(), fillEvent("0x1"))
			p.Dispatch(context.Background(), fillEvent("0x2"))

			if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
				t.Errorf("Dispatch took %v, want bounded by consumer timeout", elapsed)
			}
			if good.count() != 2 {
				t.Errorf("good consumer notified %d times, want 2", good.count())
			}
			if got := p.Stats().ConsumerErrors; got != 2 {
				t.Errorf("ConsumerErrors = %d, want 2", got)
			}
		})
	}
}

func TestPipeline_CancelledIsNotTimeout(t *testing.T) {
	slow := &fakeConsumer{name: "slow-cancel", notify: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	p := NewPipeline(Config{ConsumerTimeout: time.Hour}, nil, []Consumer{slow}, nil)

	cancelled := func() float64 {
		return testutil.ToFloat64(metrics.ConsumerErrorsTotal.WithLabelValues("slow-cancel", "cancelled"))
	}
	timedOut := func() float64 {
		return testutil.ToFloat64(metrics.ConsumerErrorsTotal.WithLabelValues("slow-cancel", "timeout"))
	}
	beforeCancelled, beforeTimeout := cancelled(), timedOut()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	p.Dispatch(ctx, fillEvent("0x1"))

	if got := cancelled() - beforeCancelled; got != 1 {
		t.Errorf("cancelled failures = %v, want 1", got)
	}
	if got := timedOut() - beforeTimeout; got != 0 {
		t.Errorf("timeout failures = %v, want 0", got)
	}
}

func TestPipeline_Record(t *testing.T) {
	store := &fakeStore{}
	consumer := &fakeConsumer{name: "test"}
	p := NewPipeline(DefaultConfig(), store, []Consumer{consumer}, nil)

	p.Record(context.Background(), fillEvent("0x1"))

	if len(store.fills) != 1 {
		t.Errorf("stored fills = %d, want 1", len(store.fills))
	}
	if consumer.count() != 0 {
		t.Errorf("notified = %d, want 0", consumer.count())
	}
	stats := p.Stats()
	if stats.Dispatched != 0 || stats.Stored != 1 {
		t.Errorf("Stats = %+v, want Dispatched 0 and Stored 1", stats)
	}

	// Persistence disabled: nothing to do.
	NewPipeline(DefaultConfig(), nil, nil, nil).Record(context.Background(), fillEvent("0x2"))
}

func TestPipeline_Close(t *testing.T) {
	store := &fakeStore{}
	consumer := &fakeConsumer{name: "test"}
	p := NewPipeline(DefaultConfig(), store, []Consumer{consumer}, nil)

	if err := p.Close(); err != nil {
		t.Fatalf("Close = %v", err)
	}
	if !store.closed {
		t.Error("store not closed")
	}
	if !consumer.closed {
		t.Error("consumer not closed")
	}

	names := p.Consumers()
	if len(names) != 1 || names[0] != "test" {
		t.Errorf("Consumers = %v, want [test]", names)
	}
}
