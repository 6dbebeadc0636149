// Package dispatch persists admitted events and fans them out to consumers.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/metrics"
	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/model"
)

// ErrConsumerTimeout is reported when a consumer does not return in time.
var ErrConsumerTimeout = errors.New("consumer timeout")

// panicError wraps a value recovered from a consumer.
type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("consumer panic: %v", e.value)
}

// Store persists raw events. Both methods must be idempotent on the event's
// own unique key.
type Store interface {
	StoreFill(ctx context.Context, fill model.RawFill) error
	StoreOrder(ctx context.Context, update model.RawOrderUpdate, action model.OrderAction) error
	Close() error
}

// Consumer receives every admitted event unless the pipeline is silent.
type Consumer interface {
	Name() string
	Notify(ctx context.Context, event model.TradeEvent) error
}

// Event is one admitted event together with the raw payload it came from.
// Exactly one of Fill and Order is set.
type Event struct {
	Trade    model.TradeEvent
	Identity model.EventIdentity
	Fill     *model.RawFill
	Order    *model.RawOrderUpdate
	Action   model.OrderAction
}

// Config holds pipeline settings.
type Config struct {
	Silent          bool          // Persist only
	ConsumerTimeout time.Duration // Per consumer call and per store write
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ConsumerTimeout: 10 * time.Second,
	}
}

// Stats contains runtime statistics.
type Stats struct {
	Dispatched     int64
	Stored         int64
	StoreErrors    int64
	Notified       int64
	ConsumerErrors int64
}

// Pipeline persists, then notifies. It is safe for concurrent use and
// outlives individual monitor runs.
type Pipeline struct {
	cfg       Config
	logger    *slog.Logger
	store     Store
	consumers []Consumer

	storeMu sync.Mutex

	dispatched     atomic.Int64
	stored         atomic.Int64
	storeErrors    atomic.Int64
	notified       atomic.Int64
	consumerErrors atomic.Int64
}

// NewPipeline creates a pipeline. store may be nil when persistence is
// disabled.
func NewPipeline(cfg Config, store Store, consumers []Consumer, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ConsumerTimeout <= 0 {
		cfg.ConsumerTimeout = DefaultConfig().ConsumerTimeout
	}

	return &Pipeline{
		cfg:       cfg,
		logger:    logger.With("component", "dispatch"),
		store:     store,
		consumers: consumers,
	}
}

// Dispatch handles one admitted event. It never returns an error: storage
// and consumer failures are logged and counted.
func (p *Pipeline) Dispatch(ctx context.Context, ev Event) {
	p.dispatched.Add(1)

	p.Record(ctx, ev)

	if p.cfg.Silent {
		return
	}

	for _, c := range p.consumers {
		p.notify(ctx, c, ev)
	}
}

// Record persists ev without notifying consumers. It is a no-op when
// persistence is disabled.
func (p *Pipeline) Record(ctx context.Context, ev Event) {
	if p.store == nil {
		return
	}
	if err := p.persist(ctx, ev); err != nil {
		p.storeErrors.Add(1)
		metrics.StoreErrorsTotal.WithLabelValues(string(ev.Trade.Kind)).Inc()
		p.logger.Error("failed to store event",
			"address", ev.Trade.Address,
			"kind", ev.Trade.Kind,
			"identity", ev.Identity.String(),
			"error", err,
		)
		return
	}
	p.stored.Add(1)
}

// persist serializes store calls.
func (p *Pipeline) persist(ctx context.Context, ev Event) error {
	p.storeMu.Lock()
	defer p.storeMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, p.cfg.ConsumerTimeout)
	defer cancel()

	switch {
	case ev.Fill != nil:
		return p.store.StoreFill(ctx, *ev.Fill)
	case ev.Order != nil:
		return p.store.StoreOrder(ctx, *ev.Order, ev.Action)
	default:
		return fmt.Errorf("event %s carries no raw payload", ev.Identity)
	}
}

// notify delivers ev to one consumer under its own deadline. Panics are
// recovered. A consumer that ignores its context is abandoned at the
// deadline.
func (p *Pipeline) notify(ctx context.Context, c Consumer, ev Event) {
	name := c.Name()
	start := time.Now()

	cctx, cancel := context.WithTimeout(ctx, p.cfg.ConsumerTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- &panicError{value: r}
			}
		}()
		done <- c.Notify(cctx, ev.Trade)
	}()

	var (
		err    error
		reason string
	)
	select {
	case err = <-done:
		var pe *panicError
		switch {
		case errors.As(err, &pe):
			reason = "panic"
		case err != nil:
			reason = "error"
		}
	case <-cctx.Done():
		if ctx.Err() != nil {
			err = ctx.Err()
			reason = "cancelled"
		} else {
			err = ErrConsumerTimeout
			reason = "timeout"
		}
	}

	metrics.ConsumerDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err != nil {
		p.consumerErrors.Add(1)
		metrics.ConsumerErrorsTotal.WithLabelValues(name, reason).Inc()
		p.logger.Warn("consumer failed",
			"consumer", name,
			"reason", reason,
			"address", ev.Trade.Address,
			"kind", ev.Trade.Kind,
			"identity", ev.Identity.String(),
			"error", err,
		)
		return
	}
	p.notified.Add(1)
}

// Close closes the store and every consumer that holds resources.
func (p *Pipeline) Close() error {
	var errs []error
	for _, c := range p.consumers {
		if closer, ok := c.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", c.Name(), err))
			}
		}
	}
	if p.store != nil {
		if err := p.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Consumers returns the registered consumer names.
func (p *Pipeline) Consumers() []string {
	names := make([]string, len(p.consumers))
	for i, c := range p.consumers {
		names[i] = c.Name()
	}
	return names
}

// Stats returns current statistics.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Dispatched:     p.dispatched.Load(),
		Stored:         p.stored.Load(),
		StoreErrors:    p.storeErrors.Load(),
		Notified:       p.notified.Load(),
		ConsumerErrors: p.consumerErrors.Load(),
	}
}
