// Package router decodes venue frames, normalizes them, and hands fresh events to the dispatch sink.
package router

import (
	"context"
	"log/slog"
	"sync"

	"github.com/segmentio/encoding/json"

	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/connection"
	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/dispatch"
	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/metrics"
	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/model"
	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/normalize"
)

// Router decodes data messages, normalizes and deduplicates the events they
// carry and hands admitted events to the dispatch pipeline.
type Router interface {
	// Start begins routing messages from the input channel.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the router.
	Stop(ctx context.Context) error

	// Pulse asks the routing goroutine to beat the heartbeat. It never
	// blocks; a pulse already queued absorbs the new one.
	Pulse()

	// Stats returns current router statistics.
	Stats() RouterStats
}

// router is the internal implementation.
type router struct {
	logger *slog.Logger

	// Input from the Subscription Manager
	input <-chan connection.RawMessage
	pulse chan struct{}

	ledger    Ledger
	sink      Sink
	heartbeat Heartbeat

	// Lifecycle. Dispatch runs on sinkCtx, which carries ctx's values but not
	// its cancellation: an admitted event is stored and notified even when
	// the router is stopped mid-dispatch.
	ctx     context.Context
	cancel  context.CancelFunc
	sinkCtx context.Context
	wg      sync.WaitGroup

	mu    sync.RWMutex
	stats RouterStats
}

// NewRouter creates a new Message Router.
func NewRouter(input <-chan connection.RawMessage, ledger Ledger, sink Sink, heartbeat Heartbeat, logger *slog.Logger) Router {
	if logger == nil {
		logger = slog.Default()
	}

	return &router{
		logger:    logger.With("component", "router"),
		input:     input,
		pulse:     make(chan struct{}, 1),
		ledger:    ledger,
		sink:      sink,
		heartbeat: heartbeat,
	}
}

// Start begins routing messages.
func (r *router) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.sinkCtx = context.WithoutCancel(r.ctx)

	r.wg.Add(1)
	go r.routeLoop()

	r.logger.Info("message router started")

	return nil
}

// Stop gracefully shuts down the router.
func (r *router) Stop(ctx context.Context) error {
	r.logger.Info("stopping message router")

	if r.cancel != nil {
		r.cancel()
	}

	// Wait for goroutine to finish
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("message router stopped")
		return nil
	case <-ctx.Done():
		r.logger.Warn("message router stop timed out")
		return ctx.Err()
	}
}

// Pulse queues a heartbeat beat.
func (r *router) Pulse() {
	select {
	case r.pulse <- struct{}{}:
	default:
	}
}

// Stats returns current statistics.
func (r *router) Stats() RouterStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}

// routeLoop is the main routing goroutine. The heartbeat only advances
// here, so a wedged pipeline stops it.
func (r *router) routeLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-r.pulse:
			r.count(func(s *RouterStats) { s.Pulses++ })
			r.heartbeat.Beat()
		case raw, ok := <-r.input:
			if !ok {
				r.logger.Info("input channel closed")
				return
			}
			// select picks at random among ready cases; nothing is admitted
			// once the router is stopping.
			if r.ctx.Err() != nil {
				return
			}
			r.route(raw)
			r.heartbeat.Beat()
		}
	}
}

// route parses one data message and processes every event in it.
func (r *router) route(raw connection.RawMessage) {
	r.count(func(s *RouterStats) { s.MessagesReceived++ })

	var payload payloadWire
	if err := json.Unmarshal(raw.Data, &payload); err != nil {
		r.logger.Warn("failed to parse data message",
			"channel", raw.Channel,
			"error", err,
		)
		r.count(func(s *RouterStats) { s.ParseErrors++ })
		return
	}

	if raw.Address == "" {
		n := len(payload.Fills) + len(payload.OrderUpdates)
		if n > 0 {
			metrics.EventsTotal.WithLabelValues("unknown", outcomeUnattributed).Add(float64(n))
			r.count(func(s *RouterStats) { s.Unattributed += int64(n) })
			r.logger.Warn("dropping events with no attributable address",
				"channel", raw.Channel,
				"events", n,
			)
		}
		return
	}

	for _, data := range payload.Fills {
		r.routeFill(raw, data, payload.IsSnapshot)
	}
	for _, data := range payload.OrderUpdates {
		r.routeOrder(raw, data)
	}
}

// routeFill normalizes, admits and dispatches one fill. Snapshot fills are
// history: they seed the ledger and are recorded, but never notified.
func (r *router) routeFill(raw connection.RawMessage, data json.RawMessage, snapshot bool) {
	var fill model.RawFill
	if err := json.Unmarshal(data, &fill); err != nil {
		r.malformed(raw, model.KindFill, err)
		return
	}
	fill.Address = raw.Address

	ev, err := normalize.Fill(fill)
	if err != nil {
		r.malformed(raw, model.KindFill, err)
		return
	}
	id, _ := normalize.FillIdentity(fill)

	if snapshot {
		if r.ledger.Admit(id) {
			r.sink.Record(r.sinkCtx, dispatch.Event{Trade: ev, Identity: id, Fill: &fill})
		}
		r.record(model.KindFill, outcomeSnapshot)
		return
	}

	if !r.ledger.Admit(id) {
		r.record(model.KindFill, outcomeDuplicate)
		r.logger.Debug("duplicate fill", "identity", id.String())
		return
	}
	r.record(model.KindFill, outcomeAdmitted)

	r.sink.Dispatch(r.sinkCtx, dispatch.Event{
		Trade:    ev,
		Identity: id,
		Fill:     &fill,
	})
}

// routeOrder normalizes, admits and dispatches one order update.
func (r *router) routeOrder(raw connection.RawMessage, data json.RawMessage) {
	var update model.RawOrderUpdate
	if err := json.Unmarshal(data, &update); err != nil {
		r.malformed(raw, kindOrder, err)
		return
	}
	update.Address = raw.Address

	ev, err := normalize.OrderUpdate(update)
	if err != nil {
		r.malformed(raw, kindOrder, err)
		return
	}
	id, _ := normalize.OrderIdentity(update)

	if !r.ledger.Admit(id) {
		r.record(ev.Kind, outcomeDuplicate)
		r.logger.Debug("duplicate order update", "identity", id.String())
		return
	}
	r.record(ev.Kind, outcomeAdmitted)

	r.sink.Dispatch(r.sinkCtx, dispatch.Event{
		Trade:    ev,
		Identity: id,
		Order:    &update,
		Action:   id.Action,
	})
}

func (r *router) malformed(raw connection.RawMessage, kind model.EventKind, err error) {
	r.record(kind, outcomeMalformed)
	r.logger.Warn("dropping malformed event",
		"address", raw.Address,
		"channel", raw.Channel,
		"kind", kind,
		"error", err,
	)
}

// record updates stats and metrics for one event outcome.
func (r *router) record(kind model.EventKind, outcome string) {
	metrics.EventsTotal.WithLabelValues(string(kind), outcome).Inc()

	r.count(func(s *RouterStats) {
		switch outcome {
		case outcomeAdmitted:
			s.Admitted++
		case outcomeDuplicate:
			s.Duplicates++
		case outcomeMalformed:
			s.Malformed++
		case outcomeSnapshot:
			s.Snapshots++
		}
	})

	if outcome == outcomeAdmitted || outcome == outcomeSnapshot {
		metrics.LedgerSize.Set(float64(r.ledger.Len()))
	}
}

func (r *router) count(update func(*RouterStats)) {
	r.mu.Lock()
	update(&r.stats)
	r.mu.Unlock()
}
