// Package monitor is the Lifecycle Controller. It owns one run at a time:
// a Subscription Manager, the Message Router reading from it, the Health
// Monitor watching both, and the idle pulse loop that keeps the heartbeat
// moving while the venue is quiet.
//
// The dedup ledger and the dispatch sink outlive runs, so a restart never
// re-dispatches an event that was already admitted.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/config"
	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/connection"
	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/health"
	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/metrics"
	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/model"
	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/router"
	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/version"
)

// Errors
var (
	ErrStopped        = errors.New("monitor stopped")
	ErrAlreadyRunning = errors.New("monitor already running")
)

// Config holds Lifecycle Controller settings.
type Config struct {
	Manager       connection.ManagerConfig
	Health        health.Config
	PulseInterval time.Duration // Idle heartbeat period
	StopTimeout   time.Duration // Bound on teardown during a restart or Run exit
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Manager:       connection.DefaultManagerConfig(),
		Health:        health.DefaultConfig(),
		PulseInterval: 30 * time.Second,
		StopTimeout:   30 * time.Second,
	}
}

// ConfigFrom maps the loaded configuration onto the controller's.
func ConfigFrom(cfg *config.Config) Config {
	categories := make([]model.Category, 0, len(cfg.Venue.Categories))
	for _, c := range cfg.Venue.Categories {
		categories = append(categories, model.Category(c))
	}

	client := connection.DefaultClientConfig()
	client.URL = cfg.Venue.WSURL()
	client.UserAgent = version.UserAgent()
	client.HandshakeTimeout = cfg.Connection.HandshakeTimeout
	client.PingInterval = cfg.Connection.PingInterval
	client.ReadTimeout = cfg.Connection.ReadTimeout
	client.WriteTimeout = cfg.Connection.WriteTimeout

	return Config{
		Manager: connection.ManagerConfig{
			Client:            client,
			Addresses:         cfg.Venue.Addresses,
			Categories:        categories,
			ReconnectDelay:    cfg.Connection.ReconnectDelay,
			SubscribeTimeout:  cfg.Connection.SubscribeTimeout,
			MessageBufferSize: cfg.Connection.MessageBufferSize,
		},
		Health: health.Config{
			CheckInterval: cfg.Health.CheckInterval,
			StaleWindow:   cfg.Health.StaleWindow(),
		},
		PulseInterval: cfg.Health.PulseInterval,
		StopTimeout:   cfg.Dispatch.StopTimeout,
	}
}

// Status is a point-in-time view for the health endpoint.
type Status struct {
	State         model.LifecycleState
	Connection    model.ConnectionState
	Connected     bool
	Subscriptions int
	LedgerSize    int
	HeartbeatAge  time.Duration
	Restarts      int64
	Manager       connection.ManagerStats
	Router        router.RouterStats
}

// run is everything owned by one Start..Stop cycle.
type run struct {
	ctx     context.Context
	cancel  context.CancelFunc
	manager connection.Manager
	router  router.Router
	health  *health.Monitor
	wg      sync.WaitGroup
	started chan struct{} // closed when Start returns
}

// Monitor is the Lifecycle Controller.
type Monitor struct {
	cfg       Config
	ledger    router.Ledger
	sink      router.Sink
	heartbeat *health.Heartbeat
	logger    *slog.Logger

	mu     sync.Mutex
	state  model.LifecycleState
	run    *run
	parent context.Context // ctx of the latest Start, reused by async restarts
	closed bool            // Run is exiting; no new async restarts

	stopMu     sync.Mutex // serializes Stop
	restarting atomic.Bool
	restarts   atomic.Int64
	wg         sync.WaitGroup // async restarts
}

// New creates a stopped Lifecycle Controller.
func New(cfg Config, ledger router.Ledger, sink router.Sink, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PulseInterval <= 0 {
		cfg.PulseInterval = DefaultConfig().PulseInterval
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultConfig().StopTimeout
	}

	m := &Monitor{
		cfg:       cfg,
		ledger:    ledger,
		sink:      sink,
		heartbeat: health.NewHeartbeat(),
		logger:    logger.With("component", "lifecycle"),
	}
	m.setState(model.LifecycleStopped)
	return m
}

// Start connects and subscribes every monitored address, then spawns the
// router, the Health Monitor and the pulse loop. It blocks until the
// subscriptions are active. If ctx is cancelled or Stop is called first, the
// partial run is torn down and Start returns an error wrapping ErrStopped.
func (m *Monitor) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrStopped, err)
	}

	m.mu.Lock()
	if m.state != model.LifecycleStopped {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	r := &run{started: make(chan struct{})}
	r.ctx, r.cancel = context.WithCancel(context.WithoutCancel(ctx))
	r.manager = connection.NewManager(r.ctx, m.cfg.Manager, m.logger)
	m.run = r
	m.parent = ctx
	m.setState(model.LifecycleStarting)
	m.mu.Unlock()

	defer close(r.started)

	m.logger.Info("starting monitor",
		"url", m.cfg.Manager.Client.URL,
		"addresses", len(m.cfg.Manager.Addresses),
	)

	openCtx, cancelOpen := context.WithCancel(r.ctx)
	stopAfter := context.AfterFunc(ctx, cancelOpen)
	err := r.manager.Open(openCtx)
	stopAfter()
	cancelOpen()

	if err == nil {
		// Stop may have landed between the last ack and here.
		err = r.ctx.Err()
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		m.abortStart(r)
		return fmt.Errorf("%w: %w", ErrStopped, err)
	}

	r.router = router.NewRouter(r.manager.Messages(), m.ledger, m.sink, m.heartbeat, m.logger)
	if err := r.router.Start(r.ctx); err != nil {
		m.abortStart(r)
		return fmt.Errorf("start router: %w", err)
	}

	r.health = health.NewMonitor(m.cfg.Health, r.manager, m.heartbeat, m.RequestRestart, m.logger)
	if err := r.health.Start(r.ctx); err != nil {
		m.abortStart(r)
		return fmt.Errorf("start health monitor: %w", err)
	}

	r.wg.Add(1)
	go m.pulseLoop(r)

	m.heartbeat.Beat()

	m.mu.Lock()
	m.setState(model.LifecycleRunning)
	m.mu.Unlock()

	m.logger.Info("monitor running",
		"subscriptions", len(r.manager.Subscriptions()),
	)
	return nil
}

// abortStart tears down a run that never reached Running.
func (m *Monitor) abortStart(r *run) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.StopTimeout)
	defer cancel()

	if err := m.teardown(ctx, r); err != nil {
		m.logger.Warn("startup teardown incomplete", "error", err)
	}

	m.mu.Lock()
	m.run = nil
	m.setState(model.LifecycleStopped)
	m.mu.Unlock()

	m.logger.Info("startup aborted")
}

// Stop cancels the current run and tears it down, waiting for its
// goroutines until ctx expires. It is idempotent.
func (m *Monitor) Stop(ctx context.Context) error {
	m.stopMu.Lock()
	defer m.stopMu.Unlock()

	for {
		m.mu.Lock()
		r := m.run
		switch m.state {
		case model.LifecycleStopped:
			m.mu.Unlock()
			return nil

		case model.LifecycleStarting:
			// Start owns the teardown of a partial run.
			r.cancel()
			m.mu.Unlock()
			select {
			case <-r.started:
				continue
			case <-ctx.Done():
				return fmt.Errorf("wait for startup: %w", ctx.Err())
			}
		}

		m.setState(model.LifecycleStopping)
		m.mu.Unlock()

		m.logger.Info("stopping monitor")
		err := m.teardown(ctx, r)

		m.mu.Lock()
		m.run = nil
		m.setState(model.LifecycleStopped)
		m.mu.Unlock()

		if err != nil {
			m.logger.Warn("monitor stopped with errors", "error", err)
			return err
		}
		m.logger.Info("monitor stopped")
		return nil
	}
}

// teardown cancels the run token, shuts the manager down (unsubscribe and
// close) and waits for the run's goroutines.
func (m *Monitor) teardown(ctx context.Context, r *run) error {
	r.cancel()

	var errs []error
	if r.health != nil {
		if err := r.health.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop health monitor: %w", err))
		}
	}

	report := r.manager.Shutdown(ctx)
	if report.Attempted {
		m.logger.Info("subscriptions torn down",
			"subscriptions", report.Subscriptions,
			"unsubscribed", report.Unsubscribed,
			"client_closed", report.ClientClosed,
		)
	}
	if err := report.Err(); err != nil {
		errs = append(errs, fmt.Errorf("teardown: %w", err))
	}

	if r.router != nil {
		if err := r.router.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop router: %w", err))
		}
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("wait for pulse loop: %w", ctx.Err()))
	}

	return errors.Join(errs...)
}

// Restart stops the current run and starts a fresh one.
func (m *Monitor) Restart(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrStopped, err)
	}

	m.restarts.Add(1)
	metrics.RestartsTotal.Inc()
	m.logger.Warn("restarting monitor", "restarts", m.restarts.Load())

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.StopTimeout)
	err := m.Stop(stopCtx)
	cancel()
	if err != nil {
		m.logger.Warn("stop before restart incomplete", "error", err)
	}

	return m.Start(ctx)
}

// RequestRestart restarts the monitor in the background. Requests made while
// a restart is in flight are dropped. It never blocks, so the Health Monitor
// can call it from its check loop.
func (m *Monitor) RequestRestart() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || m.parent == nil {
		return
	}
	if !m.restarting.CompareAndSwap(false, true) {
		m.logger.Debug("restart already in progress")
		return
	}

	parent := m.parent
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.restarting.Store(false)

		if err := m.Restart(parent); err != nil {
			if errors.Is(err, ErrStopped) {
				m.logger.Info("restart abandoned", "error", err)
				return
			}
			m.logger.Error("restart failed", "error", err)
		}
	}()
}

// Run starts the monitor, idles until ctx is cancelled, then stops it.
// Cancellation is a clean exit and returns nil.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.Start(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	<-ctx.Done()
	m.logger.Info("shutdown requested")

	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.wg.Wait()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.StopTimeout)
	defer cancel()
	return m.Stop(stopCtx)
}

// State returns the current lifecycle state.
func (m *Monitor) State() model.LifecycleState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Status returns a snapshot for the health endpoint.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	state, r := m.state, m.run
	m.mu.Unlock()

	st := Status{
		State:        state,
		Connection:   model.StateDisconnected,
		HeartbeatAge: m.heartbeat.Age(),
		Restarts:     m.restarts.Load(),
	}
	if m.ledger != nil {
		st.LedgerSize = m.ledger.Len()
	}
	if r == nil {
		return st
	}

	st.Manager = r.manager.Stats()
	st.Connection = st.Manager.State
	st.Connected = st.Manager.Connected
	st.Subscriptions = st.Manager.Subscriptions
	if state == model.LifecycleRunning && r.router != nil {
		st.Router = r.router.Stats()
	}
	return st
}

// pulseLoop enqueues idle pulses so the heartbeat keeps advancing while no
// events arrive. A wedged router stops consuming them.
func (m *Monitor) pulseLoop(r *run) {
	defer r.wg.Done()

	ticker := time.NewTicker(m.cfg.PulseInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.router.Pulse()
		}
	}
}

// setState must be called with mu held.
func (m *Monitor) setState(s model.LifecycleState) {
	m.state = s
	metrics.LifecycleState.Set(float64(s))
}
