package health

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/metrics"
	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/model"
)

// Target is the view of the Subscription Manager the monitor needs.
type Target interface {
	Connected() bool
	State() model.ConnectionState
	TriggerReconnect()
}

// Config holds Health Monitor settings.
type Config struct {
	CheckInterval time.Duration // Period of both checks
	StaleWindow   time.Duration // Max heartbeat age before a restart
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		CheckInterval: 30 * time.Second,
		StaleWindow:   180 * time.Second,
	}
}

// Stats contains runtime statistics.
type Stats struct {
	Checks              int64
	ReconnectsTriggered int64
	RestartsRequested   int64
}

// Monitor supervises one monitor run. restart must not block; it is called
// at most once per Monitor.
type Monitor struct {
	cfg       Config
	target    Target
	heartbeat *Heartbeat
	restart   func()
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	restartRequested atomic.Bool

	checks     atomic.Int64
	reconnects atomic.Int64
	restarts   atomic.Int64
}

// NewMonitor creates a Health Monitor.
func NewMonitor(cfg Config, target Target, heartbeat *Heartbeat, restart func(), logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultConfig().CheckInterval
	}
	if cfg.StaleWindow <= 0 {
		cfg.StaleWindow = DefaultConfig().StaleWindow
	}

	return &Monitor{
		cfg:       cfg,
		target:    target,
		heartbeat: heartbeat,
		restart:   restart,
		logger:    logger.With("component", "health"),
	}
}

// Start begins periodic checks.
func (m *Monitor) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go m.loop()

	m.logger.Info("health monitor started",
		"check_interval", m.cfg.CheckInterval,
		"stale_window", m.cfg.StaleWindow,
	)
	return nil
}

// Stop halts the checks and waits for the loop to exit.
func (m *Monitor) Stop(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Debug("health monitor stopped")
		return nil
	case <-ctx.Done():
		m.logger.Warn("health monitor stop timed out")
		return ctx.Err()
	}
}

// Stats returns current statistics.
func (m *Monitor) Stats() Stats {
	return Stats{
		Checks:              m.checks.Load(),
		ReconnectsTriggered: m.reconnects.Load(),
		RestartsRequested:   m.restarts.Load(),
	}
}

func (m *Monitor) loop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.check()
		}
	}
}

// check runs both liveness checks once. Neither blocks: the reconnect and
// the restart both run on their own goroutines.
func (m *Monitor) check() {
	m.checks.Add(1)

	if !m.target.Connected() && m.target.State() != model.StateShuttingDown {
		m.reconnects.Add(1)
		m.logger.Warn("connection lost, triggering reconnect",
			"state", m.target.State(),
		)
		m.target.TriggerReconnect()
	}

	age := m.heartbeat.Age()
	metrics.HeartbeatAgeSeconds.Set(age.Seconds())

	if age > m.cfg.StaleWindow && m.restartRequested.CompareAndSwap(false, true) {
		m.restarts.Add(1)
		m.logger.Error("heartbeat stale, requesting full restart",
			"age", age.Round(time.Millisecond),
			"stale_window", m.cfg.StaleWindow,
			"last_beat", m.heartbeat.Last(),
		)
		m.restart()
	}
}
