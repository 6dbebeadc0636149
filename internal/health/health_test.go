package health

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/model"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeTarget struct {
	connected atomic.Bool
	state     atomic.Int32
	triggers  atomic.Int64
}

func (p *fakeTarget) Connected() bool { return p.connected.Load() }

func (p *fakeTarget) State() model.ConnectionState {
	return model.ConnectionState(p.state.Load())
}

func (p *fakeTarget) TriggerReconnect() { p.triggers.Add(1) }

func TestHeartbeat(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	hb := newHeartbeat(clock.Now)

	if hb.Age() != 0 {
		t.Errorf("Age = %v, want 0 right after creation", hb.Age())
	}

	clock.Advance(10 * time.Second)
	if hb.Age() != 10*time.Second {
		t.Errorf("Age = %v, want 10s", hb.Age())
	}

	hb.Beat()
	if hb.Age() != 0 {
		t.Errorf("Age = %v, want 0 after Beat", hb.Age())
	}
	if !hb.Last().Equal(clock.Now()) {
		t.Errorf("Last = %v, want %v", hb.Last(), clock.Now())
	}
}

func TestMonitor_Check(t *testing.T) {
	tests := []struct {
		name         string
		connected    bool
		state        model.ConnectionState
		age          time.Duration
		wantTriggers int64
		wantRestarts int64
	}{
		{"healthy", true, model.StateActive, time.Second, 0, 0},
		{"disconnected", false, model.StateDisconnected, time.Second, 1, 0},
		{"shutting down", false, model.StateShuttingDown, time.Second, 0, 0},
		{"stale with healthy connection", true, model.StateActive, time.Minute, 0, 1},
		{"stale and disconnected", false, model.StateDisconnected, time.Minute, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &fakeClock{now: time.Unix(1700000000, 0)}
			hb := newHeartbeat(clock.Now)
			target := &fakeTarget{}
			target.connected.Store(tt.connected)
			target.state.Store(int32(tt.state))

			var restarts atomic.Int64
			m := NewMonitor(Config{CheckInterval: time.Second, StaleWindow: 30 * time.Second},
				target, hb, func() { restarts.Add(1) }, nil)

			clock.Advance(tt.age)
			m.check()

			if got := target.triggers.Load(); got != tt.wantTriggers {
				t.Errorf("TriggerReconnect calls = %d, want %d", got, tt.wantTriggers)
			}
			if got := restarts.Load(); got != tt.wantRestarts {
				t.Errorf("restart calls = %d, want %d", got, tt.wantRestarts)
			}
		})
	}
}

func TestMonitor_RestartRequestedOnce(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	hb := newHeartbeat(clock.Now)
	target := &fakeTarget{}
	target.connected.Store(true)

	var restarts atomic.Int64
	m := NewMonitor(Config{CheckInterval: time.Second, StaleWindow: time.Second},
		target, hb, func() { restarts.Add(1) }, nil)

	clock.Advance(time.Minute)
	for i := 0; i < 5; i++ {
		m.check()
	}

	if got := restarts.Load(); got != 1 {
		t.Errorf("restart calls = %d, want 1", got)
	}
	if got := m.Stats().Checks; got != 5 {
		t.Errorf("Checks = %d, want 5", got)
	}
}

func TestMonitor_Loop(t *testing.T) {
	hb := NewHeartbeat()
	target := &fakeTarget{}
	target.state.Store(int32(model.StateDisconnected))

	m := NewMonitor(Config{CheckInterval: 10 * time.Millisecond, StaleWindow: time.Hour},
		target, hb, func() {}, nil)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for target.triggers.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := target.triggers.Load(); got < 2 {
		t.Errorf("TriggerReconnect calls = %d, want at least 2", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := m.Stop(ctx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}

	after := target.triggers.Load()
	time.Sleep(50 * time.Millisecond)
	if target.triggers.Load() != after {
		t.Error("checks continued after Stop")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.CheckInterval != 30*time.Second {
		t.Errorf("CheckInterval = %v, want 30s", cfg.CheckInterval)
	}
	if cfg.StaleWindow != 180*time.Second {
		t.Errorf("StaleWindow = %v, want 180s", cfg.StaleWindow)
	}
}
