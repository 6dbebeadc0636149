package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/segmentio/encoding/json"

	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/config"
	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/connection"
	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/dedup"
	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/dispatch"
	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/health"
	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/model"
)

var testAddr = "0x" + strings.Repeat("c", 40)

const fillData = `{"coin":"BTC","px":"65000.5","sz":"0.1","side":"A","time":1700000000000,
	"startPosition":"0","dir":"Open Long","closedPnl":"0","hash":"0xabc123","oid":42,
	"crossed":true,"fee":"1.2","tid":7,"feeToken":"USDC"}`

const orderData = `{"coin":"ETH","time":1700000000000,"placed":{"px":"3000","sz":"2","side":"B","oid":99}}`

// venue acknowledges subscriptions and replays frames after each ack.
type venue struct {
	mu       sync.Mutex
	conns    int
	requests map[string]int

	// silent drops subscribe requests without acknowledging them.
	silent bool
	// frames returns what to send after the ack for one stream type.
	frames func(streamType string) []string
}

func (v *venue) serve(t *testing.T) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()

		v.mu.Lock()
		v.conns++
		v.mu.Unlock()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req connection.Request
			if err := json.Unmarshal(data, &req); err != nil {
				continue
			}
			v.mu.Lock()
			if v.requests == nil {
				v.requests = make(map[string]int)
			}
			v.requests[req.Method]++
			v.mu.Unlock()

			if req.Method != "subscribe" || v.silent {
				continue
			}

			ack := fmt.Sprintf(`{"channel":"subscriptionResponse","data":{"method":"subscribe","subscription":{"type":%q,"user":%q}}}`,
				req.Subscription.Type, req.Subscription.User)
			conn.WriteMessage(websocket.TextMessage, []byte(ack))

			if v.frames != nil {
				for _, frame := range v.frames(req.Subscription.Type) {
					conn.WriteMessage(websocket.TextMessage, []byte(frame))
				}
			}
		}
	}))
}

func (v *venue) connCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.conns
}

func (v *venue) count(method string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.requests[method]
}

type fakeStore struct {
	mu     sync.Mutex
	fills  int
	orders int
}

func (s *fakeStore) StoreFill(ctx context.Context, fill model.RawFill) error {
	s.mu.Lock()
	s.fills++
	s.mu.Unlock()
	return nil
}

func (s *fakeStore) StoreOrder(ctx context.Context, update model.RawOrderUpdate, action model.OrderAction) error {
	s.mu.Lock()
	s.orders++
	s.mu.Unlock()
	return nil
}

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) counts() (fills, orders int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fills, s.orders
}

type fakeConsumer struct {
	mu     sync.Mutex
	events []model.TradeEvent
}

func (c *fakeConsumer) Name() string { return "fake" }

func (c *fakeConsumer) Notify(ctx context.Context, event model.TradeEvent) error {
	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()
	return nil
}

func (c *fakeConsumer) snapshot() []model.TradeEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.TradeEvent, len(c.events))
	copy(out, c.events)
	return out
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func testConfig(url string) Config {
	return Config{
		Manager: connection.ManagerConfig{
			Client: connection.ClientConfig{
				URL:              url,
				HandshakeTimeout: 5 * time.Second,
				PingInterval:     time.Minute,
				ReadTimeout:      time.Minute,
				WriteTimeout:     5 * time.Second,
				BufferSize:       100,
			},
			Addresses:         []string{testAddr},
			Categories:        model.DefaultCategories,
			ReconnectDelay:    20 * time.Millisecond,
			SubscribeTimeout:  5 * time.Second,
			MessageBufferSize: 100,
		},
		Health:        health.Config{CheckInterval: time.Hour, StaleWindow: time.Hour},
		PulseInterval: 50 * time.Millisecond,
		StopTimeout:   2 * time.Second,
	}
}

type harness struct {
	store    *fakeStore
	consumer *fakeConsumer
	monitor  *Monitor
}

func newHarness(cfg Config) *harness {
	h := &harness{store: &fakeStore{}, consumer: &fakeConsumer{}}
	pipeline := dispatch.NewPipeline(dispatch.Config{ConsumerTimeout: time.Second}, h.store,
		[]dispatch.Consumer{h.consumer}, nil)
	h.monitor = New(cfg, dedup.NewLedger(dedup.DefaultConfig()), pipeline, nil)
	return h
}

func stop(t *testing.T, m *Monitor) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.Stop(ctx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestMonitor_StartStop(t *testing.T) {
	v := &venue{}
	server := v.serve(t)
	defer server.Close()

	h := newHarness(testConfig(wsURL(server)))
	if got := h.monitor.State(); got != model.LifecycleStopped {
		t.Errorf("initial State = %v, want Stopped", got)
	}

	if err := h.monitor.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	st := h.monitor.Status()
	if st.State != model.LifecycleRunning {
		t.Errorf("State = %v, want Running", st.State)
	}
	if !st.Connected || st.Connection != model.StateActive {
		t.Errorf("Connected/Connection = %v/%v, want true/active", st.Connected, st.Connection)
	}
	if st.Subscriptions != 2 {
		t.Errorf("Subscriptions = %d, want 2", st.Subscriptions)
	}

	if err := h.monitor.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start = %v, want ErrAlreadyRunning", err)
	}

	stop(t, h.monitor)
	stop(t, h.monitor) // idempotent

	if got := h.monitor.State(); got != model.LifecycleStopped {
		t.Errorf("State after Stop = %v, want Stopped", got)
	}
}

// A fill replayed on both channels is stored and notified once.
func TestMonitor_ReplayedFillDeliveredOnce(t *testing.T) {
	v := &venue{
		frames: func(streamType string) []string {
			if streamType == string(model.CategoryUserFills) {
				frame := fmt.Sprintf(`{"channel":"userFills","data":{"user":%q,"fills":[%s]}}`, testAddr, fillData)
				return []string{frame, frame}
			}
			return []string{fmt.Sprintf(`{"channel":"user","data":{"fills":[%s]}}`, fillData)}
		},
	}
	server := v.serve(t)
	defer server.Close()

	h := newHarness(testConfig(wsURL(server)))
	if err := h.monitor.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer stop(t, h.monitor)

	waitFor(t, 2*time.Second, func() bool {
		return h.monitor.Status().Router.MessagesReceived >= 3
	})
	time.Sleep(50 * time.Millisecond)

	fills, _ := h.store.counts()
	if fills != 1 {
		t.Errorf("store calls = %d, want 1", fills)
	}
	events := h.consumer.snapshot()
	if len(events) != 1 {
		t.Fatalf("notifications = %d, want 1", len(events))
	}
	if events[0].Kind != model.KindFill || events[0].Address != testAddr {
		t.Errorf("event = %s/%s, want FILL/%s", events[0].Kind, events[0].Address, testAddr)
	}
	if got := h.monitor.Status().LedgerSize; got != 1 {
		t.Errorf("LedgerSize = %d, want 1", got)
	}
}

// An order placed just before shutdown is delivered and Stop leaves nothing
// subscribed.
func TestMonitor_OrderThenStop(t *testing.T) {
	v := &venue{
		frames: func(streamType string) []string {
			if streamType == string(model.CategoryUserEvents) {
				return []string{fmt.Sprintf(`{"channel":"user","data":{"orderUpdates":[%s]}}`, orderData)}
			}
			return nil
		},
	}
	server := v.serve(t)
	defer server.Close()

	h := newHarness(testConfig(wsURL(server)))
	if err := h.monitor.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return len(h.consumer.snapshot()) == 1 })
	if got := h.consumer.snapshot()[0].Kind; got != model.KindOrderPlaced {
		t.Errorf("Kind = %s, want ORDER_PLACED", got)
	}

	start := time.Now()
	stop(t, h.monitor)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Stop took %v, want under 1s", elapsed)
	}

	st := h.monitor.Status()
	if st.Subscriptions != 0 || st.Connected {
		t.Errorf("Subscriptions/Connected = %d/%v after Stop", st.Subscriptions, st.Connected)
	}
	waitFor(t, time.Second, func() bool { return v.count("unsubscribe") == 2 })
}

// A stale heartbeat with a healthy connection restarts the whole monitor.
func TestMonitor_StaleHeartbeatRestarts(t *testing.T) {
	v := &venue{}
	server := v.serve(t)
	defer server.Close()

	cfg := testConfig(wsURL(server))
	cfg.PulseInterval = time.Hour
	cfg.Health = health.Config{CheckInterval: 20 * time.Millisecond, StaleWindow: 100 * time.Millisecond}

	h := newHarness(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.monitor.Run(ctx) }()

	waitFor(t, 3*time.Second, func() bool {
		return v.connCount() >= 2 && h.monitor.Status().Restarts >= 1
	})

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if got := h.monitor.State(); got != model.LifecycleStopped {
		t.Errorf("State = %v, want Stopped", got)
	}
}

func TestMonitor_StopDuringStartup(t *testing.T) {
	v := &venue{silent: true}
	server := v.serve(t)
	defer server.Close()

	h := newHarness(testConfig(wsURL(server)))

	errCh := make(chan error, 1)
	go func() { errCh <- h.monitor.Start(context.Background()) }()

	waitFor(t, 2*time.Second, func() bool { return v.count("subscribe") >= 1 })
	if got := h.monitor.State(); got != model.LifecycleStarting {
		t.Errorf("State = %v, want Starting", got)
	}

	stop(t, h.monitor)

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrStopped) {
			t.Errorf("Start = %v, want ErrStopped", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
	if got := h.monitor.State(); got != model.LifecycleStopped {
		t.Errorf("State = %v, want Stopped", got)
	}
}

func TestMonitor_StartCancelled(t *testing.T) {
	v := &venue{silent: true}
	server := v.serve(t)
	defer server.Close()

	h := newHarness(testConfig(wsURL(server)))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := h.monitor.Start(ctx); !errors.Is(err, ErrStopped) {
		t.Errorf("Start = %v, want ErrStopped", err)
	}
	if got := h.monitor.State(); got != model.LifecycleStopped {
		t.Errorf("State = %v, want Stopped", got)
	}

	// Run treats cancellation as a clean exit.
	if err := h.monitor.Run(ctx); err != nil {
		t.Errorf("Run = %v, want nil", err)
	}
}

func TestMonitor_Restart(t *testing.T) {
	v := &venue{}
	server := v.serve(t)
	defer server.Close()

	h := newHarness(testConfig(wsURL(server)))
	if err := h.monitor.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer stop(t, h.monitor)

	if err := h.monitor.Restart(context.Background()); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}

	if got := v.connCount(); got != 2 {
		t.Errorf("connections = %d, want 2", got)
	}
	st := h.monitor.Status()
	if st.State != model.LifecycleRunning || st.Subscriptions != 2 {
		t.Errorf("State/Subscriptions = %v/%d, want Running/2", st.State, st.Subscriptions)
	}
	if st.Restarts != 1 {
		t.Errorf("Restarts = %d, want 1", st.Restarts)
	}
}

func TestConfigFrom(t *testing.T) {
	cfg := &config.Config{
		Venue: config.VenueConfig{
			Network:    config.NetworkTestnet,
			MainnetURL: "wss://main/ws",
			TestnetURL: "wss://test/ws",
			Addresses:  []string{testAddr},
			Categories: []string{"userFills"},
		},
		Connection: config.ConnectionConfig{
			ReconnectDelay:    time.Minute,
			SubscribeTimeout:  3 * time.Second,
			PingInterval:      40 * time.Second,
			MessageBufferSize: 50,
		},
		Health:   config.HealthConfig{CheckInterval: 10 * time.Second, PulseInterval: 5 * time.Second, StaleMultiple: 4},
		Dispatch: config.DispatchConfig{StopTimeout: 7 * time.Second},
	}

	got := ConfigFrom(cfg)

	if got.Manager.Client.URL != "wss://test/ws" {
		t.Errorf("URL = %s, want testnet endpoint", got.Manager.Client.URL)
	}
	if !strings.HasPrefix(got.Manager.Client.UserAgent, "hyperliquid-monitor/") {
		t.Errorf("UserAgent = %q", got.Manager.Client.UserAgent)
	}
	if len(got.Manager.Categories) != 1 || got.Manager.Categories[0] != model.CategoryUserFills {
		t.Errorf("Categories = %v, want [userFills]", got.Manager.Categories)
	}
	if got.Manager.ReconnectDelay != time.Minute || got.Manager.MessageBufferSize != 50 {
		t.Errorf("ReconnectDelay/MessageBufferSize = %v/%d", got.Manager.ReconnectDelay, got.Manager.MessageBufferSize)
	}
	if got.Health.StaleWindow != 40*time.Second {
		t.Errorf("StaleWindow = %v, want 40s", got.Health.StaleWindow)
	}
	if got.PulseInterval != 5*time.Second || got.StopTimeout != 7*time.Second {
		t.Errorf("PulseInterval/StopTimeout = %v/%v", got.PulseInterval, got.StopTimeout)
	}
}
