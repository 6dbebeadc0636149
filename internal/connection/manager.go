package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"

	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/metrics"
	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/model"
)

// Manager owns the venue connection, the subscriptions riding on it and the
// reconnect loop.
type Manager interface {
	// Open connects and subscribes every configured address, retrying with
	// the fixed backoff until it succeeds or ctx is cancelled.
	Open(ctx context.Context) error

	// Connect opens a fresh client and makes it current. Any previous
	// connection is torn down first.
	Connect(ctx context.Context) (Client, error)

	// Subscribe registers address for each category on the current client
	// and waits for every acknowledgement.
	Subscribe(ctx context.Context, address string, categories []model.Category) ([]model.Subscription, error)

	// Teardown unsubscribes everything and closes the current client. It
	// never fails; see TeardownReport.
	Teardown() TeardownReport

	// Reconnect waits the fixed backoff, tears down and re-establishes the
	// full subscription set. Attempts repeat until success or cancellation.
	Reconnect(ctx context.Context) error

	// TriggerReconnect runs Reconnect in the background. It is a no-op while
	// a reconnect is already in flight.
	TriggerReconnect()

	// Shutdown marks the manager as shutting down, aborts any reconnect and
	// tears down. The manager cannot be reused afterwards.
	Shutdown(ctx context.Context) TeardownReport

	// Connected reports whether a live client is present.
	Connected() bool

	// State returns the connection state.
	State() model.ConnectionState

	// Subscriptions returns a snapshot of the active subscriptions.
	Subscriptions() []model.Subscription

	// Messages returns the bounded channel of data messages for the router.
	Messages() <-chan RawMessage

	// Stats returns current statistics.
	Stats() ManagerStats
}

// connState holds the state of one live client.
type connState struct {
	client Client
	done   chan struct{}
	once   sync.Once

	mu   sync.Mutex
	subs []model.Subscription

	// Acknowledgement correlation, keyed by subscription key
	pendingMu sync.Mutex
	pending   map[string]chan error
}

func (c *connState) close() {
	c.once.Do(func() { close(c.done) })
}

func (c *connState) addPending(key string) chan error {
	ch := make(chan error, 1)
	c.pendingMu.Lock()
	c.pending[key] = ch
	c.pendingMu.Unlock()
	return ch
}

func (c *connState) removePending(key string) {
	c.pendingMu.Lock()
	delete(c.pending, key)
	c.pendingMu.Unlock()
}

// resolvePending delivers a result to the waiter for key, if any.
func (c *connState) resolvePending(key string, err error) bool {
	c.pendingMu.Lock()
	ch, ok := c.pending[key]
	if ok {
		delete(c.pending, key)
	}
	c.pendingMu.Unlock()

	if ok {
		select {
		case ch <- err:
		default:
		}
	}
	return ok
}

// failPending delivers err to every waiter.
func (c *connState) failPending(err error) int {
	c.pendingMu.Lock()
	pending := c.pending
	c.pending = make(map[string]chan error)
	c.pendingMu.Unlock()

	for _, ch := range pending {
		select {
		case ch <- err:
		default:
		}
	}
	return len(pending)
}

func (c *connState) addSub(sub model.Subscription) {
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
}

func (c *connState) takeSubs() []model.Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	subs := c.subs
	c.subs = nil
	return subs
}

func (c *connState) snapshotSubs() []model.Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Subscription, len(c.subs))
	copy(out, c.subs)
	return out
}

// manager implements the Manager interface.
type manager struct {
	cfg    ManagerConfig
	logger *slog.Logger

	// Output to the router
	out chan RawMessage

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	connMu  sync.Mutex
	current *connState

	state        atomic.Int32
	reconnecting atomic.Bool
	reconnectMu  sync.Mutex

	reconnects atomic.Int64
	dropped    atomic.Int64
}

// NewManager creates a Subscription Manager bound to ctx. Cancelling ctx
// aborts every wait inside the manager.
func NewManager(ctx context.Context, cfg ManagerConfig, logger *slog.Logger) Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Categories) == 0 {
		cfg.Categories = model.DefaultCategories
	}
	if cfg.MessageBufferSize < 1 {
		cfg.MessageBufferSize = 1
	}

	m := &manager{
		cfg:    cfg,
		logger: logger.With("component", "subscription_manager"),
		out:    make(chan RawMessage, cfg.MessageBufferSize),
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.setState(model.StateDisconnected)
	return m
}

// Open performs the initial connect and subscribe.
func (m *manager) Open(ctx context.Context) error {
	ctx, cancel := m.bind(ctx)
	defer cancel()

	for attempt := 1; ; attempt++ {
		err := m.establish(ctx)
		if err == nil {
			m.logger.Info("subscriptions active",
				"addresses", len(m.cfg.Addresses),
				"categories", len(m.cfg.Categories),
				"attempt", attempt,
			)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		m.logger.Warn("initial connection failed",
			"attempt", attempt,
			"retry_in", m.cfg.ReconnectDelay,
			"error", err,
		)

		if err := m.wait(ctx); err != nil {
			return err
		}
	}
}

// Connect opens a fresh client and installs it as the current connection.
func (m *manager) Connect(ctx context.Context) (Client, error) {
	if m.shuttingDown() {
		return nil, ErrShuttingDown
	}

	// Never keep two live connections.
	m.Teardown()
	m.setState(model.StateConnecting)

	c := NewClient(m.cfg.Client, m.logger)
	if err := c.Connect(ctx); err != nil {
		m.setState(model.StateDisconnected)
		return nil, fmt.Errorf("connect %s: %w", m.cfg.Client.URL, err)
	}

	cs := &connState{
		client:  c,
		done:    make(chan struct{}),
		pending: make(map[string]chan error),
	}

	m.connMu.Lock()
	if m.shuttingDown() {
		m.connMu.Unlock()
		c.Close()
		return nil, ErrShuttingDown
	}
	m.current = cs
	m.connMu.Unlock()

	m.wg.Add(1)
	go m.readLoop(cs)

	return c, nil
}

// Subscribe registers address for each category on the current connection.
func (m *manager) Subscribe(ctx context.Context, address string, categories []model.Category) ([]model.Subscription, error) {
	cs := m.currentConn()
	if cs == nil {
		return nil, ErrNotConnected
	}

	subs := make([]model.Subscription, 0, len(categories))
	for _, cat := range categories {
		sub, err := m.subscribe(ctx, cs, address, cat)
		if err != nil {
			metrics.SubscribeFailuresTotal.Inc()
			return subs, fmt.Errorf("subscribe %s %s: %w", cat, address, err)
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// subscribe sends one subscribe request and waits for its acknowledgement.
func (m *manager) subscribe(ctx context.Context, cs *connState, address string, cat model.Category) (model.Subscription, error) {
	address = strings.ToLower(address)
	key := model.SubscriptionKey(address, cat)
	respCh := cs.addPending(key)
	defer cs.removePending(key)

	data, err := json.Marshal(Request{
		Method:       "subscribe",
		Subscription: &SubscriptionRequest{Type: string(cat), User: address},
	})
	if err != nil {
		return model.Subscription{}, err
	}
	if err := cs.client.Send(data); err != nil {
		return model.Subscription{}, err
	}

	timer := time.NewTimer(m.cfg.SubscribeTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return model.Subscription{}, ctx.Err()
	case <-cs.done:
		return model.Subscription{}, ErrNotConnected
	case <-timer.C:
		return model.Subscription{}, ErrTimeout
	case err := <-respCh:
		if err != nil {
			return model.Subscription{}, err
		}
	}

	sub := model.Subscription{
		ID:        uuid.New(),
		Address:   address,
		Category:  cat,
		CreatedAt: time.Now(),
	}
	cs.addSub(sub)

	m.logger.Debug("subscribed",
		"address", address,
		"category", cat,
		"subscription_id", sub.ID,
	)
	return sub, nil
}

// Teardown unsubscribes and closes the current connection.
func (m *manager) Teardown() (report TeardownReport) {
	m.connMu.Lock()
	cs := m.current
	m.current = nil
	m.connMu.Unlock()

	m.setState(model.StateDisconnected)

	if cs == nil {
		return report
	}
	report.Attempted = true

	defer func() {
		if p := recover(); p != nil {
			report.Errors = append(report.Errors, fmt.Errorf("teardown panic: %v", p))
		}
	}()

	subs := cs.takeSubs()
	report.Subscriptions = len(subs)

	if cs.client.IsConnected() {
		for _, sub := range subs {
			data, err := json.Marshal(Request{
				Method:       "unsubscribe",
				Subscription: &SubscriptionRequest{Type: string(sub.Category), User: sub.Address},
			})
			if err == nil {
				err = cs.client.Send(data)
			}
			if err != nil {
				report.Errors = append(report.Errors, fmt.Errorf("unsubscribe %s: %w", sub.Key(), err))
				continue
			}
			report.Unsubscribed++
		}
	} else if len(subs) > 0 {
		report.Errors = append(report.Errors, fmt.Errorf("unsubscribe %d subscriptions: %w", len(subs), ErrNotConnected))
	}

	cs.failPending(ErrNotConnected)
	cs.close()

	if err := cs.client.Close(); err != nil {
		report.Errors = append(report.Errors, fmt.Errorf("close client: %w", err))
	}
	report.ClientClosed = true

	m.logger.Debug("connection torn down",
		"subscriptions", report.Subscriptions,
		"unsubscribed", report.Unsubscribed,
		"errors", len(report.Errors),
	)
	return report
}

// Reconnect re-establishes the connection after the fixed backoff.
func (m *manager) Reconnect(ctx context.Context) error {
	m.reconnectMu.Lock()
	defer m.reconnectMu.Unlock()

	ctx, cancel := m.bind(ctx)
	defer cancel()

	for attempt := 1; ; attempt++ {
		m.logger.Info("reconnecting",
			"attempt", attempt,
			"delay", m.cfg.ReconnectDelay,
		)

		if err := m.wait(ctx); err != nil {
			return err
		}

		metrics.ReconnectAttemptsTotal.Inc()
		report := m.Teardown()
		if err := report.Err(); err != nil {
			m.logger.Debug("teardown before reconnect", "error", err)
		}

		err := m.establish(ctx)
		if err == nil {
			m.reconnects.Add(1)
			metrics.ReconnectsTotal.Inc()
			m.logger.Info("reconnected",
				"attempt", attempt,
				"addresses", len(m.cfg.Addresses),
			)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		m.logger.Warn("reconnect attempt failed",
			"attempt", attempt,
			"retry_in", m.cfg.ReconnectDelay,
			"error", err,
		)
	}
}

// TriggerReconnect starts a background reconnect unless one is in flight.
func (m *manager) TriggerReconnect() {
	if m.shuttingDown() || m.ctx.Err() != nil {
		return
	}
	switch m.State() {
	case model.StateConnecting, model.StateSubscribing:
		// The attempt in progress handles its own failure.
		m.logger.Debug("connection attempt in progress, reconnect not triggered")
		return
	}
	if !m.reconnecting.CompareAndSwap(false, true) {
		m.logger.Debug("reconnect already in progress")
		return
	}

	m.setState(model.StateDisconnected)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.reconnecting.Store(false)

		if err := m.Reconnect(m.ctx); err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Warn("reconnect aborted", "error", err)
		}
	}()
}

// Shutdown stops the manager for good.
func (m *manager) Shutdown(ctx context.Context) TeardownReport {
	m.state.Store(int32(model.StateShuttingDown))
	metrics.ConnectionState.Set(float64(model.StateShuttingDown))
	m.cancel()

	report := m.Teardown()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("shutdown timeout, abandoning manager goroutines")
		report.Errors = append(report.Errors, fmt.Errorf("wait for goroutines: %w", ctx.Err()))
	}

	m.logger.Info("subscription manager stopped",
		"unsubscribed", report.Unsubscribed,
		"errors", len(report.Errors),
	)
	return report
}

// Connected reports whether a live client is present.
func (m *manager) Connected() bool {
	cs := m.currentConn()
	return cs != nil && cs.client.IsConnected()
}

// State returns the connection state.
func (m *manager) State() model.ConnectionState {
	return model.ConnectionState(m.state.Load())
}

// Subscriptions returns the active subscriptions.
func (m *manager) Subscriptions() []model.Subscription {
	cs := m.currentConn()
	if cs == nil {
		return nil
	}
	return cs.snapshotSubs()
}

// Messages returns the output channel for the router.
func (m *manager) Messages() <-chan RawMessage {
	return m.out
}

// Stats returns current statistics.
func (m *manager) Stats() ManagerStats {
	return ManagerStats{
		State:         m.State(),
		Connected:     m.Connected(),
		Subscriptions: len(m.Subscriptions()),
		Reconnects:    m.reconnects.Load(),
		Dropped:       m.dropped.Load(),
	}
}

// establish connects and subscribes every address. Any failure tears the
// new connection down so no partial subscription set stays active.
func (m *manager) establish(ctx context.Context) error {
	if _, err := m.Connect(ctx); err != nil {
		return err
	}

	m.setState(model.StateSubscribing)
	for _, addr := range m.cfg.Addresses {
		if _, err := m.Subscribe(ctx, addr, m.cfg.Categories); err != nil {
			report := m.Teardown()
			m.logger.Warn("subscription set incomplete, discarding connection",
				"address", addr,
				"error", err,
				"teardown_errors", len(report.Errors),
			)
			return err
		}
	}

	m.setState(model.StateActive)
	return nil
}

// wait sleeps the fixed reconnect delay unless ctx is cancelled first.
func (m *manager) wait(ctx context.Context) error {
	timer := time.NewTimer(m.cfg.ReconnectDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// bind derives a context cancelled by either ctx or the manager's lifetime.
func (m *manager) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(m.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (m *manager) currentConn() *connState {
	m.connMu.Lock()
	defer m.connMu.Unlock()
	return m.current
}

func (m *manager) shuttingDown() bool {
	return m.State() == model.StateShuttingDown
}

// setState records s unless the manager is shutting down, which is terminal.
func (m *manager) setState(s model.ConnectionState) {
	for {
		cur := m.state.Load()
		if model.ConnectionState(cur) == model.StateShuttingDown {
			return
		}
		if m.state.CompareAndSwap(cur, int32(s)) {
			metrics.ConnectionState.Set(float64(s))
			return
		}
	}
}

// readLoop reads frames from one connection and routes them.
func (m *manager) readLoop(cs *connState) {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-cs.done:
			return

		case err := <-cs.client.Errors():
			if m.currentConn() != cs {
				return
			}
			m.logger.Warn("connection error", "error", err)
			cs.failPending(ErrNotConnected)
			m.TriggerReconnect()
			return

		case msg := <-cs.client.Messages():
			m.route(cs, msg)
		}
	}
}

// route dispatches one frame by channel.
func (m *manager) route(cs *connState, msg TimestampedMessage) {
	var env Envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		m.logger.Debug("unparseable frame", "error", err, "size", len(msg.Data))
		return
	}
	metrics.FramesReceivedTotal.WithLabelValues(env.Channel).Inc()

	switch env.Channel {
	case ChannelSubscriptionResponse:
		var resp SubscriptionResponse
		if err := json.Unmarshal(env.Data, &resp); err != nil {
			m.logger.Debug("unparseable subscription response", "error", err)
			return
		}
		if resp.Method != "subscribe" {
			return
		}
		key := model.SubscriptionKey(strings.ToLower(resp.Subscription.User), model.Category(resp.Subscription.Type))
		if !cs.resolvePending(key, nil) {
			m.logger.Debug("unsolicited subscription response", "key", key)
		}

	case ChannelPong:
		// Activity already recorded by the client.

	case ChannelError:
		m.handleVenueError(cs, errorText(env.Data))

	case ChannelUser, ChannelUserFills:
		raw := RawMessage{
			Channel:    env.Channel,
			Data:       env.Data,
			Address:    m.resolveAddress(env.Data),
			ReceivedAt: msg.ReceivedAt,
		}
		select {
		case m.out <- raw:
		default:
			m.dropped.Add(1)
			metrics.MessagesDroppedTotal.Inc()
			m.logger.Warn("message buffer full, dropping",
				"channel", env.Channel,
				"address", raw.Address,
			)
		}

	default:
		m.logger.Debug("unhandled channel", "channel", env.Channel)
	}
}

// handleVenueError reacts to an error frame. Rejections fail pending
// subscriptions; connection-level errors trigger a reconnect.
func (m *manager) handleVenueError(cs *connState, text string) {
	metrics.VenueErrorsTotal.Inc()
	m.logger.Warn("venue error", "message", text)

	lower := strings.ToLower(text)
	if strings.Contains(lower, "subscri") {
		if n := cs.failPending(fmt.Errorf("%w: %s", ErrSubscribeRejected, text)); n > 0 {
			return
		}
	}
	if strings.Contains(lower, "error") && strings.Contains(lower, "connection") {
		m.TriggerReconnect()
	}
}

// resolveAddress attributes a data message to a monitored address. The
// userFills channel names its user; the user channel does not, so it can only
// be attributed when a single address is monitored.
func (m *manager) resolveAddress(data json.RawMessage) string {
	var envelope struct {
		User string `json:"user"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.User != "" {
		return strings.ToLower(envelope.User)
	}
	if len(m.cfg.Addresses) == 1 {
		return m.cfg.Addresses[0]
	}
	return ""
}

func errorText(data json.RawMessage) string {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s
	}
	return string(data)
}
