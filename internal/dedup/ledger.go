package dedup

import (
	"container/list"
	"sync"
	"time"

	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/model"
)

// Config bounds the ledger. Zero values disable the respective bound.
type Config struct {
	Capacity int           // Max identities retained
	TTL      time.Duration // Max age of a retained identity
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Capacity: 100000,
		TTL:      24 * time.Hour,
	}
}

type entry struct {
	id         model.EventIdentity
	admittedAt time.Time
}

// Ledger remembers admitted identities. It is safe for concurrent use.
type Ledger struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	order   *list.List // oldest admission at the front
	entries map[model.EventIdentity]*list.Element
	evicted int64
}

// NewLedger creates an empty ledger.
func NewLedger(cfg Config) *Ledger {
	return &Ledger{
		cfg:     cfg,
		now:     time.Now,
		order:   list.New(),
		entries: make(map[model.EventIdentity]*list.Element),
	}
}

// Admit records id and returns true if it has not been admitted before (or
// has been evicted since). It returns false for a duplicate.
func (l *Ledger) Admit(id model.EventIdentity) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.expire(now)

	if _, ok := l.entries[id]; ok {
		return false
	}

	l.entries[id] = l.order.PushBack(entry{id: id, admittedAt: now})

	if l.cfg.Capacity > 0 {
		for l.order.Len() > l.cfg.Capacity {
			l.removeFront()
		}
	}
	return true
}

// Seen reports whether id is currently retained without admitting it.
func (l *Ledger) Seen(id model.EventIdentity) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.expire(l.now())
	_, ok := l.entries[id]
	return ok
}

// Len returns the number of retained identities.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.order.Len()
}

// Evicted returns how many identities have been dropped by either bound.
func (l *Ledger) Evicted() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.evicted
}

// expire drops entries older than the TTL. Admission times are monotonic in
// list order, so scanning stops at the first live entry.
func (l *Ledger) expire(now time.Time) {
	if l.cfg.TTL <= 0 {
		return
	}
	for {
		front := l.order.Front()
		if front == nil {
			return
		}
		if now.Sub(front.Value.(entry).admittedAt) < l.cfg.TTL {
			return
		}
		l.removeFront()
	}
}

func (l *Ledger) removeFront() {
	front := l.order.Front()
	if front == nil {
		return
	}
	l.order.Remove(front)
	delete(l.entries, front.Value.(entry).id)
	l.evicted++
}
