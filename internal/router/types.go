package router

import (
	"context"

	"github.com/segmentio/encoding/json"

	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/dispatch"
	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/model"
)

// Ledger admits each identity once.
type Ledger interface {
	Admit(id model.EventIdentity) bool
	Len() int
}

// Sink receives admitted events. Record persists without notifying.
type Sink interface {
	Dispatch(ctx context.Context, ev dispatch.Event)
	Record(ctx context.Context, ev dispatch.Event)
}

// Heartbeat is beaten once per processed message or pulse.
type Heartbeat interface {
	Beat()
}

// RouterStats contains runtime statistics.
type RouterStats struct {
	MessagesReceived int64
	Pulses           int64
	ParseErrors      int64
	Unattributed     int64
	Admitted         int64
	Duplicates       int64
	Malformed        int64
	Snapshots        int64
}

// Outcomes recorded in metrics.EventsTotal.
const (
	outcomeAdmitted     = "admitted"
	outcomeDuplicate    = "duplicate"
	outcomeMalformed    = "malformed"
	outcomeUnattributed = "unattributed"
	outcomeSnapshot     = "snapshot"
)

// kindOrder labels order updates whose action is not yet known.
const kindOrder model.EventKind = "ORDER"

// payloadWire is the data field of user and userFills messages. Items stay
// raw so one bad entry does not spoil the rest of the batch.
type payloadWire struct {
	IsSnapshot   bool              `json:"isSnapshot"`
	Fills        []json.RawMessage `json:"fills"`
	OrderUpdates []json.RawMessage `json:"orderUpdates"`
}
