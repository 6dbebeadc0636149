package model

import (
	"time"

	"github.com/google/uuid"
)

// Category is a venue stream type that can be subscribed per address.
type Category string

const (
	CategoryUserEvents Category = "userEvents"
	CategoryUserFills  Category = "userFills"
)

// DefaultCategories are subscribed for every monitored address.
var DefaultCategories = []Category{CategoryUserEvents, CategoryUserFills}

// Subscription is one (address × category) registration on the live
// connection. It is discarded with the connection that carried it.
type Subscription struct {
	ID        uuid.UUID
	Address   string
	Category  Category
	CreatedAt time.Time
}

// Key identifies the subscription independently of its ID.
func (s Subscription) Key() string {
	return SubscriptionKey(s.Address, s.Category)
}

// SubscriptionKey builds the key used to match venue acknowledgements.
func SubscriptionKey(address string, category Category) string {
	return string(category) + ":" + address
}

// ConnectionState is the state of the venue connection.
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateSubscribing
	StateActive
	StateShuttingDown
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribing:
		return "subscribing"
	case StateActive:
		return "active"
	case StateShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// LifecycleState is the state of the monitor as a whole.
type LifecycleState int32

const (
	LifecycleStopped LifecycleState = iota
	LifecycleStarting
	LifecycleRunning
	LifecycleStopping
)

func (s LifecycleState) String() string {
	switch s {
	case LifecycleStopped:
		return "stopped"
	case LifecycleStarting:
		return "starting"
	case LifecycleRunning:
		return "running"
	case LifecycleStopping:
		return "stopping"
	default:
		return "unknown"
	}
}
