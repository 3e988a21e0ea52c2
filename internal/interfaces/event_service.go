package interfaces

import "context"

// EventType represents different event types in the system
type EventType string

const (
	// EventTestStatusChanged is published on every Test transition.
	// Payload: models.TestStatusEvent
	EventTestStatusChanged EventType = "test_status_changed"

	// EventStaleSweepCompleted is published after each sweep.
	// Payload: models.SweepResult
	EventStaleSweepCompleted EventType = "stale_sweep_completed"
)

// Event represents a system event
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// SubscriptionID identifies one Subscribe call. Zero is never issued.
type SubscriptionID uint64

// EventService manages pub/sub event bus
type EventService interface {
	// Subscribe to an event type. The returned id is the only way to
	// unsubscribe; handlers are not compared.
	Subscribe(eventType EventType, handler EventHandler) (SubscriptionID, error)

	// Unsubscribe removes the subscription id from an event type
	Unsubscribe(eventType EventType, id SubscriptionID) error

	// Publish an event to all subscribers
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes event and waits for all handlers to complete
	PublishSync(ctx context.Context, event Event) error

	// Close shuts down the event service
	Close() error
}
