package core

import "context"

// Provider is the interface all item providers must implement.
type Provider interface {
	// Name returns the provider's identifier (e.g., "slot", "process").
	Name() string

	// List returns all items this provider currently knows about.
	List(ctx context.Context) ([]Item, error)

	// Action performs an action on the given item.
	// Supported actions depend on the provider (start, stop, restart, kill).
	Action(ctx context.Context, itemID string, action string) error
}

// Sink receives events produced by the supervisor and the tailer.
//
// Emit is fire-and-forget from the producer's point of view: producers log
// or drop a returned error and never retry. Implementations must be safe for
// concurrent use by multiple producers.
type Sink interface {
	Emit(topic string, payload any) error
}

// SinkFunc adapts a plain function to the Sink interface.
type SinkFunc func(topic string, payload any) error

// Emit calls f(topic, payload).
func (f SinkFunc) Emit(topic string, payload any) error {
	return f(topic, payload)
}

// Event topics.
const (
	TopicOutput     = "process.output"
	TopicTail       = "tail.event"
	TopicItemsDelta = "items.delta"
)
