package outbox

import "context"

// Event is any domain event with a name identifier.
type Event interface {
	EventName() string
}

// Keyed events carry the key that orders them downstream, the order number
// for order events.
type Keyed interface {
	Event
	Key() string
}

// Handler processes a published event.
type Handler func(ctx context.Context, e Event) error

// Publisher publishes events to interested subscribers.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Subscriber registers handlers for event names.
type Subscriber interface {
	Subscribe(eventName string, h Handler)
}

// Sink forwards an event outside the process, e.g. to a message broker.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
