package events

import (
	"github.com/kelindar/event"
)

// Bus wraps a kelindar/event dispatcher for event broadcasting.
// A nil *Bus is valid and drops all publishes, so components can take
// an optional bus without nil checks at every call site.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers.
// Usage: bus.Publish(TaskEnqueuedEvent{...})
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	// kelindar/event is generic over the concrete type, so dispatch
	// through a type switch.
	switch e := ev.(type) {
	case ProcessSpawnedEvent:
		event.Publish(b.dispatcher, e)
	case ProcessExitedEvent:
		event.Publish(b.dispatcher, e)
	case RestartScheduledEvent:
		event.Publish(b.dispatcher, e)
	case SupervisorStoppedEvent:
		event.Publish(b.dispatcher, e)
	case TaskEnqueuedEvent:
		event.Publish(b.dispatcher, e)
	case TaskStartedEvent:
		event.Publish(b.dispatcher, e)
	case TaskCompletedEvent:
		event.Publish(b.dispatcher, e)
	case TaskFailedEvent:
		event.Publish(b.dispatcher, e)
	case ShutdownInitiatedEvent:
		event.Publish(b.dispatcher, e)
	case ShutdownCompletedEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes a handler function; the handler's parameter type
// determines which events it receives. Returns an unsubscribe function.
// Usage: unsub := bus.Subscribe(func(e TaskFailedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	if b == nil {
		return func() {}
	}
	switch h := handler.(type) {
	case func(ProcessSpawnedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ProcessExitedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(RestartScheduledEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SupervisorStoppedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(TaskEnqueuedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(TaskStartedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(TaskCompletedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(TaskFailedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ShutdownInitiatedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ShutdownCompletedEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}
