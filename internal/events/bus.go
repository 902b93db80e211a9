package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting.
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
// Usage: bus.Publish(ChannelStateChangedEvent{...})
func (b *Bus) Publish(ev Event) {
	// kelindar/event dispatches on the static type, so switch to it first
	switch e := ev.(type) {
	case ChannelStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case TransferCompletedEvent:
		event.Publish(b.dispatcher, e)
	case FramesDroppedEvent:
		event.Publish(b.dispatcher, e)
	case RegistersWrittenEvent:
		event.Publish(b.dispatcher, e)
	case ChannelMetricsEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function.
// The handler type determines which events it receives.
// Returns an unsubscribe function.
// Usage: unsub := bus.Subscribe(func(e FramesDroppedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(ChannelStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(TransferCompletedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(FramesDroppedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(RegistersWrittenEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ChannelMetricsEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogEntryEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		// Unknown handler types get a no-op unsubscribe
		return func() {}
	}
}
