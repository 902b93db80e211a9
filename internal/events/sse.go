package events

import "github.com/kelindar/event"

// SubscribeToChannel delivers events of type T into ch for the SSE handlers
// of /api/events and /api/logs/stream, which select over one channel per
// client. A client that falls behind the channel state and transfer stream
// loses events rather than stalling the device publishing them.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}
