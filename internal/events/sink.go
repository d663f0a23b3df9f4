package events

import "github.com/kelindar/event"

// SubscribeToChannel forwards events of type T to a channel without
// blocking the publisher. Events are dropped when the channel is full;
// external sinks that need every event should buffer accordingly.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	if bus == nil {
		return func() {}
	}
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
			// Drop event if channel is full (non-blocking)
		}
	})
}
