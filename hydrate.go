package eventsourcing

// StateHandler mutates state in response to a single event type. It is the
// building block for Hydrate, which composes several into the Apply method
// of a domain-typed Aggregate.
type StateHandler struct {
	EventType string
	ApplyFunc func(state Values, event Event)
}

// OnState builds a StateHandler for a single event type.
func OnState(eventType string, fn func(state Values, event Event)) StateHandler {
	return StateHandler{EventType: eventType, ApplyFunc: fn}
}

// Hydrate composes a set of StateHandlers into a single apply function keyed
// by EventType, for use as a domain aggregate's Apply implementation. Event
// types without a registered handler are ignored (no-op), matching the
// "skip gracefully" behavior domain aggregates generally want for events
// introduced by newer code than the one replaying them.
func Hydrate(handlers ...StateHandler) func(state Values, event Event) {
	byType := make(map[string]func(Values, Event), len(handlers))
	for _, h := range handlers {
		byType[h.EventType] = h.ApplyFunc
	}
	return func(state Values, event Event) {
		if fn, ok := byType[event.EventType]; ok {
			fn(state, event)
		}
	}
}
