package eventsourcing

import (
	"context"
	"fmt"
	"sort"
)

// EventHandler processes a single Event. It is the unit of subscription for
// EventBus.Subscribe.
type EventHandler interface {
	Handle(ctx context.Context, event Event) error
}

// eventHandlerFunc adapts a plain function to EventHandler.
type eventHandlerFunc func(ctx context.Context, event Event) error

func (h eventHandlerFunc) Handle(ctx context.Context, event Event) error {
	return h(ctx, event)
}

// NewEventHandlerFunc builds an EventHandler from a function. It receives
// every event it is given; use OnEvent for type-filtered dispatch.
func NewEventHandlerFunc(fn func(ctx context.Context, event Event) error) EventHandler {
	return eventHandlerFunc(fn)
}

// typedEventHandler only handles events whose EventType matches name.
type typedEventHandler struct {
	name string
	fn   func(ctx context.Context, event Event) error
}

func (h *typedEventHandler) EventName() string { return h.name }

func (h *typedEventHandler) Handle(ctx context.Context, event Event) error {
	if event.EventType != h.name {
		return &ErrSkippedEvent{Event: event}
	}
	return h.fn(ctx, event)
}

// OnEvent builds an EventHandler that only invokes fn for events whose
// EventType equals eventType, returning ErrSkippedEvent otherwise. It is the
// building block for EventGroupProcessor.
func OnEvent(eventType string, fn func(ctx context.Context, event Event) error) EventHandler {
	return &typedEventHandler{name: eventType, fn: fn}
}

// EventGroupProcessor routes events to one of several typed handlers based
// on EventType, for subscribers that care about more than one event type on
// a single EventBus subscription.
type EventGroupProcessor struct {
	name     string
	handlers map[string]EventHandler
}

// NewEventGroupProcessor builds a group from handlers created via OnEvent.
// Panics if two handlers are registered for the same event type, or if a
// handler wasn't built via OnEvent.
func NewEventGroupProcessor(name string, handlers ...EventHandler) *EventGroupProcessor {
	m := make(map[string]EventHandler, len(handlers))
	for _, h := range handlers {
		named, ok := h.(interface{ EventName() string })
		if !ok {
			panic(fmt.Errorf("handler %T was not built with OnEvent", h))
		}
		eventType := named.EventName()
		if _, exists := m[eventType]; exists {
			panic(fmt.Errorf("duplicate handler for event %s: %w", eventType, ErrDuplicateHandler))
		}
		m[eventType] = h
	}
	return &EventGroupProcessor{name: name, handlers: m}
}

// Name returns the group's name, used for logging/metrics attribution.
func (p *EventGroupProcessor) Name() string { return p.name }

// Handle routes event to the handler registered for its EventType, or
// returns ErrSkippedEvent if none is registered.
func (p *EventGroupProcessor) Handle(ctx context.Context, event Event) error {
	h, ok := p.handlers[event.EventType]
	if !ok {
		return &ErrSkippedEvent{Event: event}
	}
	return h.Handle(ctx, event)
}

// StreamFilter returns the sorted list of event types this group handles.
func (p *EventGroupProcessor) StreamFilter() []string {
	out := make([]string, 0, len(p.handlers))
	for name := range p.handlers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
