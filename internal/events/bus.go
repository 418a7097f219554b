package events

import (
	"log/slog"
	"sync"
	"time"
)

// Type identifies the kind of engine event.
type Type string

// Event types published by the booking engine.
const (
	SeriesCreated       Type = "series.created"
	SeriesUpdated       Type = "series.updated"
	SeriesCancelled     Type = "series.cancelled"
	InstanceCreated     Type = "instance.created"
	InstanceBooked      Type = "instance.booked"
	InstanceSkipped     Type = "instance.skipped"
	InstanceRescheduled Type = "instance.rescheduled"
	InstanceCompleted   Type = "instance.completed"
)

// Event describes a state change published to in-process subscribers such as
// notification senders.
type Event struct {
	Type       Type
	SeriesID   string
	InstanceID string
	OccurredAt time.Time
	Detail     map[string]string
}

// Handler consumes published events.
type Handler func(Event)

// Bus dispatches events to in-process subscribers. Delivery is synchronous,
// fire-and-forget and at-most-once from the engine's perspective; retry
// responsibility belongs to the subscriber.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
	logger   *slog.Logger
}

// NewBus constructs an event bus. A nil logger falls back to slog.Default.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger}
}

// Subscribe registers a handler for all future events.
func (b *Bus) Subscribe(handler Handler) {
	if b == nil || handler == nil {
		return
	}
	b.mu.Lock()
	b.handlers = append(b.handlers, handler)
	b.mu.Unlock()
}

// Publish delivers the event to every subscriber. A panicking subscriber is
// isolated and logged so it cannot take down the publisher or its peers.
func (b *Bus) Publish(event Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, handler := range handlers {
		b.dispatch(handler, event)
	}
}

func (b *Bus) dispatch(handler Handler, event Event) {
	defer func() {
		if p := recover(); p != nil {
			b.logger.Error("event subscriber panicked", "type", string(event.Type), "panic", p)
		}
	}()
	handler(event)
}
