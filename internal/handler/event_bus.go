// internal/handler/event_bus.go
package handler

import (
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"servo-commissioning/internal/model"
)

// EventBus fans attempt events out to subscribers. Publishing never blocks
// the attempt that produced the event: slow subscribers miss events.
type EventBus struct {
	subscribers []chan model.AttemptEvent
	events      chan model.AttemptEvent
	mutex       sync.RWMutex
	closed      atomic.Bool
	logger      *zap.Logger
}

// NewEventBus creates a new event bus
func NewEventBus(logger *zap.Logger) *EventBus {
	return &EventBus{
		events: make(chan model.AttemptEvent, 1000),
		logger: logger,
	}
}

// Start distributes events until Close is called
func (eb *EventBus) Start() {
	for event := range eb.events {
		eb.distributeEvent(event)
	}

	eb.mutex.Lock()
	for _, subscriber := range eb.subscribers {
		close(subscriber)
	}
	eb.subscribers = nil
	eb.mutex.Unlock()
}

// PublishAttemptEvent queues an event for distribution
func (eb *EventBus) PublishAttemptEvent(event model.AttemptEvent) {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()

	if eb.closed.Load() {
		return
	}

	select {
	case eb.events <- event:
	default:
		if eb.logger != nil {
			eb.logger.Warn("Event bus full, dropping event",
				zap.String("event_type", string(event.Type)),
				zap.String("attempt_id", event.AttemptID.String()),
			)
		}
	}
}

// Subscribe returns a channel receiving every event. It is closed when the
// bus stops.
func (eb *EventBus) Subscribe() <-chan model.AttemptEvent {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	subscriber := make(chan model.AttemptEvent, 256)
	if eb.closed.Load() {
		close(subscriber)
		return subscriber
	}
	eb.subscribers = append(eb.subscribers, subscriber)
	return subscriber
}

// Close stops accepting events. Queued events are still delivered.
func (eb *EventBus) Close() {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	if eb.closed.Swap(true) {
		return
	}
	close(eb.events)
}

func (eb *EventBus) distributeEvent(event model.AttemptEvent) {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()

	for _, subscriber := range eb.subscribers {
		select {
		case subscriber <- event:
		default:
			// Subscriber is slow, skip
		}
	}
}
