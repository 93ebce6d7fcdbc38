package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/yuantus/backend/internal/domain/events"
	"github.com/yuantus/backend/internal/domain/models"
	"github.com/yuantus/backend/internal/domain/ports"
)

// EventType is an alias to the domain type
type EventType = events.EventType

// ProcessEventPayload accompanies process lifecycle events
type ProcessEventPayload struct {
	ProcessID string              `json:"process_id"`
	MapID     string              `json:"map_id"`
	ItemID    string              `json:"item_id"`
	State     models.ProcessState `json:"state"`
}

// TaskEventPayload accompanies task events
type TaskEventPayload struct {
	ProcessID string       `json:"process_id"`
	Task      *models.Task `json:"task"`
}

// StallEventPayload is the observable record of a dead-ended process
type StallEventPayload struct {
	ProcessID          string `json:"process_id"`
	ActivityInstanceID string `json:"activity_instance_id,omitempty"`
	Reason             string `json:"reason"`
}

// PromotionEventPayload reports the result of an automatic lifecycle promotion
type PromotionEventPayload struct {
	ProcessID string                `json:"process_id"`
	ItemID    string                `json:"item_id"`
	Result    *models.PromoteResult `json:"result"`
}

// PlatformEvent represents a platform event
type PlatformEvent struct {
	Type      EventType   `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp int64       `json:"timestamp"`
}

// EventHandler is a function that handles an event.
// Using the type from ports to ensure interface compatibility.
type EventHandler = ports.EventHandler

// subscription pairs a handler with the token its unsubscribe closure removes
type subscription struct {
	id      uint64
	handler EventHandler
}

// EventBus manages publish-subscribe event system.
// It implements ports.EventPublisher interface.
type EventBus struct {
	handlers map[EventType][]subscription
	nextID   uint64
	mu       sync.RWMutex
}

// Ensure EventBus implements ports.EventPublisher at compile time
var _ ports.EventPublisher = (*EventBus)(nil)

// NewEventBus creates a new EventBus instance
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]subscription),
	}
}

// Subscribe registers a handler for a specific event type
// Returns an unsubscribe function
func (eb *EventBus) Subscribe(eventType EventType, handler EventHandler) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.nextID++
	id := eb.nextID
	eb.handlers[eventType] = append(eb.handlers[eventType], subscription{id: id, handler: handler})

	// Return unsubscribe function
	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()

		subs := eb.handlers[eventType]
		for i, sub := range subs {
			if sub.id == id {
				eb.handlers[eventType] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
}

// Publish publishes an event to all registered handlers
func (eb *EventBus) Publish(ctx context.Context, eventType EventType, payload interface{}) error {
	eb.mu.RLock()
	subs := make([]subscription, len(eb.handlers[eventType]))
	copy(subs, eb.handlers[eventType])
	eb.mu.RUnlock()

	if len(subs) == 0 {
		return nil
	}

	event := PlatformEvent{
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now().Unix(),
	}

	// Execute handlers in sequence
	for _, sub := range subs {
		if err := sub.handler(ctx, event.Payload); err != nil {
			return fmt.Errorf("EventBus handler error for %s: %w", eventType, err)
		}
	}

	return nil
}

// PublishAsync publishes an event asynchronously
func (eb *EventBus) PublishAsync(eventType EventType, payload interface{}) {
	go func() {
		// Use background context for async events as they are decoupled from the request/tx
		if err := eb.Publish(context.Background(), eventType, payload); err != nil {
			log.Printf("EventBus async publish error: %v", err)
		}
	}()
}

// Clear removes all handlers (useful for testing)
func (eb *EventBus) Clear() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.handlers = make(map[EventType][]subscription)
}
