// Package events provides the in-process event bus connecting the proposal
// store and position tracker to the websocket layer.
package events

import (
	"sync"
	"time"
)

// EventType represents the engine events published on the bus
type EventType string

const (
	EventProposalCreated  EventType = "PROPOSAL_CREATED"
	EventProposalApproved EventType = "PROPOSAL_APPROVED"
	EventProposalRejected EventType = "PROPOSAL_REJECTED"
	EventProposalEdited   EventType = "PROPOSAL_EDITED"
	EventProposalRepriced EventType = "PROPOSAL_REPRICED"
	EventPositionOpened   EventType = "POSITION_OPENED"
	EventPositionClosed   EventType = "POSITION_CLOSED"
	EventMarkUpdate       EventType = "MARK_UPDATE"
	EventQualityReport    EventType = "QUALITY_REPORT"
	EventError            EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all matching subscribers. Delivery is
// synchronous; slow subscribers should hand off to their own goroutine.
func (eb *EventBus) Publish(eventType EventType, data map[string]interface{}) {
	event := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	eb.mu.RLock()
	subs := append([]Subscriber(nil), eb.subscribers[eventType]...)
	subs = append(subs, eb.allSubs...)
	eb.mu.RUnlock()

	for _, sub := range subs {
		sub(event)
	}
}
