package events

import (
	"sync"
	"time"
)

// Event types published during a training run.
const (
	RoundCompletedEventType  = "RoundCompleted"
	RunFinishedEventType     = "RunFinished"
	CheckpointSavedEventType = "CheckpointSaved"
)

// Event represents a generic event structure
type Event struct {
	Type      string
	Timestamp time.Time
	Data      interface{}
}

// RoundCompletedEvent is published after every finished global round.
type RoundCompletedEvent struct {
	Round          int
	Loss           float64
	Accuracy       float64
	LearningRate   float64
	SampledDevices []int
}

// RunFinishedEvent is published once when a training run stops.
type RunFinishedEvent struct {
	StopReason    string
	Rounds        int
	FinalLoss     float64
	FinalAccuracy float64
}

// CheckpointSavedEvent is published after the model has been written to disk.
type CheckpointSavedEvent struct {
	Path  string
	Round int
}

// EventBus represents the event bus that handles event subscription and
// dispatching. Publish blocks until every subscriber has taken the event.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[string][]chan<- Event
}

// NewEventBus creates a new instance of the event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[string][]chan<- Event),
	}
}

// Subscribe adds a new subscriber for a given event type
func (eb *EventBus) Subscribe(eventType string, subscriber chan<- Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// Publish sends an event to all subscribers of a given event type
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	subscribers := eb.subscribers[event.Type]
	eb.mu.RUnlock()

	for _, subscriber := range subscribers {
		subscriber <- event
	}
}
