package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventRunStarted    = "run_started"
	EventRowPushed     = "row_pushed"
	EventRowPushFailed = "row_push_failed"
	EventRunCompleted  = "run_completed"
)

// RunEventPayload describes a run boundary for event consumers.
type RunEventPayload struct {
	RunID      string `json:"run_id"`
	Job        string `json:"job"`
	Candidates int    `json:"candidates,omitempty"`
	Succeeded  int    `json:"succeeded,omitempty"`
	Failed     int    `json:"failed,omitempty"`
}

// RowEventPayload describes a single push attempt's outcome.
type RowEventPayload struct {
	RunID    string `json:"run_id"`
	RowIndex int    `json:"row_index"`
	ItemID   string `json:"item_id"`
	Desired  int64  `json:"desired"`
	Baseline int64  `json:"baseline"`
	Result   string `json:"result"`
	Retried  bool   `json:"retried,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
