package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rescale/rescale-upload/internal/constants"
)

// EventType defines the types of events that can be emitted
type EventType string

const (
	EventBatchStarted     EventType = "batch_started"     // Batch admitted, totals known
	EventFileProgress     EventType = "file_progress"     // Per-file percent/status update
	EventFileCompleted    EventType = "file_completed"    // One task reached a terminal state
	EventBatchFinished    EventType = "batch_finished"    // All workers joined
	EventNotification     EventType = "notification"      // One-off user-facing warning or summary
	EventDirectoryCreated EventType = "directory_created" // Materializer created a remote directory
	EventReload           EventType = "reload"            // Remote listing should be refreshed
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	EventType EventType `json:"type"`
	Time      time.Time `json:"time"`
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// NewBase stamps an event header with the current time.
func NewBase(t EventType) BaseEvent {
	return BaseEvent{EventType: t, Time: time.Now()}
}

// BatchEvent covers batch start, per-file completion and batch finish.
// Counters are post-increment snapshots.
type BatchEvent struct {
	BaseEvent
	BatchID   string `json:"batch_id"`
	Label     string `json:"label,omitempty"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
	Succeeded int    `json:"succeeded"`
	OK        *bool  `json:"ok,omitempty"`
}

// FileProgressEvent represents a per-file progress update
type FileProgressEvent struct {
	BaseEvent
	BatchID  string  `json:"batch_id"`
	FileName string  `json:"file"`
	Percent  float64 `json:"percent"`
	Status   string  `json:"status"`
}

// NotificationEvent is a one-off message for the user
type NotificationEvent struct {
	BaseEvent
	Icon  string `json:"icon"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// DirectoryEvent reports a materialized remote directory
type DirectoryEvent struct {
	BaseEvent
	Path     string `json:"path"`
	RemoteID string `json:"remote_id"`
}

// ReloadEvent tells listeners the remote listing changed
type ReloadEvent struct {
	BaseEvent
	BatchID string `json:"batch_id"`
}

// EventBus manages event subscriptions and publishing
type EventBus struct {
	subscribers   map[EventType][]chan Event
	all           []chan Event // Subscribers to all events
	mu            sync.RWMutex
	bufferSize    int
	closed        bool
	droppedEvents atomic.Int64 // Count of dropped events due to full buffers
}

// NewEventBus creates a new event bus with specified buffer size
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = constants.EventBusDefaultBuffer
	}
	if bufferSize > constants.EventBusMaxBuffer {
		bufferSize = constants.EventBusMaxBuffer
	}
	return &EventBus{
		subscribers: make(map[EventType][]chan Event),
		all:         make([]chan Event, 0),
		bufferSize:  bufferSize,
	}
}

// Subscribe creates a subscription to a specific event type
func (eb *EventBus) Subscribe(eventType EventType) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)
	return ch
}

// SubscribeAll creates a subscription to all events
func (eb *EventBus) SubscribeAll() <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.all = append(eb.all, ch)
	return ch
}

// Publish sends an event to all subscribers without blocking.
// Events for a full subscriber are dropped and counted.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}

	for _, ch := range eb.subscribers[event.Type()] {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}

	for _, ch := range eb.all {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}
}

// Close shuts down the event bus and closes all channels
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	eb.closed = true

	for _, channels := range eb.subscribers {
		for _, ch := range channels {
			close(ch)
		}
	}

	for _, ch := range eb.all {
		close(ch)
	}
}

// PublishNotification is a convenience method for publishing notification events
func (eb *EventBus) PublishNotification(icon, title, text string) {
	eb.Publish(&NotificationEvent{
		BaseEvent: NewBase(EventNotification),
		Icon:      icon,
		Title:     title,
		Text:      text,
	})
}

// PublishReload is a convenience method for publishing the reload signal
func (eb *EventBus) PublishReload(batchID string) {
	eb.Publish(&ReloadEvent{BaseEvent: NewBase(EventReload), BatchID: batchID})
}

// GetDroppedEventCount returns the total number of events dropped due to full buffers
func (eb *EventBus) GetDroppedEventCount() int64 {
	return eb.droppedEvents.Load()
}
