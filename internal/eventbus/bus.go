package eventbus

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

type EventType string

const (
	EventTaskCreated              EventType = "task.created"
	EventTaskUpdated              EventType = "task.updated"
	EventTaskDeleted              EventType = "task.deleted"
	EventAssignmentCreated        EventType = "assignment.created"
	EventAssignmentStatusChanged  EventType = "assignment.status_changed"
	EventAssignmentCompleted      EventType = "assignment.completed"
	EventAssignmentEvaluated      EventType = "assignment.evaluated"
	EventAssignmentProvisionAbort EventType = "assignment.provision_aborted"
	EventPaymentCompleted         EventType = "payment.completed"
	EventPaymentFailed            EventType = "payment.failed"
)

type Event struct {
	ID         string
	Type       EventType
	ResourceID string
	Metadata   map[string]string
	CreatedAt  time.Time
}

type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan *Event
	dropped     atomic.Int64
}

func New() *Bus {
	return &Bus{
		subscribers: make(map[string]chan *Event),
	}
}

func (b *Bus) Subscribe(bufSize int) (string, <-chan *Event) {
	id := ulid.Make().String()
	ch := make(chan *Event, bufSize)
	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

func (b *Bus) Publish(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// buffer full, drop event for this subscriber
			b.dropped.Add(1)
			slog.Warn("event dropped for slow subscriber",
				"subscriber_id", id,
				"event_type", event.Type,
				"resource_id", event.ResourceID,
			)
		}
	}
}

// Dropped counts deliveries skipped because a subscriber's buffer was full.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

func (b *Bus) PublishNew(eventType EventType, resourceID string, metadata map[string]string) {
	b.Publish(&Event{
		ID:         ulid.Make().String(),
		Type:       eventType,
		ResourceID: resourceID,
		Metadata:   metadata,
		CreatedAt:  time.Now(),
	})
}
