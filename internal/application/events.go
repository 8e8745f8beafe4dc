package application

import (
	"log/slog"
	"sync"
	"time"
)

const (
	EventServiceRegistered      = "service.registered"
	EventServiceUnregistered    = "service.unregistered"
	EventInstanceAdded          = "instance.added"
	EventInstanceRemoved        = "instance.removed"
	EventInstanceStatusChanged  = "instance.status_changed"
	EventBreakerStateChanged    = "breaker.state_changed"
	EventWorkflowSubmitted      = "workflow.submitted"
	EventWorkflowStepCompleted  = "workflow.step_completed"
	EventWorkflowCompleted      = "workflow.completed"
	EventWorkflowFailed         = "workflow.failed"
	EventWorkflowCanceled       = "workflow.canceled"
	EventCompensationFailed     = "workflow.compensation_failed"
)

type Event struct {
	Type       string            `json:"type"`
	ServiceID  string            `json:"service_id,omitempty"`
	InstanceID string            `json:"instance_id,omitempty"`
	WorkflowID string            `json:"workflow_id,omitempty"`
	Detail     map[string]string `json:"detail,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// EventBus is a process-local publish/subscribe fanout. Subscribers get an
// unsubscribe handle back; publishing never blocks, a full subscriber buffer
// drops the event for that subscriber only.
type EventBus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]chan Event
}

func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[int]chan Event)}
}

func (b *EventBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	ch := make(chan Event, buffer)
	b.subs[id] = ch
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
		b.mu.Unlock()
	}
	return ch, unsubscribe
}

func (b *EventBus) Publish(ev Event) {
	if b == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			slog.Debug("event dropped, subscriber buffer full", "type", ev.Type)
		}
	}
}
