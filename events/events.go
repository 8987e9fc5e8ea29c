// Package events carries execution lifecycle events from the executor to
// progress-reporting collaborators (websocket broadcasters, log sinks).
package events

import (
	"sync"
	"time"
)

// Name enumerates the lifecycle events one run can emit.
type Name string

const (
	DependencyAnalysisStart Name = "dependency_analysis_start"
	ExecutionPlanReady      Name = "execution_plan_ready"
	StageExecutionStart     Name = "stage_execution_start"
	StageExecutionComplete  Name = "stage_execution_complete"
	ExecutionComplete       Name = "execution_complete"
	ExecutionFailed         Name = "execution_failed"
	TransactionTimeout      Name = "transaction_timeout"
)

// Event is one lifecycle notification. Delivery to subscribers is
// at-most-once, best effort.
type Event struct {
	Name      Name           `json:"name"`
	CommandID string         `json:"command_id"`
	UserID    string         `json:"user_id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
	Timestamp time.Time      `json:"ts"`
}

// Subscriber receives events over a buffered channel.
type Subscriber chan Event

// Broadcaster fans events out to subscribers. Each executor owns its own
// instance; there is no package-level default, so tests stay isolated.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]struct{}
	buffer      int
}

// NewBroadcaster builds a broadcaster whose subscriber channels carry the
// given buffer (64 when <= 0).
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = 64
	}
	return &Broadcaster{
		subscribers: make(map[Subscriber]struct{}),
		buffer:      buffer,
	}
}

// Subscribe registers a new subscriber and returns its channel.
func (b *Broadcaster) Subscribe() Subscriber {
	ch := make(Subscriber, b.buffer)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	if _, ok := b.subscribers[sub]; ok {
		delete(b.subscribers, sub)
		close(sub)
	}
	b.mu.Unlock()
}

// Emit sends the event to every subscriber. Non-blocking: a subscriber with
// a full buffer misses the event rather than stalling the run.
func (b *Broadcaster) Emit(e Event) {
	if b == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subscribers {
		select {
		case sub <- e:
		default:
			// slow subscriber, drop
		}
	}
}

// SubscriberCount returns the current number of subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
