// Package realtime is the push-subscription layer: lifecycle and position
// changes are published to topics, dashboards subscribe over WebSocket.
// Subscriptions are explicit handles and must be released when the consumer
// goes away.
package realtime

import (
	"fmt"
	"sync"
)

// Event is one push update. Type names the change ("duty.started",
// "position", ...), Data carries the document fields consumers render.
type Event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Topics.
const (
	TopicFleet = "fleet" // every position + duty change, admin dashboards
)

// DriverTopic is the per-driver event stream (duty changes and tracking
// signals for that driver's device).
func DriverTopic(driverID uint) string {
	return fmt.Sprintf("driver.%d", driverID)
}

// Broker fans events out to subscribers. Implemented in-memory and over
// Redis Pub/Sub for multi-instance deployments.
type Broker interface {
	Subscribe(topic string) chan Event
	Unsubscribe(topic string, ch chan Event)
	Publish(topic string, evt Event)
}

// MemoryBroker is the single-instance Broker.
type MemoryBroker struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: map[string]map[chan Event]struct{}{}}
}

func (b *MemoryBroker) Subscribe(topic string) chan Event {
	ch := make(chan Event, 8)
	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = map[chan Event]struct{}{}
	}
	b.subs[topic][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *MemoryBroker) Unsubscribe(topic string, ch chan Event) {
	b.mu.Lock()
	if m := b.subs[topic]; m != nil {
		if _, ok := m[ch]; ok {
			delete(m, ch)
			close(ch)
		}
		if len(m) == 0 {
			delete(b.subs, topic)
		}
	}
	b.mu.Unlock()
}

// Publish never blocks; a slow subscriber drops events. Position and duty
// updates are supersede-able, only the latest matters.
func (b *MemoryBroker) Publish(topic string, evt Event) {
	b.mu.Lock()
	for ch := range b.subs[topic] {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.Unlock()
}
