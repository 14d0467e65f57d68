// Package broadcaster manages subscribers and distributes entry events.
package broadcaster

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/jamesainslie/prefixhq/pkg/prefixhq/types"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 100

// EventType represents the type of entry event.
type EventType int

const (
	// EventScanned is sent once per scan pass after the entry set is published.
	EventScanned EventType = iota
	// EventEnriched carries late-arriving metadata for one entry.
	EventEnriched
	// EventChanged is sent when a user action changed one entry.
	EventChanged
	// EventRemoved is sent when an entry disappeared from the published set.
	EventRemoved
)

func (t EventType) String() string {
	switch t {
	case EventScanned:
		return "scanned"
	case EventEnriched:
		return "enriched"
	case EventChanged:
		return "changed"
	case EventRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Event is one notification. Entry is a copy the subscriber may keep.
type Event struct {
	Type   EventType
	AppID  types.AppID
	Entry  *types.ReconciledEntry
	Update *types.EntryUpdate
	Count  int
}

// Subscriber represents a consumer of entry events.
type Subscriber struct {
	ID string

	// AppIDs limits delivery to these entries; empty means all. Scan
	// events are always delivered.
	AppIDs map[types.AppID]bool
	Events chan *Event
}

// Broadcaster manages subscribers and distributes entry events.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	dropped     atomic.Int64
	closed      bool
}

// New creates a new Broadcaster.
func New() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[string]*Subscriber),
	}
}

// Subscribe creates a new subscription. With no ids every entry matches.
func (b *Broadcaster) Subscribe(ids ...types.AppID) *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	sub := &Subscriber{
		ID:     uuid.New().String(),
		Events: make(chan *Event, DefaultBuffer),
	}
	if len(ids) > 0 {
		sub.AppIDs = make(map[types.AppID]bool, len(ids))
		for _, id := range ids {
			sub.AppIDs[id] = true
		}
	}

	b.subscribers[sub.ID] = sub
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subscribers[id]; ok {
		close(sub.Events)
		delete(b.subscribers, id)
	}
}

// Publish sends an event to all matching subscribers without blocking.
// Subscribers that fall behind lose events.
func (b *Broadcaster) Publish(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, sub := range b.subscribers {
		if !matches(sub, event) {
			continue
		}
		select {
		case sub.Events <- event:
		default:
			// Channel full, event dropped
			b.dropped.Add(1)
		}
	}
}

// matches checks if an event matches a subscriber's filter.
func matches(sub *Subscriber, event *Event) bool {
	if event.Type == EventScanned || len(sub.AppIDs) == 0 {
		return true
	}
	return sub.AppIDs[event.AppID]
}

// Close closes the broadcaster and all subscriptions.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true
	for _, sub := range b.subscribers {
		close(sub.Events)
	}
	b.subscribers = make(map[string]*Subscriber)
}

// SubscriberCount returns the number of active subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Dropped returns how many events were discarded for slow subscribers.
func (b *Broadcaster) Dropped() int64 {
	return b.dropped.Load()
}
