// Package events implements an in-process pub/sub broker for the
// structured lifecycle events newpkg emits while building, installing,
// upgrading, and removing packages (db_add, stage transitions,
// upgrade-failed, and so on). Grounded on cuemby-warren's pkg/events
// broker: a buffered channel fanned out to per-subscriber channels, kept
// non-blocking on a full subscriber buffer.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type identifies the kind of lifecycle event.
type Type string

const (
	TypeDBAdd           Type = "db_add"
	TypeDBRemove        Type = "db_remove"
	TypeStageStarted    Type = "stage_started"
	TypeStageCompleted  Type = "stage_completed"
	TypeStageFailed     Type = "stage_failed"
	TypeUpgradeStarted  Type = "upgrade_started"
	TypeUpgradeFailed   Type = "upgrade_failed"
	TypeUpgradeComplete Type = "upgrade_completed"
	TypeRemoveStarted   Type = "remove_started"
	TypeRemoveFailed    Type = "remove_failed"
	TypeRemoveComplete  Type = "remove_completed"
	TypeDepcleanOrphan  Type = "depclean_orphan"
	TypeHookRun         Type = "hook_run"
)

// Event is one structured occurrence, correlated to the driver run that
// produced it via CorrelationID (the stage runner stamps a fresh uuid per
// package Run).
type Event struct {
	ID            string
	Type          Type
	Timestamp     time.Time
	Package       string
	CorrelationID string
	Message       string
	Metadata      map[string]string
}

// Subscriber receives events published after it subscribes.
type Subscriber chan *Event

// Broker fans published events out to every live subscriber without
// blocking a slow one.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]bool
	eventCh     chan *Event
	stopCh      chan struct{}
	once        sync.Once
}

// NewBroker constructs a Broker ready to Start.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 256),
		stopCh:      make(chan struct{}),
	}
}

// Start launches the broadcast loop in its own goroutine.
func (b *Broker) Start() {
	go b.run()
}

// Stop halts the broadcast loop. Safe to call more than once.
func (b *Broker) Stop() {
	b.once.Do(func() { close(b.stopCh) })
}

// Subscribe returns a new channel that future Publish calls deliver to.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := make(Subscriber, 64)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe detaches and closes sub.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subscribers[sub] {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// Publish queues ev for broadcast, stamping ID/Timestamp if unset.
func (b *Broker) Publish(ev *Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	select {
	case b.eventCh <- ev:
	case <-b.stopCh:
	}
}

// New builds an Event with Type/Package/CorrelationID/Message set and an
// empty Metadata map ready for callers to populate.
func New(t Type, pkg, correlationID, message string) *Event {
	return &Event{
		Type:          t,
		Package:       pkg,
		CorrelationID: correlationID,
		Message:       message,
		Metadata:      make(map[string]string),
	}
}

func (b *Broker) run() {
	for {
		select {
		case ev := <-b.eventCh:
			b.broadcast(ev)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(ev *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subscribers {
		select {
		case sub <- ev:
		default:
		}
	}
}

// SubscriberCount reports the number of live subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
