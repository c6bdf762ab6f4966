// internal/events/stream.go
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// OwnershipEvent is published on every ownership-affecting transition.
// Delivery is best-effort; the persisted notification row is the source of
// truth.
type OwnershipEvent struct {
	UserID    uuid.UUID  `json:"user_id"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	ProductID *uuid.UUID `json:"product_id,omitempty"`
	TxHash    string     `json:"tx_hash,omitempty"`
}

type subscriber struct {
	ch       chan OwnershipEvent
	lastSeen time.Time
}

// StreamBroker owns the live-subscriber registry. Subscribers are keyed by
// user; entries are removed on Unsubscribe and swept when idle longer than
// the TTL, so a dropped connection cannot leak its slot.
type StreamBroker struct {
	mtx         sync.Mutex
	subscribers map[uuid.UUID]map[*subscriber]struct{}
	ttl         time.Duration
	done        chan struct{}
	closeOnce   sync.Once
}

func NewStreamBroker(ttl time.Duration) *StreamBroker {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	b := &StreamBroker{
		subscribers: make(map[uuid.UUID]map[*subscriber]struct{}),
		ttl:         ttl,
		done:        make(chan struct{}),
	}
	go b.sweep()
	return b
}

// Subscribe registers a listener for one user's events. The returned cancel
// function must be called when the connection closes.
func (b *StreamBroker) Subscribe(userID uuid.UUID) (<-chan OwnershipEvent, func()) {
	sub := &subscriber{
		ch:       make(chan OwnershipEvent, 16),
		lastSeen: time.Now(),
	}

	b.mtx.Lock()
	if b.subscribers[userID] == nil {
		b.subscribers[userID] = make(map[*subscriber]struct{})
	}
	b.subscribers[userID][sub] = struct{}{}
	b.mtx.Unlock()

	cancel := func() {
		b.mtx.Lock()
		defer b.mtx.Unlock()
		b.remove(userID, sub)
	}
	return sub.ch, cancel
}

// Publish delivers the event to every live subscriber of the target user.
// Slow subscribers are dropped rather than blocking the publisher.
func (b *StreamBroker) Publish(event OwnershipEvent) {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	for sub := range b.subscribers[event.UserID] {
		select {
		case sub.ch <- event:
			sub.lastSeen = time.Now()
		default:
			logrus.WithField("user_id", event.UserID).Warn("Dropping slow event subscriber")
			b.remove(event.UserID, sub)
		}
	}
}

// SubscriberCount reports live subscribers for a user.
func (b *StreamBroker) SubscriberCount(userID uuid.UUID) int {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	return len(b.subscribers[userID])
}

func (b *StreamBroker) Close() {
	b.closeOnce.Do(func() { close(b.done) })
}

// remove must be called with the mutex held.
func (b *StreamBroker) remove(userID uuid.UUID, sub *subscriber) {
	subs, ok := b.subscribers[userID]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	close(sub.ch)
	if len(subs) == 0 {
		delete(b.subscribers, userID)
	}
}

func (b *StreamBroker) sweep() {
	ticker := time.NewTicker(b.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			b.mtx.Lock()
			for userID, subs := range b.subscribers {
				for sub := range subs {
					if time.Since(sub.lastSeen) > b.ttl {
						b.remove(userID, sub)
					}
				}
			}
			b.mtx.Unlock()
		}
	}
}
