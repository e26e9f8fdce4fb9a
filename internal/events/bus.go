// Package events carries slot-invalidation signals from the booking path
// to calendar watchers. Events are cache-invalidation hints, not state:
// watchers re-fetch availability rather than patching from the payload, so
// delivery is best-effort and at-most-once per connected watcher.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	KindSlotBooked = "slot:booked"
	KindSlotFreed  = "slot:freed"
)

type Event struct {
	Kind      string    `json:"event"`
	DoctorID  uuid.UUID `json:"doctorId"`
	SlotStart time.Time `json:"slotStart"`
	Origin    string    `json:"origin,omitempty"`
}

// Publisher is what the booking service sees.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

const subscriberBuffer = 16

// Bus is the in-process subscription registry: doctor ID to the set of
// watcher channels. Sends never block; a watcher that cannot keep up loses
// events and recovers by re-fetching on its next signal or reconnect.
type Bus struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]map[chan Event]struct{}
}

func NewBus() *Bus {
	return &Bus{
		subs: make(map[uuid.UUID]map[chan Event]struct{}),
	}
}

// Subscribe registers a watcher for one doctor's calendar. The returned
// cancel func removes the watcher and closes its channel; it is safe to
// call more than once.
func (b *Bus) Subscribe(doctorID uuid.UUID) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	if b.subs[doctorID] == nil {
		b.subs[doctorID] = make(map[chan Event]struct{})
	}
	b.subs[doctorID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			watchers, ok := b.subs[doctorID]
			if !ok {
				return
			}
			delete(watchers, ch)
			if len(watchers) == 0 {
				delete(b.subs, doctorID)
			}
			close(ch)
		})
	}

	return ch, cancel
}

// Publish fans the event out to every current watcher of its doctor, in
// publish order. Watchers of other doctors see nothing.
func (b *Bus) Publish(_ context.Context, ev Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs[ev.DoctorID] {
		select {
		case ch <- ev:
		default:
			// Watcher buffer full; drop rather than block the booking path.
		}
	}
	return nil
}

// SubscriberCount returns the number of watchers for one doctor.
func (b *Bus) SubscriberCount(doctorID uuid.UUID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[doctorID])
}
