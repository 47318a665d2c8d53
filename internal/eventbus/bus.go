// Package eventbus fans events out to in-process subscribers without ever
// blocking the publisher.
//
// Every subscriber owns a bounded RingChannel. Publish copies the event into
// each ring in subscription order; a subscriber that falls behind loses its
// oldest undelivered events, never the publisher's time. Late subscribers do
// not see earlier events.
package eventbus

import (
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// DefaultBuffer is the per-subscriber queue length used when none is given
const DefaultBuffer = 64

// Subscription is one subscriber's view of a Bus.
type Subscription[T any] struct {
	id   uint64
	ring *RingChannel[T]
}

// ID returns the subscription identifier, unique within its Bus
func (s *Subscription[T]) ID() uint64 {
	return s.id
}

// C returns the event stream. It is closed by Unsubscribe or Bus.Close.
func (s *Subscription[T]) C() <-chan T {
	return s.ring.C()
}

// Dropped returns how many events were discarded because the queue was full
func (s *Subscription[T]) Dropped() int64 {
	return s.ring.GetMetrics().Overwritten
}

// Bus is a publish/subscribe hub with drop-oldest per-subscriber queues.
type Bus[T any] struct {
	mu     sync.Mutex
	subs   *orderedmap.OrderedMap[uint64, *Subscription[T]]
	nextID uint64
	closed bool
}

// New creates an empty bus
func New[T any]() *Bus[T] {
	return &Bus[T]{subs: orderedmap.New[uint64, *Subscription[T]]()}
}

// Subscribe registers a subscriber with a queue of buffer events.
// On a closed bus the returned subscription's channel is already closed.
func (b *Bus[T]) Subscribe(buffer int) *Subscription[T] {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription[T]{id: b.nextID, ring: NewRingChannel[T](buffer)}
	if b.closed {
		sub.ring.Close()
		return sub
	}
	b.subs.Set(sub.id, sub)
	return sub
}

// Unsubscribe removes sub and closes its channel. Repeated calls are no-ops.
func (b *Bus[T]) Unsubscribe(sub *Subscription[T]) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs.Delete(sub.id); ok {
		sub.ring.Close()
	}
}

// Publish hands v to every current subscriber and returns the number of
// subscribers that had to drop an older event to make room.
func (b *Bus[T]) Publish(v T) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0
	}

	overflowed := 0
	for pair := b.subs.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.ring.ForceSend(v) {
			overflowed++
		}
	}
	return overflowed
}

// Len returns the number of registered subscribers
func (b *Bus[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subs.Len()
}

// Close unregisters every subscriber and closes their channels.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for pair := b.subs.Oldest(); pair != nil; pair = pair.Next() {
		pair.Value.ring.Close()
	}
	b.subs = orderedmap.New[uint64, *Subscription[T]]()
}
