package pubsub

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// DefaultQueueSize is the per-subscriber queue length used when none is given
const DefaultQueueSize = 256

var ErrClosed = errors.New("pubsub: hub is closed")

// Hub fans values out to any number of subscribers. Each subscriber owns a
// bounded queue; when it is full the oldest queued value is dropped, so a
// slow consumer never stalls Publish or its peers.
type Hub[T any] struct {
	mu        sync.RWMutex
	subs      map[uuid.UUID]*Subscription[T]
	queueSize int
	closed    bool
}

// Subscription is a single consumer of a Hub. C is closed on Unsubscribe or
// when the hub is closed.
type Subscription[T any] struct {
	ID uuid.UUID
	C  <-chan T

	ch      chan T
	mu      sync.Mutex // serialises sends and close
	closed  bool
	dropped atomic.Uint64
}

func NewHub[T any](queueSize int) *Hub[T] {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	return &Hub[T]{
		subs:      make(map[uuid.UUID]*Subscription[T]),
		queueSize: queueSize,
	}
}

// Subscribe registers a new subscriber. Subscribing to a closed hub returns
// a subscription whose channel is already closed.
func (h *Hub[T]) Subscribe() *Subscription[T] {
	ch := make(chan T, h.queueSize)
	sub := &Subscription[T]{ID: uuid.New(), C: ch, ch: ch}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		sub.close()
		return sub
	}

	h.subs[sub.ID] = sub
	return sub
}

// Unsubscribe removes the subscriber and closes its channel. Unknown or
// already removed subscriptions are ignored.
func (h *Hub[T]) Unsubscribe(sub *Subscription[T]) {
	if sub == nil {
		return
	}

	h.mu.Lock()
	delete(h.subs, sub.ID)
	h.mu.Unlock()

	sub.close()
}

// Publish delivers v to every subscriber without blocking
func (h *Hub[T]) Publish(v T) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return ErrClosed
	}

	for _, sub := range h.subs {
		sub.offer(v)
	}

	return nil
}

// Len returns the number of active subscribers
func (h *Hub[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.subs)
}

// Dropped returns the total number of values dropped across active subscribers
func (h *Hub[T]) Dropped() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var total uint64
	for _, sub := range h.subs {
		total += sub.Dropped()
	}
	return total
}

// Close closes every subscription. Further Publish calls return ErrClosed.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	for id, sub := range h.subs {
		sub.close()
		delete(h.subs, id)
	}
}

// Dropped returns how many values were discarded because the queue was full
func (s *Subscription[T]) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *Subscription[T]) offer(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	for {
		select {
		case s.ch <- v:
			return
		default:
		}

		// Queue is full: evict the oldest value and retry. The consumer may
		// have drained it concurrently, in which case nothing is lost.
		select {
		case <-s.ch:
			s.dropped.Add(1)
		default:
		}
	}
}

func (s *Subscription[T]) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
