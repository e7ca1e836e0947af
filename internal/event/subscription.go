package event

import (
	"sync"
	"sync/atomic"
)

// SubscriptionState represents the state of a subscription.
type SubscriptionState int32

const (
	// SubscriptionStateActive means the subscription is receiving events.
	SubscriptionStateActive SubscriptionState = iota

	// SubscriptionStatePaused means the subscription is temporarily not receiving events.
	SubscriptionStatePaused

	// SubscriptionStateCancelled means the subscription has been permanently cancelled.
	SubscriptionStateCancelled
)

// String returns a human-readable state name.
func (s SubscriptionState) String() string {
	switch s {
	case SubscriptionStateActive:
		return "active"
	case SubscriptionStatePaused:
		return "paused"
	case SubscriptionStateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// DeliveryMode selects where a handler runs.
type DeliveryMode int

const (
	// DeliverySync runs the handler on the publisher's goroutine.
	DeliverySync DeliveryMode = iota

	// DeliveryAsync runs the handler on the subscription's own goroutine.
	DeliveryAsync
)

// Subscription represents an active subscription to one topic.
type Subscription interface {
	// ID returns the subscription identifier, unique within its topic.
	ID() uint64

	// Topic returns the name of the subscribed topic.
	Topic() string

	// State returns the current subscription state.
	State() SubscriptionState

	// Pause temporarily stops event delivery to this subscription.
	Pause()

	// Resume restarts event delivery after a pause.
	Resume()

	// Cancel permanently cancels the subscription.
	Cancel()
}

// SubscriptionConfig contains configuration for a subscription.
type SubscriptionConfig[T any] struct {
	// DeliveryMode specifies sync or async delivery.
	DeliveryMode DeliveryMode

	// Filter is an optional predicate; events are delivered only if it
	// returns true.
	Filter func(T) bool

	// Once cancels the subscription after the first delivered event.
	Once bool
}

// SubscriptionOption configures a subscription.
type SubscriptionOption[T any] func(*SubscriptionConfig[T])

// WithDeliveryMode sets the delivery mode.
func WithDeliveryMode[T any](m DeliveryMode) SubscriptionOption[T] {
	return func(c *SubscriptionConfig[T]) {
		c.DeliveryMode = m
	}
}

// WithFilter sets a filter predicate.
func WithFilter[T any](f func(T) bool) SubscriptionOption[T] {
	return func(c *SubscriptionConfig[T]) {
		c.Filter = f
	}
}

// WithOnce cancels the subscription after the first delivered event.
func WithOnce[T any]() SubscriptionOption[T] {
	return func(c *SubscriptionConfig[T]) {
		c.Once = true
	}
}

// subscription is the implementation of Subscription.
type subscription[T any] struct {
	id      uint64
	topic   *Topic[T]
	handler func(T)
	config  SubscriptionConfig[T]
	state   atomic.Int32
	fired   atomic.Bool

	// async delivery
	mu      sync.Mutex
	queue   []T
	wake    chan struct{}
	stopped chan struct{}
}

// ID returns the subscription ID.
func (s *subscription[T]) ID() uint64 {
	return s.id
}

// Topic returns the topic name.
func (s *subscription[T]) Topic() string {
	return s.topic.name
}

// State returns the current subscription state.
func (s *subscription[T]) State() SubscriptionState {
	return SubscriptionState(s.state.Load())
}

// Pause temporarily stops event delivery.
func (s *subscription[T]) Pause() {
	s.state.CompareAndSwap(int32(SubscriptionStateActive), int32(SubscriptionStatePaused))
}

// Resume restarts event delivery.
func (s *subscription[T]) Resume() {
	s.state.CompareAndSwap(int32(SubscriptionStatePaused), int32(SubscriptionStateActive))
}

// Cancel permanently cancels the subscription and removes it from its topic.
func (s *subscription[T]) Cancel() {
	s.topic.Unsubscribe(s)
}

// cancel marks the subscription cancelled and stops its async worker. It
// reports whether this call did the cancellation.
func (s *subscription[T]) cancel() bool {
	if SubscriptionState(s.state.Swap(int32(SubscriptionStateCancelled))) == SubscriptionStateCancelled {
		return false
	}
	if s.stopped != nil {
		close(s.stopped)
	}
	return true
}

// shouldDeliver reports whether v should be delivered.
func (s *subscription[T]) shouldDeliver(v T) bool {
	if s.State() != SubscriptionStateActive {
		return false
	}
	if s.config.Filter != nil && !s.config.Filter(v) {
		return false
	}
	return true
}

// enqueue queues v for the async worker.
func (s *subscription[T]) enqueue(v T) {
	s.mu.Lock()
	s.queue = append(s.queue, v)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription[T]) run() {
	for {
		select {
		case <-s.wake:
		case <-s.stopped:
			return
		}
		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			v := s.queue[0]
			var zero T
			s.queue[0] = zero
			s.queue = s.queue[1:]
			s.mu.Unlock()

			if s.State() == SubscriptionStateCancelled {
				return
			}
			s.topic.invoke(s, v)
			if s.config.Once {
				s.topic.Unsubscribe(s)
				return
			}
		}
	}
}
