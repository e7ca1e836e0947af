// Package promise provides a Future/Resolver pair for results that are
// produced after the call that asked for them has already returned.
//
// A Future is handed to the caller immediately. The matching Resolver may be
// used later from any goroutine to settle it exactly once. Every waiter on the
// same Future observes the same terminal outcome.
//
// # States
//
//	Pending ──Resolve──▶ Resolved
//	   │ ────Reject───▶ Rejected
//	   └─────Cancel───▶ Cancelled
//
// Cancellation is distinguishable from rejection: a cancelled Future reports
// an error for which errors.Is(err, ErrCancelled) holds. Attempts to settle a
// Future that is no longer pending are no-ops that return false and are
// logged as warnings when a logger was attached with WithLogger.
//
// Timeouts are layered on top of Await by the caller (AwaitTimeout,
// AwaitOrCancel) rather than built into the primitive.
package promise

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Errors reported by futures.
var (
	// ErrCancelled is the error carried by a cancelled future.
	ErrCancelled = errors.New("promise cancelled")

	// ErrNilRejection replaces a nil error passed to Reject.
	ErrNilRejection = errors.New("promise rejected without an error")
)

// State is the lifecycle state of a Future.
type State int32

const (
	// StatePending means the future has not settled yet.
	StatePending State = iota
	// StateResolved means the future settled with a value.
	StateResolved
	// StateRejected means the future settled with an error.
	StateRejected
	// StateCancelled means the future was cancelled while pending.
	StateCancelled
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateResolved:
		return "resolved"
	case StateRejected:
		return "rejected"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Option configures a future created by New.
type Option func(*options)

type options struct {
	log  hclog.Logger
	name string
}

// WithLogger attaches a logger that receives resolution-discipline warnings.
func WithLogger(l hclog.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

// WithName labels the future in log output.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// Future is the read side of a deferred result.
type Future[T any] struct {
	mu        sync.Mutex
	state     State
	value     T
	err       error
	done      chan struct{}
	callbacks []func()

	log  hclog.Logger
	name string
}

// Resolver is the write side of a deferred result.
type Resolver[T any] struct {
	f *Future[T]
}

// New creates a pending Future and the Resolver that settles it.
func New[T any](opts ...Option) (*Future[T], *Resolver[T]) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	f := &Future[T]{
		done: make(chan struct{}),
		log:  o.log,
		name: o.name,
	}
	return f, &Resolver[T]{f: f}
}

// Resolved returns a future that is already resolved with v.
func Resolved[T any](v T) *Future[T] {
	f, r := New[T]()
	r.Resolve(v)
	return f
}

// Rejected returns a future that is already rejected with err.
func Rejected[T any](err error) *Future[T] {
	f, r := New[T]()
	r.Reject(err)
	return f
}

// Resolve settles the future with v. It returns false if the future had
// already settled, in which case the call has no effect.
func (r *Resolver[T]) Resolve(v T) bool {
	return r.f.settle(StateResolved, v, nil, true)
}

// Reject settles the future with err. It returns false if the future had
// already settled, in which case the call has no effect.
func (r *Resolver[T]) Reject(err error) bool {
	if err == nil {
		err = ErrNilRejection
	}
	var zero T
	return r.f.settle(StateRejected, zero, err, true)
}

// Future returns the future this resolver settles.
func (r *Resolver[T]) Future() *Future[T] {
	return r.f
}

// Cancel settles a pending future as cancelled. It returns false when the
// future had already settled. Cancelling a settled future is not a
// discipline violation and is not logged.
func (f *Future[T]) Cancel() bool {
	var zero T
	return f.settle(StateCancelled, zero, ErrCancelled, false)
}

func (f *Future[T]) settle(state State, v T, err error, strict bool) bool {
	f.mu.Lock()
	if f.state != StatePending {
		prev := f.state
		f.mu.Unlock()
		if strict && f.log != nil {
			if prev == StateCancelled {
				f.log.Warn("settle after cancellation ignored", "future", f.name, "attempted", state)
			} else {
				f.log.Warn("future already settled", "future", f.name, "state", prev, "attempted", state)
			}
		}
		return false
	}
	f.state = state
	f.value = v
	f.err = err
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, cb := range callbacks {
		cb()
	}
	return true
}

// State returns the current state.
func (f *Future[T]) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Done returns a channel that is closed once the future settles.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Result returns the outcome without blocking. The final return value
// reports whether the future has settled.
func (f *Future[T]) Result() (T, error, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.err, f.state != StatePending
}

// Await blocks until the future settles or ctx is done. A done context does
// not cancel the future; other waiters keep waiting.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.outcome()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// AwaitOrCancel is Await, except that when ctx ends first the future itself
// is cancelled. If the future settled concurrently, that outcome wins.
func (f *Future[T]) AwaitOrCancel(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.outcome()
	case <-ctx.Done():
		if f.Cancel() {
			var zero T
			return zero, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		}
		return f.outcome()
	}
}

// AwaitTimeout waits at most d and cancels the future on expiry.
func (f *Future[T]) AwaitTimeout(d time.Duration) (T, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return f.AwaitOrCancel(ctx)
}

// AwaitAny is Await with the value boxed, for code that handles futures of
// differing element types.
func (f *Future[T]) AwaitAny(ctx context.Context) (any, error) {
	v, err := f.Await(ctx)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// OnSettle registers fn to run once the future settles. If it has already
// settled, fn runs immediately on the calling goroutine.
func (f *Future[T]) OnSettle(fn func()) {
	f.mu.Lock()
	if f.state == StatePending {
		f.callbacks = append(f.callbacks, fn)
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()
	fn()
}

func (f *Future[T]) outcome() (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.err
}

// Then returns a future settled by applying fn to the value of f. Rejection
// and cancellation of f are propagated without calling fn.
func Then[T, U any](f *Future[T], fn func(T) (U, error)) *Future[U] {
	next, r := New[U](WithLogger(f.log))
	f.OnSettle(func() {
		v, err := f.outcome()
		switch f.State() {
		case StateResolved:
			u, err := fn(v)
			if err != nil {
				r.Reject(err)
				return
			}
			r.Resolve(u)
		case StateCancelled:
			next.Cancel()
		default:
			r.Reject(err)
		}
	})
	next.OnSettle(func() {
		if next.State() == StateCancelled {
			f.Cancel()
		}
	})
	return next
}
