package rpc

import (
	"github.com/dshills/extbridge/internal/promise"
)

// RemoteProxy is the local stub for a capability served by the peer.
type RemoteProxy struct {
	p    *Protocol
	name Capability
}

// Name returns the capability name.
func (r *RemoteProxy) Name() Capability {
	return r.name
}

// Call invokes method on the peer. It returns immediately with a pending
// Future that settles when the reply arrives, when the connection closes or
// when the caller cancels it. Cancelling the Future tells the peer to stop
// working on the request.
func (r *RemoteProxy) Call(method string, args ...any) *promise.Future[Value] {
	return r.p.request(r.name, method, args)
}

// Notify invokes method on the peer without waiting for a reply.
func (r *RemoteProxy) Notify(method string, args ...any) error {
	return r.p.notify(r.name, method, args)
}

// Decoded maps a call result onto T.
func Decoded[T any](f *promise.Future[Value]) *promise.Future[T] {
	return promise.Then(f, func(v Value) (T, error) {
		var out T
		err := v.Decode(&out)
		return out, err
	})
}

// Discard maps a call result onto struct{}, for methods whose reply carries
// no value.
func Discard(f *promise.Future[Value]) *promise.Future[struct{}] {
	return promise.Then(f, func(Value) (struct{}, error) {
		return struct{}{}, nil
	})
}
