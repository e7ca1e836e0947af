package rpc

import (
	"context"
	"fmt"
)

// Handler serves the methods of one capability.
//
// Invoke runs on the executor lane of its capability. A handler that cannot
// produce its result before returning may return an Awaitable (for example a
// *promise.Future); the reply is sent once it settles, without blocking later
// invocations of the same capability.
type Handler interface {
	Invoke(ctx context.Context, method string, args *Args) (any, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, method string, args *Args) (any, error)

// Invoke calls f.
func (f HandlerFunc) Invoke(ctx context.Context, method string, args *Args) (any, error) {
	return f(ctx, method, args)
}

// Awaitable is a deferred handler result.
type Awaitable interface {
	AwaitAny(ctx context.Context) (any, error)
	Done() <-chan struct{}
}

// MethodFunc serves one method.
type MethodFunc func(ctx context.Context, args *Args) (any, error)

// MethodTable is a Handler that routes by method name.
type MethodTable map[string]MethodFunc

// Invoke dispatches to the named method.
func (t MethodTable) Invoke(ctx context.Context, method string, args *Args) (any, error) {
	fn, ok := t[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMethodNotFound, method)
	}
	return fn(ctx, args)
}

func checkArity(args *Args, max int) error {
	if args.Len() > max {
		return fmt.Errorf("%w: got %d arguments, want at most %d", ErrInvalidParams, args.Len(), max)
	}
	return nil
}

// Method0 adapts a method without arguments.
func Method0(fn func(ctx context.Context) (any, error)) MethodFunc {
	return func(ctx context.Context, args *Args) (any, error) {
		if err := checkArity(args, 0); err != nil {
			return nil, err
		}
		return fn(ctx)
	}
}

// Method1 adapts a method with one decoded argument.
func Method1[A any](fn func(ctx context.Context, a A) (any, error)) MethodFunc {
	return func(ctx context.Context, args *Args) (any, error) {
		if err := checkArity(args, 1); err != nil {
			return nil, err
		}
		var a A
		if err := args.Decode(0, &a); err != nil {
			return nil, err
		}
		return fn(ctx, a)
	}
}

// Method2 adapts a method with two decoded arguments.
func Method2[A, B any](fn func(ctx context.Context, a A, b B) (any, error)) MethodFunc {
	return func(ctx context.Context, args *Args) (any, error) {
		if err := checkArity(args, 2); err != nil {
			return nil, err
		}
		var (
			a A
			b B
		)
		if err := decodeAll(args, &a, &b); err != nil {
			return nil, err
		}
		return fn(ctx, a, b)
	}
}

// Method3 adapts a method with three decoded arguments.
func Method3[A, B, C any](fn func(ctx context.Context, a A, b B, c C) (any, error)) MethodFunc {
	return func(ctx context.Context, args *Args) (any, error) {
		if err := checkArity(args, 3); err != nil {
			return nil, err
		}
		var (
			a A
			b B
			c C
		)
		if err := decodeAll(args, &a, &b, &c); err != nil {
			return nil, err
		}
		return fn(ctx, a, b, c)
	}
}

// Method4 adapts a method with four decoded arguments.
func Method4[A, B, C, D any](fn func(ctx context.Context, a A, b B, c C, d D) (any, error)) MethodFunc {
	return func(ctx context.Context, args *Args) (any, error) {
		if err := checkArity(args, 4); err != nil {
			return nil, err
		}
		var (
			a A
			b B
			c C
			d D
		)
		if err := decodeAll(args, &a, &b, &c, &d); err != nil {
			return nil, err
		}
		return fn(ctx, a, b, c, d)
	}
}

// Method5 adapts a method with five decoded arguments.
func Method5[A, B, C, D, E any](fn func(ctx context.Context, a A, b B, c C, d D, e E) (any, error)) MethodFunc {
	return func(ctx context.Context, args *Args) (any, error) {
		if err := checkArity(args, 5); err != nil {
			return nil, err
		}
		var (
			a A
			b B
			c C
			d D
			e E
		)
		if err := decodeAll(args, &a, &b, &c, &d, &e); err != nil {
			return nil, err
		}
		return fn(ctx, a, b, c, d, e)
	}
}

func decodeAll(args *Args, outs ...any) error {
	for i, out := range outs {
		if err := args.Decode(i, out); err != nil {
			return err
		}
	}
	return nil
}
