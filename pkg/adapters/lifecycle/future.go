// Package lifecycle adapts the synchronous store API to asynchronous
// callers: futures for single operations and a lifecycle.Source for the
// change feed.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aretw0/lifecycle"
)

// ErrPanic wraps a panic raised by the function behind a Future.
var ErrPanic = errors.New("operation panicked")

// Future is the eventual result of a function started with Go.
type Future[T any] struct {
	done  chan struct{}
	once  sync.Once
	value T
	err   error
}

// Go runs fn in a tracked goroutine and returns its Future. A panic in fn
// resolves the Future with ErrPanic.
func Go[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	if err := ctx.Err(); err != nil {
		var zero T
		f.resolve(zero, err)
		return f
	}

	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				f.resolve(zero, fmt.Errorf("%w: %v", ErrPanic, r))
			}
		}()
		v, err := fn(ctx)
		f.resolve(v, err)
		return nil
	}, lifecycle.WithErrorHandler(func(err error) {
		var zero T
		f.resolve(zero, err)
	}))
	return f
}

// Resolved returns a Future that is already complete.
func Resolved[T any](v T, err error) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	f.resolve(v, err)
	return f
}

func (f *Future[T]) resolve(v T, err error) {
	f.once.Do(func() {
		f.value, f.err = v, err
		close(f.done)
	})
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the result is available or ctx is done. Giving up on
// the wait does not cancel the operation.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
