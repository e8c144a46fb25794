// Package async provides futures for handing operation results to callers
// running on a different execution context than the mutation path.
package async

import (
	"context"
	"sync"
)

// Future is the eventual result of an operation.
type Future[T any] struct {
	done  chan struct{}
	once  sync.Once
	value T
	err   error
}

// Go runs fn on a new goroutine and returns its future. fn keeps the values
// of ctx but not its cancellation, so it always runs to completion.
func Go[T any](ctx context.Context, fn func(context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	opCtx := context.WithoutCancel(ctx)
	go func() {
		v, err := fn(opCtx)
		f.complete(v, err)
	}()
	return f
}

func (f *Future[T]) complete(v T, err error) {
	f.once.Do(func() {
		f.value = v
		f.err = err
		close(f.done)
	})
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the result is available or ctx ends. Cancelling ctx
// abandons the wait only; the operation itself still runs to completion.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Then registers a continuation invoked with the result once available.
// The continuation runs on its own goroutine.
func (f *Future[T]) Then(fn func(T, error)) {
	go func() {
		<-f.done
		fn(f.value, f.err)
	}()
}
