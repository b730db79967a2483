package app

import (
	"context"
	"sync"
)

// future memoizes one stage result. The first caller starts compute on its
// own goroutine; every caller waits for the result or for its own context.
type future[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
	err  error
}

func newFuture[T any]() *future[T] {
	return &future[T]{done: make(chan struct{})}
}

func (f *future[T]) get(ctx context.Context, compute func() (T, error)) (T, error) {
	f.once.Do(func() {
		go func() {
			defer close(f.done)
			f.val, f.err = compute()
		}()
	})

	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// resolved reports whether the stage has finished
func (f *future[T]) resolved() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}
