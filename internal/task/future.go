package task

import "log/slog"

// Future is the single-resolution result of a function dispatched with Go.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Go runs fn on its own goroutine and returns a Future resolving to its
// result. The name labels the task in debug logs.
func Go[T any](name string, fn func() (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		slog.Debug("task started", slog.String("task", name))
		f.val, f.err = fn()
		if f.err != nil {
			slog.Debug("task failed", slog.String("task", name), slog.String("error", f.err.Error()))
			return
		}
		slog.Debug("task finished", slog.String("task", name))
	}()
	return f
}

// Wait blocks until the future resolves and returns its result. It may be
// called any number of times.
func (f *Future[T]) Wait() (T, error) {
	<-f.done
	return f.val, f.err
}

// Done returns a channel closed once the future has resolved.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}
