package executor

import (
	"context"
)

// Future is the pending result of an asynchronous execution.
type Future struct {
	done   chan struct{}
	result []any
	err    error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) complete(result []any, err error) {
	f.result, f.err = result, err
	close(f.done)
}

// Done is closed once the result is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the execution finishes or ctx is done. Giving up on
// the wait does not cancel the execution; cancel the context passed to
// ExecuteAsync for that.
func (f *Future) Await(ctx context.Context) ([]any, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the outcome of a finished execution. ok is false while the
// execution is still running.
func (f *Future) Result() (result []any, err error, ok bool) {
	select {
	case <-f.done:
		return f.result, f.err, true
	default:
		return nil, nil, false
	}
}
