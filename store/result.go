package store

import (
	"context"
	"sync"
)

// Result is the deferred outcome of a store operation. The operation is
// accepted when the Result is returned; Done is closed once its storage
// effect has completed or failed.
type Result struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newResult() *Result {
	return &Result{done: make(chan struct{})}
}

// completedResult returns a Result that is already done
func completedResult(err error) *Result {
	r := newResult()
	r.complete(err)
	return r
}

func (r *Result) complete(err error) {
	r.once.Do(func() {
		r.err = err
		close(r.done)
	})
}

// Done is closed when the operation has finished
func (r *Result) Done() <-chan struct{} {
	return r.done
}

// Err returns the error of a finished operation. It returns nil while the
// operation is still running.
func (r *Result) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Wait blocks until the operation finishes or ctx is done
func (r *Result) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
