package queue

import (
	"context"
	"sync"
	"time"
)

// Task is one unit of rendering work: a payload, a caller-supplied
// identity used for deduplication and correlation, and a single-use
// completion slot. The queue and workers never look inside the payload.
type Task[P, R any] struct {
	Identity   string
	Payload    P
	EnqueuedAt time.Time

	handle *Handle[R]
	forget func() // releases the identity in the owning queue
}

// Handle returns the task's completion handle.
func (t *Task[P, R]) Handle() *Handle[R] {
	return t.handle
}

// Complete resolves the task successfully. Exactly one of Complete or
// Fail takes effect; later calls are ignored.
func (t *Task[P, R]) Complete(result R) {
	t.handle.resolve(result, nil)
	t.forget()
}

// Fail resolves the task with a typed failure.
func (t *Task[P, R]) Fail(err error) {
	var zero R
	t.handle.resolve(zero, err)
	t.forget()
}

// Handle is the one-shot completion slot of a task: exactly one writer
// (the worker) and any number of waiting readers on the caller side.
type Handle[R any] struct {
	done chan struct{}
	once sync.Once

	result R
	err    error
}

func newHandle[R any]() *Handle[R] {
	return &Handle[R]{done: make(chan struct{})}
}

// Done is closed once the task has resolved.
func (h *Handle[R]) Done() <-chan struct{} {
	return h.done
}

// Result blocks until the task resolves or the context expires, then
// returns the rendered output or the typed failure.
func (h *Handle[R]) Result(ctx context.Context) (R, error) {
	select {
	case <-h.done:
		return h.result, h.err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}

// resolve fills the slot. Only the first call has any effect.
func (h *Handle[R]) resolve(result R, err error) {
	h.once.Do(func() {
		h.result = result
		h.err = err
		close(h.done)
	})
}
