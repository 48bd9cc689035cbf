package workqueue

import (
	"context"
	"sync"
)

// AutoCancellingQueue is a FIFO queue whose entries each carry their own
// cancellation context. An entry that is still buffered when its
// context is done is withdrawn immediately, instead of sitting in the
// queue until a Take happens to reach it and discover it stale. This is
// what lets a ConsumerCore hold thousands of in-flight redelivery
// candidates without ever handing a canceled one to a worker.
type AutoCancellingQueue[T any] struct {
	mu      sync.Mutex
	items   []*acCell[T]
	waiters []*WorkItem[T]
	closed  bool
}

type acCell[T any] struct {
	value   T
	removed bool
}

// NewAutoCancellingQueue creates an empty AutoCancellingQueue.
func NewAutoCancellingQueue[T any]() *AutoCancellingQueue[T] {
	return &AutoCancellingQueue[T]{}
}

// Put appends v to the tail, associated with ctx. If ctx is already
// done, Put is a no-op and returns false. Otherwise it returns true even
// if ctx fires moments later and withdraws the entry before it is ever
// taken.
func (q *AutoCancellingQueue[T]) Put(ctx context.Context, v T) bool {
	return q.put(ctx, v, false)
}

// PutRetry re-enqueues v at the head of the queue instead of the tail,
// so a redelivery attempt is served before freshly Put entries.
func (q *AutoCancellingQueue[T]) PutRetry(ctx context.Context, v T) bool {
	return q.put(ctx, v, true)
}

func (q *AutoCancellingQueue[T]) put(ctx context.Context, v T, front bool) bool {
	if ctx.Err() != nil {
		return false
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	for len(q.waiters) > 0 {
		w := q.waiters[0]
		q.waiters = q.waiters[1:]
		if w.Succeed(v) {
			q.mu.Unlock()
			return true
		}
	}
	c := &acCell[T]{value: v}
	if front {
		q.items = append([]*acCell[T]{c}, q.items...)
	} else {
		q.items = append(q.items, c)
	}
	q.mu.Unlock()

	go func() {
		<-ctx.Done()
		q.withdraw(c)
	}()
	return true
}

func (q *AutoCancellingQueue[T]) withdraw(c *acCell[T]) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if c.removed {
		return
	}
	for i, x := range q.items {
		if x == c {
			q.items = append(q.items[:i], q.items[i+1:]...)
			c.removed = true
			return
		}
	}
}

// Close marks the queue closed: further Put calls fail, and pending
// waiters fail with ErrDisposed.
func (q *AutoCancellingQueue[T]) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	waiters := q.waiters
	q.waiters = nil
	q.mu.Unlock()
	for _, w := range waiters {
		w.Fail(ErrDisposed)
	}
}

// TakeAsync returns a WorkItem settling with the oldest surviving entry,
// Canceled if ctx is done first, or ErrDisposed if the queue is closed
// and empty.
func (q *AutoCancellingQueue[T]) TakeAsync(ctx context.Context) *WorkItem[T] {
	item := New[T]()

	q.mu.Lock()
	for len(q.items) > 0 {
		c := q.items[0]
		q.items = q.items[1:]
		if c.removed {
			continue
		}
		c.removed = true
		q.mu.Unlock()
		item.Succeed(c.value)
		return item
	}
	if q.closed {
		q.mu.Unlock()
		item.Fail(ErrDisposed)
		return item
	}
	if ctx.Err() != nil {
		q.mu.Unlock()
		item.MarkCanceled()
		return item
	}
	q.waiters = append(q.waiters, item)
	q.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			item.MarkCanceled()
		case <-item.Done():
		}
	}()
	return item
}

// Take blocks until an entry is available, ctx is done, or the queue is
// closed and drained.
func (q *AutoCancellingQueue[T]) Take(ctx context.Context) (T, error) {
	return q.TakeAsync(ctx).Wait(ctx)
}

// Len reports the number of surviving buffered entries.
func (q *AutoCancellingQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, c := range q.items {
		if !c.removed {
			n++
		}
	}
	return n
}
