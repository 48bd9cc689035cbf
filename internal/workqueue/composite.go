package workqueue

import (
	"context"
	"errors"
	"sync"
)

// CompositeWorkQueue presents several WorkQueue[T] children as one fair
// FIFO. Round-robin scanning means no single busy child can starve the
// others -- this backs ProducerCore's pump, which takes broker ack/nack/
// return events and publish events from two WorkQueues without ever
// letting one dominate the other.
type CompositeWorkQueue[T any] struct {
	mu       sync.Mutex
	children []*WorkQueue[T]
	next     int
}

// NewCompositeWorkQueue creates a composite over the given children.
// Children can be added or removed later with AddChild/RemoveChild.
func NewCompositeWorkQueue[T any](children ...*WorkQueue[T]) *CompositeWorkQueue[T] {
	return &CompositeWorkQueue[T]{children: append([]*WorkQueue[T]{}, children...)}
}

// AddChild registers another queue to poll.
func (c *CompositeWorkQueue[T]) AddChild(q *WorkQueue[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.children = append(c.children, q)
}

// RemoveChild stops polling q.
func (c *CompositeWorkQueue[T]) RemoveChild(q *WorkQueue[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, ch := range c.children {
		if ch == q {
			c.children = append(c.children[:i], c.children[i+1:]...)
			if c.next > i {
				c.next--
			}
			return
		}
	}
}

// TakeAsync returns a WorkItem that settles with the next value from
// whichever child produces one first. When several children already
// hold buffered items, the child least recently served wins.
func (c *CompositeWorkQueue[T]) TakeAsync(ctx context.Context) *WorkItem[T] {
	result := New[T]()

	c.mu.Lock()
	children := append([]*WorkQueue[T]{}, c.children...)
	start := c.next
	c.mu.Unlock()

	n := len(children)
	if n == 0 {
		result.Fail(ErrDisposed)
		return result
	}

	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if children[idx].Len() > 0 {
			c.mu.Lock()
			c.next = (idx + 1) % n
			c.mu.Unlock()
			return children[idx].TakeAsync(ctx)
		}
	}

	// Nothing buffered anywhere: race a wait on every child, cancel the
	// losers once the first one produces a value. A child's TakeAsync has
	// already removed the value from that child by the time its WorkItem
	// settles, so a loser that also settled with a real value (two Puts
	// landed before cancel propagated) must have it re-offered to its
	// child instead of dropped.
	raceCtx, cancel := context.WithCancel(ctx)
	waits := make([]*WorkItem[T], n)
	for i, ch := range children {
		waits[i] = ch.TakeAsync(raceCtx)
	}
	winner := make(chan int, 1)
	for i, w := range waits {
		i, w := i, w
		go func() {
			<-w.Done()
			select {
			case winner <- i:
				cancel()
				v, err := w.Result()
				switch {
				case err == nil:
					result.Succeed(v)
				case errors.Is(err, ErrCanceled):
					result.MarkCanceled()
				default:
					result.Fail(err)
				}
			default:
				if v, err := w.Result(); err == nil {
					children[i].Put(v)
				}
			}
		}()
	}
	return result
}

// Take blocks until a value is available or ctx is done, in which case
// it returns ErrCanceled.
func (c *CompositeWorkQueue[T]) Take(ctx context.Context) (T, error) {
	item := c.TakeAsync(ctx)
	<-item.Done()
	return item.Result()
}
