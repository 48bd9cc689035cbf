package workqueue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompositeWorkQueue_RoundRobinsAcrossReadyChildren(t *testing.T) {
	a := NewWorkQueue[string]()
	b := NewWorkQueue[string]()
	c := NewCompositeWorkQueue[string](a, b)

	a.Put("a1")
	b.Put("b1")
	a.Put("a2")

	first, err := c.Take(context.Background())
	require.NoError(t, err)
	second, err := c.Take(context.Background())
	require.NoError(t, err)

	// both children were ready; the composite must not starve b in favor
	// of always draining a first.
	assert.ElementsMatch(t, []string{"a1", "b1"}, []string{first, second})
}

func TestCompositeWorkQueue_WaitsAcrossAllChildren(t *testing.T) {
	a := NewWorkQueue[int]()
	b := NewWorkQueue[int]()
	c := NewCompositeWorkQueue[int](a, b)

	go func() {
		time.Sleep(10 * time.Millisecond)
		b.Put(7)
	}()

	v, err := c.Take(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, 0, a.Len())
}

func TestCompositeWorkQueue_NoChildrenFailsFast(t *testing.T) {
	c := NewCompositeWorkQueue[int]()
	_, err := c.Take(context.Background())
	assert.ErrorIs(t, err, ErrDisposed)
}

func TestCompositeWorkQueue_ConcurrentPutsAcrossChildrenLoseNoItems(t *testing.T) {
	a := NewWorkQueue[int]()
	b := NewWorkQueue[int]()
	c := NewCompositeWorkQueue[int](a, b)

	// Drives two Puts (one per child) against two already-armed Takes on
	// every round, so the race path in TakeAsync -- both children's
	// waiters settling before the loser's cancellation propagates -- is
	// exercised repeatedly. Before the fix, a loser's already-dequeued
	// value was discarded instead of re-offered, so one of the two Take
	// calls below would hang until its timeout instead of returning.
	const rounds = 200
	received := make(chan int, rounds*2)
	var takers sync.WaitGroup
	for i := 0; i < rounds; i++ {
		takers.Add(2)
		for j := 0; j < 2; j++ {
			go func() {
				defer takers.Done()
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				v, err := c.Take(ctx)
				if err == nil {
					received <- v
				}
			}()
		}

		var putters sync.WaitGroup
		putters.Add(2)
		go func() { defer putters.Done(); a.Put(1) }()
		go func() { defer putters.Done(); b.Put(1) }()
		putters.Wait()
	}
	takers.Wait()
	close(received)

	total := 0
	for range received {
		total++
	}
	assert.Equal(t, rounds*2, total, "every Put should be delivered to exactly one Take, none lost")
}

func TestCompositeWorkQueue_RemoveChildStopsPolling(t *testing.T) {
	a := NewWorkQueue[int]()
	b := NewWorkQueue[int]()
	c := NewCompositeWorkQueue[int](a, b)
	c.RemoveChild(a)

	a.Put(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Take(ctx)
	assert.ErrorIs(t, err, ErrCanceled, "removed child a should no longer be polled")
}
