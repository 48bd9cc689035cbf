package workqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventLoop_RunsInSubmissionOrder(t *testing.T) {
	loop := NewEventLoop()
	defer loop.Dispose(DisposeDrain)

	var order []int
	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		i := i
		item := Schedule(loop, context.Background(), func(ctx context.Context) (struct{}, error) {
			order = append(order, i)
			if i == 4 {
				close(done)
			}
			return struct{}{}, nil
		})
		_ = item
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for units to run")
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestEventLoop_ScheduleReturnsResult(t *testing.T) {
	loop := NewEventLoop()
	defer loop.Dispose(DisposeDrain)

	item := Schedule(loop, context.Background(), func(ctx context.Context) (int, error) {
		return 99, nil
	})
	v, err := item.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 99, v)
}

func TestEventLoop_ScheduleReturnsFailure(t *testing.T) {
	loop := NewEventLoop()
	defer loop.Dispose(DisposeDrain)

	boom := errors.New("boom")
	item := Schedule(loop, context.Background(), func(ctx context.Context) (int, error) {
		return 0, boom
	})
	_, err := item.Wait(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, Failed, item.State())
}

func TestEventLoop_CancelBeforeStartNeverRuns(t *testing.T) {
	loop := NewEventLoop()
	defer loop.Dispose(DisposeDrain)

	// Block the loop with an in-flight unit so the next one sits queued
	// long enough for us to cancel it before it can start.
	block := make(chan struct{})
	_ = Schedule(loop, context.Background(), func(ctx context.Context) (struct{}, error) {
		<-block
		return struct{}{}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ran := false
	item := Schedule(loop, ctx, func(ctx context.Context) (struct{}, error) {
		ran = true
		return struct{}{}, nil
	})
	close(block)

	_, err := item.Wait(context.Background())
	assert.ErrorIs(t, err, ErrCanceled)
	assert.False(t, ran)
}

func TestEventLoop_DisposeDrainRunsQueuedWork(t *testing.T) {
	loop := NewEventLoop()

	ran := false
	item := Schedule(loop, context.Background(), func(ctx context.Context) (struct{}, error) {
		ran = true
		return struct{}{}, nil
	})
	loop.Dispose(DisposeDrain)

	_, err := item.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestEventLoop_DisposeWaitFailsQueuedWork(t *testing.T) {
	loop := NewEventLoop()

	block := make(chan struct{})
	started := make(chan struct{})
	inFlight := Schedule(loop, context.Background(), func(ctx context.Context) (struct{}, error) {
		close(started)
		<-block
		return struct{}{}, nil
	})

	ran := false
	queued := Schedule(loop, context.Background(), func(ctx context.Context) (struct{}, error) {
		ran = true
		return struct{}{}, nil
	})

	// Dispose only once the first unit is running, so that it is in
	// flight rather than still queued.
	<-started
	disposeDone := make(chan struct{})
	go func() {
		loop.Dispose(DisposeWait)
		close(disposeDone)
	}()

	// Give Dispose a moment to mark the queued unit before releasing the
	// in-flight one.
	time.Sleep(10 * time.Millisecond)
	close(block)
	<-disposeDone

	_, err := inFlight.Wait(context.Background())
	assert.NoError(t, err)

	_, err = queued.Wait(context.Background())
	assert.ErrorIs(t, err, ErrDisposed)
	assert.False(t, ran)
}

func TestEventLoop_ScheduleAfterDisposeFails(t *testing.T) {
	loop := NewEventLoop()
	loop.Dispose(DisposeDrain)

	item := Schedule(loop, context.Background(), func(ctx context.Context) (int, error) {
		return 1, nil
	})
	_, err := item.Wait(context.Background())
	assert.ErrorIs(t, err, ErrDisposed)
}
