package workqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoCancellingQueue_PutThenTake(t *testing.T) {
	q := NewAutoCancellingQueue[string]()
	q.Put(context.Background(), "a")

	v, err := q.Take(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", v)
}

func TestAutoCancellingQueue_WithdrawsOnCancel(t *testing.T) {
	q := NewAutoCancellingQueue[string]()
	ctx, cancel := context.WithCancel(context.Background())
	q.Put(ctx, "stale")
	q.Put(context.Background(), "fresh")
	require.Equal(t, 2, q.Len())

	cancel()
	assert.Eventually(t, func() bool {
		return q.Len() == 1
	}, time.Second, time.Millisecond)

	v, err := q.Take(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", v, "the canceled entry must never be handed out")
}

func TestAutoCancellingQueue_PutRetryJumpsQueue(t *testing.T) {
	q := NewAutoCancellingQueue[string]()
	q.Put(context.Background(), "original")
	q.PutRetry(context.Background(), "retry")

	v, err := q.Take(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "retry", v)
}

func TestAutoCancellingQueue_PutWithAlreadyDoneContextIsNoOp(t *testing.T) {
	q := NewAutoCancellingQueue[string]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, q.Put(ctx, "dead on arrival"))
	assert.Equal(t, 0, q.Len())
}

func TestAutoCancellingQueue_CloseFailsWaiters(t *testing.T) {
	q := NewAutoCancellingQueue[int]()
	item := q.TakeAsync(context.Background())

	q.Close()

	_, err := item.Wait(context.Background())
	assert.ErrorIs(t, err, ErrDisposed)
	assert.False(t, q.Put(context.Background(), 1))
}
