package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushThenPopFIFOOrder(t *testing.T) {
	q := New[int]()
	defer q.Close()

	q.Push(1)
	q.Push(2)
	q.Push(3)

	for _, want := range []int{1, 2, 3} {
		got, ok := q.Pop(context.Background(), time.Second)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
}

func TestPopTimesOutWhenEmpty(t *testing.T) {
	q := New[int]()
	defer q.Close()

	start := time.Now()
	_, ok := q.Pop(context.Background(), 50*time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestPopObservesContextCancellation(t *testing.T) {
	q := New[int]()
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, ok := q.Pop(ctx, 5*time.Second)
	assert.False(t, ok)
}

func TestLenReflectsUnconsumedDepth(t *testing.T) {
	// The internal pump may have already pulled one item out of the
	// buffer and be blocked handing it to a Pop caller, so Len() can
	// lag by at most one entry; push enough items that this race is
	// negligible against the assertion.
	q := New[int]()
	defer q.Close()

	assert.Equal(t, 0, q.Len())
	for i := 0; i < 10; i++ {
		q.Push(i)
	}
	assert.GreaterOrEqual(t, q.Len(), 9)

	for i := 0; i < 10; i++ {
		_, ok := q.Pop(context.Background(), time.Second)
		require.True(t, ok)
	}
	assert.Equal(t, 0, q.Len())
}
