package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_Ordering(t *testing.T) {
	q := New(0)
	defer q.Close()

	ctx := context.Background()
	var mu sync.Mutex
	var order []string

	var wg sync.WaitGroup
	wg.Add(2)

	// Slow operation enqueued first, fast one second. The fast one must not
	// begin until the slow one has fully applied.
	go func() {
		defer wg.Done()
		_ = q.Do(ctx, func(context.Context) error {
			time.Sleep(50 * time.Millisecond)
			mu.Lock()
			order = append(order, "A")
			mu.Unlock()
			return nil
		})
	}()
	time.Sleep(10 * time.Millisecond) // ensure A is enqueued first
	go func() {
		defer wg.Done()
		_ = q.Do(ctx, func(context.Context) error {
			mu.Lock()
			order = append(order, "B")
			mu.Unlock()
			return nil
		})
	}()
	wg.Wait()

	assert.Equal(t, []string{"A", "B"}, order)
}

func TestQueue_FailureDoesNotBlockNext(t *testing.T) {
	q := New(0)
	defer q.Close()

	ctx := context.Background()
	boom := errors.New("boom")

	err := q.Do(ctx, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	ran := false
	err = q.Do(ctx, func(context.Context) error { ran = true; return nil })
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestQueue_PanicRecovered(t *testing.T) {
	q := New(0)
	defer q.Close()

	ctx := context.Background()

	err := q.Do(ctx, func(context.Context) error { panic("kaboom") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")

	// Queue keeps serving after a panic.
	require.NoError(t, q.Do(ctx, func(context.Context) error { return nil }))
}

func TestQueue_CancelledCallerStillRunsInOrder(t *testing.T) {
	q := New(0)
	defer q.Close()

	block := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = q.Do(context.Background(), func(context.Context) error {
			close(started)
			<-block
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	ran := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		errCh <- q.Do(ctx, func(context.Context) error {
			close(ran)
			return nil
		})
	}()

	cancel()
	err := <-errCh
	assert.ErrorIs(t, err, context.Canceled)

	// The cancelled caller gave up waiting, but its operation still runs once
	// the queue reaches it.
	close(block)
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("cancelled operation never ran")
	}
}
