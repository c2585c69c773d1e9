package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMemoryDispatchesToRegisteredHandler(t *testing.T) {
	q := NewMemory(8, zap.NewNop())
	done := make(chan Job, 1)
	q.Handle(KindDOISyncIndex, func(_ context.Context, j Job) error {
		done <- j
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	job := NewJob(KindDOISyncIndex, "10.5072/0003-rj0r", time.Now())
	require.NoError(t, q.Enqueue(ctx, job))

	select {
	case got := <-done:
		assert.Equal(t, job.ID, got.ID)
		assert.Equal(t, "10.5072/0003-rj0r", got.Subject)
	case <-time.After(time.Second):
		t.Fatal("job never dispatched")
	}
}

func TestMemoryRetriesUntilExhausted(t *testing.T) {
	q := NewMemory(8, zap.NewNop())
	var mu sync.Mutex
	attempts := 0
	q.Handle(KindDOIRetryRegistration, func(_ context.Context, j Job) error {
		mu.Lock()
		attempts++
		mu.Unlock()
		return errors.New("handle service down")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	require.NoError(t, q.Enqueue(ctx, NewJob(KindDOIRetryRegistration, "10.5072/x", time.Now())))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return attempts == maxAttempts
	}, time.Second, 5*time.Millisecond)

	// No further attempts after exhaustion.
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, maxAttempts, attempts)
}

func TestMemoryUnknownKindDropped(t *testing.T) {
	q := NewMemory(8, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	require.NoError(t, q.Enqueue(ctx, NewJob(Kind("no.such"), "x", time.Now())))
	// Drains without panicking or blocking.
	require.NoError(t, q.Enqueue(ctx, NewJob(Kind("no.such"), "y", time.Now())))
}

func TestMemoryCloseStopsRun(t *testing.T) {
	q := NewMemory(1, zap.NewNop())
	errc := make(chan error, 1)
	go func() { errc <- q.Run(context.Background()) }()

	require.NoError(t, q.Close())
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Close")
	}
}
