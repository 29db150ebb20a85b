package consensus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRaiseAndResolve(t *testing.T) {
	c := New()
	c.Raise("impl-002", []string{"uses deprecated API"})
	c.Raise("impl-001", []string{"a", "b"})
	c.Raise("impl-003", nil)

	assert.Equal(t, []string{"impl-001", "impl-002"}, c.PendingIDs())

	f, ok := c.Pending("impl-001")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, f)

	f[0] = "mutated"
	again, _ := c.Pending("impl-001")
	assert.Equal(t, "a", again[0])

	assert.True(t, c.Resolve("impl-001"))
	assert.False(t, c.Resolve("impl-001"))
	assert.Equal(t, 1, c.ResolveAll())
	assert.Empty(t, c.PendingIDs())
}

func TestWaitResolvedReturnsImmediately(t *testing.T) {
	c := New()
	require.NoError(t, c.WaitResolved(context.Background(), "none"))
	require.NoError(t, c.WaitAllResolved(context.Background()))
}

func TestWaitResolvedWakesOnResolve(t *testing.T) {
	c := New()
	c.Raise("t1", []string{"risk"})
	c.Raise("t2", []string{"other"})

	done := make(chan error, 1)
	go func() { done <- c.WaitResolved(context.Background(), "t1") }()

	c.Resolve("t2")
	select {
	case <-done:
		t.Fatal("waiter woke for an unrelated task")
	case <-time.After(20 * time.Millisecond):
	}

	c.Resolve("t1")
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter not woken")
	}
}

func TestWaitAllResolvedCancel(t *testing.T) {
	c := New()
	c.Raise("t1", []string{"risk"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.WaitAllResolved(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("wait did not observe cancellation")
	}
}

func TestConcurrentWaiters(t *testing.T) {
	c := New()
	c.Raise("t", []string{"risk"})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.WaitAllResolved(context.Background()))
		}()
	}
	c.ResolveAll()
	wg.Wait()
}
