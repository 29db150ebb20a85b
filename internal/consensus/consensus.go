// Package consensus coordinates the findings raised by the reviewer with
// the execution loop. The loop must not start a task while a consensus on
// it is unresolved.
package consensus

import (
	"context"
	"slices"
	"sync"
)

// Coordinator tracks unresolved findings per task. Waiters are woken by
// closing a broadcast channel on every state change.
type Coordinator struct {
	mu      sync.Mutex
	pending map[string][]string
	changed chan struct{}
}

// New creates an empty Coordinator.
func New() *Coordinator {
	return &Coordinator{
		pending: make(map[string][]string),
		changed: make(chan struct{}),
	}
}

// broadcast wakes all waiters. Callers hold c.mu.
func (c *Coordinator) broadcast() {
	close(c.changed)
	c.changed = make(chan struct{})
}

// Raise records findings on taskID. Raising again replaces the findings.
// Empty findings are ignored.
func (c *Coordinator) Raise(taskID string, findings []string) {
	if taskID == "" || len(findings) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[taskID] = slices.Clone(findings)
	c.broadcast()
}

// Resolve clears the consensus on taskID and reports whether one existed.
func (c *Coordinator) Resolve(taskID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[taskID]; !ok {
		return false
	}
	delete(c.pending, taskID)
	c.broadcast()
	return true
}

// ResolveAll clears every consensus and returns how many were pending.
func (c *Coordinator) ResolveAll() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.pending)
	if n == 0 {
		return 0
	}
	clear(c.pending)
	c.broadcast()
	return n
}

// Pending returns the unresolved findings on taskID.
func (c *Coordinator) Pending(taskID string) ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.pending[taskID]
	return slices.Clone(f), ok
}

// PendingIDs returns the ids with unresolved findings, sorted.
func (c *Coordinator) PendingIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.pending))
	for id := range c.pending {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// WaitResolved blocks until taskID has no unresolved consensus or ctx ends.
func (c *Coordinator) WaitResolved(ctx context.Context, taskID string) error {
	return c.wait(ctx, func() bool {
		_, ok := c.pending[taskID]
		return !ok
	})
}

// WaitAllResolved blocks until nothing is pending or ctx ends.
func (c *Coordinator) WaitAllResolved(ctx context.Context) error {
	return c.wait(ctx, func() bool { return len(c.pending) == 0 })
}

func (c *Coordinator) wait(ctx context.Context, done func() bool) error {
	for {
		c.mu.Lock()
		if done() {
			c.mu.Unlock()
			return nil
		}
		ch := c.changed
		c.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
