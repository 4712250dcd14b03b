package rrb

import (
	"context"
	"sync"
	"time"
)

// requestTracker is the client-local running-requests tracker from
// spec.md §4.4: a set of pending request ids with a single shared
// "drained" signal. The signal is un-set while the set is non-empty and
// set when the set becomes empty, so disconnect() can block on it without
// polling.
type requestTracker struct {
	mu     sync.Mutex
	ids    map[string]*time.Timer
	doneCh chan struct{}
}

func newRequestTracker() *requestTracker {
	ch := make(chan struct{})
	close(ch) // starts empty, i.e. already drained
	return &requestTracker{ids: make(map[string]*time.Timer), doneCh: ch}
}

// add registers id as in flight and arms an automatic finish after timeout,
// so a request that never resolves cannot block disconnect() forever.
func (t *requestTracker) add(id string, timeout time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.ids) == 0 {
		t.doneCh = make(chan struct{})
	}
	t.ids[id] = time.AfterFunc(timeout, func() { t.finish(id) })
}

// finish removes id from the tracked set. Safe to call more than once or
// with an unknown id (no-op).
func (t *requestTracker) finish(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	timer, ok := t.ids[id]
	if !ok {
		return
	}
	timer.Stop()
	delete(t.ids, id)
	if len(t.ids) == 0 {
		close(t.doneCh)
	}
}

// await blocks until the tracked set is empty or ctx is done.
func (t *requestTracker) await(ctx context.Context) error {
	t.mu.Lock()
	ch := t.doneCh
	empty := len(t.ids) == 0
	t.mu.Unlock()

	if empty {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
