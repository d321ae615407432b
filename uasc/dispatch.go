package uasc

import (
	"sync"

	"github.com/gammazero/deque"
)

// pendingEntry correlates a request id with the channel its caller is
// waiting on.
type pendingEntry struct {
	id uint32
	ch chan pendingResult
}

type pendingResult struct {
	value any
	err   error
}

// pendingTable correlates outstanding requests with the response the
// channel's drain loop eventually decodes for them. A deque is the
// natural fit: requests are registered in send order and Iterate
// resolves responses front-first (resolveFront). The linear scan in
// removeLocked serves cancel and resolve by id; it is not used to match
// incoming responses, which are never correlated by request id.
type pendingTable struct {
	mu sync.Mutex
	q  deque.Deque[*pendingEntry]
}

func newPendingTable() *pendingTable {
	return &pendingTable{}
}

func (t *pendingTable) register(id uint32) chan pendingResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch := make(chan pendingResult, 1)
	t.q.PushBack(&pendingEntry{id: id, ch: ch})
	return ch
}

func (t *pendingTable) cancel(id uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(id)
}

func (t *pendingTable) resolve(id uint32, value any, err error) bool {
	t.mu.Lock()
	e := t.removeLocked(id)
	t.mu.Unlock()
	if e == nil {
		return false
	}
	e.ch <- pendingResult{value: value, err: err}
	return true
}

// removeLocked finds and removes the entry for id, scanning from the
// front since in-order arrival is the overwhelmingly common case.
func (t *pendingTable) removeLocked(id uint32) *pendingEntry {
	n := t.q.Len()
	for i := 0; i < n; i++ {
		e := t.q.At(i)
		if e.id == id {
			t.q.Remove(i)
			return e
		}
	}
	return nil
}

// resolveFront resolves the oldest outstanding request. Responses don't
// echo a request id on the wire, and ioMu guarantees at most one
// exchange is ever truly in flight on a channel, so FIFO order is both
// correct and simplest.
func (t *pendingTable) resolveFront(value any, err error) bool {
	t.mu.Lock()
	if t.q.Len() == 0 {
		t.mu.Unlock()
		return false
	}
	e := t.q.PopFront()
	t.mu.Unlock()
	e.ch <- pendingResult{value: value, err: err}
	return true
}

// Len reports the number of outstanding requests.
func (t *pendingTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.q.Len()
}

// FailAll resolves every outstanding request with err, used during
// teardown.
func (t *pendingTable) FailAll(err error) {
	t.mu.Lock()
	var entries []*pendingEntry
	for t.q.Len() > 0 {
		entries = append(entries, t.q.PopFront())
	}
	t.mu.Unlock()
	for _, e := range entries {
		e.ch <- pendingResult{err: err}
	}
}
