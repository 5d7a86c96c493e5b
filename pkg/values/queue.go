package values

import (
	"reflect"
	"sync"
)

// Queue buffers pending mutations keyed by qualified path. An entry is
// removed only when the backend acknowledges that exact value: a value that
// changed again while a request was in flight stays queued for the next
// flush, so no update is ever lost or double-cleared.
type Queue struct {
	mu      sync.Mutex
	pending map[string]any
}

// NewQueue constructs an empty queue.
func NewQueue() *Queue {
	return &Queue{pending: map[string]any{}}
}

// Put records a pending value, replacing any earlier pending value for the
// same path.
func (q *Queue) Put(path string, value any) {
	if path == "" {
		return
	}
	q.mu.Lock()
	q.pending[path] = value
	q.mu.Unlock()
}

// Len returns the number of pending entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Empty reports whether nothing is pending.
func (q *Queue) Empty() bool { return q.Len() == 0 }

// Take snapshots the pending entries for one flush batch without clearing
// them; clearing happens in Ack once the batch is acknowledged.
func (q *Queue) Take() map[string]any {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make(map[string]any, len(q.pending))
	for k, v := range q.pending {
		out[k] = v
	}
	return out
}

// Ack removes each sent entry whose pending value still equals the value
// that was sent. Entries mutated since the batch was taken remain queued.
func (q *Queue) Ack(sent map[string]any) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for path, sentValue := range sent {
		current, ok := q.pending[path]
		if ok && reflect.DeepEqual(current, sentValue) {
			delete(q.pending, path)
		}
	}
}

// Pending returns a copy of the queue contents, for inspection and tests.
func (q *Queue) Pending() map[string]any {
	return q.Take()
}
