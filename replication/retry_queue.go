// Package replication holds the leader-side retry/backoff queue a Raft
// node uses when a peer's AppendEntries RPC fails with a transport
// error. It is adapted from a cross-replica hinted-handoff queue: the
// "hint" it defers delivery of is no longer a key/value write destined
// for a node that missed it, but a log range to re-send from
// nextIndex once the peer is reachable again.
package replication

import (
	"sync"
	"time"
)

// Hint is one peer's outstanding replication backoff state.
type Hint struct {
	TargetNode string
	FromIndex  uint64
	Attempts   int
	NextRetry  time.Time
}

// RetryQueue tracks, per peer, whether the leader should attempt
// another AppendEntries RPC right now or is still backing off from a
// recent failure. It replaces the original's disk-persisted hint
// store: replication progress (nextIndex) already lives in the Raft
// node's volatile state and is rebuilt on every election, so there is
// nothing here worth surviving a restart.
type RetryQueue struct {
	mu          sync.Mutex
	hints       map[string]*Hint
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

// NewRetryQueue creates a queue whose backoff starts at base and
// doubles on each consecutive failure, capped at max.
func NewRetryQueue(base, max time.Duration) *RetryQueue {
	return &RetryQueue{
		hints:       make(map[string]*Hint),
		baseBackoff: base,
		maxBackoff:  max,
	}
}

// Due reports whether targetNode has no outstanding backoff, or its
// backoff window has elapsed.
func (q *RetryQueue) Due(targetNode string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	hint, exists := q.hints[targetNode]
	if !exists {
		return true
	}
	return !time.Now().Before(hint.NextRetry)
}

// ScheduleRetry records a failed attempt against targetNode and
// doubles its backoff window (bounded by maxBackoff).
func (q *RetryQueue) ScheduleRetry(targetNode string, fromIndex uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	hint, exists := q.hints[targetNode]
	if !exists {
		hint = &Hint{TargetNode: targetNode}
		q.hints[targetNode] = hint
	}
	hint.FromIndex = fromIndex
	hint.Attempts++

	backoff := q.baseBackoff << uint(hint.Attempts-1)
	if backoff <= 0 || backoff > q.maxBackoff {
		backoff = q.maxBackoff
	}
	hint.NextRetry = time.Now().Add(backoff)
}

// MarkSuccess clears targetNode's backoff state after a successful
// round-trip, so the next attempt is immediately due.
func (q *RetryQueue) MarkSuccess(targetNode string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.hints, targetNode)
}

// AttemptsFor returns how many consecutive failures targetNode has
// accumulated since its last success.
func (q *RetryQueue) AttemptsFor(targetNode string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	hint, exists := q.hints[targetNode]
	if !exists {
		return 0
	}
	return hint.Attempts
}

// PendingCount returns the number of peers currently backing off.
func (q *RetryQueue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.hints)
}
