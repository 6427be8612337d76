// raft/submit.go
package raft

import "raftbooking/internal/rafterrors"

// SubmitCommand is the client-facing append path (§4.3 step 1-2): a
// non-leader rejects with a NotLeader error carrying a hint toward the
// last known leader; a leader constructs Entry{term, data}, appends to
// its own log, persists, and wakes the replication loop immediately.
// It does not block until commit: a successful return means the entry
// is durable in this leader's own log only, not yet replicated to a
// majority or committed. Callers needing confirmation poll the state
// machine.
func (rn *RaftNode) SubmitCommand(data []byte) (uint64, error) {
	rn.mu.Lock()
	if rn.state != Leader {
		hint := rn.leaderID
		rn.mu.Unlock()
		return 0, rafterrors.NotLeader(hint)
	}
	rn.mu.Unlock()

	currentTerm := rn.store.GetTerm()
	index, err := rn.store.AppendLog(currentTerm, data)
	if err != nil {
		rn.logger.Error("failed to persist submitted entry", "error", err.Error())
		rn.haltOnFatal(err)
		return 0, err
	}

	select {
	case rn.newEntryCh <- struct{}{}:
	default:
	}

	return index, nil
}
