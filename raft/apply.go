// raft/apply.go
package raft

import "time"

// runApplyLoop is the state machine adapter (§4.5): it continuously
// applies committed-but-not-yet-applied entries to the injected
// StateMachine, advancing lastApplied one entry at a time in strict
// order. It runs independently of the election/replication loop so a
// slow state machine never delays heartbeats or vote handling.
func (rn *RaftNode) runApplyLoop() {
	ticker := time.NewTicker(rn.applyInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rn.shutdownCh:
			return
		case <-ticker.C:
			rn.applyCommitted()
		}
	}
}

func (rn *RaftNode) applyCommitted() {
	for {
		rn.mu.Lock()
		if rn.commitIndex <= rn.lastApplied {
			rn.mu.Unlock()
			return
		}
		next := rn.lastApplied + 1
		rn.mu.Unlock()

		logs := rn.store.GetLogs()
		if next >= uint64(len(logs)) {
			return
		}
		entry := logs[next]

		if rn.stateMachine != nil {
			if _, err := rn.stateMachine.Apply(entry.Index, entry.Command); err != nil {
				rn.logger.Error("state machine apply failed", "index", u64(entry.Index), "error", err.Error())
			}
		}

		rn.mu.Lock()
		rn.lastApplied = next
		rn.mu.Unlock()

		rn.logger.LogApply(entry.Index, entry.Term)

		select {
		case rn.applyCh <- ApplyMsg{Index: entry.Index, Command: entry.Command, Term: entry.Term}:
		default:
		}
	}
}

// getCommitIndex reads commitIndex under the node's critical section.
func (rn *RaftNode) getCommitIndex() uint64 {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	return rn.commitIndex
}

// setCommitIndex advances commitIndex monotonically and nudges
// newEntryCh so that, on a leader, the main loop starts a replication
// round carrying the new commitIndex; it never moves commitIndex
// backwards. The apply loop picks the change up on its next tick.
func (rn *RaftNode) setCommitIndex(idx uint64) {
	rn.mu.Lock()
	if idx <= rn.commitIndex {
		rn.mu.Unlock()
		return
	}
	rn.commitIndex = idx
	rn.mu.Unlock()

	rn.logger.LogCommit(idx, rn.store.GetTerm())

	select {
	case rn.newEntryCh <- struct{}{}:
	default:
	}
}
