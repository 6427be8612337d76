// raft/replicate.go
package raft

import "sort"

// replicateToPeer sends one AppendEntries RPC to peer carrying
// whatever suffix of the log it is missing (or nothing, as a plain
// heartbeat, once it is caught up). It completes the teacher's
// "Week 8: Implement log replication" stub with the full per-peer
// loop described in §4.3: advance nextIndex/matchIndex on success,
// back off nextIndex using the conflict hint on rejection, and step
// down immediately on discovering a higher term. epoch pins this
// goroutine to the leadership spell that spawned it; if the node has
// since stepped down or won a new election, the RPC result is
// discarded rather than corrupting the new spell's state.
func (rn *RaftNode) replicateToPeer(peerID string, epoch uint64) {
	rn.mu.Lock()
	if rn.state != Leader || rn.leaderEpoch != epoch {
		rn.mu.Unlock()
		return
	}
	nextIdx := rn.nextIndex[peerID]
	rn.mu.Unlock()

	currentTerm := rn.store.GetTerm()
	logs := rn.store.GetLogs()
	lastIndex := uint64(len(logs) - 1)

	if nextIdx < 1 {
		nextIdx = 1
	}
	if nextIdx > lastIndex+1 {
		nextIdx = lastIndex + 1
	}

	prevLogIndex := nextIdx - 1
	prevLogTerm := uint64(0)
	if prevLogIndex < uint64(len(logs)) {
		prevLogTerm = logs[prevLogIndex].Term
	}

	var entries []*LogEntry
	for idx := nextIdx; idx <= lastIndex; idx++ {
		entries = append(entries, logs[idx])
	}

	req := &AppendEntriesRequest{
		Term:         currentTerm,
		LeaderID:     rn.id,
		PrevLogIndex: prevLogIndex,
		PrevLogTerm:  prevLogTerm,
		Entries:      entries,
		LeaderCommit: rn.getCommitIndex(),
	}

	address := rn.peerAddresses[peerID]
	resp, err := rn.rpcClient.AppendEntries(address, req)
	if err != nil {
		rn.logger.Debug("append entries rpc failed", "peer", peerID, "error", err.Error())
		rn.retryQueue.ScheduleRetry(peerID, nextIdx)
		return
	}
	rn.retryQueue.MarkSuccess(peerID)
	rn.reportPeerSeen(peerID, resp.Term)

	rn.mu.Lock()
	stillCurrent := rn.state == Leader && rn.leaderEpoch == epoch
	rn.mu.Unlock()
	if !stillCurrent {
		return
	}

	if resp.Term > currentTerm {
		rn.stepDown(resp.Term)
		return
	}

	if resp.Success {
		if len(entries) == 0 {
			return
		}
		newMatch := entries[len(entries)-1].Index

		rn.mu.Lock()
		if rn.leaderEpoch == epoch && rn.state == Leader {
			if newMatch > rn.matchIndex[peerID] {
				rn.matchIndex[peerID] = newMatch
			}
			rn.nextIndex[peerID] = newMatch + 1
		}
		rn.mu.Unlock()

		rn.advanceCommitIndex()
		return
	}

	rn.mu.Lock()
	if rn.leaderEpoch == epoch && rn.state == Leader {
		if resp.ConflictIndex > 0 {
			rn.nextIndex[peerID] = resp.ConflictIndex
		} else if rn.nextIndex[peerID] > 1 {
			rn.nextIndex[peerID]--
		}
	}
	rn.mu.Unlock()
}

// advanceCommitIndex implements the leader's commit rule: advance
// commitIndex to the largest N replicated on a majority of nodes
// (including the leader itself), but only ever by counting an entry
// from the current term — committing a predecessor-term entry purely
// by replication count can be silently undone by a later leader, the
// bug the design notes call out explicitly.
func (rn *RaftNode) advanceCommitIndex() {
	currentTerm := rn.store.GetTerm()
	lastIndex := rn.store.GetLastLog().Index
	logs := rn.store.GetLogs()

	rn.mu.Lock()
	if rn.state != Leader {
		rn.mu.Unlock()
		return
	}
	matches := make([]uint64, 0, len(rn.matchIndex)+1)
	matches = append(matches, lastIndex)
	for _, m := range rn.matchIndex {
		matches = append(matches, m)
	}
	current := rn.commitIndex
	rn.mu.Unlock()

	sort.Slice(matches, func(i, j int) bool { return matches[i] < matches[j] })
	majority := len(matches)/2 + 1
	candidate := matches[len(matches)-majority]

	if candidate <= current || candidate >= uint64(len(logs)) {
		return
	}
	if logs[candidate].Term != currentTerm {
		return
	}

	rn.setCommitIndex(candidate)
}
