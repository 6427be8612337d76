// raft/election.go
package raft

import (
	"fmt"
	"time"
)

// startElection converts this node to Candidate, votes for itself, and
// requests votes from every peer (§4.1).
func (rn *RaftNode) startElection() {
	rn.mu.Lock()
	oldState := rn.state
	rn.state = Candidate
	rn.mu.Unlock()

	currentTerm, err := rn.store.IncrementTerm()
	if err != nil {
		rn.logger.Error("failed to persist term increment", "error", err.Error())
		rn.haltOnFatal(err)
		return
	}
	if err := rn.store.SetVotedFor(rn.id); err != nil {
		rn.logger.Error("failed to persist self vote", "error", err.Error())
		rn.haltOnFatal(err)
		return
	}

	lastLog := rn.store.GetLastLog()

	rn.logger.LogStateChange(oldState, Candidate, currentTerm)
	rn.logger.LogElectionStart(currentTerm)

	rn.resetElectionTimer()

	votesReceived := 1
	votesNeeded := (len(rn.peers)+1)/2 + 1

	// A single-node "cluster" (no peers) satisfies its own majority
	// immediately; §8 requires it to elect itself and commit without
	// waiting on any RPC round trip.
	if votesReceived >= votesNeeded {
		rn.logger.LogElectionWon(currentTerm, uint64(votesReceived), uint64(votesNeeded))
		rn.becomeLeader(currentTerm)
		return
	}

	voteCh := make(chan bool, len(rn.peers))
	for _, peer := range rn.peers {
		go func(peerID string) {
			vote := rn.requestVote(peerID, currentTerm, lastLog.Index, lastLog.Term)
			voteCh <- vote
		}(peer)
	}

	timeout := time.After(rn.electionTimeoutMax)

	for i := 0; i < len(rn.peers); i++ {
		select {
		case vote := <-voteCh:
			if vote {
				votesReceived++
				if votesReceived >= votesNeeded {
					rn.logger.LogElectionWon(currentTerm, uint64(votesReceived), uint64(votesNeeded))
					rn.becomeLeader(currentTerm)
					return
				}
			}

		case <-timeout:
			rn.logger.LogElectionLost(currentTerm, uint64(votesReceived), uint64(votesNeeded))
			return

		case <-rn.shutdownCh:
			return
		}
	}

	rn.logger.LogElectionLost(currentTerm, uint64(votesReceived), uint64(votesNeeded))
}

// becomeLeader transitions a Candidate to Leader, provided the term
// hasn't moved on underneath it, and bumps leaderEpoch so any
// in-flight replication goroutines from a prior leadership spell exit
// on their next check rather than racing the new one.
func (rn *RaftNode) becomeLeader(term uint64) {
	rn.mu.Lock()
	if rn.store.GetTerm() != term || rn.state != Candidate {
		rn.logger.Debug("cannot become leader, term moved or no longer candidate",
			"term", u64(term), "state", rn.state.String())
		rn.mu.Unlock()
		return
	}

	oldState := rn.state
	rn.state = Leader
	rn.leaderID = rn.id
	rn.leaderEpoch++

	lastIndex := rn.store.GetLastLog().Index
	for peer := range rn.nextIndex {
		rn.nextIndex[peer] = lastIndex + 1
		rn.matchIndex[peer] = 0
	}

	if rn.electionTimer != nil {
		rn.electionTimer.Stop()
	}
	if rn.heartbeatTimer != nil {
		rn.heartbeatTimer.Stop()
	}
	rn.heartbeatTimer = time.NewTimer(rn.heartbeatInterval)
	rn.mu.Unlock()

	rn.logger.LogStateChange(oldState, Leader, term)

	// Immediate round so followers learn about the new leader without
	// waiting a full heartbeat interval.
	rn.replicateLog()
}

// requestVote sends a RequestVote RPC to a single peer and reports
// whether it granted the vote.
func (rn *RaftNode) requestVote(peerID string, term, lastLogIndex, lastLogTerm uint64) bool {
	req := &RequestVoteRequest{
		Term:         term,
		CandidateID:  rn.id,
		LastLogIndex: lastLogIndex,
		LastLogTerm:  lastLogTerm,
	}

	resp, err := rn.rpcClient.RequestVote(rn.peerAddresses[peerID], req)
	if err != nil {
		rn.logger.Debug("request vote failed", "peer", peerID, "error", err.Error())
		return false
	}

	rn.reportPeerSeen(peerID, resp.Term)

	if resp.Term > term {
		rn.stepDown(resp.Term)
		return false
	}

	return resp.VoteGranted
}

// RequestVote is the RPC handler invoked on this node when a peer is
// campaigning for votes.
func (rn *RaftNode) RequestVote(req *RequestVoteRequest) *RequestVoteResponse {
	currentTerm := rn.store.GetTerm()

	if req.Term < currentTerm {
		return &RequestVoteResponse{Term: currentTerm, VoteGranted: false}
	}

	if req.Term > currentTerm {
		if err := rn.store.SetTerm(req.Term); err != nil {
			rn.logger.Error("failed to persist term", "error", err.Error())
			rn.haltOnFatal(err)
			return &RequestVoteResponse{Term: currentTerm, VoteGranted: false}
		}
		currentTerm = req.Term

		rn.mu.Lock()
		oldState := rn.state
		rn.state = Follower
		rn.mu.Unlock()
		if oldState != Follower {
			rn.logger.LogStateChange(oldState, Follower, currentTerm)
		}
	}

	votedFor := rn.store.GetVotedFor()
	lastLog := rn.store.GetLastLog()
	upToDate := rn.isLogUpToDate(lastLog, req.LastLogIndex, req.LastLogTerm)

	voteGranted := false
	if (votedFor == "" || votedFor == req.CandidateID) && upToDate {
		if err := rn.store.SetVotedFor(req.CandidateID); err != nil {
			rn.logger.Error("failed to persist vote", "error", err.Error())
			rn.haltOnFatal(err)
			return &RequestVoteResponse{Term: currentTerm, VoteGranted: false}
		}
		voteGranted = true
		rn.logger.LogVoteGranted(req.CandidateID, req.Term)
	} else {
		rn.logger.LogVoteDenied(req.CandidateID, req.Term,
			fmt.Sprintf("votedFor=%s logUpToDate=%v", votedFor, upToDate))
	}

	if voteGranted {
		rn.resetElectionTimer()
	}

	return &RequestVoteResponse{Term: currentTerm, VoteGranted: voteGranted}
}

// isLogUpToDate implements the election restriction (§4.1): a
// candidate's log must be at least as up-to-date as ours for us to
// grant its vote.
func (rn *RaftNode) isLogUpToDate(lastLog *LogEntry, candidateLastIndex, candidateLastTerm uint64) bool {
	if candidateLastTerm != lastLog.Term {
		return candidateLastTerm >= lastLog.Term
	}
	return candidateLastIndex >= lastLog.Index
}

// stepDown converts this node to Follower upon discovering a higher
// term, from any role, including Leader.
func (rn *RaftNode) stepDown(term uint64) {
	currentTerm := rn.store.GetTerm()
	if term <= currentTerm {
		return
	}
	if err := rn.store.SetTerm(term); err != nil {
		rn.logger.Error("failed to persist term on step down", "error", err.Error())
		rn.haltOnFatal(err)
		return
	}

	rn.mu.Lock()
	oldState := rn.state
	rn.state = Follower
	if rn.heartbeatTimer != nil {
		rn.heartbeatTimer.Stop()
	}
	rn.mu.Unlock()

	rn.logger.LogStepDown(currentTerm, term)
	if oldState != Follower {
		rn.logger.LogStateChange(oldState, Follower, term)
	}
	rn.resetElectionTimer()
}

// AppendEntries is the RPC handler for both heartbeats and log
// replication. It enforces the log matching property: it rejects
// unless its own log already holds an entry at PrevLogIndex with term
// PrevLogTerm, and on acceptance truncates only from the first index
// where its log actually disagrees with the leader's, never discarding
// an agreeing suffix (§4.3, §9).
func (rn *RaftNode) AppendEntries(req *AppendEntriesRequest) *AppendEntriesResponse {
	currentTerm := rn.store.GetTerm()

	if req.Term < currentTerm {
		return &AppendEntriesResponse{Term: currentTerm, Success: false}
	}

	if req.Term > currentTerm {
		if err := rn.store.SetTerm(req.Term); err != nil {
			rn.logger.Error("failed to persist term", "error", err.Error())
			rn.haltOnFatal(err)
			return &AppendEntriesResponse{Term: currentTerm, Success: false}
		}
		currentTerm = req.Term
	}

	rn.mu.Lock()
	oldState := rn.state
	rn.state = Follower
	rn.leaderID = req.LeaderID
	rn.mu.Unlock()
	if oldState != Follower {
		rn.logger.LogStateChange(oldState, Follower, currentTerm)
	}

	rn.resetElectionTimer()

	if len(req.Entries) == 0 {
		rn.logger.LogHeartbeatReceived(req.LeaderID, req.Term)
	} else {
		rn.logger.LogAppendEntries(req.LeaderID, req.Term, req.PrevLogIndex, len(req.Entries))
	}

	logs := rn.store.GetLogs()

	if req.PrevLogIndex > 0 {
		if req.PrevLogIndex >= uint64(len(logs)) {
			return &AppendEntriesResponse{
				Term: currentTerm, Success: false,
				ConflictIndex: uint64(len(logs)),
			}
		}
		if logs[req.PrevLogIndex].Term != req.PrevLogTerm {
			conflictTerm := logs[req.PrevLogIndex].Term
			conflictIndex := req.PrevLogIndex
			for conflictIndex > 1 && logs[conflictIndex-1].Term == conflictTerm {
				conflictIndex--
			}
			return &AppendEntriesResponse{
				Term: currentTerm, Success: false,
				ConflictTerm: conflictTerm, ConflictIndex: conflictIndex,
			}
		}
	}

	if len(req.Entries) > 0 {
		var toAppend []*LogEntry
		for i, e := range req.Entries {
			idx := req.PrevLogIndex + 1 + uint64(i)
			if idx < uint64(len(logs)) && logs[idx].Term == e.Term {
				continue
			}
			toAppend = append(toAppend, &LogEntry{Index: idx, Term: e.Term, Command: e.Command})
		}
		if len(toAppend) > 0 {
			if err := rn.store.AppendAt(toAppend); err != nil {
				rn.logger.Error("failed to persist appended entries", "error", err.Error())
				rn.haltOnFatal(err)
				return &AppendEntriesResponse{Term: currentTerm, Success: false}
			}
		}
	}

	if req.LeaderCommit > rn.getCommitIndex() {
		lastNew := req.PrevLogIndex + uint64(len(req.Entries))
		rn.setCommitIndex(min(req.LeaderCommit, lastNew))
	}

	return &AppendEntriesResponse{Term: currentTerm, Success: true}
}

// RequestVoteRequest is the RPC request structure.
type RequestVoteRequest struct {
	Term         uint64
	CandidateID  string
	LastLogIndex uint64
	LastLogTerm  uint64
}

// RequestVoteResponse is the RPC response structure.
type RequestVoteResponse struct {
	Term        uint64
	VoteGranted bool
}

// AppendEntriesRequest is used for both heartbeats and log replication.
type AppendEntriesRequest struct {
	Term         uint64
	LeaderID     string
	PrevLogIndex uint64
	PrevLogTerm  uint64
	Entries      []*LogEntry
	LeaderCommit uint64
}

// AppendEntriesResponse is the response structure.
type AppendEntriesResponse struct {
	Term    uint64
	Success bool

	// ConflictTerm/ConflictIndex let the leader recompute nextIndex for
	// a mismatched follower in one round trip instead of backing off by
	// one entry per rejection.
	ConflictTerm  uint64
	ConflictIndex uint64
}

// RPCServer and RPCClient are the node's transport-facing boundary.
// Callers may inject implementations through Config; when they do not,
// NewRaftNode falls back to the gRPC implementations in this package.
type RPCServer interface {
	Start(address string) error
	Stop()
}

type RPCClient interface {
	RequestVote(address string, req *RequestVoteRequest) (*RequestVoteResponse, error)
	AppendEntries(address string, req *AppendEntriesRequest) (*AppendEntriesResponse, error)
}
