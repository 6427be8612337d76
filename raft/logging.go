// raft/logging.go
package raft

import (
	"strconv"

	"raftbooking/internal/logging"
)

// Logger adds Raft-domain helper methods on top of the shared
// component logger; it never formats output itself.
type Logger struct {
	base *logging.Logger
}

// NewLogger creates a logger scoped to a single node id.
func NewLogger(nodeID string) *Logger {
	return &Logger{base: logging.NewLogger("raft").With("node", nodeID)}
}

func (l *Logger) Debug(msg string, kv ...string) { l.base.Debug(msg, kv...) }
func (l *Logger) Info(msg string, kv ...string)  { l.base.Info(msg, kv...) }
func (l *Logger) Warn(msg string, kv ...string)  { l.base.Warn(msg, kv...) }
func (l *Logger) Error(msg string, kv ...string) { l.base.Error(msg, kv...) }

func u64(v uint64) string { return strconv.FormatUint(v, 10) }

var stateEmoji = map[NodeState]string{
	Follower:  "👤",
	Candidate: "🗳️",
	Leader:    "👑",
}

func (l *Logger) LogStateChange(oldState, newState NodeState, term uint64) {
	l.Info("state change",
		"from", oldState.String(), "to", newState.String(), "term", u64(term),
		"symbol", stateEmoji[oldState]+"→"+stateEmoji[newState])
}

func (l *Logger) LogElectionStart(term uint64) {
	l.Info("starting election", "term", u64(term))
}

func (l *Logger) LogElectionWon(term, votes, needed uint64) {
	l.Info("won election", "term", u64(term), "votes", u64(votes), "needed", u64(needed))
}

func (l *Logger) LogElectionLost(term, votes, needed uint64) {
	l.Info("lost election", "term", u64(term), "votes", u64(votes), "needed", u64(needed))
}

func (l *Logger) LogVoteGranted(candidateID string, term uint64) {
	l.Info("granted vote", "candidate", candidateID, "term", u64(term))
}

func (l *Logger) LogVoteDenied(candidateID string, term uint64, reason string) {
	l.Info("denied vote", "candidate", candidateID, "term", u64(term), "reason", reason)
}

func (l *Logger) LogHeartbeatSent(term uint64, peerCount int) {
	l.Debug("sent heartbeat", "term", u64(term), "peers", strconv.Itoa(peerCount))
}

func (l *Logger) LogHeartbeatReceived(leaderID string, term uint64) {
	l.Debug("received heartbeat", "leader", leaderID, "term", u64(term))
}

func (l *Logger) LogAppendEntries(leaderID string, term, prevLogIndex uint64, entryCount int) {
	l.Debug("received append entries",
		"leader", leaderID, "term", u64(term), "prev_index", u64(prevLogIndex), "entries", strconv.Itoa(entryCount))
}

func (l *Logger) LogCommit(index, term uint64) {
	l.Info("committed entry", "index", u64(index), "term", u64(term))
}

func (l *Logger) LogApply(index, term uint64) {
	l.Info("applied command", "index", u64(index), "term", u64(term))
}

func (l *Logger) LogStepDown(oldTerm, newTerm uint64) {
	l.Info("stepping down", "from_term", u64(oldTerm), "to_term", u64(newTerm))
}

func (l *Logger) LogElectionTimeout() {
	l.Debug("election timeout, becoming candidate")
}

func (l *Logger) LogElectionTimerReset(reason string) {
	l.Debug("election timer reset", "reason", reason)
}
