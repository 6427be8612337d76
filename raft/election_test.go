// raft/election_test.go
package raft

import (
	"fmt"
	"testing"
	"time"
)

// Test 1: Initial state is Follower
func TestInitialState(t *testing.T) {
	rn := createTestNode("node1", []string{"node2", "node3"})
	defer rn.Shutdown()

	term, isLeader := rn.GetState()
	if term != 0 {
		t.Errorf("Expected term 0, got %d", term)
	}
	if isLeader {
		t.Error("New node should not be leader")
	}
	if rn.getState() != Follower {
		t.Errorf("Expected Follower state, got %s", rn.getState())
	}
}

// Test 2: Single node becomes leader (spec §8 boundary behavior)
func TestSingleNodeElection(t *testing.T) {
	rn := createTestNode("node1", []string{})
	defer rn.Shutdown()

	rn.Start()

	waitFor(t, 300*time.Millisecond, func() bool {
		_, isLeader := rn.GetState()
		return isLeader
	}, "single node should become leader")
}

// Test 3: Leader election in 3-node cluster
func TestBasicElection(t *testing.T) {
	nodes := createTestCluster(3)
	defer shutdownCluster(nodes)

	for _, node := range nodes {
		node.Start()
	}

	waitFor(t, time.Second, func() bool {
		return countLeaders(nodes) == 1
	}, "expected exactly one leader")

	terms := make(map[uint64]int)
	for _, node := range nodes {
		term, _ := node.GetState()
		terms[term]++
	}

	if len(terms) != 1 {
		t.Errorf("Nodes don't agree on term: %v", terms)
	}
}

// Test 4: Re-election after leader failure
func TestReElection(t *testing.T) {
	nodes := createTestCluster(3)
	defer shutdownCluster(nodes)

	for _, node := range nodes {
		node.Start()
	}

	waitFor(t, time.Second, func() bool {
		return countLeaders(nodes) == 1
	}, "expected initial leader")

	var leader *RaftNode
	for _, node := range nodes {
		if _, isLeader := node.GetState(); isLeader {
			leader = node
			break
		}
	}
	if leader == nil {
		t.Fatal("No leader elected")
	}

	oldTerm, _ := leader.GetState()
	leader.Shutdown()

	var remainingNodes []*RaftNode
	for _, node := range nodes {
		if node != leader {
			remainingNodes = append(remainingNodes, node)
		}
	}

	waitFor(t, 2*time.Second, func() bool {
		return countLeaders(remainingNodes) == 1
	}, "expected one new leader among survivors")

	newTerm, _ := remainingNodes[0].GetState()
	if newTerm <= oldTerm {
		t.Errorf("Term should increase after re-election: old=%d, new=%d", oldTerm, newTerm)
	}
}

// Test 5: No split brain across a stable 5-node cluster
func TestNoSplitBrain(t *testing.T) {
	nodes := createTestCluster(5)
	defer shutdownCluster(nodes)

	for _, node := range nodes {
		node.Start()
	}

	waitFor(t, time.Second, func() bool {
		return countLeaders(nodes) == 1
	}, "expected exactly one leader")

	time.Sleep(500 * time.Millisecond)

	if leaders := countLeaders(nodes); leaders != 1 {
		t.Errorf("Expected 1 leader after settling, got %d", leaders)
	}
}

// Test 6: Three-node happy path replicates and commits in order
// (spec §8 scenario 2).
func TestThreeNodeReplication(t *testing.T) {
	nodes := createTestCluster(3)
	defer shutdownCluster(nodes)

	for _, node := range nodes {
		node.Start()
	}

	var leader *RaftNode
	waitFor(t, time.Second, func() bool {
		for _, node := range nodes {
			if _, isLeader := node.GetState(); isLeader {
				leader = node
				return true
			}
		}
		return false
	}, "expected a leader")

	idxA, err := leader.SubmitCommand([]byte("A"))
	if err != nil {
		t.Fatalf("submit A: %v", err)
	}
	idxB, err := leader.SubmitCommand([]byte("B"))
	if err != nil {
		t.Fatalf("submit B: %v", err)
	}
	if idxB != idxA+1 {
		t.Fatalf("expected consecutive indices, got %d then %d", idxA, idxB)
	}

	waitFor(t, 2*time.Second, func() bool {
		for _, node := range nodes {
			if node.getCommitIndex() < idxB {
				return false
			}
		}
		return true
	}, "expected every node to commit both entries")

	for _, node := range nodes {
		logs := node.store.GetLogs()
		if len(logs) != 3 {
			t.Fatalf("node %s: expected log length 3 (sentinel+2), got %d", node.id, len(logs))
		}
		if string(logs[1].Command) != "A" || string(logs[2].Command) != "B" {
			t.Errorf("node %s: expected log [A,B], got [%s,%s]", node.id, logs[1].Command, logs[2].Command)
		}
	}
}

// Test 7: Follower refuses to vote if candidate's log is outdated
func TestVoteRefusalForOutdatedLog(t *testing.T) {
	follower := createTestNode("node1", []string{"node2"})
	defer follower.Shutdown()

	follower.store.SetTerm(5)
	follower.store.AppendLog(5, []byte("test"))

	req := &RequestVoteRequest{
		Term:         6,
		CandidateID:  "node2",
		LastLogIndex: 1,
		LastLogTerm:  3, // older term than our last entry's term (5)
	}

	resp := follower.RequestVote(req)

	if resp.VoteGranted {
		t.Error("Should not grant vote to candidate with outdated log")
	}
}

// Test 8: Node only votes once per term
func TestOneVotePerTerm(t *testing.T) {
	node := createTestNode("node1", []string{"node2", "node3"})
	defer node.Shutdown()

	req1 := &RequestVoteRequest{Term: 1, CandidateID: "node2", LastLogIndex: 0, LastLogTerm: 0}
	resp1 := node.RequestVote(req1)
	if !resp1.VoteGranted {
		t.Error("Should grant first vote")
	}

	req2 := &RequestVoteRequest{Term: 1, CandidateID: "node3", LastLogIndex: 0, LastLogTerm: 0}
	resp2 := node.RequestVote(req2)
	if resp2.VoteGranted {
		t.Error("Should not grant second vote in same term")
	}
}

// Test 9: AppendEntries rejects and reports a conflict hint when the
// follower's log disagrees at prevLogIndex (spec §4.3 step 3).
func TestAppendEntriesRejectsOnLogMismatch(t *testing.T) {
	follower := createTestNode("node1", []string{"node2"})
	defer follower.Shutdown()

	follower.store.AppendLog(1, []byte("X"))

	req := &AppendEntriesRequest{
		Term:         2,
		LeaderID:     "node2",
		PrevLogIndex: 1,
		PrevLogTerm:  99, // disagrees with our term-1 entry at index 1
	}

	resp := follower.AppendEntries(req)
	if resp.Success {
		t.Error("expected rejection on log mismatch")
	}
	if resp.ConflictTerm != 1 || resp.ConflictIndex != 1 {
		t.Errorf("expected conflict hint {term:1 index:1}, got {term:%d index:%d}", resp.ConflictTerm, resp.ConflictIndex)
	}
}

// Test 10: conflicting follower tail is truncated only from the
// conflicting index onward (spec §8 scenario 4, §9 bug fix (c)).
func TestAppendEntriesTruncatesConflictingTail(t *testing.T) {
	follower := createTestNode("node1", []string{"node2"})
	defer follower.Shutdown()

	follower.store.AppendLog(1, []byte("X"))
	follower.store.AppendLog(2, []byte("Y"))

	req := &AppendEntriesRequest{
		Term:         3,
		LeaderID:     "node2",
		PrevLogIndex: 1,
		PrevLogTerm:  1,
		Entries:      []*LogEntry{{Index: 2, Term: 3, Command: []byte("Z")}},
	}

	resp := follower.AppendEntries(req)
	if !resp.Success {
		t.Fatalf("expected success, got failure")
	}

	logs := follower.store.GetLogs()
	if len(logs) != 3 {
		t.Fatalf("expected log length 3, got %d", len(logs))
	}
	if logs[1].Term != 1 || string(logs[1].Command) != "X" {
		t.Errorf("expected index 1 to remain {1,X}, got {%d,%s}", logs[1].Term, logs[1].Command)
	}
	if logs[2].Term != 3 || string(logs[2].Command) != "Z" {
		t.Errorf("expected index 2 to become {3,Z}, got {%d,%s}", logs[2].Term, logs[2].Command)
	}
}

// Test 11: empty log, prevLogIdx=0 must accept (spec §8 boundary
// behavior).
func TestAppendEntriesAcceptsEmptyLogBoundary(t *testing.T) {
	follower := createTestNode("node1", []string{"node2"})
	defer follower.Shutdown()

	req := &AppendEntriesRequest{
		Term:         1,
		LeaderID:     "node2",
		PrevLogIndex: 0,
		PrevLogTerm:  0,
		Entries:      []*LogEntry{{Index: 1, Term: 1, Command: []byte("first")}},
	}

	resp := follower.AppendEntries(req)
	if !resp.Success {
		t.Fatal("expected success on empty-log boundary case")
	}
}

// Helper functions

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func createTestNode(id string, peers []string) *RaftNode {
	peerAddrs := make(map[string]string)
	for _, peer := range peers {
		peerAddrs[peer] = "localhost:5005" + peer[len(peer)-1:]
	}

	config := &Config{
		ID:                 id,
		Peers:              peers,
		PeerAddresses:      peerAddrs,
		Address:            "localhost:5005" + id[len(id)-1:],
		ElectionTimeoutMin: 150 * time.Millisecond,
		ElectionTimeoutMax: 300 * time.Millisecond,
		HeartbeatInterval:  50 * time.Millisecond,
		ApplyInterval:      20 * time.Millisecond,
		StateMachine:       &MockStateMachine{},
	}

	return NewRaftNode(config)
}

func createTestCluster(n int) []*RaftNode {
	nodes := make([]*RaftNode, n)
	peers := make([]string, n)
	peerAddrs := make(map[string]string)

	for i := 0; i < n; i++ {
		id := fmt.Sprintf("node%d", i+1)
		peers[i] = id
		peerAddrs[id] = fmt.Sprintf("localhost:5005%d", i+1)
	}

	for i := 0; i < n; i++ {
		myID := peers[i]
		otherPeers := make([]string, 0, n-1)
		for j := 0; j < n; j++ {
			if i != j {
				otherPeers = append(otherPeers, peers[j])
			}
		}

		config := &Config{
			ID:                 myID,
			Peers:              otherPeers,
			PeerAddresses:      peerAddrs,
			Address:            peerAddrs[myID],
			ElectionTimeoutMin: 150 * time.Millisecond,
			ElectionTimeoutMax: 300 * time.Millisecond,
			HeartbeatInterval:  50 * time.Millisecond,
			ApplyInterval:      20 * time.Millisecond,
			StateMachine:       &MockStateMachine{},
		}

		nodes[i] = NewRaftNode(config)
	}

	return nodes
}

func shutdownCluster(nodes []*RaftNode) {
	for _, node := range nodes {
		node.Shutdown()
	}
}

func countLeaders(nodes []*RaftNode) int {
	count := 0
	for _, node := range nodes {
		if _, isLeader := node.GetState(); isLeader {
			count++
		}
	}
	return count
}

// MockStateMachine for testing.
type MockStateMachine struct{}

func (m *MockStateMachine) Apply(index uint64, command []byte) (interface{}, error) {
	return nil, nil
}

func (m *MockStateMachine) CreateSnapshot() ([]byte, error) {
	return nil, nil
}

func (m *MockStateMachine) RestoreSnapshot(snapshot []byte) error {
	return nil
}
