// raft/raft_core.go
package raft

import (
	"os"
	"sync"
	"time"

	"raftbooking/internal/rafterrors"
	"raftbooking/replication"
)

// NodeState represents the current state of a Raft node.
type NodeState int

const (
	Follower NodeState = iota
	Candidate
	Leader
)

func (s NodeState) String() string {
	switch s {
	case Follower:
		return "Follower"
	case Candidate:
		return "Candidate"
	case Leader:
		return "Leader"
	default:
		return "Unknown"
	}
}

// RaftNode represents a single node in the Raft cluster. Persistent
// state (currentTerm, votedFor, log) lives in store; everything else
// here is volatile state, all guarded by the same mu, matching the
// single per-node critical section the concurrency model requires —
// the critical section is never held across a network I/O call.
type RaftNode struct {
	mu sync.Mutex

	store *Store

	// Volatile state (all nodes)
	commitIndex uint64
	lastApplied uint64
	state       NodeState
	leaderID    string // last leader heard from; used for NotLeader hints

	// Volatile state (leaders only; reinitialized on election)
	nextIndex  map[string]uint64
	matchIndex map[string]uint64

	// leaderEpoch increments each time the node becomes Leader; stepping
	// down leaves it unchanged. Per-peer replication goroutines capture
	// it at spawn time and exit as soon as it no longer matches or the
	// node is no longer Leader.
	leaderEpoch uint64

	// Node identity
	id            string
	peers         []string
	address       string
	peerAddresses map[string]string

	// Timers
	electionTimeoutMin time.Duration
	electionTimeoutMax time.Duration
	heartbeatInterval  time.Duration
	applyInterval      time.Duration
	electionTimer      *time.Timer
	heartbeatTimer     *time.Timer

	// Channels
	applyCh    chan ApplyMsg
	shutdownCh chan struct{}
	newEntryCh chan struct{}

	// RPC transport
	rpcServer RPCServer
	rpcClient RPCClient

	// retryQueue backs off per-peer replication after a transport
	// failure, instead of hammering an unreachable peer every
	// heartbeat tick (§D.4).
	retryQueue *replication.RetryQueue

	// State machine (the booking ledger)
	stateMachine StateMachine

	// onPeerSeen reports a successful RPC round-trip with a peer, so an
	// operational liveness view (cluster.Status) can be kept current
	// without raft depending on the cluster package.
	onPeerSeen func(peerID string, term uint64)

	// onFatal is invoked in place of the process exiting directly, so
	// tests can observe a halt without killing the test binary. Real
	// nodes get the default: log and os.Exit(1).
	onFatal func(err error)

	logger *Logger
}

// LogEntry represents a single command in the replicated log.
type LogEntry struct {
	Index   uint64
	Term    uint64
	Command []byte
}

// ApplyMsg is offered on applyCh after an entry has been applied to the
// state machine; it is dropped if the channel's buffer is full.
type ApplyMsg struct {
	Index   uint64
	Command []byte
	Term    uint64
}

// StateMachine is implemented by whatever consumes committed log
// entries; the booking ledger is the one production implementation.
type StateMachine interface {
	// Apply applies a committed command at the given log index. index is
	// passed through so a state machine can derive stable identifiers
	// from it instead of reaching for a clock or random source, keeping
	// Apply deterministic across every node that replays the same log.
	Apply(index uint64, command []byte) (interface{}, error)
	CreateSnapshot() ([]byte, error)
	RestoreSnapshot(snapshot []byte) error
}

// Config holds node configuration. RPCServer/RPCClient may be injected
// by the caller (tests pass no-op doubles); when left nil, NewRaftNode
// constructs this package's gRPC server and client.
type Config struct {
	ID               string
	Peers            []string
	PeerAddresses    map[string]string
	Address          string
	StatePath        string
	ElectionTimeoutMin time.Duration
	ElectionTimeoutMax time.Duration
	HeartbeatInterval  time.Duration
	ApplyInterval      time.Duration
	StateMachine       StateMachine
	RPCServer          RPCServer
	RPCClient          RPCClient

	// OnPeerSeen, if set, is called after every successful RPC
	// round-trip with a peer (vote request or append entries), letting
	// the caller track peer liveness without raft importing cluster.
	OnPeerSeen func(peerID string, term uint64)

	// OnFatal, if set, replaces the default os.Exit(1) halt triggered by
	// a fatal Persistence error (§7: durable-state errors MUST stop the
	// node rather than let it run with possibly divergent state). Tests
	// inject a recording stub here; leave nil in production.
	OnFatal func(err error)
}

func (c *Config) withDefaults() *Config {
	cfg := *c
	if cfg.ElectionTimeoutMin == 0 {
		cfg.ElectionTimeoutMin = 150 * time.Millisecond
	}
	if cfg.ElectionTimeoutMax == 0 {
		cfg.ElectionTimeoutMax = 300 * time.Millisecond
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = 50 * time.Millisecond
	}
	if cfg.ApplyInterval == 0 {
		cfg.ApplyInterval = 20 * time.Millisecond
	}
	return &cfg
}

// NewRaftNode creates a new Raft node. If config.StatePath is empty the
// node runs with an in-memory-only store (used by tests); otherwise
// state is loaded from (and persisted to) that file.
func NewRaftNode(config *Config) *RaftNode {
	cfg := config.withDefaults()

	var store *Store
	if cfg.StatePath != "" {
		s, err := NewStore(cfg.StatePath)
		if err != nil {
			// Persistence errors at boot are fatal per §7; a caller
			// that wants softer handling should check StatePath itself
			// before calling NewRaftNode.
			panic(err)
		}
		store = s
	} else {
		store = &Store{log: []*LogEntry{{Index: 0, Term: 0}}}
	}

	rn := &RaftNode{
		store:              store,
		state:              Follower,
		nextIndex:          make(map[string]uint64),
		matchIndex:         make(map[string]uint64),
		id:                 cfg.ID,
		peers:              cfg.Peers,
		address:            cfg.Address,
		peerAddresses:      cfg.PeerAddresses,
		electionTimeoutMin: cfg.ElectionTimeoutMin,
		electionTimeoutMax: cfg.ElectionTimeoutMax,
		heartbeatInterval:  cfg.HeartbeatInterval,
		applyInterval:      cfg.ApplyInterval,
		applyCh:            make(chan ApplyMsg, 100),
		shutdownCh:         make(chan struct{}),
		newEntryCh:         make(chan struct{}, 1),
		stateMachine:       cfg.StateMachine,
		logger:             NewLogger(cfg.ID),
		retryQueue:         replication.NewRetryQueue(cfg.HeartbeatInterval, 20*cfg.HeartbeatInterval),
		onPeerSeen:         cfg.OnPeerSeen,
		onFatal:            cfg.OnFatal,
	}
	if rn.onFatal == nil {
		rn.onFatal = func(err error) { os.Exit(1) }
	}

	for _, peer := range rn.peers {
		rn.nextIndex[peer] = 1
		rn.matchIndex[peer] = 0
	}

	rn.rpcServer = cfg.RPCServer
	if rn.rpcServer == nil {
		rn.rpcServer = NewGRPCRaftServer(rn)
	}
	rn.rpcClient = cfg.RPCClient
	if rn.rpcClient == nil {
		rn.rpcClient = NewGRPCRaftClient()
	}

	return rn
}

// Start begins the Raft node's operation: starts the RPC server,
// randomizes the election timer, and launches the main event loop and
// apply loop.
func (rn *RaftNode) Start() error {
	rn.logger.Info("starting raft node", "address", rn.address)

	rn.electionTimer = time.NewTimer(rn.electionTimeoutMin)
	rn.heartbeatTimer = time.NewTimer(rn.heartbeatInterval)
	rn.heartbeatTimer.Stop()

	if rn.rpcServer != nil {
		if err := rn.rpcServer.Start(rn.address); err != nil {
			return err
		}
	}

	rn.resetElectionTimer()

	go rn.run()
	go rn.runApplyLoop()

	return nil
}

// run is the main event loop driving role-specific periodic work.
func (rn *RaftNode) run() {
	for {
		select {
		case <-rn.shutdownCh:
			return

		case <-rn.electionTimer.C:
			rn.logger.LogElectionTimeout()
			rn.startElection()

		case <-rn.heartbeatTimer.C:
			if rn.getState() == Leader {
				rn.replicateLog()
				rn.resetHeartbeatTimer()
			}

		case <-rn.newEntryCh:
			if rn.getState() == Leader {
				rn.replicateLog()
			}
		}
	}
}

// replicateLog triggers one round of per-peer replication (or
// heartbeat, if a peer has nothing new to send) under the leader's
// current epoch. See replicate.go for the per-peer loop and the
// majority-matchIndex commit rule (§4.3).
func (rn *RaftNode) replicateLog() {
	rn.mu.Lock()
	if rn.state != Leader {
		rn.mu.Unlock()
		return
	}
	epoch := rn.leaderEpoch
	peers := append([]string(nil), rn.peers...)
	rn.mu.Unlock()

	for _, peer := range peers {
		if !rn.retryQueue.Due(peer) {
			continue
		}
		go rn.replicateToPeer(peer, epoch)
	}
}

// reportPeerSeen notifies onPeerSeen, if one was configured, of a
// successful round-trip with peerID.
func (rn *RaftNode) reportPeerSeen(peerID string, term uint64) {
	if rn.onPeerSeen != nil {
		rn.onPeerSeen(peerID, term)
	}
}

// haltOnFatal halts the node when err is a fatal persistence failure
// (§7): once a write to durable state has failed, the in-memory state
// the caller already mutated before the failed persist can no longer
// be trusted to match what followers believe was written, so the node
// must stop rather than keep participating in the cluster.
func (rn *RaftNode) haltOnFatal(err error) {
	if !rafterrors.IsFatal(err) {
		return
	}
	rn.logger.Error("fatal persistence error, halting node", "error", err.Error())
	rn.onFatal(err)
}

// GetState returns current term and whether this node is the leader.
func (rn *RaftNode) GetState() (uint64, bool) {
	term := rn.store.GetTerm()
	rn.mu.Lock()
	defer rn.mu.Unlock()
	return term, rn.state == Leader
}

func (rn *RaftNode) getState() NodeState {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	return rn.state
}

// LeaderHint returns the last node id we believe is leader, for
// NotLeader rejections to point clients toward.
func (rn *RaftNode) LeaderHint() string {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	return rn.leaderID
}

// Shutdown stops the Raft node.
func (rn *RaftNode) Shutdown() {
	rn.logger.Info("shutting down raft node")

	rn.mu.Lock()
	select {
	case <-rn.shutdownCh:
		rn.mu.Unlock()
		return
	default:
		close(rn.shutdownCh)
	}
	if rn.electionTimer != nil {
		rn.electionTimer.Stop()
	}
	if rn.heartbeatTimer != nil {
		rn.heartbeatTimer.Stop()
	}
	rn.mu.Unlock()

	if rn.rpcServer != nil {
		rn.rpcServer.Stop()
	}
	if c, ok := rn.rpcClient.(*GRPCRaftClient); ok {
		c.Close()
	}
}

// resetElectionTimer picks a fresh randomized timeout in
// [electionTimeoutMin, electionTimeoutMax). Caller must not hold rn.mu.
func (rn *RaftNode) resetElectionTimer() {
	spread := int(rn.electionTimeoutMax - rn.electionTimeoutMin)
	var timeout time.Duration
	if spread <= 0 {
		timeout = rn.electionTimeoutMin
	} else {
		timeout = rn.electionTimeoutMin + time.Duration(randomInt(0, spread))
	}

	rn.mu.Lock()
	if rn.electionTimer != nil {
		rn.electionTimer.Stop()
	}
	rn.electionTimer = time.NewTimer(timeout)
	rn.mu.Unlock()
}

func (rn *RaftNode) resetHeartbeatTimer() {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	if rn.heartbeatTimer != nil {
		rn.heartbeatTimer.Stop()
	}
	rn.heartbeatTimer = time.NewTimer(rn.heartbeatInterval)
}
