// Package cluster tracks the fixed set of peers a raft node knows
// about. Membership never changes at runtime (spec.md's explicit
// Non-goal), so this is a static directory plus an operational liveness
// view, not the dynamic hash ring it was adapted from.
package cluster

import (
	"fmt"
	"sync"
	"time"

	"raftbooking/raft"
)

// Node is one member of a raftbooking cluster, as configured at boot.
type Node struct {
	ID      string
	Address string
	AddedAt time.Time
}

// Directory resolves node IDs to addresses from a static peer list. It
// replaces the consistent-hash ring: every node replicates the full
// log, so there is no key-to-node routing to compute, only identity
// lookup.
type Directory struct {
	mu    sync.RWMutex
	nodes map[string]*Node
}

// NewDirectory builds a Directory from a nodeID -> address map, as
// supplied by config.Peers/PeerAddresses.
func NewDirectory(addresses map[string]string) *Directory {
	d := &Directory{nodes: make(map[string]*Node, len(addresses))}
	now := time.Now()
	for id, addr := range addresses {
		d.nodes[id] = &Node{ID: id, Address: addr, AddedAt: now}
	}
	return d
}

// Resolve returns the address registered for nodeID.
func (d *Directory) Resolve(nodeID string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	node, ok := d.nodes[nodeID]
	if !ok {
		return "", fmt.Errorf("node %s not found in directory", nodeID)
	}
	return node.Address, nil
}

// All returns every node in the directory.
func (d *Directory) All() []*Node {
	d.mu.RLock()
	defer d.mu.RUnlock()

	nodes := make([]*Node, 0, len(d.nodes))
	for _, n := range d.nodes {
		nodes = append(nodes, n)
	}
	return nodes
}

// Addresses returns a copy of the nodeID -> address map.
func (d *Directory) Addresses() map[string]string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[string]string, len(d.nodes))
	for id, n := range d.nodes {
		out[id] = n.Address
	}
	return out
}

// Count returns the number of nodes in the directory.
func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.nodes)
}

// PeerView is one peer's last-known status, as seen from the local
// node's own RPC traffic. It is purely an operational view, logged
// periodically by raftbooking-node — it never feeds back into election
// or replication decisions.
type PeerView struct {
	ID       string
	Address  string
	LastSeen time.Time
	LastTerm uint64
	Stale    bool
}

// Status reports each peer's liveness, adapted from the registry's
// node-tracking but driven by observed AppendEntries/RequestVote
// traffic rather than a gossip or hash-ring membership protocol.
type Status struct {
	mu        sync.RWMutex
	dir       *Directory
	lastSeen  map[string]time.Time
	lastTerm  map[string]uint64
	staleAfter time.Duration
}

// NewClusterStatus builds a Status tracker over dir. A peer not heard
// from within staleAfter is reported Stale in Snapshot.
func NewClusterStatus(dir *Directory, staleAfter time.Duration) *Status {
	return &Status{
		dir:        dir,
		lastSeen:   make(map[string]time.Time),
		lastTerm:   make(map[string]uint64),
		staleAfter: staleAfter,
	}
}

// Observe records that peerID was just heard from (a successful
// AppendEntries/RequestVote round-trip) at the given term.
func (s *Status) Observe(peerID string, term uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen[peerID] = time.Now()
	s.lastTerm[peerID] = term
}

// Snapshot returns a PeerView for every node in the directory,
// including this node's own, marking peers not heard from recently as
// Stale.
func (s *Status) Snapshot(selfID string, selfTerm uint64, selfIsLeader bool) []PeerView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	views := make([]PeerView, 0, s.dir.Count())
	for _, n := range s.dir.All() {
		v := PeerView{ID: n.ID, Address: n.Address}
		if n.ID == selfID {
			v.LastSeen = time.Now()
			v.LastTerm = selfTerm
			v.Stale = false
			views = append(views, v)
			continue
		}
		v.LastSeen = s.lastSeen[n.ID]
		v.LastTerm = s.lastTerm[n.ID]
		v.Stale = v.LastSeen.IsZero() || time.Since(v.LastSeen) > s.staleAfter
		views = append(views, v)
	}
	_ = selfIsLeader
	return views
}

// SelfRole mirrors raft.NodeState's String() values for the local
// node's row in a Status snapshot, so callers formatting a cluster-wide
// view (the node's periodic status log, a future CLI STATUS command)
// don't need their own copy of Leader/Follower's spelling.
func SelfRole(isLeader bool) string {
	if isLeader {
		return raft.Leader.String()
	}
	return raft.Follower.String()
}
