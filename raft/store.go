// raft/store.go
package raft

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"raftbooking/internal/rafterrors"
)

// persistedLogEntry is the JSON-friendly wire shape of a LogEntry: data
// is base64 so arbitrary command bytes survive round-tripping exactly,
// unlike the original's space-delimited text framing (spec §9).
type persistedLogEntry struct {
	Term uint64 `json:"term"`
	Data string `json:"data"`
}

// persistedState is the full on-disk record for one node: currentTerm,
// votedFor, and the log, serialized as one JSON document per §4.2.
type persistedState struct {
	CurrentTerm uint64              `json:"current_term"`
	VotedFor    string              `json:"voted_for"`
	Log         []persistedLogEntry `json:"log"`
}

// Store is the durable, crash-safe record of currentTerm, votedFor, and
// log required by §4.2. Every mutating method fsyncs a freshly written
// temp file and renames it over the previous one, so a crash at any
// point leaves either the old or the new file intact, never a partial
// write — directly fixing the non-atomic `open(fpath, 'w')` write in
// the original's NodePersistentState._save.
type Store struct {
	mu   sync.Mutex
	path string

	currentTerm uint64
	votedFor    string
	log         []*LogEntry
}

// NewStore loads path, materializing an empty state if the file does
// not exist, matching NodePersistentState.load's fallback.
func NewStore(path string) (*Store, error) {
	s := &Store{
		path: path,
		log:  []*LogEntry{{Index: 0, Term: 0}}, // dummy sentinel at index 0
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return s.persistLocked()
	}
	if err != nil {
		return rafterrors.Persistence("load", err)
	}

	var ps persistedState
	if err := json.Unmarshal(data, &ps); err != nil {
		return rafterrors.Malformed("persistent state file is not valid JSON").WithCause(err)
	}

	s.currentTerm = ps.CurrentTerm
	s.votedFor = ps.VotedFor
	s.log = make([]*LogEntry, 0, len(ps.Log)+1)
	s.log = append(s.log, &LogEntry{Index: 0, Term: 0})
	for i, e := range ps.Log {
		raw, err := base64.StdEncoding.DecodeString(e.Data)
		if err != nil {
			return rafterrors.Malformed("log entry data is not valid base64").WithCause(err)
		}
		s.log = append(s.log, &LogEntry{Index: uint64(i + 1), Term: e.Term, Command: raw})
	}
	return nil
}

// persistLocked atomically writes the current in-memory state to disk.
// Caller must hold s.mu. A Store with no backing path (used by tests
// that want Raft's consensus behavior without a file on disk) is a
// pure in-memory mirror and skips writing entirely.
func (s *Store) persistLocked() error {
	if s.path == "" {
		return nil
	}

	ps := persistedState{
		CurrentTerm: s.currentTerm,
		VotedFor:    s.votedFor,
		Log:         make([]persistedLogEntry, 0, len(s.log)-1),
	}
	for _, e := range s.log[1:] {
		ps.Log = append(ps.Log, persistedLogEntry{
			Term: e.Term,
			Data: base64.StdEncoding.EncodeToString(e.Command),
		})
	}

	buf, err := json.Marshal(ps)
	if err != nil {
		return rafterrors.Persistence("marshal", err)
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return rafterrors.Persistence("mkdir", err)
		}
	}

	tmp, err := os.CreateTemp(dir, ".raftstate-*.tmp")
	if err != nil {
		return rafterrors.Persistence("create temp file", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return rafterrors.Persistence("write", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return rafterrors.Persistence("fsync", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return rafterrors.Persistence("close temp file", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return rafterrors.Persistence("rename", err)
	}

	if dirFile, err := os.Open(dir); err == nil {
		dirFile.Sync()
		dirFile.Close()
	}
	return nil
}

// GetTerm returns currentTerm.
func (s *Store) GetTerm() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentTerm
}

// SetTerm sets currentTerm, clearing votedFor whenever the term
// strictly advances, and persists before returning.
func (s *Store) SetTerm(term uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if term > s.currentTerm {
		s.votedFor = ""
	}
	s.currentTerm = term
	return s.persistLocked()
}

// IncrementTerm advances currentTerm by one, clears votedFor, and
// returns the new term.
func (s *Store) IncrementTerm() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentTerm++
	s.votedFor = ""
	if err := s.persistLocked(); err != nil {
		return 0, err
	}
	return s.currentTerm, nil
}

// GetVotedFor returns the candidate voted for in the current term, or
// "" if none.
func (s *Store) GetVotedFor() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.votedFor
}

// SetVotedFor records a vote durably before returning.
func (s *Store) SetVotedFor(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.votedFor = id
	return s.persistLocked()
}

// GetLogs returns a snapshot of the full log, including the index-0
// sentinel.
func (s *Store) GetLogs() []*LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*LogEntry, len(s.log))
	copy(out, s.log)
	return out
}

// GetLastLog returns the last entry in the log (at minimum the
// index-0 sentinel).
func (s *Store) GetLastLog() *LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log[len(s.log)-1]
}

// AppendLog appends entry, durably, and returns its assigned index.
func (s *Store) AppendLog(term uint64, data []byte) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := uint64(len(s.log))
	s.log = append(s.log, &LogEntry{Index: idx, Term: term, Command: data})
	if err := s.persistLocked(); err != nil {
		return 0, err
	}
	return idx, nil
}

// SetLogs truncates the log tail from prefixLen onward
// (prefixLen counts the sentinel, so prefixLen=1 empties the log) and
// persists before returning.
func (s *Store) SetLogs(prefixLen uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prefixLen < 1 {
		prefixLen = 1
	}
	if prefixLen > uint64(len(s.log)) {
		return nil
	}
	s.log = s.log[:prefixLen]
	return s.persistLocked()
}

// AppendAt appends or overwrites entry at index idx, truncating any
// existing tail from idx onward first, then persists once. Used by the
// AppendEntries receive path (§4.3) where multiple entries from a
// single RPC must land atomically relative to disk.
func (s *Store) AppendAt(entries []*LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		if e.Index < uint64(len(s.log)) {
			s.log = s.log[:e.Index]
		}
		s.log = append(s.log, e)
	}
	return s.persistLocked()
}
