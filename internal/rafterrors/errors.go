// Package rafterrors implements the structured error taxonomy used
// throughout raftbooking: each error carries a Category drawn from the
// abstract kinds a Raft node can encounter, a stable Code for
// programmatic handling, and optional Detail/Hint/Cause for diagnosis.
package rafterrors

import "fmt"

// Code is a unique, stable error identifier.
type Code int

const (
	// Term staleness (1000-1999): a request or reply carried a term
	// lower than ours.
	CodeTermStale Code = 1000

	// Log mismatch (2000-2999): prevLogIndex/prevLogTerm disagreement
	// between leader and follower.
	CodeLogMismatch Code = 2000

	// Not leader (3000-3999): a client command arrived at a non-leader.
	CodeNotLeader Code = 3000

	// Transport (4000-4999): connect/read/write timeout or EOF.
	CodeTransport        Code = 4000
	CodeTransportTimeout Code = 4001
	CodeTransportRefused Code = 4002

	// Persistence (5000-5999): fsync or rename failure. FATAL.
	CodePersistence Code = 5000

	// Malformed (6000-6999): an unparseable wire message.
	CodeMalformed Code = 6000
)

// Category groups related codes, mirroring spec.md's abstract error
// kinds.
type Category string

const (
	CategoryTermStale   Category = "TERM_STALE"
	CategoryLogMismatch Category = "LOG_MISMATCH"
	CategoryNotLeader   Category = "NOT_LEADER"
	CategoryTransport   Category = "TRANSPORT"
	CategoryPersistence Category = "PERSISTENCE"
	CategoryMalformed   Category = "MALFORMED"
)

// RaftError is the structured error type returned by every raftbooking
// component that can fail in one of the taxonomy's categories.
type RaftError struct {
	Code     Code
	Category Category
	Message  string
	Detail   string
	Hint     string
	Cause    error
}

func (e *RaftError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("raft error %d (%s): %s - %s", e.Code, e.Category, e.Message, e.Detail)
	}
	return fmt.Sprintf("raft error %d (%s): %s", e.Code, e.Category, e.Message)
}

func (e *RaftError) Unwrap() error { return e.Cause }

func (e *RaftError) WithDetail(detail string) *RaftError {
	e.Detail = detail
	return e
}

func (e *RaftError) WithHint(hint string) *RaftError {
	e.Hint = hint
	return e
}

func (e *RaftError) WithCause(cause error) *RaftError {
	e.Cause = cause
	return e
}

// TermStale reports that a message carried a term below currentTerm.
func TermStale(currentTerm, msgTerm uint64) *RaftError {
	return &RaftError{
		Code:     CodeTermStale,
		Category: CategoryTermStale,
		Message:  fmt.Sprintf("message term %d is stale against current term %d", msgTerm, currentTerm),
	}
}

// LogMismatch reports a prevLogIndex/prevLogTerm disagreement.
func LogMismatch(prevLogIndex, prevLogTerm uint64) *RaftError {
	return &RaftError{
		Code:     CodeLogMismatch,
		Category: CategoryLogMismatch,
		Message:  fmt.Sprintf("log mismatch at index %d (expected term %d)", prevLogIndex, prevLogTerm),
		Hint:     "leader should decrement nextIndex for this peer and retry",
	}
}

// NotLeader reports that a client command reached a non-leader node,
// optionally carrying a hint toward the last known leader.
func NotLeader(hint string) *RaftError {
	e := &RaftError{
		Code:     CodeNotLeader,
		Category: CategoryNotLeader,
		Message:  "not the leader",
	}
	if hint != "" {
		e.Hint = fmt.Sprintf("retry against %s", hint)
	}
	return e
}

// Transport reports a connect/read/write failure against a peer
// address. A timeout is indistinguishable from loss and must not be
// read as implicit success or failure.
func Transport(address string, cause error) *RaftError {
	return &RaftError{
		Code:     CodeTransport,
		Category: CategoryTransport,
		Message:  fmt.Sprintf("rpc to %s failed", address),
		Cause:    cause,
		Hint:     "treated as no-response; caller should retry with backoff",
	}
}

// TransportTimeout reports that a per-call timeout elapsed.
func TransportTimeout(address string) *RaftError {
	return &RaftError{
		Code:     CodeTransportTimeout,
		Category: CategoryTransport,
		Message:  fmt.Sprintf("rpc to %s timed out", address),
	}
}

// Persistence reports an fsync or atomic-rename failure. Callers MUST
// treat this as fatal: the node must halt rather than continue with
// possibly divergent durable state.
func Persistence(op string, cause error) *RaftError {
	return &RaftError{
		Code:     CodePersistence,
		Category: CategoryPersistence,
		Message:  fmt.Sprintf("persistent state %s failed", op),
		Cause:    cause,
		Hint:     "node must halt; durable state may be divergent",
	}
}

// Malformed reports an unparseable wire message. The connection that
// produced it should be dropped without mutating any state.
func Malformed(detail string) *RaftError {
	return &RaftError{
		Code:     CodeMalformed,
		Category: CategoryMalformed,
		Message:  "malformed message",
		Detail:   detail,
	}
}

// IsFatal reports whether err must halt the node process.
func IsFatal(err error) bool {
	re, ok := err.(*RaftError)
	return ok && re.Category == CategoryPersistence
}

// CodeOf extracts the Code from err, or 0 if err is not a *RaftError.
func CodeOf(err error) Code {
	if re, ok := err.(*RaftError); ok {
		return re.Code
	}
	return 0
}
