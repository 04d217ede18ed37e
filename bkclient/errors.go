package bkclient

import (
	"errors"
	"fmt"

	"github.com/quayledger/bkclient/internal/bkwire"
)

// ErrorKind is the client-visible outcome delivered through every user
// callback (the rc argument). It is string-backed for readable logs and
// metric labels, matching how the teacher tags outcomes in its
// prometheus label sets (e.g. go/network/metrics.go's "status" label).
type ErrorKind string

const (
	Ok                 ErrorKind = "ok"
	NoSuchEntry        ErrorKind = "no_such_entry"
	ProtocolVersion    ErrorKind = "protocol_version"
	UnauthorizedAccess ErrorKind = "unauthorized_access"
	LedgerFenced       ErrorKind = "ledger_fenced"
	WriteFailure       ErrorKind = "write_failure"
	PeerUnavailable    ErrorKind = "peer_unavailable"
	RequestTimeout     ErrorKind = "request_timeout"
	Closed             ErrorKind = "closed"
)

// errorKindFromStatus maps a server status code to a client ErrorKind.
// The mapping is total: every bkwire.StatusCode value is covered, and
// any status this client doesn't recognize maps to NoSuchEntry for reads
// or WriteFailure for adds, per spec §7's "unknown/unmapped server
// status on an add" rule.
func errorKindFromStatus(status bkwire.StatusCode, op bkwire.OpType) ErrorKind {
	switch status {
	case bkwire.StatusOK:
		return Ok
	case bkwire.StatusNoEntry, bkwire.StatusNoLedger:
		return NoSuchEntry
	case bkwire.StatusBadVersion:
		return ProtocolVersion
	case bkwire.StatusUnauthorized:
		return UnauthorizedAccess
	case bkwire.StatusFenced:
		return LedgerFenced
	default:
		if op == bkwire.OpAdd {
			return WriteFailure
		}
		return NoSuchEntry
	}
}

// ErrInvalidArgument is returned synchronously for caller-argument
// violations, e.g. a nil callback.
var ErrInvalidArgument = errors.New("bkclient: invalid argument")

func invalidArgument(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
