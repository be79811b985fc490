// Package sessionerr defines the error taxonomy shared by every
// component that can fail in a user-visible way: store, lineage,
// derive, analysis, export, search, and continuation.
package sessionerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error so callers (chiefly cmd/sessionctl) can
// choose an exit code and a message without string-matching.
type Kind int

const (
	// Unknown wraps errors that don't fit a more specific kind.
	Unknown Kind = iota
	// NotFound means a session ID or selector matched nothing.
	NotFound
	// Ambiguous means a partial selector matched more than one
	// session; Candidates lists the matches.
	Ambiguous
	// Malformed means a session file exists but its content
	// violates the dialect's shape (unparseable JSON, missing
	// required fields).
	Malformed
	// Unavailable means an external agent CLI or SDK the
	// operation depends on could not be reached.
	Unavailable
	// WorkerTimeout means an analysis worker did not return a
	// verdict within its deadline.
	WorkerTimeout
	// WorkerReplyUnparseable means a worker replied but its
	// output could not be parsed into a verdict.
	WorkerReplyUnparseable
	// IOError wraps filesystem failures (permission, disk full,
	// unexpected removal mid-operation).
	IOError
	// DependencyMissing means a required external tool (an agent
	// CLI, the sqlite3 FTS5 module) isn't present.
	DependencyMissing
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Ambiguous:
		return "ambiguous"
	case Malformed:
		return "malformed"
	case Unavailable:
		return "unavailable"
	case WorkerTimeout:
		return "worker_timeout"
	case WorkerReplyUnparseable:
		return "worker_reply_unparseable"
	case IOError:
		return "io_error"
	case DependencyMissing:
		return "dependency_missing"
	default:
		return "unknown"
	}
}

// Error is a classified, wrappable error.
type Error struct {
	Kind       Kind
	Message    string
	Candidates []string // populated for Kind == Ambiguous
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a classified error with no underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a classified error around an existing error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// NotFoundf builds a NotFound error with a formatted message.
func NotFoundf(format string, args ...any) *Error {
	return New(NotFound, fmt.Sprintf(format, args...))
}

// Ambiguousf builds an Ambiguous error carrying the candidate list
// a caller (chiefly the `find`/`resume`/`trim` subcommands) should
// print so the user can disambiguate by full ID.
func Ambiguousf(candidates []string, format string, args ...any) *Error {
	return &Error{
		Kind:       Ambiguous,
		Message:    fmt.Sprintf(format, args...),
		Candidates: candidates,
	}
}

// KindOf extracts the Kind of err if it (or something it wraps) is
// an *Error, else Unknown.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return Unknown
}
