// Package enigmaerr classifies errors raised anywhere in the engine into the
// kinds the pipeline and CLI need to branch on: what retries, what fails a
// single operation, and what is fatal at startup.
package enigmaerr

import (
	"errors"
	"fmt"
)

// Kind categorizes an error for retry and reporting purposes.
type Kind int

const (
	// Unclassified is the zero value; treated like any other error.
	Unclassified Kind = iota
	// ConfigInvalid marks a fatal startup configuration problem.
	ConfigInvalid
	// AuthFailure marks a passphrase, AEAD tag, or credential authentication failure.
	AuthFailure
	// IntegrityFailure marks a fingerprint mismatch or manifest invariant violation.
	IntegrityFailure
	// StorageTransient marks a provider error that is safe to retry.
	StorageTransient
	// StoragePermanent marks a provider error that should surface immediately.
	StoragePermanent
	// ConsensusUnavailable marks the absence of a leader or quorum.
	ConsensusUnavailable
	// NotFound marks a lookup miss for a backup, file, or chunk.
	NotFound
)

func (k Kind) String() string {
	switch k {
	case ConfigInvalid:
		return "ConfigInvalid"
	case AuthFailure:
		return "AuthFailure"
	case IntegrityFailure:
		return "IntegrityFailure"
	case StorageTransient:
		return "StorageTransient"
	case StoragePermanent:
		return "StoragePermanent"
	case ConsensusUnavailable:
		return "ConsensusUnavailable"
	case NotFound:
		return "NotFound"
	default:
		return "Unclassified"
	}
}

// Error wraps an underlying error with a Kind and optional diagnostic fields.
type Error struct {
	Kind Kind
	Msg  string
	Hash string // set for IntegrityFailure, to name the offending chunk
	Err  error
}

func (e *Error) Error() string {
	if e.Hash != "" {
		return fmt.Sprintf("%s: %s (hash=%s): %v", e.Kind, e.Msg, e.Hash, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error.
func New(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// WithHash attaches a chunk hash for diagnosis (IntegrityFailure).
func WithHash(kind Kind, msg string, hash string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Hash: hash, Err: err}
}

// KindOf returns the Kind of err if it (or something it wraps) is an *Error,
// otherwise Unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unclassified
}

// Retryable reports whether the pipeline should retry the operation that
// produced err: StorageTransient errors and consensus leader redirects.
func Retryable(err error) bool {
	switch KindOf(err) {
	case StorageTransient, ConsensusUnavailable:
		return true
	default:
		return false
	}
}
