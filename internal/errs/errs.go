// Package errs defines the Librarian's typed error kinds. Every component
// boundary returns one of these (wrapped with fmt.Errorf %w) rather than a
// bare error, so the CLI can map failures to stable exit codes.
package errs

import "fmt"

// Kind identifies one of the documented error categories.
type Kind string

const (
	KindInvalidArgument     Kind = "invalid_argument"
	KindNotBootstrapped     Kind = "not_bootstrapped"
	KindProviderUnavailable Kind = "provider_unavailable"
	KindStorageCorrupt      Kind = "storage_corrupt"
	KindValidationFailed    Kind = "validation_failed"
	KindCancelled           Kind = "cancelled"
	KindLedgerTamper        Kind = "ledger_tamper"
	KindInsufficientEvidence Kind = "insufficient_evidence"
)

// exitCodes maps each Kind to its documented process exit code.
var exitCodes = map[Kind]int{
	KindInvalidArgument:      2,
	KindNotBootstrapped:      3,
	KindProviderUnavailable:  4,
	KindStorageCorrupt:       5,
	KindValidationFailed:     6,
	KindCancelled:            7,
	KindLedgerTamper:         8,
	KindInsufficientEvidence: 9,
}

// Error is a typed, wrapped error carrying a Kind and an exit code.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// ExitCode returns the process exit code for this error's kind.
func (e *Error) ExitCode() int {
	if code, ok := exitCodes[e.Kind]; ok {
		return code
	}
	return 1
}

// New constructs a typed error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs a typed error that wraps an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// ExitCodeFor returns the process exit code for any error, 1 if it is not
// a typed *Error, 0 if err is nil.
func ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	var typed *Error
	if asError(err, &typed) {
		return typed.ExitCode()
	}
	return 1
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

var (
	ErrInvalidArgument      = New(KindInvalidArgument, "invalid argument")
	ErrNotBootstrapped      = New(KindNotBootstrapped, "workspace not bootstrapped")
	ErrProviderUnavailable  = New(KindProviderUnavailable, "embedding provider unavailable")
	ErrStorageCorrupt       = New(KindStorageCorrupt, "storage corrupt")
	ErrValidationFailed     = New(KindValidationFailed, "validation failed")
	ErrCancelled            = New(KindCancelled, "operation cancelled")
	ErrLedgerTamper         = New(KindLedgerTamper, "ledger entry content hash mismatch")
	ErrInsufficientEvidence = New(KindInsufficientEvidence, "release-critical query lacks supporting evidence")
	ErrDimensionMismatch    = New(KindStorageCorrupt, "embedding dimension mismatch with active index")
)
