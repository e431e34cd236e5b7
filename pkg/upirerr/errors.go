// Package upirerr defines the upPIR error taxonomy (spec §7) as a tagged
// sum, following the same shape as noisefs's storage.StorageError: one
// struct carrying a code, a message, and an optional wrapped cause.
package upirerr

import "fmt"

// Kind identifies which error taxonomy entry an Error belongs to.
type Kind string

const (
	// BadArgument is malformed input to a local API.
	BadArgument Kind = "BAD_ARGUMENT"
	// BadRequestLength is a protocol-level bitstring length mismatch.
	BadRequestLength Kind = "BAD_REQUEST_LENGTH"
	// FileNotFound means the manifest references a missing backing file.
	FileNotFound Kind = "FILE_NOT_FOUND"
	// IncorrectFileContents means a file is present but has the wrong
	// length or hash.
	IncorrectFileContents Kind = "INCORRECT_FILE_CONTENTS"
	// CorruptManifest is a structural or semantic manifest validation failure.
	CorruptManifest Kind = "CORRUPT_MANIFEST"
	// CorruptData means k mirror responses reconstructed to a block whose
	// hash does not match the manifest.
	CorruptData Kind = "CORRUPT_DATA"
	// InsufficientMirrors means fewer mirrors are available than the
	// privacy threshold requires, or the reserve pool is exhausted.
	InsufficientMirrors Kind = "INSUFFICIENT_MIRRORS"
	// TransportFailure is a recoverable network error that triggers
	// mirror substitution.
	TransportFailure Kind = "TRANSPORT_FAILURE"
	// InternalError is an invariant violation (programmer bug, not network).
	InternalError Kind = "INTERNAL_ERROR"
	// NotFound means a requested resource (e.g. a not-yet-finished block)
	// does not exist.
	NotFound Kind = "NOT_FOUND"
)

// Error is the concrete error type used across upPIR's core packages.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// New creates an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind wrapping cause.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}

// WireMessage returns the diagnostic text to write directly to a protocol
// response. For an *Error it is the bare Message, without the "<KIND>: "
// prefix Error() adds for logs — callers that build protocol-facing errors
// (e.g. wire.ParseMirrorAdvertisement) already phrase Message as the wire
// diagnostic itself, such as "Error: advertised ip ... does not match peer
// address ...".
func WireMessage(err error) string {
	if e, ok := err.(*Error); ok {
		return e.Message
	}
	return err.Error()
}
