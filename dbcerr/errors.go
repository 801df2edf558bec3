// Package dbcerr defines the error taxonomy shared by every layer of dbc:
// a tagged kind, a short opaque mark for grep/telemetry, and an optional
// captured call stack.
package dbcerr

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Kind is a closed taxonomy of failure categories. It is a string enum
// rather than an int so log lines and error messages stay self-describing.
type Kind string

const (
	NoDriver            Kind = "no_driver"
	WrongFamily         Kind = "wrong_family"
	ParseError          Kind = "parse_error"
	ConnectFailure      Kind = "connect_failure"
	ConnectionClosed    Kind = "connection_closed"
	StatementClosed     Kind = "statement_closed"
	ResultClosed        Kind = "result_closed"
	ResourceClosed      Kind = "resource_closed"
	BindError           Kind = "bind_error"
	TypeNotSupported    Kind = "type_not_supported"
	NullValue           Kind = "null_value"
	NoCurrentRow        Kind = "no_current_row"
	TransactionState    Kind = "transaction_state"
	IsolationUnsupported Kind = "isolation_unsupported"
	PoolTimeout         Kind = "pool_timeout"
	PoolClosed          Kind = "pool_closed"
	PoolExhausted       Kind = "pool_exhausted"
	UnknownTransaction  Kind = "unknown_transaction"
	ValidationFailed    Kind = "validation_failed"
	Backend             Kind = "backend"
)

// Error is the concrete error type returned by every dbc operation.
type Error struct {
	Kind    Kind
	Mark    string
	Message string
	stack   error // carries the captured call stack, via github.com/pkg/errors
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("dbc[%s %s]: %s: %v", e.Kind, e.Mark, e.Message, e.cause)
	}
	return fmt.Sprintf("dbc[%s %s]: %s", e.Kind, e.Mark, e.Message)
}

// Unwrap exposes the wrapped backend error, if any, so callers can
// errors.As into a driver-specific type while still checking Kind.
func (e *Error) Unwrap() error { return e.cause }

// StackTrace returns the captured frames, or nil if capture was skipped.
func (e *Error) StackTrace() errors.StackTrace {
	type tracer interface{ StackTrace() errors.StackTrace }
	if t, ok := e.stack.(tracer); ok {
		return t.StackTrace()
	}
	return nil
}

// New constructs a tagged Error with a fresh mark and a captured stack.
func New(kind Kind, message string) *Error {
	return &Error{
		Kind:    kind,
		Mark:    newMark(),
		Message: message,
		stack:   errors.New(message),
	}
}

// Newf is New with fmt.Sprintf-style formatting.
func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap tags an arbitrary backend error with the given kind (Backend for
// most backend failures), preserving it for Unwrap/errors.As and capturing a fresh stack at the
// wrap site.
func Wrap(kind Kind, cause error, message string) *Error {
	if cause == nil {
		return New(kind, message)
	}
	return &Error{
		Kind:    kind,
		Mark:    newMark(),
		Message: message,
		stack:   errors.WithStack(cause),
		cause:   cause,
	}
}

// Is reports whether err is a dbcerr.Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// newMark produces a 12-character lowercase alphanumeric mark from a
// cryptographically acceptable source, per spec.md §6.4. It is opaque: not
// parsed by callers, used only for grep/telemetry correlation.
func newMark() string {
	var raw [8]byte
	if _, err := rand.Read(raw[:]); err != nil {
		// crypto/rand failures are effectively unrecoverable on supported
		// platforms; fall back to a fixed mark rather than panicking.
		return "000000000000"
	}
	enc := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw[:])
	enc = strings.ToLower(enc)
	if len(enc) > 12 {
		enc = enc[:12]
	}
	for len(enc) < 12 {
		enc += "0"
	}
	return enc
}
