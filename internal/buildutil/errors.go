// Package buildutil holds the typed error taxonomy from the spec's
// error-handling design, shared by every other internal package.
package buildutil

import (
	"fmt"

	goerrors "github.com/go-errors/errors"
)

// Kind classifies a Foundry error into the taxonomy the spec assigns each
// fallible operation.
type Kind int

const (
	// KindIO covers filesystem failures.
	KindIO Kind = iota
	// KindSetup covers project bootstrap failures.
	KindSetup
	// KindLoad covers project-definition load/compile failures.
	KindLoad
	// KindResolution covers dependency-manager problems.
	KindResolution
	// KindCompile covers compiler failures or rejected callback paths.
	KindCompile
	// KindTestFailure is set when at least one test failed but none errored.
	KindTestFailure
	// KindTestError is set when at least one test errored.
	KindTestError
	// KindScript covers scripted-test assertion/parse failures.
	KindScript
	// KindUsage covers unknown actions or malformed commands.
	KindUsage
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindSetup:
		return "setup"
	case KindLoad:
		return "load"
	case KindResolution:
		return "resolution"
	case KindCompile:
		return "compile"
	case KindTestFailure:
		return "test-failure"
	case KindTestError:
		return "test-error"
	case KindScript:
		return "script"
	case KindUsage:
		return "usage"
	default:
		return "unknown"
	}
}

// Error is the error value that crosses every component boundary described
// in the spec: a human-readable message plus a kind, never a typed payload.
// The underlying cause (if any) is captured with go-errors so buildlog can
// print a stack trace when trace logging is enabled, without that stack
// leaking into Error() itself.
type Error struct {
	Kind  Kind
	Msg   string
	cause *goerrors.Error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Msg
}

// Unwrap lets errors.Is/errors.As see through to the wrapped cause.
func (e *Error) Unwrap() error {
	if e == nil || e.cause == nil {
		return nil
	}
	return e.cause.Err
}

// Stack renders the captured stack trace, or an empty string if none was
// captured. buildlog's Trace only calls this when trace logging is enabled.
func (e *Error) Stack() string {
	if e == nil || e.cause == nil {
		return ""
	}
	return e.cause.ErrorStack()
}

// New builds an Error of the given kind from a message.
func New(kind Kind, format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	return &Error{Kind: kind, Msg: msg, cause: goerrors.Wrap(goerrors.New(msg), 1)}
}

// Wrap annotates an existing error with a kind and message, capturing a
// fresh stack at the wrap site.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	if cause != nil {
		msg = msg + ": " + cause.Error()
	}
	return &Error{Kind: kind, Msg: msg, cause: goerrors.Wrap(cause, 1)}
}
