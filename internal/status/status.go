// Package status classifies the outcomes of caption-studio operations.
//
// Three kinds of non-success are distinguished:
//   - UserInput: the request cannot proceed as given (no project selected,
//     empty file list, blank base name). Reported as a status message.
//   - KindIO: a storage or database call failed. The operation stopped at the
//     failing step; completed side effects are kept. The message is surfaced
//     verbatim.
//   - NoOp: nothing to do (no duplicates, no captions matched). Reported as a
//     status message, not a failure.
//
// NotFound marks lookups of projects or images that do not exist.
// Errors without a status.Error in their chain are treated as internal.
package status

import (
	"errors"
	"fmt"
)

// Kind is the category of an operation outcome.
type Kind int

const (
	// Internal is the zero Kind, used for errors that were never classified.
	Internal Kind = iota
	UserInput
	KindIO
	NoOp
	NotFound
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case UserInput:
		return "user_input"
	case KindIO:
		return "io"
	case NoOp:
		return "no_op"
	case NotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error is a classified operation error.
type Error struct {
	Kind Kind
	Op   string // operation name, e.g. "ingest" or "rename"
	Msg  string // human-readable status message
	Err  error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Msg != "":
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// UserInputf returns a UserInput error with the given message.
func UserInputf(op, format string, args ...any) error {
	return &Error{Kind: UserInput, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// NoOpf returns a NoOp outcome with the given message.
func NoOpf(op, format string, args ...any) error {
	return &Error{Kind: NoOp, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// NotFoundf returns a NotFound error with the given message.
func NotFoundf(op, format string, args ...any) error {
	return &Error{Kind: NotFound, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// IO wraps a storage failure. A nil err yields nil so call sites can wrap
// unconditionally.
func IO(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindIO, Op: op, Err: err}
}

// KindOf returns the Kind of the first status.Error in err's chain, or
// Internal if there is none.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return Internal
}

// Message returns the text to show a user for err. For classified errors
// with a Msg it is that message; otherwise the full error string.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var se *Error
	if errors.As(err, &se) && se.Msg != "" && se.Err == nil {
		return se.Msg
	}
	return err.Error()
}

// IsNoOp reports whether err is a NoOp outcome.
func IsNoOp(err error) bool {
	return KindOf(err) == NoOp
}
