package apperror

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers deciding between retry, redirect and reject.
type Kind string

const (
	KindInvalidArgument Kind = "INVALID_ARGUMENT"
	KindStorage         Kind = "STORAGE_ERROR"
	KindNotFound        Kind = "NOT_FOUND"
	KindNoContent       Kind = "NO_CONTENT"
	KindAttemptClosed   Kind = "ATTEMPT_CLOSED"
	KindSubmission      Kind = "SUBMISSION_ERROR"
)

// Error is the typed error surfaced by the attempt lifecycle.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, msg, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", msg, e.Err)
	default:
		return msg
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on kind, so errors.Is(err, ErrNotFound) holds for any NotFound error.
// NoContent is a specialisation of NotFound.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind == e.Kind {
		return true
	}
	return t.Kind == KindNotFound && e.Kind == KindNoContent
}

// Retryable reports whether repeating the triggering operation may succeed.
func (e *Error) Retryable() bool {
	return e.Kind == KindStorage || e.Kind == KindSubmission
}

// Sentinels for errors.Is.
var (
	ErrInvalidArgument = &Error{Kind: KindInvalidArgument}
	ErrStorage         = &Error{Kind: KindStorage}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrNoContent       = &Error{Kind: KindNoContent}
	ErrAttemptClosed   = &Error{Kind: KindAttemptClosed}
	ErrSubmission      = &Error{Kind: KindSubmission}
)

func InvalidArgument(op, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidArgument, Op: op, Message: fmt.Sprintf(format, args...)}
}

func Storage(op string, err error) *Error {
	return &Error{Kind: KindStorage, Op: op, Message: "storage unavailable", Err: err}
}

func NotFound(op, what string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Message: what + " not found"}
}

func NoContent(op, what string) *Error {
	return &Error{Kind: KindNoContent, Op: op, Message: what}
}

func AttemptClosed(op string) *Error {
	return &Error{Kind: KindAttemptClosed, Op: op, Message: "attempt is closed"}
}

func Submission(op string, err error) *Error {
	return &Error{Kind: KindSubmission, Op: op, Message: "submission failed", Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsRetryable reports whether err carries a retryable kind.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable()
}
