// Package apperr defines the closed error taxonomy callers branch on.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the caller
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindConflict
	KindInvalidArgument
	KindStoreUnavailable
)

// String returns the stable code of the kind
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindStoreUnavailable:
		return "store_unavailable"
	default:
		return "internal"
	}
}

// Error is an application error annotated with the failing operation
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the wrapped cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors of the same kind, so errors.Is(err, ErrNotFound) works through wrapping
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is checks
var (
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrConflict         = &Error{Kind: KindConflict}
	ErrInvalidArgument  = &Error{Kind: KindInvalidArgument}
	ErrStoreUnavailable = &Error{Kind: KindStoreUnavailable}
)

// NotFound reports a missing post, user, repost or topic
func NotFound(op, format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Conflict reports a duplicate operation
func Conflict(op, format string, args ...interface{}) error {
	return &Error{Kind: KindConflict, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Invalid reports a validation failure
func Invalid(op, format string, args ...interface{}) error {
	return &Error{Kind: KindInvalidArgument, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Unavailable wraps a backend failure. Already classified errors pass through unchanged.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: KindStoreUnavailable, Op: op, Message: "store unavailable", Err: err}
}

// KindOf returns the kind of err, KindUnknown when err is not classified
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

// PublicMessage returns the message safe to show to non-debug callers
func PublicMessage(err error) string {
	var ae *Error
	if !errors.As(err, &ae) {
		return "internal error"
	}
	if ae.Kind == KindStoreUnavailable {
		return "store unavailable"
	}
	if ae.Message == "" {
		return ae.Kind.String()
	}
	return ae.Message
}
