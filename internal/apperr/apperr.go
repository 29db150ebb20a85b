// Package apperr defines the error taxonomy shared by the store, loop and
// review packages. Errors carry a Kind so callers can branch with errors.Is
// or KindOf without matching on message text.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error.
type Kind string

const (
	KindConfiguration   Kind = "configuration"
	KindNotFound        Kind = "not_found"
	KindIO              Kind = "io"
	KindTimeout         Kind = "timeout"
	KindExternalFailure Kind = "external_failure"
	KindLockConflict    Kind = "lock_conflict"
)

func (k Kind) String() string { return string(k) }

// Error is an error tagged with a Kind and the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same Kind. A target with an
// empty Op and nil Err matches on Kind alone, so sentinel values like
// ErrNotFound work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

// Sentinels for errors.Is checks.
var (
	ErrConfiguration   = &Error{Kind: KindConfiguration}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrIO              = &Error{Kind: KindIO}
	ErrTimeout         = &Error{Kind: KindTimeout}
	ErrExternalFailure = &Error{Kind: KindExternalFailure}
	ErrLockConflict    = &Error{Kind: KindLockConflict}
)

// New returns an *Error with a formatted message.
func New(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap tags err with kind and op. Returns nil if err is nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind of the outermost *Error in err's chain, or "" if
// err carries no kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
