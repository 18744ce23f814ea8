// Package errs defines the kind-tagged error used across the pipeline.
package errs

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindInput    Kind = "input"
	KindNotFound Kind = "not_found"
	KindFormat   Kind = "format"
	KindRender   Kind = "render"
	KindStorage  Kind = "storage"
)

// Error carries a kind tag, the failing operation and the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E builds an Error. msg may contain fmt verbs; a trailing error argument
// wrapped with %w stays reachable through errors.Is/As.
func E(kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap tags err with kind. A nil err stays nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the outermost Error in the chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
