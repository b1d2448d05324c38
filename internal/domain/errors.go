package domain

import (
	"errors"
	"fmt"
)

// Kind classifies failures surfaced to callers.
type Kind string

const (
	KindServiceUnavailable Kind = "service_unavailable"
	KindMalformedInput     Kind = "malformed_input"
	KindTimeout            Kind = "timeout"
	KindNoDocuments        Kind = "no_documents"
	KindInternal           Kind = "internal"
)

// Sentinels for errors.Is matching against an *Error of the same kind.
var (
	ErrServiceUnavailable = &Error{Kind: KindServiceUnavailable}
	ErrMalformedInput     = &Error{Kind: KindMalformedInput}
	ErrTimeout            = &Error{Kind: KindTimeout}
	ErrNoDocuments        = &Error{Kind: KindNoDocuments}
)

// Error is a typed pipeline failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// NewError wraps err with a kind and the operation that failed.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports kind equality so callers can match with the sentinels above.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
