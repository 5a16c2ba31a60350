package helper

import (
	"errors"
	"fmt"
)

// Kind classifies an Error so callers (in particular the pipeline retry loop)
// can decide whether a failure is worth retrying.
type Kind string

const (
	KindInput                Kind = "input_error"
	KindDependencyUnavailable Kind = "dependency_unavailable"
	KindDependencyTimeout     Kind = "dependency_timeout"
	KindIndexInconsistency    Kind = "index_inconsistency"
	KindInternal              Kind = "internal"
)

// Error wraps a cause with the operation that produced it and a Kind used
// for routing/retry decisions.
type Error struct {
	Operation string
	Kind      Kind
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Operation, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Operation, e.Kind, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError wraps cause as an internal-kind error tagged with operation.
// Most call sites in this codebase do not yet know the precise failure
// kind at the point of wrapping, so NewError defaults to KindInternal;
// use NewErrorKind when the kind is known.
func NewError(operation string, cause error) error {
	return &Error{Operation: operation, Kind: KindInternal, Cause: cause}
}

// NewErrorKind wraps cause with an explicit Kind.
func NewErrorKind(operation string, kind Kind, cause error) error {
	return &Error{Operation: operation, Kind: kind, Cause: cause}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error, otherwise returns KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
