package knowledge

import (
	"errors"
	"fmt"
)

// Kind categorizes a knowledge-base error for callers that map errors to
// transport status codes.
type Kind string

const (
	KindValidation Kind = "validation"
	KindProvider   Kind = "provider"
	KindStore      Kind = "store"
	KindInternal   Kind = "internal"
)

// Error is a categorized knowledge-base error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Validationf builds a validation error from a format string.
func Validationf(format string, args ...any) *Error {
	return newError(KindValidation, fmt.Sprintf(format, args...), nil)
}

// ProviderErr wraps a failure from the embedding or chat backend.
func ProviderErr(message string, err error) *Error {
	return newError(KindProvider, message, err)
}

// StoreErr wraps a failure from the embedding record store.
func StoreErr(message string, err error) *Error {
	return newError(KindStore, message, err)
}

// InternalErr wraps an unexpected failure.
func InternalErr(message string, err error) *Error {
	return newError(KindInternal, message, err)
}

// KindOf returns the Kind of err, or KindInternal for uncategorized errors.
func KindOf(err error) Kind {
	var kerr *Error
	if errors.As(err, &kerr) {
		return kerr.Kind
	}
	return KindInternal
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }
