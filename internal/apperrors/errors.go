package apperrors

import (
	"errors"
)

// Kind classifies an error for the transport layer.
type Kind string

const (
	KindInternal     Kind = "INTERNAL"
	KindNotFound     Kind = "NOT_FOUND"
	KindConflict     Kind = "CONFLICT"
	KindInvalidInput Kind = "INVALID_INPUT"
	KindIllegalState Kind = "ILLEGAL_STATE"
	KindUnavailable  Kind = "UNAVAILABLE"
	KindForbidden    Kind = "FORBIDDEN"
)

// Error is a classified sentinel. Domain packages declare their sentinels
// with New and compare them with errors.Is.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// New creates a classified sentinel error. Code is the stable machine
// readable identifier written to API responses.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// KindOf walks the wrap chain and returns the kind of the first classified
// error, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the stable code of the first classified error in the chain.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal_error"
}
