package service

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Kind classifies a service error for transport mapping
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuth
	KindForbidden
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindAuth:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal_error"
	}
}

// Error is returned by services for every failure a caller may act on
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Validation builds a ValidationError with a per-field reason
func Validation(field, reason string) *Error {
	return &Error{
		Kind:    KindValidation,
		Code:    "invalid_" + field,
		Message: reason,
		Fields:  map[string]string{field: reason},
	}
}

func Unauthorized(msg string) *Error {
	return &Error{Kind: KindAuth, Code: "unauthorized", Message: msg}
}

func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Code: "forbidden", Message: msg}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Code: "not_found", Message: msg}
}

func Conflict(code, msg string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: msg}
}

func Internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Code: "internal_error", Message: msg, Err: err}
}

// KindOf returns the kind of err, KindInternal for foreign errors
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// notFoundOr translates gorm.ErrRecordNotFound into a NotFound error and wraps anything else
func notFoundOr(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NotFound(msg)
	}
	return Internal(msg, err)
}

var (
	ErrForbiddenPatient   = Forbidden("you do not have access to this patient")
	ErrInviteeUnavailable = &Error{Kind: KindValidation, Code: "invitee_unavailable", Message: "invitee not available, contact your doctor"}
	ErrInvitationGone     = NotFound("invitation not found or already processed")
)
