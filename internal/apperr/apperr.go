// Package apperr defines the error kinds every service returns. Handlers map
// a kind to an HTTP status and, for gate failures, a redirect target.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindAuthRequired         Kind = "auth_required"
	KindSubscriptionRequired Kind = "subscription_required"
	KindPermissionDenied     Kind = "permission_denied"
	KindValidation           Kind = "validation"
	KindInsufficientBalance  Kind = "insufficient_balance"
	KindAlreadyUnlocked      Kind = "already_unlocked"
	KindNotFound             Kind = "not_found"
	KindRateLimited          Kind = "rate_limited"
	KindPersistence          Kind = "persistence"
	KindNetwork              Kind = "network"
)

// FieldError names one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Error struct {
	Kind   Kind
	Msg    string
	Fields []FieldError
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound)
// holds for every not-found error regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrAuthRequired         = &Error{Kind: KindAuthRequired, Msg: "authentication required"}
	ErrSubscriptionRequired = &Error{Kind: KindSubscriptionRequired, Msg: "active subscription required"}
	ErrPermissionDenied     = &Error{Kind: KindPermissionDenied, Msg: "permission denied"}
	ErrInsufficientBalance  = &Error{Kind: KindInsufficientBalance, Msg: "insufficient points"}
	ErrAlreadyUnlocked      = &Error{Kind: KindAlreadyUnlocked, Msg: "already unlocked"}
	ErrNotFound             = &Error{Kind: KindNotFound, Msg: "not found"}
	ErrRateLimited          = &Error{Kind: KindRateLimited, Msg: "too many requests"}
)

func New(kind Kind, msg string) *Error { return &Error{Kind: kind, Msg: msg} }

func Wrap(kind Kind, err error, msg string) *Error { return &Error{Kind: kind, Msg: msg, Err: err} }

func Validation(msg string, fields ...FieldError) *Error {
	return &Error{Kind: KindValidation, Msg: msg, Fields: fields}
}

func NotFound(what string) *Error { return &Error{Kind: KindNotFound, Msg: what + " not found"} }

func Persistence(err error, op string) *Error {
	return &Error{Kind: KindPersistence, Msg: op, Err: err}
}

func Network(err error, op string) *Error {
	return &Error{Kind: KindNetwork, Msg: op, Err: err}
}

// KindOf returns the kind of the first *Error in the chain. Unclassified
// errors are persistence failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindPersistence
}

// FieldsOf returns the field errors carried by a validation error.
func FieldsOf(err error) []FieldError {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}

// Message returns the user-facing text of err. Persistence and network
// causes are not exposed.
func Message(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "internal error"
	}
	if e.Msg != "" {
		switch e.Kind {
		case KindPersistence:
			return "internal error"
		case KindNetwork:
			return "upstream service unavailable"
		}
		return e.Msg
	}
	return string(e.Kind)
}
