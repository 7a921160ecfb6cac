package automation

import (
	"errors"
	"fmt"
)

// Kind classifies automation failures so callers can map them to
// HTTP statuses and retry decisions without string matching.
type Kind string

const (
	KindDuplicateTrigger    Kind = "duplicate_trigger"
	KindInvalidAmount       Kind = "invalid_amount"
	KindInsufficientStock   Kind = "insufficient_stock"
	KindInvalidTransition   Kind = "invalid_transition"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindStoreConflict       Kind = "store_conflict"
)

// Error is a classified automation failure. Compare with errors.Is
// against the sentinels below; two Errors match when their kinds match.
type Error struct {
	Kind  Kind
	msg   string
	cause error
}

// Sentinels for errors.Is checks.
var (
	ErrDuplicateTrigger    = &Error{Kind: KindDuplicateTrigger, msg: "duplicate trigger"}
	ErrInvalidAmount       = &Error{Kind: KindInvalidAmount, msg: "invalid amount"}
	ErrInsufficientStock   = &Error{Kind: KindInsufficientStock, msg: "insufficient stock"}
	ErrInvalidTransition   = &Error{Kind: KindInvalidTransition, msg: "invalid transition"}
	ErrUpstreamUnavailable = &Error{Kind: KindUpstreamUnavailable, msg: "upstream unavailable"}
	ErrStoreConflict       = &Error{Kind: KindStoreConflict, msg: "store conflict"}
)

func (e *Error) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// NewError builds a classified error with a formatted message.
func NewError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

// WrapError classifies an underlying error.
func WrapError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, msg: msg, cause: cause}
}

// Retryable reports whether the caller may safely retry the trigger.
// Only failures that leave no partial state and stem from transient
// conditions qualify.
func Retryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == KindUpstreamUnavailable || e.Kind == KindStoreConflict
}

// KindOf returns the classification of err, or "" for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Kind
}
