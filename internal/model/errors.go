package model

import "errors"

// Kind classifies a failure for callers deciding how to react.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindUnauthorized Kind = "unauthorized"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindTransient    Kind = "transient"
	KindFatal        Kind = "fatal"
)

// Error is a classified failure. Sentinels below are compared with errors.Is.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Validation errors.
var (
	ErrInvalidQuantity   = &Error{Kind: KindValidation, Msg: "quantity must be non-zero"}
	ErrInsufficientStock = &Error{Kind: KindValidation, Msg: "insufficient stock"}
	ErrEmptyOrder        = &Error{Kind: KindValidation, Msg: "order has no items"}
	ErrEmptyLocation     = &Error{Kind: KindValidation, Msg: "location is required"}
	ErrCapacity          = &Error{Kind: KindValidation, Msg: "not enough available to pick"}
	ErrCompletedList     = &Error{Kind: KindValidation, Msg: "completed lists cannot be deleted"}
	ErrSameLocation      = &Error{Kind: KindValidation, Msg: "source and destination are the same"}
)

// Authorization errors.
var (
	ErrUnauthorized = &Error{Kind: KindUnauthorized, Msg: "not allowed to create new locations"}
	ErrNotOwner     = &Error{Kind: KindUnauthorized, Msg: "list belongs to another operator"}
)

// Not found errors.
var (
	ErrSlotNotFound = &Error{Kind: KindNotFound, Msg: "slot not found"}
	ErrLogNotFound  = &Error{Kind: KindNotFound, Msg: "log entry not found"}
	ErrListNotFound = &Error{Kind: KindNotFound, Msg: "picking list not found"}
)

// Concurrency conflicts.
var (
	ErrStockMismatch     = &Error{Kind: KindConflict, Msg: "stock mismatch: source has less than requested"}
	ErrAlreadyReversed   = &Error{Kind: KindConflict, Msg: "already reversed"}
	ErrLIFOViolation     = &Error{Kind: KindConflict, Msg: "LIFO violation: a newer change to this slot must be undone first"}
	ErrLockHeld          = &Error{Kind: KindConflict, Msg: "list is being checked by another operator"}
	ErrInvalidTransition = &Error{Kind: KindConflict, Msg: "invalid status transition"}
	ErrOpenListExists    = &Error{Kind: KindConflict, Msg: "operator already has an open picking list"}
)

// ErrFatalInconsistency marks a move whose source was debited but whose destination was never credited.
var ErrFatalInconsistency = &Error{Kind: KindFatal, Msg: "move left source debited without destination credit"}

// Transient wraps a store failure that the caller may re-attempt.
func Transient(msg string, err error) error {
	return &Error{Kind: KindTransient, Msg: msg, Err: err}
}

// Fatal wraps err under ErrFatalInconsistency.
func Fatal(err error) error {
	return &Error{Kind: KindFatal, Msg: ErrFatalInconsistency.Msg, Err: errors.Join(ErrFatalInconsistency, err)}
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
