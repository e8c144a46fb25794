// Package apperr defines the error taxonomy shared by every engine component.
// Each error carries a Kind; callers match kinds with errors.Is against the
// exported sentinels (ErrNotFound, ErrInsufficientFunds, ...).
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for retry and presentation decisions.
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindCapacity          Kind = "capacity"
	KindIllegalState      Kind = "illegal_state"
	KindInvalid           Kind = "invalid"
	KindStorage           Kind = "storage"
	KindInternal          Kind = "internal"
)

// Sentinels for errors.Is matching. An *Error matches the sentinel of its Kind.
var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrCapacity          = errors.New("capacity exceeded")
	ErrIllegalState      = errors.New("illegal state")
	ErrInvalid           = errors.New("invalid argument")
	ErrStorage           = errors.New("storage failure")
)

var sentinels = map[Kind]error{
	KindNotFound:          ErrNotFound,
	KindInsufficientFunds: ErrInsufficientFunds,
	KindCapacity:          ErrCapacity,
	KindIllegalState:      ErrIllegalState,
	KindInvalid:           ErrInvalid,
	KindStorage:           ErrStorage,
}

// Error is the base error type for engine errors.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// NotFoundf creates a not found error with formatting.
func NotFoundf(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// InsufficientFundsf creates an insufficient funds error with formatting.
func InsufficientFundsf(format string, args ...any) error {
	return &Error{Kind: KindInsufficientFunds, Message: fmt.Sprintf(format, args...)}
}

// Capacityf creates a capacity error with formatting.
func Capacityf(format string, args ...any) error {
	return &Error{Kind: KindCapacity, Message: fmt.Sprintf(format, args...)}
}

// IllegalStatef creates an illegal state error with formatting.
func IllegalStatef(format string, args ...any) error {
	return &Error{Kind: KindIllegalState, Message: fmt.Sprintf(format, args...)}
}

// Invalidf creates an invalid argument error with formatting.
func Invalidf(format string, args ...any) error {
	return &Error{Kind: KindInvalid, Message: fmt.Sprintf(format, args...)}
}

// WrapStorage wraps a collaborator failure as a retryable storage error.
func WrapStorage(message string, err error) error {
	return &Error{Kind: KindStorage, Message: message, Err: err}
}

// GetKind returns the kind of an error, KindInternal for foreign errors.
func GetKind(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// IsRetryable reports whether the operation may be retried after re-validation.
func IsRetryable(err error) bool {
	return GetKind(err) == KindStorage
}
