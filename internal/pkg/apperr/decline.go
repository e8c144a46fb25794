package apperr

import (
	"errors"
	"fmt"
)

// DeclineReason is the code shown to a player when an operation is refused.
type DeclineReason string

const (
	ReasonNone              DeclineReason = ""
	ReasonAlreadyAtWar      DeclineReason = "ALREADY_AT_WAR"
	ReasonTargetShielded    DeclineReason = "TARGET_SHIELDED"
	ReasonNotFound          DeclineReason = "NOT_FOUND"
	ReasonNoPermission      DeclineReason = "NO_PERMISSION"
	ReasonInsufficientFunds DeclineReason = "INSUFFICIENT_FUNDS"
	ReasonCapacity          DeclineReason = "CAPACITY"
	ReasonIllegalState      DeclineReason = "ILLEGAL_STATE"
	ReasonInvalid           DeclineReason = "INVALID"
	ReasonStorage           DeclineReason = "STORAGE"
	ReasonInternal          DeclineReason = "INTERNAL"
)

// DeclinedError is a user-recoverable refusal with a specific reason code.
// It is an illegal-state error for errors.Is purposes.
type DeclinedError struct {
	Reason  DeclineReason
	Message string
}

func (e *DeclinedError) Error() string {
	return fmt.Sprintf("declined (%s): %s", e.Reason, e.Message)
}

func (e *DeclinedError) Is(target error) bool {
	return target == ErrIllegalState
}

// Declined creates a DeclinedError.
func Declined(reason DeclineReason, format string, args ...any) error {
	return &DeclinedError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// ReasonOf maps any error returned by the engine to a decline reason code.
// A nil error maps to ReasonNone.
func ReasonOf(err error) DeclineReason {
	if err == nil {
		return ReasonNone
	}
	var declined *DeclinedError
	if errors.As(err, &declined) {
		return declined.Reason
	}
	switch GetKind(err) {
	case KindNotFound:
		return ReasonNotFound
	case KindInsufficientFunds:
		return ReasonInsufficientFunds
	case KindCapacity:
		return ReasonCapacity
	case KindIllegalState:
		return ReasonIllegalState
	case KindInvalid:
		return ReasonInvalid
	case KindStorage:
		return ReasonStorage
	}
	return ReasonInternal
}
