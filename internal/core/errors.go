package core

import (
	"errors"
	"fmt"
)

// Kind is the stable, caller-visible name of an error class.
type Kind string

const (
	KindValidation               Kind = "ValidationError"
	KindNotFound                 Kind = "NotFoundError"
	KindDuplicateCategory        Kind = "DuplicateCategoryError"
	KindEnvelopeNotFound         Kind = "EnvelopeNotFoundError"
	KindHasDependentTransactions Kind = "HasDependentTransactionsError"
	KindNotConnected             Kind = "NotConnectedError"
	KindConfiguration            Kind = "ConfigurationError"
	KindInterrupted              Kind = "InterruptedError"
	KindUnknownTool              Kind = "UnknownToolError"
	KindInternal                 Kind = "InternalError"
)

// Error is a classified ledger error. Message is safe to show to callers;
// Err holds the underlying cause and never leaves the process.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound)
// works for every not-found error regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrValidation               = &Error{Kind: KindValidation, Message: "invalid input"}
	ErrNotFound                 = &Error{Kind: KindNotFound, Message: "not found"}
	ErrDuplicateCategory        = &Error{Kind: KindDuplicateCategory, Message: "category already exists"}
	ErrEnvelopeNotFound         = &Error{Kind: KindEnvelopeNotFound, Message: "envelope does not exist"}
	ErrHasDependentTransactions = &Error{Kind: KindHasDependentTransactions, Message: "envelope has transactions"}
	ErrNotConnected             = &Error{Kind: KindNotConnected, Message: "remote store not connected"}
	ErrConfiguration            = &Error{Kind: KindConfiguration, Message: "invalid configuration"}
	ErrInterrupted              = &Error{Kind: KindInterrupted, Message: "operation timed out or was cancelled"}
	ErrUnknownTool              = &Error{Kind: KindUnknownTool, Message: "unknown tool"}
	ErrInternal                 = &Error{Kind: KindInternal, Message: "an internal error occurred"}
)

// Field-level validation errors.
var (
	ErrEmptyCategory    = &Error{Kind: KindValidation, Message: "category is required and must be a non-empty string"}
	ErrInvalidAmount    = &Error{Kind: KindValidation, Message: "amount must be a positive number"}
	ErrAmountOutOfRange = &Error{Kind: KindValidation, Message: "amount is out of range"}
	ErrInvalidType      = &Error{Kind: KindValidation, Message: "type must be 'income' or 'expense'"}
	ErrInvalidDate      = &Error{Kind: KindValidation, Message: "date must be YYYY-MM-DD"}
)

// Errorf builds a classified error with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies cause under kind with a caller-safe message.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the caller-safe message of err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Message
	}
	return ErrInternal.Message
}
