package utils

import (
	"errors"
	"fmt"
)

// ErrorKind classifies request-terminating failures.
type ErrorKind int

const (
	// KindUnknown is reported for errors that carry no kind.
	KindUnknown ErrorKind = iota
	// KindUnauthenticated means no usable bearer token was supplied.
	KindUnauthenticated
	// KindForbidden means the identity provider rejected the token.
	KindForbidden
	// KindBadRequest means the guided input failed presence or range checks.
	KindBadRequest
	// KindPredictionFailure covers upstream, parse and schema failures.
	KindPredictionFailure
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindBadRequest:
		return "bad_request"
	case KindPredictionFailure:
		return "prediction_failure"
	default:
		return "unknown"
	}
}

// AppError wraps an operation, human-facing message, kind, and underlying error.
type AppError struct {
	Op   string
	Msg  string
	Kind ErrorKind
	Err  error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError constructs an AppError without a kind.
func NewAppError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err}
}

// NewKindError constructs an AppError tagged with kind.
func NewKindError(kind ErrorKind, op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Kind: kind, Err: err}
}

// KindOf returns the kind of the outermost AppError in err's chain that has one.
func KindOf(err error) ErrorKind {
	for err != nil {
		var appErr *AppError
		if !errors.As(err, &appErr) {
			return KindUnknown
		}
		if appErr.Kind != KindUnknown {
			return appErr.Kind
		}
		err = appErr.Err
	}
	return KindUnknown
}
