package batch

import (
	"errors"
	"fmt"
)

// Error kinds reported by ErrorKind.
const (
	KindValidation        = "validation"
	KindNotFound          = "not_found"
	KindIllegalTransition = "illegal_transition"
	KindInternal          = "internal"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("batch not found")
	ErrIllegalTransition = errors.New("illegal transition")
)

// Error carries a classified failure raised by the batch model or the
// orchestrator. errors.Is matches the sentinel for its kind.
type Error struct {
	Kind    string
	BatchID string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" {
		msg = e.Kind
	}
	if e.BatchID != "" {
		msg = fmt.Sprintf("batch %s: %s", e.BatchID, msg)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorKind classifies the error for status mapping.
func (e *Error) ErrorKind() string { return e.Kind }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrIllegalTransition:
		return e.Kind == KindIllegalTransition
	}
	return false
}

// ValidationError reports a rejected request.
func ValidationError(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an unknown batch id.
func NotFoundError(id string) error {
	return &Error{Kind: KindNotFound, BatchID: id, Message: "not found"}
}

// IllegalTransitionError reports a state change the lifecycle forbids.
func IllegalTransitionError(id, format string, args ...any) error {
	return &Error{Kind: KindIllegalTransition, BatchID: id, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the classification of err, defaulting to KindInternal.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	var classified interface{ ErrorKind() string }
	if errors.As(err, &classified) {
		if kind := classified.ErrorKind(); kind != "" {
			return kind
		}
	}
	return KindInternal
}
