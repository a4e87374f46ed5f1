package shared

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Dispatch errors
	ErrInvalidUser   = fmt.Errorf("invalid user")
	ErrNoCredentials = fmt.Errorf("no usable credentials")

	// Provider errors
	ErrTransient     = fmt.Errorf("transient provider failure")
	ErrQuotaExceeded = fmt.Errorf("provider quota exceeded")
	ErrPermanent     = fmt.Errorf("permanent provider failure")

	// Engine errors
	ErrTransformInvariant  = fmt.Errorf("transform invariant violation")
	ErrPersistenceConflict = fmt.Errorf("persistence conflict")
	ErrCancelled           = fmt.Errorf("cancelled")
	ErrRevoked             = fmt.Errorf("task revoked")
	ErrTaskNotFound        = fmt.Errorf("task not found")
	ErrNotFound            = fmt.Errorf("not found")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrUnknownPlatform = fmt.Errorf("unknown platform")
)

// ErrorKind is the coarse error classification recorded on a task and shown to clients.
type ErrorKind string

const (
	KindNone                ErrorKind = ""
	KindInvalidUser         ErrorKind = "invalid_user"
	KindNoCredentials       ErrorKind = "no_credentials"
	KindTransient           ErrorKind = "transient"
	KindQuotaExceeded       ErrorKind = "quota_exceeded"
	KindPermanent           ErrorKind = "permanent"
	KindTransformInvariant  ErrorKind = "transform_invariant_violation"
	KindPersistenceConflict ErrorKind = "persistence_conflict"
	KindCancelled           ErrorKind = "cancelled"
	KindRevoked             ErrorKind = "revoked"
	KindInternal            ErrorKind = "internal"
)

var kindSentinels = []struct {
	sentinel error
	kind     ErrorKind
}{
	{ErrRevoked, KindRevoked},
	{ErrInvalidUser, KindInvalidUser},
	{ErrNoCredentials, KindNoCredentials},
	{ErrQuotaExceeded, KindQuotaExceeded},
	{ErrPermanent, KindPermanent},
	{ErrTransient, KindTransient},
	{ErrTransformInvariant, KindTransformInvariant},
	{ErrPersistenceConflict, KindPersistenceConflict},
	{ErrCancelled, KindCancelled},
}

// TaskError pairs an [ErrorKind] with a client-safe message.
//
// Err keeps the underlying cause for logs; it is never shown to clients.
type TaskError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// NewTaskError wraps err with the given kind and message.
func NewTaskError(kind ErrorKind, message string, err error) *TaskError {
	return &TaskError{Kind: kind, Message: message, Err: err}
}

func (e *TaskError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// KindOf classifies any error into an [ErrorKind].
//
// A [*TaskError] anywhere in the chain wins; otherwise the package sentinels are matched,
// and a bare context cancellation maps to [KindCancelled].
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	var te *TaskError
	if errors.As(err, &te) {
		return te.Kind
	}

	for _, ks := range kindSentinels {
		if errors.Is(err, ks.sentinel) {
			return ks.kind
		}
	}

	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}

	return KindInternal
}

// MessageOf returns the client-safe message for err.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var te *TaskError
	if errors.As(err, &te) {
		return te.Message
	}
	return err.Error()
}
