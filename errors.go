package lockfleet

import (
	"errors"
	"fmt"
)

// Sentinel errors for the lock core and its illustrative banking workload.
// Each maps to one of §7's error kinds; messages never name a concrete
// backend so callers can surface them without leaking which lock provider
// is in use.
var (
	// Lock errors (C1-C4)
	ErrLockHeld            = errors.New("lock already held by another caller")
	ErrLockWaitTimeout     = errors.New("failed to acquire lock within wait budget")
	ErrLockInterrupted     = errors.New("acquire interrupted before lock was obtained")
	ErrLockBackendError    = errors.New("lock backend error")
	ErrLockNotHeldByCaller = errors.New("lock not held by calling context")
	ErrLockNotFound        = errors.New("lock not found")
	ErrLockLost            = errors.New("lock lost: backend declared ownership void")
	ErrInvalidLockKey      = errors.New("invalid lock key")

	// Backend registry errors (C4)
	ErrUnsupportedBackend = errors.New("unsupported lock backend")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrSwitchIncomplete   = errors.New("backend switch incomplete: drain partially failed")

	// Storage errors (persistence collaborator)
	ErrNotFound        = errors.New("object not found")
	ErrAlreadyExists   = errors.New("object already exists")
	ErrConflict        = errors.New("concurrent modification detected")
	ErrInvalidData     = errors.New("invalid data format")
	ErrTimeout         = errors.New("operation timed out")
	ErrStorageConflict = errors.New("storage version conflict")

	// Business errors (C6)
	ErrValidation        = errors.New("validation failed")
	ErrAccountNotFound   = errors.New("account not found")
	ErrAccountNotActive  = errors.New("account is not active")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrTransactionFailed = errors.New("transaction failed")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ErrorWithContext adds additional context to errors for better debugging and logging.
type ErrorWithContext struct {
	Err     error
	Context map[string]interface{}
}

func (e *ErrorWithContext) Error() string {
	if len(e.Context) == 0 {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v (context: %+v)", e.Err, e.Context)
}

func (e *ErrorWithContext) Unwrap() error {
	return e.Err
}

// WithContext adds context to an error.
func WithContext(err error, context map[string]interface{}) error {
	if err == nil {
		return nil
	}
	return &ErrorWithContext{
		Err:     err,
		Context: context,
	}
}

// Common error checking helpers

// IsNotFound checks if an error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrAccountNotFound) || errors.Is(err, ErrLockNotFound)
}

// IsConflict checks if an error is a conflict/concurrent modification error.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrStorageConflict)
}

// IsRetryable checks if an error is safe to retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrBackendUnavailable) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrLockHeld) ||
		errors.Is(err, ErrLockWaitTimeout)
}

// IsPermanent checks if an error is permanent (not retryable).
func IsPermanent(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidData) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrValidation)
}

// IsLockLost reports whether err represents an I5 handle-liveness violation:
// the backend declared the lock gone out from under its owner.
func IsLockLost(err error) bool {
	return errors.Is(err, ErrLockLost)
}
