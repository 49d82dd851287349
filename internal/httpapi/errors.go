package httpapi

import (
	"errors"
	"net/http"

	"github.com/lockfleet/lockfleet"
)

// writeError maps a domain error to the status code and message shape
// spec.md §7 assigns it, never leaking which lock backend produced the
// failure.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, lockfleet.ErrValidation):
		writeFailure(w, http.StatusBadRequest, validationMessage(err), nil)
	case errors.Is(err, lockfleet.ErrAccountNotFound):
		writeFailure(w, http.StatusNotFound, "account not found", nil)
	case errors.Is(err, lockfleet.ErrInsufficientFunds):
		writeFailure(w, http.StatusBadRequest, "insufficient funds", errorContext(err))
	case errors.Is(err, lockfleet.ErrAccountNotActive):
		writeFailure(w, http.StatusBadRequest, "account is not active", nil)
	case errors.Is(err, lockfleet.ErrLockWaitTimeout):
		writeFailure(w, http.StatusServiceUnavailable, "system busy, retry", nil)
	case errors.Is(err, lockfleet.ErrLockBackendError):
		writeFailure(w, http.StatusServiceUnavailable, "the lock system is unavailable", nil)
	case errors.Is(err, lockfleet.ErrLockLost):
		writeFailure(w, http.StatusServiceUnavailable, "the lock system lost ownership mid-operation", nil)
	case lockfleet.IsConflict(err):
		writeFailure(w, http.StatusServiceUnavailable, "concurrent update detected, retry", nil)
	case errors.Is(err, lockfleet.ErrUnsupportedBackend):
		writeFailure(w, http.StatusBadRequest, "unsupported lock provider", nil)
	case errors.Is(err, lockfleet.ErrBackendUnavailable):
		writeFailure(w, http.StatusServiceUnavailable, "requested lock provider is unavailable", nil)
	default:
		writeFailure(w, http.StatusInternalServerError, "internal error", nil)
	}
}

// validationMessage surfaces the offending field when the error carries
// context, per spec.md's "surface message identifies offending field".
func validationMessage(err error) string {
	var withCtx *lockfleet.ErrorWithContext
	if errors.As(err, &withCtx) {
		if field, ok := withCtx.Context["field"]; ok {
			if reason, ok := withCtx.Context["reason"]; ok {
				return "validation failed: " + toString(field) + " " + toString(reason)
			}
		}
		if reason, ok := withCtx.Context["reason"]; ok {
			return "validation failed: " + toString(reason)
		}
	}
	return "validation failed"
}

func errorContext(err error) map[string]interface{} {
	var withCtx *lockfleet.ErrorWithContext
	if errors.As(err, &withCtx) {
		return withCtx.Context
	}
	return nil
}

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
