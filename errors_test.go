package lockfleet

import (
	"errors"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"ErrNotFound", ErrNotFound, "object not found"},
		{"ErrConflict", ErrConflict, "concurrent modification detected"},
		{"ErrInvalidConfig", ErrInvalidConfig, "invalid configuration"},
		{"ErrLockHeld", ErrLockHeld, "lock already held by another caller"},
		{"ErrLockWaitTimeout", ErrLockWaitTimeout, "failed to acquire lock within wait budget"},
		{"ErrLockLost", ErrLockLost, "lock lost: backend declared ownership void"},
		{"ErrInsufficientFunds", ErrInsufficientFunds, "insufficient funds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.want {
				t.Errorf("error message = %q, want %q", tt.err.Error(), tt.want)
			}
		})
	}
}

func TestWithContext(t *testing.T) {
	baseErr := errors.New("base error")
	ctx := map[string]interface{}{
		"key":   "account_lock:123",
		"value": 42,
	}

	err := WithContext(baseErr, ctx)

	var errWithCtx *ErrorWithContext
	if !errors.As(err, &errWithCtx) {
		t.Fatalf("expected ErrorWithContext, got %T", err)
	}

	if !errors.Is(err, baseErr) {
		t.Error("expected error to wrap base error")
	}

	if errWithCtx.Context["key"] != "account_lock:123" {
		t.Errorf("context key = %v, want 'account_lock:123'", errWithCtx.Context["key"])
	}
	if errWithCtx.Context["value"] != 42 {
		t.Errorf("context value = %v, want 42", errWithCtx.Context["value"])
	}

	if err.Error() == "" {
		t.Error("error message should not be empty")
	}
}

func TestWithContextNil(t *testing.T) {
	if WithContext(nil, map[string]interface{}{"a": 1}) != nil {
		t.Error("WithContext(nil, ...) should return nil")
	}
}

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"direct ErrNotFound", ErrNotFound, true},
		{"wrapped ErrNotFound", WithContext(ErrNotFound, nil), true},
		{"ErrAccountNotFound", ErrAccountNotFound, true},
		{"other error", errors.New("other"), false},
		{"nil error", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsNotFound(tt.err)
			if got != tt.want {
				t.Errorf("IsNotFound() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"ErrConflict", ErrConflict, true},
		{"ErrLockHeld", ErrLockHeld, true},
		{"ErrLockWaitTimeout", ErrLockWaitTimeout, true},
		{"wrapped ErrConflict", WithContext(ErrConflict, nil), true},
		{"ErrNotFound", ErrNotFound, false},
		{"ErrInvalidConfig", ErrInvalidConfig, false},
		{"nil error", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsRetryable(tt.err)
			if got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsLockLost(t *testing.T) {
	if !IsLockLost(ErrLockLost) {
		t.Error("expected ErrLockLost to be reported as lock-lost")
	}
	if IsLockLost(ErrLockHeld) {
		t.Error("did not expect ErrLockHeld to be reported as lock-lost")
	}
}

func TestErrorWithContextUnwrap(t *testing.T) {
	baseErr := errors.New("base")
	wrappedErr := WithContext(baseErr, map[string]interface{}{"key": "value"})

	if !errors.Is(wrappedErr, baseErr) {
		t.Error("errors.Is should find base error")
	}

	var errWithCtx *ErrorWithContext
	if !errors.As(wrappedErr, &errWithCtx) {
		t.Error("errors.As should extract ErrorWithContext")
	}

	unwrapped := errors.Unwrap(wrappedErr)
	if !errors.Is(unwrapped, baseErr) {
		t.Error("Unwrap should return base error")
	}
}
