package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *DomainError
		expected string
	}{
		{
			name:     "error without details",
			err:      NewDomainError("RG-TEST-1000", "test message"),
			expected: "[RG-TEST-1000] test message",
		},
		{
			name:     "error with details",
			err:      NewDomainError("RG-TEST-1001", "test message").WithDetails("extra info"),
			expected: "[RG-TEST-1001] test message: extra info",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestDomainError_Is(t *testing.T) {
	err1 := NewDomainError("RG-TEST-1000", "message 1")
	err2 := NewDomainError("RG-TEST-1000", "message 2") // Same code, different message
	err3 := NewDomainError("RG-TEST-1001", "message 1") // Different code

	// Same code should match
	if !errors.Is(err1, err2) {
		t.Error("errors.Is should return true for same error code")
	}

	// Different code should not match
	if errors.Is(err1, err3) {
		t.Error("errors.Is should return false for different error code")
	}

	// Should not match non-DomainError
	if errors.Is(err1, fmt.Errorf("some error")) {
		t.Error("errors.Is should return false for non-DomainError")
	}
}

func TestDomainError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("underlying cause")
	err := NewDomainError("RG-TEST-1000", "wrapper").WithCause(cause)

	unwrapped := errors.Unwrap(err)
	if unwrapped != cause {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
	}

	// Without cause
	errNoCause := NewDomainError("RG-TEST-1000", "no cause")
	if errors.Unwrap(errNoCause) != nil {
		t.Error("Unwrap() should return nil when no cause")
	}
}

func TestDomainError_WithDetails(t *testing.T) {
	original := NewDomainError("RG-TEST-1000", "original message")
	withDetails := original.WithDetails("additional details")

	// Check original is unchanged
	if original.Details != "" {
		t.Error("WithDetails should not modify original error")
	}

	// Check new error has details
	if withDetails.Details != "additional details" {
		t.Errorf("Details = %q, want %q", withDetails.Details, "additional details")
	}

	// Check code and message are preserved
	if withDetails.Code != original.Code {
		t.Errorf("Code = %q, want %q", withDetails.Code, original.Code)
	}
	if withDetails.Message != original.Message {
		t.Errorf("Message = %q, want %q", withDetails.Message, original.Message)
	}
}

func TestDomainError_WithCause(t *testing.T) {
	original := NewDomainError("RG-TEST-1000", "original message")
	cause := fmt.Errorf("root cause")
	withCause := original.WithCause(cause)

	// Check original is unchanged
	if original.Cause != nil {
		t.Error("WithCause should not modify original error")
	}

	// Check new error has cause
	if withCause.Cause != cause {
		t.Errorf("Cause = %v, want %v", withCause.Cause, cause)
	}

	// Check code and message are preserved
	if withCause.Code != original.Code {
		t.Errorf("Code = %q, want %q", withCause.Code, original.Code)
	}
}

func TestDomainError_Wrap(t *testing.T) {
	original := NewDomainError("RG-TEST-1000", "original")
	cause := fmt.Errorf("cause")
	wrapped := original.Wrap(cause)

	if wrapped.Cause != cause {
		t.Errorf("Wrap() should set cause, got %v", wrapped.Cause)
	}
}

func TestIsDomainError(t *testing.T) {
	err := ErrGuestNotFound

	if !IsDomainError(err, "RG-GUST-4040") {
		t.Error("IsDomainError should return true for matching code")
	}

	if IsDomainError(err, "RG-GUST-9999") {
		t.Error("IsDomainError should return false for non-matching code")
	}

	if IsDomainError(fmt.Errorf("regular error"), "RG-GUST-4040") {
		t.Error("IsDomainError should return false for non-DomainError")
	}

	// Test with wrapped error
	wrapped := fmt.Errorf("wrapped: %w", ErrGuestNotFound)
	if !IsDomainError(wrapped, "RG-GUST-4040") {
		t.Error("IsDomainError should work with wrapped errors")
	}
}

func TestGetErrorCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "domain error",
			err:      ErrGuestNotFound,
			expected: "RG-GUST-4040",
		},
		{
			name:     "wrapped domain error",
			err:      fmt.Errorf("wrapped: %w", ErrTokenMalformed),
			expected: "RG-TOKN-4000",
		},
		{
			name:     "regular error",
			err:      fmt.Errorf("regular error"),
			expected: "",
		},
		{
			name:     "nil error",
			err:      nil,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetErrorCode(tt.err); got != tt.expected {
				t.Errorf("GetErrorCode() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestPredefinedErrors(t *testing.T) {
	tests := []struct {
		err  *DomainError
		code string
	}{
		{ErrTokenMalformed, "RG-TOKN-4000"},
		{ErrTokenInvalid, "RG-TOKN-4010"},
		{ErrTokenExpired, "RG-TOKN-4011"},
		{ErrTokenAlreadyUsed, "RG-TOKN-4090"},

		{ErrBlocked, "RG-AUTH-4030"},
		{ErrSuspiciousActivity, "RG-AUTH-4031"},
		{ErrAdminKeyInvalid, "RG-AUTH-4010"},

		{ErrGuestNotFound, "RG-GUST-4040"},
		{ErrGuestValidation, "RG-GUST-4001"},
		{ErrGuestConflict, "RG-GUST-4090"},

		{ErrBackupNotFound, "RG-BKUP-4040"},
		{ErrBackupIntegrity, "RG-BKUP-4220"},
		{ErrBackupCorrupt, "RG-BKUP-4221"},
		{ErrBackupDependency, "RG-BKUP-4222"},
		{ErrRecoveryNotFound, "RG-BKUP-4041"},

		{ErrInternalServer, "RG-SYS-5000"},
		{ErrStorageError, "RG-SYS-5001"},
		{ErrServiceUnavailable, "RG-SYS-5030"},
		{ErrBadRequest, "RG-SYS-4000"},
		{ErrRateLimited, "RG-SYS-4290"},

		{ErrInvalidArgument, "RG-ARG-4001"},
		{ErrMissingArgument, "RG-ARG-4002"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Error code = %q, want %q", tt.err.Code, tt.code)
			}
			if tt.err.Message == "" {
				t.Error("Error message should not be empty")
			}
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrTokenMalformed, 400},
		{ErrTokenExpired, 401},
		{ErrBlocked, 403},
		{ErrGuestNotFound, 404},
		{ErrTokenAlreadyUsed, 409},
		{ErrBackupIntegrity, 422},
		{ErrRateLimited, 429},
		{ErrStorageError, 500},
		{fmt.Errorf("wrapped: %w", ErrBackupNotFound), 404},
		{fmt.Errorf("plain"), 500},
		{nil, 500},
	}
	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestErrorChaining(t *testing.T) {
	// Test chaining WithDetails and WithCause
	cause := fmt.Errorf("root cause")
	err := ErrGuestNotFound.
		WithDetails("token: 3f9a1c").
		WithCause(cause)

	// Verify all properties are preserved
	if err.Code != "RG-GUST-4040" {
		t.Errorf("Code = %q, want %q", err.Code, "RG-GUST-4040")
	}
	if err.Details != "token: 3f9a1c" {
		t.Errorf("Details = %q", err.Details)
	}
	if err.Cause != cause {
		t.Error("Cause should be preserved")
	}

	// Verify errors.Is still works
	if !errors.Is(err, ErrGuestNotFound) {
		t.Error("errors.Is should work after chaining")
	}
}
