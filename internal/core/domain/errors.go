package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a business domain error with a structured error code.
// Codes have the form RG-<AREA>-<NNNN>; the last three digits mirror the HTTP
// status the error maps to.
type DomainError struct {
	Code    string // Error code (e.g., "RG-TOKN-4011")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// Wrap wraps an error with this domain error as the cause.
func (e *DomainError) Wrap(cause error) *DomainError {
	return e.WithCause(cause)
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true // Only check if it's a DomainError
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// HTTPStatus maps an error code to an HTTP status using the trailing digits.
// Unknown errors map to 500.
func HTTPStatus(err error) int {
	code := GetErrorCode(err)
	if len(code) < 4 {
		return 500
	}
	var status int
	if _, scanErr := fmt.Sscanf(code[len(code)-4:len(code)-1], "%d", &status); scanErr != nil {
		return 500
	}
	if status < 100 || status > 599 {
		return 400
	}
	return status
}

// ============================================================================
// Token Errors (TOKN)
// ============================================================================

var (
	// ErrTokenMalformed indicates the token has the wrong length or alphabet.
	ErrTokenMalformed = NewDomainError("RG-TOKN-4000", "malformed token")

	// ErrTokenInvalid indicates a checksum mismatch or an unknown token.
	ErrTokenInvalid = NewDomainError("RG-TOKN-4010", "invalid token")

	// ErrTokenExpired indicates the token is past its expiry and must be reissued.
	ErrTokenExpired = NewDomainError("RG-TOKN-4011", "token expired")

	// ErrTokenAlreadyUsed indicates the guest has already responded.
	ErrTokenAlreadyUsed = NewDomainError("RG-TOKN-4090", "token already used")
)

// ============================================================================
// Access Errors (AUTH)
// ============================================================================

var (
	// ErrBlocked indicates the source identifier is on the block list.
	ErrBlocked = NewDomainError("RG-AUTH-4030", "access blocked")

	// ErrSuspiciousActivity indicates the request was denied by origin or
	// behaviour checks.
	ErrSuspiciousActivity = NewDomainError("RG-AUTH-4031", "suspicious activity")

	// ErrAdminKeyInvalid indicates a missing or wrong admin key.
	ErrAdminKeyInvalid = NewDomainError("RG-AUTH-4010", "invalid admin key")
)

// ============================================================================
// Guest Errors (GUST)
// ============================================================================

var (
	// ErrGuestNotFound indicates no guest record exists for a token.
	ErrGuestNotFound = NewDomainError("RG-GUST-4040", "guest not found")

	// ErrGuestValidation indicates a guest record failed validation.
	ErrGuestValidation = NewDomainError("RG-GUST-4001", "guest validation failed")

	// ErrGuestConflict indicates a token is already assigned to another guest.
	ErrGuestConflict = NewDomainError("RG-GUST-4090", "guest token conflict")

	// ErrCampaignNotFound indicates no campaign has been configured.
	ErrCampaignNotFound = NewDomainError("RG-GUST-4041", "campaign not found")
)

// ============================================================================
// Backup Errors (BKUP)
// ============================================================================

var (
	// ErrBackupNotFound indicates the backup id is unknown.
	ErrBackupNotFound = NewDomainError("RG-BKUP-4040", "backup not found")

	// ErrBackupIntegrity indicates the payload checksum did not match.
	ErrBackupIntegrity = NewDomainError("RG-BKUP-4220", "backup integrity check failed")

	// ErrBackupCorrupt indicates the payload could not be decrypted or decoded.
	ErrBackupCorrupt = NewDomainError("RG-BKUP-4221", "backup payload corrupt")

	// ErrBackupDependency indicates a restore selection is missing a dependency.
	ErrBackupDependency = NewDomainError("RG-BKUP-4222", "backup dependency missing")

	// ErrRecoveryNotFound indicates the recovery operation id is unknown.
	ErrRecoveryNotFound = NewDomainError("RG-BKUP-4041", "recovery operation not found")
)

// ============================================================================
// System Errors (SYS)
// ============================================================================

var (
	// ErrInternalServer indicates an internal server error.
	ErrInternalServer = NewDomainError("RG-SYS-5000", "internal server error")

	// ErrStorageError indicates a storage layer error.
	ErrStorageError = NewDomainError("RG-SYS-5001", "storage error")

	// ErrServiceUnavailable indicates the service is temporarily unavailable.
	ErrServiceUnavailable = NewDomainError("RG-SYS-5030", "service unavailable")

	// ErrBadRequest indicates a malformed request.
	ErrBadRequest = NewDomainError("RG-SYS-4000", "bad request")

	// ErrRateLimited indicates too many requests.
	ErrRateLimited = NewDomainError("RG-SYS-4290", "too many requests")
)

// ============================================================================
// Argument Errors (ARG)
// ============================================================================

var (
	// ErrInvalidArgument indicates an invalid argument.
	ErrInvalidArgument = NewDomainError("RG-ARG-4001", "invalid argument")

	// ErrMissingArgument indicates a required argument is missing.
	ErrMissingArgument = NewDomainError("RG-ARG-4002", "missing required argument")
)
