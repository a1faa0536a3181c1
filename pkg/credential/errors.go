package credential

import (
	"errors"
	"fmt"
)

// Error codes reported by issuance and verification.
// Callers switch on these to tell a forged credential from an expired one.
const (
	// ErrCodeUntrustedIssuer indicates the issuer is not in the verifier's trust set.
	ErrCodeUntrustedIssuer = "CREDENTIAL_ISSUER_UNTRUSTED"

	// ErrCodeIssuerMismatch indicates the embedded issuer key differs from the trusted key.
	ErrCodeIssuerMismatch = "CREDENTIAL_ISSUER_MISMATCH"

	// ErrCodeSignatureInvalid indicates signature verification failed.
	ErrCodeSignatureInvalid = "CREDENTIAL_SIGNATURE_INVALID"

	// ErrCodeExpired indicates current time >= expiresAt.
	ErrCodeExpired = "CREDENTIAL_EXPIRED"

	// ErrCodeMalformed indicates a key, signature or field value is structurally invalid.
	ErrCodeMalformed = "CREDENTIAL_MALFORMED"

	// ErrCodeRandomnessUnavailable indicates the secure random source failed during issuance.
	ErrCodeRandomnessUnavailable = "CREDENTIAL_RANDOMNESS_UNAVAILABLE"

	// ErrCodeInvalidInput indicates issuance input was rejected.
	ErrCodeInvalidInput = "CREDENTIAL_INVALID_INPUT"
)

// Error is a coded issuance or verification error.
type Error struct {
	// Code is one of the CREDENTIAL_* error codes.
	Code string

	// Message is a human-readable description.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// NewError creates a new Error with the given code and message.
func NewError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// WrapError creates a new Error that wraps an underlying error.
func WrapError(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Sentinel errors for use with errors.Is.
var (
	ErrUntrustedIssuer        = NewError(ErrCodeUntrustedIssuer, "issuer is not trusted")
	ErrIssuerIdentityMismatch = NewError(ErrCodeIssuerMismatch, "issuer key does not match trusted identity")
	ErrInvalidSignature       = NewError(ErrCodeSignatureInvalid, "signature verification failed")
	ErrExpired                = NewError(ErrCodeExpired, "credential has expired")
	ErrMalformed              = NewError(ErrCodeMalformed, "credential is malformed")
	ErrRandomnessUnavailable  = NewError(ErrCodeRandomnessUnavailable, "secure randomness unavailable")
	ErrInvalidInput           = NewError(ErrCodeInvalidInput, "invalid issuance input")
)

// AsError checks if err is an Error and returns it if so.
func AsError(err error) (*Error, bool) {
	var credErr *Error
	if errors.As(err, &credErr) {
		return credErr, true
	}
	return nil, false
}

// GetErrorCode extracts the error code from an Error, or returns empty string.
func GetErrorCode(err error) string {
	if credErr, ok := AsError(err); ok {
		return credErr.Code
	}
	return ""
}
