// Package errors defines the stable application error codes surfaced by the
// binding engine. Callers receive codes, never raw exception text; the
// underlying cause is preserved for logging via Unwrap.
package errors

import (
	"errors"
	"fmt"
)

// Error codes
const (
	// ErrKeyBindingNotFound is returned when no active binding exists for the identity
	ErrKeyBindingNotFound = "KEY_BINDING_NOT_FOUND"

	// ErrUnboundAuthFactor is returned when a challenge names an auth factor that was never bound
	ErrUnboundAuthFactor = "UNBOUND_AUTH_FACTOR"

	// ErrInvalidChallenge is returned when any presented challenge fails verification
	ErrInvalidChallenge = "INVALID_CHALLENGE"

	// ErrInvalidChallengeFormat is returned when a challenge carries an unparseable payload
	ErrInvalidChallengeFormat = "INVALID_CHALLENGE_FORMAT"

	// ErrInvalidWLAToken is returned when a WLA JWT fails parsing or signature/claim checks
	ErrInvalidWLAToken = "INVALID_WLA_TOKEN"

	// ErrThumbprintHeaderMissing is returned when a WLA JWT lacks the x5t#S256 JOSE header
	ErrThumbprintHeaderMissing = "SHA256_THUMBPRINT_HEADER_MISSING"

	// ErrUnknownWLAFormat is returned when a WLA challenge uses an unrecognized format
	ErrUnknownWLAFormat = "UNKNOWN_WLA_FORMAT"

	// ErrDuplicatePublicKey is returned when a public key is already bound under another psu-token
	ErrDuplicatePublicKey = "DUPLICATE_PUBLIC_KEY"

	// ErrSendOtpFailed is returned when the authenticator reports success without a usable result
	ErrSendOtpFailed = "SEND_OTP_FAILED"

	// ErrKeyBindingFailed is returned when the authenticator returns an incomplete binding result
	ErrKeyBindingFailed = "KEY_BINDING_FAILED"

	// ErrInvalidAuthFactorTypeOrFormat is returned when a challenge names an unsupported
	// auth-factor-type/format pair
	ErrInvalidAuthFactorTypeOrFormat = "INVALID_AUTH_FACTOR_TYPE_OR_CHALLENGE_FORMAT"

	// ErrInvalidDpopHeader is returned when a DPoP proof is structurally invalid
	ErrInvalidDpopHeader = "INVALID_DPOP_HEADER"

	// ErrInvalidDpopProof is returned when a DPoP proof fails binding or replay checks
	ErrInvalidDpopProof = "INVALID_DPOP_PROOF"

	// ErrFailedToCreateJWE is returned when binding-id response encryption fails
	ErrFailedToCreateJWE = "FAILED_TO_CREATE_JWE"

	// ErrInvalidPublicKey is returned when the submitted public key cannot be parsed as a JWK
	ErrInvalidPublicKey = "INVALID_PUBLIC_KEY"

	// ErrInvalidCertificate is returned when a stored or submitted certificate cannot be parsed
	ErrInvalidCertificate = "INVALID_CERTIFICATE"

	// ErrInvalidTransaction is returned when no binding transaction exists for the request
	ErrInvalidTransaction = "INVALID_TRANSACTION"

	// ErrInvalidRequest is returned when a request body cannot be decoded
	ErrInvalidRequest = "INVALID_REQUEST"

	// ErrUnknown is the fallback code for unexpected failures
	ErrUnknown = "UNKNOWN_ERROR"
)

// Error represents an application error with a stable code.
type Error struct {
	// Code is the stable application error code
	Code string

	// Message is a human-readable description, logged but safe to return
	Message string

	// Cause is the underlying error
	Cause error
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, e.Cause)
	}
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new error with the given code.
func New(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// NewWithCode creates a new error carrying only a code.
func NewWithCode(code string) *Error {
	return &Error{Code: code}
}

// CodeOf returns the application code carried by err, or ErrUnknown when err
// is not an application error.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrUnknown
}

// HasCode reports whether err carries the given application code.
func HasCode(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
