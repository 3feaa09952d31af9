// Package apperr provides the structured domain error used across the service.
//
// Callers branch on Kind (the error class) or on Code (errors.Is compares codes),
// never on message text. Field attributes an error to a request field so the HTTP
// boundary can render field-scoped messages.
package apperr

import (
	"errors"
	"net/http"
)

// Kind is the error class.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindConflict       Kind = "conflict"
	KindAuthentication Kind = "authentication"
	KindNotFound       Kind = "not_found"
	KindOTP            Kind = "otp"
	KindToken          Kind = "token"
	KindDelivery       Kind = "delivery"
	KindRateLimit      Kind = "rate_limit"
	KindInternal       Kind = "internal"
)

// HTTPStatus returns the default HTTP status for errors of this kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation, KindOTP:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindAuthentication, KindToken:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindDelivery:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Code is a machine-readable error code.
type Code string

const (
	CodeInternal           Code = "INTERNAL_ERROR"
	CodeValidationFailed   Code = "VALIDATION_FAILED"
	CodeInvalidRequestBody Code = "INVALID_REQUEST_BODY"

	// Input validation
	CodeEmailRequired      Code = "EMAIL_REQUIRED"
	CodeInvalidEmailFormat Code = "INVALID_EMAIL_FORMAT"
	CodePasswordRequired   Code = "PASSWORD_REQUIRED"
	CodeWeakPassword       Code = "WEAK_PASSWORD"
	CodeFieldTooLong       Code = "FIELD_TOO_LONG"
	CodeInvalidUserID      Code = "INVALID_USER_ID"
	CodeInvalidCodeFormat  Code = "INVALID_CODE_FORMAT"
	CodeTokenRequired      Code = "TOKEN_REQUIRED"

	// Identity
	CodeDuplicateIdentity Code = "DUPLICATE_IDENTITY"
	CodeIdentityNotFound  Code = "IDENTITY_NOT_FOUND"
	CodeBadCredential     Code = "BAD_CREDENTIAL"
	CodeNotVerified       Code = "NOT_VERIFIED"
	CodeAccountDisabled   Code = "ACCOUNT_DISABLED"
	CodeAlreadyVerified   Code = "ALREADY_VERIFIED"

	// One-time codes
	CodeOTPNotIssued Code = "OTP_NOT_ISSUED"
	CodeOTPExpired   Code = "OTP_EXPIRED"
	CodeOTPMismatch  Code = "OTP_MISMATCH"

	// Tokens
	CodeTokenInvalid      Code = "TOKEN_INVALID"
	CodeTokenExpired      Code = "TOKEN_EXPIRED"
	CodeTokenRevoked      Code = "TOKEN_REVOKED"
	CodeResetTokenInvalid Code = "RESET_TOKEN_INVALID"
	CodeMissingAuth       Code = "MISSING_AUTH"

	CodeDeliveryFailed    Code = "NOTIFICATION_DELIVERY_FAILED"
	CodeRateLimitExceeded Code = "RATE_LIMIT_EXCEEDED"
	CodeCooldownActive    Code = "COOLDOWN_ACTIVE"
)

// Error is the domain error type.
type Error struct {
	Kind    Kind
	Code    Code
	Field   string   // request field the error is attributed to, if any
	Message string   // user-facing message
	Details []*Error // per-field failures of a validation error
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error, or one of its details, by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Code == t.Code {
		return true
	}
	for _, d := range e.Details {
		if d.Code == t.Code {
			return true
		}
	}
	return false
}

// WithField returns a copy of e attributed to field.
func (e *Error) WithField(field string) *Error {
	cp := *e
	cp.Field = field
	return &cp
}

// Wrap returns a copy of e carrying cause.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.Cause = cause
	return &cp
}

// FieldMessages flattens e and its details into field -> message.
func (e *Error) FieldMessages() map[string]string {
	out := make(map[string]string)
	if e.Field != "" {
		out[e.Field] = e.Message
	}
	for _, d := range e.Details {
		if d.Field == "" {
			continue
		}
		if _, exists := out[d.Field]; !exists {
			out[d.Field] = d.Message
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// New creates a domain error.
func New(kind Kind, code Code, field, message string) *Error {
	return &Error{
		Kind:    kind,
		Code:    code,
		Field:   field,
		Message: message,
	}
}

// Validation combines per-field failures into a single validation error.
// It returns nil when errs is empty so callers can return it directly.
func Validation(errs []*Error) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	}
	return &Error{
		Kind:    KindValidation,
		Code:    CodeValidationFailed,
		Message: errs[0].Message,
		Details: errs,
	}
}

// As extracts the domain error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf reports the kind of err, KindInternal when err is not a domain error.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}
