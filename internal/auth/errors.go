package auth

import "github.com/redmonkez12/go-otp-auth/internal/apperr"

// Request field names used to attribute errors.
const (
	FieldEmail        = "email"
	FieldPassword     = "password"
	FieldFirstName    = "firstName"
	FieldLastName     = "lastName"
	FieldAvatarID     = "avatarId"
	FieldUserID       = "userId"
	FieldCode         = "code"
	FieldRefreshToken = "refreshToken"
	FieldToken        = "token"
	FieldNewPassword  = "newPassword"
)

var (
	ErrEmailRequired      = apperr.New(apperr.KindValidation, apperr.CodeEmailRequired, FieldEmail, "Email is required.")
	ErrInvalidEmailFormat = apperr.New(apperr.KindValidation, apperr.CodeInvalidEmailFormat, FieldEmail, "Enter a valid email address.")
	ErrPasswordRequired   = apperr.New(apperr.KindValidation, apperr.CodePasswordRequired, FieldPassword, "Password is required.")
	ErrPasswordTooShort   = apperr.New(apperr.KindValidation, apperr.CodeWeakPassword, FieldPassword, "Password must be at least 6 characters long.")
	ErrPasswordNoUpper    = apperr.New(apperr.KindValidation, apperr.CodeWeakPassword, FieldPassword, "Password must contain at least one uppercase letter.")
	ErrPasswordNoSpecial  = apperr.New(apperr.KindValidation, apperr.CodeWeakPassword, FieldPassword, "Password must contain at least one special character.")
	ErrInvalidUserID      = apperr.New(apperr.KindValidation, apperr.CodeInvalidUserID, FieldUserID, "Must be a valid UUID.")
	ErrCodeFormat         = apperr.New(apperr.KindValidation, apperr.CodeInvalidCodeFormat, FieldCode, "Code must contain only digits.")
	ErrCodeLength         = apperr.New(apperr.KindValidation, apperr.CodeInvalidCodeFormat, FieldCode, "Code must be exactly 6 digits.")
	ErrTokenRequired      = apperr.New(apperr.KindValidation, apperr.CodeTokenRequired, FieldRefreshToken, "Refresh token is required.")

	ErrDuplicateIdentity = apperr.New(apperr.KindConflict, apperr.CodeDuplicateIdentity, FieldEmail, "This email is already registered.")
	ErrIdentityNotFound  = apperr.New(apperr.KindNotFound, apperr.CodeIdentityNotFound, FieldEmail, "No account found with this email.")
	ErrBadCredential     = apperr.New(apperr.KindAuthentication, apperr.CodeBadCredential, FieldPassword, "Incorrect password.")
	ErrNotVerified       = apperr.New(apperr.KindAuthentication, apperr.CodeNotVerified, FieldEmail, "Account is not verified. Please check your email.")
	ErrAccountDisabled   = apperr.New(apperr.KindAuthentication, apperr.CodeAccountDisabled, "", "This account has been disabled.")
	ErrAlreadyVerified   = apperr.New(apperr.KindOTP, apperr.CodeAlreadyVerified, FieldCode, "This account is already verified.")

	ErrInvalidToken      = apperr.New(apperr.KindToken, apperr.CodeTokenInvalid, "", "Invalid or expired token.")
	ErrExpiredToken      = apperr.New(apperr.KindToken, apperr.CodeTokenExpired, "", "Token has expired.")
	ErrTokenRevoked      = apperr.New(apperr.KindToken, apperr.CodeTokenRevoked, "", "Token has been revoked.")
	ErrMissingAuth       = apperr.New(apperr.KindToken, apperr.CodeMissingAuth, "", "Missing authentication.")
	ErrResetTokenInvalid = apperr.New(apperr.KindValidation, apperr.CodeResetTokenInvalid, FieldToken, "Invalid or expired reset token.")

	ErrNotificationDeliveryFailed = apperr.New(apperr.KindDelivery, apperr.CodeDeliveryFailed, "",
		"Failed to send verification code. Please try again later.")
)

// errUserNotFound is ErrIdentityNotFound as reported by verification.
var errUserNotFound = apperr.New(apperr.KindNotFound, apperr.CodeIdentityNotFound, FieldUserID, "User not found.")
