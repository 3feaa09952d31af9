package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/redmonkez12/go-otp-auth/internal/apperr"
	"github.com/redmonkez12/go-otp-auth/internal/logging"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Success bool              `json:"success"`
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// MessageResponse is the body of operations that only report an outcome.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// RespondJSON sends a JSON response with the given status code.
// Logs encoding errors to avoid silent failures.
func RespondJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Error("failed to encode JSON response", zap.Error(err))
	}
}

// RespondMessage sends {success: true, message} with status 200.
func RespondMessage(w http.ResponseWriter, message string) {
	RespondJSON(w, MessageResponse{Success: true, Message: message}, http.StatusOK)
}

// RespondErrorWithCode sends a JSON error response with a machine-readable error code.
func RespondErrorWithCode(w http.ResponseWriter, message string, code string, statusCode int) {
	RespondJSON(w, ErrorResponse{Error: message, Code: code}, statusCode)
}

// RespondAppError renders err using its domain kind. Errors that are not
// domain errors are logged and reported as a generic 500.
func RespondAppError(ctx context.Context, w http.ResponseWriter, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		logging.GetLoggerFromContext(ctx).Error("unhandled error", "error", err)
		RespondErrorWithCode(w, "An unexpected error occurred", string(apperr.CodeInternal), http.StatusInternalServerError)
		return
	}

	status := StatusFor(appErr)
	if status >= http.StatusInternalServerError {
		logging.GetLoggerFromContext(ctx).Error("request failed",
			"code", appErr.Code,
			"error", err,
		)
	}

	RespondJSON(w, ErrorResponse{
		Error:  appErr.Message,
		Code:   string(appErr.Code),
		Fields: appErr.FieldMessages(),
	}, status)
}

// StatusFor returns the HTTP status for a domain error.
// The account exists but may not act: that is a 403, not a failed authentication.
func StatusFor(e *apperr.Error) int {
	if e.Code == apperr.CodeNotVerified || e.Code == apperr.CodeAccountDisabled {
		return http.StatusForbidden
	}
	return e.Kind.HTTPStatus()
}

// DecodeJSON decodes the request body into dst, rejecting unknown fields.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperr.New(apperr.KindValidation, apperr.CodeInvalidRequestBody, "", "Request body too large").Wrap(err)
		}
		return apperr.New(apperr.KindValidation, apperr.CodeInvalidRequestBody, "", "Invalid request body").Wrap(err)
	}
	return nil
}
