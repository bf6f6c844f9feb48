package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Reason is a machine-readable code attached to conflict and prediction
// failures so clients can decide whether to re-fetch, retry, or give up.
// Reasons are compared as values, never by parsing error messages.
type Reason string

const (
	ReasonAlreadyIncluded   Reason = "already_included"
	ReasonAlreadyOnPosition Reason = "already_on_position"
	ReasonPlaylistOutdated  Reason = "playlist_outdated"
	ReasonLinkNotSupported  Reason = "link_not_supported"
	ReasonLinkFetchFailed   Reason = "link_fetch_failed"
	ReasonSessionExists     Reason = "session_exists"
	ReasonRoomOccupied      Reason = "room_occupied"
)

// AppError provides a structured error that can be rendered to API consumers.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Reason     Reason `json:"reason,omitempty"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}

	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}

	return e.Message
}

// Unwrap exposes the internal error for errors.Is / errors.As compatibility.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// WithInternal returns a copy of the AppError with an attached internal error.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Internal = err
	return &cpy
}

// WithMessage returns a copy of the AppError carrying a caller-supplied message.
func (e *AppError) WithMessage(message string) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Message = message
	return &cpy
}

// Common errors exposed to the rest of the application.
var (
	ErrUnauthorized = &AppError{
		Code:       "UNAUTHORIZED",
		Message:    "Authentication required",
		StatusCode: http.StatusUnauthorized,
	}

	ErrTokenExpired = &AppError{
		Code:       "TOKEN_EXPIRED",
		Message:    "Channel token has expired, request a new one and reconnect",
		StatusCode: http.StatusUnauthorized,
	}

	ErrForbidden = &AppError{
		Code:       "FORBIDDEN",
		Message:    "Permission denied",
		StatusCode: http.StatusForbidden,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: http.StatusNotFound,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		StatusCode: http.StatusBadRequest,
	}

	ErrCapacityExceeded = &AppError{
		Code:       "CAPACITY_EXCEEDED",
		Message:    "Too many concurrent connections for this user",
		StatusCode: http.StatusTooManyRequests,
	}

	ErrStoreCommit = &AppError{
		Code:       "STORE_COMMIT_FAILED",
		Message:    "Shared store write failed",
		StatusCode: http.StatusInternalServerError,
	}

	ErrInternalServer = &AppError{
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    "Internal server error",
		StatusCode: http.StatusInternalServerError,
	}
)

// New builds a new application error with the provided metadata.
func New(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// NewBadRequest builds a bad-request error with a caller-supplied message.
func NewBadRequest(message string) *AppError {
	return &AppError{
		Code:       "BAD_REQUEST",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

// NewConflict builds a conflict error carrying a machine-readable reason.
func NewConflict(reason Reason, message string) *AppError {
	return &AppError{
		Code:       "CONFLICT",
		Message:    message,
		Reason:     reason,
		StatusCode: http.StatusConflict,
	}
}

// NewPredictionFailed reports that the state a client presented (fingerprint,
// link, position) no longer matches reality and the client must re-sync.
func NewPredictionFailed(reason Reason, message string) *AppError {
	return &AppError{
		Code:       "PREDICTION_FAILED",
		Message:    message,
		Reason:     reason,
		StatusCode: http.StatusPreconditionFailed,
	}
}

// NewValidation reports a malformed or missing request field. No side effects
// have occurred when this is returned.
func NewValidation(field string) *AppError {
	return &AppError{
		Code:       "VALIDATION_FAILED",
		Message:    fmt.Sprintf("Required field %q is missing or malformed", field),
		StatusCode: http.StatusBadRequest,
	}
}

// Wrap turns any error into an AppError while keeping the original error for logging.
func Wrap(err error, message string) *AppError {
	return &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   err,
	}
}

// FromError converts a generic error into an AppError, defaulting to ErrInternalServer.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return ErrInternalServer.WithInternal(err)
}

// IsConflict reports whether err is a conflict carrying the supplied reason.
func IsConflict(err error, reason Reason) bool {
	appErr := FromError(err)
	return appErr != nil && appErr.Code == "CONFLICT" && appErr.Reason == reason
}

// HasReason extracts the reason code from err, if any.
func HasReason(err error) (Reason, bool) {
	appErr := FromError(err)
	if appErr == nil || appErr.Reason == "" {
		return "", false
	}
	return appErr.Reason, true
}
