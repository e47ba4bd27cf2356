package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard error kinds. Names are stable across versions; callers match with
// errors.Is and map them to transport responses at the edge.
var (
	ErrTenantUnbound      = errors.New("no active tenant bound")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("resource not found")
	ErrValidation         = errors.New("validation error")
	ErrImmutable          = errors.New("record is immutable")
	ErrOverlap            = errors.New("conflicting active record")
	ErrPaymentIncomplete  = errors.New("policy is not fully paid")
	ErrInvalidTransition  = errors.New("invalid state transition")
	ErrLocked             = errors.New("account locked")
	ErrConflict           = errors.New("resource conflict")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInternal           = errors.New("internal server error")
)

// AppError carries an error kind together with transport-level context.
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	StatusCode int               `json:"status_code"`
	Details    map[string]string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error kind
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails attaches field-level details to an AppError
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// Wrap wraps an error with additional context
func Wrap(err error, code string, message string, statusCode int) *AppError {
	return &AppError{
		Err:        err,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Common error constructors

func TenantUnbound() *AppError {
	return &AppError{
		Err:        ErrTenantUnbound,
		Code:       "TENANT_UNBOUND",
		Message:    "operation requires an active tenant",
		StatusCode: http.StatusInternalServerError,
	}
}

func NotFound(resource string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

func Forbidden(message string) *AppError {
	return &AppError{
		Err:        ErrForbidden,
		Code:       "FORBIDDEN",
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func Unauthorized(message string) *AppError {
	return &AppError{
		Err:        ErrUnauthorized,
		Code:       "UNAUTHORIZED",
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func Validation(details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       "VALIDATION_ERROR",
		Message:    "validation failed",
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       "BAD_REQUEST",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func Immutable(message string) *AppError {
	return &AppError{
		Err:        ErrImmutable,
		Code:       "IMMUTABLE",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func Overlap(message string) *AppError {
	return &AppError{
		Err:        ErrOverlap,
		Code:       "OVERLAP",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func PaymentIncomplete(message string) *AppError {
	return &AppError{
		Err:        ErrPaymentIncomplete,
		Code:       "PAYMENT_INCOMPLETE",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func InvalidTransition(message string) *AppError {
	return &AppError{
		Err:        ErrInvalidTransition,
		Code:       "INVALID_TRANSITION",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func Locked(message string) *AppError {
	return &AppError{
		Err:        ErrLocked,
		Code:       "ACCOUNT_LOCKED",
		Message:    message,
		StatusCode: http.StatusTooManyRequests,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Code:       "CONFLICT",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func InvalidCredentials() *AppError {
	return &AppError{
		Err:        ErrInvalidCredentials,
		Code:       "INVALID_CREDENTIALS",
		Message:    "invalid email or password",
		StatusCode: http.StatusUnauthorized,
	}
}

func Internal(message string) *AppError {
	return &AppError{
		Err:        ErrInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

// Is checks if the error matches a target error
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type
func As(err error, target any) bool {
	return errors.As(err, target)
}
