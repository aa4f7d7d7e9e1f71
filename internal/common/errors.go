package common

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInternal     = errors.New("internal error")
	ErrDatabase     = errors.New("database error")
	ErrValidation   = errors.New("validation failed")
	// ErrConflict marks a request that collides with work already in progress.
	ErrConflict = errors.New("conflict")
	// ErrPrecondition marks a business-rule violation (merge, revert).
	ErrPrecondition = errors.New("precondition failed")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NotFound builds the error returned for missing rows and for ownership paths that
// do not match; callers cannot tell the two apart.
func NotFound(what string) *AppError {
	return NewAppError("NOT_FOUND", what+" not found", ErrNotFound)
}

// Invalid builds a validation error for a single field.
func Invalid(message string) *AppError {
	return NewAppError("VALIDATION_ERROR", message, ErrValidation)
}

// Precondition builds a business-rule error; the message is shown to the caller.
func Precondition(message string, cause error) *AppError {
	if cause == nil {
		cause = ErrPrecondition
	}
	return NewAppError("PRECONDITION_FAILED", message, cause)
}

// PublicMessage returns the message safe to show a caller. Internal failures
// collapse to a generic string so no internals leak.
func PublicMessage(err error) string {
	var app *AppError
	if errors.As(err, &app) && !errors.Is(err, ErrInternal) && !errors.Is(err, ErrDatabase) {
		return app.Message
	}
	return "internal error"
}

// Code maps an error onto a gRPC status code.
func Code(err error) codes.Code {
	switch {
	case err == nil:
		return codes.OK
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidInput):
		return codes.InvalidArgument
	case errors.Is(err, ErrNotFound):
		return codes.NotFound
	case errors.Is(err, ErrPrecondition):
		return codes.FailedPrecondition
	case errors.Is(err, ErrConflict):
		return codes.AlreadyExists
	case errors.Is(err, ErrUnauthorized):
		return codes.PermissionDenied
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	default:
		return codes.Internal
	}
}

// StatusFromError converts any error into a gRPC status error with a public message.
func StatusFromError(err error) error {
	if err == nil {
		return nil
	}
	return status.Error(Code(err), PublicMessage(err))
}

// HTTPStatus gives the HTTP equivalent of Code.
func HTTPStatus(err error) int {
	switch Code(err) {
	case codes.OK:
		return http.StatusOK
	case codes.InvalidArgument, codes.FailedPrecondition:
		return http.StatusBadRequest
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists:
		return http.StatusConflict
	case codes.PermissionDenied:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
