// Package apperr defines the error taxonomy shared by every component.
// Handlers map codes to transport-level statuses; components never collapse
// distinct codes into a generic failure.
package apperr

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeUnknown            Code = "UNKNOWN"
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
	CodeSessionInvalid     Code = "SESSION_EXPIRED_OR_INVALID"
	CodeForbidden          Code = "FORBIDDEN"
	CodeNotFound           Code = "NOT_FOUND"
	CodeValidation         Code = "VALIDATION_FAILED"
	CodeConflict           Code = "CONFLICT"
	CodeUnavailable        Code = "UNAVAILABLE"
)

type AppError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

func New(code Code, message string) error {
	return &AppError{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &AppError{Code: code, Message: message, Cause: cause}
}

func InvalidCredentials(msg string) error {
	return New(CodeInvalidCredentials, msg)
}

func SessionInvalid(msg string) error {
	return New(CodeSessionInvalid, msg)
}

func Forbidden(msg string) error {
	return New(CodeForbidden, msg)
}

func NotFound(msg string) error {
	return New(CodeNotFound, msg)
}

func Validation(msg string) error {
	return New(CodeValidation, msg)
}

func Conflict(msg string) error {
	return New(CodeConflict, msg)
}

func Unavailable(msg string, cause error) error {
	return Wrap(CodeUnavailable, msg, cause)
}

// CodeOf extracts the code from an error chain, or CodeUnknown if the
// error was not produced by this package.
func CodeOf(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
