package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Status    int    `json:"status"`
	Retryable bool   `json:"retryable,omitempty"`
	Err       error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors sharing the same code so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")

	// ErrStoreWrite marks a failed persistence call. Any prior writes of the
	// same operation have been compensated, so the caller may retry.
	ErrStoreWrite = &Error{Code: "STORE_WRITE_FAILED", Status: http.StatusServiceUnavailable, Message: "failed to persist changes", Retryable: true}
	// ErrCompensation marks a rollback that did not complete; manual cleanup is needed.
	ErrCompensation = New("COMPENSATION_FAILED", http.StatusInternalServerError, "partial failure could not be cleaned up, contact support")
	// ErrExternalService marks a payment or email provider failure.
	ErrExternalService = &Error{Code: "EXTERNAL_SERVICE_ERROR", Status: http.StatusBadGateway, Message: "external service failed", Retryable: true}
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// WrapAs wraps cause with the code, status and retry flag of a sentinel.
func WrapAs(sentinel *Error, cause error, message string) *Error {
	wrapped := Clone(sentinel, message)
	wrapped.Err = cause
	return wrapped
}

// IsRetryable reports whether the caller may safely repeat the operation.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// HasCode reports whether err is an *Error carrying code.
func HasCode(err error, code string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// Warning is an advisory problem attached to an otherwise successful result.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewWarning describes err as a warning prefixed with message. The code is
// taken from err when it carries one, otherwise ErrExternalService's is used.
func NewWarning(message string, err error) Warning {
	w := Warning{Code: ErrExternalService.Code, Message: message}
	if err == nil {
		return w
	}
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Code != "" {
		w.Code = appErr.Code
	}
	w.Message = message + ": " + err.Error()
	return w
}
