package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the coordinator.
type ErrorCode string

// Request error codes
const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrForbidden          ErrorCode = "FORBIDDEN"
	ErrRateLimited        ErrorCode = "RATE_LIMITED"
	ErrTimeout            ErrorCode = "TIMEOUT"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// Coordination error codes
const (
	ErrWorkerNotFound   ErrorCode = "WORKER_NOT_FOUND"
	ErrWorkerExists     ErrorCode = "WORKER_EXISTS"
	ErrTaskNotFound     ErrorCode = "TASK_NOT_FOUND"
	ErrTaskTerminal     ErrorCode = "TASK_TERMINAL"
	ErrRecipientUnknown ErrorCode = "RECIPIENT_UNKNOWN"
	ErrEngineNotRunning ErrorCode = "ENGINE_NOT_RUNNING"
	ErrConceptNotFound  ErrorCode = "CONCEPT_NOT_FOUND"
	ErrStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
	ErrCacheUnavailable ErrorCode = "CACHE_UNAVAILABLE"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WrapError wraps err under the given code. A nil err yields nil.
func WrapError(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	return NewError(code, message).WithCause(err)
}

// AsError extracts a *Error anywhere in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsErrorCode reports whether err carries the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	e, ok := AsError(err)
	return ok && e.Code == code
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// NewInvalidRequestError 创建参数错误
func NewInvalidRequestError(message string) *Error {
	return NewError(ErrInvalidRequest, message)
}

// NewNotFoundError 创建资源不存在错误
func NewNotFoundError(code ErrorCode, id string) *Error {
	return NewError(code, fmt.Sprintf("%s not found", id))
}

// NewInternalError 创建内部错误
func NewInternalError(message string, cause error) *Error {
	return NewError(ErrInternalError, message).WithCause(cause)
}
