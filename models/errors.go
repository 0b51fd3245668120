package models

import (
	"errors"
	"fmt"
)

// Error codes used in logs, status responses and internal error handling.
const (
	ErrCodeConfig          = "CONFIG_INVALID"
	ErrCodeAuthRejected    = "AUTH_REJECTED"
	ErrCodeTransientUI     = "TRANSIENT_UI"
	ErrCodeHandlerNotFound = "HANDLER_NOT_FOUND"
	ErrCodeStructural      = "STRUCTURAL"
	ErrCodeUnexpected      = "UNEXPECTED"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeRateLimited     = "RATE_LIMITED"
)

// ErrorDetail is the structured error in status responses and webhook payloads.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AssignError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type AssignError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *AssignError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AssignError) Unwrap() error {
	return e.Err
}

// NewAssignError creates a new AssignError.
func NewAssignError(code, message string, err error) *AssignError {
	return &AssignError{Code: code, Message: message, Err: err}
}

// ConfigError reports an invalid or missing configuration input.
func ConfigError(format string, args ...any) *AssignError {
	return &AssignError{Code: ErrCodeConfig, Message: fmt.Sprintf(format, args...)}
}

// ToDetail converts an internal error to a status-facing ErrorDetail.
func (e *AssignError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// IsCode reports whether any AssignError in err's chain carries code.
func IsCode(err error, code string) bool {
	var ae *AssignError
	for err != nil {
		if !errors.As(err, &ae) {
			return false
		}
		if ae.Code == code {
			return true
		}
		err = ae.Err
	}
	return false
}

// DetailOf converts any error into an ErrorDetail, defaulting to UNEXPECTED.
func DetailOf(err error) *ErrorDetail {
	if err == nil {
		return nil
	}
	var ae *AssignError
	if errors.As(err, &ae) {
		return &ErrorDetail{Code: ae.Code, Message: err.Error()}
	}
	return &ErrorDetail{Code: ErrCodeUnexpected, Message: err.Error()}
}
