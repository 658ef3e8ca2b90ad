package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a namespaced error code for Merlya framework errors.
type ErrorCode string

// Configuration error codes
const (
	CONFIG_LOAD_FAILED       ErrorCode = "CONFIG_LOAD_FAILED"
	CONFIG_PARSE_FAILED      ErrorCode = "CONFIG_PARSE_FAILED"
	CONFIG_VALIDATION_FAILED ErrorCode = "CONFIG_VALIDATION_FAILED"
)

// Inventory error codes
const (
	INVENTORY_OPEN_FAILED  ErrorCode = "INVENTORY_OPEN_FAILED"
	INVENTORY_QUERY_FAILED ErrorCode = "INVENTORY_QUERY_FAILED"
	HOST_NOT_FOUND         ErrorCode = "HOST_NOT_FOUND"
	HOST_INVALID           ErrorCode = "HOST_INVALID"
)

// Routing error codes
const (
	ROUTES_LOAD_FAILED  ErrorCode = "ROUTES_LOAD_FAILED"
	ROUTES_PARSE_FAILED ErrorCode = "ROUTES_PARSE_FAILED"
)

// SSH error codes
const (
	SSH_CONNECT_FAILED  ErrorCode = "SSH_CONNECT_FAILED"
	SSH_CONNECT_TIMEOUT ErrorCode = "SSH_CONNECT_TIMEOUT"
	SSH_AUTH_FAILED     ErrorCode = "SSH_AUTH_FAILED"
	SSH_PROTOCOL_ERROR  ErrorCode = "SSH_PROTOCOL_ERROR"
	SSH_COMMAND_TIMEOUT ErrorCode = "SSH_COMMAND_TIMEOUT"
	SSH_TUNNEL_FAILED   ErrorCode = "SSH_TUNNEL_FAILED"
)

// Circuit breaker error codes
const (
	CIRCUIT_OPEN           ErrorCode = "CIRCUIT_OPEN"
	CIRCUIT_OPEN_PERMANENT ErrorCode = "CIRCUIT_OPEN_PERMANENT"
)

// Resolution error codes
const (
	RESOLVE_FAILED ErrorCode = "RESOLVE_FAILED"
)

// Credential error codes
const (
	CREDENTIAL_NOT_FOUND ErrorCode = "CREDENTIAL_NOT_FOUND"
	CREDENTIAL_INVALID   ErrorCode = "CREDENTIAL_INVALID"
)

// Execution error codes
const (
	RISK_BLOCKED       ErrorCode = "RISK_BLOCKED"
	LOCAL_EXEC_FAILED  ErrorCode = "LOCAL_EXEC_FAILED"
	LOCAL_EXEC_PARSE   ErrorCode = "LOCAL_EXEC_PARSE"
	LOCAL_EXEC_TIMEOUT ErrorCode = "LOCAL_EXEC_TIMEOUT"
)

// MerlyaError represents a structured error with error code, message, and optional cause.
// It supports error wrapping and retryability hints for error handling logic.
type MerlyaError struct {
	Code      ErrorCode
	Message   string
	Retryable bool
	Cause     error
}

// Error implements the error interface, returning a formatted error message.
// Format: "[CODE] message" or "[CODE] message: cause" if cause exists.
func (e *MerlyaError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for error unwrapping chains.
// This enables using errors.Is() and errors.As() with wrapped errors.
func (e *MerlyaError) Unwrap() error {
	return e.Cause
}

// Is checks if the target error matches this error by error code.
// Returns true if target is a MerlyaError with the same Code.
func (e *MerlyaError) Is(target error) bool {
	var merlyaErr *MerlyaError
	if errors.As(target, &merlyaErr) {
		return e.Code == merlyaErr.Code
	}
	return false
}

// NewError creates a new non-retryable MerlyaError with the given code and message.
func NewError(code ErrorCode, message string) *MerlyaError {
	return &MerlyaError{
		Code:      code,
		Message:   message,
		Retryable: false,
		Cause:     nil,
	}
}

// NewRetryableError creates a new retryable MerlyaError with the given code and message.
// Use this for transient errors that may succeed on retry (e.g., network timeouts).
func NewRetryableError(code ErrorCode, message string) *MerlyaError {
	return &MerlyaError{
		Code:      code,
		Message:   message,
		Retryable: true,
		Cause:     nil,
	}
}

// WrapError creates a new non-retryable MerlyaError that wraps an existing error.
// The wrapped error is accessible via Unwrap() for error chain inspection.
func WrapError(code ErrorCode, message string, cause error) *MerlyaError {
	return &MerlyaError{
		Code:      code,
		Message:   message,
		Retryable: false,
		Cause:     cause,
	}
}
