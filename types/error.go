package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// Agent invocation error codes
const (
	ErrAgentUnreachable ErrorCode = "AGENT_UNREACHABLE"
	ErrAgentTimeout     ErrorCode = "AGENT_TIMEOUT"
	ErrInvalidResponse  ErrorCode = "INVALID_AGENT_RESPONSE"
)

// Orchestration error codes
const (
	ErrInsufficientResponses ErrorCode = "INSUFFICIENT_RESPONSES"
	ErrGuardrailBlocked      ErrorCode = "GUARDRAIL_BLOCKED"
	ErrAccessDenied          ErrorCode = "ACCESS_DENIED"
	ErrHumanTimeout          ErrorCode = "HUMAN_TIMEOUT"
	ErrGraphConfigInvalid    ErrorCode = "GRAPH_CONFIG_INVALID"
	ErrMaxHopsExceeded       ErrorCode = "MAX_HOPS_EXCEEDED"
	ErrRunCancelled          ErrorCode = "RUN_CANCELLED"
	ErrRunNotFound           ErrorCode = "RUN_NOT_FOUND"
	ErrInternal              ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, offending node, and cause.
// The run's terminal failure reason is always one of these.
type Error struct {
	Code    ErrorCode `json:"code"`
	NodeID  string    `json:"node_id,omitempty"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.NodeID != "" && e.Cause != nil:
		return fmt.Sprintf("[%s] node %s: %s: %v", e.Code, e.NodeID, e.Message, e.Cause)
	case e.NodeID != "":
		return fmt.Sprintf("[%s] node %s: %s", e.Code, e.NodeID, e.Message)
	case e.Cause != nil:
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	default:
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf creates a new Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithNode attaches the offending node id.
func (e *Error) WithNode(nodeID string) *Error {
	e.NodeID = nodeID
	return e
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// GetErrorCode extracts the error code from an error, unwrapping as needed.
// Returns the empty code when err carries no structured error.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
