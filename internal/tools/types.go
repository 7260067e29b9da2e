// Package tools implements the assistant's callable tools and the
// registry the conversation orchestrator executes them through.
//
// Tools never return Go errors for business failures. A failed lookup,
// a blocked URL, or a bad argument produces a Result with StatusError
// so the model can see what went wrong and recover in conversation.
// Only context cancellation escapes as an error.
package tools

import "fmt"

// Status indicates whether a tool call succeeded.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Error codes for failed tool calls.
const (
	ErrCodeValidation = "VALIDATION_ERROR"
	ErrCodeSecurity   = "SECURITY_ERROR"
	ErrCodeNetwork    = "NETWORK_ERROR"
	ErrCodeExecution  = "EXECUTION_ERROR"
	ErrCodeNotFound   = "NOT_FOUND"
)

// Error describes a failed tool call in a model-readable way.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Result is the uniform outcome of every tool call.
type Result struct {
	Status  Status         `json:"status"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	Error   *Error         `json:"error,omitempty"`
}

// Success builds a successful result.
func Success(message string, data map[string]any) Result {
	return Result{
		Status:  StatusSuccess,
		Message: message,
		Data:    data,
	}
}

// Errorf builds a failed result with a formatted message.
func Errorf(code, format string, args ...any) Result {
	return Result{
		Status: StatusError,
		Error: &Error{
			Code:    code,
			Message: fmt.Sprintf(format, args...),
		},
	}
}
