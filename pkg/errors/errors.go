// Package errors provides structured error types for imfgraph.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the CLI, HTTP server and task runner
//   - Machine-readable error codes for programmatic handling
//   - User-friendly error messages for task status reporting
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Error codes follow a hierarchical naming convention:
//   - MALFORMED_*, MISSING_*, DUPLICATE_*, INVALID_*: input failures
//   - NOT_FOUND*: resource not found
//   - GENERATION_*, EXTRACTION_*: external collaborator failures
//   - INTERNAL_*: unexpected internal errors
//
// # Usage
//
//	err := errors.New(errors.ErrCodeMissingIdentifier, "component %q has no tagID", name)
//	if errors.Is(err, errors.ErrCodeMissingIdentifier) {
//	    // Reject the document before layout
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeMalformedOutput, origErr, "recover relations")
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidInput        Code = "INVALID_INPUT"
	ErrCodeMalformedOutput     Code = "MALFORMED_STRUCTURED_OUTPUT"
	ErrCodeMissingIdentifier   Code = "MISSING_IDENTIFIER"
	ErrCodeDuplicateIdentifier Code = "DUPLICATE_IDENTIFIER"
	ErrCodeInvalidPath         Code = "INVALID_PATH"
	ErrCodeInvalidConfig       Code = "INVALID_CONFIG"
	ErrCodeUnsupportedFile     Code = "UNSUPPORTED_FILE"

	// Resource not found errors
	ErrCodeNotFound     Code = "NOT_FOUND"
	ErrCodeFileNotFound Code = "FILE_NOT_FOUND"
	ErrCodeTaskNotFound Code = "TASK_NOT_FOUND"

	// External collaborator errors
	ErrCodeGeneration  Code = "GENERATION_FAILED"
	ErrCodeExtraction  Code = "EXTRACTION_FAILED"
	ErrCodeTimeout     Code = "TIMEOUT"
	ErrCodeRateLimited Code = "RATE_LIMITED"

	// Internal errors
	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
	ErrCodeUnavailable Code = "UNAVAILABLE"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// IsInputError reports whether err was caused by the submitted content rather
// than by the system. The HTTP server maps these to 4xx responses.
func IsInputError(err error) bool {
	switch GetCode(err) {
	case ErrCodeInvalidInput, ErrCodeMalformedOutput, ErrCodeMissingIdentifier,
		ErrCodeDuplicateIdentifier, ErrCodeInvalidPath, ErrCodeUnsupportedFile:
		return true
	}
	return false
}

// RateLimitedError provides additional information for rate-limited responses.
type RateLimitedError struct {
	RetryAfter int // Seconds to wait before retrying
	Message    string
}

// Error implements the error interface.
func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited: retry after %d seconds", e.RetryAfter)
	}
	return "rate limited"
}

// Code returns the error code for this error type.
func (e *RateLimitedError) Code() Code {
	return ErrCodeRateLimited
}
