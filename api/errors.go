// File: api/errors.go
// License: Apache-2.0
//
// Common error values and the structured setup error type.

package api

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across packages.
var (
	ErrClosed            = errors.New("poller is closed")
	ErrNotFound          = errors.New("token not found")
	ErrNotRegistered     = errors.New("fd not registered")
	ErrAlreadyRegistered = errors.New("fd already registered")
	ErrNotSupported      = errors.New("operation not supported")
)

// ErrorCode classifies structured errors.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeSetup
	ErrCodeNotSupported
	ErrCodeInternal
)

// Error is a structured error carrying a classification code. Setup errors
// (bind failure, listener registration failure) are reported this way so
// callers can tell fatal startup conditions from per-connection ones.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error { return e.Cause }

// NewError creates a structured error.
func NewError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}
