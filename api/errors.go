// Package api
// Author: momentics <momentics@gmail.com>
//
// Error kinds and structured errors shared by the worker engine,
// notification channels and the mitigation timer.

package api

import (
	"errors"
	"fmt"
)

// ErrorCode classifies engine failures.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInvalidConfig
	ErrCodeOutOfMemory
	ErrCodeChannelUnavailable
	ErrCodeAlreadyRunning
	ErrCodeContextUnavailable
	ErrCodeTaskSpawnFailed
)

var codeNames = map[ErrorCode]string{
	ErrCodeOK:                 "ok",
	ErrCodeInvalidConfig:      "invalid config",
	ErrCodeOutOfMemory:        "out of memory",
	ErrCodeChannelUnavailable: "channel unavailable",
	ErrCodeAlreadyRunning:     "already running",
	ErrCodeContextUnavailable: "context unavailable",
	ErrCodeTaskSpawnFailed:    "task spawn failed",
}

// String returns the human readable name of the code.
func (c ErrorCode) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("error code %d", int(c))
}

// Sentinels for errors.Is matching. Any *Error with the same code matches.
var (
	ErrInvalidConfig      = &Error{Code: ErrCodeInvalidConfig}
	ErrOutOfMemory        = &Error{Code: ErrCodeOutOfMemory}
	ErrChannelUnavailable = &Error{Code: ErrCodeChannelUnavailable}
	ErrAlreadyRunning     = &Error{Code: ErrCodeAlreadyRunning}
	ErrContextUnavailable = &Error{Code: ErrCodeContextUnavailable}
	ErrTaskSpawnFailed    = &Error{Code: ErrCodeTaskSpawnFailed}
)

// Error represents a structured error with code, failing operation and cause.
type Error struct {
	Code    ErrorCode
	Op      string
	Err     error
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Code.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if len(e.Context) > 0 {
		msg = fmt.Sprintf("%s (context: %+v)", msg, e.Context)
	}
	return msg
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError creates a new structured error for op wrapping cause (may be nil).
func NewError(code ErrorCode, op string, cause error) *Error {
	return &Error{Code: code, Op: op, Err: cause}
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// CodeOf extracts the ErrorCode carried by err. Nil and foreign errors
// report ErrCodeOK.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeOK
}
