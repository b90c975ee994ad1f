// ============================================================================
// kflogs - Kubefill Job Log Viewer
// ============================================================================
//
// Package:     stream
// Description: Error taxonomy of the live log stream
// Author:      Mike Stoffels
// Created:     2026-10-14
// License:     MIT
// ============================================================================

package stream

import (
	"errors"
	"fmt"
)

// Code classifies stream errors
type Code string

const (
	CodeUnknown           Code = "UNKNOWN"
	CodeFetch             Code = "FETCH_ERROR"
	CodeConnectionTimeout Code = "CONNECTION_TIMEOUT"
	CodeDecode            Code = "DECODE_ERROR"
	CodeTransportClose    Code = "TRANSPORT_CLOSE"
)

// String returns the string representation of the code
func (c Code) String() string {
	return string(c)
}

// Error is a coded error raised by one stream operation
type Error struct {
	Code Code
	Op   string
	Err  error
}

// Sentinels for errors.Is; matching is by code only.
var (
	ErrFetch             = &Error{Code: CodeFetch}
	ErrConnectionTimeout = &Error{Code: CodeConnectionTimeout}
	ErrDecode            = &Error{Code: CodeDecode}
	ErrTransportClose    = &Error{Code: CodeTransportClose}
)

func newError(code Code, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

func (e *Error) Error() string {
	msg := e.Code.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// CodeOf extracts the code of err, CodeUnknown if err is not a stream error
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}
