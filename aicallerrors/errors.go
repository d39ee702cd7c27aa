// Copyright (c) 2024 Uber Technologies, Inc.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package aicallerrors defines the error Status used across the framework.
//
// Every terminal failure of a call is represented as a Status carrying a
// Code. Components construct errors with Newf or Wrap and inspect them with
// ErrorCode; the retry layer makes its decisions exclusively from codes.
package aicallerrors

import (
	"errors"
	"fmt"
)

// Status is a classified error.
type Status struct {
	code Code
	err  error
}

// Newf builds a Status with a code and a formatted message.
//
// A CodeOK status is meaningless; Newf returns nil for it.
func Newf(code Code, format string, args ...interface{}) *Status {
	if code == CodeOK {
		return nil
	}
	var err error
	if len(args) == 0 {
		err = errors.New(format)
	} else {
		err = fmt.Errorf(format, args...)
	}
	return &Status{code: code, err: err}
}

// Wrap classifies an existing error under a code, preserving it as the cause.
func Wrap(code Code, err error) *Status {
	if code == CodeOK || err == nil {
		return nil
	}
	return &Status{code: code, err: &wrapError{err: err}}
}

// wrapError adds a level of indirection so that Status.Unwrap reaches the
// wrapped cause itself, not the cause's cause.
type wrapError struct {
	err error
}

func (e *wrapError) Error() string { return e.err.Error() }

func (e *wrapError) Unwrap() error { return e.err }

// FromError returns the Status for an error, or nil for a nil error. Errors
// that are not a Status (anywhere in their chain) are classified as
// CodeUnknown.
func FromError(err error) *Status {
	if err == nil {
		return nil
	}
	var st *Status
	if errors.As(err, &st) {
		return st
	}
	return &Status{code: CodeUnknown, err: &wrapError{err: err}}
}

// IsStatus reports whether the error chain contains a Status.
func IsStatus(err error) bool {
	var st *Status
	return errors.As(err, &st)
}

// ErrorCode returns the code of the error, walking the cause chain. A nil
// error has CodeOK; an unclassified error has CodeUnknown.
func ErrorCode(err error) Code {
	if err == nil {
		return CodeOK
	}
	var st *Status
	if errors.As(err, &st) {
		return st.code
	}
	return CodeUnknown
}

// Code returns the status code.
func (s *Status) Code() Code {
	if s == nil {
		return CodeOK
	}
	return s.code
}

// Error implements the error interface.
func (s *Status) Error() string {
	return fmt.Sprintf("code:%s %s", s.code.String(), s.err.Error())
}

// Unwrap supports errors.Unwrap.
func (s *Status) Unwrap() error {
	if s == nil {
		return nil
	}
	return errors.Unwrap(s.err)
}

// Message returns the underlying message without the code prefix.
func (s *Status) Message() string {
	if s == nil {
		return ""
	}
	return s.err.Error()
}
