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

package aicallerrors

import (
	"fmt"
	"strconv"
)

const (
	// CodeOK means no error; it is never carried by a Status.
	CodeOK Code = 0

	// CodeNoProvider means discovery returned no endpoint for the target
	// service.
	CodeNoProvider Code = 1

	// CodeCircuitOpen means the per-endpoint circuit breaker refused
	// admission. Calls failing with this code are never retried.
	CodeCircuitOpen Code = 2

	// CodeTimeout means the call deadline elapsed before a response arrived.
	CodeTimeout Code = 3

	// CodeConnectionRefused means the transport could not connect to the
	// endpoint.
	CodeConnectionRefused Code = 4

	// CodeIO means any other transport failure: connection reset, broken
	// pipe, unexpected close.
	CodeIO Code = 5

	// CodeBusiness means the response carried an application error. It is
	// returned to the caller unchanged and never retried.
	CodeBusiness Code = 6

	// CodeProtocol means the peer violated the wire protocol (bad magic,
	// unknown serializer). The connection carrying the violation is closed.
	CodeProtocol Code = 7

	// CodeRetryExhausted means all retry attempts failed. The Status wraps
	// the last attempt's cause.
	CodeRetryExhausted Code = 8

	// CodeInternal means an invariant was violated inside the framework
	// itself.
	CodeInternal Code = 9

	// CodeUnknown means an error that carries no classification.
	CodeUnknown Code = 10
)

// Code classifies the behavioral kind of an error. The retry layer branches
// on codes, never on concrete error types.
type Code int

var _codeToString = map[Code]string{
	CodeOK:                "ok",
	CodeNoProvider:        "no-provider",
	CodeCircuitOpen:       "circuit-open",
	CodeTimeout:           "timeout",
	CodeConnectionRefused: "connection-refused",
	CodeIO:                "io-error",
	CodeBusiness:          "business",
	CodeProtocol:          "protocol-violation",
	CodeRetryExhausted:    "retry-exhausted",
	CodeInternal:          "internal",
	CodeUnknown:           "unknown",
}

// String returns the lowercase dashed name of the code.
func (c Code) String() string {
	if s, ok := _codeToString[c]; ok {
		return s
	}
	return strconv.Itoa(int(c))
}

// MarshalText implements encoding.TextMarshaler.
func (c Code) MarshalText() ([]byte, error) {
	if s, ok := _codeToString[c]; ok {
		return []byte(s), nil
	}
	return nil, fmt.Errorf("unknown error code: %d", int(c))
}
