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

package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/aicore/aicall/aicallerrors"
)

// IsRetryable decides whether a failed attempt may be retried under the
// config. The decision is made from the error's behavioral kind, walking the
// cause chain for nested causes:
//
//   - circuit-open: never
//   - timeout (including deadline expiry): iff RetryOnTimeout
//   - connection refused: always
//   - other I/O errors: always
//   - anything else: no
func IsRetryable(err error, config Config) bool {
	if err == nil {
		return false
	}
	config = config.WithDefaults()

	for e := err; e != nil; e = errors.Unwrap(e) {
		switch aicallerrors.ErrorCode(e) {
		case aicallerrors.CodeCircuitOpen:
			return false
		case aicallerrors.CodeTimeout:
			return config.RetryOnTimeout
		case aicallerrors.CodeConnectionRefused:
			return true
		case aicallerrors.CodeIO:
			return true
		case aicallerrors.CodeBusiness, aicallerrors.CodeNoProvider,
			aicallerrors.CodeProtocol, aicallerrors.CodeRetryExhausted:
			return false
		}

		if retryable, ok := classifyTransport(e); ok {
			if retryable == timeoutKind {
				return config.RetryOnTimeout
			}
			return retryable == retryableKind
		}
	}
	return false
}

type transportKind int

const (
	retryableKind transportKind = iota
	timeoutKind
)

// classifyTransport recognizes raw transport errors that never passed
// through the framework's own classification.
func classifyTransport(err error) (transportKind, bool) {
	if errors.Is(err, context.DeadlineExceeded) {
		return timeoutKind, true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return timeoutKind, true
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return retryableKind, true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return retryableKind, true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrClosedPipe) {
		return retryableKind, true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return retryableKind, true
	}
	return 0, false
}
