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
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewf(t *testing.T) {
	st := Newf(CodeTimeout, "deadline elapsed after %dms", 100)
	require.NotNil(t, st)
	assert.Equal(t, CodeTimeout, st.Code())
	assert.Equal(t, "code:timeout deadline elapsed after 100ms", st.Error())
	assert.Equal(t, "deadline elapsed after 100ms", st.Message())

	assert.Nil(t, Newf(CodeOK, "nothing wrong"))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection reset by peer")
	st := Wrap(CodeIO, cause)
	require.NotNil(t, st)
	assert.Equal(t, CodeIO, st.Code())
	assert.True(t, errors.Is(st, cause))
	assert.Equal(t, cause, errors.Unwrap(st))

	assert.Nil(t, Wrap(CodeIO, nil))
	assert.Nil(t, Wrap(CodeOK, cause))
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, CodeOK, ErrorCode(nil))
	assert.Equal(t, CodeUnknown, ErrorCode(errors.New("plain")))
	assert.Equal(t, CodeCircuitOpen, ErrorCode(Newf(CodeCircuitOpen, "open")))

	// Code survives fmt wrapping.
	wrapped := fmt.Errorf("attempt 2: %w", Newf(CodeConnectionRefused, "refused"))
	assert.Equal(t, CodeConnectionRefused, ErrorCode(wrapped))
}

func TestFromError(t *testing.T) {
	assert.Nil(t, FromError(nil))

	st := Newf(CodeNoProvider, "no provider for echo")
	assert.Equal(t, st, FromError(st))
	assert.Equal(t, st, FromError(fmt.Errorf("outer: %w", st)))

	plain := errors.New("mystery")
	got := FromError(plain)
	assert.Equal(t, CodeUnknown, got.Code())
	assert.True(t, errors.Is(got, plain))
}

func TestIsStatus(t *testing.T) {
	assert.False(t, IsStatus(nil))
	assert.False(t, IsStatus(errors.New("plain")))
	assert.True(t, IsStatus(Newf(CodeInternal, "bug")))
	assert.True(t, IsStatus(fmt.Errorf("outer: %w", Newf(CodeInternal, "bug"))))
}

func TestCodeString(t *testing.T) {
	assert.Equal(t, "circuit-open", CodeCircuitOpen.String())
	assert.Equal(t, "retry-exhausted", CodeRetryExhausted.String())
	assert.Equal(t, "42", Code(42).String())
}
