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

package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpointString(t *testing.T) {
	e := Endpoint{Host: "10.0.0.1", Port: 8080}
	assert.Equal(t, "10.0.0.1:8080", e.String())
	assert.Equal(t, "echo@10.0.0.1:8080", Key("echo", e))
}

func TestParseEndpoint(t *testing.T) {
	e, err := ParseEndpoint("127.0.0.1:9090")
	require.NoError(t, err)
	assert.Equal(t, Endpoint{Host: "127.0.0.1", Port: 9090}, e)

	_, err = ParseEndpoint("no-port")
	assert.Error(t, err)
}

func TestInMemoryRegistry(t *testing.T) {
	r := NewInMemory()
	a := Endpoint{Host: "127.0.0.1", Port: 1}
	b := Endpoint{Host: "127.0.0.1", Port: 2}

	eps, err := r.Discover("echo")
	require.NoError(t, err)
	assert.Empty(t, eps)

	require.NoError(t, r.Register("echo", a))
	require.NoError(t, r.Register("echo", b))
	// Register is idempotent.
	require.NoError(t, r.Register("echo", a))

	eps, err = r.Discover("echo")
	require.NoError(t, err)
	assert.Equal(t, []Endpoint{a, b}, eps)

	require.NoError(t, r.Deregister("echo", a))
	eps, err = r.Discover("echo")
	require.NoError(t, err)
	assert.Equal(t, []Endpoint{b}, eps)

	// Deregistering an unknown endpoint is a no-op.
	require.NoError(t, r.Deregister("echo", a))
}

func TestInMemoryDiscoverReturnsCopy(t *testing.T) {
	r := NewInMemory()
	require.NoError(t, r.Register("echo", Endpoint{Host: "h", Port: 1}))

	eps, err := r.Discover("echo")
	require.NoError(t, err)
	eps[0] = Endpoint{Host: "mutated", Port: 99}

	again, err := r.Discover("echo")
	require.NoError(t, err)
	assert.Equal(t, []Endpoint{{Host: "h", Port: 1}}, again)
}

func TestStaticRegistry(t *testing.T) {
	a := Endpoint{Host: "127.0.0.1", Port: 1}
	r := NewStatic(map[string][]Endpoint{"echo": {a}})

	require.NoError(t, r.Register("echo", Endpoint{Host: "x", Port: 9}))
	eps, err := r.Discover("echo")
	require.NoError(t, err)
	assert.Equal(t, []Endpoint{a}, eps)

	eps, err = r.Discover("unknown")
	require.NoError(t, err)
	assert.Empty(t, eps)
}
