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

// Registry is the discovery interface consumed by the client and provider
// sides. Implementations are expected to be safe for concurrent use.
type Registry interface {
	// Register announces an endpoint for a service. Register is idempotent;
	// implementations may retry internally on transient errors.
	Register(serviceName string, e Endpoint) error

	// Deregister withdraws an endpoint. Best effort: callers treat errors as
	// non-fatal during shutdown.
	Deregister(serviceName string, e Endpoint) error

	// Discover returns the currently healthy endpoints for a service. The
	// result may be empty.
	Discover(serviceName string) ([]Endpoint, error)
}
