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

// Static is a Registry with a fixed membership, useful when service
// addresses are known ahead of time. Register and Deregister are no-ops.
type Static struct {
	endpoints map[string][]Endpoint
}

// NewStatic builds a registry that always returns the given endpoints per
// service.
func NewStatic(endpoints map[string][]Endpoint) *Static {
	copied := make(map[string][]Endpoint, len(endpoints))
	for name, eps := range endpoints {
		list := make([]Endpoint, len(eps))
		copy(list, eps)
		copied[name] = list
	}
	return &Static{endpoints: copied}
}

// Register is a no-op.
func (r *Static) Register(string, Endpoint) error { return nil }

// Deregister is a no-op.
func (r *Static) Deregister(string, Endpoint) error { return nil }

// Discover returns the configured endpoints for the service.
func (r *Static) Discover(serviceName string) ([]Endpoint, error) {
	eps := r.endpoints[serviceName]
	out := make([]Endpoint, len(eps))
	copy(out, eps)
	return out, nil
}
