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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	c := New(nil)
	assert.Equal(t, "127.0.0.1:8848", c.RegistryAddress())
	assert.Equal(t, "aipredictive", c.LoadBalancerType())
	assert.Equal(t, "http://localhost:8000/predict", c.PredictorURL())
	assert.Equal(t, 10, c.RequestTimeoutSeconds())
}

func TestExplicitValues(t *testing.T) {
	c := New(map[string]string{
		KeyLoadBalancerType:      "random",
		KeyRequestTimeoutSeconds: "30",
	})
	assert.Equal(t, "random", c.LoadBalancerType())
	assert.Equal(t, 30, c.RequestTimeoutSeconds())
}

func TestIntFallsBackOnGarbage(t *testing.T) {
	c := New(map[string]string{KeyRequestTimeoutSeconds: "not-a-number"})
	assert.Equal(t, 10, c.RequestTimeoutSeconds())
}

func TestLoadFileFlat(t *testing.T) {
	path := writeFile(t, `
rpc.registry.address: "10.0.0.5:8848"
rpc.loadbalancer.type: random
`)
	c, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5:8848", c.RegistryAddress())
	assert.Equal(t, "random", c.LoadBalancerType())
	// Unset keys keep their defaults.
	assert.Equal(t, 10, c.RequestTimeoutSeconds())
}

func TestLoadFileNested(t *testing.T) {
	path := writeFile(t, `
rpc:
  registry:
    address: "10.0.0.6:8848"
  client:
    request:
      timeout-seconds: 7
`)
	c, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.6:8848", c.RegistryAddress())
	assert.Equal(t, 7, c.RequestTimeoutSeconds())
}

func TestLoadFileMissingIsEmpty(t *testing.T) {
	c, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "aipredictive", c.LoadBalancerType())
}

func TestLoadFileMalformed(t *testing.T) {
	path := writeFile(t, "{not yaml: [")
	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("AICALL_RPC_LOADBALANCER_TYPE", "random")
	t.Setenv("AICALL_RPC_CLIENT_REQUEST_TIMEOUT_SECONDS", "3")

	c := New(map[string]string{KeyLoadBalancerType: "aipredictive"})
	assert.Equal(t, "random", c.LoadBalancerType())
	assert.Equal(t, 3, c.RequestTimeoutSeconds())
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aicall.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
