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

// Package config provides the process-level, string-keyed configuration
// surface. Values come from an optional aicall.yaml file, overridden by
// AICALL_-prefixed environment variables, falling back to per-key defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Well-known keys and their defaults.
const (
	// KeyRegistryAddress locates the service registry.
	KeyRegistryAddress = "rpc.registry.address"
	// KeyLoadBalancerType names the balancer strategy.
	KeyLoadBalancerType = "rpc.loadbalancer.type"
	// KeyPredictorURL locates the external prediction service.
	KeyPredictorURL = "rpc.loadbalancer.ai.service.url"
	// KeyRequestTimeoutSeconds is the fallback call deadline.
	KeyRequestTimeoutSeconds = "rpc.client.request.timeout-seconds"

	DefaultRegistryAddress       = "127.0.0.1:8848"
	DefaultLoadBalancerType      = "aipredictive"
	DefaultPredictorURL          = "http://localhost:8000/predict"
	DefaultRequestTimeoutSeconds = 10

	// DefaultFile is the file Load looks for in the working directory.
	DefaultFile = "aicall.yaml"

	_envPrefix = "AICALL_"
)

// Config is an immutable snapshot of string-keyed settings.
type Config struct {
	values map[string]string
}

// New builds a Config from explicit values. Useful in tests.
func New(values map[string]string) *Config {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &Config{values: copied}
}

// Load reads DefaultFile if present and applies environment overrides. A
// missing file is not an error; a malformed one is.
func Load() (*Config, error) {
	return LoadFile(DefaultFile)
}

// LoadFile reads the given YAML file if present and applies environment
// overrides.
func LoadFile(path string) (*Config, error) {
	values := make(map[string]string)

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults only.
	case err != nil:
		return nil, multierr.Append(fmt.Errorf("read config %q", path), err)
	default:
		var raw map[string]interface{}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, multierr.Append(fmt.Errorf("parse config %q", path), err)
		}
		flatten("", raw, values)
	}

	return &Config{values: values}, nil
}

// flatten joins nested YAML maps into dotted keys, so both flat
// ("rpc.registry.address: ...") and nested documents resolve to the same
// lookup keys.
func flatten(prefix string, raw map[string]interface{}, out map[string]string) {
	for key, value := range raw {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		switch v := value.(type) {
		case map[string]interface{}:
			flatten(full, v, out)
		default:
			out[full] = fmt.Sprintf("%v", v)
		}
	}
}

// String returns the value for a key, or the default if unset. Environment
// variables take precedence: "rpc.registry.address" is overridden by
// AICALL_RPC_REGISTRY_ADDRESS.
func (c *Config) String(key, defaultValue string) string {
	if v, ok := os.LookupEnv(envKey(key)); ok {
		return v
	}
	if v, ok := c.values[key]; ok {
		return v
	}
	return defaultValue
}

// Int returns the integer value for a key, or the default if unset or
// malformed.
func (c *Config) Int(key string, defaultValue int) int {
	v := c.String(key, "")
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return defaultValue
	}
	return n
}

// RegistryAddress returns the configured registry endpoint.
func (c *Config) RegistryAddress() string {
	return c.String(KeyRegistryAddress, DefaultRegistryAddress)
}

// LoadBalancerType returns the configured balancer strategy name.
func (c *Config) LoadBalancerType() string {
	return c.String(KeyLoadBalancerType, DefaultLoadBalancerType)
}

// PredictorURL returns the configured prediction service URL.
func (c *Config) PredictorURL() string {
	return c.String(KeyPredictorURL, DefaultPredictorURL)
}

// RequestTimeoutSeconds returns the fallback call deadline in seconds.
func (c *Config) RequestTimeoutSeconds() int {
	return c.Int(KeyRequestTimeoutSeconds, DefaultRequestTimeoutSeconds)
}

func envKey(key string) string {
	replaced := strings.NewReplacer(".", "_", "-", "_").Replace(key)
	return _envPrefix + strings.ToUpper(replaced)
}
