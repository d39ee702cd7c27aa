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

package wire

import (
	"bytes"
	"encoding/gob"

	jsoniter "github.com/json-iterator/go"

	"github.com/aicore/aicall/aicallerrors"
)

// SerializerType identifies the body encoding of a framed message.
type SerializerType byte

const (
	// SerializerNative is the platform-native binary encoding (encoding/gob).
	// Callers exchanging non-primitive parameter values through it must
	// gob.Register those types on both sides.
	SerializerNative SerializerType = 0

	// SerializerJSON encodes bodies as JSON. This is the default.
	SerializerJSON SerializerType = 1
)

// DefaultSerializer is used when a caller does not choose one explicitly.
const DefaultSerializer = SerializerJSON

// Serializer converts message bodies to and from bytes.
type Serializer interface {
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
	Type() SerializerType
}

func init() {
	// Result and Params travel as interface values; the native encoding
	// needs the common concrete types registered up front.
	gob.Register("")
	gob.Register(0)
	gob.Register(int64(0))
	gob.Register(float64(0))
	gob.Register(false)
	gob.Register([]interface{}(nil))
	gob.Register(map[string]interface{}(nil))
}

var (
	_json = jsoniter.ConfigCompatibleWithStandardLibrary

	_jsonSerializer   Serializer = jsonSerializer{}
	_nativeSerializer Serializer = nativeSerializer{}
)

// ForType returns the serializer registered for a serializer byte.
func ForType(t SerializerType) (Serializer, error) {
	switch t {
	case SerializerNative:
		return _nativeSerializer, nil
	case SerializerJSON:
		return _jsonSerializer, nil
	default:
		return nil, aicallerrors.Newf(aicallerrors.CodeProtocol, "unsupported serializer type: %d", byte(t))
	}
}

type jsonSerializer struct{}

func (jsonSerializer) Marshal(v interface{}) ([]byte, error) {
	return _json.Marshal(v)
}

func (jsonSerializer) Unmarshal(data []byte, v interface{}) error {
	return _json.Unmarshal(data, v)
}

func (jsonSerializer) Type() SerializerType { return SerializerJSON }

type nativeSerializer struct{}

func (nativeSerializer) Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (nativeSerializer) Unmarshal(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func (nativeSerializer) Type() SerializerType { return SerializerNative }
