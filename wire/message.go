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

// Package wire implements the framed binary protocol spoken between
// consumers and providers.
//
// Each message on the wire is a 15-byte header followed by a serialized body:
//
//	magic(4)=0xCAFEBABE | version(1)=1 | serializer(1) | type(1) | msgId(4) | length(4) | body
//
// All integers are big-endian. The message id is the sole correlator between
// a request and its response.
package wire

import (
	"go.uber.org/atomic"
)

const (
	// Magic is the frame preamble. A frame that does not start with it is a
	// protocol violation and the connection carrying it is closed.
	Magic uint32 = 0xCAFEBABE

	// Version is the current protocol version.
	Version byte = 1

	// HeaderLength is the fixed size of the frame header in bytes.
	HeaderLength = 15
)

// MessageType discriminates the body of a framed message.
type MessageType byte

const (
	TypeRequest           MessageType = 0
	TypeResponse          MessageType = 1
	TypeHeartbeatRequest  MessageType = 2
	TypeHeartbeatResponse MessageType = 3
)

// IsRequest reports whether the body decodes as a Request.
func (t MessageType) IsRequest() bool {
	return t == TypeRequest || t == TypeHeartbeatRequest
}

// IsResponse reports whether the body decodes as a Response.
func (t MessageType) IsResponse() bool {
	return t == TypeResponse || t == TypeHeartbeatResponse
}

// Request is the immutable body of an outbound call.
type Request struct {
	RequestID  string        `json:"requestId,omitempty"`
	ClassName  string        `json:"className,omitempty"`
	MethodName string        `json:"methodName,omitempty"`
	ParamTypes []string      `json:"paramTypes,omitempty"`
	Params     []interface{} `json:"params,omitempty"`
	Heartbeat  bool          `json:"heartbeat,omitempty"`
}

// Response carries either a result or an application error message; exactly
// one of the two is meaningful.
type Response struct {
	RequestID string      `json:"requestId,omitempty"`
	Result    interface{} `json:"result,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// Message is one framed unit. Body is a *Request for TypeRequest and
// TypeHeartbeatRequest, a *Response otherwise.
type Message struct {
	Type        MessageType
	Serializer  SerializerType
	ID          int32
	Body        interface{}
	Attachments map[string]string
}

// Request returns the body as a *Request, or nil.
func (m *Message) Request() *Request {
	req, _ := m.Body.(*Request)
	return req
}

// Response returns the body as a *Response, or nil.
func (m *Message) Response() *Response {
	res, _ := m.Body.(*Response)
	return res
}

// PongResult is the result string carried by heartbeat responses.
const PongResult = "PONG"

// NewHeartbeatRequest builds a heartbeat probe with a fresh message id.
func NewHeartbeatRequest(serializer SerializerType) *Message {
	return &Message{
		Type:       TypeHeartbeatRequest,
		Serializer: serializer,
		ID:         NextMessageID(),
		Body:       &Request{Heartbeat: true},
	}
}

// NewHeartbeatResponse builds the PONG reply for a heartbeat probe, reusing
// its message id.
func NewHeartbeatResponse(probe *Message) *Message {
	return &Message{
		Type:       TypeHeartbeatResponse,
		Serializer: probe.Serializer,
		ID:         probe.ID,
		Body:       &Response{Result: PongResult},
	}
}

var _messageID atomic.Int32

// NextMessageID returns the next value of the process-wide monotonic message
// id counter. Uniqueness is only required among outstanding calls on a single
// connection, which monotonicity trivially guarantees.
func NextMessageID() int32 {
	return _messageID.Inc()
}
