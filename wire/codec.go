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
	"encoding/binary"
	"io"

	"github.com/aicore/aicall/aicallerrors"
)

// maxBodyLength bounds the declared body size of an inbound frame. A peer
// declaring more than this is treated as a protocol violation.
const maxBodyLength = 16 << 20

// envelope is the serialized form of a message body: the request or response
// plus the attachment headers travelling with it.
type envelope struct {
	Request     *Request          `json:"request,omitempty"`
	Response    *Response         `json:"response,omitempty"`
	Attachments map[string]string `json:"attachments,omitempty"`
}

// Encode frames a message and writes it to w in a single write.
func Encode(w io.Writer, m *Message) error {
	serializer, err := ForType(m.Serializer)
	if err != nil {
		return err
	}

	env := envelope{Attachments: m.Attachments}
	switch {
	case m.Type.IsRequest():
		req := m.Request()
		if req == nil {
			return aicallerrors.Newf(aicallerrors.CodeInternal, "message type %d requires a *Request body", byte(m.Type))
		}
		env.Request = req
	case m.Type.IsResponse():
		res := m.Response()
		if res == nil {
			return aicallerrors.Newf(aicallerrors.CodeInternal, "message type %d requires a *Response body", byte(m.Type))
		}
		env.Response = res
	default:
		return aicallerrors.Newf(aicallerrors.CodeInternal, "unknown message type: %d", byte(m.Type))
	}

	body, err := serializer.Marshal(&env)
	if err != nil {
		return aicallerrors.Wrap(aicallerrors.CodeInternal, err)
	}

	frame := make([]byte, HeaderLength+len(body))
	binary.BigEndian.PutUint32(frame[0:4], Magic)
	frame[4] = Version
	frame[5] = byte(m.Serializer)
	frame[6] = byte(m.Type)
	binary.BigEndian.PutUint32(frame[7:11], uint32(m.ID))
	binary.BigEndian.PutUint32(frame[11:15], uint32(len(body)))
	copy(frame[HeaderLength:], body)

	if _, err := w.Write(frame); err != nil {
		return aicallerrors.Wrap(aicallerrors.CodeIO, err)
	}
	return nil
}

// Decode reads exactly one framed message from r.
//
// A frame that does not begin with the magic number yields a CodeProtocol
// error; the caller must close the connection without attempting to
// resynchronize. The version byte is validated loosely: unknown versions fall
// through to the type switch.
func Decode(r io.Reader) (*Message, error) {
	header := make([]byte, HeaderLength)
	if _, err := io.ReadFull(r, header); err != nil {
		if err == io.EOF {
			return nil, err
		}
		return nil, aicallerrors.Wrap(aicallerrors.CodeIO, err)
	}

	if magic := binary.BigEndian.Uint32(header[0:4]); magic != Magic {
		return nil, aicallerrors.Newf(aicallerrors.CodeProtocol, "bad magic number: 0x%08X", magic)
	}

	serializerType := SerializerType(header[5])
	messageType := MessageType(header[6])
	id := int32(binary.BigEndian.Uint32(header[7:11]))
	length := binary.BigEndian.Uint32(header[11:15])
	if length > maxBodyLength {
		return nil, aicallerrors.Newf(aicallerrors.CodeProtocol, "frame body of %d bytes exceeds limit", length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, aicallerrors.Wrap(aicallerrors.CodeIO, err)
	}

	serializer, err := ForType(serializerType)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := serializer.Unmarshal(body, &env); err != nil {
		return nil, aicallerrors.Wrap(aicallerrors.CodeProtocol, err)
	}

	m := &Message{
		Type:        messageType,
		Serializer:  serializerType,
		ID:          id,
		Attachments: env.Attachments,
	}
	switch {
	case messageType.IsRequest():
		if env.Request == nil {
			env.Request = &Request{}
		}
		m.Body = env.Request
	case messageType.IsResponse():
		if env.Response == nil {
			env.Response = &Response{}
		}
		m.Body = env.Response
	default:
		return nil, aicallerrors.Newf(aicallerrors.CodeProtocol, "unknown message type: %d", byte(messageType))
	}
	return m, nil
}
