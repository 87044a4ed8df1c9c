// Copyright (c) 2026 Amun AI AB
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

package hypha

import (
	"encoding/json"

	"github.com/amun-ai/hypha-go/frame"
	"github.com/amun-ai/hypha-go/hyphaerrors"
)

// Frame type hints carried in the "type" header field. The router treats
// payloads of peer-to-peer frames as opaque; these types describe only the
// envelope the built-in workspace service itself speaks.
const (
	FrameTypeMethod = "method"
	FrameTypeResult = "result"
	FrameTypeError  = "error"
	FrameTypeYield  = "yield"
	FrameTypeEvent  = "event"
)

// MethodCall is the request payload of a FrameTypeMethod frame.
type MethodCall struct {
	Method string        `json:"method"`
	Args   []interface{} `json:"args,omitempty"`
}

// MethodResult is the payload of a FrameTypeResult frame.
type MethodResult struct {
	Result interface{} `json:"result,omitempty"`
}

// MethodYield is the payload of one FrameTypeYield frame; a streaming call
// emits any number of them before its final result or error.
type MethodYield struct {
	Value interface{} `json:"value"`
}

// ErrorDetail is the payload of a FrameTypeError frame.
type ErrorDetail struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// EventMessage is the payload of a FrameTypeEvent frame delivered to
// subscribers of a workspace event.
type EventMessage struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

func newErrorDetail(err error) ErrorDetail {
	st := hyphaerrors.FromError(err)
	var d ErrorDetail
	d.Error.Code = st.Code().String()
	d.Error.Message = st.Message()
	return d
}

// AsError converts a received ErrorDetail back into a Status error.
func (d ErrorDetail) AsError() error {
	var code hyphaerrors.Code
	if err := code.UnmarshalText([]byte(d.Error.Code)); err != nil {
		code = hyphaerrors.CodeUnknown
	}
	return hyphaerrors.Newf(code, "%s", d.Error.Message)
}

// buildFrame assembles a typed frame with a JSON payload.
func buildFrame(frameType, from, to, id string, payload interface{}) (*frame.Frame, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, hyphaerrors.InternalErrorf("encoding %s payload: %v", frameType, err)
	}
	f := frame.New(from, to, body)
	f.SetType(frameType)
	if id != "" {
		f.SetID(id)
	}
	return f, nil
}
