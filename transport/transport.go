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

// Package transport defines the bidirectional byte-stream owned by each
// connected peer, plus an in-process implementation used by pseudo-peers and
// tests. The WebSocket implementation lives in the websocket sub-package.
package transport

// Close codes, matching the WebSocket status codes used on the wire.
const (
	CodeNormalClosure   = 1000
	CodeGoingAway       = 1001
	CodePolicyViolation = 1008
	CodeInternalError   = 1011
)

// ReceiveHandler consumes one inbound message. binary distinguishes binary
// frames from text frames; the bytes are exactly as received.
type ReceiveHandler func(data []byte, binary bool)

// CloseHandler is invoked once when the transport closes, with the error
// that closed it (nil for a clean close).
type CloseHandler func(err error)

// Transport is one peer's bidirectional byte-stream.
//
// Send and SendText fail with TransportClosed once the transport is no
// longer open, and with BackpressureDrop when the outbound queue is over its
// high-water mark.
type Transport interface {
	// Send queues one binary frame.
	Send(data []byte) error

	// SendText queues one text frame. The handshake and its reply are text;
	// all routed traffic is binary.
	SendText(data []byte) error

	// SetReceiveHandler installs the inbound message handler. It must be
	// installed before the first message arrives.
	SetReceiveHandler(h ReceiveHandler)

	// SetCloseHandler installs the close notification handler.
	SetCloseHandler(h CloseHandler)

	// Close shuts the transport down with a status code and reason.
	Close(code int, reason string) error

	// Open reports whether sends may still succeed.
	Open() bool
}
