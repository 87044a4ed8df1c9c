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

package websocket

import (
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amun-ai/hypha-go/transport"
)

// captureHandler records accepted transports and echoes every message back.
type captureHandler struct {
	accepted chan transport.Transport
}

func newCaptureHandler() *captureHandler {
	return &captureHandler{accepted: make(chan transport.Transport, 1)}
}

func (h *captureHandler) ServeTransport(t transport.Transport) {
	t.SetReceiveHandler(func(data []byte, binary bool) {
		if binary {
			_ = t.Send(data)
		} else {
			_ = t.SendText(data)
		}
	})
	h.accepted <- t
}

func TestInboundAcceptsAndEchoes(t *testing.T) {
	handler := newCaptureHandler()
	inbound := NewInbound("127.0.0.1:0", handler)
	require.NoError(t, inbound.Start())
	defer inbound.Stop()

	url := "ws://" + inbound.Addr().String() + "/ws"
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	select {
	case <-handler.accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("connection never reached the handler")
	}

	require.NoError(t, conn.WriteMessage(gws.TextMessage, []byte("hello")))
	messageType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, gws.TextMessage, messageType)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, conn.WriteMessage(gws.BinaryMessage, []byte{0xF5, 0x01}))
	messageType, data, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, gws.BinaryMessage, messageType)
	assert.Equal(t, []byte{0xF5, 0x01}, data)
}

func TestInboundCustomPattern(t *testing.T) {
	handler := newCaptureHandler()
	inbound := NewInbound("127.0.0.1:0", handler, WithPattern("/fabric"))
	require.NoError(t, inbound.Start())
	defer inbound.Stop()

	_, resp, err := gws.DefaultDialer.Dial("ws://"+inbound.Addr().String()+"/ws", nil)
	require.Error(t, err, "the default pattern is not mounted")
	if resp != nil {
		resp.Body.Close()
	}

	conn, _, err := gws.DefaultDialer.Dial("ws://"+inbound.Addr().String()+"/fabric", nil)
	require.NoError(t, err)
	conn.Close()
}

func TestServerSideCloseReachesClient(t *testing.T) {
	handler := newCaptureHandler()
	inbound := NewInbound("127.0.0.1:0", handler)
	require.NoError(t, inbound.Start())
	defer inbound.Stop()

	conn, _, err := gws.DefaultDialer.Dial("ws://"+inbound.Addr().String()+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	var accepted transport.Transport
	select {
	case accepted = <-handler.accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("connection never reached the handler")
	}
	require.NoError(t, accepted.Close(transport.CodePolicyViolation, "invalid-token"))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	closeErr, ok := err.(*gws.CloseError)
	require.True(t, ok, "expected a close frame, got %v", err)
	assert.Equal(t, transport.CodePolicyViolation, closeErr.Code)
	assert.Equal(t, "invalid-token", closeErr.Text)
}
