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

// Package websocket implements the peer transport over WebSocket
// connections.
package websocket

import (
	"sync"
	"time"

	gws "github.com/gorilla/websocket"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/amun-ai/hypha-go/hyphaerrors"
	"github.com/amun-ai/hypha-go/transport"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 32 << 20

	// sendQueueSize is the outbound high-water mark; frames beyond it are
	// dropped with BackpressureDrop.
	sendQueueSize = 256
)

type outMessage struct {
	messageType int
	data        []byte
}

// Conn adapts one server-side WebSocket connection to transport.Transport.
// A single writer goroutine serializes all writes; reads are pumped from a
// dedicated reader goroutine started by Start.
type Conn struct {
	ws     *gws.Conn
	sendq  chan outMessage
	done   chan struct{}
	closed atomic.Bool
	once   sync.Once
	logger *zap.Logger

	mu        sync.Mutex
	onReceive transport.ReceiveHandler
	onClose   transport.CloseHandler
}

var _ transport.Transport = (*Conn)(nil)

// NewConn wraps an upgraded connection. Handlers must be installed before
// calling Start.
func NewConn(ws *gws.Conn, logger *zap.Logger) *Conn {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Conn{
		ws:     ws,
		sendq:  make(chan outMessage, sendQueueSize),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Start launches the read and write pumps.
func (c *Conn) Start() {
	go c.writePump()
	go c.readPump()
}

func (c *Conn) Send(data []byte) error {
	return c.queue(gws.BinaryMessage, data)
}

func (c *Conn) SendText(data []byte) error {
	return c.queue(gws.TextMessage, data)
}

func (c *Conn) queue(messageType int, data []byte) error {
	if c.closed.Load() {
		return hyphaerrors.TransportClosedErrorf("websocket is closed")
	}
	select {
	case c.sendq <- outMessage{messageType: messageType, data: data}:
		return nil
	default:
		return hyphaerrors.BackpressureDropErrorf("outbound queue over high-water mark (%d)", sendQueueSize)
	}
}

func (c *Conn) SetReceiveHandler(h transport.ReceiveHandler) {
	c.mu.Lock()
	c.onReceive = h
	c.mu.Unlock()
}

func (c *Conn) SetCloseHandler(h transport.CloseHandler) {
	c.mu.Lock()
	c.onClose = h
	c.mu.Unlock()
}

// Close sends a close control frame and tears the connection down.
func (c *Conn) Close(code int, reason string) error {
	if c.closed.Load() {
		return nil
	}
	msg := gws.FormatCloseMessage(code, reason)
	deadline := time.Now().Add(writeWait)
	if err := c.ws.WriteControl(gws.CloseMessage, msg, deadline); err != nil {
		c.logger.Debug("writing close frame", zap.Error(err))
	}
	c.teardown(nil)
	return nil
}

func (c *Conn) Open() bool { return !c.closed.Load() }

func (c *Conn) teardown(err error) {
	c.once.Do(func() {
		c.closed.Store(true)
		close(c.done)
		_ = c.ws.Close()
		c.mu.Lock()
		h := c.onClose
		c.mu.Unlock()
		if h != nil {
			h(err)
		}
	})
}

func (c *Conn) readPump() {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			if gws.IsUnexpectedCloseError(err, gws.CloseNormalClosure, gws.CloseGoingAway) {
				c.logger.Debug("websocket read failed", zap.Error(err))
				c.teardown(err)
				return
			}
			c.teardown(nil)
			return
		}
		c.mu.Lock()
		h := c.onReceive
		c.mu.Unlock()
		if h != nil {
			h(data, messageType == gws.BinaryMessage)
		}
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case msg := <-c.sendq:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(msg.messageType, msg.data); err != nil {
				c.logger.Debug("websocket write failed", zap.Error(err))
				c.teardown(err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(gws.PingMessage, nil); err != nil {
				c.teardown(err)
				return
			}
		case <-c.done:
			return
		}
	}
}
