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
	"net"
	"net/http"

	gws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/amun-ai/hypha-go/internal/lifecycle"
	"github.com/amun-ai/hypha-go/transport"
)

// Handler accepts newly connected peer transports. It must install the
// transport's handlers before returning; the inbound starts the pumps right
// after.
type Handler interface {
	ServeTransport(t transport.Transport)
}

// InboundOption configures a WebSocket inbound.
type InboundOption func(*Inbound)

// WithLogger sets the logger used by the inbound and its connections.
func WithLogger(logger *zap.Logger) InboundOption {
	return func(i *Inbound) { i.logger = logger }
}

// WithPattern changes the URL path on which connections are accepted. The
// default is /ws.
func WithPattern(pattern string) InboundOption {
	return func(i *Inbound) { i.pattern = pattern }
}

// WithMux mounts the upgrade endpoint on an existing ServeMux instead of a
// private one, so the WebSocket endpoint and the HTTP proxy can share one
// listener.
func WithMux(mux *http.ServeMux) InboundOption {
	return func(i *Inbound) { i.mux = mux }
}

// Inbound accepts WebSocket connections and hands each one to the Handler
// as a peer transport.
type Inbound struct {
	addr     string
	pattern  string
	mux      *http.ServeMux
	ownMux   bool
	logger   *zap.Logger
	once     lifecycle.Once
	listener net.Listener
	server   *http.Server
	handler  Handler
	upgrader gws.Upgrader
}

// NewInbound builds a WebSocket inbound listening on addr.
func NewInbound(addr string, handler Handler, opts ...InboundOption) *Inbound {
	i := &Inbound{
		addr:    addr,
		pattern: "/ws",
		logger:  zap.NewNop(),
		handler: handler,
		upgrader: gws.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Peers connect from sandboxed pages on arbitrary origins; auth
			// happens at handshake, not at upgrade.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.mux == nil {
		i.mux = http.NewServeMux()
		i.ownMux = true
	}
	return i
}

// Start begins listening. It is idempotent.
func (i *Inbound) Start() error {
	return i.once.Start(func() error {
		i.mux.HandleFunc(i.pattern, i.serveUpgrade)
		if !i.ownMux {
			// Shared mux: the owner of the mux runs the server.
			return nil
		}
		listener, err := net.Listen("tcp", i.addr)
		if err != nil {
			return err
		}
		i.listener = listener
		i.addr = listener.Addr().String() // in case it changed
		i.server = &http.Server{Handler: i.mux}
		go func() {
			if err := i.server.Serve(listener); err != http.ErrServerClosed {
				i.logger.Warn("websocket inbound stopped", zap.Error(err))
			}
		}()
		i.logger.Info("websocket inbound listening", zap.String("addr", i.addr), zap.String("pattern", i.pattern))
		return nil
	})
}

// Stop closes the listener. Existing connections are torn down by their
// owners.
func (i *Inbound) Stop() error {
	return i.once.Stop(func() error {
		if i.listener == nil {
			return nil
		}
		err := i.listener.Close()
		i.listener = nil
		return err
	})
}

// Addr returns the listen address, or nil before Start.
func (i *Inbound) Addr() net.Addr {
	if i.listener == nil {
		return nil
	}
	return i.listener.Addr()
}

func (i *Inbound) serveUpgrade(w http.ResponseWriter, r *http.Request) {
	ws, err := i.upgrader.Upgrade(w, r, nil)
	if err != nil {
		i.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	conn := NewConn(ws, i.logger)
	i.handler.ServeTransport(conn)
	conn.Start()
}
