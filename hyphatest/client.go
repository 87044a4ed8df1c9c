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

// Package hyphatest provides an in-process client that connects to a
// Router over a paired in-memory transport and speaks the same handshake
// and frame envelope as a remote peer. Tests use it to host services and
// call them without sockets.
package hyphatest

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	hypha "github.com/amun-ai/hypha-go"
	"github.com/amun-ai/hypha-go/frame"
	"github.com/amun-ai/hypha-go/hyphaerrors"
	"github.com/amun-ai/hypha-go/service"
	"github.com/amun-ai/hypha-go/transport"
)

const handshakeTimeout = 5 * time.Second

// ConnectOptions carries the handshake fields.
type ConnectOptions struct {
	Token     string
	Workspace string
	ClientID  string
}

// Service is a locally hosted service definition.
type Service struct {
	ID          string
	Name        string
	Description string
	Type        string
	Visibility  service.Visibility
	Overwrite   bool
	Members     map[string]*service.Method
}

type reply struct {
	kind  string
	value json.RawMessage
	err   error
}

// Client is one connected in-process peer.
type Client struct {
	transport transport.Transport
	info      *hypha.ConnectionInfo

	mu       sync.Mutex
	pending  map[string]chan reply
	services map[string]*Service
	events   map[string][]func(event string, data interface{})
	closed   bool
	closeErr error
}

// Connect performs the handshake against router over an in-memory pipe.
func Connect(router *hypha.Router, opts ConnectOptions) (*Client, error) {
	serverEnd, clientEnd := transport.Pipe()

	c := &Client{
		transport: clientEnd,
		pending:   make(map[string]chan reply),
		services:  make(map[string]*Service),
		events:    make(map[string][]func(string, interface{})),
	}

	infoCh := make(chan *hypha.ConnectionInfo, 1)
	errCh := make(chan error, 1)
	clientEnd.SetReceiveHandler(func(data []byte, binary bool) {
		if !binary {
			var info hypha.ConnectionInfo
			if err := json.Unmarshal(data, &info); err != nil {
				select {
				case errCh <- hyphaerrors.MalformedFrameErrorf("bad connection_info: %v", err):
				default:
				}
				return
			}
			select {
			case infoCh <- &info:
			default:
			}
			return
		}
		c.handleFrame(data)
	})
	clientEnd.SetCloseHandler(func(err error) {
		c.mu.Lock()
		c.closed = true
		c.closeErr = err
		pending := c.pending
		c.pending = make(map[string]chan reply)
		c.mu.Unlock()
		for _, ch := range pending {
			select {
			case ch <- reply{kind: hypha.FrameTypeError, err: hyphaerrors.TransportClosedErrorf("connection closed")}:
			default:
			}
		}
		if err != nil {
			select {
			case errCh <- err:
			default:
			}
		}
	})

	router.ServeTransport(serverEnd)

	hello, err := json.Marshal(map[string]string{
		"token":     opts.Token,
		"workspace": opts.Workspace,
		"client_id": opts.ClientID,
	})
	if err != nil {
		return nil, err
	}
	if err := clientEnd.SendText(hello); err != nil {
		return nil, err
	}

	select {
	case info := <-infoCh:
		c.info = info
		return c, nil
	case err := <-errCh:
		return nil, err
	case <-time.After(handshakeTimeout):
		_ = clientEnd.Close(transport.CodeNormalClosure, "handshake timeout")
		return nil, hyphaerrors.RequestTimeoutErrorf("no connection_info within %s", handshakeTimeout)
	}
}

// Info returns the handshake reply.
func (c *Client) Info() *hypha.ConnectionInfo { return c.info }

// FullID returns this client's workspace-qualified id.
func (c *Client) FullID() string { return c.info.Workspace + "/" + c.info.ClientID }

// Disconnect closes the client's transport.
func (c *Client) Disconnect() {
	_ = c.transport.Close(transport.CodeNormalClosure, "bye")
}

// ---------------------------------------------------------------------------
// Calls

// CallManager invokes a member of the built-in workspace service.
func (c *Client) CallManager(ctx context.Context, method string, args ...interface{}) (interface{}, error) {
	return c.Call(ctx, hypha.ManagerClientID+":"+hypha.ManagerServiceID, method, args...)
}

// Call invokes a member of the service addressed by target ("client:service",
// "workspace/client:service", or a bare client id).
func (c *Client) Call(ctx context.Context, target, method string, args ...interface{}) (interface{}, error) {
	id := uuid.NewString()
	ch := make(chan reply, 64)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, hyphaerrors.TransportClosedErrorf("client is disconnected")
	}
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.sendEnvelope(hypha.FrameTypeMethod, target, id, hypha.MethodCall{Method: method, Args: args}); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, hyphaerrors.RequestTimeoutErrorf("call %s.%s: %v", target, method, ctx.Err())
	case rep := <-ch:
		switch rep.kind {
		case hypha.FrameTypeResult:
			return decodeRaw(rep.value), nil
		case hypha.FrameTypeError:
			return nil, rep.err
		case hypha.FrameTypeYield:
			return c.pumpStream(ctx, id, ch, rep), nil
		default:
			return nil, hyphaerrors.UnknownErrorf("unexpected reply type %q", rep.kind)
		}
	}
}

// Notify sends a fire-and-forget method frame.
func (c *Client) Notify(target, method string, args ...interface{}) error {
	return c.sendEnvelope(hypha.FrameTypeMethod, target, "", hypha.MethodCall{Method: method, Args: args})
}

func (c *Client) pumpStream(ctx context.Context, id string, ch chan reply, first reply) *service.Stream {
	stream := service.NewStream(64)
	// Keep the pending slot alive for the stream's lifetime.
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	go func() {
		defer func() {
			c.mu.Lock()
			delete(c.pending, id)
			c.mu.Unlock()
		}()
		rep := first
		for {
			switch rep.kind {
			case hypha.FrameTypeYield:
				if err := stream.Send(decodeRaw(rep.value)); err != nil {
					return
				}
			case hypha.FrameTypeResult:
				stream.Close()
				return
			case hypha.FrameTypeError:
				stream.Fail(rep.err)
				return
			}
			select {
			case <-ctx.Done():
				stream.Fail(hyphaerrors.RequestTimeoutErrorf("stream stalled: %v", ctx.Err()))
				return
			case rep = <-ch:
			}
		}
	}()
	return stream
}

// ---------------------------------------------------------------------------
// Hosted services

// RegisterService hosts def on this client and announces it to the
// workspace service.
func (c *Client) RegisterService(ctx context.Context, def *Service) (interface{}, error) {
	names := make([]string, 0, len(def.Members))
	for name := range def.Members {
		names = append(names, name)
	}
	c.mu.Lock()
	c.services[def.ID] = def
	c.mu.Unlock()

	spec := map[string]interface{}{
		"id":          def.ID,
		"name":        def.Name,
		"description": def.Description,
		"type":        def.Type,
		"members":     names,
		"config": map[string]interface{}{
			"visibility": def.Visibility,
			"overwrite":  def.Overwrite,
		},
	}
	return c.CallManager(ctx, "register_service", spec)
}

// OnEvent registers a handler for workspace events delivered to this
// client; pair it with a manager "on" subscription.
func (c *Client) OnEvent(event string, handler func(event string, data interface{})) {
	c.mu.Lock()
	c.events[event] = append(c.events[event], handler)
	c.mu.Unlock()
}

// ---------------------------------------------------------------------------
// Frame handling

func (c *Client) handleFrame(data []byte) {
	f, err := frame.Decode(data)
	if err != nil {
		return
	}
	switch f.Type() {
	case hypha.FrameTypeMethod:
		go c.serveMethod(f)
	case hypha.FrameTypeResult, hypha.FrameTypeError, hypha.FrameTypeYield:
		c.dispatchReply(f)
	case hypha.FrameTypeEvent:
		c.dispatchEvent(f)
	}
}

func (c *Client) dispatchReply(f *frame.Frame) {
	id := f.ID()
	if id == "" {
		return
	}
	c.mu.Lock()
	ch := c.pending[id]
	c.mu.Unlock()
	if ch == nil {
		return
	}
	var rep reply
	rep.kind = f.Type()
	switch f.Type() {
	case hypha.FrameTypeResult:
		var res struct {
			Result json.RawMessage `json:"result"`
		}
		if err := json.Unmarshal(f.Payload, &res); err == nil {
			rep.value = res.Result
		}
	case hypha.FrameTypeYield:
		var y struct {
			Value json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal(f.Payload, &y); err == nil {
			rep.value = y.Value
		}
	case hypha.FrameTypeError:
		var d hypha.ErrorDetail
		if err := json.Unmarshal(f.Payload, &d); err != nil {
			rep.err = hyphaerrors.UnknownErrorf("unparseable error reply")
		} else {
			rep.err = d.AsError()
		}
	}
	select {
	case ch <- rep:
	default:
	}
}

func (c *Client) dispatchEvent(f *frame.Frame) {
	var msg hypha.EventMessage
	if err := json.Unmarshal(f.Payload, &msg); err != nil {
		return
	}
	c.mu.Lock()
	handlers := make([]func(string, interface{}), len(c.events[msg.Event]))
	copy(handlers, c.events[msg.Event])
	c.mu.Unlock()
	for _, h := range handlers {
		h(msg.Event, msg.Data)
	}
}

// serveMethod runs one inbound call against a hosted service and answers
// with result, error, or a yield sequence.
func (c *Client) serveMethod(f *frame.Frame) {
	var mc hypha.MethodCall
	if err := json.Unmarshal(f.Payload, &mc); err != nil {
		c.replyErr(f, hyphaerrors.MalformedFrameErrorf("bad method payload: %v", err))
		return
	}
	target := service.ParseID(f.To())
	c.mu.Lock()
	def := c.services[target.Service]
	c.mu.Unlock()
	if def == nil {
		c.replyErr(f, hyphaerrors.ServiceNotFoundErrorf("no hosted service %q", target.Service))
		return
	}
	m := def.Members[mc.Method]
	if m == nil || m.Handler == nil {
		c.replyErr(f, hyphaerrors.FunctionNotFoundErrorf("service %q has no member %q", def.ID, mc.Method))
		return
	}
	call := &service.CallContext{Workspace: f.Workspace(), From: f.From(), To: f.To()}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	result, err := m.Call(ctx, call, mc.Args)
	if err != nil {
		c.replyErr(f, err)
		return
	}
	if stream, ok := result.(*service.Stream); ok {
		defer stream.Stop()
		for {
			v, err := stream.Next(ctx)
			if err == io.EOF {
				c.reply(f, hypha.FrameTypeResult, hypha.MethodResult{})
				return
			}
			if err != nil {
				c.replyErr(f, err)
				return
			}
			if f.ID() != "" {
				c.reply(f, hypha.FrameTypeYield, hypha.MethodYield{Value: v})
			}
		}
	}
	c.reply(f, hypha.FrameTypeResult, hypha.MethodResult{Result: result})
}

func (c *Client) reply(req *frame.Frame, frameType string, payload interface{}) {
	if req.ID() == "" {
		return
	}
	_ = c.sendEnvelope(frameType, req.From(), req.ID(), payload)
}

func (c *Client) replyErr(req *frame.Frame, err error) {
	if req.ID() == "" {
		return
	}
	st := hyphaerrors.FromError(err)
	var d hypha.ErrorDetail
	d.Error.Code = st.Code().String()
	d.Error.Message = st.Message()
	_ = c.sendEnvelope(hypha.FrameTypeError, req.From(), req.ID(), d)
}

func (c *Client) sendEnvelope(frameType, to, id string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	f := frame.New(c.info.ClientID, to, body)
	f.SetType(frameType)
	if id != "" {
		f.SetID(id)
	}
	return c.transport.Send(f.Encode())
}

func decodeRaw(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}
