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
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/amun-ai/hypha-go/auth"
	"github.com/amun-ai/hypha-go/hyphaerrors"
	"github.com/amun-ai/hypha-go/service"
)

// ServiceHandle is an invokable reference to one resolved service,
// bound to the caller identity that resolved it.
type ServiceHandle struct {
	router    *Router
	caller    *auth.UserInfo
	workspace *Workspace
	rs        *registeredService
}

// Descriptor returns the wire form of the resolved service.
func (h *ServiceHandle) Descriptor() map[string]interface{} {
	return h.rs.wireDescriptor()
}

// FullID returns the fully-qualified id of the resolved service.
func (h *ServiceHandle) FullID() string {
	return h.rs.fullID()
}

// Member looks up one member's metadata; nil when the service publishes no
// schema for it.
func (h *ServiceHandle) Member(name string) *service.Method {
	m, ok := h.rs.desc.Member(name)
	if !ok {
		return nil
	}
	return m
}

// Type returns the service's declared type.
func (h *ServiceHandle) Type() string {
	return h.rs.desc.Type
}

// Call invokes one member. Members hosted in-process run directly; members
// owned by a connected peer are invoked with a request frame and a
// correlated reply. A streaming result is returned as *service.Stream.
func (h *ServiceHandle) Call(ctx context.Context, member string, args ...interface{}) (interface{}, error) {
	m, known := h.rs.desc.Member(member)
	if known && m.Handler != nil {
		return h.callLocal(ctx, m, args)
	}
	if !known && len(h.rs.desc.Members) > 0 {
		return nil, hyphaerrors.FunctionNotFoundErrorf("service %q has no member %q", h.FullID(), member)
	}
	return h.callRemote(ctx, member, args)
}

func (h *ServiceHandle) callLocal(ctx context.Context, m *service.Method, args []interface{}) (interface{}, error) {
	call := &service.CallContext{
		Workspace: h.workspace.ID,
		From:      h.workspace.ID + "/http-server",
		To:        h.FullID(),
		User:      h.caller,
	}
	ctx, cancel := waitDeadline(ctx, h.router.methodTimeout())
	defer cancel()
	return m.Call(ctx, call, args)
}

func (h *ServiceHandle) callRemote(ctx context.Context, member string, args []interface{}) (interface{}, error) {
	r := h.router
	owner := h.rs.owner
	internal := r.internalPeer(h.workspace)

	id := uuid.NewString()
	pc := r.registerPending(id, owner.FullID())

	f, err := buildFrame(FrameTypeMethod, internal.ClientID, owner.FullID()+":"+h.rs.desc.ID, id, MethodCall{
		Method: member,
		Args:   args,
	})
	if err != nil {
		r.dropPending(id)
		return nil, err
	}
	// Route as the internal peer so the reply path is symmetric with any
	// other client's.
	r.routeFrame(internal, f.Encode())

	ctx, cancel := waitDeadline(ctx, r.methodTimeout())

	select {
	case <-ctx.Done():
		cancel()
		r.dropPending(id)
		return nil, hyphaerrors.RequestTimeoutErrorf("no reply from %q within %s", owner.FullID(), r.methodTimeout())
	case reply := <-pc.ch:
		switch reply.kind {
		case FrameTypeResult:
			cancel()
			r.dropPending(id)
			return decodeValue(reply.value), nil
		case FrameTypeError:
			cancel()
			r.dropPending(id)
			return nil, reply.err
		case FrameTypeYield:
			// The pump owns the pending slot and the context from here.
			return h.pumpStream(ctx, cancel, pc, reply), nil
		default:
			cancel()
			r.dropPending(id)
			return nil, hyphaerrors.UnknownErrorf("unexpected reply type %q", reply.kind)
		}
	}
}

// pumpStream turns the remaining replies of a yielding call into a Stream.
// The first yield has already arrived.
func (h *ServiceHandle) pumpStream(ctx context.Context, cancel context.CancelFunc, pc *pendingCall, first pendingReply) *service.Stream {
	stream := service.NewStream(64)
	r := h.router
	go func() {
		defer cancel()
		defer r.dropPending(pc.id)
		reply := first
		for {
			switch reply.kind {
			case FrameTypeYield:
				if err := stream.Send(decodeValue(reply.value)); err != nil {
					return
				}
			case FrameTypeResult:
				stream.Close()
				return
			case FrameTypeError:
				stream.Fail(reply.err)
				return
			default:
				stream.Fail(hyphaerrors.UnknownErrorf("unexpected reply type %q", reply.kind))
				return
			}
			select {
			case <-ctx.Done():
				stream.Fail(hyphaerrors.RequestTimeoutErrorf("stream from %q stalled", pc.target))
				return
			case reply = <-pc.ch:
			}
		}
	}()
	return stream
}

func decodeValue(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}

// waitDeadline bounds ctx by the router's method timeout when the caller
// supplied no deadline of its own.
func waitDeadline(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
