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
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/amun-ai/hypha-go/auth"
	"github.com/amun-ai/hypha-go/frame"
	"github.com/amun-ai/hypha-go/hyphaerrors"
	"github.com/amun-ai/hypha-go/service"
)

// buildWorkspaceService assembles the built-in service every workspace
// exposes under workspace-manager:default. Extra members from the config's
// DefaultService are merged in; built-ins win on name collisions.
func (r *Router) buildWorkspaceService(w *Workspace) *service.Descriptor {
	members := map[string]*service.Method{
		"echo": {
			Name:   "echo",
			Params: []string{"message"},
			Handler: func(_ context.Context, _ *service.CallContext, args []interface{}) (interface{}, error) {
				if len(args) == 0 {
					return nil, nil
				}
				return args[0], nil
			},
		},
		"alive": {
			Name: "alive",
			Handler: func(_ context.Context, _ *service.CallContext, _ []interface{}) (interface{}, error) {
				return "ok", nil
			},
		},
		"register_service": {
			Name:    "register_service",
			Params:  []string{"service"},
			Handler: r.handleRegisterService(w),
		},
		"unregister_service": {
			Name:    "unregister_service",
			Params:  []string{"service_id"},
			Handler: r.handleUnregisterService(w),
		},
		"list_services": {
			Name:    "list_services",
			Params:  []string{"query"},
			Handler: r.handleListServices(w),
		},
		"get_service": {
			Name:    "get_service",
			Params:  []string{"service_id", "options"},
			Handler: r.handleGetService(w),
		},
		"generate_token": {
			Name:    "generate_token",
			Params:  []string{"config"},
			Handler: r.handleGenerateToken(w),
		},
		"emit": {
			Name:    "emit",
			Params:  []string{"event", "data"},
			Handler: r.handleEmit(w),
		},
		"on": {
			Name:    "on",
			Params:  []string{"event"},
			Handler: r.handleSubscribe(w),
		},
		"off": {
			Name:    "off",
			Params:  []string{"event"},
			Handler: r.handleUnsubscribe(w),
		},
	}
	for _, level := range []string{"log", "info", "warning", "error"} {
		level := level
		members[level] = &service.Method{
			Name:    level,
			Params:  []string{"message"},
			Handler: r.handleClientLog(w, level),
		}
	}
	for name, m := range r.config.DefaultService {
		if _, taken := members[name]; !taken {
			members[name] = m
		}
	}
	return &service.Descriptor{
		ID:          ManagerServiceID,
		Name:        "Workspace Manager",
		Description: "Built-in workspace management service",
		Type:        service.TypeFunctions,
		Config: service.Config{
			Visibility:     service.VisibilityPublic,
			RequireContext: true,
			Workspace:      w.ID,
		},
		Members: members,
	}
}

// ---------------------------------------------------------------------------
// Member handlers

// wireService is the JSON shape remote peers register services with.
type wireService struct {
	ID          string   `json:"id"`
	Name        string   `json:"name,omitempty"`
	Description string   `json:"description,omitempty"`
	Type        string   `json:"type,omitempty"`
	AppID       string   `json:"app_id,omitempty"`
	Members     []string `json:"members,omitempty"`
	Config      struct {
		Visibility     service.Visibility `json:"visibility,omitempty"`
		RequireContext bool               `json:"require_context,omitempty"`
		Workspace      string             `json:"workspace,omitempty"`
		Overwrite      bool               `json:"overwrite,omitempty"`
	} `json:"config,omitempty"`
}

func (r *Router) senderPeer(w *Workspace, call *service.CallContext) (*Peer, error) {
	_, clientID, ok := strings.Cut(call.From, "/")
	if !ok {
		clientID = call.From
	}
	p, found := w.peer(clientID)
	if !found {
		return nil, hyphaerrors.RecipientUnknownErrorf("caller %q is not connected in workspace %q", call.From, w.ID)
	}
	return p, nil
}

func (r *Router) handleRegisterService(w *Workspace) service.Handler {
	return func(_ context.Context, call *service.CallContext, args []interface{}) (interface{}, error) {
		owner, err := r.senderPeer(w, call)
		if err != nil {
			return nil, err
		}
		var ws wireService
		if err := reencode(argAt(args, 0), &ws); err != nil {
			return nil, hyphaerrors.InvalidArgumentErrorf("bad service definition: %v", err)
		}
		desc := &service.Descriptor{
			ID:          ws.ID,
			Name:        ws.Name,
			Description: ws.Description,
			Type:        ws.Type,
			AppID:       ws.AppID,
			Config: service.Config{
				Visibility:     ws.Config.Visibility,
				RequireContext: ws.Config.RequireContext,
				Workspace:      ws.Config.Workspace,
			},
		}
		if len(ws.Members) > 0 {
			desc.Members = make(map[string]*service.Method, len(ws.Members))
			for _, name := range ws.Members {
				// Remote members carry no handler; calls are routed to the
				// owner as frames.
				desc.Members[name] = &service.Method{Name: name}
			}
		}
		if err := w.registerService(desc, owner, ws.Config.Overwrite); err != nil {
			return nil, err
		}
		rs := &registeredService{desc: desc, owner: owner}
		w.events.emit("service_registered", map[string]interface{}{"id": rs.fullID()})
		r.logger.Info("service registered",
			zap.String("service", rs.fullID()),
			zap.String("owner", owner.FullID()))
		return rs.wireDescriptor(), nil
	}
}

func (r *Router) handleUnregisterService(w *Workspace) service.Handler {
	return func(_ context.Context, call *service.CallContext, args []interface{}) (interface{}, error) {
		owner, err := r.senderPeer(w, call)
		if err != nil {
			return nil, err
		}
		id, err := argString(args, 0)
		if err != nil {
			return nil, err
		}
		// Accept fully-qualified ids from clients echoing back what they
		// registered.
		parsed := service.ParseID(id)
		if err := w.unregisterService(parsed.Service, owner); err != nil {
			return nil, err
		}
		w.events.emit("service_unregistered", map[string]interface{}{"id": id, "owner": owner.FullID()})
		return nil, nil
	}
}

func (r *Router) handleListServices(w *Workspace) service.Handler {
	return func(_ context.Context, call *service.CallContext, args []interface{}) (interface{}, error) {
		var q service.Query
		if len(args) > 0 && args[0] != nil {
			if err := reencode(args[0], &q); err != nil {
				return nil, hyphaerrors.InvalidArgumentErrorf("bad query: %v", err)
			}
		}
		target := w
		if q.Workspace != "" && q.Workspace != w.ID {
			other, ok := r.Workspace(q.Workspace)
			if !ok {
				return nil, hyphaerrors.ServiceNotFoundErrorf("workspace %q is unknown", q.Workspace)
			}
			target = other
		}
		listed := target.listServices(q, call.User)
		out := make([]map[string]interface{}, 0, len(listed))
		for _, rs := range listed {
			out = append(out, rs.wireDescriptor())
		}
		return out, nil
	}
}

func (r *Router) handleGetService(w *Workspace) service.Handler {
	return func(ctx context.Context, call *service.CallContext, args []interface{}) (interface{}, error) {
		id, err := argString(args, 0)
		if err != nil {
			return nil, err
		}
		mode := "default"
		var timeout time.Duration
		if len(args) > 1 && args[1] != nil {
			switch opt := args[1].(type) {
			case string:
				mode = opt
			case map[string]interface{}:
				if v, ok := opt["mode"].(string); ok && v != "" {
					mode = v
				}
				if v, ok := opt["timeout"].(float64); ok && v > 0 {
					timeout = time.Duration(v * float64(time.Second))
				}
			default:
				return nil, hyphaerrors.InvalidArgumentErrorf("options must be a mode string or an options object")
			}
		}

		handle, err := r.GetService(call.User, w.ID, id, mode)
		if timeout > 0 {
			// A timeout turns the lookup into a wait for the service to
			// appear.
			deadline := time.Now().Add(timeout)
			for err != nil && hyphaerrors.IsServiceNotFound(err) {
				remaining := time.Until(deadline)
				if remaining <= 0 {
					return nil, hyphaerrors.RequestTimeoutErrorf("service %q did not appear within %s", id, timeout)
				}
				wait := 100 * time.Millisecond
				if wait > remaining {
					wait = remaining
				}
				select {
				case <-ctx.Done():
					return nil, hyphaerrors.RequestTimeoutErrorf("waiting for service %q: %v", id, ctx.Err())
				case <-time.After(wait):
				}
				handle, err = r.GetService(call.User, w.ID, id, mode)
			}
		}
		if err != nil {
			return nil, err
		}
		return handle.Descriptor(), nil
	}
}

func (r *Router) handleGenerateToken(w *Workspace) service.Handler {
	return func(_ context.Context, call *service.CallContext, args []interface{}) (interface{}, error) {
		// Tokens minted here carry this workspace as their placement grant,
		// so minting is a member-only operation.
		if !w.MemberOf(call.User) {
			return nil, hyphaerrors.WorkspaceForbiddenErrorf("only members of workspace %q may mint tokens for it", w.ID)
		}
		var cfg auth.TokenConfig
		if len(args) > 0 && args[0] != nil {
			if err := reencode(args[0], &cfg); err != nil {
				return nil, hyphaerrors.InvalidArgumentErrorf("bad token config: %v", err)
			}
		}
		return r.auth.GenerateToken(cfg, call.User, w.ID)
	}
}

func (r *Router) handleEmit(w *Workspace) service.Handler {
	return func(_ context.Context, _ *service.CallContext, args []interface{}) (interface{}, error) {
		event, err := argString(args, 0)
		if err != nil {
			return nil, err
		}
		var data interface{}
		if len(args) > 1 {
			data = args[1]
		}
		n := w.events.emit(event, data)
		return map[string]interface{}{"delivered": n}, nil
	}
}

func (r *Router) handleSubscribe(w *Workspace) service.Handler {
	return func(_ context.Context, call *service.CallContext, args []interface{}) (interface{}, error) {
		event, err := argString(args, 0)
		if err != nil {
			return nil, err
		}
		subscriber, err := r.senderPeer(w, call)
		if err != nil {
			return nil, err
		}
		w.events.on(event, subscriber.FullID(), func(name string, payload interface{}) {
			f, err := buildFrame(FrameTypeEvent, w.ID+"/"+ManagerClientID, subscriber.FullID(), "", EventMessage{
				Event: name,
				Data:  payload,
			})
			if err != nil {
				return
			}
			f.SetWorkspace(w.ID)
			if err := subscriber.Transport.Send(f.Encode()); err != nil {
				r.logger.Debug("event delivery failed",
					zap.String("subscriber", subscriber.FullID()), zap.Error(err))
			}
		})
		return nil, nil
	}
}

func (r *Router) handleUnsubscribe(w *Workspace) service.Handler {
	return func(_ context.Context, call *service.CallContext, args []interface{}) (interface{}, error) {
		event, err := argString(args, 0)
		if err != nil {
			return nil, err
		}
		subscriber, err := r.senderPeer(w, call)
		if err != nil {
			return nil, err
		}
		w.events.off(event, subscriber.FullID())
		return nil, nil
	}
}

func (r *Router) handleClientLog(w *Workspace, level string) service.Handler {
	return func(_ context.Context, call *service.CallContext, args []interface{}) (interface{}, error) {
		msg := ""
		if len(args) > 0 {
			if s, ok := args[0].(string); ok {
				msg = s
			} else {
				body, _ := json.Marshal(args[0])
				msg = string(body)
			}
		}
		fields := []zap.Field{
			zap.String("workspace", w.ID),
			zap.String("client", call.From),
		}
		switch level {
		case "error":
			r.logger.Error(msg, fields...)
		case "warning":
			r.logger.Warn(msg, fields...)
		default:
			r.logger.Info(msg, fields...)
		}
		return nil, nil
	}
}

// ---------------------------------------------------------------------------
// Manager frame dispatch

// handleManagerFrame services one frame addressed to the workspace-manager
// peer. It runs on its own goroutine; slow members never block routing.
func (r *Router) handleManagerFrame(w *Workspace, data []byte) {
	f, err := frame.Decode(data)
	if err != nil {
		r.logger.Warn("manager received malformed frame", zap.String("workspace", w.ID), zap.Error(err))
		return
	}
	if f.Type() != FrameTypeMethod {
		// Replies and events addressed at the manager have no consumer.
		return
	}
	var mc MethodCall
	if err := json.Unmarshal(f.Payload, &mc); err != nil {
		r.replyToFrame(w, f, nil, hyphaerrors.MalformedFrameErrorf("bad method payload: %v", err))
		return
	}

	desc := r.managerDescriptor(w)
	if desc == nil {
		r.replyToFrame(w, f, nil, hyphaerrors.InternalErrorf("workspace %q has no manager service", w.ID))
		return
	}
	m, known := desc.Member(mc.Method)
	if !known || m.Handler == nil {
		r.replyToFrame(w, f, nil, hyphaerrors.FunctionNotFoundErrorf("workspace service has no member %q", mc.Method))
		return
	}

	call := &service.CallContext{
		Workspace: f.Workspace(),
		From:      f.From(),
		To:        f.To(),
	}
	if raw := f.User(); raw != "" {
		var user auth.UserInfo
		if err := json.Unmarshal([]byte(raw), &user); err == nil {
			call.User = &user
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.methodTimeout())
	defer cancel()
	result, err := m.Call(ctx, call, mc.Args)
	if stream, ok := result.(*service.Stream); ok {
		r.replyStream(ctx, w, f, stream)
		return
	}
	r.replyToFrame(w, f, result, err)
}

func (r *Router) managerDescriptor(w *Workspace) *service.Descriptor {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if rs, ok := w.services[ManagerClientID+":"+ManagerServiceID]; ok {
		return rs.desc
	}
	return nil
}

// replyToFrame answers a method frame, honoring fire-and-forget calls.
func (r *Router) replyToFrame(w *Workspace, req *frame.Frame, result interface{}, callErr error) {
	if req.ID() == "" {
		if callErr != nil {
			r.logger.Warn("fire-and-forget manager call failed",
				zap.String("workspace", w.ID), zap.Error(callErr))
		}
		return
	}
	var payload interface{}
	frameType := FrameTypeResult
	if callErr != nil {
		frameType = FrameTypeError
		payload = newErrorDetail(callErr)
	} else {
		payload = MethodResult{Result: result}
	}
	r.sendManagerReply(w, req, frameType, payload)
}

// replyStream drains a streaming result into yield frames followed by a
// final result or error frame.
func (r *Router) replyStream(ctx context.Context, w *Workspace, req *frame.Frame, stream *service.Stream) {
	defer stream.Stop()
	for {
		v, err := stream.Next(ctx)
		if err == io.EOF {
			r.sendManagerReply(w, req, FrameTypeResult, MethodResult{})
			return
		}
		if err != nil {
			r.sendManagerReply(w, req, FrameTypeError, newErrorDetail(err))
			return
		}
		if req.ID() != "" {
			r.sendManagerReply(w, req, FrameTypeYield, MethodYield{Value: v})
		}
	}
}

func (r *Router) sendManagerReply(w *Workspace, req *frame.Frame, frameType string, payload interface{}) {
	reply, err := buildFrame(frameType, req.To(), req.From(), req.ID(), payload)
	if err != nil {
		r.logger.Warn("encoding manager reply", zap.Error(err))
		return
	}
	reply.SetWorkspace(w.ID)
	recipient, ok := r.getPeer(req.From())
	if !ok {
		r.logger.Debug("manager reply recipient gone", zap.String("recipient", req.From()))
		return
	}
	if err := recipient.Transport.Send(reply.Encode()); err != nil {
		r.logger.Debug("manager reply dropped",
			zap.String("recipient", req.From()), zap.Error(err))
	}
}

// ---------------------------------------------------------------------------
// Argument helpers

func argAt(args []interface{}, i int) interface{} {
	if i < len(args) {
		return args[i]
	}
	return nil
}

func argString(args []interface{}, i int) (string, error) {
	v := argAt(args, i)
	s, ok := v.(string)
	if !ok {
		return "", hyphaerrors.InvalidArgumentErrorf("argument %d must be a string", i)
	}
	return s, nil
}

// reencode converts a decoded-JSON value into a typed struct.
func reencode(in, out interface{}) error {
	if in == nil {
		return nil
	}
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}
