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

package service

import (
	"context"
	"fmt"

	"github.com/amun-ai/hypha-go/auth"
	"github.com/amun-ai/hypha-go/hyphaerrors"
)

// CallContext is the verified call context the router injects into methods
// whose service is marked require_context. It is typed and distinct from
// user arguments; callers cannot forge it.
type CallContext struct {
	Workspace string         `json:"ws"`
	From      string         `json:"from"`
	To        string         `json:"to"`
	User      *auth.UserInfo `json:"user"`
}

// Handler is the uniform shape of a callable member. args carries the
// positional user arguments; call is nil unless the owning service requires
// context. A streaming member returns a *Stream as its result.
type Handler func(ctx context.Context, call *CallContext, args []interface{}) (interface{}, error)

// Method is one callable member of a service.
type Method struct {
	// Name is the canonical snake_case member name.
	Name string

	// Params are the declared parameter names. The HTTP proxy discriminates
	// on their count: zero params takes no arguments, one takes the value
	// alone, more take a single map argument.
	Params []string

	Handler Handler
}

// Call invokes the method, converting panics inside the callable into
// ServiceError so a misbehaving service never takes the router down.
func (m *Method) Call(ctx context.Context, call *CallContext, args []interface{}) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = hyphaerrors.ServiceErrorf("panic in service method %s: %v", m.Name, r)
		}
	}()
	result, err = m.Handler(ctx, call, args)
	if err != nil && !hyphaerrors.IsStatus(err) {
		err = hyphaerrors.ServiceErrorf("%s: %v", m.Name, err)
	}
	return result, err
}

// ArgsFromMap rebuilds positional arguments from named ones using the
// declared parameter order. Unknown names are rejected.
func (m *Method) ArgsFromMap(named map[string]interface{}) ([]interface{}, error) {
	norm := make(map[string]interface{}, len(named))
	for name, v := range named {
		norm[ToSnake(name)] = v
	}
	for name := range norm {
		found := false
		for _, p := range m.Params {
			if p == name {
				found = true
				break
			}
		}
		if !found {
			return nil, hyphaerrors.InvalidArgumentErrorf("unknown parameter %q for %s", name, m.Name)
		}
	}
	args := make([]interface{}, len(m.Params))
	for i, p := range m.Params {
		args[i] = norm[p]
	}
	return args, nil
}

// Schema describes the method for serialization: the function form
// enumerated in the HTTP proxy's output contract.
func (m *Method) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "function",
		"function": map[string]interface{}{
			"name":       m.Name,
			"parameters": m.Params,
		},
	}
}

func (m *Method) String() string {
	return fmt.Sprintf("%s(%d params)", m.Name, len(m.Params))
}
