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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amun-ai/hypha-go/hyphaerrors"
)

func TestToSnake(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"echo", "echo"},
		{"registerService", "register_service"},
		{"listServices", "list_services"},
		{"already_snake", "already_snake"},
		{"getHTTPProxy", "get_h_t_t_p_proxy"},
		{"", ""},
		{"X", "x"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ToSnake(tt.in), "ToSnake(%q)", tt.in)
	}
}

func TestValidateID(t *testing.T) {
	assert.NoError(t, ValidateID("calc"))
	assert.NoError(t, ValidateID("my-service.v2"))
	assert.Error(t, ValidateID(""))
	assert.Error(t, ValidateID("a:b"))
	assert.Error(t, ValidateID("a/b"))
}

func TestMemberAcceptsBothSpellings(t *testing.T) {
	d := &Descriptor{
		ID: "calc",
		Members: map[string]*Method{
			"add_numbers": {Name: "add_numbers"},
		},
	}
	m, ok := d.Member("add_numbers")
	require.True(t, ok)
	assert.Equal(t, "add_numbers", m.Name)

	m, ok = d.Member("addNumbers")
	require.True(t, ok)
	assert.Equal(t, "add_numbers", m.Name)

	_, ok = d.Member("subtract")
	assert.False(t, ok)
}

func TestMatches(t *testing.T) {
	d := &Descriptor{
		ID:    "calc",
		Type:  TypeFunctions,
		AppID: "app-1",
		Config: Config{
			Visibility: VisibilityPublic,
		},
	}
	assert.True(t, d.Matches(Query{}))
	assert.True(t, d.Matches(Query{ID: "calc", Type: TypeFunctions}))
	assert.True(t, d.Matches(Query{Visibility: VisibilityPublic, AppID: "app-1"}))
	assert.False(t, d.Matches(Query{ID: "other"}))
	assert.False(t, d.Matches(Query{Type: TypeASGI}))
	assert.False(t, d.Matches(Query{Visibility: VisibilityProtected}))
}

func TestParseID(t *testing.T) {
	tests := []struct {
		in   string
		want ID
	}{
		{"calc", ID{Service: "calc"}},
		{"alice:calc", ID{Client: "alice", Service: "calc"}},
		{"ws/alice:calc", ID{Workspace: "ws", Client: "alice", Service: "calc"}},
		{"ws/calc", ID{Workspace: "ws", Service: "calc"}},
		{"", ID{}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseID(tt.in), "ParseID(%q)", tt.in)
	}
}

func TestIDString(t *testing.T) {
	assert.Equal(t, "ws/alice:calc", ID{Workspace: "ws", Client: "alice", Service: "calc"}.String())
	assert.Equal(t, "alice:calc", ID{Client: "alice", Service: "calc"}.String())
	assert.Equal(t, "calc", ID{Service: "calc"}.String())
	assert.Equal(t, "ws/alice:calc", FullID("ws", "alice", "calc"))
}

func TestMethodCallRecoversPanic(t *testing.T) {
	m := &Method{
		Name: "boom",
		Handler: func(context.Context, *CallContext, []interface{}) (interface{}, error) {
			panic("kaboom")
		},
	}
	_, err := m.Call(context.Background(), nil, nil)
	require.Error(t, err)
	assert.True(t, hyphaerrors.IsServiceError(err))
	assert.Contains(t, err.Error(), "kaboom")
}

func TestMethodCallWrapsForeignErrors(t *testing.T) {
	m := &Method{
		Name: "fails",
		Handler: func(context.Context, *CallContext, []interface{}) (interface{}, error) {
			return nil, errors.New("plain failure")
		},
	}
	_, err := m.Call(context.Background(), nil, nil)
	require.Error(t, err)
	assert.True(t, hyphaerrors.IsServiceError(err))
}

func TestMethodCallKeepsStatusErrors(t *testing.T) {
	m := &Method{
		Name: "forbidden",
		Handler: func(context.Context, *CallContext, []interface{}) (interface{}, error) {
			return nil, hyphaerrors.WorkspaceForbiddenErrorf("no")
		},
	}
	_, err := m.Call(context.Background(), nil, nil)
	assert.True(t, hyphaerrors.IsWorkspaceForbidden(err))
}

func TestArgsFromMap(t *testing.T) {
	m := &Method{Name: "add", Params: []string{"first_value", "second_value"}}

	args, err := m.ArgsFromMap(map[string]interface{}{"first_value": 1, "second_value": 2})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{1, 2}, args)

	// camelCase keys normalize onto snake_case params.
	args, err = m.ArgsFromMap(map[string]interface{}{"firstValue": 1, "secondValue": 2})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{1, 2}, args)

	// Missing names become nil in position.
	args, err = m.ArgsFromMap(map[string]interface{}{"second_value": 2})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{nil, 2}, args)

	_, err = m.ArgsFromMap(map[string]interface{}{"third_value": 3})
	require.Error(t, err)
	assert.True(t, hyphaerrors.IsInvalidArgument(err))
}
