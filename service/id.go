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
	"fmt"
	"strings"
)

// ID addresses a service. A fully-qualified id reads
// "workspace/client:service"; lookups may leave the workspace, the client,
// or both empty.
type ID struct {
	Workspace string
	Client    string
	Service   string
}

// ParseID parses the accepted id shapes: "service", "client:service",
// "workspace/client:service", and "workspace/service".
func ParseID(s string) ID {
	var id ID
	if ws, rest, ok := strings.Cut(s, "/"); ok {
		id.Workspace = ws
		s = rest
	}
	if client, svc, ok := strings.Cut(s, ":"); ok {
		id.Client = client
		id.Service = svc
		return id
	}
	id.Service = s
	return id
}

// String renders the id with whatever parts are present.
func (id ID) String() string {
	var b strings.Builder
	if id.Workspace != "" {
		b.WriteString(id.Workspace)
		b.WriteByte('/')
	}
	if id.Client != "" {
		b.WriteString(id.Client)
		b.WriteByte(':')
	}
	b.WriteString(id.Service)
	return b.String()
}

// FullID renders the canonical fully-qualified form
// "workspace/client:service".
func FullID(workspace, client, svc string) string {
	return fmt.Sprintf("%s/%s:%s", workspace, client, svc)
}
