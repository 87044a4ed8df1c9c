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

// Package service defines service descriptors, their callable members, and
// the streaming and context types shared by the router, the built-in
// workspace service, and the HTTP proxy.
package service

import (
	"sort"
	"strings"

	"github.com/amun-ai/hypha-go/hyphaerrors"
)

// Visibility controls who may see and call a service.
type Visibility string

// Recognized visibilities. The zero value means protected.
const (
	VisibilityPublic    Visibility = "public"
	VisibilityProtected Visibility = "protected"
)

// Well-known service types. Type is otherwise an opaque string.
const (
	TypeGeneric   = "generic"
	TypeFunctions = "functions"
	TypeASGI      = "asgi"
)

// Config holds the recognized per-service options.
type Config struct {
	Visibility     Visibility `json:"visibility,omitempty"`
	RequireContext bool       `json:"require_context,omitempty"`

	// Workspace is computed at registration time and must equal the owner's
	// workspace.
	Workspace string `json:"workspace,omitempty"`
}

// Public reports whether the config grants public visibility.
func (c Config) Public() bool { return c.Visibility == VisibilityPublic }

// Descriptor is a registered service: metadata plus callable members. The
// callables live on the owning peer's side; the registry stores only this
// value.
type Descriptor struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type,omitempty"`
	AppID       string `json:"app_id,omitempty"`
	Config      Config `json:"config"`

	// Members maps canonical snake_case member names to their methods.
	// Lookup also accepts camelCase spellings; see Member.
	Members map[string]*Method `json:"-"`
}

// ValidateID rejects service-local ids that would break fully-qualified
// addressing.
func ValidateID(id string) error {
	if id == "" {
		return hyphaerrors.InvalidArgumentErrorf("service id must not be empty")
	}
	if strings.ContainsAny(id, ":/") {
		return hyphaerrors.InvalidArgumentErrorf("service id %q must not contain ':' or '/'", id)
	}
	return nil
}

// Member resolves a member by name, accepting both snake_case and camelCase
// spellings. Members are stored under their canonical snake_case name;
// camelCase lookups are normalized before the map access.
func (d *Descriptor) Member(name string) (*Method, bool) {
	if m, ok := d.Members[name]; ok {
		return m, true
	}
	m, ok := d.Members[ToSnake(name)]
	return m, ok
}

// MemberNames returns the canonical member names in sorted order.
func (d *Descriptor) MemberNames() []string {
	names := make([]string, 0, len(d.Members))
	for name := range d.Members {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Query selects services by optional field matches. Empty fields match
// everything.
type Query struct {
	ID         string     `json:"id,omitempty"`
	Type       string     `json:"type,omitempty"`
	AppID      string     `json:"app_id,omitempty"`
	Visibility Visibility `json:"visibility,omitempty"`
	Workspace  string     `json:"workspace,omitempty"`
}

// Matches reports whether the descriptor satisfies every set field of q.
// The workspace field is matched by the registry, not here.
func (d *Descriptor) Matches(q Query) bool {
	if q.ID != "" && q.ID != d.ID {
		return false
	}
	if q.Type != "" && q.Type != d.Type {
		return false
	}
	if q.AppID != "" && q.AppID != d.AppID {
		return false
	}
	if q.Visibility != "" && q.Visibility != d.Config.Visibility {
		return false
	}
	return true
}

// ToSnake converts a camelCase name to snake_case. Names already in
// snake_case pass through unchanged.
func ToSnake(name string) string {
	var b strings.Builder
	b.Grow(len(name) + 4)
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r - 'A' + 'a')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
