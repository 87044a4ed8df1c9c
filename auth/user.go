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

package auth

import (
	"fmt"

	"github.com/google/uuid"
)

// Role and scope names with router-level meaning.
const (
	RoleAdmin     = "admin"
	RoleRoot      = "root"
	RoleAnonymous = "anonymous"

	ScopeRead = "read"
)

// UserInfo is the resolved identity of a connected peer.
type UserInfo struct {
	ID          string   `json:"id"`
	Email       string   `json:"email,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Scopes      []string `json:"scopes,omitempty"`
	IsAnonymous bool     `json:"is_anonymous"`
}

// IsAdmin reports whether the user carries an administrative role.
func (u *UserInfo) IsAdmin() bool {
	return u.HasRole(RoleAdmin) || u.HasRole(RoleRoot)
}

// HasRole reports whether the user carries the named role.
func (u *UserInfo) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasScope reports whether the user carries the named scope.
func (u *UserInfo) HasScope(scope string) bool {
	for _, s := range u.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// NewAnonymousUser mints a fresh anonymous identity. The id is stable for
// the lifetime of the connection it is minted for; the matching default
// workspace shares the same id.
func NewAnonymousUser() *UserInfo {
	return &UserInfo{
		ID:          fmt.Sprintf("anonymous-%s", uuid.NewString()),
		Roles:       []string{RoleAnonymous},
		Scopes:      []string{ScopeRead},
		IsAnonymous: true,
	}
}
