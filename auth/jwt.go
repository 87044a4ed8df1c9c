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
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/amun-ai/hypha-go/hyphaerrors"
)

// claimNamespace prefixes the claim variants written by the external issuer.
const claimNamespace = "https://amun.ai/"

type claims struct {
	jwt.RegisteredClaims

	Email     string   `json:"email,omitempty"`
	Roles     []string `json:"roles,omitempty"`
	Scopes    []string `json:"scopes,omitempty"`
	Workspace string   `json:"workspace,omitempty"`
	ClientID  string   `json:"client_id,omitempty"`

	// Namespaced variants used by the external issuer. Accepted on parse,
	// never written.
	NSEmail  string   `json:"https://amun.ai/email,omitempty"`
	NSRoles  []string `json:"https://amun.ai/roles,omitempty"`
	NSScopes []string `json:"https://amun.ai/scopes,omitempty"`
}

func (m *Manager) verifyJWT(token string) (*Credentials, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, hyphaerrors.ExpiredTokenErrorf("token expired")
		}
		return nil, hyphaerrors.InvalidTokenErrorf("jwt verification failed: %v", err)
	}
	if !parsed.Valid {
		return nil, hyphaerrors.InvalidTokenErrorf("jwt did not validate")
	}

	email := c.Email
	if email == "" {
		email = c.NSEmail
	}
	roles := c.Roles
	if len(roles) == 0 {
		roles = c.NSRoles
	}
	scopes := c.Scopes
	if len(scopes) == 0 {
		scopes = c.NSScopes
	}

	user := &UserInfo{
		ID:     c.Subject,
		Email:  email,
		Roles:  roles,
		Scopes: scopes,
	}
	user.IsAnonymous = user.HasRole(RoleAnonymous)
	if user.ID == "" {
		return nil, hyphaerrors.InvalidTokenErrorf("jwt has no subject")
	}
	return &Credentials{
		User:      user,
		Workspace: c.Workspace,
		ClientID:  c.ClientID,
	}, nil
}

func (m *Manager) mintJWT(cfg TokenConfig, lifetime time.Duration) (string, error) {
	now := m.now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   cfg.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
		},
		Email:     cfg.Email,
		Roles:     cfg.Roles,
		Scopes:    cfg.Scopes,
		Workspace: cfg.Workspace,
		ClientID:  cfg.ClientID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.secret)
	if err != nil {
		return "", hyphaerrors.InternalErrorf("signing token: %v", err)
	}
	return signed, nil
}
