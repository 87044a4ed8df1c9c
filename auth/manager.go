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

// Package auth verifies and mints the credentials a peer presents at
// handshake time: shared-secret JWTs, locally minted opaque tokens, or
// nothing at all, in which case the caller becomes a fresh anonymous user.
package auth

import (
	"strings"
	"time"

	"github.com/amun-ai/hypha-go/hyphaerrors"
)

const defaultTokenLifetime = time.Hour

// Credentials are the authenticated facts extracted from a token: who the
// caller is and what workspace/client placement the token asks for.
type Credentials struct {
	User *UserInfo

	// Workspace and ClientID are the placements requested by the token, if
	// any. The workspace registry decides whether to honor them.
	Workspace string
	ClientID  string
}

// TokenConfig is the argument of generate_token on the workspace service.
type TokenConfig struct {
	UserID    string   `json:"user_id,omitempty"`
	Workspace string   `json:"workspace,omitempty"`
	ClientID  string   `json:"client_id,omitempty"`
	Email     string   `json:"email,omitempty"`
	Roles     []string `json:"roles,omitempty"`
	Scopes    []string `json:"scopes,omitempty"`
	ExpiresIn int64    `json:"expires_in,omitempty"`
}

// Manager authenticates tokens and mints new ones. With a secret configured
// it speaks JWT; without one it falls back to opaque one-shot tokens held in
// a bounded local table.
type Manager struct {
	secret []byte
	tokens *tokenTable
	now    func() time.Time
}

// NewManager builds a Manager. secret may be empty, which disables JWT
// verification and minting.
func NewManager(secret string) *Manager {
	return &Manager{
		secret: []byte(secret),
		tokens: newTokenTable(),
		now:    time.Now,
	}
}

// JWTEnabled reports whether a shared secret is configured.
func (m *Manager) JWTEnabled() bool { return len(m.secret) > 0 }

// Authenticate resolves a raw token into credentials.
//
// An empty token yields a fresh anonymous user and never fails. A non-empty
// token must verify as either a local opaque token or a JWT.
func (m *Manager) Authenticate(token string) (*Credentials, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return &Credentials{User: NewAnonymousUser()}, nil
	}
	if creds, ok := m.tokens.get(token, m.now()); ok {
		return creds, nil
	}
	if !m.JWTEnabled() {
		return nil, hyphaerrors.InvalidTokenErrorf("token is not a known opaque token and no JWT secret is configured")
	}
	return m.verifyJWT(token)
}

// GenerateToken mints a token on behalf of caller, whose own workspace is
// callerWorkspace. Asking for another user, another workspace, or roles or
// scopes the caller does not hold requires the admin role.
func (m *Manager) GenerateToken(cfg TokenConfig, caller *UserInfo, callerWorkspace string) (string, error) {
	if cfg.UserID != "" && cfg.UserID != caller.ID && !caller.IsAdmin() {
		return "", hyphaerrors.InsufficientScopeErrorf("only admins may mint tokens for user %q", cfg.UserID)
	}
	if cfg.Workspace != "" && cfg.Workspace != callerWorkspace && !caller.IsAdmin() {
		return "", hyphaerrors.InsufficientScopeErrorf("only admins may mint tokens for workspace %q", cfg.Workspace)
	}
	if !caller.IsAdmin() {
		if extra := missingFrom(cfg.Roles, caller.Roles); extra != "" {
			return "", hyphaerrors.InsufficientScopeErrorf("caller does not hold role %q", extra)
		}
		if extra := missingFrom(cfg.Scopes, caller.Scopes); extra != "" {
			return "", hyphaerrors.InsufficientScopeErrorf("caller does not hold scope %q", extra)
		}
	}

	if cfg.UserID == "" {
		cfg.UserID = caller.ID
	}
	if cfg.Workspace == "" {
		cfg.Workspace = callerWorkspace
	}
	lifetime := defaultTokenLifetime
	if cfg.ExpiresIn > 0 {
		lifetime = time.Duration(cfg.ExpiresIn) * time.Second
	}

	if m.JWTEnabled() {
		return m.mintJWT(cfg, lifetime)
	}
	creds := &Credentials{
		User: &UserInfo{
			ID:     cfg.UserID,
			Email:  cfg.Email,
			Roles:  cfg.Roles,
			Scopes: cfg.Scopes,
		},
		Workspace: cfg.Workspace,
		ClientID:  cfg.ClientID,
	}
	return m.tokens.put(creds, m.now().Add(lifetime)), nil
}

// missingFrom returns the first requested entry the caller does not hold,
// or "" when requested is a subset of held.
func missingFrom(requested, held []string) string {
	for _, want := range requested {
		found := false
		for _, have := range held {
			if want == have {
				found = true
				break
			}
		}
		if !found {
			return want
		}
	}
	return ""
}

// ReconnectionToken mints a token that reproduces an existing session's
// identity and placement. It is handed to the peer in connection_info.
func (m *Manager) ReconnectionToken(user *UserInfo, workspace, clientID string) (string, error) {
	return m.GenerateToken(TokenConfig{
		UserID:    user.ID,
		Workspace: workspace,
		ClientID:  clientID,
		Email:     user.Email,
		Roles:     user.Roles,
		Scopes:    user.Scopes,
		ExpiresIn: int64(defaultTokenLifetime / time.Second),
	}, user, workspace)
}
