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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amun-ai/hypha-go/hyphaerrors"
)

func TestAuthenticateEmptyTokenIsAnonymous(t *testing.T) {
	m := NewManager("")
	creds, err := m.Authenticate("")
	require.NoError(t, err)
	require.NotNil(t, creds.User)
	assert.True(t, creds.User.IsAnonymous)
	assert.True(t, creds.User.HasRole(RoleAnonymous))
	assert.Contains(t, creds.User.ID, "anonymous-")

	// Every anonymous handshake gets a fresh identity.
	other, err := m.Authenticate("  ")
	require.NoError(t, err)
	assert.NotEqual(t, creds.User.ID, other.User.ID)
}

func TestAuthenticateGarbageWithoutSecret(t *testing.T) {
	m := NewManager("")
	_, err := m.Authenticate("not-a-token")
	require.Error(t, err)
	assert.True(t, hyphaerrors.IsInvalidToken(err))
}

func TestOpaqueTokenRoundTrip(t *testing.T) {
	m := NewManager("")
	alice := &UserInfo{ID: "alice"}

	token, err := m.GenerateToken(TokenConfig{Workspace: "lab"}, alice, "lab")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	creds, err := m.Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", creds.User.ID)
	assert.Equal(t, "lab", creds.Workspace)
}

func TestOpaqueTokenExpires(t *testing.T) {
	m := NewManager("")
	now := time.Now()
	m.now = func() time.Time { return now }

	token, err := m.GenerateToken(TokenConfig{ExpiresIn: 60}, &UserInfo{ID: "alice"}, "lab")
	require.NoError(t, err)

	m.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, err = m.Authenticate(token)
	require.Error(t, err)
	assert.True(t, hyphaerrors.IsInvalidToken(err))
}

func TestJWTRoundTrip(t *testing.T) {
	m := NewManager("test-secret")
	require.True(t, m.JWTEnabled())

	token, err := m.GenerateToken(TokenConfig{
		Workspace: "lab",
		ClientID:  "worker-1",
		Email:     "alice@example.org",
		Roles:     []string{"admin"},
		Scopes:    []string{ScopeRead},
	}, &UserInfo{ID: "alice", Roles: []string{RoleAdmin}}, "lab")
	require.NoError(t, err)

	creds, err := m.Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", creds.User.ID)
	assert.Equal(t, "alice@example.org", creds.User.Email)
	assert.True(t, creds.User.IsAdmin())
	assert.False(t, creds.User.IsAnonymous)
	assert.Equal(t, "lab", creds.Workspace)
	assert.Equal(t, "worker-1", creds.ClientID)
}

func TestJWTExpired(t *testing.T) {
	m := NewManager("test-secret")
	past := time.Now().Add(-2 * time.Hour)
	m.now = func() time.Time { return past }

	token, err := m.GenerateToken(TokenConfig{ExpiresIn: 60}, &UserInfo{ID: "alice"}, "lab")
	require.NoError(t, err)

	m.now = time.Now
	_, err = m.Authenticate(token)
	require.Error(t, err)
	assert.True(t, hyphaerrors.IsExpiredToken(err))
}

func TestJWTWrongSecret(t *testing.T) {
	minter := NewManager("secret-a")
	token, err := minter.GenerateToken(TokenConfig{}, &UserInfo{ID: "alice"}, "lab")
	require.NoError(t, err)

	verifier := NewManager("secret-b")
	_, err = verifier.Authenticate(token)
	require.Error(t, err)
	assert.True(t, hyphaerrors.IsInvalidToken(err))
}

func TestGenerateTokenScopeChecks(t *testing.T) {
	m := NewManager("test-secret")
	plain := &UserInfo{ID: "alice"}
	admin := &UserInfo{ID: "boss", Roles: []string{RoleAdmin}}

	_, err := m.GenerateToken(TokenConfig{UserID: "mallory"}, plain, "lab")
	require.Error(t, err)
	assert.True(t, hyphaerrors.IsInsufficientScope(err))

	_, err = m.GenerateToken(TokenConfig{Workspace: "other"}, plain, "lab")
	require.Error(t, err)
	assert.True(t, hyphaerrors.IsInsufficientScope(err))

	_, err = m.GenerateToken(TokenConfig{UserID: "mallory", Workspace: "other"}, admin, "lab")
	assert.NoError(t, err)

	// Self-scoped requests need no special role.
	_, err = m.GenerateToken(TokenConfig{UserID: "alice", Workspace: "lab"}, plain, "lab")
	assert.NoError(t, err)
}

func TestGenerateTokenCannotEscalateRolesOrScopes(t *testing.T) {
	m := NewManager("test-secret")
	plain := &UserInfo{ID: "alice", Scopes: []string{ScopeRead}}
	admin := &UserInfo{ID: "boss", Roles: []string{RoleAdmin}}

	_, err := m.GenerateToken(TokenConfig{Roles: []string{RoleAdmin}}, plain, "lab")
	require.Error(t, err)
	assert.True(t, hyphaerrors.IsInsufficientScope(err))

	_, err = m.GenerateToken(TokenConfig{Scopes: []string{"write"}}, plain, "lab")
	require.Error(t, err)
	assert.True(t, hyphaerrors.IsInsufficientScope(err))

	// Roles and scopes the caller already holds may be carried over.
	worker := &UserInfo{ID: "w", Roles: []string{"worker", "operator"}, Scopes: []string{ScopeRead}}
	_, err = m.GenerateToken(TokenConfig{Roles: []string{"worker"}, Scopes: []string{ScopeRead}}, worker, "lab")
	assert.NoError(t, err)

	// Admins may grant anything.
	token, err := m.GenerateToken(TokenConfig{UserID: "deploy", Roles: []string{RoleAdmin}}, admin, "lab")
	require.NoError(t, err)
	creds, err := m.Authenticate(token)
	require.NoError(t, err)
	assert.True(t, creds.User.IsAdmin())
}

func TestReconnectionTokenReproducesSession(t *testing.T) {
	m := NewManager("test-secret")
	user := &UserInfo{ID: "alice", Roles: []string{"admin"}}

	token, err := m.ReconnectionToken(user, "lab", "worker-1")
	require.NoError(t, err)

	creds, err := m.Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", creds.User.ID)
	assert.Equal(t, "lab", creds.Workspace)
	assert.Equal(t, "worker-1", creds.ClientID)
}

func TestUserInfoRoles(t *testing.T) {
	root := &UserInfo{ID: "r", Roles: []string{RoleRoot}}
	assert.True(t, root.IsAdmin())
	plain := &UserInfo{ID: "p", Scopes: []string{ScopeRead}}
	assert.False(t, plain.IsAdmin())
	assert.True(t, plain.HasScope(ScopeRead))
	assert.False(t, plain.HasScope("write"))
}
