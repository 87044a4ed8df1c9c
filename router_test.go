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

package hypha_test

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hypha "github.com/amun-ai/hypha-go"
	"github.com/amun-ai/hypha-go/auth"
	"github.com/amun-ai/hypha-go/hyphaerrors"
	"github.com/amun-ai/hypha-go/hyphatest"
	"github.com/amun-ai/hypha-go/service"
	"github.com/amun-ai/hypha-go/transport"
)

func newRouter(t *testing.T) *hypha.Router {
	t.Helper()
	r, err := hypha.New(hypha.Config{
		JWTSecret:      "test-secret",
		MethodTimeoutS: 5,
	})
	require.NoError(t, err)
	require.NoError(t, r.Start())
	t.Cleanup(func() { _ = r.Stop() })
	return r
}

func mintToken(t *testing.T, r *hypha.Router, userID, workspace string, roles ...string) string {
	t.Helper()
	token, err := r.Auth().GenerateToken(
		auth.TokenConfig{Workspace: workspace, Roles: roles},
		&auth.UserInfo{ID: userID, Roles: roles},
		workspace,
	)
	require.NoError(t, err)
	return token
}

func connect(t *testing.T, r *hypha.Router, opts hyphatest.ConnectOptions) *hyphatest.Client {
	t.Helper()
	c, err := hyphatest.Connect(r, opts)
	require.NoError(t, err)
	t.Cleanup(c.Disconnect)
	return c
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestHandshakeAnonymous(t *testing.T) {
	r := newRouter(t)
	c := connect(t, r, hyphatest.ConnectOptions{})

	info := c.Info()
	assert.Equal(t, "connection_info", info.Type)
	assert.Equal(t, hypha.Version, info.HyphaVersion)
	assert.Equal(t, hypha.ManagerClientID, info.ManagerID)
	assert.True(t, strings.HasPrefix(info.Workspace, "anonymous-"),
		"anonymous peers land in a workspace named after their identity")
	assert.NotEmpty(t, info.ClientID)
	require.NotNil(t, info.User)
	assert.True(t, info.User.IsAnonymous)
	assert.NotEmpty(t, info.ReconnectionToken)
}

func TestHandshakeTokenPlacement(t *testing.T) {
	r := newRouter(t)
	token := mintToken(t, r, "alice", "lab")
	c := connect(t, r, hyphatest.ConnectOptions{Token: token, Workspace: "lab", ClientID: "alice-1"})

	info := c.Info()
	assert.Equal(t, "lab", info.Workspace)
	assert.Equal(t, "alice-1", info.ClientID)
	assert.Equal(t, "alice", info.User.ID)
	assert.False(t, info.User.IsAnonymous)

	w, ok := r.Workspace("lab")
	require.True(t, ok)
	assert.Equal(t, "alice", w.Owner.ID)
}

func TestHandshakeInvalidToken(t *testing.T) {
	r := newRouter(t)
	_, err := hyphatest.Connect(r, hyphatest.ConnectOptions{Token: "garbage"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), hyphaerrors.CodeInvalidToken.String())
}

func TestHandshakeForeignWorkspaceForbidden(t *testing.T) {
	r := newRouter(t)
	owner := mintToken(t, r, "alice", "lab")
	connect(t, r, hyphatest.ConnectOptions{Token: owner, Workspace: "lab"})

	intruder := mintToken(t, r, "mallory", "mallory-home")
	_, err := hyphatest.Connect(r, hyphatest.ConnectOptions{Token: intruder, Workspace: "lab"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), hyphaerrors.CodeWorkspaceForbidden.String())
}

func TestClientIDCollision(t *testing.T) {
	r := newRouter(t)
	token := mintToken(t, r, "alice", "lab")
	connect(t, r, hyphatest.ConnectOptions{Token: token, Workspace: "lab", ClientID: "dup"})

	_, err := hyphatest.Connect(r, hyphatest.ConnectOptions{Token: token, Workspace: "lab", ClientID: "dup"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), hyphaerrors.CodeClientIDInUse.String())
}

func TestManagerEchoAndAlive(t *testing.T) {
	r := newRouter(t)
	c := connect(t, r, hyphatest.ConnectOptions{})
	ctx := testContext(t)

	result, err := c.CallManager(ctx, "echo", "hello fabric")
	require.NoError(t, err)
	assert.Equal(t, "hello fabric", result)

	result, err = c.CallManager(ctx, "alive")
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}

func TestManagerUnknownMember(t *testing.T) {
	r := newRouter(t)
	c := connect(t, r, hyphatest.ConnectOptions{})
	_, err := c.CallManager(testContext(t), "does_not_exist")
	require.Error(t, err)
	assert.True(t, hyphaerrors.IsFunctionNotFound(err))
}

func calcService() *hyphatest.Service {
	return &hyphatest.Service{
		ID:   "calc",
		Name: "Calculator",
		Type: service.TypeFunctions,
		Members: map[string]*service.Method{
			"add": {
				Name:   "add",
				Params: []string{"a", "b"},
				Handler: func(_ context.Context, _ *service.CallContext, args []interface{}) (interface{}, error) {
					a, _ := args[0].(float64)
					b, _ := args[1].(float64)
					return a + b, nil
				},
			},
		},
	}
}

func TestRegisterAndCallAcrossClients(t *testing.T) {
	r := newRouter(t)
	ctx := testContext(t)

	alice := connect(t, r, hyphatest.ConnectOptions{
		Token: mintToken(t, r, "alice", "lab"), Workspace: "lab", ClientID: "alice",
	})
	registered, err := alice.RegisterService(ctx, calcService())
	require.NoError(t, err)
	desc, ok := registered.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "lab/alice:calc", desc["id"])

	bob := connect(t, r, hyphatest.ConnectOptions{
		Token: mintToken(t, r, "bob", "lab"), Workspace: "lab", ClientID: "bob",
	})
	result, err := bob.Call(ctx, "alice:calc", "add", 2, 3)
	require.NoError(t, err)
	assert.Equal(t, float64(5), result)
}

func TestCallUnknownRecipient(t *testing.T) {
	r := newRouter(t)
	c := connect(t, r, hyphatest.ConnectOptions{})
	_, err := c.Call(testContext(t), "ghost:calc", "add", 1, 2)
	require.Error(t, err)
	assert.True(t, hyphaerrors.IsRecipientUnknown(err))
}

func TestServiceErrorPropagates(t *testing.T) {
	r := newRouter(t)
	ctx := testContext(t)
	alice := connect(t, r, hyphatest.ConnectOptions{
		Token: mintToken(t, r, "alice", "lab"), Workspace: "lab", ClientID: "alice",
	})
	_, err := alice.RegisterService(ctx, &hyphatest.Service{
		ID: "flaky",
		Members: map[string]*service.Method{
			"fail": {
				Name: "fail",
				Handler: func(context.Context, *service.CallContext, []interface{}) (interface{}, error) {
					return nil, hyphaerrors.ServiceErrorf("deliberate failure")
				},
			},
		},
	})
	require.NoError(t, err)

	bob := connect(t, r, hyphatest.ConnectOptions{
		Token: mintToken(t, r, "bob", "lab"), Workspace: "lab", ClientID: "bob",
	})
	_, err = bob.Call(ctx, "alice:flaky", "fail")
	require.Error(t, err)
	assert.True(t, hyphaerrors.IsServiceError(err))
	assert.Contains(t, err.Error(), "deliberate failure")
}

func TestStreamingCall(t *testing.T) {
	r := newRouter(t)
	ctx := testContext(t)
	alice := connect(t, r, hyphatest.ConnectOptions{
		Token: mintToken(t, r, "alice", "lab"), Workspace: "lab", ClientID: "alice",
	})
	_, err := alice.RegisterService(ctx, &hyphatest.Service{
		ID: "counter",
		Members: map[string]*service.Method{
			"count": {
				Name:   "count",
				Params: []string{"n"},
				Handler: func(_ context.Context, _ *service.CallContext, args []interface{}) (interface{}, error) {
					n := int(args[0].(float64))
					stream := service.NewStream(n)
					go func() {
						defer stream.Close()
						for i := 1; i <= n; i++ {
							if stream.Send(i) != nil {
								return
							}
						}
					}()
					return stream, nil
				},
			},
		},
	})
	require.NoError(t, err)

	bob := connect(t, r, hyphatest.ConnectOptions{
		Token: mintToken(t, r, "bob", "lab"), Workspace: "lab", ClientID: "bob",
	})
	result, err := bob.Call(ctx, "alice:counter", "count", 3)
	require.NoError(t, err)
	stream, ok := result.(*service.Stream)
	require.True(t, ok, "streaming results arrive as *service.Stream")
	defer stream.Stop()

	var got []interface{}
	for {
		v, err := stream.Next(ctx)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, v)
	}
	assert.Equal(t, []interface{}{float64(1), float64(2), float64(3)}, got)
}

func TestCrossWorkspacePublicService(t *testing.T) {
	r := newRouter(t)
	ctx := testContext(t)
	alice := connect(t, r, hyphatest.ConnectOptions{
		Token: mintToken(t, r, "alice", "lab"), Workspace: "lab", ClientID: "alice",
	})
	svc := calcService()
	svc.Visibility = service.VisibilityPublic
	_, err := alice.RegisterService(ctx, svc)
	require.NoError(t, err)

	outsider := &auth.UserInfo{ID: "carol"}
	handle, err := r.GetService(outsider, "lab", "calc", "")
	require.NoError(t, err)
	result, err := handle.Call(ctx, "add", 20, 22)
	require.NoError(t, err)
	assert.Equal(t, float64(42), result)
}

func TestCrossWorkspaceProtectedServiceHidden(t *testing.T) {
	r := newRouter(t)
	ctx := testContext(t)
	alice := connect(t, r, hyphatest.ConnectOptions{
		Token: mintToken(t, r, "alice", "lab"), Workspace: "lab", ClientID: "alice",
	})
	_, err := alice.RegisterService(ctx, calcService()) // default visibility is protected
	require.NoError(t, err)

	outsider := &auth.UserInfo{ID: "carol"}
	_, err = r.GetService(outsider, "lab", "calc", "")
	require.Error(t, err)
	assert.True(t, hyphaerrors.IsServiceNotFound(err))

	// A member of the workspace sees it.
	_, err = r.GetService(&auth.UserInfo{ID: "alice"}, "lab", "calc", "")
	assert.NoError(t, err)
}

func TestWildcardWorkspaceLookupRejected(t *testing.T) {
	r := newRouter(t)
	_, err := r.GetService(&auth.UserInfo{ID: "x"}, "*", "calc", "")
	require.Error(t, err)
	assert.True(t, hyphaerrors.IsInvalidArgument(err))

	_, err = r.GetService(&auth.UserInfo{ID: "x"}, "lab", "*/calc", "")
	require.Error(t, err)
	assert.True(t, hyphaerrors.IsInvalidArgument(err))
}

func TestAnonymousCannotRegisterInSharedWorkspace(t *testing.T) {
	r := newRouter(t)
	c := connect(t, r, hyphatest.ConnectOptions{Workspace: "default"})
	_, err := c.RegisterService(testContext(t), calcService())
	require.Error(t, err)
	assert.True(t, hyphaerrors.IsWorkspaceForbidden(err))
}

func TestServiceIDCollision(t *testing.T) {
	r := newRouter(t)
	ctx := testContext(t)
	alice := connect(t, r, hyphatest.ConnectOptions{
		Token: mintToken(t, r, "alice", "lab"), Workspace: "lab", ClientID: "alice",
	})
	_, err := alice.RegisterService(ctx, calcService())
	require.NoError(t, err)

	_, err = alice.RegisterService(ctx, calcService())
	require.Error(t, err)
	assert.True(t, hyphaerrors.IsServiceIDInUse(err))

	svc := calcService()
	svc.Overwrite = true
	_, err = alice.RegisterService(ctx, svc)
	assert.NoError(t, err)
}

func TestUnregisterService(t *testing.T) {
	r := newRouter(t)
	ctx := testContext(t)
	alice := connect(t, r, hyphatest.ConnectOptions{
		Token: mintToken(t, r, "alice", "lab"), Workspace: "lab", ClientID: "alice",
	})
	_, err := alice.RegisterService(ctx, calcService())
	require.NoError(t, err)

	_, err = alice.CallManager(ctx, "unregister_service", "calc")
	require.NoError(t, err)

	_, err = r.GetService(&auth.UserInfo{ID: "alice"}, "lab", "calc", "")
	require.Error(t, err)
	assert.True(t, hyphaerrors.IsServiceNotFound(err))
}

func TestListServices(t *testing.T) {
	r := newRouter(t)
	ctx := testContext(t)
	alice := connect(t, r, hyphatest.ConnectOptions{
		Token: mintToken(t, r, "alice", "lab"), Workspace: "lab", ClientID: "alice",
	})
	_, err := alice.RegisterService(ctx, calcService())
	require.NoError(t, err)

	result, err := alice.CallManager(ctx, "list_services", nil)
	require.NoError(t, err)
	listed, ok := result.([]interface{})
	require.True(t, ok)
	// The built-in workspace service plus calc.
	require.Len(t, listed, 2)

	ids := make([]string, 0, len(listed))
	for _, item := range listed {
		desc := item.(map[string]interface{})
		ids = append(ids, desc["id"].(string))
	}
	assert.Contains(t, ids, "lab/alice:calc")
	assert.Contains(t, ids, "lab/workspace-manager:default")
}

func TestGenerateTokenViaManager(t *testing.T) {
	r := newRouter(t)
	ctx := testContext(t)
	alice := connect(t, r, hyphatest.ConnectOptions{
		Token: mintToken(t, r, "alice", "lab"), Workspace: "lab", ClientID: "alice",
	})

	result, err := alice.CallManager(ctx, "generate_token", map[string]interface{}{
		"expires_in": 120,
	})
	require.NoError(t, err)
	token, ok := result.(string)
	require.True(t, ok)

	// The minted token admits a new session into the same workspace.
	c2 := connect(t, r, hyphatest.ConnectOptions{Token: token})
	assert.Equal(t, "lab", c2.Info().Workspace)
	assert.Equal(t, "alice", c2.Info().User.ID)

	// Minting for another workspace needs an admin role.
	_, err = alice.CallManager(ctx, "generate_token", map[string]interface{}{
		"workspace": "other",
	})
	require.Error(t, err)
	assert.True(t, hyphaerrors.IsInsufficientScope(err))
}

func TestGenerateTokenCannotGrantForeignRoles(t *testing.T) {
	r := newRouter(t)
	c := connect(t, r, hyphatest.ConnectOptions{})

	_, err := c.CallManager(testContext(t), "generate_token", map[string]interface{}{
		"roles": []string{"admin"},
	})
	require.Error(t, err)
	assert.True(t, hyphaerrors.IsInsufficientScope(err))
}

func TestForeignWorkspaceManagerRequiresMembership(t *testing.T) {
	r := newRouter(t)
	ctx := testContext(t)
	connect(t, r, hyphatest.ConnectOptions{
		Token: mintToken(t, r, "alice", "lab"), Workspace: "lab", ClientID: "alice",
	})

	mallory := connect(t, r, hyphatest.ConnectOptions{
		Token: mintToken(t, r, "mallory", "mallory-home"), Workspace: "mallory-home",
	})
	_, err := mallory.Call(ctx, "lab/workspace-manager:default", "generate_token", map[string]interface{}{})
	require.Error(t, err)
	assert.True(t, hyphaerrors.IsWorkspaceForbidden(err))

	// The workspace owner reaches its manager even from another workspace.
	spare := connect(t, r, hyphatest.ConnectOptions{
		Token: mintToken(t, r, "alice", "alice-spare"), Workspace: "alice-spare",
	})
	_, err = spare.Call(ctx, "lab/workspace-manager:default", "echo", "hi")
	assert.NoError(t, err)
}

func TestGetServiceWaitsWithTimeout(t *testing.T) {
	r := newRouter(t)
	ctx := testContext(t)
	alice := connect(t, r, hyphatest.ConnectOptions{
		Token: mintToken(t, r, "alice", "lab"), Workspace: "lab", ClientID: "alice",
	})
	bob := connect(t, r, hyphatest.ConnectOptions{
		Token: mintToken(t, r, "bob", "lab"), Workspace: "lab", ClientID: "bob",
	})

	// Without a timeout the lookup fails immediately.
	_, err := bob.CallManager(ctx, "get_service", "calc")
	require.Error(t, err)
	assert.True(t, hyphaerrors.IsServiceNotFound(err))

	done := make(chan struct{})
	go func() {
		defer close(done)
		time.Sleep(300 * time.Millisecond)
		_, _ = alice.RegisterService(context.Background(), calcService())
	}()

	result, err := bob.CallManager(ctx, "get_service", "calc", map[string]interface{}{"timeout": 2})
	require.NoError(t, err)
	<-done
	desc, ok := result.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "lab/alice:calc", desc["id"])

	// A service that never appears runs out the wait.
	_, err = bob.CallManager(ctx, "get_service", "ghost", map[string]interface{}{"timeout": 0.3})
	require.Error(t, err)
	assert.True(t, hyphaerrors.IsRequestTimeout(err))
}

func TestWorkspaceEvents(t *testing.T) {
	r := newRouter(t)
	ctx := testContext(t)
	token := mintToken(t, r, "alice", "lab")
	alice := connect(t, r, hyphatest.ConnectOptions{Token: token, Workspace: "lab", ClientID: "alice"})
	bob := connect(t, r, hyphatest.ConnectOptions{
		Token: mintToken(t, r, "bob", "lab"), Workspace: "lab", ClientID: "bob",
	})

	got := make(chan interface{}, 1)
	bob.OnEvent("alert", func(_ string, data interface{}) { got <- data })
	_, err := bob.CallManager(ctx, "on", "alert")
	require.NoError(t, err)

	result, err := alice.CallManager(ctx, "emit", "alert", map[string]interface{}{"level": "red"})
	require.NoError(t, err)
	delivered := result.(map[string]interface{})["delivered"]
	assert.Equal(t, float64(1), delivered)

	select {
	case data := <-got:
		assert.Equal(t, map[string]interface{}{"level": "red"}, data)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}

	// After off, emits no longer reach bob.
	_, err = bob.CallManager(ctx, "off", "alert")
	require.NoError(t, err)
	result, err = alice.CallManager(ctx, "emit", "alert", "again")
	require.NoError(t, err)
	assert.Equal(t, float64(0), result.(map[string]interface{})["delivered"])
}

func TestAnonymousWorkspaceGarbageCollected(t *testing.T) {
	r := newRouter(t)
	c, err := hyphatest.Connect(r, hyphatest.ConnectOptions{})
	require.NoError(t, err)
	wsID := c.Info().Workspace
	_, ok := r.Workspace(wsID)
	require.True(t, ok)

	c.Disconnect()
	require.Eventually(t, func() bool {
		_, ok := r.Workspace(wsID)
		return !ok
	}, 2*time.Second, 10*time.Millisecond, "anonymous workspace should be destroyed with its last peer")
}

func TestNamedWorkspacePersists(t *testing.T) {
	r := newRouter(t)
	token := mintToken(t, r, "alice", "lab")
	c, err := hyphatest.Connect(r, hyphatest.ConnectOptions{Token: token, Workspace: "lab"})
	require.NoError(t, err)
	c.Disconnect()

	require.Never(t, func() bool {
		_, ok := r.Workspace("lab")
		return !ok
	}, 200*time.Millisecond, 20*time.Millisecond, "authenticated workspaces persist")
}

// scriptedTransport drives ServeTransport directly so handshake failure
// modes that a live socket cannot produce on demand are reachable.
type scriptedTransport struct {
	failSendText bool
	replies      chan []byte

	mu      sync.Mutex
	receive transport.ReceiveHandler
	closed  bool
}

var _ transport.Transport = (*scriptedTransport)(nil)

func newScriptedTransport(failSendText bool) *scriptedTransport {
	return &scriptedTransport{failSendText: failSendText, replies: make(chan []byte, 4)}
}

func (s *scriptedTransport) Send([]byte) error { return nil }

func (s *scriptedTransport) SendText(data []byte) error {
	if s.failSendText {
		return hyphaerrors.TransportClosedErrorf("wire went away mid-handshake")
	}
	s.replies <- data
	return nil
}

func (s *scriptedTransport) SetReceiveHandler(h transport.ReceiveHandler) {
	s.mu.Lock()
	s.receive = h
	s.mu.Unlock()
}

func (s *scriptedTransport) SetCloseHandler(transport.CloseHandler) {}

func (s *scriptedTransport) Close(int, string) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *scriptedTransport) Open() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

func (s *scriptedTransport) deliverText(t *testing.T, v interface{}) {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	s.mu.Lock()
	h := s.receive
	s.mu.Unlock()
	require.NotNil(t, h)
	h(body, false)
}

func TestHandshakeSendFailureLeavesNoPeer(t *testing.T) {
	r := newRouter(t)
	token := mintToken(t, r, "alice", "lab")
	hello := map[string]interface{}{"token": token, "workspace": "lab", "client_id": "alice-1"}

	broken := newScriptedTransport(true)
	r.ServeTransport(broken)
	broken.deliverText(t, hello)

	// The failed handshake registered nothing.
	summary, err := r.Summary(&auth.UserInfo{ID: "alice"}, "lab")
	require.NoError(t, err)
	assert.Equal(t, 0, summary.ClientCount)

	// And the client id is free for the next attempt.
	retry := newScriptedTransport(false)
	r.ServeTransport(retry)
	retry.deliverText(t, hello)

	select {
	case reply := <-retry.replies:
		var info hypha.ConnectionInfo
		require.NoError(t, json.Unmarshal(reply, &info))
		assert.Equal(t, "connection_info", info.Type)
		assert.Equal(t, "alice-1", info.ClientID)
	case <-time.After(2 * time.Second):
		t.Fatal("handshake reply never arrived")
	}
}

func TestDisconnectFailsPendingCalls(t *testing.T) {
	r := newRouter(t)
	ctx := testContext(t)
	alice := connect(t, r, hyphatest.ConnectOptions{
		Token: mintToken(t, r, "alice", "lab"), Workspace: "lab", ClientID: "alice",
	})
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	_, err := alice.RegisterService(ctx, &hyphatest.Service{
		ID: "slow",
		Members: map[string]*service.Method{
			"wait": {
				Name: "wait",
				Handler: func(ctx context.Context, _ *service.CallContext, _ []interface{}) (interface{}, error) {
					select {
					case <-block:
					case <-ctx.Done():
					}
					return nil, nil
				},
			},
		},
	})
	require.NoError(t, err)

	handle, err := r.GetService(&auth.UserInfo{ID: "alice"}, "lab", "slow", "")
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := handle.Call(ctx, "wait")
		errCh <- err
	}()
	time.Sleep(50 * time.Millisecond) // let the request frame reach alice
	alice.Disconnect()

	select {
	case err := <-errCh:
		require.Error(t, err)
		assert.True(t, hyphaerrors.IsTransportClosed(err))
	case <-time.After(3 * time.Second):
		t.Fatal("pending call not failed on disconnect")
	}
}

func TestSummary(t *testing.T) {
	r := newRouter(t)
	connect(t, r, hyphatest.ConnectOptions{
		Token: mintToken(t, r, "alice", "lab"), Workspace: "lab", ClientID: "alice",
	})

	summary, err := r.Summary(&auth.UserInfo{ID: "alice"}, "lab")
	require.NoError(t, err)
	assert.Equal(t, "lab", summary.ID)
	assert.True(t, summary.Persistent)
	assert.Equal(t, 1, summary.ClientCount)
	assert.GreaterOrEqual(t, summary.ServiceCount, 1)

	_, err = r.Summary(&auth.UserInfo{ID: "stranger"}, "lab")
	require.Error(t, err)
	assert.True(t, hyphaerrors.IsWorkspaceForbidden(err))
}
