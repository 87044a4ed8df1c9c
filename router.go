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
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/amun-ai/hypha-go/auth"
	"github.com/amun-ai/hypha-go/cluster"
	"github.com/amun-ai/hypha-go/frame"
	"github.com/amun-ai/hypha-go/hyphaerrors"
	"github.com/amun-ai/hypha-go/internal/lifecycle"
	"github.com/amun-ai/hypha-go/service"
	"github.com/amun-ai/hypha-go/transport"
)

// WildcardWorkspace is the synthetic workspace of trusted internal peers
// that may address any workspace directly.
const WildcardWorkspace = "*"

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the router's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Router) { r.logger = logger }
}

// WithClusterStore provides the external coordination store, enabling the
// cluster coordinator when the config asks for it.
func WithClusterStore(store cluster.Store) Option {
	return func(r *Router) { r.store = store }
}

// Router owns all workspace, peer, and service state of one instance and
// routes frames between peers. Tests construct fresh Routers; there is no
// process-global state.
type Router struct {
	config Config
	logger *zap.Logger
	auth   *auth.Manager
	store  cluster.Store
	coord  *cluster.Coordinator
	once   lifecycle.Once

	mu         sync.RWMutex
	workspaces map[string]*Workspace
	peers      map[string]*Peer // by "workspace/client"

	pendingMu sync.Mutex
	pending   map[string]*pendingCall
}

// New builds a Router from the config.
func New(cfg Config, opts ...Option) (*Router, error) {
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	r := &Router{
		config:     cfg,
		logger:     zap.NewNop(),
		auth:       auth.NewManager(cfg.JWTSecret),
		workspaces: make(map[string]*Workspace),
		peers:      make(map[string]*Peer),
		pending:    make(map[string]*pendingCall),
	}
	for _, opt := range opts {
		opt(r)
	}
	if cfg.Clustered && r.store != nil {
		r.coord = cluster.NewCoordinator(cluster.CoordinatorConfig{
			ServerID:          cfg.ServerID,
			URL:               cfg.URL,
			Port:              cfg.Port,
			HeartbeatInterval: time.Duration(cfg.ClusterOptions.HeartbeatIntervalS) * time.Second,
			CleanupInterval:   time.Duration(cfg.ClusterOptions.CleanupIntervalS) * time.Second,
			ServerTTL:         time.Duration(cfg.ClusterOptions.ServerTTLS) * time.Second,
		}, r.store, r.deliverLocal, r.logger)
	}
	return r, nil
}

// ServerID returns this router instance's stable identifier.
func (r *Router) ServerID() string { return r.config.ServerID }

// Auth exposes the authentication manager; the HTTP proxy authenticates
// bearer headers through it.
func (r *Router) Auth() *auth.Manager { return r.auth }

// Start brings the router up: pre-creates the default and public workspaces
// and starts the cluster coordinator when configured.
func (r *Router) Start() error {
	return r.once.Start(func() error {
		root := &auth.UserInfo{ID: "root", Roles: []string{auth.RoleRoot}}
		r.getOrCreateWorkspace(DefaultWorkspace, root, true)
		r.getOrCreateWorkspace(PublicWorkspace, root, true)
		if r.coord != nil {
			if err := r.coord.Start(); err != nil {
				// Single-node operation continues without the cluster.
				r.logger.Warn("cluster coordinator disabled", zap.Error(err))
			}
		}
		r.logger.Info("workspace router started", zap.String("server_id", r.config.ServerID))
		return nil
	})
}

// Stop shuts the router down: closes all peer transports and stops the
// coordinator.
func (r *Router) Stop() error {
	return r.once.Stop(func() error {
		var err error
		r.mu.Lock()
		peers := make([]*Peer, 0, len(r.peers))
		for _, p := range r.peers {
			peers = append(peers, p)
		}
		r.mu.Unlock()
		for _, p := range peers {
			if p.Transport != nil {
				_ = p.Transport.Close(transport.CodeGoingAway, "server shutting down")
			}
		}
		if r.coord != nil {
			err = multierr.Append(err, r.coord.Stop())
		}
		return err
	})
}

// ---------------------------------------------------------------------------
// Workspace registry

func (r *Router) getOrCreateWorkspace(id string, owner *auth.UserInfo, persistent bool) *Workspace {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.workspaces[id]; ok {
		return w
	}
	w := newWorkspace(id, owner, persistent)
	r.workspaces[id] = w
	r.installWorkspaceService(w)
	return w
}

// Workspace returns the workspace by id.
func (r *Router) Workspace(id string) (*Workspace, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workspaces[id]
	return w, ok
}

// installWorkspaceService registers the synthetic workspace-manager peer
// and the built-in workspace service. Caller holds r.mu.
func (r *Router) installWorkspaceService(w *Workspace) {
	manager := newPeer(w.ID, ManagerClientID, &auth.UserInfo{
		ID:    ManagerClientID,
		Roles: []string{auth.RoleAdmin},
	}, nil)
	manager.manager = true
	manager.Transport = newCallbackTransport(func(data []byte, binary bool) {
		if binary {
			go r.handleManagerFrame(w, data)
		}
	})
	w.peers[manager.ClientID] = manager
	r.peers[manager.FullID()] = manager

	desc := r.buildWorkspaceService(w)
	key := manager.ClientID + ":" + desc.ID
	w.services[key] = &registeredService{desc: desc, owner: manager}
	manager.addService(desc.ID)
}

// resolveWorkspace applies the placement rules for an authenticated peer,
// creating the workspace when the rules allow it.
func (r *Router) resolveWorkspace(creds *auth.Credentials, requested string) (*Workspace, error) {
	user := creds.User
	granted := creds.Workspace
	if requested == "" {
		requested = granted
	}

	switch {
	case requested != "":
		if err := ValidateWorkspaceID(requested); err != nil {
			return nil, err
		}
		// A token minted for a workspace is itself the grant; only
		// placements beyond the token need a membership check.
		if requested != granted && !r.allowedIn(user, requested) {
			return nil, hyphaerrors.WorkspaceForbiddenErrorf("user %q may not join workspace %q", user.ID, requested)
		}
		return r.getOrCreateWorkspace(requested, user, !user.IsAnonymous), nil
	case user.IsAnonymous:
		// Anonymous users land in a workspace named after their own id.
		return r.getOrCreateWorkspace(user.ID, user, false), nil
	case user.IsAdmin():
		return r.getOrCreateWorkspace(DefaultWorkspace, user, true), nil
	default:
		return nil, hyphaerrors.WorkspaceRequiredErrorf("token for user %q names no workspace", user.ID)
	}
}

func (r *Router) allowedIn(user *auth.UserInfo, wsID string) bool {
	if user.IsAdmin() {
		return true
	}
	if wsID == user.ID || wsID == DefaultWorkspace || wsID == PublicWorkspace {
		return true
	}
	if w, ok := r.Workspace(wsID); ok {
		return w.MemberOf(user)
	}
	// Creating a brand-new workspace is open to authenticated users only.
	return !user.IsAnonymous
}

// ---------------------------------------------------------------------------
// Handshake

type handshakeRequest struct {
	Token     string `json:"token,omitempty"`
	Workspace string `json:"workspace,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
}

// ConnectionInfo is the handshake reply.
type ConnectionInfo struct {
	Type              string         `json:"type"`
	HyphaVersion      string         `json:"hypha_version"`
	ManagerID         string         `json:"manager_id"`
	Workspace         string         `json:"workspace"`
	ClientID          string         `json:"client_id"`
	User              *auth.UserInfo `json:"user"`
	ReconnectionToken string         `json:"reconnection_token,omitempty"`
}

type session struct {
	mu   sync.Mutex
	peer *Peer
}

// ServeTransport adopts a freshly connected transport: it awaits the single
// text handshake frame, authenticates it, places the peer in a workspace,
// and then routes all further binary frames.
func (r *Router) ServeTransport(t transport.Transport) {
	s := &session{}
	t.SetReceiveHandler(func(data []byte, binary bool) {
		s.mu.Lock()
		p := s.peer
		s.mu.Unlock()
		if p != nil {
			if !binary {
				r.logger.Warn("dropping non-routable text frame", zap.String("peer", p.FullID()))
				return
			}
			r.routeFrame(p, data)
			return
		}
		if binary {
			r.logger.Warn("binary frame before handshake; closing transport")
			_ = t.Close(transport.CodePolicyViolation, hyphaerrors.CodeMalformedFrame.String())
			return
		}
		peer, err := r.handshake(t, data)
		if err != nil {
			st := hyphaerrors.FromError(err)
			r.logger.Warn("handshake rejected", zap.String("reason", st.Code().String()), zap.Error(err))
			_ = t.Close(transport.CodePolicyViolation, st.Code().String())
			return
		}
		s.mu.Lock()
		s.peer = peer
		s.mu.Unlock()
	})
	t.SetCloseHandler(func(err error) {
		s.mu.Lock()
		p := s.peer
		s.peer = nil
		s.mu.Unlock()
		if p != nil {
			if err != nil {
				r.logger.Debug("peer transport closed", zap.String("peer", p.FullID()), zap.Error(err))
			}
			r.disconnectPeer(p)
		}
	})
}

func (r *Router) handshake(t transport.Transport, data []byte) (*Peer, error) {
	var req handshakeRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, hyphaerrors.MalformedFrameErrorf("handshake is not valid JSON: %v", err)
	}
	creds, err := r.auth.Authenticate(req.Token)
	if err != nil {
		return nil, err
	}
	w, err := r.resolveWorkspace(creds, req.Workspace)
	if err != nil {
		return nil, err
	}

	clientID := req.ClientID
	if clientID == "" {
		clientID = creds.ClientID
	}
	if clientID == "" {
		clientID = "client-" + uuid.NewString()[:8]
	}
	if strings.ContainsAny(clientID, "/:*") {
		return nil, hyphaerrors.InvalidArgumentErrorf("client id %q must not contain '/', ':' or '*'", clientID)
	}

	peer := newPeer(w.ID, clientID, creds.User, t)
	if err := w.addPeer(peer); err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.peers[peer.FullID()] = peer
	r.mu.Unlock()

	if r.coord != nil {
		r.coord.RegisterClient(w.ID, clientID)
	}

	reconnect, err := r.auth.ReconnectionToken(creds.User, w.ID, clientID)
	if err != nil {
		r.logger.Warn("minting reconnection token", zap.Error(err))
		reconnect = ""
	}
	info := ConnectionInfo{
		Type:              "connection_info",
		HyphaVersion:      Version,
		ManagerID:         ManagerClientID,
		Workspace:         w.ID,
		ClientID:          clientID,
		User:              creds.User,
		ReconnectionToken: reconnect,
	}
	body, err := json.Marshal(info)
	if err != nil {
		r.rollbackHandshake(w, peer)
		return nil, hyphaerrors.InternalErrorf("encoding connection_info: %v", err)
	}
	if err := t.SendText(body); err != nil {
		// The close handler never fires for a peer the session does not
		// know yet, so the registration is undone here.
		r.rollbackHandshake(w, peer)
		return nil, err
	}

	r.logger.Info("peer connected",
		zap.String("peer", peer.FullID()),
		zap.String("user", creds.User.ID))
	w.events.emit("client_connected", map[string]interface{}{"id": peer.FullID(), "user": creds.User})
	return peer, nil
}

// rollbackHandshake removes a peer that was registered but whose handshake
// never completed, keeping the registry in step with open transports.
func (r *Router) rollbackHandshake(w *Workspace, p *Peer) {
	r.mu.Lock()
	if r.peers[p.FullID()] == p {
		delete(r.peers, p.FullID())
	}
	r.mu.Unlock()
	if r.coord != nil {
		r.coord.UnregisterClient(p.Workspace, p.ClientID)
	}
	_, empty := w.removePeer(p)
	if empty && !w.persistent && !w.Public() {
		r.destroyWorkspace(w)
	}
}

func (r *Router) disconnectPeer(p *Peer) {
	r.mu.Lock()
	if r.peers[p.FullID()] != p {
		r.mu.Unlock()
		return
	}
	delete(r.peers, p.FullID())
	w := r.workspaces[p.Workspace]
	r.mu.Unlock()

	if r.coord != nil {
		r.coord.UnregisterClient(p.Workspace, p.ClientID)
	}
	r.failPendingFor(p.FullID())
	if w == nil {
		return
	}
	removed, empty := w.removePeer(p)
	for _, desc := range removed {
		w.events.emit("service_unregistered", map[string]interface{}{"id": desc.ID, "owner": p.FullID()})
	}
	w.events.emit("client_disconnected", map[string]interface{}{"id": p.FullID()})
	r.logger.Info("peer disconnected", zap.String("peer", p.FullID()))

	if empty && !w.persistent && !w.Public() {
		r.destroyWorkspace(w)
	}
}

func (r *Router) destroyWorkspace(w *Workspace) {
	r.mu.Lock()
	if current, ok := r.workspaces[w.ID]; !ok || current != w {
		r.mu.Unlock()
		return
	}
	delete(r.workspaces, w.ID)
	for cid := range w.peers {
		delete(r.peers, w.ID+"/"+cid)
	}
	r.mu.Unlock()
	r.logger.Info("workspace destroyed", zap.String("workspace", w.ID))
}

// ---------------------------------------------------------------------------
// Routing

func (r *Router) getPeer(fullID string) (*Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[fullID]
	return p, ok
}

// routeFrame implements the per-frame pipeline: decode the header,
// normalize the addressing fields, stamp the recipient workspace and the
// sender's verified identity, re-encode, and deliver.
func (r *Router) routeFrame(sender *Peer, data []byte) {
	f, err := frame.Decode(data)
	if err != nil {
		r.logger.Warn("dropping malformed frame",
			zap.String("peer", sender.FullID()), zap.Error(err))
		return
	}

	// The sender may shorten its own address but never forge another one.
	if from := f.From(); from != "" && from != sender.ClientID && from != sender.FullID() {
		r.logger.Warn("dropping frame with forged sender",
			zap.String("peer", sender.FullID()), zap.String("from", from))
		r.replyError(sender, f, hyphaerrors.WorkspaceForbiddenErrorf("frame sender %q does not match peer %q", from, sender.FullID()))
		return
	}
	f.SetFrom(sender.FullID())

	target := service.ParseID(f.To())
	if target.Client == "" {
		// Frames address clients; without a colon the last segment is the
		// client, not a service.
		target.Client = target.Service
		target.Service = ""
	}
	if target.Workspace == "" {
		target.Workspace = sender.Workspace
	}
	if err := r.checkCrossWorkspace(sender, target); err != nil {
		r.logger.Warn("rejecting cross-workspace frame",
			zap.String("peer", sender.FullID()), zap.String("to", f.To()), zap.Error(err))
		r.replyError(sender, f, err)
		return
	}

	canonical := target.Workspace + "/" + target.Client
	if target.Service != "" {
		canonical += ":" + target.Service
	}
	f.SetTo(canonical)
	f.SetWorkspace(target.Workspace)
	identity, err := json.Marshal(sender.User)
	if err != nil {
		r.logger.Warn("encoding sender identity", zap.Error(err))
		return
	}
	f.SetUser(string(identity))

	r.deliver(sender, f, target)
}

// checkCrossWorkspace enforces the addressing rules for frames that leave
// the sender's workspace: internal wildcard peers may go anywhere, service
// frames may cross when the service is visible to the sender, and plain
// client-to-client frames never cross.
func (r *Router) checkCrossWorkspace(sender *Peer, target service.ID) error {
	if target.Workspace == sender.Workspace || sender.Workspace == WildcardWorkspace {
		return nil
	}
	if target.Client == ManagerClientID {
		// Another workspace's manager acts with that workspace's authority
		// (token minting, service registration), so only its members may
		// address it.
		if w, ok := r.Workspace(target.Workspace); ok && w.MemberOf(sender.User) {
			return nil
		}
		return hyphaerrors.WorkspaceForbiddenErrorf("peer %q is not a member of workspace %q", sender.FullID(), target.Workspace)
	}
	if sender.User != nil && sender.User.IsAdmin() {
		return nil
	}
	if target.Service == "" {
		return hyphaerrors.WorkspaceForbiddenErrorf("peer %q may not address clients in workspace %q", sender.FullID(), target.Workspace)
	}
	w, ok := r.Workspace(target.Workspace)
	if !ok {
		return hyphaerrors.RecipientUnknownErrorf("workspace %q is unknown", target.Workspace)
	}
	if _, err := w.getService(target, "default", sender.User); err != nil {
		return err
	}
	return nil
}

func (r *Router) deliver(sender *Peer, f *frame.Frame, target service.ID) {
	encoded := f.Encode()
	fullID := target.Workspace + "/" + target.Client

	if recipient, ok := r.getPeer(fullID); ok {
		if err := recipient.Transport.Send(encoded); err != nil {
			r.logger.Debug("send to local peer failed",
				zap.String("recipient", fullID), zap.Error(err))
			if hyphaerrors.IsTransportClosed(err) {
				r.disconnectPeer(recipient)
			}
			r.replyError(sender, f, err)
		}
		return
	}

	if r.coord != nil && r.coord.Active() {
		if serverID, ok := r.coord.Find(target.Workspace, target.Client); ok {
			if err := r.coord.Forward(serverID, fullID, encoded); err != nil {
				r.logger.Warn("cluster forward failed", zap.String("recipient", fullID), zap.Error(err))
				r.replyError(sender, f, hyphaerrors.RecipientUnknownErrorf("client %q unreachable via cluster", fullID))
			}
			return
		}
	}

	r.logger.Warn("dropping frame for unknown recipient",
		zap.String("sender", sender.FullID()), zap.String("recipient", fullID))
	r.replyError(sender, f, hyphaerrors.RecipientUnknownErrorf("client %q is not connected", fullID))
}

// deliverLocal writes a cluster-forwarded frame to a locally connected
// recipient. It reports whether the recipient was found.
func (r *Router) deliverLocal(workspace, clientID string, data []byte) bool {
	p, ok := r.getPeer(workspace + "/" + clientID)
	if !ok {
		return false
	}
	if err := p.Transport.Send(data); err != nil {
		r.logger.Debug("forwarded frame dropped", zap.String("recipient", p.FullID()), zap.Error(err))
		return false
	}
	return true
}

// replyError synthesizes an error reply for a reply-expecting frame. Frames
// with no request id are dropped silently beyond the caller's log line.
func (r *Router) replyError(sender *Peer, orig *frame.Frame, cause error) {
	if orig.ID() == "" || sender.Transport == nil {
		return
	}
	reply, err := buildFrame(FrameTypeError, orig.To(), sender.FullID(), orig.ID(), newErrorDetail(cause))
	if err != nil {
		return
	}
	reply.SetWorkspace(sender.Workspace)
	if err := sender.Transport.Send(reply.Encode()); err != nil {
		r.logger.Debug("error reply dropped", zap.String("peer", sender.FullID()), zap.Error(err))
	}
}

// ---------------------------------------------------------------------------
// Internal calls (HTTP proxy, tests, service handles)

type pendingReply struct {
	kind  string
	value json.RawMessage
	err   error
}

type pendingCall struct {
	id     string
	target string
	ch     chan pendingReply
}

func (r *Router) registerPending(id, target string) *pendingCall {
	pc := &pendingCall{id: id, target: target, ch: make(chan pendingReply, 64)}
	r.pendingMu.Lock()
	r.pending[id] = pc
	r.pendingMu.Unlock()
	return pc
}

func (r *Router) dropPending(id string) {
	r.pendingMu.Lock()
	delete(r.pending, id)
	r.pendingMu.Unlock()
}

func (r *Router) dispatchReply(data []byte) {
	f, err := frame.Decode(data)
	if err != nil || f.ID() == "" {
		return
	}
	r.pendingMu.Lock()
	pc := r.pending[f.ID()]
	r.pendingMu.Unlock()
	if pc == nil {
		return
	}
	var reply pendingReply
	reply.kind = f.Type()
	switch f.Type() {
	case FrameTypeResult:
		var res struct {
			Result json.RawMessage `json:"result"`
		}
		if err := json.Unmarshal(f.Payload, &res); err != nil {
			reply.err = hyphaerrors.MalformedFrameErrorf("bad result payload: %v", err)
			reply.kind = FrameTypeError
		} else {
			reply.value = res.Result
		}
	case FrameTypeYield:
		var y struct {
			Value json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal(f.Payload, &y); err != nil {
			reply.err = hyphaerrors.MalformedFrameErrorf("bad yield payload: %v", err)
			reply.kind = FrameTypeError
		} else {
			reply.value = y.Value
		}
	case FrameTypeError:
		var d ErrorDetail
		if err := json.Unmarshal(f.Payload, &d); err != nil {
			reply.err = hyphaerrors.UnknownErrorf("unparseable error reply")
		} else {
			reply.err = d.AsError()
		}
	default:
		return
	}
	select {
	case pc.ch <- reply:
	default:
		// Slow internal consumer; the call will time out on its own.
	}
}

// failPendingFor fails in-flight calls that target a disconnecting peer.
func (r *Router) failPendingFor(fullID string) {
	r.pendingMu.Lock()
	var stale []*pendingCall
	for _, pc := range r.pending {
		if pc.target == fullID {
			stale = append(stale, pc)
		}
	}
	r.pendingMu.Unlock()
	for _, pc := range stale {
		select {
		case pc.ch <- pendingReply{kind: FrameTypeError, err: hyphaerrors.TransportClosedErrorf("service owner %q disconnected", fullID)}:
		default:
		}
	}
}

// internalPeer returns the hidden peer through which the router originates
// calls into workspace w, creating it on first use.
func (r *Router) internalPeer(w *Workspace) *Peer {
	fullID := w.ID + "/http-server"
	if p, ok := r.getPeer(fullID); ok {
		return p
	}
	p := newPeer(w.ID, "http-server", &auth.UserInfo{ID: "http-server", Roles: []string{auth.RoleAdmin}}, nil)
	p.manager = true
	p.Transport = newCallbackTransport(func(data []byte, binary bool) {
		if binary {
			r.dispatchReply(data)
		}
	})
	r.mu.Lock()
	if existing, ok := r.peers[fullID]; ok {
		r.mu.Unlock()
		return existing
	}
	r.peers[fullID] = p
	r.mu.Unlock()
	w.mu.Lock()
	w.peers[p.ClientID] = p
	w.mu.Unlock()
	return p
}

// methodTimeout returns the configured RPC reply timeout.
func (r *Router) methodTimeout() time.Duration {
	return time.Duration(r.config.MethodTimeoutS) * time.Second
}

// CallService resolves a service visible to caller and invokes one member.
// Local members run in-process; members owned by connected peers are
// invoked with a request frame and a correlated reply. A lazily streamed
// result is returned as *service.Stream.
func (r *Router) CallService(ctx context.Context, caller *auth.UserInfo, workspaceID, serviceID, member string, args []interface{}) (interface{}, error) {
	handle, err := r.GetService(caller, workspaceID, serviceID, "default")
	if err != nil {
		return nil, err
	}
	return handle.Call(ctx, member, args...)
}

// ListServices returns the wire descriptors visible to caller in one
// workspace, optionally filtered by q.
func (r *Router) ListServices(caller *auth.UserInfo, workspaceID string, q service.Query) ([]map[string]interface{}, error) {
	w, ok := r.Workspace(workspaceID)
	if !ok {
		return nil, hyphaerrors.ServiceNotFoundErrorf("workspace %q is unknown", workspaceID)
	}
	listed := w.listServices(q, caller)
	out := make([]map[string]interface{}, 0, len(listed))
	for _, rs := range listed {
		out = append(out, rs.wireDescriptor())
	}
	return out, nil
}

// WorkspaceSummary describes one workspace for HTTP callers.
type WorkspaceSummary struct {
	ID           string `json:"id"`
	Persistent   bool   `json:"persistent"`
	ClientCount  int    `json:"client_count"`
	ServiceCount int    `json:"service_count"`
}

// Summary returns workspace metadata; membership is required for
// non-public workspaces.
func (r *Router) Summary(caller *auth.UserInfo, workspaceID string) (*WorkspaceSummary, error) {
	w, ok := r.Workspace(workspaceID)
	if !ok {
		return nil, hyphaerrors.ServiceNotFoundErrorf("workspace %q is unknown", workspaceID)
	}
	if !w.Public() && !w.MemberOf(caller) {
		return nil, hyphaerrors.WorkspaceForbiddenErrorf("user %q is not a member of workspace %q", caller.ID, workspaceID)
	}
	w.mu.RLock()
	services := len(w.services)
	w.mu.RUnlock()
	return &WorkspaceSummary{
		ID:           w.ID,
		Persistent:   w.persistent,
		ClientCount:  w.peerCount(),
		ServiceCount: services,
	}, nil
}

// GetService resolves a service id (bare, client:service, or fully
// qualified) into an invokable handle, enforcing visibility for caller.
// Wildcard workspace lookups are rejected.
func (r *Router) GetService(caller *auth.UserInfo, workspaceID, serviceID, mode string) (*ServiceHandle, error) {
	id := service.ParseID(serviceID)
	if id.Workspace == WildcardWorkspace || workspaceID == WildcardWorkspace {
		return nil, hyphaerrors.InvalidArgumentErrorf("wildcard workspace lookups are not allowed")
	}
	if id.Workspace == "" {
		id.Workspace = workspaceID
	}
	w, ok := r.Workspace(id.Workspace)
	if !ok {
		return nil, hyphaerrors.ServiceNotFoundErrorf("workspace %q is unknown", id.Workspace)
	}
	rs, err := w.getService(id, mode, caller)
	if err != nil {
		return nil, err
	}
	return &ServiceHandle{router: r, caller: caller, workspace: w, rs: rs}, nil
}

// ---------------------------------------------------------------------------
// callbackTransport

// callbackTransport adapts a receive function to the Transport interface.
// It backs synthetic in-process peers: the workspace manager and the hidden
// http-server caller.
type callbackTransport struct {
	receive func(data []byte, binary bool)
	mu      sync.Mutex
	closed  bool
	onClose transport.CloseHandler
}

var _ transport.Transport = (*callbackTransport)(nil)

func newCallbackTransport(receive func(data []byte, binary bool)) *callbackTransport {
	return &callbackTransport{receive: receive}
}

func (c *callbackTransport) Send(data []byte) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return hyphaerrors.TransportClosedErrorf("internal transport is closed")
	}
	c.receive(data, true)
	return nil
}

func (c *callbackTransport) SendText(data []byte) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return hyphaerrors.TransportClosedErrorf("internal transport is closed")
	}
	c.receive(data, false)
	return nil
}

func (c *callbackTransport) SetReceiveHandler(transport.ReceiveHandler) {}

func (c *callbackTransport) SetCloseHandler(h transport.CloseHandler) {
	c.mu.Lock()
	c.onClose = h
	c.mu.Unlock()
}

func (c *callbackTransport) Close(code int, reason string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	h := c.onClose
	c.mu.Unlock()
	if h != nil {
		h(nil)
	}
	return nil
}

func (c *callbackTransport) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}
