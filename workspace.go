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
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/amun-ai/hypha-go/auth"
	"github.com/amun-ai/hypha-go/hyphaerrors"
	"github.com/amun-ai/hypha-go/service"
)

// registeredService is a registry entry: descriptor metadata plus the owning
// peer. The callables themselves live with the owner; the registry never
// invokes them.
type registeredService struct {
	desc  *service.Descriptor
	owner *Peer
}

// Workspace is a naming and access-control domain for peers and services.
// All mutations are serialized under its lock.
type Workspace struct {
	ID string

	// Owner is the identity that first created the workspace.
	Owner *auth.UserInfo

	// persistent workspaces survive their last peer disconnecting.
	persistent bool
	created    time.Time

	mu       sync.RWMutex
	peers    map[string]*Peer              // by client id
	services map[string]*registeredService // by "client:service"
	events   *eventBus
}

func newWorkspace(id string, owner *auth.UserInfo, persistent bool) *Workspace {
	return &Workspace{
		ID:         id,
		Owner:      owner,
		persistent: persistent,
		created:    time.Now(),
		peers:      make(map[string]*Peer),
		services:   make(map[string]*registeredService),
		events:     newEventBus(),
	}
}

// ValidateWorkspaceID rejects ids that would break addressing. Workspace
// ids are lower-case and must not contain '/'.
func ValidateWorkspaceID(id string) error {
	if id == "" {
		return hyphaerrors.InvalidArgumentErrorf("workspace id must not be empty")
	}
	if strings.ContainsAny(id, "/:*") {
		return hyphaerrors.InvalidArgumentErrorf("workspace id %q must not contain '/', ':' or '*'", id)
	}
	if id != strings.ToLower(id) {
		return hyphaerrors.InvalidArgumentErrorf("workspace id %q must be lower-case", id)
	}
	return nil
}

// Public reports whether services in this workspace are visible without
// membership.
func (w *Workspace) Public() bool {
	return w.ID == DefaultWorkspace || w.ID == PublicWorkspace
}

// MemberOf reports whether user may act as a member of this workspace:
// admins everywhere, a workspace's owner, the user whose id names the
// workspace, and anyone with a connected peer here.
func (w *Workspace) MemberOf(user *auth.UserInfo) bool {
	if user == nil {
		return false
	}
	if user.IsAdmin() {
		return true
	}
	if w.ID == user.ID {
		return true
	}
	if w.Owner != nil && w.Owner.ID == user.ID {
		return true
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, p := range w.peers {
		if p.User != nil && p.User.ID == user.ID {
			return true
		}
	}
	return false
}

func (w *Workspace) addPeer(p *Peer) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, taken := w.peers[p.ClientID]; taken {
		return hyphaerrors.ClientIDInUseErrorf("client id %q is already connected in workspace %q", p.ClientID, w.ID)
	}
	w.peers[p.ClientID] = p
	return nil
}

// removePeer drops the peer, its services, and its event subscriptions.
// It returns the removed service descriptors so the caller can announce
// them, and whether the workspace is now empty of non-manager peers.
func (w *Workspace) removePeer(p *Peer) (removed []*service.Descriptor, empty bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.peers, p.ClientID)
	for key, rs := range w.services {
		if rs.owner == p {
			removed = append(removed, rs.desc)
			delete(w.services, key)
		}
	}
	empty = true
	for _, other := range w.peers {
		if !other.IsManager() {
			empty = false
			break
		}
	}
	w.events.offAll(p.FullID())
	return removed, empty
}

func (w *Workspace) peer(clientID string) (*Peer, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	p, ok := w.peers[clientID]
	return p, ok
}

func (w *Workspace) peerCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	n := 0
	for _, p := range w.peers {
		if !p.IsManager() {
			n++
		}
	}
	return n
}

// registerService validates and records a descriptor owned by owner.
// Registration in default/public requires an administrative role.
func (w *Workspace) registerService(desc *service.Descriptor, owner *Peer, overwrite bool) error {
	if err := service.ValidateID(desc.ID); err != nil {
		return err
	}
	if desc.Config.Workspace != "" && desc.Config.Workspace != w.ID {
		return hyphaerrors.InvalidArgumentErrorf("service workspace %q does not match owner workspace %q", desc.Config.Workspace, w.ID)
	}
	if w.Public() && !owner.IsManager() && !owner.User.IsAdmin() {
		return hyphaerrors.WorkspaceForbiddenErrorf("registering services in %q requires an administrative role", w.ID)
	}
	desc.Config.Workspace = w.ID
	if desc.Config.Visibility == "" {
		desc.Config.Visibility = service.VisibilityProtected
	}

	key := owner.ClientID + ":" + desc.ID
	w.mu.Lock()
	defer w.mu.Unlock()
	if existing, taken := w.services[key]; taken {
		if existing.owner != owner || !overwrite {
			return hyphaerrors.ServiceIDInUseErrorf("service %q is already registered by %s", desc.ID, existing.owner.FullID())
		}
	}
	w.services[key] = &registeredService{desc: desc, owner: owner}
	owner.addService(desc.ID)
	return nil
}

// unregisterService removes a service; only its owner may do so.
func (w *Workspace) unregisterService(id string, owner *Peer) error {
	key := owner.ClientID + ":" + id
	w.mu.Lock()
	defer w.mu.Unlock()
	rs, ok := w.services[key]
	if !ok {
		return hyphaerrors.ServiceNotFoundErrorf("service %q is not registered by %s", id, owner.FullID())
	}
	if rs.owner != owner {
		return hyphaerrors.InsufficientScopeErrorf("only the owner may unregister %q", id)
	}
	delete(w.services, key)
	owner.removeService(id)
	return nil
}

// visibleTo reports whether caller may see the service.
func (w *Workspace) visibleTo(rs *registeredService, caller *auth.UserInfo) bool {
	if rs.desc.Config.Public() {
		return true
	}
	return w.MemberOf(caller)
}

// listServices returns descriptors matching q that caller may see, sorted
// by fully-qualified id for stable output.
func (w *Workspace) listServices(q service.Query, caller *auth.UserInfo) []*registeredService {
	w.mu.RLock()
	matched := make([]*registeredService, 0, len(w.services))
	for _, rs := range w.services {
		if rs.desc.Matches(q) {
			matched = append(matched, rs)
		}
	}
	w.mu.RUnlock()

	visible := matched[:0]
	for _, rs := range matched {
		if w.visibleTo(rs, caller) {
			visible = append(visible, rs)
		}
	}
	sort.Slice(visible, func(i, j int) bool {
		return visible[i].fullID() < visible[j].fullID()
	})
	return visible
}

// getService resolves an id that may be bare, client-qualified, or a query.
// With several candidates, mode selects "default" (first, stable order) or
// "random". The candidate set is snapshotted under the lock, so a selection
// cannot tear while peers churn.
func (w *Workspace) getService(id service.ID, mode string, caller *auth.UserInfo) (*registeredService, error) {
	q := service.Query{ID: id.Service}
	candidates := w.listServices(q, caller)
	if id.Client != "" {
		filtered := candidates[:0]
		for _, rs := range candidates {
			if rs.owner.ClientID == id.Client {
				filtered = append(filtered, rs)
			}
		}
		candidates = filtered
	}
	if len(candidates) == 0 {
		return nil, hyphaerrors.ServiceNotFoundErrorf("no visible service %q in workspace %q", id.String(), w.ID)
	}
	switch mode {
	case "", "default":
		return candidates[0], nil
	case "random":
		return candidates[rand.Intn(len(candidates))], nil
	default:
		return nil, hyphaerrors.InvalidArgumentErrorf("unknown selection mode %q", mode)
	}
}

func (rs *registeredService) fullID() string {
	return service.FullID(rs.desc.Config.Workspace, rs.owner.ClientID, rs.desc.ID)
}

// wireDescriptor renders the descriptor for peers and HTTP callers, with
// the id fully qualified.
func (rs *registeredService) wireDescriptor() map[string]interface{} {
	d := rs.desc
	out := map[string]interface{}{
		"id":     rs.fullID(),
		"config": d.Config,
	}
	if d.Name != "" {
		out["name"] = d.Name
	}
	if d.Description != "" {
		out["description"] = d.Description
	}
	if d.Type != "" {
		out["type"] = d.Type
	}
	if d.AppID != "" {
		out["app_id"] = d.AppID
	}
	if len(d.Members) > 0 {
		out["members"] = d.MemberNames()
	}
	return out
}
