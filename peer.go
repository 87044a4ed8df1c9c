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
	"fmt"
	"sync"
	"time"

	"github.com/amun-ai/hypha-go/auth"
	"github.com/amun-ai/hypha-go/transport"
)

// Peer is one authenticated entity with an open transport, identified as
// workspace/client. A Peer belongs to exactly one workspace for its
// lifetime.
type Peer struct {
	Workspace string
	ClientID  string
	User      *auth.UserInfo
	Transport transport.Transport
	Created   time.Time

	// manager marks the synthetic workspace-manager peer.
	manager bool

	mu       sync.Mutex
	services map[string]struct{} // owned service ids
}

func newPeer(workspace, clientID string, user *auth.UserInfo, t transport.Transport) *Peer {
	return &Peer{
		Workspace: workspace,
		ClientID:  clientID,
		User:      user,
		Transport: t,
		Created:   time.Now(),
		services:  make(map[string]struct{}),
	}
}

// FullID returns the peer's fully-qualified id "workspace/client".
func (p *Peer) FullID() string {
	return fmt.Sprintf("%s/%s", p.Workspace, p.ClientID)
}

// IsManager reports whether this is the synthetic workspace-manager peer.
func (p *Peer) IsManager() bool { return p.manager }

func (p *Peer) addService(id string) {
	p.mu.Lock()
	p.services[id] = struct{}{}
	p.mu.Unlock()
}

func (p *Peer) removeService(id string) {
	p.mu.Lock()
	delete(p.services, id)
	p.mu.Unlock()
}

func (p *Peer) serviceIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.services))
	for id := range p.services {
		ids = append(ids, id)
	}
	return ids
}
