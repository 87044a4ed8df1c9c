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

// Package hypha implements the workspace manager: it authenticates peer
// connections, assigns each peer to a workspace, routes binary RPC frames
// between peers, and hosts the built-in workspace service through which
// peers register, look up, and invoke each other's services.
package hypha

// Version is reported to peers in the connection_info handshake reply.
const Version = "0.2.0"

// Well-known workspace and client names.
const (
	// DefaultWorkspace is pre-created and public.
	DefaultWorkspace = "default"

	// PublicWorkspace grants public visibility to its services.
	PublicWorkspace = "public"

	// ManagerClientID is the synthetic peer hosting the workspace service
	// in every workspace.
	ManagerClientID = "workspace-manager"

	// ManagerServiceID is the id of the built-in workspace service.
	ManagerServiceID = "default"
)
