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

// Package cluster coordinates several router instances through a shared
// external store so that frames reach clients connected elsewhere.
package cluster

import "time"

// Store is the coordination backend: expiring keys for client placement,
// sets for server membership, and pub/sub for frame forwarding. All methods
// are safe for concurrent use.
type Store interface {
	// SetWithTTL writes key=value; the entry expires after ttl (ttl <= 0
	// means no expiry).
	SetWithTTL(key, value string, ttl time.Duration) error

	// Get reads key; found is false when the key is absent or expired.
	Get(key string) (value string, found bool, err error)

	Delete(keys ...string) error

	SetAdd(key string, members ...string) error
	SetRemove(key string, members ...string) error
	SetMembers(key string) ([]string, error)

	// Publish sends payload to every subscriber of channel.
	Publish(channel string, payload []byte) error

	// Subscribe opens a subscription on channel.
	Subscribe(channel string) (Subscription, error)

	// Ping verifies the store is reachable.
	Ping() error

	Close() error
}

// Subscription is one open pub/sub channel. Messages is closed when the
// subscription closes.
type Subscription interface {
	Messages() <-chan []byte
	Close() error
}
