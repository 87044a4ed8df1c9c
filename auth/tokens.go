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
	"sync"
	"time"

	"github.com/google/uuid"
)

// purgeBudget caps how many entries one insert may scan for expiry, so the
// table stays bounded without a background sweeper.
const purgeBudget = 128

type tokenEntry struct {
	creds   *Credentials
	expires time.Time
}

// tokenTable holds locally minted opaque tokens keyed by the token string.
// Tokens stay valid until expiry and may be used more than once.
type tokenTable struct {
	mu      sync.RWMutex
	entries map[string]tokenEntry
}

func newTokenTable() *tokenTable {
	return &tokenTable{entries: make(map[string]tokenEntry)}
}

func (t *tokenTable) put(creds *Credentials, expires time.Time) string {
	token := uuid.NewString() + uuid.NewString()
	t.mu.Lock()
	defer t.mu.Unlock()

	scanned := 0
	now := time.Now()
	for k, e := range t.entries {
		if scanned >= purgeBudget {
			break
		}
		scanned++
		if now.After(e.expires) {
			delete(t.entries, k)
		}
	}
	t.entries[token] = tokenEntry{creds: creds, expires: expires}
	return token
}

func (t *tokenTable) get(token string, now time.Time) (*Credentials, bool) {
	t.mu.RLock()
	e, ok := t.entries[token]
	t.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if now.After(e.expires) {
		t.mu.Lock()
		delete(t.entries, token)
		t.mu.Unlock()
		return nil, false
	}
	return e.creds, true
}
