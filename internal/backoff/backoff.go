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

// Package backoff provides a full-jitter exponential backoff strategy used
// by the cluster coordinator's bounded store-write retries.
package backoff

import (
	"math/rand"
	"sync"
	"time"
)

// Exponential is an exponential backoff strategy with full jitter. Durations
// fall in the closed [0, Max] interval. It is safe for concurrent use.
type Exponential struct {
	// Base is the first attempt's upper bound; it doubles per attempt.
	Base time.Duration
	// Max caps the upper bound.
	Max time.Duration

	mu   sync.Mutex
	rand *rand.Rand
}

// Duration takes an attempt number, starting at zero, and returns the
// duration the caller should wait.
func (e *Exponential) Duration(attempt uint) time.Duration {
	base := e.Base
	if base <= 0 {
		base = 10 * time.Millisecond
	}
	max := e.Max
	if max <= 0 {
		max = 10 * time.Second
	}

	ceil := base.Nanoseconds() << attempt
	// The shift overflows for large attempts; both cases mean "use the cap".
	if ceil <= 0 || ceil > max.Nanoseconds() {
		ceil = max.Nanoseconds()
	}

	e.mu.Lock()
	if e.rand == nil {
		e.rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	jittered := e.rand.Int63n(ceil + 1)
	e.mu.Unlock()
	return time.Duration(jittered)
}
