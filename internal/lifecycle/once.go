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

// Package lifecycle provides start/stop-once semantics for long-lived
// components. Start and Stop run their function at most once and memoize
// the returned error for later calls.
package lifecycle

import (
	"sync"

	"go.uber.org/atomic"
)

// Once guards a component's start/stop transitions.
type Once struct {
	startOnce sync.Once
	stopOnce  sync.Once
	startErr  error
	stopErr   error
	started   atomic.Bool
	stopped   atomic.Bool
}

// Start runs f at most once. Every call returns the memoized error of the
// single run.
func (o *Once) Start(f func() error) error {
	o.startOnce.Do(func() {
		o.startErr = f()
		o.started.Store(true)
	})
	return o.startErr
}

// Stop runs f at most once, and only after Start has run. Every call
// returns the memoized error of the single run.
func (o *Once) Stop(f func() error) error {
	if !o.started.Load() {
		return nil
	}
	o.stopOnce.Do(func() {
		o.stopErr = f()
		o.stopped.Store(true)
	})
	return o.stopErr
}

// IsRunning reports whether Start has run and Stop has not.
func (o *Once) IsRunning() bool {
	return o.started.Load() && !o.stopped.Load()
}
