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

import "sync"

// EventHandler consumes one event published on a workspace's bus.
type EventHandler func(event string, payload interface{})

// eventBus is the per-workspace publish/subscribe fabric behind the
// workspace service's emit/on/off members. Events never cross workspaces.
type eventBus struct {
	mu sync.RWMutex
	// event name -> subscriber client full-id -> handler
	subs map[string]map[string]EventHandler
}

func newEventBus() *eventBus {
	return &eventBus{subs: make(map[string]map[string]EventHandler)}
}

func (b *eventBus) on(event, subscriber string, h EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	handlers, ok := b.subs[event]
	if !ok {
		handlers = make(map[string]EventHandler)
		b.subs[event] = handlers
	}
	handlers[subscriber] = h
}

func (b *eventBus) off(event, subscriber string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if handlers, ok := b.subs[event]; ok {
		delete(handlers, subscriber)
		if len(handlers) == 0 {
			delete(b.subs, event)
		}
	}
}

// offAll drops every subscription held by subscriber. Called when the peer
// disconnects.
func (b *eventBus) offAll(subscriber string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for event, handlers := range b.subs {
		delete(handlers, subscriber)
		if len(handlers) == 0 {
			delete(b.subs, event)
		}
	}
}

func (b *eventBus) emit(event string, payload interface{}) int {
	b.mu.RLock()
	handlers := make([]EventHandler, 0, len(b.subs[event]))
	for _, h := range b.subs[event] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()
	for _, h := range handlers {
		h(event, payload)
	}
	return len(handlers)
}
