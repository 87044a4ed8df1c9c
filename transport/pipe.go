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

package transport

import (
	"fmt"
	"sync"

	"go.uber.org/atomic"

	"github.com/amun-ai/hypha-go/hyphaerrors"
)

const pipeQueueSize = 256

type pipeMessage struct {
	data   []byte
	binary bool
}

// Pipe returns a connected pair of in-process transports. Whatever one end
// sends, the other end receives, in order. It backs pseudo-peers (sandbox
// bridges, the HTTP proxy's internal peer) and tests.
func Pipe() (Transport, Transport) {
	a := newPipeEnd()
	b := newPipeEnd()
	a.remote = b
	b.remote = a
	go a.deliverLoop()
	go b.deliverLoop()
	return a, b
}

type pipeEnd struct {
	remote *pipeEnd
	queue  chan pipeMessage
	closed atomic.Bool

	mu        sync.Mutex
	onReceive ReceiveHandler
	onClose   CloseHandler
	closeErr  error
	notified  bool
}

var _ Transport = (*pipeEnd)(nil)

func newPipeEnd() *pipeEnd {
	return &pipeEnd{queue: make(chan pipeMessage, pipeQueueSize)}
}

// deliverLoop drains the inbound queue one message at a time, preserving
// send order.
func (p *pipeEnd) deliverLoop() {
	for msg := range p.queue {
		p.mu.Lock()
		h := p.onReceive
		p.mu.Unlock()
		if h != nil {
			h(msg.data, msg.binary)
		}
	}
	p.mu.Lock()
	h := p.onClose
	err := p.closeErr
	done := p.notified
	p.notified = true
	p.mu.Unlock()
	if h != nil && !done {
		h(err)
	}
}

func (p *pipeEnd) enqueue(data []byte, binary bool) error {
	// The lock pairs with shutdown so we never write to a closed queue.
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed.Load() {
		return hyphaerrors.TransportClosedErrorf("pipe is closed")
	}
	select {
	case p.queue <- pipeMessage{data: data, binary: binary}:
		return nil
	default:
		return hyphaerrors.BackpressureDropErrorf("pipe queue full (%d messages)", pipeQueueSize)
	}
}

func (p *pipeEnd) Send(data []byte) error {
	if p.closed.Load() {
		return hyphaerrors.TransportClosedErrorf("pipe is closed")
	}
	return p.remote.enqueue(data, true)
}

func (p *pipeEnd) SendText(data []byte) error {
	if p.closed.Load() {
		return hyphaerrors.TransportClosedErrorf("pipe is closed")
	}
	return p.remote.enqueue(data, false)
}

func (p *pipeEnd) SetReceiveHandler(h ReceiveHandler) {
	p.mu.Lock()
	p.onReceive = h
	p.mu.Unlock()
}

func (p *pipeEnd) SetCloseHandler(h CloseHandler) {
	p.mu.Lock()
	p.onClose = h
	p.mu.Unlock()
}

func (p *pipeEnd) Close(code int, reason string) error {
	var closeErr error
	if code != CodeNormalClosure {
		closeErr = fmt.Errorf("pipe closed: %d %s", code, reason)
	}
	p.shutdown(closeErr)
	p.remote.shutdown(closeErr)
	return nil
}

func (p *pipeEnd) shutdown(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed.Swap(true) {
		return
	}
	p.closeErr = err
	close(p.queue)
}

func (p *pipeEnd) Open() bool { return !p.closed.Load() }
