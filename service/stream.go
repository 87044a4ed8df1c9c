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

package service

import (
	"context"
	"errors"
	"io"
	"sync"
)

// ErrStreamStopped is returned to a producer whose consumer stopped the
// stream. The producer should return at the next yield.
var ErrStreamStopped = errors.New("stream stopped by consumer")

type streamItem struct {
	value interface{}
	err   error
}

// Stream is a lazy sequence of values with an end-of-stream signal and a
// fail-fast error. A streaming method returns one as its result; the
// producer goroutine feeds it with Send and finishes with Close or Fail.
type Stream struct {
	ch       chan streamItem
	stop     chan struct{}
	stopOnce sync.Once
	endOnce  sync.Once
}

// NewStream builds a stream with the given producer-side buffer.
func NewStream(buffer int) *Stream {
	return &Stream{
		ch:   make(chan streamItem, buffer),
		stop: make(chan struct{}),
	}
}

// Send yields one value. It blocks until the consumer is ready and returns
// ErrStreamStopped once the consumer has stopped the stream.
func (s *Stream) Send(v interface{}) error {
	select {
	case <-s.stop:
		return ErrStreamStopped
	default:
	}
	select {
	case s.ch <- streamItem{value: v}:
		return nil
	case <-s.stop:
		return ErrStreamStopped
	}
}

// Fail ends the stream with a terminal error.
func (s *Stream) Fail(err error) {
	s.endOnce.Do(func() {
		select {
		case s.ch <- streamItem{err: err}:
		case <-s.stop:
		}
		close(s.ch)
	})
}

// Close ends the stream normally.
func (s *Stream) Close() {
	s.endOnce.Do(func() {
		close(s.ch)
	})
}

// Next returns the next value. It returns io.EOF after the last value, or
// the producer's terminal error, or ctx's error if the caller gives up
// first.
func (s *Stream) Next(ctx context.Context) (interface{}, error) {
	select {
	case item, ok := <-s.ch:
		if !ok {
			return nil, io.EOF
		}
		if item.err != nil {
			return nil, item.err
		}
		return item.value, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop tells the producer to stop. It is safe to call more than once and
// from a different goroutine than Next.
func (s *Stream) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
}
