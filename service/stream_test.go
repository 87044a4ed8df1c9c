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
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amun-ai/hypha-go/hyphaerrors"
)

func TestStreamSendAndClose(t *testing.T) {
	s := NewStream(2)
	go func() {
		require.NoError(t, s.Send(1))
		require.NoError(t, s.Send(2))
		s.Close()
	}()

	ctx := context.Background()
	v, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	v, err = s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	_, err = s.Next(ctx)
	assert.Equal(t, io.EOF, err)
	// EOF is sticky.
	_, err = s.Next(ctx)
	assert.Equal(t, io.EOF, err)
}

func TestStreamFail(t *testing.T) {
	s := NewStream(1)
	go func() {
		require.NoError(t, s.Send("partial"))
		s.Fail(hyphaerrors.ServiceErrorf("upstream died"))
	}()

	ctx := context.Background()
	v, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "partial", v)
	_, err = s.Next(ctx)
	require.Error(t, err)
	assert.True(t, hyphaerrors.IsServiceError(err))
}

func TestStreamStopUnblocksProducer(t *testing.T) {
	s := NewStream(0)
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Send("never consumed")
	}()
	s.Stop()
	select {
	case err := <-errCh:
		assert.Equal(t, ErrStreamStopped, err)
	case <-time.After(time.Second):
		t.Fatal("producer still blocked after Stop")
	}
}

func TestStreamNextHonorsContext(t *testing.T) {
	s := NewStream(0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := s.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStreamFailAfterStopDoesNotBlock(t *testing.T) {
	s := NewStream(0)
	s.Stop()
	done := make(chan struct{})
	go func() {
		s.Fail(hyphaerrors.ServiceErrorf("late failure"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Fail blocked after Stop")
	}
}
