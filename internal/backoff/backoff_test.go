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

package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDurationStaysWithinEnvelope(t *testing.T) {
	e := &Exponential{Base: 10 * time.Millisecond, Max: 100 * time.Millisecond}
	for attempt := uint(0); attempt < 10; attempt++ {
		ceil := 10 * time.Millisecond << attempt
		if ceil > 100*time.Millisecond || ceil <= 0 {
			ceil = 100 * time.Millisecond
		}
		for i := 0; i < 50; i++ {
			d := e.Duration(attempt)
			assert.GreaterOrEqual(t, d, time.Duration(0))
			assert.LessOrEqual(t, d, ceil)
		}
	}
}

func TestDurationLargeAttemptUsesCap(t *testing.T) {
	e := &Exponential{Base: time.Second, Max: 5 * time.Second}
	for i := 0; i < 50; i++ {
		d := e.Duration(63) // the shift overflows int64
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 5*time.Second)
	}
}

func TestZeroValueIsUsable(t *testing.T) {
	var e Exponential
	d := e.Duration(0)
	assert.GreaterOrEqual(t, d, time.Duration(0))
	assert.LessOrEqual(t, d, 10*time.Second)
}
