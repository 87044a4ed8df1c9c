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

// Package frame implements the binary frame codec used between peers and the
// workspace router.
//
// A frame is a self-delimited binary record: a one-byte signature, a
// varint-length-prefixed header, and an opaque payload. The header is an
// ordered key-value map of UTF-8 strings; the router reads and rewrites the
// addressing fields without ever touching payload bytes. Re-encoding a
// decoded frame with no rewrites reproduces the input byte for byte.
package frame

import (
	"bytes"
	"encoding/binary"

	"github.com/amun-ai/hypha-go/hyphaerrors"
)

// Signature is the first byte of every binary frame. Bytes that do not start
// with it are not routable.
const Signature byte = 0xF5

// Header field keys recognized by the router.
const (
	KeyFrom      = "from"
	KeyTo        = "to"
	KeyWorkspace = "ws"
	KeyUser      = "user"
	KeyType      = "type"
	KeyID        = "id"
)

const (
	maxHeaderLen = 64 * 1024
	maxFields    = 64
)

type field struct {
	key   string
	value string
}

// Frame is one decoded frame: an ordered header plus the untouched payload
// bytes of the record it was decoded from.
type Frame struct {
	fields  []field
	index   map[string]int
	Payload []byte
}

// New builds a frame addressed from -> to with the given payload.
func New(from, to string, payload []byte) *Frame {
	f := &Frame{index: make(map[string]int, 4), Payload: payload}
	f.set(KeyFrom, from)
	f.set(KeyTo, to)
	return f
}

// Decode parses the header of a binary frame. The returned Frame references
// raw's payload bytes; it does not copy them.
func Decode(raw []byte) (*Frame, error) {
	if len(raw) < 2 || raw[0] != Signature {
		return nil, hyphaerrors.MalformedFrameErrorf("missing frame signature")
	}
	hlen, n := binary.Uvarint(raw[1:])
	if n <= 0 || hlen > maxHeaderLen {
		return nil, hyphaerrors.MalformedFrameErrorf("bad header length")
	}
	off := 1 + n
	if uint64(len(raw)-off) < hlen {
		return nil, hyphaerrors.MalformedFrameErrorf("truncated header: want %d bytes, have %d", hlen, len(raw)-off)
	}
	header := raw[off : off+int(hlen)]
	payload := raw[off+int(hlen):]

	count, n := binary.Uvarint(header)
	if n <= 0 || count > maxFields {
		return nil, hyphaerrors.MalformedFrameErrorf("bad field count")
	}
	f := &Frame{
		fields:  make([]field, 0, count),
		index:   make(map[string]int, count),
		Payload: payload,
	}
	pos := n
	for i := uint64(0); i < count; i++ {
		key, next, err := readString(header, pos)
		if err != nil {
			return nil, err
		}
		value, after, err := readString(header, next)
		if err != nil {
			return nil, err
		}
		pos = after
		if _, dup := f.index[key]; dup {
			return nil, hyphaerrors.MalformedFrameErrorf("duplicate header field %q", key)
		}
		f.index[key] = len(f.fields)
		f.fields = append(f.fields, field{key: key, value: value})
	}
	if pos != len(header) {
		return nil, hyphaerrors.MalformedFrameErrorf("%d trailing header bytes", len(header)-pos)
	}
	if _, ok := f.index[KeyFrom]; !ok {
		return nil, hyphaerrors.MalformedFrameErrorf("header has no %q field", KeyFrom)
	}
	if _, ok := f.index[KeyTo]; !ok {
		return nil, hyphaerrors.MalformedFrameErrorf("header has no %q field", KeyTo)
	}
	return f, nil
}

func readString(buf []byte, pos int) (string, int, error) {
	if pos >= len(buf) {
		return "", 0, hyphaerrors.MalformedFrameErrorf("truncated header field")
	}
	slen, n := binary.Uvarint(buf[pos:])
	if n <= 0 || uint64(len(buf)-pos-n) < slen {
		return "", 0, hyphaerrors.MalformedFrameErrorf("truncated header field")
	}
	start := pos + n
	return string(buf[start : start+int(slen)]), start + int(slen), nil
}

// Encode re-emits the frame: signature, header in field order, then the
// payload bytes unchanged.
func (f *Frame) Encode() []byte {
	var header []byte
	header = binary.AppendUvarint(header, uint64(len(f.fields)))
	for _, fd := range f.fields {
		header = binary.AppendUvarint(header, uint64(len(fd.key)))
		header = append(header, fd.key...)
		header = binary.AppendUvarint(header, uint64(len(fd.value)))
		header = append(header, fd.value...)
	}

	var buf bytes.Buffer
	buf.Grow(1 + binary.MaxVarintLen32 + len(header) + len(f.Payload))
	buf.WriteByte(Signature)
	buf.Write(binary.AppendUvarint(nil, uint64(len(header))))
	buf.Write(header)
	buf.Write(f.Payload)
	return buf.Bytes()
}

func (f *Frame) get(key string) string {
	if i, ok := f.index[key]; ok {
		return f.fields[i].value
	}
	return ""
}

func (f *Frame) set(key, value string) {
	if i, ok := f.index[key]; ok {
		f.fields[i].value = value
		return
	}
	f.index[key] = len(f.fields)
	f.fields = append(f.fields, field{key: key, value: value})
}

// From returns the sender address.
func (f *Frame) From() string { return f.get(KeyFrom) }

// To returns the recipient address.
func (f *Frame) To() string { return f.get(KeyTo) }

// Workspace returns the "ws" stamp, if any.
func (f *Frame) Workspace() string { return f.get(KeyWorkspace) }

// User returns the "user" stamp, if any.
func (f *Frame) User() string { return f.get(KeyUser) }

// Type returns the frame type hint, if any. The router only reads it to
// recognize reply-expecting requests.
func (f *Frame) Type() string { return f.get(KeyType) }

// ID returns the request correlation id, if any.
func (f *Frame) ID() string { return f.get(KeyID) }

// SetFrom rewrites the sender address.
func (f *Frame) SetFrom(v string) { f.set(KeyFrom, v) }

// SetTo rewrites the recipient address.
func (f *Frame) SetTo(v string) { f.set(KeyTo, v) }

// SetWorkspace stamps the recipient's workspace.
func (f *Frame) SetWorkspace(v string) { f.set(KeyWorkspace, v) }

// SetUser stamps the sender's verified identity.
func (f *Frame) SetUser(v string) { f.set(KeyUser, v) }

// SetType sets the frame type hint. Used when building frames locally, never
// on the routing path.
func (f *Frame) SetType(v string) { f.set(KeyType, v) }

// SetID sets the correlation id. Used when building frames locally, never on
// the routing path.
func (f *Frame) SetID(v string) { f.set(KeyID, v) }
