// Copyright 2019 The Mangos Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package protocol

import "sync/atomic"

// chunk is a refcounted byte buffer. Header and Body in Message are each
// backed by one; Dup increments the refcount instead of copying, and Free
// only releases the backing array once the count reaches zero.
type chunk struct {
	buf  []byte
	refs int32
}

func newChunk(size int) *chunk {
	return &chunk{buf: make([]byte, size), refs: 1}
}

func wrapChunk(b []byte) *chunk {
	return &chunk{buf: b, refs: 1}
}

func (c *chunk) dup() *chunk {
	atomic.AddInt32(&c.refs, 1)
	return c
}

// trim advances the start of the buffer by n bytes without copying. It is
// only safe when the chunk is not shared; callers that might be sharing a
// chunk must clone before trimming (see Message.ensureHeaderOwned).
func (c *chunk) trim(n int) {
	c.buf = c.buf[n:]
}

func (c *chunk) free() {
	if atomic.AddInt32(&c.refs, -1) <= 0 {
		c.buf = nil
	}
}

func (c *chunk) shared() bool {
	return atomic.LoadInt32(&c.refs) > 1
}

func (c *chunk) clone() *chunk {
	b := make([]byte, len(c.buf))
	copy(b, c.buf)
	return wrapChunk(b)
}

// Message is the single unit of data transferred across pipes: an owned
// buffer split into a protocol header (routing bytes, grown/shrunk by
// protocol layers) and a body (the payload). The zero value is not usable;
// construct with NewMessage or NewMessageFromBytes.
//
// Header and Body sizes are each bounded to fit a uint32 on the wire (spec
// §3); the combined length is what stream transports frame with a 64-bit
// big-endian prefix.
type Message struct {
	Header []byte
	Body   []byte

	hdrChunk  *chunk
	bodyChunk *chunk

	// Pipe optionally records which pipe delivered this message, so a
	// protocol's recv path can report provenance (used by XREP/BUS).
	Pipe Pipe
}

// NewMessage allocates a message with an empty header and a body of the
// given size (uninitialised).
func NewMessage(sz int) *Message {
	c := newChunk(sz)
	return &Message{Body: c.buf, bodyChunk: c}
}

// NewMessageFromBytes wraps an existing slice as a message body without
// copying; the message takes ownership of the slice.
func NewMessageFromBytes(b []byte) *Message {
	c := wrapChunk(b)
	return &Message{Body: c.buf, bodyChunk: c}
}

// Dup returns a shallow copy sharing both chunks with the original. Mutating
// either copy's Header/Body slice in place is unsafe once shared; growing a
// header (MakeHeader et al.) forces a private copy first.
func (m *Message) Dup() *Message {
	nm := &Message{Header: m.Header, Body: m.Body}
	if m.hdrChunk != nil {
		nm.hdrChunk = m.hdrChunk.dup()
	}
	if m.bodyChunk != nil {
		nm.bodyChunk = m.bodyChunk.dup()
	}
	return nm
}

// Free releases the message's chunks. Calling Free on a message after
// handing it to a pipe's SendMsg (which takes ownership) is a use-after-free
// bug in the caller, mirroring the C ownership contract this API descends
// from.
func (m *Message) Free() {
	if m.hdrChunk != nil {
		m.hdrChunk.free()
	}
	if m.bodyChunk != nil {
		m.bodyChunk.free()
	}
	m.Header, m.Body = nil, nil
}

func (m *Message) ensureHeaderOwned() {
	if m.hdrChunk == nil {
		m.hdrChunk = wrapChunk(nil)
	} else if m.hdrChunk.shared() {
		m.hdrChunk.free()
		m.hdrChunk = m.hdrChunk.clone()
	}
}

// MakeHeader grows the header by n bytes at the tail and returns it
// (chunkref_init in the C source).
func (m *Message) MakeHeader(n int) []byte {
	m.ensureHeaderOwned()
	m.hdrChunk.buf = append(m.hdrChunk.buf, make([]byte, n)...)
	m.Header = m.hdrChunk.buf
	return m.Header
}

// TrimHeader removes n bytes from the front of the header
// (chunkref_trim in the C source).
func (m *Message) TrimHeader(n int) {
	m.ensureHeaderOwned()
	m.hdrChunk.trim(n)
	m.Header = m.hdrChunk.buf
}

// TrimBody removes n bytes from the front of the body, used after demuxing
// a fixed-size routing prefix.
func (m *Message) TrimBody(n int) {
	if m.bodyChunk == nil {
		m.bodyChunk = wrapChunk(m.Body)
	} else if m.bodyChunk.shared() {
		m.bodyChunk.free()
		m.bodyChunk = m.bodyChunk.clone()
	}
	m.bodyChunk.trim(n)
	m.Body = m.bodyChunk.buf
}
