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

// Package xrep implements the raw REP protocol: fair-queued receive
// across attached REQ peers, and routed send back to whichever peer a
// request's backtrace names (spec §4.6). Every pipe is keyed by its
// core-assigned id, already a random-seeded 31-bit (top bit clear)
// counter (protocol/socket.go's nextPipeID) — exactly the key shape the
// routing backtrace needs, so no separate per-pipe counter is kept here.
package xrep

import (
	"encoding/binary"
	"sync"

	"go.nanomsg.dev/spsock/protocol"
	"go.nanomsg.dev/spsock/protocol/internal/strategy"
)

// Protocol identity information.
const (
	Self     = protocol.ProtoRep
	Peer     = protocol.ProtoReq
	SelfName = "rep"
	PeerName = "req"
)

type socket struct {
	sync.Mutex
	closed bool
	pipes  map[uint32]protocol.Pipe
	fq     *strategy.FQ
}

// RecvMsg fetches the next request and prepends the originating pipe's
// key to the message header, building the backtrace the eventual Send
// will route on (spec's "prepend the pipe's key to the backtrace").
func (s *socket) RecvMsg() (*protocol.Message, error) {
	s.Lock()
	defer s.Unlock()
	if s.closed {
		return nil, protocol.ErrClosed
	}
	m, err := s.fq.Recv()
	if err != nil {
		return nil, err
	}
	key := m.Pipe.ID()
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, key)
	m.Header = append(buf, m.Header...)
	return m, nil
}

// SendMsg reads the destination key from the front of the header and
// routes to that pipe; an unknown or backpressured destination is a
// silent drop (spec: "terminate the message and return success").
func (s *socket) SendMsg(m *protocol.Message) error {
	if len(m.Header) < 4 {
		m.Free()
		return nil
	}
	key := binary.BigEndian.Uint32(m.Header[:4])
	m.Header = m.Header[4:]

	s.Lock()
	p, ok := s.pipes[key]
	closed := s.closed
	s.Unlock()

	if closed {
		m.Free()
		return protocol.ErrClosed
	}
	if !ok {
		m.Free()
		return nil
	}
	if err := p.TrySend(m); err != nil {
		m.Free()
	}
	return nil
}

func (s *socket) SetOption(name string, value interface{}) error {
	return protocol.ErrBadOption
}

func (s *socket) GetOption(name string) (interface{}, error) {
	return nil, protocol.ErrBadOption
}

func (s *socket) AddPipe(pp protocol.Pipe) error {
	s.Lock()
	defer s.Unlock()
	if s.closed {
		return protocol.ErrClosed
	}
	s.pipes[pp.ID()] = pp
	s.fq.Add(pp, 8)
	return nil
}

func (s *socket) RemovePipe(pp protocol.Pipe) {
	s.Lock()
	delete(s.pipes, pp.ID())
	s.fq.Remove(pp)
	s.Unlock()
}

func (*socket) Info() protocol.Info {
	return protocol.Info{Self: Self, Peer: Peer, SelfName: SelfName, PeerName: PeerName, Raw: true}
}

func (s *socket) Close() error {
	s.Lock()
	if s.closed {
		s.Unlock()
		return protocol.ErrClosed
	}
	s.closed = true
	s.Unlock()
	return nil
}

// NewProtocol returns a new protocol implementation.
func NewProtocol() protocol.Protocol {
	return &socket{pipes: map[uint32]protocol.Pipe{}, fq: strategy.NewFQ()}
}

// NewSocket allocates a raw Socket using the REP protocol.
func NewSocket() (protocol.Socket, error) {
	return protocol.MakeSocket(NewProtocol())
}
