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

// Package master implements the MASTER half of the MASTER/MIRROR state
// replication pattern (spec §4.6, grounded on
// original_source/src/protocols/sync/xmaster.c, absent from the Go
// teacher): it keeps a cached "current state" message, short-circuiting
// Send when the new bytes equal the cache, and feeding any newly attached
// MIRROR the cached state before it joins the regular distributor.
package master

import (
	"bytes"
	"sync"

	"go.nanomsg.dev/spsock/protocol"
	"go.nanomsg.dev/spsock/protocol/internal/strategy"
)

// Protocol identity information.
const (
	Self     = protocol.ProtoMaster
	Peer     = protocol.ProtoMirror
	SelfName = "master"
	PeerName = "mirror"
)

type socket struct {
	sync.Mutex
	closed  bool
	dist    *strategy.Dist
	cached  []byte
	hasSent bool
}

func (s *socket) SendMsg(m *protocol.Message) error {
	s.Lock()
	if s.closed {
		s.Unlock()
		return protocol.ErrClosed
	}
	if s.hasSent && bytes.Equal(s.cached, m.Body) {
		s.Unlock()
		m.Free()
		return nil
	}
	s.cached = append([]byte(nil), m.Body...)
	s.hasSent = true
	s.Unlock()

	s.dist.Send(m)
	m.Free()
	return nil
}

func (s *socket) RecvMsg() (*protocol.Message, error) {
	return nil, protocol.ErrProtoOp
}

func (*socket) NoRecv() {}

func (s *socket) SetOption(name string, value interface{}) error {
	return protocol.ErrBadOption
}

func (s *socket) GetOption(name string) (interface{}, error) {
	return nil, protocol.ErrBadOption
}

func (s *socket) AddPipe(pp protocol.Pipe) error {
	s.Lock()
	if s.closed {
		s.Unlock()
		return protocol.ErrClosed
	}
	if s.hasSent {
		state := protocol.NewMessageFromBytes(append([]byte(nil), s.cached...))
		if err := pp.TrySend(state); err != nil {
			state.Free()
		}
	}
	s.dist.Add(pp)
	s.Unlock()
	return nil
}

func (s *socket) RemovePipe(pp protocol.Pipe) {
	s.Lock()
	s.dist.Remove(pp)
	s.Unlock()
}

func (*socket) Info() protocol.Info {
	return protocol.Info{Self: Self, Peer: Peer, SelfName: SelfName, PeerName: PeerName}
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
	return &socket{dist: strategy.NewDist()}
}

// NewSocket allocates a Socket using the MASTER protocol.
func NewSocket() (protocol.Socket, error) {
	return protocol.MakeSocket(NewProtocol())
}
