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

// Package bus implements the BUS protocol: every sent message is
// broadcast to every other attached peer, and every peer can also send
// (spec §4.6); unlike PUB/SUB there is no subscription filtering.
package bus

import (
	"sync"

	"go.nanomsg.dev/spsock/protocol"
	"go.nanomsg.dev/spsock/protocol/internal/strategy"
)

// Protocol identity information.
const (
	Self     = protocol.ProtoBus
	Peer     = protocol.ProtoBus
	SelfName = "bus"
	PeerName = "bus"
)

type socket struct {
	sync.Mutex
	closed bool
	dist   *strategy.Dist
	fq     *strategy.FQ
}

func (s *socket) SendMsg(m *protocol.Message) error {
	s.Lock()
	defer s.Unlock()
	if s.closed {
		return protocol.ErrClosed
	}
	// A message relayed from one peer (m.Pipe set by the pipe's reader)
	// must not be echoed straight back to its own origin.
	if m.Pipe != nil {
		s.dist.Send(m, m.Pipe.ID())
	} else {
		s.dist.Send(m)
	}
	m.Free()
	return nil
}

func (s *socket) RecvMsg() (*protocol.Message, error) {
	s.Lock()
	defer s.Unlock()
	if s.closed {
		return nil, protocol.ErrClosed
	}
	return s.fq.Recv()
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
	s.dist.Add(pp)
	s.fq.Add(pp, 8)
	return nil
}

func (s *socket) RemovePipe(pp protocol.Pipe) {
	s.Lock()
	s.dist.Remove(pp)
	s.fq.Remove(pp)
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
	return &socket{dist: strategy.NewDist(), fq: strategy.NewFQ()}
}

// NewSocket allocates a Socket using the BUS protocol.
func NewSocket() (protocol.Socket, error) {
	return protocol.MakeSocket(NewProtocol())
}
