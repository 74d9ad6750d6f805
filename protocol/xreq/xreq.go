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

// Package xreq implements the raw REQ protocol: load-balances sends
// across attached REP peers and fair-queues receives among them (spec
// §4.6). The cooked REQ protocol layers backtrace/resend bookkeeping on
// top of this.
package xreq

import (
	"sync"

	"go.nanomsg.dev/spsock/protocol"
	"go.nanomsg.dev/spsock/protocol/internal/strategy"
)

// Protocol identity information.
const (
	Self     = protocol.ProtoReq
	Peer     = protocol.ProtoRep
	SelfName = "req"
	PeerName = "rep"
)

type socket struct {
	sync.Mutex
	closed  bool
	lb      *strategy.LB
	fq      *strategy.FQ
	sndPrio int
}

func (s *socket) SendMsg(m *protocol.Message) error {
	s.Lock()
	defer s.Unlock()
	if s.closed {
		return protocol.ErrClosed
	}
	return s.lb.Send(m)
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

// SetSendPriority implements protocol.SendPrioritySetter: subsequent
// AddPipe calls place new pipes into the strategy.LB bucket matching the
// socket's current OptionSendPriority. Pipes already attached keep the
// bucket they were added under.
func (s *socket) SetSendPriority(p int) {
	s.Lock()
	s.sndPrio = p
	s.Unlock()
}

func (s *socket) AddPipe(pp protocol.Pipe) error {
	s.Lock()
	defer s.Unlock()
	if s.closed {
		return protocol.ErrClosed
	}
	s.lb.Add(pp, s.sndPrio)
	s.fq.Add(pp, 8)
	return nil
}

func (s *socket) RemovePipe(pp protocol.Pipe) {
	s.Lock()
	s.lb.Remove(pp)
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
	return &socket{lb: strategy.NewLB(), fq: strategy.NewFQ(), sndPrio: 8}
}

// NewSocket allocates a raw Socket using the REQ protocol.
func NewSocket() (protocol.Socket, error) {
	return protocol.MakeSocket(NewProtocol())
}
