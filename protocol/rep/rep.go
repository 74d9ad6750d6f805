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

// Package rep implements the cooked REP protocol: hold the backtrace
// from the most recently received request and splice it back onto the
// header of the next sent reply (spec §4.6). Built on top of the raw
// XREP protocol for routed delivery.
package rep

import (
	"sync"

	"go.nanomsg.dev/spsock/protocol"
	"go.nanomsg.dev/spsock/protocol/xrep"
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
	closed     bool
	xr         protocol.Protocol
	inprogress bool
	backtrace  []byte
}

// RecvMsg fetches the next request from the underlying XREP, stashing
// its backtrace for the matching Send to splice back on.
func (s *socket) RecvMsg() (*protocol.Message, error) {
	s.Lock()
	if s.closed {
		s.Unlock()
		return nil, protocol.ErrClosed
	}
	s.backtrace = nil
	s.inprogress = false
	s.Unlock()

	m, err := s.xr.RecvMsg()
	if err != nil {
		return nil, err
	}

	s.Lock()
	s.backtrace = m.Header
	s.inprogress = true
	s.Unlock()
	m.Header = nil
	return m, nil
}

// SendMsg splices the stashed backtrace back onto the header and routes
// via the underlying XREP; a pushback there is already a silent drop, so
// no error ever needs to surface from the forward call.
func (s *socket) SendMsg(m *protocol.Message) error {
	s.Lock()
	if s.closed {
		s.Unlock()
		return protocol.ErrClosed
	}
	if !s.inprogress {
		s.Unlock()
		return protocol.ErrProtoState
	}
	m.Header = s.backtrace
	s.backtrace = nil
	s.inprogress = false
	s.Unlock()

	return s.xr.SendMsg(m)
}

func (s *socket) SetOption(name string, value interface{}) error {
	return s.xr.SetOption(name, value)
}

func (s *socket) GetOption(name string) (interface{}, error) {
	return s.xr.GetOption(name)
}

func (s *socket) AddPipe(pp protocol.Pipe) error { return s.xr.AddPipe(pp) }
func (s *socket) RemovePipe(pp protocol.Pipe)    { s.xr.RemovePipe(pp) }

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
	return &socket{xr: xrep.NewProtocol()}
}

// NewSocket allocates a Socket using the REP protocol.
func NewSocket() (protocol.Socket, error) {
	return protocol.MakeSocket(NewProtocol())
}
