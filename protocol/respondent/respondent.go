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

// Package respondent implements the cooked RESPONDENT protocol: track a
// single in-progress survey id, extracted from the header on receive and
// spliced back onto the header of the matching send (spec §4.6). Built
// on top of the raw XRESPONDENT protocol.
package respondent

import (
	"sync"

	"go.nanomsg.dev/spsock/protocol"
	"go.nanomsg.dev/spsock/protocol/xrespondent"
)

// Protocol identity information.
const (
	Self     = protocol.ProtoRespondent
	Peer     = protocol.ProtoSurveyor
	SelfName = "respondent"
	PeerName = "surveyor"
)

type socket struct {
	sync.Mutex
	closed     bool
	xr         protocol.Protocol
	inprogress bool
	surveyid   []byte
}

// RecvMsg fetches the next survey, stashing its id header for the
// matching Send to splice back on.
func (s *socket) RecvMsg() (*protocol.Message, error) {
	s.Lock()
	if s.closed {
		s.Unlock()
		return nil, protocol.ErrClosed
	}
	s.inprogress = false
	s.surveyid = nil
	s.Unlock()

	m, err := s.xr.RecvMsg()
	if err != nil {
		return nil, err
	}

	s.Lock()
	s.surveyid = m.Header
	s.inprogress = true
	s.Unlock()
	m.Header = nil
	return m, nil
}

// SendMsg splices the stashed survey id back onto the header and routes
// via the underlying XRESPONDENT. Unlike XREP, XRESPONDENT's excl-based
// send can genuinely report ErrAgain on a backpressured pipe; since
// s.inprogress is already cleared by the time that happens, treat it as
// a best-effort drop rather than letting the caller retry into
// ErrProtoState.
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
	m.Header = s.surveyid
	s.surveyid = nil
	s.inprogress = false
	s.Unlock()

	err := s.xr.SendMsg(m)
	if err == protocol.ErrAgain {
		m.Free()
		return nil
	}
	return err
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
	return &socket{xr: xrespondent.NewProtocol()}
}

// NewSocket allocates a Socket using the RESPONDENT protocol.
func NewSocket() (protocol.Socket, error) {
	return protocol.MakeSocket(NewProtocol())
}
