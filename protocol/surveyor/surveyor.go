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

// Package surveyor implements the cooked SURVEYOR protocol: a
// random-seeded 31-bit survey id stamped into the header of each
// broadcast, and a deadline timer that cuts receive of responses off
// after deadline_ms (spec §4.6). Built on top of the raw XSURVEYOR
// protocol for fan-out/fan-in.
package surveyor

import (
	"encoding/binary"
	"math/rand"
	"sync"
	"time"

	"go.nanomsg.dev/spsock/protocol"
	"go.nanomsg.dev/spsock/protocol/internal/ptimer"
	"go.nanomsg.dev/spsock/protocol/xsurveyor"
)

// Protocol identity information.
const (
	Self     = protocol.ProtoSurveyor
	Peer     = protocol.ProtoRespondent
	SelfName = "surveyor"
	PeerName = "respondent"
)

const defaultDeadline = time.Second

type socket struct {
	sync.Mutex
	closed     bool
	xs         protocol.Protocol
	surveyid   uint32
	inprogress bool
	deadline   time.Duration
	timer      *ptimer.Timer
	wake       func()
}

func (s *socket) SetWake(fn func()) { s.wake = fn }

func (s *socket) SendMsg(m *protocol.Message) error {
	s.Lock()
	if s.closed {
		s.Unlock()
		return protocol.ErrClosed
	}
	s.surveyid = (s.surveyid + 1) & 0x7fffffff
	hdr := make([]byte, 4)
	binary.BigEndian.PutUint32(hdr, s.surveyid|0x80000000)
	m.Header = hdr
	s.inprogress = true
	deadline := s.deadline
	s.Unlock()

	err := s.xs.SendMsg(m)
	s.timer.Rearm(deadline)
	return err
}

func (s *socket) RecvMsg() (*protocol.Message, error) {
	s.Lock()
	if s.closed {
		s.Unlock()
		return nil, protocol.ErrClosed
	}
	if !s.inprogress {
		s.Unlock()
		return nil, protocol.ErrProtoState
	}
	id := s.surveyid
	s.Unlock()

	for {
		m, err := s.xs.RecvMsg()
		if err != nil {
			return nil, err
		}
		if len(m.Header) != 4 {
			m.Free()
			continue
		}
		got := binary.BigEndian.Uint32(m.Header[:4])
		if got&0x7fffffff != id {
			m.Free()
			continue
		}
		s.Lock()
		if !s.inprogress || s.surveyid != id {
			s.Unlock()
			m.Free()
			return nil, protocol.ErrProtoState
		}
		s.Unlock()
		m.Header = nil
		return m, nil
	}
}

func (s *socket) onTimer() {
	s.Lock()
	s.inprogress = false
	s.Unlock()
	if s.wake != nil {
		s.wake()
	}
}

func (s *socket) SetOption(name string, value interface{}) error {
	switch name {
	case protocol.OptionSurveyTime:
		v, ok := value.(time.Duration)
		if !ok {
			return protocol.ErrBadValue
		}
		if err := protocol.CheckNonNegativeDuration(v); err != nil {
			return err
		}
		s.Lock()
		s.deadline = v
		s.Unlock()
		return nil
	}
	return s.xs.SetOption(name, value)
}

func (s *socket) GetOption(name string) (interface{}, error) {
	switch name {
	case protocol.OptionSurveyTime:
		s.Lock()
		v := s.deadline
		s.Unlock()
		return v, nil
	}
	return s.xs.GetOption(name)
}

func (s *socket) AddPipe(pp protocol.Pipe) error { return s.xs.AddPipe(pp) }
func (s *socket) RemovePipe(pp protocol.Pipe)    { s.xs.RemovePipe(pp) }

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
	s.timer.Stop()
	return nil
}

// NewProtocol returns a new protocol implementation.
func NewProtocol() protocol.Protocol {
	s := &socket{
		xs:       xsurveyor.NewProtocol(),
		surveyid: rand.Uint32() & 0x7fffffff,
		deadline: defaultDeadline,
	}
	s.timer = ptimer.New(s.onTimer)
	return s
}

// NewSocket allocates a Socket using the SURVEYOR protocol.
func NewSocket() (protocol.Socket, error) {
	return protocol.MakeSocket(NewProtocol())
}
