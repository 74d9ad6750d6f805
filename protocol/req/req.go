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

// Package req implements the cooked REQ protocol: one outstanding
// request at a time, with a random-seeded 31-bit request id stamped into
// the header and a cooperative timer that best-effort re-sends the
// cached request until a matching reply arrives (spec §4.6). Built on
// top of the raw XREQ protocol for pipe fan-out/fan-in.
package req

import (
	"encoding/binary"
	"math/rand"
	"sync"
	"time"

	"go.nanomsg.dev/spsock/protocol"
	"go.nanomsg.dev/spsock/protocol/internal/ptimer"
	"go.nanomsg.dev/spsock/protocol/xreq"
)

// Protocol identity information.
const (
	Self     = protocol.ProtoReq
	Peer     = protocol.ProtoRep
	SelfName = "req"
	PeerName = "rep"
)

const defaultResendTime = 60 * time.Second

// bottomOfStack marks the single backtrace word REQ writes as the
// innermost (and only, in this non-device topology) routing frame.
const bottomOfStack = 0x80000000

type socket struct {
	sync.Mutex
	closed     bool
	xr         protocol.Protocol
	reqid      uint32
	inprogress bool
	cached     *protocol.Message
	resendIvl  time.Duration
	timer      *ptimer.Timer
}

func (s *socket) SendMsg(m *protocol.Message) error {
	s.Lock()
	if s.closed {
		s.Unlock()
		return protocol.ErrClosed
	}
	if s.inprogress && s.cached != nil {
		s.cached.Free()
		s.cached = nil
	}
	s.reqid = (s.reqid + 1) & 0x7fffffff
	hdr := make([]byte, 4)
	binary.BigEndian.PutUint32(hdr, s.reqid|bottomOfStack)
	m.Header = hdr
	s.cached = m.Dup()
	s.inprogress = true
	ivl := s.resendIvl
	s.Unlock()

	err := s.xr.SendMsg(m)
	if err != nil {
		if err == protocol.ErrAgain {
			m.Free()
		} else {
			s.Lock()
			s.inprogress = false
			if s.cached != nil {
				s.cached.Free()
				s.cached = nil
			}
			s.Unlock()
			return err
		}
	}
	s.timer.Rearm(ivl)
	return nil
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
	reqid := s.reqid
	s.Unlock()

	for {
		m, err := s.xr.RecvMsg()
		if err != nil {
			return nil, err
		}
		if len(m.Header) != 4 {
			m.Free()
			continue
		}
		id := binary.BigEndian.Uint32(m.Header[:4])
		if id&bottomOfStack == 0 || id&0x7fffffff != reqid {
			m.Free()
			continue
		}
		s.Lock()
		s.timer.Cancel()
		if s.cached != nil {
			s.cached.Free()
			s.cached = nil
		}
		s.inprogress = false
		s.Unlock()
		m.Header = nil
		return m, nil
	}
}

func (s *socket) onTimer() {
	s.Lock()
	if s.closed || !s.inprogress || s.cached == nil {
		s.Unlock()
		return
	}
	resend := s.cached.Dup()
	ivl := s.resendIvl
	s.Unlock()

	if err := s.xr.SendMsg(resend); err != nil {
		resend.Free()
	}
	s.timer.Rearm(ivl)
}

func (s *socket) SetOption(name string, value interface{}) error {
	switch name {
	case protocol.OptionResendTime:
		v, ok := value.(time.Duration)
		if !ok {
			return protocol.ErrBadValue
		}
		if err := protocol.CheckNonNegativeDuration(v); err != nil {
			return err
		}
		s.Lock()
		s.resendIvl = v
		s.Unlock()
		return nil
	}
	return s.xr.SetOption(name, value)
}

func (s *socket) GetOption(name string) (interface{}, error) {
	switch name {
	case protocol.OptionResendTime:
		s.Lock()
		v := s.resendIvl
		s.Unlock()
		return v, nil
	}
	return s.xr.GetOption(name)
}

func (s *socket) AddPipe(pp protocol.Pipe) error { return s.xr.AddPipe(pp) }
func (s *socket) RemovePipe(pp protocol.Pipe)    { s.xr.RemovePipe(pp) }

// SetSendPriority forwards to the underlying XREQ, which is the one that
// actually buckets pipes by send priority.
func (s *socket) SetSendPriority(p int) {
	if sp, ok := s.xr.(protocol.SendPrioritySetter); ok {
		sp.SetSendPriority(p)
	}
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
	cached := s.cached
	s.cached = nil
	s.Unlock()
	s.timer.Stop()
	if cached != nil {
		cached.Free()
	}
	return nil
}

// NewProtocol returns a new protocol implementation.
func NewProtocol() protocol.Protocol {
	s := &socket{
		xr:        xreq.NewProtocol(),
		reqid:     rand.Uint32() & 0x7fffffff,
		resendIvl: defaultResendTime,
	}
	s.timer = ptimer.New(s.onTimer)
	return s
}

// NewSocket allocates a Socket using the REQ protocol.
func NewSocket() (protocol.Socket, error) {
	return protocol.MakeSocket(NewProtocol())
}
