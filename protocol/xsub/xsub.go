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

// Package xsub implements the raw SUB protocol: messages from every
// attached pipe are fanned into one receive queue with no topic
// filtering at all (filtering is SUB's job, built on top of this).
package xsub

import (
	"sync"

	"go.nanomsg.dev/spsock/protocol"
)

// Protocol identity information.
const (
	Self     = protocol.ProtoSub
	Peer     = protocol.ProtoPub
	SelfName = "sub"
	PeerName = "pub"
)

const defaultQLen = 128

type pipe struct {
	p protocol.Pipe
	s *socket
}

type socket struct {
	sync.Mutex
	closed   bool
	closeq   chan struct{}
	recvQLen int
	recvq    chan *protocol.Message
}

func (s *socket) SendMsg(m *protocol.Message) error {
	return protocol.ErrProtoOp
}

// NoSend marks this protocol as send-incapable so SNDFD reports
// ErrBadOption instead of a readiness descriptor that can never fire.
func (*socket) NoSend() {}

// RecvMsg is non-blocking per the Protocol contract; socket.go's
// blocking/deadline loop is what callers actually see.
func (s *socket) RecvMsg() (*protocol.Message, error) {
	select {
	case m := <-s.recvq:
		return m, nil
	default:
	}
	select {
	case <-s.closeq:
		return nil, protocol.ErrClosed
	default:
		return nil, protocol.ErrAgain
	}
}

func (s *socket) SetOption(name string, value interface{}) error {
	switch name {
	case protocol.OptionReadQLen:
		v, ok := value.(int)
		if !ok || v < 0 {
			return protocol.ErrBadValue
		}
		newchan := make(chan *protocol.Message, v)
		s.Lock()
		s.recvQLen = v
		oldchan := s.recvq
		s.recvq = newchan
		s.Unlock()
		for {
			var m *protocol.Message
			select {
			case m = <-oldchan:
			default:
			}
			if m == nil {
				break
			}
			select {
			case newchan <- m:
			default:
				m2 := <-newchan
				newchan <- m
				m2.Free()
			}
		}
		return nil
	}
	return protocol.ErrBadOption
}

func (s *socket) GetOption(name string) (interface{}, error) {
	switch name {
	case protocol.OptionRaw:
		return true, nil
	case protocol.OptionReadQLen:
		s.Lock()
		v := s.recvQLen
		s.Unlock()
		return v, nil
	}
	return nil, protocol.ErrBadOption
}

func (s *socket) AddPipe(pp protocol.Pipe) error {
	p := &pipe{p: pp, s: s}
	s.Lock()
	defer s.Unlock()
	if s.closed {
		return protocol.ErrClosed
	}
	go p.receiver()
	return nil
}

func (s *socket) RemovePipe(pp protocol.Pipe) {}

func (s *socket) OpenContext() (protocol.Context, error) {
	return nil, protocol.ErrProtoOp
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
	close(s.closeq)
	return nil
}

// receiver pumps pp's blocking RecvMsg into the socket's shared receive
// queue, dropping the oldest buffered message to make room for a new one
// when the queue is full (spec §4.6: SUB favours freshness over
// completeness when the reader falls behind).
func (p *pipe) receiver() {
	for {
		m := p.p.RecvMsg()
		if m == nil {
			break
		}
		select {
		case p.s.recvq <- m:
		case <-p.s.closeq:
			m.Free()
			return
		default:
			select {
			case m2 := <-p.s.recvq:
				m2.Free()
			default:
			}
			select {
			case p.s.recvq <- m:
			default:
				m.Free()
			}
		}
	}
}

// NewProtocol returns a new protocol implementation.
func NewProtocol() protocol.Protocol {
	return &socket{
		closeq:   make(chan struct{}),
		recvq:    make(chan *protocol.Message, defaultQLen),
		recvQLen: defaultQLen,
	}
}

// NewSocket allocates a raw Socket using the SUB protocol.
func NewSocket() (protocol.Socket, error) {
	return protocol.MakeSocket(NewProtocol())
}
