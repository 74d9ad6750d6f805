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

import (
	"sync"
)

// Pipe is the handle a Protocol implementation is given for each attached
// transport endpoint (spec §4.2). RecvMsg blocks and returns nil on close,
// following the teacher's own shape (xsub.go's pipe.receiver loop); TrySend
// and TryRecv are non-blocking so multi-pipe strategies (lb/fq/dist) can
// treat a full or empty queue exactly like the C source's "Release" bit:
// back off until the pipe's pump goroutine makes progress, at which point
// the Try* call succeeds again. There is deliberately no separate
// in(pipe)/out(pipe) callback pair: the bounded channels behind
// TrySend/TryRecv already carry that readiness signal, one level more
// composable than the C callback pair they replace.
type Pipe interface {
	// ID is a socket-unique, non-zero identifier assigned when the pipe
	// was added; XREP uses the low 31 bits of this as its routing key.
	ID() uint32

	// Address is the endpoint address this pipe is attached to.
	Address() string

	// TrySend enqueues a message for delivery without blocking. Returns
	// ErrAgain if the outbound queue is full.
	TrySend(*Message) error

	// RecvMsg blocks until a message arrives or the pipe closes, in
	// which case it returns nil.
	RecvMsg() *Message

	// TryRecv returns the next already-buffered message without
	// blocking. Returns ErrAgain if none is available yet, ErrClosed
	// once the pipe has closed and its buffer is drained.
	TryRecv() (*Message, error)

	// Close tears down the pipe and its underlying transport connection.
	Close() error

	// GetOption queries a transport-pipe-level option (e.g. remote
	// address details); unknown names return ErrBadOption.
	GetOption(name string) (interface{}, error)
}

// TransportPipe is the contract a transport must satisfy for its
// connections to be wrapped into a Pipe (spec §4.2's pipe contract, the
// interface the core demands from the external transport collaborator).
type TransportPipe interface {
	// SendMsg performs one blocking, FIFO-ordered send.
	SendMsg(*Message) error
	// RecvMsg performs one blocking, FIFO-ordered receive.
	RecvMsg() (*Message, error)
	Close() error
	Address() string
	GetOption(name string) (interface{}, error)
}

const pipeQDepth = 64

// pipeImpl adapts a TransportPipe into the Pipe contract used by
// protocols: one goroutine pumps outbound messages from sendq to the
// transport, another pumps inbound messages from the transport into
// recvq, so both blocking (RecvMsg) and non-blocking (TryRecv/TrySend)
// access patterns can be served from the same underlying connection.
type pipeImpl struct {
	id uint32
	tp TransportPipe

	sendq chan *Message
	recvq chan *Message

	closeOnce sync.Once
	closed    chan struct{}
}

func newPipe(id uint32, tp TransportPipe) *pipeImpl {
	p := &pipeImpl{
		id:     id,
		tp:     tp,
		sendq:  make(chan *Message, pipeQDepth),
		recvq:  make(chan *Message, pipeQDepth),
		closed: make(chan struct{}),
	}
	go p.writer()
	go p.reader()
	return p
}

func (p *pipeImpl) ID() uint32                                { return p.id }
func (p *pipeImpl) Address() string                           { return p.tp.Address() }
func (p *pipeImpl) GetOption(name string) (interface{}, error) { return p.tp.GetOption(name) }

func (p *pipeImpl) TrySend(m *Message) error {
	select {
	case p.sendq <- m:
		return nil
	case <-p.closed:
		return ErrClosed
	default:
		return ErrAgain
	}
}

func (p *pipeImpl) RecvMsg() *Message {
	select {
	case m := <-p.recvq:
		return m
	case <-p.closed:
		select {
		case m := <-p.recvq:
			return m
		default:
			return nil
		}
	}
}

func (p *pipeImpl) TryRecv() (*Message, error) {
	select {
	case m := <-p.recvq:
		return m, nil
	default:
	}
	select {
	case <-p.closed:
		return nil, ErrClosed
	default:
		return nil, ErrAgain
	}
}

func (p *pipeImpl) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return p.tp.Close()
}

func (p *pipeImpl) writer() {
	for {
		select {
		case m := <-p.sendq:
			if err := p.tp.SendMsg(m); err != nil {
				m.Free()
				return
			}
		case <-p.closed:
			for {
				select {
				case m := <-p.sendq:
					m.Free()
				default:
					return
				}
			}
		}
	}
}

func (p *pipeImpl) reader() {
	for {
		m, err := p.tp.RecvMsg()
		if err != nil {
			p.Close()
			return
		}
		m.Pipe = p
		select {
		case p.recvq <- m:
		case <-p.closed:
			m.Free()
			return
		}
	}
}
