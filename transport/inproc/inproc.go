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

// Package inproc implements the "inproc://" transport: same-process
// rendezvous with no serialization, used both for testing and for wiring
// sockets together within one binary (spec §6, §9). The original C
// implementation's connect/accept rendezvous left some paths as
// nn_assert(0) placeholders; this package resolves that open question as
// "a bind accepts every connect made against its address, in arrival
// order, for as long as it stays bound; a connect made before any bind
// exists fails immediately and is retried by the caller's own reconnect
// schedule" (spec §9).
package inproc

import (
	"strings"
	"sync"

	"go.nanomsg.dev/spsock/protocol"
	"go.nanomsg.dev/spsock/transport"
)

func init() {
	transport.Register(transportImpl{})
}

var (
	mu       sync.Mutex
	bindings = map[string]*listener{}
)

const acceptQueueDepth = 64

type transportImpl struct{}

func (transportImpl) Scheme() string { return "inproc" }

func (transportImpl) NewDialer(addr string, self protocol.Info) (protocol.Dialer, error) {
	return &dialer{addr: trimScheme(addr)}, nil
}

func (transportImpl) NewListener(addr string, self protocol.Info) (protocol.Listener, error) {
	return &listener{
		addr:   trimScheme(addr),
		accept: make(chan *pipeHalf, acceptQueueDepth),
		closed: make(chan struct{}),
	}, nil
}

func trimScheme(addr string) string {
	return strings.TrimPrefix(addr, "inproc://")
}

// listener holds the bind side of zero or more rendezvoused pipes.
type listener struct {
	addr      string
	accept    chan *pipeHalf
	closed    chan struct{}
	closeOnce sync.Once
}

func (l *listener) Listen() error {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := bindings[l.addr]; dup {
		return protocol.ErrAddrInUse
	}
	bindings[l.addr] = l
	return nil
}

func (l *listener) Accept() (protocol.TransportPipe, error) {
	select {
	case p := <-l.accept:
		return p, nil
	case <-l.closed:
		return nil, protocol.ErrClosed
	}
}

func (l *listener) Close() error {
	l.closeOnce.Do(func() {
		mu.Lock()
		if bindings[l.addr] == l {
			delete(bindings, l.addr)
		}
		mu.Unlock()
		close(l.closed)
	})
	return nil
}

func (l *listener) Address() string { return "inproc://" + l.addr }

// dialer is the connect side; each Dial call rendezvouses with whatever
// listener currently holds l.addr, or fails immediately if none does.
type dialer struct {
	addr string
}

func (d *dialer) Dial() (protocol.TransportPipe, error) {
	mu.Lock()
	l, ok := bindings[d.addr]
	mu.Unlock()
	if !ok {
		return nil, protocol.ErrClosedConn
	}
	near, far := newPipePair(d.addr)
	select {
	case l.accept <- far:
		return near, nil
	case <-l.closed:
		return nil, protocol.ErrClosedConn
	}
}

func (d *dialer) Address() string { return "inproc://" + d.addr }

// pairState is shared by both halves of a rendezvoused pipe so that
// either side closing tears down the whole connection, the same way a
// real duplex socket would.
type pairState struct {
	closed    chan struct{}
	closeOnce sync.Once
}

func (s *pairState) close() { s.closeOnce.Do(func() { close(s.closed) }) }

// pipeHalf is one side's protocol.TransportPipe view of an inproc
// connection: it writes to one channel and reads from the other, with its
// peer holding the opposite pairing.
type pipeHalf struct {
	addr  string
	send  chan *protocol.Message
	recv  chan *protocol.Message
	state *pairState
}

func newPipePair(addr string) (near, far *pipeHalf) {
	ab := make(chan *protocol.Message, acceptQueueDepth)
	ba := make(chan *protocol.Message, acceptQueueDepth)
	st := &pairState{closed: make(chan struct{})}
	near = &pipeHalf{addr: addr, send: ab, recv: ba, state: st}
	far = &pipeHalf{addr: addr, send: ba, recv: ab, state: st}
	return near, far
}

func (p *pipeHalf) SendMsg(m *protocol.Message) error {
	select {
	case p.send <- m:
		return nil
	case <-p.state.closed:
		return protocol.ErrClosedConn
	}
}

func (p *pipeHalf) RecvMsg() (*protocol.Message, error) {
	select {
	case m := <-p.recv:
		return m, nil
	case <-p.state.closed:
		return nil, protocol.ErrClosedConn
	}
}

func (p *pipeHalf) Close() error {
	p.state.close()
	return nil
}

func (p *pipeHalf) Address() string { return "inproc://" + p.addr }

func (p *pipeHalf) GetOption(name string) (interface{}, error) {
	return nil, protocol.ErrBadOption
}
