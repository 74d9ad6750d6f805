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
	"context"
	"encoding/binary"
	"strings"
	"sync"
	"time"
)

// handshakeTimeout bounds the protocol-header exchange (spec §6).
const handshakeTimeout = 1000 * time.Millisecond

// endpoint is a bind or connect endpoint (spec §3): a bind endpoint may
// accept many pipes, a connect endpoint owns at most one at a time and
// reconnects after loss.
type endpoint struct {
	id   int
	addr string
	sock *socket

	stop chan struct{}
	wg   sync.WaitGroup

	listener Listener
	dialer   Dialer
}

// Listener and Dialer mirror transport.Listener/Dialer exactly (the
// transport package defines its own Listener/Dialer as aliases of these),
// so protocol need not import the transport package to be handed one.
type Listener interface {
	Listen() error
	Accept() (TransportPipe, error)
	Close() error
	Address() string
}

type Dialer interface {
	Dial() (TransportPipe, error)
	Address() string
}

// TransportFactory resolves a scheme ("inproc", "tcp", ...) to dialer/
// listener constructors. Implemented by the transport package's registry
// so protocol need not import it directly.
type TransportFactory interface {
	Scheme() string
	NewDialer(addr string, self Info) (Dialer, error)
	NewListener(addr string, self Info) (Listener, error)
}

var lookupTransport func(scheme string) TransportFactory

// SetTransportLookup is called once (by the transport package's init) to
// wire the registry into the socket core.
func SetTransportLookup(f func(scheme string) TransportFactory) {
	lookupTransport = f
}

func schemeOf(addr string) string {
	if i := strings.Index(addr, "://"); i >= 0 {
		return addr[:i]
	}
	return ""
}

func (s *socket) transportFor(addr string) (TransportFactory, error) {
	if len(addr) > 128 {
		return nil, ErrAddrTooLong
	}
	scheme := schemeOf(addr)
	if scheme == "" || lookupTransport == nil {
		return nil, ErrAddrInvalid
	}
	t := lookupTransport(scheme)
	if t == nil {
		return nil, ErrBadTran
	}
	return t, nil
}

func (s *socket) newEndpoint(addr string) *endpoint {
	s.mu.Lock()
	s.nextEID++
	id := s.nextEID
	ep := &endpoint{id: id, addr: addr, sock: s, stop: make(chan struct{})}
	s.endpoints[id] = ep
	s.mu.Unlock()
	s.drain.Acquire(context.Background(), 1)
	return ep
}

func (s *socket) dropEndpoint(ep *endpoint) {
	s.mu.Lock()
	delete(s.endpoints, ep.id)
	s.mu.Unlock()
	s.drain.Release(1)
}

// Listen binds addr and accepts pipes from it until Shutdown or Close.
func (s *socket) Listen(addr string) (int, error) {
	t, err := s.transportFor(addr)
	if err != nil {
		return 0, err
	}
	l, err := t.NewListener(addr, s.info)
	if err != nil {
		return 0, err
	}
	if err := l.Listen(); err != nil {
		return 0, err
	}
	ep := s.newEndpoint(addr)
	ep.listener = l
	ep.wg.Add(1)
	go s.acceptLoop(ep)
	return ep.id, nil
}

func (s *socket) acceptLoop(ep *endpoint) {
	defer ep.wg.Done()
	defer s.dropEndpoint(ep)
	for {
		tp, err := ep.listener.Accept()
		if err != nil {
			select {
			case <-ep.stop:
				return
			default:
				continue
			}
		}
		ep.wg.Add(1)
		go s.servePipe(ep, tp)
	}
}

// Dial connects to addr, reconnecting on the configured backoff schedule
// whenever the single owned pipe is lost (spec §3, §6 reconnect_ivl).
func (s *socket) Dial(addr string) (int, error) {
	t, err := s.transportFor(addr)
	if err != nil {
		return 0, err
	}
	d, err := t.NewDialer(addr, s.info)
	if err != nil {
		return 0, err
	}
	ep := s.newEndpoint(addr)
	ep.dialer = d
	ep.wg.Add(1)
	go s.dialLoop(ep)
	return ep.id, nil
}

func (s *socket) dialLoop(ep *endpoint) {
	defer ep.wg.Done()
	defer s.dropEndpoint(ep)

	backoff := s.reconnectIvl
	for {
		select {
		case <-ep.stop:
			return
		default:
		}
		tp, err := ep.dialer.Dial()
		if err != nil {
			select {
			case <-ep.stop:
				return
			case <-time.After(backoff):
			}
			if s.reconnectMax > 0 && backoff < s.reconnectMax {
				backoff *= 2
				if backoff > s.reconnectMax {
					backoff = s.reconnectMax
				}
			}
			continue
		}
		backoff = s.reconnectIvl
		s.servePipe(ep, tp)
		select {
		case <-ep.stop:
			return
		default:
		}
	}
}

// servePipe validates peer compatibility, attaches the pipe to the
// protocol, and blocks until it is torn down.
func (s *socket) servePipe(ep *endpoint, tp TransportPipe) {
	if ep.listener != nil {
		defer ep.wg.Done()
	}

	peer, err := handshake(tp, s.info.Self)
	if err != nil || !s.acceptablePeer(peer) {
		tp.Close()
		return
	}

	s.mu.Lock()
	id := s.nextPipeID()
	s.mu.Unlock()
	p := newPipe(id, tp)

	if err := s.proto.AddPipe(p); err != nil {
		p.Close()
		return
	}
	s.wake()

	<-p.closed
	s.proto.RemovePipe(p)
	s.wake()
}

// handshake exchanges the 8-byte header "00 00 'SP' 00 00 PP PP" (spec §6)
// over tp and returns the peer's protocol id. Either side's header carries
// its own local protocol id; a read/write failure or timeout closes the
// connection via the returned error.
func handshake(tp TransportPipe, self uint16) (uint16, error) {
	out := make([]byte, 8)
	out[2], out[3] = 'S', 'P'
	binary.BigEndian.PutUint16(out[6:8], self)

	done := make(chan error, 1)
	in := make([]byte, 8)
	go func() {
		m := NewMessageFromBytes(out)
		if err := tp.SendMsg(m); err != nil {
			done <- err
			return
		}
		rm, err := tp.RecvMsg()
		if err != nil {
			done <- err
			return
		}
		defer rm.Free()
		if len(rm.Body) != 8 || rm.Body[2] != 'S' || rm.Body[3] != 'P' {
			done <- ErrGarbled
			return
		}
		copy(in, rm.Body)
		done <- nil
	}()

	select {
	case err := <-done:
		if err != nil {
			return 0, err
		}
		return binary.BigEndian.Uint16(in[6:8]), nil
	case <-time.After(handshakeTimeout):
		return 0, ErrRecvTimeout
	}
}

func (s *socket) acceptablePeer(peer uint16) bool {
	if !IsPeer(s.info.Self, peer) {
		return false
	}
	if pc, ok := s.proto.(PeerChecker); ok {
		return pc.IsPeer(peer)
	}
	return peer == s.info.Peer
}

// Shutdown asks one endpoint to terminate; teardown may finish
// asynchronously (spec §3).
func (s *socket) Shutdown(eid int) error {
	s.mu.Lock()
	ep, ok := s.endpoints[eid]
	s.mu.Unlock()
	if !ok {
		return ErrBadValue
	}
	ep.shutdown()
	return nil
}

func (ep *endpoint) shutdown() {
	select {
	case <-ep.stop:
		return
	default:
		close(ep.stop)
	}
	if ep.listener != nil {
		ep.listener.Close()
	}
}
