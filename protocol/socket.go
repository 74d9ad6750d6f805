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
	"math"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// drainCapacity is the size of the per-socket drain semaphore each
// endpoint takes one unit from; it is not a real limit on endpoint count.
const drainCapacity = math.MaxInt32

// Socket is the user-facing handle returned by every pattern package's
// NewSocket (spec §4.3's sockbase, seen from outside).
type Socket interface {
	Send([]byte) error
	SendMsg(*Message) error
	Recv() ([]byte, error)
	RecvMsg() (*Message, error)

	Listen(addr string) (int, error)
	Dial(addr string) (int, error)
	Shutdown(eid int) error

	Close() error

	SetOption(name string, value interface{}) error
	GetOption(name string) (interface{}, error)

	Info() Info
}

// socket is the concrete sockbase. One is created per NewSocket call by
// MakeSocket; it owns the option store, the endpoint registry, and the
// readiness efd pair, and delegates all pattern-specific behavior to proto.
type socket struct {
	mu   sync.Mutex
	proto Protocol
	info  Info

	linger        time.Duration
	sndtimeo      time.Duration
	rcvtimeo      time.Duration
	reconnectIvl  time.Duration
	reconnectMax  time.Duration
	sndPrio       int
	rcvPrio       int

	sendEfd *efd
	recvEfd *efd

	endpoints map[int]*endpoint
	nextEID   int

	closing    bool
	terminated bool

	pipeSeq uint32

	// notify is swapped out (closed + replaced) every time protocol
	// state might have changed, so blocked Send/Recv callers wake and
	// retry rather than spin. See SetNotify / wake.
	notify chan struct{}

	drain *semaphore.Weighted
}

// Waker is implemented by protocols that want to actively wake blocked
// Send/Recv callers as soon as their internal state changes (e.g. a
// message lands in a receive queue, or an outbound queue drains). It is
// optional: sockets also re-poll on a bounded fallback interval, so a
// protocol that never calls the waker is merely less prompt, not
// incorrect.
type Waker interface {
	SetWake(func())
}

// Readiness is implemented by protocols that can cheaply answer whether a
// non-blocking SendMsg/RecvMsg would currently succeed. The socket base
// uses this only to answer SNDFD/RCVFD-adjacent bookkeeping and is never
// required for correctness.
type Readiness interface {
	CanSend() bool
	CanRecv() bool
}

const wakeFallback = 20 * time.Millisecond

// MakeSocket constructs a Socket around a Protocol implementation. This is
// the single entry point every pattern package's NewSocket builds on. It
// fails with ErrTooManySockets once the process-wide table (spec §4.8) is
// full.
func MakeSocket(p Protocol) (Socket, error) {
	s := &socket{
		proto:        p,
		info:         p.Info(),
		linger:       defaultLinger,
		sndtimeo:     -1,
		rcvtimeo:     -1,
		reconnectIvl: 100 * time.Millisecond,
		reconnectMax: 0,
		sndPrio:      8,
		rcvPrio:      8,
		sendEfd:      newEfd(),
		recvEfd:      newEfd(),
		endpoints:    make(map[int]*endpoint),
		notify:       make(chan struct{}),
		drain:        semaphore.NewWeighted(drainCapacity),
		pipeSeq:      rand.Uint32() & 0x7fffffff,
	}
	if w, ok := p.(Waker); ok {
		w.SetWake(s.wake)
	}
	if err := registerSocket(s); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *socket) Info() Info { return s.info }

// wake notifies every blocked Send/Recv that protocol state may have
// changed, and refreshes the readiness efds if the protocol can report
// them (spec §4.3's event adjuster).
func (s *socket) wake() {
	s.mu.Lock()
	ch := s.notify
	s.notify = make(chan struct{})
	if r, ok := s.proto.(Readiness); ok {
		s.adjustEvents(r.CanSend(), r.CanRecv())
	}
	s.mu.Unlock()
	close(ch)
}

// adjustEvents is the sole place the readiness efds are toggled during
// normal operation (spec §4.3); callers must hold s.mu.
func (s *socket) adjustEvents(canSend, canRecv bool) {
	s.sendEfd.set(canSend)
	s.recvEfd.set(canRecv)
}

func (s *socket) nextPipeID() uint32 {
	for {
		id := (s.pipeSeq + 1) & 0x7fffffff
		s.pipeSeq = id
		if id != 0 {
			return id
		}
	}
}

func deadline(d time.Duration) (time.Time, bool) {
	if d < 0 {
		return time.Time{}, false
	}
	return time.Now().Add(d), true
}

// SendMsg implements the blocking-with-deadline loop of spec §4.3.
func (s *socket) SendMsg(m *Message) error {
	s.mu.Lock()
	timeo := s.sndtimeo
	s.mu.Unlock()
	dl, hasDL := deadline(timeo)

	for {
		s.mu.Lock()
		if s.closing {
			s.mu.Unlock()
			return ErrClosed
		}
		if s.terminated {
			s.mu.Unlock()
			return ErrTerminated
		}
		err := s.proto.SendMsg(m)
		ch := s.notify
		s.mu.Unlock()

		if err == nil {
			s.wake()
			return nil
		}
		if err != ErrAgain {
			return err
		}
		if hasDL && !time.Now().Before(dl) {
			return ErrSendTimeout
		}
		if !s.waitReady(ch, dl, hasDL) {
			return ErrSendTimeout
		}
	}
}

// RecvMsg is symmetric to SendMsg.
func (s *socket) RecvMsg() (*Message, error) {
	s.mu.Lock()
	timeo := s.rcvtimeo
	s.mu.Unlock()
	dl, hasDL := deadline(timeo)

	for {
		s.mu.Lock()
		if s.closing {
			s.mu.Unlock()
			return nil, ErrClosed
		}
		if s.terminated {
			s.mu.Unlock()
			return nil, ErrTerminated
		}
		m, err := s.proto.RecvMsg()
		ch := s.notify
		s.mu.Unlock()

		if err == nil {
			s.wake()
			return m, nil
		}
		if err != ErrAgain {
			return nil, err
		}
		if hasDL && !time.Now().Before(dl) {
			return nil, ErrRecvTimeout
		}
		if !s.waitReady(ch, dl, hasDL) {
			return nil, ErrRecvTimeout
		}
	}
}

// waitReady blocks until ch is closed (protocol state changed), the
// fallback poll interval elapses, or the deadline passes. Returns false
// only on deadline expiry.
func (s *socket) waitReady(ch chan struct{}, dl time.Time, hasDL bool) bool {
	var timer *time.Timer
	fallback := time.NewTimer(wakeFallback)
	defer fallback.Stop()
	if hasDL {
		remain := time.Until(dl)
		if remain <= 0 {
			return false
		}
		timer = time.NewTimer(remain)
		defer timer.Stop()
		select {
		case <-ch:
			return true
		case <-fallback.C:
			return true
		case <-timer.C:
			return false
		}
	}
	select {
	case <-ch:
	case <-fallback.C:
	}
	return true
}

func (s *socket) Send(b []byte) error {
	return s.SendMsg(NewMessageFromBytes(b))
}

func (s *socket) Recv() ([]byte, error) {
	m, err := s.RecvMsg()
	if err != nil {
		return nil, err
	}
	b := m.Body
	m.Body = nil
	m.Free()
	return b, nil
}

func (s *socket) SetOption(name string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch name {
	case OptionLinger:
		if v, ok := value.(time.Duration); ok {
			if err := CheckNonNegativeDuration(v); err != nil {
				return err
			}
			s.linger = v
			return nil
		}
		return ErrBadValue
	case OptionSendDeadline:
		if v, ok := value.(time.Duration); ok {
			s.sndtimeo = v
			return nil
		}
		return ErrBadValue
	case OptionRecvDeadline:
		if v, ok := value.(time.Duration); ok {
			s.rcvtimeo = v
			return nil
		}
		return ErrBadValue
	case OptionReconnectTime:
		if v, ok := value.(time.Duration); ok {
			if err := CheckNonNegativeDuration(v); err != nil {
				return err
			}
			s.reconnectIvl = v
			return nil
		}
		return ErrBadValue
	case OptionMaxReconnectTime:
		if v, ok := value.(time.Duration); ok {
			if err := CheckNonNegativeDuration(v); err != nil {
				return err
			}
			s.reconnectMax = v
			return nil
		}
		return ErrBadValue
	case OptionSendPriority:
		if v, ok := value.(int); ok {
			if err := CheckPriority(v); err != nil {
				return err
			}
			s.sndPrio = v
			if ps, ok := s.proto.(SendPrioritySetter); ok {
				ps.SetSendPriority(v)
			}
			return nil
		}
		return ErrBadValue
	case OptionRecvPriority:
		if v, ok := value.(int); ok {
			if err := CheckPriority(v); err != nil {
				return err
			}
			s.rcvPrio = v
			if ps, ok := s.proto.(RecvPrioritySetter); ok {
				ps.SetRecvPriority(v)
			}
			return nil
		}
		return ErrBadValue
	case OptionRaw:
		return ErrBadOption
	}

	return s.proto.SetOption(name, value)
}

func (s *socket) GetOption(name string) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch name {
	case OptionLinger:
		return s.linger, nil
	case OptionSendDeadline:
		return s.sndtimeo, nil
	case OptionRecvDeadline:
		return s.rcvtimeo, nil
	case OptionReconnectTime:
		return s.reconnectIvl, nil
	case OptionMaxReconnectTime:
		return s.reconnectMax, nil
	case OptionSendPriority:
		return s.sndPrio, nil
	case OptionRecvPriority:
		return s.rcvPrio, nil
	case OptionSendFD:
		if !canEverSend(s.proto) {
			return nil, ErrBadOption
		}
		return s.sendEfd.fd(), nil
	case OptionRecvFD:
		if !canEverRecv(s.proto) {
			return nil, ErrBadOption
		}
		return s.recvEfd.fd(), nil
	case OptionRaw:
		return s.info.Raw, nil
	}

	return s.proto.GetOption(name)
}

// canEverSend/canEverRecv give NoSend/NoRecv-marked protocols (pull-only,
// push-only, ...) the static ENOPROTOOPT answer SNDFD/RCVFD report for a
// socket that can never perform that direction at all (spec §4.3).
func canEverSend(p Protocol) bool {
	_, no := p.(noSender)
	return !no
}

func canEverRecv(p Protocol) bool {
	_, no := p.(noReceiver)
	return !no
}

type noSender interface{ NoSend() }
type noReceiver interface{ NoRecv() }

// Close implements spec §4.3's destroy(): idempotent, signals zombie-like
// shutdown for this one socket, asks every endpoint to shut down, and
// releases the protocol. It does not wait for endpoint teardown to finish
// (see the drain acquire below).
func (s *socket) Close() error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return ErrClosed
	}
	s.closing = true
	linger := s.linger
	eps := make([]*endpoint, 0, len(s.endpoints))
	for _, ep := range s.endpoints {
		eps = append(eps, ep)
	}
	s.mu.Unlock()

	s.sendEfd.close()
	s.recvEfd.close()
	unregisterSocket(s)

	for _, ep := range eps {
		ep.shutdown()
	}

	ctx := context.Background()
	if linger > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, linger)
		defer cancel()
	}
	// Takes one drain unit per endpoint out of drainCapacity. The units
	// still held by live endpoints are far fewer than that capacity, so
	// this acquire succeeds at once instead of waiting for them to be
	// released, and LINGER does not lengthen Close.
	_ = s.drain.Acquire(ctx, int64(len(eps)))

	if c, ok := s.proto.(Closer); ok {
		return c.Close()
	}
	return nil
}
