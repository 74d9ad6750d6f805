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
	"testing"
	"time"
)

// fakeProto is a minimal Protocol double for exercising sockbase behavior
// in isolation, without any real pipe or transport.
type fakeProto struct {
	mu      sync.Mutex
	sendErr error
	recvq   [][]byte
	recvErr error
	opts    map[string]interface{}
}

func newFakeProto() *fakeProto {
	return &fakeProto{sendErr: ErrAgain, recvErr: ErrAgain, opts: map[string]interface{}{}}
}

func (f *fakeProto) Info() Info { return Info{Self: 1, Peer: 1, SelfName: "fake", PeerName: "fake"} }
func (f *fakeProto) AddPipe(Pipe) error { return nil }
func (f *fakeProto) RemovePipe(Pipe)    {}

func (f *fakeProto) SendMsg(m *Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sendErr
}

func (f *fakeProto) RecvMsg() (*Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.recvq) == 0 {
		return nil, f.recvErr
	}
	b := f.recvq[0]
	f.recvq = f.recvq[1:]
	return NewMessageFromBytes(b), nil
}

func (f *fakeProto) SetOption(name string, value interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opts[name] = value
	return nil
}

func (f *fakeProto) GetOption(name string) (interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.opts[name]
	if !ok {
		return nil, ErrBadOption
	}
	return v, nil
}

func (f *fakeProto) queue(b []byte) {
	f.mu.Lock()
	f.recvq = append(f.recvq, b)
	f.recvErr = ErrAgain
	f.mu.Unlock()
}

func mustMakeSocket(t *testing.T, p Protocol) Socket {
	t.Helper()
	s, err := MakeSocket(p)
	if err != nil {
		t.Fatalf("unexpected MakeSocket error: %v", err)
	}
	return s
}

func TestSocketOptionDefaults(t *testing.T) {
	s := mustMakeSocket(t, newFakeProto())
	defer s.Close()

	v, err := s.GetOption(OptionLinger)
	if err != nil || v.(time.Duration) != defaultLinger {
		t.Fatalf("unexpected linger default: %v %v", v, err)
	}
	v, err = s.GetOption(OptionSendPriority)
	if err != nil || v.(int) != 8 {
		t.Fatalf("unexpected send priority default: %v %v", v, err)
	}
}

func TestSocketSetOptionValidation(t *testing.T) {
	s := mustMakeSocket(t, newFakeProto())
	defer s.Close()

	if err := s.SetOption(OptionSendPriority, 0); err != ErrBadValue {
		t.Fatalf("expected ErrBadValue for priority 0, got %v", err)
	}
	if err := s.SetOption(OptionSendPriority, 17); err != ErrBadValue {
		t.Fatalf("expected ErrBadValue for priority 17, got %v", err)
	}
	if err := s.SetOption(OptionSendPriority, 5); err != nil {
		t.Fatalf("unexpected error for valid priority: %v", err)
	}
	v, _ := s.GetOption(OptionSendPriority)
	if v.(int) != 5 {
		t.Fatalf("expected priority 5, got %v", v)
	}

	if err := s.SetOption(OptionReconnectTime, -time.Second); err != ErrBadValue {
		t.Fatalf("expected ErrBadValue for negative reconnect time, got %v", err)
	}
}

func TestSocketSetOptionDelegatesToProtocol(t *testing.T) {
	fp := newFakeProto()
	s := mustMakeSocket(t, fp)
	defer s.Close()

	if err := s.SetOption("CUSTOM", 42); err != nil {
		t.Fatalf("unexpected error delegating to protocol: %v", err)
	}
	v, err := s.GetOption("CUSTOM")
	if err != nil || v.(int) != 42 {
		t.Fatalf("expected protocol-level option round trip, got %v %v", v, err)
	}
}

func TestSocketRawOptionIsReadOnly(t *testing.T) {
	s := mustMakeSocket(t, newFakeProto())
	defer s.Close()
	if err := s.SetOption(OptionRaw, true); err != ErrBadOption {
		t.Fatalf("expected ErrBadOption setting RAW, got %v", err)
	}
}

func TestSocketSendRecvRoundTrip(t *testing.T) {
	fp := newFakeProto()
	fp.sendErr = nil
	s := mustMakeSocket(t, fp)
	defer s.Close()

	if err := s.Send([]byte("hi")); err != nil {
		t.Fatalf("unexpected send error: %v", err)
	}

	fp.queue([]byte("pong"))
	b, err := s.Recv()
	if err != nil {
		t.Fatalf("unexpected recv error: %v", err)
	}
	if string(b) != "pong" {
		t.Fatalf("expected pong, got %q", b)
	}
}

func TestSocketSendTimeout(t *testing.T) {
	s := mustMakeSocket(t, newFakeProto()) // sendErr stays ErrAgain forever
	defer s.Close()

	if err := s.SetOption(OptionSendDeadline, 30*time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	start := time.Now()
	err := s.Send([]byte("x"))
	if err != ErrSendTimeout {
		t.Fatalf("expected ErrSendTimeout, got %v", err)
	}
	if time.Since(start) < 25*time.Millisecond {
		t.Fatalf("returned too early: %v", time.Since(start))
	}
}

func TestSocketRecvTimeout(t *testing.T) {
	s := mustMakeSocket(t, newFakeProto()) // recvErr stays ErrAgain forever
	defer s.Close()

	if err := s.SetOption(OptionRecvDeadline, 30*time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := s.Recv()
	if err != ErrRecvTimeout {
		t.Fatalf("expected ErrRecvTimeout, got %v", err)
	}
}

func TestSocketRecvUnblocksWhenDataArrives(t *testing.T) {
	fp := newFakeProto()
	s := mustMakeSocket(t, fp)
	defer s.Close()

	done := make(chan struct{})
	var gotErr error
	var got []byte
	go func() {
		got, gotErr = s.Recv()
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	fp.queue([]byte("late"))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Recv did not unblock in time")
	}
	if gotErr != nil || string(got) != "late" {
		t.Fatalf("unexpected result: %q %v", got, gotErr)
	}
}

func TestSocketCloseIsIdempotent(t *testing.T) {
	s := mustMakeSocket(t, newFakeProto())
	if err := s.Close(); err != nil {
		t.Fatalf("unexpected error on first close: %v", err)
	}
	if err := s.Close(); err != ErrClosed {
		t.Fatalf("expected ErrClosed on second close, got %v", err)
	}
}

func TestSocketSendRecvAfterCloseFails(t *testing.T) {
	s := mustMakeSocket(t, newFakeProto())
	s.Close()
	if err := s.Send([]byte("x")); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, err := s.Recv(); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

// TestTermWakesBlockedCalls is testable property 7: after Term(), every
// blocked Send/Recv on every live socket returns ErrTerminated.
func TestTermWakesBlockedCalls(t *testing.T) {
	s := mustMakeSocket(t, newFakeProto())
	defer s.Close()

	done := make(chan error, 1)
	go func() {
		_, err := s.Recv()
		done <- err
	}()

	time.Sleep(5 * time.Millisecond)
	Term()

	select {
	case err := <-done:
		if err != ErrTerminated {
			t.Fatalf("expected ErrTerminated, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("blocked Recv did not wake after Term()")
	}
}

func TestSendFDReportsErrBadOptionForNoSendProtocol(t *testing.T) {
	s := mustMakeSocket(t, &noSendFakeProto{fakeProto: *newFakeProto()})
	defer s.Close()
	if _, err := s.GetOption(OptionSendFD); err != ErrBadOption {
		t.Fatalf("expected ErrBadOption for SNDFD on a no-send protocol, got %v", err)
	}
}

type noSendFakeProto struct {
	fakeProto
}

func (*noSendFakeProto) NoSend() {}
