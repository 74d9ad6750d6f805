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

package bus_test

import (
	"testing"
	"time"

	"go.nanomsg.dev/spsock/internal/test"
	"go.nanomsg.dev/spsock/protocol"
	"go.nanomsg.dev/spsock/protocol/bus"

	_ "go.nanomsg.dev/spsock/transport/inproc"
)

// TestBusBroadcastsToEveryoneButSender builds a 3-node mesh and checks
// that a send from one node reaches every other node exactly once, and
// never loops back to the sender.
func TestBusBroadcastsToEveryoneButSender(t *testing.T) {
	a, err := bus.NewSocket()
	test.MustSucceed(t, err)
	defer a.Close()
	b, err := bus.NewSocket()
	test.MustSucceed(t, err)
	defer b.Close()
	c, err := bus.NewSocket()
	test.MustSucceed(t, err)
	defer c.Close()

	_, err = a.Listen("inproc://bus-a")
	test.MustSucceed(t, err)
	_, err = b.Listen("inproc://bus-b")
	test.MustSucceed(t, err)
	_, err = c.Listen("inproc://bus-c")
	test.MustSucceed(t, err)

	test.MustSucceed(t, first(b.Dial("inproc://bus-a")))
	test.MustSucceed(t, first(c.Dial("inproc://bus-a")))
	test.MustSucceed(t, first(c.Dial("inproc://bus-b")))

	time.Sleep(30 * time.Millisecond)

	for _, s := range []protocol.Socket{a, b, c} {
		test.MustSucceed(t, s.SetOption(protocol.OptionRecvDeadline, 300*time.Millisecond))
	}

	test.MustSucceed(t, a.Send([]byte("from-a")))

	gotB, err := b.Recv()
	test.MustSucceed(t, err)
	if string(gotB) != "from-a" {
		t.Fatalf("b: expected from-a, got %q", gotB)
	}
	gotC, err := c.Recv()
	test.MustSucceed(t, err)
	if string(gotC) != "from-a" {
		t.Fatalf("c: expected from-a, got %q", gotC)
	}

	if _, err := a.Recv(); err != protocol.ErrRecvTimeout {
		t.Fatalf("sender should never receive its own broadcast, got %v", err)
	}
}

// TestBusRelayExcludesOriginatingPeer is the non-trivial companion to
// TestBusBroadcastsToEveryoneButSender: when a node re-broadcasts a
// message it received from a peer (rather than one it authored itself),
// the relay must still exclude that originating peer, not just fan out
// to everyone.
func TestBusRelayExcludesOriginatingPeer(t *testing.T) {
	a, err := bus.NewSocket()
	test.MustSucceed(t, err)
	defer a.Close()
	b, err := bus.NewSocket()
	test.MustSucceed(t, err)
	defer b.Close()
	c, err := bus.NewSocket()
	test.MustSucceed(t, err)
	defer c.Close()

	_, err = a.Listen("inproc://bus-relay-a")
	test.MustSucceed(t, err)
	_, err = b.Listen("inproc://bus-relay-b")
	test.MustSucceed(t, err)
	_, err = c.Listen("inproc://bus-relay-c")
	test.MustSucceed(t, err)

	test.MustSucceed(t, first(b.Dial("inproc://bus-relay-a")))
	test.MustSucceed(t, first(c.Dial("inproc://bus-relay-a")))
	test.MustSucceed(t, first(c.Dial("inproc://bus-relay-b")))

	time.Sleep(30 * time.Millisecond)

	for _, s := range []protocol.Socket{a, b, c} {
		test.MustSucceed(t, s.SetOption(protocol.OptionRecvDeadline, 300*time.Millisecond))
	}

	test.MustSucceed(t, a.Send([]byte("relay-me")))

	// b receives the message via RecvMsg (not Recv) so the originating
	// pipe stamped by the transport survives, then relays that same
	// Message back out through its own SendMsg.
	m, err := b.RecvMsg()
	test.MustSucceed(t, err)
	if string(m.Body) != "relay-me" {
		t.Fatalf("b: expected relay-me, got %q", m.Body)
	}
	if m.Pipe == nil {
		t.Fatalf("b: expected the received message to carry its originating pipe")
	}
	test.MustSucceed(t, b.SendMsg(m))

	gotC, err := c.Recv()
	test.MustSucceed(t, err)
	if string(gotC) != "relay-me" {
		t.Fatalf("c: expected relay-me via b's relay, got %q", gotC)
	}

	// a must not see its own message come back around through b's relay.
	if _, err := a.Recv(); err != protocol.ErrRecvTimeout {
		t.Fatalf("a: relayed message must not be echoed back to its origin, got %v", err)
	}
}

func first(_ int, err error) error { return err }
