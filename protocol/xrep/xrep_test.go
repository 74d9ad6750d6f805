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

package xrep_test

import (
	"testing"
	"time"

	"go.nanomsg.dev/spsock/internal/test"
	"go.nanomsg.dev/spsock/protocol"
	"go.nanomsg.dev/spsock/protocol/rep"
	"go.nanomsg.dev/spsock/protocol/req"
	"go.nanomsg.dev/spsock/protocol/xrep"

	_ "go.nanomsg.dev/spsock/transport/inproc"
)

// TestRepIsCookedXRepIsRaw confirms OptionRaw reports and enforces the
// cooked/raw split between the two packages sharing the REP wire format.
func TestRepIsCookedXRepIsRaw(t *testing.T) {
	test.VerifyCooked(t, rep.NewSocket)
	test.VerifyRaw(t, xrep.NewSocket)
}

// TestE5XRepRoutingStability is spec scenario E5: a raw XREP hub fans in
// two REQ peers; a reply addressed to one peer's backtrace must be
// deliverable only to that peer, never to the other, across many rounds.
func TestE5XRepRoutingStability(t *testing.T) {
	hub, err := xrep.NewSocket()
	test.MustSucceed(t, err)
	defer hub.Close()
	_, err = hub.Listen("inproc://xrep-e5")
	test.MustSucceed(t, err)

	q1, err := req.NewSocket()
	test.MustSucceed(t, err)
	defer q1.Close()
	q2, err := req.NewSocket()
	test.MustSucceed(t, err)
	defer q2.Close()

	_, err = q1.Dial("inproc://xrep-e5")
	test.MustSucceed(t, err)
	_, err = q2.Dial("inproc://xrep-e5")
	test.MustSucceed(t, err)

	test.MustSucceed(t, hub.SetOption(protocol.OptionRecvDeadline, time.Second))
	test.MustSucceed(t, q1.SetOption(protocol.OptionRecvDeadline, time.Second))
	test.MustSucceed(t, q2.SetOption(protocol.OptionRecvDeadline, time.Second))

	for round := 0; round < 10; round++ {
		test.MustSucceed(t, q1.Send([]byte("from-q1")))
		test.MustSucceed(t, q2.Send([]byte("from-q2")))

		seenQ1, seenQ2 := false, false
		for i := 0; i < 2; i++ {
			m, err := hub.RecvMsg()
			test.MustSucceed(t, err)
			switch string(m.Body) {
			case "from-q1":
				seenQ1 = true
			case "from-q2":
				seenQ2 = true
			default:
				t.Fatalf("unexpected body %q", m.Body)
			}
			// Route the reply straight back using the backtrace
			// the hub just received; the key must still name the
			// originating peer's pipe.
			reply := protocol.NewMessageFromBytes([]byte("ack-" + string(m.Body)))
			reply.Header = m.Header
			m.Header = nil
			m.Free()
			test.MustSucceed(t, hub.SendMsg(reply))
		}
		if !seenQ1 || !seenQ2 {
			t.Fatalf("round %d: expected to see both peers, q1=%v q2=%v", round, seenQ1, seenQ2)
		}

		b1, err := q1.Recv()
		test.MustSucceed(t, err)
		if string(b1) != "ack-from-q1" {
			t.Fatalf("round %d: q1 got cross-routed reply %q", round, b1)
		}
		b2, err := q2.Recv()
		test.MustSucceed(t, err)
		if string(b2) != "ack-from-q2" {
			t.Fatalf("round %d: q2 got cross-routed reply %q", round, b2)
		}
	}
}
