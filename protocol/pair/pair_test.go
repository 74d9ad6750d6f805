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

package pair_test

import (
	"testing"
	"time"

	"go.nanomsg.dev/spsock/internal/test"
	"go.nanomsg.dev/spsock/protocol"
	"go.nanomsg.dev/spsock/protocol/pair"

	_ "go.nanomsg.dev/spsock/transport/inproc"
)

// TestPairExchange exercises PAIR's symmetric, bidirectional exchange.
func TestPairExchange(t *testing.T) {
	a, err := pair.NewSocket()
	test.MustSucceed(t, err)
	defer a.Close()
	b, err := pair.NewSocket()
	test.MustSucceed(t, err)
	defer b.Close()

	_, err = a.Listen("inproc://pair-exchange")
	test.MustSucceed(t, err)
	_, err = b.Dial("inproc://pair-exchange")
	test.MustSucceed(t, err)

	test.MustSucceed(t, a.SetOption(protocol.OptionRecvDeadline, time.Second))
	test.MustSucceed(t, b.SetOption(protocol.OptionRecvDeadline, time.Second))

	test.MustSucceed(t, a.Send([]byte("hello")))
	got, err := b.Recv()
	test.MustSucceed(t, err)
	if string(got) != "hello" {
		t.Fatalf("expected hello, got %q", got)
	}

	test.MustSucceed(t, b.Send([]byte("world")))
	got, err = a.Recv()
	test.MustSucceed(t, err)
	if string(got) != "world" {
		t.Fatalf("expected world, got %q", got)
	}
}

// TestPairIsExclusive is testable property 4: a third peer dialing into an
// already-paired socket never gets attached, and the original pair keeps
// working undisturbed.
func TestPairIsExclusive(t *testing.T) {
	a, err := pair.NewSocket()
	test.MustSucceed(t, err)
	defer a.Close()
	b, err := pair.NewSocket()
	test.MustSucceed(t, err)
	defer b.Close()
	c, err := pair.NewSocket()
	test.MustSucceed(t, err)
	defer c.Close()

	_, err = a.Listen("inproc://pair-excl")
	test.MustSucceed(t, err)
	_, err = b.Dial("inproc://pair-excl")
	test.MustSucceed(t, err)

	time.Sleep(30 * time.Millisecond)

	// c dials the same address; a already has b attached, so c's pipe
	// must be rejected by Excl.Add and closed without ever delivering.
	_, err = c.Dial("inproc://pair-excl")
	test.MustSucceed(t, err)

	test.MustSucceed(t, a.SetOption(protocol.OptionRecvDeadline, time.Second))
	test.MustSucceed(t, b.SetOption(protocol.OptionRecvDeadline, time.Second))
	test.MustSucceed(t, c.SetOption(protocol.OptionSendDeadline, 200*time.Millisecond))

	test.MustSucceed(t, b.Send([]byte("from-b")))
	got, err := a.Recv()
	test.MustSucceed(t, err)
	if string(got) != "from-b" {
		t.Fatalf("expected from-b, got %q", got)
	}

	// c was never accepted, so its send cannot be delivered anywhere and
	// must eventually time out rather than land on a.
	err = c.Send([]byte("from-c"))
	if err != nil && err != protocol.ErrSendTimeout {
		t.Fatalf("unexpected error from excluded peer send: %v", err)
	}
}
