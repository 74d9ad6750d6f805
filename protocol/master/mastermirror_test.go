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

package master_test

import (
	"testing"
	"time"

	"go.nanomsg.dev/spsock/internal/test"
	"go.nanomsg.dev/spsock/protocol"
	"go.nanomsg.dev/spsock/protocol/master"
	"go.nanomsg.dev/spsock/protocol/mirror"

	_ "go.nanomsg.dev/spsock/transport/inproc"
)

// TestMirrorGetsCachedStateOnLateConnect and
// TestMasterSkipsBroadcastOnIdenticalBytes together cover the
// MASTER/MIRROR state-replication pattern's two defining behaviors:
// a newly attached MIRROR is caught up with the last published state, and
// republishing identical bytes is a silent no-op rather than a duplicate
// broadcast.
func TestMirrorGetsCachedStateOnLateConnect(t *testing.T) {
	m, err := master.NewSocket()
	test.MustSucceed(t, err)
	defer m.Close()
	_, err = m.Listen("inproc://master-late")
	test.MustSucceed(t, err)

	// Publish before any mirror has connected; nothing is listening yet,
	// but the state is still cached for whoever joins next.
	test.MustSucceed(t, m.Send([]byte("v1")))

	mr, err := mirror.NewSocket()
	test.MustSucceed(t, err)
	defer mr.Close()
	_, err = mr.Dial("inproc://master-late")
	test.MustSucceed(t, err)

	test.MustSucceed(t, mr.SetOption(protocol.OptionRecvDeadline, time.Second))
	b, err := mr.Recv()
	test.MustSucceed(t, err)
	if string(b) != "v1" {
		t.Fatalf("expected cached state v1 on connect, got %q", b)
	}
}

func TestMasterSkipsBroadcastOnIdenticalBytes(t *testing.T) {
	m, err := master.NewSocket()
	test.MustSucceed(t, err)
	defer m.Close()
	_, err = m.Listen("inproc://master-dedup")
	test.MustSucceed(t, err)

	mr, err := mirror.NewSocket()
	test.MustSucceed(t, err)
	defer mr.Close()
	_, err = mr.Dial("inproc://master-dedup")
	test.MustSucceed(t, err)

	time.Sleep(30 * time.Millisecond)
	test.MustSucceed(t, mr.SetOption(protocol.OptionRecvDeadline, time.Second))

	test.MustSucceed(t, m.Send([]byte("state-1")))
	b, err := mr.Recv()
	test.MustSucceed(t, err)
	if string(b) != "state-1" {
		t.Fatalf("expected state-1, got %q", b)
	}

	// Resending identical bytes must not produce a second delivery.
	test.MustSucceed(t, m.Send([]byte("state-1")))

	// A genuinely new state must still go through.
	test.MustSucceed(t, m.Send([]byte("state-2")))

	b, err = mr.Recv()
	test.MustSucceed(t, err)
	if string(b) != "state-2" {
		t.Fatalf("expected state-2 as the next delivered message (no duplicate of state-1), got %q", b)
	}
}
