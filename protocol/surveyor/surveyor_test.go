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

package surveyor_test

import (
	"testing"
	"time"

	"go.nanomsg.dev/spsock/internal/test"
	"go.nanomsg.dev/spsock/protocol"
	"go.nanomsg.dev/spsock/protocol/respondent"
	"go.nanomsg.dev/spsock/protocol/surveyor"

	_ "go.nanomsg.dev/spsock/transport/inproc"
)

// TestSurveyorAndRespondentAreCooked confirms OptionRaw reports both
// sides of the survey pattern as cooked.
func TestSurveyorAndRespondentAreCooked(t *testing.T) {
	test.VerifyCooked(t, surveyor.NewSocket)
	test.VerifyCooked(t, respondent.NewSocket)
}

// TestE4SurveyorDeadline is spec scenario E4: a survey with a short
// deadline must deliver the fast respondent's answer and must not later
// surface the slow respondent's late answer once the deadline has
// elapsed.
func TestE4SurveyorDeadline(t *testing.T) {
	s, err := surveyor.NewSocket()
	test.MustSucceed(t, err)
	defer s.Close()
	_, err = s.Listen("inproc://e4")
	test.MustSucceed(t, err)

	fast, err := respondent.NewSocket()
	test.MustSucceed(t, err)
	defer fast.Close()
	slow, err := respondent.NewSocket()
	test.MustSucceed(t, err)
	defer slow.Close()

	_, err = fast.Dial("inproc://e4")
	test.MustSucceed(t, err)
	_, err = slow.Dial("inproc://e4")
	test.MustSucceed(t, err)

	time.Sleep(30 * time.Millisecond)

	test.MustSucceed(t, s.SetOption(protocol.OptionSurveyTime, 80*time.Millisecond))
	test.MustSucceed(t, fast.SetOption(protocol.OptionRecvDeadline, time.Second))
	test.MustSucceed(t, slow.SetOption(protocol.OptionRecvDeadline, time.Second))

	test.MustSucceed(t, s.Send([]byte("ping")))

	bf, err := fast.Recv()
	test.MustSucceed(t, err)
	if string(bf) != "ping" {
		t.Fatalf("expected ping, got %q", bf)
	}
	test.MustSucceed(t, fast.Send([]byte("fast-answer")))

	bs, err := slow.Recv()
	test.MustSucceed(t, err)
	if string(bs) != "ping" {
		t.Fatalf("expected ping, got %q", bs)
	}

	test.MustSucceed(t, s.SetOption(protocol.OptionRecvDeadline, time.Second))
	b, err := s.Recv()
	test.MustSucceed(t, err)
	if string(b) != "fast-answer" {
		t.Fatalf("expected fast-answer, got %q", b)
	}

	// Let the survey deadline elapse before the slow respondent answers;
	// the survey is then no longer in progress, so the surveyor must
	// report a protocol-state violation (or time out), not deliver it.
	time.Sleep(120 * time.Millisecond)
	err = slow.Send([]byte("slow-answer"))
	if err != nil && err != protocol.ErrProtoState {
		t.Fatalf("unexpected error sending stale reply: %v", err)
	}

	test.MustSucceed(t, s.SetOption(protocol.OptionRecvDeadline, 100*time.Millisecond))
	if _, err := s.Recv(); err != protocol.ErrRecvTimeout && err != protocol.ErrProtoState {
		t.Fatalf("expected no further delivery after deadline, got %v", err)
	}
}
