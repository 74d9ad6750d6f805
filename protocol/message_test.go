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
	"bytes"
	"testing"
)

func TestNewMessageBody(t *testing.T) {
	m := NewMessage(5)
	if len(m.Body) != 5 {
		t.Fatalf("expected body len 5, got %d", len(m.Body))
	}
	if len(m.Header) != 0 {
		t.Fatalf("expected empty header, got %d bytes", len(m.Header))
	}
	m.Free()
}

func TestNewMessageFromBytes(t *testing.T) {
	b := []byte("hello")
	m := NewMessageFromBytes(b)
	if !bytes.Equal(m.Body, b) {
		t.Fatalf("body mismatch: %v", m.Body)
	}
	m.Free()
}

func TestMessageHeaderGrowTrim(t *testing.T) {
	m := NewMessage(0)
	defer m.Free()

	h := m.MakeHeader(4)
	if len(h) != 4 {
		t.Fatalf("expected 4-byte header, got %d", len(h))
	}
	copy(h, []byte{1, 2, 3, 4})

	m.TrimHeader(2)
	if !bytes.Equal(m.Header, []byte{3, 4}) {
		t.Fatalf("expected trimmed header [3 4], got %v", m.Header)
	}

	h2 := m.MakeHeader(2)
	copy(h2[2:], []byte{5, 6})
	if !bytes.Equal(m.Header, []byte{3, 4, 5, 6}) {
		t.Fatalf("expected grown header [3 4 5 6], got %v", m.Header)
	}
}

func TestMessageTrimBody(t *testing.T) {
	m := NewMessageFromBytes([]byte{1, 2, 3, 4})
	defer m.Free()
	m.TrimBody(1)
	if !bytes.Equal(m.Body, []byte{2, 3, 4}) {
		t.Fatalf("expected [2 3 4], got %v", m.Body)
	}
}

// TestMessageDupSharesUntilMutated verifies Dup is a cheap shallow copy:
// both copies read the same bytes, and growing one copy's header does not
// perturb the other (spec §4.1's "may force a deep copy" clause).
func TestMessageDupSharesUntilMutated(t *testing.T) {
	orig := NewMessageFromBytes([]byte("payload"))
	orig.MakeHeader(2)
	copy(orig.Header, []byte{0xaa, 0xbb})

	dup := orig.Dup()

	if !bytes.Equal(dup.Body, orig.Body) {
		t.Fatalf("dup body mismatch")
	}
	if !bytes.Equal(dup.Header, orig.Header) {
		t.Fatalf("dup header mismatch")
	}

	// Growing dup's header must not retroactively change orig's.
	dup.MakeHeader(1)
	if len(orig.Header) != 2 {
		t.Fatalf("orig header mutated by dup's MakeHeader: %v", orig.Header)
	}

	orig.Free()
	dup.Free()
}

func TestMessageTrimHeaderOnUnsharedEmptyHeader(t *testing.T) {
	m := NewMessage(0)
	defer m.Free()
	// TrimHeader(0) on a message that never grew a header must not panic.
	m.TrimHeader(0)
	if len(m.Header) != 0 {
		t.Fatalf("expected empty header, got %v", m.Header)
	}
}
