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

package trie

import (
	"fmt"
	"math/rand"
	"testing"
)

func TestSubscribeFirstReturnsTrue(t *testing.T) {
	var tr Trie
	if !tr.Subscribe([]byte("foo")) {
		t.Fatalf("first subscribe of a prefix should return true")
	}
	if tr.Subscribe([]byte("foo")) {
		t.Fatalf("second subscribe of the same prefix should return false")
	}
}

func TestMatchPrefix(t *testing.T) {
	var tr Trie
	tr.Subscribe([]byte("foo"))

	cases := []struct {
		topic string
		want  bool
	}{
		{"foo", true},
		{"foobar", true},
		{"foo2", true},
		{"fo", false},
		{"bar", false},
		{"", false},
	}
	for _, c := range cases {
		if got := tr.Match([]byte(c.topic)); got != c.want {
			t.Errorf("Match(%q) = %v, want %v", c.topic, got, c.want)
		}
	}
}

func TestEmptyPrefixMatchesEverything(t *testing.T) {
	var tr Trie
	tr.Subscribe([]byte(""))
	if !tr.Match([]byte("anything")) {
		t.Fatalf("empty subscription should match every topic")
	}
	if !tr.Match([]byte("")) {
		t.Fatalf("empty subscription should match the empty topic")
	}
}

func TestUnsubscribeExactRoundTrip(t *testing.T) {
	var tr Trie
	tr.Subscribe([]byte("foo"))
	if !tr.Match([]byte("foobar")) {
		t.Fatalf("expected match before unsubscribe")
	}
	if !tr.Unsubscribe([]byte("foo")) {
		t.Fatalf("unsubscribe of an existing prefix should return true")
	}
	if tr.Match([]byte("foobar")) {
		t.Fatalf("expected no match after unsubscribe")
	}
	if tr.Unsubscribe([]byte("foo")) {
		t.Fatalf("unsubscribe of a now-absent prefix should return false")
	}
}

func TestUnsubscribeNeverSubscribedFails(t *testing.T) {
	var tr Trie
	tr.Subscribe([]byte("foo"))
	if tr.Unsubscribe([]byte("bar")) {
		t.Fatalf("unsubscribing a never-subscribed prefix should return false")
	}
}

// TestSparseToDenseConversion exercises addChild's sparse->dense growth
// path (spec §4.7: sparse holds up to SparseMax=8 children before the 9th
// forces a dense array) and its mirror shrink path in pruneChild.
func TestSparseToDenseConversion(t *testing.T) {
	var tr Trie
	prefixes := make([][]byte, 0, 12)
	for i := 0; i < 12; i++ {
		p := []byte{'x', byte('a' + i)}
		prefixes = append(prefixes, p)
		if !tr.Subscribe(p) {
			t.Fatalf("subscribe %q should be first", p)
		}
	}
	for _, p := range prefixes {
		if !tr.Match(p) {
			t.Fatalf("expected match for %q", p)
		}
	}
	// Remove every other one, forcing dense->sparse shrink too.
	for i, p := range prefixes {
		if i%2 == 0 {
			if !tr.Unsubscribe(p) {
				t.Fatalf("unsubscribe %q should succeed", p)
			}
		}
	}
	for i, p := range prefixes {
		want := i%2 != 0
		if got := tr.Match(p); got != want {
			t.Errorf("after partial unsubscribe, Match(%q) = %v, want %v", p, got, want)
		}
	}
}

// TestNodeSplit exercises splitNode: two prefixes that share a partial
// common edge must both remain independently matchable.
func TestNodeSplit(t *testing.T) {
	var tr Trie
	tr.Subscribe([]byte("alpha"))
	tr.Subscribe([]byte("alter"))
	tr.Subscribe([]byte("al"))

	for _, topic := range []string{"alpha1", "alter2", "al3"} {
		if !tr.Match([]byte(topic)) {
			t.Errorf("expected match for %q", topic)
		}
	}
	if tr.Match([]byte("beta")) {
		t.Fatalf("unexpected match for unrelated topic")
	}
}

// TestChainedLongPrefix exercises the PrefixMax=10 chaining path: a
// subscription longer than one node's capacity spans several nodes.
func TestChainedLongPrefix(t *testing.T) {
	var tr Trie
	long := []byte("this-is-a-prefix-longer-than-ten-bytes")
	tr.Subscribe(long)
	if !tr.Match(append(append([]byte(nil), long...), "-suffix"...)) {
		t.Fatalf("expected match against a long chained prefix")
	}
	if tr.Match(long[:len(long)-1]) {
		t.Fatalf("shorter-than-subscribed topic must not match")
	}
}

// TestRoundTripRandom is testable property 1: for any sequence of
// subscribe/unsubscribe pairs applied in any order, the trie ends up
// matching nothing.
func TestRoundTripRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	var tr Trie

	var topics [][]byte
	for i := 0; i < 200; i++ {
		n := 1 + rng.Intn(6)
		b := make([]byte, n)
		for j := range b {
			b[j] = byte('a' + rng.Intn(4))
		}
		topics = append(topics, b)
	}

	for _, topic := range topics {
		tr.Subscribe(topic)
	}
	rng.Shuffle(len(topics), func(i, j int) { topics[i], topics[j] = topics[j], topics[i] })
	for _, topic := range topics {
		tr.Unsubscribe(topic)
	}

	probes := []string{"a", "aa", "aaaa", "b", "bbbb", "", "zzzz"}
	for _, p := range probes {
		if tr.Match([]byte(p)) {
			t.Fatalf("expected empty trie to match nothing, but matched %q", p)
		}
	}
}

// TestMonotonicity is testable property 2: match(m) is true iff some
// subscribed prefix is a prefix of m.
func TestMonotonicity(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	var tr Trie
	subs := map[string]bool{}

	for i := 0; i < 150; i++ {
		n := rng.Intn(5)
		b := make([]byte, n)
		for j := range b {
			b[j] = byte('a' + rng.Intn(3))
		}
		key := string(b)
		if rng.Intn(2) == 0 && !subs[key] {
			tr.Subscribe(b)
			subs[key] = true
		}
	}

	for i := 0; i < 500; i++ {
		n := rng.Intn(6)
		b := make([]byte, n)
		for j := range b {
			b[j] = byte('a' + rng.Intn(3))
		}
		want := false
		for p := range subs {
			if len(p) <= len(b) && string(b[:len(p)]) == p {
				want = true
				break
			}
		}
		if got := tr.Match(b); got != want {
			t.Fatalf("Match(%q) = %v, want %v (subs=%v)", b, got, want, subs)
		}
	}
}

func TestSubscribeUnsubscribeManyPreservesOthers(t *testing.T) {
	var tr Trie
	topics := make([]string, 0, 64)
	for i := 0; i < 64; i++ {
		topics = append(topics, fmt.Sprintf("topic-%02d", i))
	}
	for _, topic := range topics {
		tr.Subscribe([]byte(topic))
	}
	// Remove half.
	for i, topic := range topics {
		if i%3 == 0 {
			tr.Unsubscribe([]byte(topic))
		}
	}
	for i, topic := range topics {
		want := i%3 != 0
		if got := tr.Match([]byte(topic)); got != want {
			t.Errorf("Match(%q) = %v, want %v", topic, got, want)
		}
	}
}
