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

// Package trie implements the memory-efficient patricia trie SUB uses to
// match published topics against subscribed prefixes (spec §4.7), ported
// from original_source/src/patterns/pubsub/trie.c's sp_trie. The packed
// sparse/dense child-pointer arrays of the C struct are reexpressed here
// as plain Go slices; the node-splitting and compaction algorithm is the
// same.
package trie

// PrefixMax bounds how many bytes of edge label one node stores before
// chaining to another node.
const PrefixMax = 10

// SparseMax bounds how many children a sparse node holds before it
// converts to dense.
const SparseMax = 8

type node struct {
	refcount  uint32
	prefix    []byte
	dense     bool
	// sparse mode
	schars    []byte
	schildren []*node
	// dense mode: children[c-min] for min <= c <= max
	min, max byte
	children []*node
}

func (n *node) hasSubscribers() bool { return n.refcount > 0 }

// childCount returns how many child slots this node currently has.
func (n *node) childCount() int {
	if n.dense {
		return len(n.children)
	}
	return len(n.schildren)
}

func (n *node) childAt(i int) *node {
	if n.dense {
		return n.children[i]
	}
	return n.schildren[i]
}

func (n *node) setChildAt(i int, c *node) {
	if n.dense {
		n.children[i] = c
	} else {
		n.schildren[i] = c
	}
}

// next finds the child reached by byte c, or nil.
func (n *node) next(c byte) *node {
	if n.dense {
		if c < n.min || c > n.max {
			return nil
		}
		return n.children[c-n.min]
	}
	for i, sc := range n.schars {
		if sc == c {
			return n.schildren[i]
		}
	}
	return nil
}

// checkPrefix returns how many leading bytes of data match n's stored
// prefix.
func (n *node) checkPrefix(data []byte) int {
	i := 0
	for i < len(n.prefix) && i < len(data) && n.prefix[i] == data[i] {
		i++
	}
	return i
}

// Trie is a patricia trie over subscribed byte-string prefixes.
type Trie struct {
	root *node
}

// Subscribe adds data as a subscribed prefix, returning true iff this is
// its first subscription (refcount was 0).
func (t *Trie) Subscribe(data []byte) bool {
	np := &t.root
	for {
		n := *np
		if n == nil {
			break
		}
		pos := n.checkPrefix(data)
		data = data[pos:]
		if pos < len(n.prefix) {
			splitNode(np, pos)
			n = *np
		}
		if len(data) == 0 {
			n.refcount++
			return n.refcount == 1
		}
		nx := n.next(data[0])
		if nx == nil {
			addChild(np, data[0])
			np = childSlot(*np, data[0])
			data = data[1:]
			break
		}
		np = childSlotPtr(n, data[0])
		data = data[1:]
	}
	// Create a chain of new nodes for the remaining bytes.
	for {
		n := &node{}
		chunk := data
		more := len(chunk) > PrefixMax
		if more {
			chunk = chunk[:PrefixMax]
		}
		n.prefix = append([]byte(nil), chunk...)
		data = data[len(chunk):]
		*np = n
		if !more {
			n.refcount++
			return n.refcount == 1
		}
		n.schars = []byte{data[0]}
		n.schildren = []*node{nil}
		np = &n.schildren[0]
		data = data[1:]
	}
}

// childSlotPtr returns the address of the pointer leading to the child
// reached by c, used so callers can overwrite it in place.
func childSlotPtr(n *node, c byte) **node {
	if n.dense {
		return &n.children[c-n.min]
	}
	for i, sc := range n.schars {
		if sc == c {
			return &n.schildren[i]
		}
	}
	return nil
}

func childSlot(n *node, c byte) **node {
	return childSlotPtr(n, c)
}

// splitNode splits *np at position pos of its prefix, inserting an
// intermediate node holding the common prefix (sp_trie_subscribe's step 2).
func splitNode(np **node, pos int) {
	old := *np
	parent := &node{
		prefix:    append([]byte(nil), old.prefix[:pos]...),
		schars:    []byte{old.prefix[pos]},
		schildren: []*node{old},
	}
	old.prefix = append([]byte(nil), old.prefix[pos+1:]...)
	*parent.schildren[0] = *compact(old)
	// compact may have mutated old in place; nothing further to do since
	// we copied old's fields by value into *old above via compact().
	*np = parent
}

// addChild extends *np's child array to make room for byte c (sp_trie_
// subscribe's step 3): sparse growth, sparse->dense conversion at the 9th
// child, or dense range extension.
func addChild(np **node, c byte) {
	n := *np
	if !n.dense {
		if len(n.schars) < SparseMax {
			n.schars = append(n.schars, c)
			n.schildren = append(n.schildren, nil)
			return
		}
		// Convert to dense.
		min, max := c, c
		for _, sc := range n.schars {
			if sc < min {
				min = sc
			}
			if sc > max {
				max = sc
			}
		}
		children := make([]*node, int(max-min)+1)
		for i, sc := range n.schars {
			children[sc-min] = n.schildren[i]
		}
		n.dense = true
		n.min, n.max = min, max
		n.children = children
		n.schars, n.schildren = nil, nil
		return
	}
	if c >= n.min && c <= n.max {
		return
	}
	newMin, newMax := n.min, n.max
	if c < newMin {
		newMin = c
	}
	if c > newMax {
		newMax = c
	}
	children := make([]*node, int(newMax-newMin)+1)
	copy(children[n.min-newMin:], n.children)
	n.min, n.max = newMin, newMax
	n.children = children
}

// compact merges n with its single child when possible (sp_node_compact),
// returning the (possibly different) resulting node.
func compact(n *node) *node {
	if n.hasSubscribers() {
		return n
	}
	if n.dense || len(n.schars) != 1 {
		return n
	}
	ch := n.schildren[0]
	if ch == nil || len(n.prefix)+1+len(ch.prefix) > PrefixMax {
		return n
	}
	merged := append(append(append([]byte(nil), n.prefix...), n.schars[0]), ch.prefix...)
	ch.prefix = merged
	return ch
}

// Unsubscribe removes one subscription of data, returning true iff a
// subscription actually existed and was removed.
func (t *Trie) Unsubscribe(data []byte) bool {
	ok, newRoot := unsubscribe(t.root, data)
	if ok {
		t.root = newRoot
	}
	return ok
}

func unsubscribe(n *node, data []byte) (bool, *node) {
	if n == nil {
		return false, nil
	}
	pos := n.checkPrefix(data)
	if pos != len(n.prefix) {
		return false, n
	}
	data = data[pos:]
	if len(data) == 0 {
		if !n.hasSubscribers() {
			return false, n
		}
		n.refcount--
		if n.refcount == 0 {
			if n.childCount() == 0 {
				return true, nil
			}
			return true, compact(n)
		}
		return true, n
	}
	chPtr := childSlotPtr(n, data[0])
	if chPtr == nil {
		return false, n
	}
	removed, newCh := unsubscribe(*chPtr, data[1:])
	if !removed {
		return false, n
	}
	*chPtr = newCh
	if newCh != nil {
		return true, n
	}
	// The child vanished; prune this node's child-array entry for it.
	return true, pruneChild(n, data[0])
}

// pruneChild removes the (now-nil) child reached by c from n's child
// array, shrinking sparse arrays and sparse<->dense converting as needed,
// then tries to compact n with its remaining single child.
func pruneChild(n *node, c byte) *node {
	if !n.dense {
		for i, sc := range n.schars {
			if sc == c {
				n.schars = append(n.schars[:i], n.schars[i+1:]...)
				n.schildren = append(n.schildren[:i], n.schildren[i+1:]...)
				break
			}
		}
		if len(n.schars) == 0 && !n.hasSubscribers() {
			return nil
		}
		return compact(n)
	}

	// Dense: just drop the pointer: the slot becomes nil. Shrink the
	// min/max bounds when the removed byte was an edge and no other
	// child occupies that edge any more.
	n.children[c-n.min] = nil
	for n.max > n.min && n.children[n.max-n.min] == nil {
		n.max--
	}
	for n.min < n.max && n.children[0] == nil {
		n.children = n.children[1:]
		n.min++
	}
	remaining := 0
	lastIdx := -1
	for i, ch := range n.children {
		if ch != nil {
			remaining++
			lastIdx = i
		}
	}
	if remaining == 0 {
		if !n.hasSubscribers() {
			return nil
		}
		n.children = nil
		n.dense = false
		n.schars, n.schildren = nil, nil
		return n
	}
	if remaining <= SparseMax {
		schars := make([]byte, 0, remaining)
		schildren := make([]*node, 0, remaining)
		for i, ch := range n.children {
			if ch != nil {
				schars = append(schars, byte(i)+n.min)
				schildren = append(schildren, ch)
			}
		}
		n.dense = false
		n.schars, n.schildren = schars, schildren
		n.children = nil
		return compact(n)
	}
	n.children = n.children[n.min-n.min : lastIdx+1]
	return n
}

// Match reports whether some subscribed prefix is a prefix of data
// (spec §4.7, §8 testable property 2).
func (t *Trie) Match(data []byte) bool {
	n := t.root
	for {
		if n == nil {
			return false
		}
		pos := n.checkPrefix(data)
		if pos != len(n.prefix) {
			return false
		}
		data = data[pos:]
		if n.hasSubscribers() {
			return true
		}
		if len(data) == 0 {
			return false
		}
		n = n.next(data[0])
		data = data[1:]
	}
}
