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

// Package strategy implements the reusable pipe-set strategies of spec
// §4.5 (lb, fq, excl, dist, priolist), factored out of the individual
// pattern packages because the spec calls them out as shared components;
// the C source (original_source/src/utils/{dist,fq,excl}.c) duplicates
// this logic per-pattern the way mangos itself would, but nothing in the
// spec's contract depends on that duplication.
package strategy

import "go.nanomsg.dev/spsock/protocol"

const maxPrio = 16

// LB load-balances sends across a priority-ordered pipe set: among pipes
// sharing the highest present priority, round-robin (spec §4.5).
type LB struct {
	buckets [maxPrio + 1][]protocol.Pipe
	cursor  [maxPrio + 1]int
	prioOf  map[uint32]int
}

// NewLB creates an empty load balancer.
func NewLB() *LB {
	return &LB{prioOf: map[uint32]int{}}
}

// Add attaches a pipe at the given send priority (spec: "taken from
// SNDPRIO at the time of pipe addition").
func (lb *LB) Add(p protocol.Pipe, prio int) {
	if prio < 1 || prio > maxPrio {
		prio = maxPrio
	}
	lb.buckets[prio] = append(lb.buckets[prio], p)
	lb.prioOf[p.ID()] = prio
}

// Remove detaches a pipe.
func (lb *LB) Remove(p protocol.Pipe) {
	prio, ok := lb.prioOf[p.ID()]
	if !ok {
		return
	}
	delete(lb.prioOf, p.ID())
	b := lb.buckets[prio]
	for i, q := range b {
		if q.ID() == p.ID() {
			lb.buckets[prio] = append(b[:i], b[i+1:]...)
			if lb.cursor[prio] > i {
				lb.cursor[prio]--
			}
			return
		}
	}
}

// Len reports how many pipes are attached.
func (lb *LB) Len() int { return len(lb.prioOf) }

// Send picks the next available pipe at the highest non-empty priority and
// enqueues m on it. Returns protocol.ErrAgain if every pipe is full or
// there are no pipes at all.
func (lb *LB) Send(m *protocol.Message) error {
	for prio := maxPrio; prio >= 1; prio-- {
		b := lb.buckets[prio]
		n := len(b)
		if n == 0 {
			continue
		}
		start := lb.cursor[prio] % n
		for i := 0; i < n; i++ {
			idx := (start + i) % n
			if err := b[idx].TrySend(m); err == nil {
				lb.cursor[prio] = (idx + 1) % n
				return nil
			}
		}
	}
	return protocol.ErrAgain
}
