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

package strategy

import "go.nanomsg.dev/spsock/protocol"

// FQ fair-queues receives across a priority-ordered pipe set: round-robin
// among pipes of equal (highest present) priority (spec §4.5). If a pipe's
// TryRecv reports protocol.ErrClosed it is dropped from the set, matching
// "if the underlying pipe's recv returns Release, the pipe is removed
// until next in(pipe)" — here there is no separate in(pipe) re-offer, a
// closed pipe simply never un-closes.
type FQ struct {
	buckets [maxPrio + 1][]protocol.Pipe
	cursor  [maxPrio + 1]int
	prioOf  map[uint32]int
}

// NewFQ creates an empty fair queue.
func NewFQ() *FQ {
	return &FQ{prioOf: map[uint32]int{}}
}

// Add attaches a pipe at the given receive priority.
func (fq *FQ) Add(p protocol.Pipe, prio int) {
	if prio < 1 || prio > maxPrio {
		prio = maxPrio
	}
	fq.buckets[prio] = append(fq.buckets[prio], p)
	fq.prioOf[p.ID()] = prio
}

// Remove detaches a pipe.
func (fq *FQ) Remove(p protocol.Pipe) {
	prio, ok := fq.prioOf[p.ID()]
	if !ok {
		return
	}
	delete(fq.prioOf, p.ID())
	b := fq.buckets[prio]
	for i, q := range b {
		if q.ID() == p.ID() {
			fq.buckets[prio] = append(b[:i], b[i+1:]...)
			if fq.cursor[prio] > i {
				fq.cursor[prio]--
			}
			return
		}
	}
}

// Len reports how many pipes are attached.
func (fq *FQ) Len() int { return len(fq.prioOf) }

// Recv returns the next available message, scanning highest priority
// first and round-robining within a priority level.
func (fq *FQ) Recv() (*protocol.Message, error) {
	for prio := maxPrio; prio >= 1; prio-- {
		b := fq.buckets[prio]
		n := len(b)
		if n == 0 {
			continue
		}
		start := fq.cursor[prio] % n
		for i := 0; i < n; i++ {
			idx := (start + i) % n
			m, err := b[idx].TryRecv()
			switch err {
			case nil:
				fq.cursor[prio] = (idx + 1) % n
				return m, nil
			case protocol.ErrClosed:
				fq.Remove(b[idx])
				return fq.Recv()
			}
		}
	}
	return nil, protocol.ErrAgain
}
