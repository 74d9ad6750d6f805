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

// Dist is an unordered best-effort multicast set (spec §4.5, grounded on
// original_source/src/utils/dist.c). Send clones the message into every
// attached pipe; a pipe that is full is silently skipped for that message
// only — the call itself never fails with ErrAgain (testable property 5).
type Dist struct {
	pipes map[uint32]protocol.Pipe
	order []uint32
}

// NewDist creates an empty distributor.
func NewDist() *Dist {
	return &Dist{pipes: map[uint32]protocol.Pipe{}}
}

// Add attaches a pipe.
func (d *Dist) Add(p protocol.Pipe) {
	if _, ok := d.pipes[p.ID()]; ok {
		return
	}
	d.pipes[p.ID()] = p
	d.order = append(d.order, p.ID())
}

// Remove detaches a pipe.
func (d *Dist) Remove(p protocol.Pipe) {
	if _, ok := d.pipes[p.ID()]; !ok {
		return
	}
	delete(d.pipes, p.ID())
	for i, id := range d.order {
		if id == p.ID() {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

// Len reports how many pipes are attached.
func (d *Dist) Len() int { return len(d.pipes) }

// Send clones m into every attached pipe except those listed in exclude
// (BUS passes its receiving pipe here so it is not echoed back to itself).
// Delivery failures are dropped silently; the call always succeeds.
func (d *Dist) Send(m *protocol.Message, exclude ...uint32) {
	skip := map[uint32]bool{}
	for _, id := range exclude {
		skip[id] = true
	}
	for _, id := range d.order {
		if skip[id] {
			continue
		}
		p := d.pipes[id]
		clone := m.Dup()
		if err := p.TrySend(clone); err != nil {
			// Best-effort: the per-pipe clone is simply dropped.
			clone.Free()
		}
	}
}
