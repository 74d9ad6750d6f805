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

// Excl holds at most one pipe at a time, rejecting any further Add with
// protocol.ErrPipeFull (spec §4.5, grounded on
// original_source/src/utils/excl.c's sp_excl). Used by the single-peer
// patterns PAIR, SOURCE, MIRROR and XRESPONDENT.
type Excl struct {
	pipe protocol.Pipe
}

// Add attaches p, or returns protocol.ErrPipeFull if a pipe is already
// attached.
func (e *Excl) Add(p protocol.Pipe) error {
	if e.pipe != nil {
		return protocol.ErrPipeFull
	}
	e.pipe = p
	return nil
}

// Remove detaches p if it is the current pipe.
func (e *Excl) Remove(p protocol.Pipe) {
	if e.pipe != nil && e.pipe.ID() == p.ID() {
		e.pipe = nil
	}
}

// Pipe returns the current pipe, or nil.
func (e *Excl) Pipe() protocol.Pipe { return e.pipe }

// Send forwards to the current pipe, or reports ErrAgain if there is none.
func (e *Excl) Send(m *protocol.Message) error {
	if e.pipe == nil {
		return protocol.ErrAgain
	}
	return e.pipe.TrySend(m)
}

// Recv pulls from the current pipe, or reports ErrAgain if there is none
// or it is empty.
func (e *Excl) Recv() (*protocol.Message, error) {
	if e.pipe == nil {
		return nil, protocol.ErrAgain
	}
	m, err := e.pipe.TryRecv()
	if err == protocol.ErrClosed {
		e.pipe = nil
		return nil, protocol.ErrAgain
	}
	return m, err
}
