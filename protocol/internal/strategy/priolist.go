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

// PrioList is a plain (no priority tie-breaking) round-robin queue that
// tracks a "current" pipe, advancing to the next on every attempt (spec
// §4.5). PUSH uses it to send, PULL to receive — "a simplified LB/FQ
// without explicit priority".
type PrioList struct {
	pipes   []protocol.Pipe
	current int
}

// Add appends a pipe to the rotation.
func (q *PrioList) Add(p protocol.Pipe) {
	q.pipes = append(q.pipes, p)
}

// Remove drops a pipe from the rotation.
func (q *PrioList) Remove(p protocol.Pipe) {
	for i, x := range q.pipes {
		if x.ID() == p.ID() {
			q.pipes = append(q.pipes[:i], q.pipes[i+1:]...)
			if q.current > i {
				q.current--
			}
			if len(q.pipes) > 0 {
				q.current %= len(q.pipes)
			} else {
				q.current = 0
			}
			return
		}
	}
}

// Len reports how many pipes are in rotation.
func (q *PrioList) Len() int { return len(q.pipes) }

// Send enqueues m on the next pipe in rotation that accepts it, advancing
// past any pipe that is currently full.
func (q *PrioList) Send(m *protocol.Message) error {
	n := len(q.pipes)
	if n == 0 {
		return protocol.ErrAgain
	}
	start := q.current % n
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if err := q.pipes[idx].TrySend(m); err == nil {
			q.current = (idx + 1) % n
			return nil
		}
	}
	return protocol.ErrAgain
}

// Recv pulls from the next pipe in rotation with a buffered message,
// dropping any pipe whose TryRecv reports ErrClosed.
func (q *PrioList) Recv() (*protocol.Message, error) {
	n := len(q.pipes)
	if n == 0 {
		return nil, protocol.ErrAgain
	}
	start := q.current % n
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		m, err := q.pipes[idx].TryRecv()
		switch err {
		case nil:
			q.current = (idx + 1) % n
			return m, nil
		case protocol.ErrClosed:
			p := q.pipes[idx]
			q.Remove(p)
			return q.Recv()
		}
	}
	return nil, protocol.ErrAgain
}
