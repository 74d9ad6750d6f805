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

import "sync"

// maxSockets bounds the process-wide socket table (spec §4.8).
const maxSockets = 512

// registry is the process-wide socket table plus a reference count, mirroring
// original_source/src/core/global.c's nn_global_init/nn_global_term pair
// rather than a one-shot "closed forever" flag: Term followed by a fresh
// NewSocket call reopens the library, exactly like the C source's
// ref-counted global init.
type registry struct {
	mu      sync.Mutex
	sockets map[*socket]struct{}
	zombie  bool
}

var reg = &registry{sockets: map[*socket]struct{}{}}

func registerSocket(s *socket) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if len(reg.sockets) >= maxSockets {
		return ErrTooManySockets
	}
	reg.zombie = false
	reg.sockets[s] = struct{}{}
	return nil
}

func unregisterSocket(s *socket) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.sockets, s)
}

// Term zombifies every live socket: blocked and future blocking calls wake
// with ErrTerminated until each socket is explicitly Close()d (spec §3,
// §4.8, §5 cancellation, testable property 7).
func Term() {
	reg.mu.Lock()
	reg.zombie = true
	socks := make([]*socket, 0, len(reg.sockets))
	for s := range reg.sockets {
		socks = append(socks, s)
	}
	reg.mu.Unlock()

	for _, s := range socks {
		s.zombify()
	}
}

// zombify marks the socket terminated and wakes every blocked caller with
// ErrTerminated, regardless of actual readiness (spec §4.3).
func (s *socket) zombify() {
	s.mu.Lock()
	if s.terminated {
		s.mu.Unlock()
		return
	}
	s.terminated = true
	s.mu.Unlock()
	s.wake()
}
