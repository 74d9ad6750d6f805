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
	"os"
	"sync"
)

// efd is an event-file-descriptor: an OS-pollable handle whose readability
// tracks a boolean readiness flag (spec §9 "Efd / readiness signalling").
// SNDFD/RCVFD hand the read end out to callers who want to multiplex a
// socket into their own select/epoll/kqueue loop; a private event loop
// would not satisfy that external contract, so this wraps a real os.Pipe
// rather than a bare channel.
type efd struct {
	mu       sync.Mutex
	r, w     *os.File
	signaled bool
	closed   bool
}

func newEfd() *efd {
	r, w, err := os.Pipe()
	if err != nil {
		// Practically unreachable (pipe(2) failing means the process is
		// out of file descriptors); surface readiness purely in-memory
		// rather than panic the caller.
		return &efd{}
	}
	return &efd{r: r, w: w}
}

// fd returns the descriptor callers should poll for readability.
func (e *efd) fd() uintptr {
	if e.r == nil {
		return ^uintptr(0)
	}
	return e.r.Fd()
}

// set makes the efd's readability match want, writing or draining a single
// byte only when the state actually changes (spec §4.3: "using the stored
// signaled bits to avoid redundant writes").
func (e *efd) set(want bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.r == nil || want == e.signaled {
		return
	}
	e.signaled = want
	if want {
		e.w.Write([]byte{0})
	} else {
		buf := make([]byte, 1)
		e.r.Read(buf)
	}
}

func (e *efd) close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	if e.r != nil {
		e.r.Close()
		e.w.Close()
	}
}
