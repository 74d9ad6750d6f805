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

// Package transport defines the contract the core demands from wire
// transports (spec §1: transports are external collaborators, specified
// only by this interface) and a process-wide registry of transports keyed
// by URL scheme ("inproc", "tcp", "ipc", "ws", "tcpmux" — spec §6). Only
// "inproc" ships a concrete implementation in this module; the rest are
// explicitly out of scope (spec §1).
package transport

import (
	"sync"

	"go.nanomsg.dev/spsock/protocol"
)

// Pipe is the per-connection contract a transport hands the core once its
// protocol-header handshake (spec §6) has completed.
type Pipe = protocol.TransportPipe

// Dialer and Listener are aliases of the core's own Listener/Dialer
// contracts (protocol.Dialer/protocol.Listener): aliasing rather than
// re-declaring means any Transport registered here already satisfies
// protocol.TransportFactory with no adapter shim.
type Dialer = protocol.Dialer
type Listener = protocol.Listener

// Transport is a registered wire transport: a URL scheme plus factories
// for the dialer/listener sides of an endpoint.
type Transport interface {
	Scheme() string
	NewDialer(addr string, self protocol.Info) (Dialer, error)
	NewListener(addr string, self protocol.Info) (Listener, error)
}

var (
	mu         sync.Mutex
	registered = map[string]Transport{}
)

// Register adds a transport to the process-wide registry, keyed by its
// URL scheme. Registering the same scheme twice is a programming error and
// panics, matching the teacher's init()-time registration idiom (each
// transport package registers itself from an init function).
func Register(t Transport) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := registered[t.Scheme()]; dup {
		panic("transport: duplicate scheme " + t.Scheme())
	}
	registered[t.Scheme()] = t
}

// Lookup returns the transport registered for scheme, or nil.
func Lookup(scheme string) Transport {
	mu.Lock()
	defer mu.Unlock()
	return registered[scheme]
}

func init() {
	protocol.SetTransportLookup(func(scheme string) protocol.TransportFactory {
		t := Lookup(scheme)
		if t == nil {
			// An untyped nil Transport must not be wrapped into a non-nil
			// protocol.TransportFactory interface value.
			return nil
		}
		return t
	})
}
