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

// Package protocol defines the contract between the socket core and the
// individual scalability-protocol implementations, and provides the
// sockbase (Socket) that every pattern package builds its NewSocket on top
// of via MakeSocket.
package protocol

// Protocol identity numbers, used both for socket creation and peer
// compatibility checks (spec §6).
const (
	ProtoPair       = uint16(16)
	ProtoPub        = uint16(32)
	ProtoSub        = uint16(33)
	ProtoRep        = uint16(48)
	ProtoReq        = uint16(49)
	ProtoPush       = uint16(80)
	ProtoPull       = uint16(81)
	ProtoSurveyor   = uint16(98)
	ProtoRespondent = uint16(99)
	ProtoBus        = uint16(112)
	ProtoSink       = uint16(128)
	ProtoSource     = uint16(129)
	ProtoMaster     = uint16(144)
	ProtoMirror     = uint16(145)
)

// Info describes a protocol's identity and the identity of the peer
// protocol it talks to. Raw is true for the X-prefixed raw patterns
// (XREQ, XREP, XSUB, XSURVEYOR, XRESPONDENT), which expose routing
// headers to user code instead of hiding them (spec §4.6); it is fixed
// at construction and reported back via OptionRaw.
type Info struct {
	Self     uint16
	Peer     uint16
	SelfName string
	PeerName string
	Raw      bool
}

// IsPeer reports whether a remote protocol id is an acceptable peer for
// self, per spec §6: same protocol family (high nibble of the id), modulo
// pattern-specific restriction layered on top by each Protocol.IsPeer.
func IsPeer(self, peer uint16) bool {
	return self&0xfff0 == peer&0xfff0
}

// Protocol is the vfptr-style contract the socket base calls into; each
// scalability pattern supplies exactly one implementation (spec §4.4).
type Protocol interface {
	// Info returns this protocol's identity.
	Info() Info

	// AddPipe is called (on the socket's worker) when a new pipe has
	// completed its transport-level handshake and should join this
	// protocol's pipe set. Returning an error rejects the pipe.
	AddPipe(Pipe) error

	// RemovePipe is called when a pipe has been deactivated and should
	// be forgotten by the protocol.
	RemovePipe(Pipe)

	// SendMsg attempts a non-blocking send. ErrAgain means the caller
	// should wait for readiness; any other error is fatal to the call.
	SendMsg(*Message) error

	// RecvMsg attempts a non-blocking receive, symmetric to SendMsg.
	RecvMsg() (*Message, error)

	// SetOption/GetOption implement protocol-level (SOL_SOCKET < level)
	// options; unknown names return ErrBadOption.
	SetOption(name string, value interface{}) error
	GetOption(name string) (interface{}, error)
}

// SendPrioritySetter is implemented by protocols whose send-side pipe
// bucketing is sensitive to OptionSendPriority (currently only REQ/XREQ's
// load-balanced send; most patterns either have no send-side priority
// bucket or fix it internally). socket.SetOption forwards a validated
// SNDPRIO value through here so pipes added after the call land in the
// right strategy.LB bucket.
type SendPrioritySetter interface {
	SetSendPriority(int)
}

// RecvPrioritySetter is the receive-side counterpart, for protocols whose
// fair-queued receive bucketing should track OptionRecvPriority.
type RecvPrioritySetter interface {
	SetRecvPriority(int)
}

// PeerChecker is implemented by protocols that restrict which peer
// protocol ids they accept beyond the family check in IsPeer (e.g. REQ
// accepts only REP, not just "anything in the reqrep family").
type PeerChecker interface {
	IsPeer(peerProtocol uint16) bool
}

// Closer is implemented by protocols that need to release resources (timers,
// goroutines) when the owning socket is destroyed.
type Closer interface {
	Close() error
}

// ContextOpener is implemented by protocols that support independent,
// concurrently usable send/recv contexts on the same socket (spec is
// silent on this; most patterns decline it exactly as xsub.go does, by not
// implementing this interface at all).
type ContextOpener interface {
	OpenContext() (Context, error)
}

// Context is an independent send/recv/option handle sharing the underlying
// pipes of the socket that opened it.
type Context interface {
	SendMsg(*Message) error
	RecvMsg() (*Message, error)
	SetOption(name string, value interface{}) error
	GetOption(name string) (interface{}, error)
	Close() error
}
