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

// Error is a simple string-based error, mirroring the small closed
// taxonomy in the error handling design: each Err* constant below is one
// kind, comparable directly or via errors.Is.
type Error string

func (e Error) Error() string { return string(e) }

// Sentinel errors, one per kind in the error taxonomy (spec §7).
const (
	ErrAgain          = Error("again: resource temporarily unavailable")
	ErrBadValue       = Error("invalid argument")
	ErrProtoOp        = Error("operation not supported by protocol")
	ErrBadOption      = Error("unknown option")
	ErrAddrInUse      = Error("address in use")
	ErrAddrInvalid    = Error("invalid address")
	ErrAddrTooLong    = Error("address too long")
	ErrBadTran        = Error("transport not supported")
	ErrClosed         = Error("bad (closed) descriptor")
	ErrTooManySockets = Error("too many sockets open")
	ErrPipeFull       = Error("pipe already connected")
	ErrSendTimeout    = Error("send timeout")
	ErrRecvTimeout    = Error("receive timeout")
	ErrInterrupted    = Error("call interrupted")
	ErrClosedConn     = Error("connection closed")
	ErrCanceled       = Error("operation canceled")
	ErrProtoState     = Error("operation not permitted in this protocol state")
	ErrGarbled        = Error("message garbled")
	ErrTerminated     = Error("library terminated")
)
