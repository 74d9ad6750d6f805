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

// Package ptimer implements the cooperative, worker-thread-bound timer
// used by REQ's re-send schedule and SURVEYOR's deadline (spec §5, §9):
// an explicit {Idle, Active, Stopping} state machine rather than a bare
// time.Timer, so rearming and draining in-flight fires never race.
package ptimer

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

type state int

const (
	idle state = iota
	active
	stopping
)

// Timer fires fn on its own goroutine (joined by an errgroup, mirroring
// spec §5's "fixed pool of worker threads" that every socket's timers run
// on) after each Rearm, until Stop drains any in-flight fire and leaves the
// timer in Stopping, where further Rearm calls have no effect.
type Timer struct {
	mu    sync.Mutex
	st    state
	timer *time.Timer
	group *errgroup.Group
	ctx   context.Context
	cancel context.CancelFunc
	fn    func()
}

// New creates a stopped timer; fn is invoked (not concurrently with
// itself) whenever the timer expires.
func New(fn func()) *Timer {
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	return &Timer{st: idle, group: g, ctx: ctx, cancel: cancel, fn: fn}
}

// Rearm (re)starts the timer for d, canceling any pending fire first.
func (t *Timer) Rearm(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.st == stopping {
		return
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	t.st = active
	t.timer = time.AfterFunc(d, t.fire)
}

func (t *Timer) fire() {
	t.mu.Lock()
	if t.st != active {
		t.mu.Unlock()
		return
	}
	t.st = idle
	fn := t.fn
	t.mu.Unlock()
	t.group.Go(func() error {
		fn()
		return nil
	})
}

// Cancel stops a pending fire without tearing down the timer for reuse.
func (t *Timer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	if t.st == active {
		t.st = idle
	}
}

// Stop transitions through Stopping, draining any goroutine spawned by a
// fire that is already in flight, and leaves the timer unusable.
func (t *Timer) Stop() {
	t.mu.Lock()
	t.st = stopping
	if t.timer != nil {
		t.timer.Stop()
	}
	t.mu.Unlock()
	t.cancel()
	_ = t.group.Wait()
}
