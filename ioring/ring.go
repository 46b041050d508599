/*
 * Copyright 2024 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package ioring is the runtime's I/O adapter (component E): it wraps
// internal/iouring's raw submission/completion rings with the
// suspend-to-scheduler protocol spec.md §4.5 describes. Every call here
// runs on the single cthread goroutine holding the baton at the time —
// there is no concurrent access to the ring, matching the rest of this
// runtime's single-threaded cooperative model, and no background
// goroutines or channels are involved in submission or completion.
package ioring

import (
	"fmt"

	"github.com/cloudwego/akrun/cthread"
	"github.com/cloudwego/akrun/internal/dbg"
	"github.com/cloudwego/akrun/internal/iouring"
)

// Ring adapts a raw io_uring instance to the sched.IOPump interface and
// to the per-opcode awaitables in this package.
type Ring struct {
	raw *iouring.IoUring
	rt  *cthread.Runtime
}

// New creates an io_uring instance with the given submission/completion
// queue depth and binds it to rt, whose current cthread every awaitable
// in this package operates on.
func New(rt *cthread.Runtime, entries uint32) (*Ring, error) {
	raw, err := iouring.NewIoUring(entries)
	if err != nil {
		return nil, fmt.Errorf("ioring: setup: %w", err)
	}
	return &Ring{raw: raw, rt: rt}, nil
}

// Close tears down the underlying ring (kernel.FiniKernel's job).
func (r *Ring) Close() error {
	return r.raw.Close()
}

// Submit flushes any SQEs queued by prepareAndSuspend calls that have
// accumulated since the last Submit. Implements sched.IOPump.
func (r *Ring) Submit() (int, error) {
	n, errno := r.raw.Submit()
	if errno != 0 {
		return n, errno
	}
	return n, nil
}

// PollCompletions blocks until at least one CQE is available, then
// drains every CQE currently posted, invoking handle once per entry
// with the owning cthread's user-data and the operation's result.
// Implements sched.IOPump.
func (r *Ring) PollCompletions(handle func(userData uint64, res int32)) int {
	cqe, err := r.raw.WaitCQE()
	if err != nil {
		return 0
	}
	n := 0
	for cqe != nil {
		handle(cqe.UserData, cqe.Res)
		r.raw.AdvanceCQ()
		n++
		cqe = r.raw.PeekCQE()
	}
	return n
}

// prepareAndSuspend implements spec.md §4.5's per-opcode recipe: find a
// free SQE (submitting inline to drain the ring if none is free — the
// back-pressure rule, §7), stamp user_data with the current cthread's
// identity, let prep fill in the opcode-specific fields, then suspend
// the caller to IO_WAITING until the matching CQE arrives.
//
// Both failure paths below call dbg.Abort, the runtime's single fatal
// path (a debug-build panic, or a silent os.Exit(2) in release builds).
// A panic in any cthread ends the process through the handler that
// cthread's init installs on gopool's default pool.
func (r *Ring) prepareAndSuspend(self *cthread.Task, prep func(sqe *iouring.IOUringSQE)) int32 {
	sqe := r.raw.PeekSQE(true)
	if sqe == nil {
		if _, errno := r.raw.Submit(); errno != 0 {
			dbg.Abort("ioring: inline submit failed: %v", errno)
		}
		sqe = r.raw.PeekSQE(true)
		if sqe == nil {
			dbg.Abort("ioring: no free submission slot after inline submit")
		}
	}
	sqe.UserData = cthread.UserData(self)
	prep(sqe)
	r.raw.AdvanceSQ()

	self.EnterIOWait()
	return self.Result()
}
