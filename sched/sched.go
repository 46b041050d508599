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

// Package sched implements the runtime's privileged scheduler cthread:
// ready-queue dispatch, zombie reaping, and the I/O completion pump. It
// is written as an ordinary cthread body (see Loop) rather than a bare
// loop outside the cthread model, so that handing control to the
// scheduler uses the exact same direct-handoff primitive as any other
// cthread-to-cthread transfer.
package sched

import (
	"log"

	"github.com/cloudwego/akrun/cthread"
	"github.com/cloudwego/akrun/internal/dbg"
)

// IOPump is the completion-pump side of the I/O adapter (component E)
// that the scheduler drives. Submit flushes any buffered submissions.
// PollCompletions drains available CQEs, invoking handle(userData, res)
// once per CQE, and returns the number handled; the scheduler only
// calls it when it has nothing else to do (ready list empty, no
// zombies), so it may block until at least one CQE arrives.
type IOPump interface {
	Submit() (int, error)
	PollCompletions(handle func(userData uint64, res int32)) int
}

// Options configures the scheduler's debug behavior.
type Options struct {
	// Debug, when set, logs reaper and termination activity. Off by
	// default: spec.md treats debug printers as an out-of-scope
	// collaborator (§1).
	Debug bool
}

// Loop returns the scheduler cthread's body: spec.md §4.4's dispatch
// loop. pump may be nil, in which case step 1 (submit) and step 4
// (drain completions) are skipped — useful for tests and for any
// deployment of this runtime with no I/O adapter wired in.
func Loop(rt *cthread.Runtime, pump IOPump, opt Options) cthread.Body {
	return func(self *cthread.Task) int32 {
		for {
			if pump != nil {
				if _, err := pump.Submit(); err != nil {
					// Back-pressure (a full submission queue) is handled by
					// the inline submit-and-retry in ioring's prepareAndSuspend
					// before an SQE is ever handed to us; a submit failure
					// reaching this point is a genuine kernel/syscall error,
					// which spec.md §7 treats as fatal. dbg.Abort is the
					// runtime's single fatal path; like any panic in a cthread,
					// its debug-build panic ends the process through the
					// handler cthread's init installs on gopool's default pool.
					dbg.Abort("sched: submit failed: %v", err)
				}
			}

			if rt.ReadyCount() > 0 {
				next := rt.PopReadyTail()
				self.Resume(next)
				continue
			}

			reaped := false
			for rt.ReapOne() {
				reaped = true
			}
			if reaped {
				if opt.Debug {
					log.Printf("sched: reaped zombies, total=%d", rt.TotalCount())
				}
				continue
			}

			if rt.IOWaitingCount() > 0 && pump != nil {
				pump.PollCompletions(func(userData uint64, res int32) {
					owner := cthread.TaskFromUserData(userData)
					rt.CompleteIO(owner, res)
				})
				continue
			}

			if opt.Debug {
				log.Printf("sched: terminating, ready=0 iowaiting=%d", rt.IOWaitingCount())
			}
			return 0
		}
	}
}
