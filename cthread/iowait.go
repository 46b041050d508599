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

package cthread

import "github.com/cloudwego/akrun/internal/dbg"

// PreparedIO returns the number of outstanding SQEs this cthread has
// submitted and not yet collected the completion of.
func (t *Task) PreparedIO() int32 { return t.preparedIO }

// EnterIOWait marks one SQE as submitted and parks the cthread:
// Running -> IOWaiting, control passes to the scheduler. A
// cthread that has prepared N SQEs calls EnterIOWait once per awaited
// completion; CompleteIO must be called exactly N times to fully drain
// it back to Ready.
func (t *Task) EnterIOWait() {
	rt := t.rt
	t.preparedIO++
	rt.runningN--
	t.state = IOWaiting
	rt.ioWaitingN++
	rt.checkCounters()
	rt.wake(rt.schedTask)
	t.park()
}

// CompleteIO is invoked by the scheduler's completion-queue pump when a
// CQE naming this cthread arrives: it records the result, decrements the
// outstanding-SQE count, and — once every prepared SQE has completed —
// transitions the cthread IOWaiting -> Ready.
func (rt *Runtime) CompleteIO(t *Task, res int32) {
	if t.state != IOWaiting {
		dbg.Abort("cthread: CompleteIO on %s in state %s, want IO_WAITING", t.name, t.state)
	}
	t.result = res
	t.preparedIO--
	if t.preparedIO < 0 {
		dbg.Abort("cthread: CompleteIO underflow for %s", t.name)
	}
	if t.preparedIO > 0 {
		return
	}
	t.state = Ready
	rt.ready.PushFront(&t.node)
	rt.ioWaitingN--
	rt.readyN++
	rt.checkCounters()
}
