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

import "github.com/cloudwego/akrun/container/ring"

// EnterWait parks the current cthread on an arbitrary FIFO wait list
// (used by the event primitive): Running -> Waiting, appended to list's
// tail, control passes to the scheduler. Returns once some other
// cthread calls WakeOne/WakeN/WakeAll on the same list and the scheduler
// picks this cthread back up.
func (t *Task) EnterWait(list *ring.List) {
	rt := t.rt
	rt.runningN--
	t.state = Waiting
	list.PushBack(&t.node)
	rt.waitingN++
	rt.checkCounters()
	rt.wake(rt.schedTask)
	t.park()
}

// WakeOne detaches the oldest waiter on list (FIFO) and makes it Ready.
// Reports whether a waiter was woken.
func (rt *Runtime) WakeOne(list *ring.List) bool {
	if list.Empty() {
		return false
	}
	n := list.PopFront()
	wt := n.Owner.(*Task)
	wt.state = Ready
	rt.ready.PushFront(&wt.node)
	rt.waitingN--
	rt.readyN++
	rt.checkCounters()
	return true
}

// WakeN wakes up to n waiters on list, FIFO, returning the count woken.
func (rt *Runtime) WakeN(list *ring.List, n int) int {
	woken := 0
	for woken < n && rt.WakeOne(list) {
		woken++
	}
	return woken
}

// WakeAll wakes every waiter on list, returning the count woken.
func (rt *Runtime) WakeAll(list *ring.List) int {
	woken := 0
	for rt.WakeOne(list) {
		woken++
	}
	return woken
}
