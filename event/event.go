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

// Package event implements the runtime's cthread wait/signal primitive:
// an edge-triggered, stateless rendezvous point with no buffered count
// and no "already signaled" memory — a signal delivered to an empty wait
// list is simply lost, matching a condition variable rather than a
// semaphore.
package event

import (
	"github.com/cloudwego/akrun/container/ring"
	"github.com/cloudwego/akrun/cthread"
)

// Event is a FIFO wait point. The zero value is not usable; call Init.
type Event struct {
	waiters ring.List
}

// Init prepares e for use. Must be called once before Wait or Signal.
func (e *Event) Init() *Event {
	e.waiters.Init()
	return e
}

// Wait parks the calling cthread until some other cthread signals e.
// FIFO: waiters are woken in the order they called Wait.
func (e *Event) Wait(self *cthread.Task) {
	self.EnterWait(&e.waiters)
}

// Signal wakes the single oldest waiter, if any, and returns the number
// of cthreads woken (0 or 1).
func (e *Event) Signal(rt *cthread.Runtime) int {
	if rt.WakeOne(&e.waiters) {
		return 1
	}
	return 0
}

// SignalN wakes up to n waiters, oldest first, and returns the number
// actually woken.
func (e *Event) SignalN(rt *cthread.Runtime, n int) int {
	return rt.WakeN(&e.waiters, n)
}

// SignalAll wakes every current waiter and returns the number woken.
func (e *Event) SignalAll(rt *cthread.Runtime) int {
	return rt.WakeAll(&e.waiters)
}

// WaitingCount reports how many cthreads are currently parked on e.
// Debug/test use only.
func (e *Event) WaitingCount() int {
	return e.waiters.Len()
}
