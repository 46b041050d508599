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

// Package cthread implements the runtime's cooperative-thread promise and
// state machine. Go has no stackless-coroutine primitive, so each cthread
// is a goroutine parked on its own rendezvous channel; control transfer
// between cthreads is a baton pass (wake the target, block the source) so
// that exactly one cthread's code ever runs at a time, matching the
// single-threaded cooperative model this runtime assumes throughout.
package cthread

import (
	"context"
	"fmt"
	"log"
	"os"
	"runtime/debug"

	"github.com/cloudwego/akrun/concurrency/gopool"
	"github.com/cloudwego/akrun/container/ring"
	"github.com/cloudwego/akrun/internal/dbg"
)

// init installs a panic handler on gopool's default pool (the one every
// cthread runs in, via Spawn's gopool.Go call). gopool's own worker
// recovers panics and just logs them so one misbehaving task can't take
// the whole pool down — but a panicking cthread has corrupted this
// runtime's single-threaded scheduling invariants (the baton may never
// return to the scheduler), so letting its goroutine quietly vanish
// would hang every other cthread instead of crashing. dbg.Abort's own
// debug-build panic relies on this handler turning into a real process
// exit rather than being recovered away.
func init() {
	gopool.SetPanicHandler(func(_ context.Context, r interface{}) {
		log.Printf("cthread: unrecovered panic: %v\n%s", r, debug.Stack())
		os.Exit(2)
	})
}

// State is a cthread's position in its lifecycle.
type State int32

const (
	Created State = iota
	Ready
	Running
	Waiting
	IOWaiting
	Zombie
	Deleting
)

func (s State) String() string {
	switch s {
	case Created:
		return "CREATED"
	case Ready:
		return "READY"
	case Running:
		return "RUNNING"
	case Waiting:
		return "WAITING"
	case IOWaiting:
		return "IO_WAITING"
	case Zombie:
		return "ZOMBIE"
	case Deleting:
		return "DELETING"
	default:
		return "INVALID"
	}
}

// Body is the function a cthread runs; its integer return value becomes
// the cthread's result, readable by joiners.
type Body func(t *Task) int32

// Task is one cthread's promise: its state, its result slot, its
// scheduling-list membership, and the list of peers joined on it.
type Task struct {
	node ring.Node // membership in exactly one of: ready list, a wait list, zombie list
	all  ring.Node // membership in the runtime's all-tasks list, held from Created to Deleting

	rt    *Runtime
	name  string
	state State

	result     int32
	preparedIO int32

	awaiters ring.List // FIFO: peers parked in Join() on this task

	resume chan struct{}
	fn     Body
}

func newTask(rt *Runtime, name string, fn Body) *Task {
	t := &Task{rt: rt, name: name, fn: fn, state: Created, resume: make(chan struct{})}
	t.node.Owner = t
	t.all.Owner = t
	t.awaiters.Init()
	return t
}

// Name returns the cthread's debug name (for dumps; not part of identity).
func (t *Task) Name() string { return t.name }

// State returns the cthread's current lifecycle state.
func (t *Task) State() State { return t.state }

// Result returns the value returned by the cthread's body once the
// cthread has reached Zombie or Deleting. Before that, it holds the
// result CompleteIO stored for the cthread's latest I/O completion.
func (t *Task) Result() int32 { return t.result }

// IsDone reports whether the cthread has returned.
func (t *Task) IsDone() bool { return t.state == Zombie || t.state == Deleting }

// IsValid reports whether the handle still refers to a live promise (not
// yet reaped).
func (t *Task) IsValid() bool { return t != nil && t.state != Deleting }

// Runtime is the kernel-facing scheduling state: the set of live
// cthreads, and the single "current" baton.
type Runtime struct {
	all   ring.List
	ready ring.List
	zombie ring.List

	totalN, readyN, runningN, waitingN, ioWaitingN, zombieN int

	current *Task

	bootTask *Task
	schedTask *Task

	externalDone chan int32
}

// NewRuntime allocates an empty scheduling runtime.
func NewRuntime() *Runtime {
	rt := &Runtime{externalDone: make(chan int32, 1)}
	rt.all.Init()
	rt.ready.Init()
	rt.zombie.Init()
	return rt
}

// Spawn creates a cthread and immediately performs its "initial suspend"
// (CREATED -> READY, enqueued at the ready list's head, registered in the
// task list), matching the state machine: a cthread is never observably
// CREATED from outside Spawn. The underlying goroutine is started
// immediately but blocks until its first resume.
func (rt *Runtime) Spawn(name string, fn Body) *Task {
	t := newTask(rt, name, fn)
	rt.all.PushBack(&t.all)
	rt.totalN++

	t.state = Ready
	rt.ready.PushFront(&t.node)
	rt.readyN++
	rt.checkCounters()

	gopool.Go(func() {
		<-t.resume
		res := t.fn(t)
		rt.finish(t, res)
	})
	return t
}

// Current returns the cthread currently holding the baton.
func (rt *Runtime) Current() *Task { return rt.current }

// Invariant: total == running + ready + waiting + iowaiting + zombie.
func (rt *Runtime) checkCounters() {
	sum := rt.runningN + rt.readyN + rt.waitingN + rt.ioWaitingN + rt.zombieN
	if sum != rt.totalN {
		dbg.Abort("cthread: counter invariant broken: total=%d running=%d ready=%d waiting=%d iowaiting=%d zombie=%d",
			rt.totalN, rt.runningN, rt.readyN, rt.waitingN, rt.ioWaitingN, rt.zombieN)
	}
}

// wake hands the baton to target: detaches it from whatever list its
// prior state held it in, marks it Running, and unblocks its goroutine.
// The caller must already have accounted for its OWN state transition
// before calling wake.
func (rt *Runtime) wake(target *Task) {
	switch target.state {
	case Ready:
		target.node.Detach()
		rt.readyN--
	case Waiting:
		target.node.Detach()
		rt.waitingN--
	case IOWaiting:
		rt.ioWaitingN--
	}
	target.state = Running
	rt.runningN++
	rt.current = target
	target.resume <- struct{}{}
}

// park blocks t's goroutine until some other cthread wakes it again.
func (t *Task) park() {
	<-t.resume
}

// Start boots the runtime: bootFn runs as the boot cthread, resumed
// directly from the calling (non-cthread) goroutine. Start blocks until
// the boot cthread returns, and returns its result.
func (rt *Runtime) Start(bootFn Body) int32 {
	rt.bootTask = rt.Spawn("boot", bootFn)
	rt.wake(rt.bootTask)
	result := <-rt.externalDone

	// The boot cthread and (if one ran) the scheduler cthread finish
	// after the scheduler's own reap loop has already run to exhaustion,
	// so neither is ever handed to ReapOne by the scheduling machinery.
	// Drain them here rather than leaving two permanent zombie-list
	// entries behind every Start call.
	for rt.ReapOne() {
	}
	return result
}

// SetSchedTask records which spawned task is the privileged scheduler,
// so its and the boot task's return paths can be special-cased.
func (rt *Runtime) SetSchedTask(t *Task) { rt.schedTask = t }

// Resume performs a direct handoff: the caller goes Running -> Ready
// (enqueued at the ready list's head) and target becomes Running in the
// same step, bypassing the scheduler.
func (t *Task) Resume(target *Task) {
	rt := t.rt
	rt.runningN--
	t.state = Ready
	rt.ready.PushFront(&t.node)
	rt.readyN++
	rt.checkCounters()
	rt.wake(target)
	t.park()
}

// Suspend yields the baton to the scheduler: Running -> Ready, enqueued,
// and control passes to the privileged scheduler cthread.
func (t *Task) Suspend() {
	rt := t.rt
	if t == rt.schedTask {
		dbg.Abort("cthread: scheduler cannot suspend to itself")
	}
	rt.runningN--
	t.state = Ready
	rt.ready.PushFront(&t.node)
	rt.readyN++
	rt.checkCounters()
	rt.wake(rt.schedTask)
	t.park()
}

// Join awaits target's completion and returns its result. If target is
// already done, Join is a synchronous no-op. If target is Ready, Join
// performs a direct handoff (current -> Waiting on target's awaiter
// list, target -> Running); otherwise control passes to the scheduler.
func (t *Task) Join(target *Task) int32 {
	if target.IsDone() {
		return target.result
	}
	rt := t.rt
	rt.runningN--
	t.state = Waiting
	target.awaiters.PushBack(&t.node)
	rt.waitingN++
	rt.checkCounters()

	if target.state == Ready {
		rt.wake(target)
	} else {
		rt.wake(rt.schedTask)
	}
	t.park()
	return target.result
}

// finish runs when t's body returns: t -> Zombie, its awaiters -> Ready,
// and the baton passes on. The boot task's return terminates Start; the
// scheduler's return hands directly back to the boot task (there is no
// meta-scheduler to fall back to); any other cthread hands back to the
// scheduler.
func (rt *Runtime) finish(t *Task, result int32) {
	t.result = result
	rt.runningN--
	t.state = Zombie
	rt.zombie.PushBack(&t.node)
	rt.zombieN++

	for !t.awaiters.Empty() {
		n := t.awaiters.PopFront()
		wt := n.Owner.(*Task)
		wt.state = Ready
		rt.ready.PushFront(&wt.node)
		rt.waitingN--
		rt.readyN++
	}
	rt.checkCounters()

	switch t {
	case rt.bootTask:
		rt.externalDone <- result
	case rt.schedTask:
		rt.wake(rt.bootTask)
	default:
		rt.wake(rt.schedTask)
	}
}

// ReapOne detaches the oldest zombie from the task list and transitions
// it to Deleting, freeing its slot for the invariant count. Returns false
// if there were no zombies.
func (rt *Runtime) ReapOne() bool {
	if rt.zombie.Empty() {
		return false
	}
	n := rt.zombie.PopFront()
	t := n.Owner.(*Task)
	t.state = Deleting
	rt.zombieN--
	t.all.Detach()
	rt.totalN--
	rt.checkCounters()
	return true
}

// ReadyCount, ZombieCount, IOWaitingCount expose scheduler-visible queue
// depths without leaking the underlying list structures.
func (rt *Runtime) ReadyCount() int     { return rt.readyN }
func (rt *Runtime) ZombieCount() int    { return rt.zombieN }
func (rt *Runtime) IOWaitingCount() int { return rt.ioWaitingN }
func (rt *Runtime) TotalCount() int     { return rt.totalN }

// PopReadyTail removes and returns the oldest ready cthread (the ready
// list is FIFO: enqueued at the head, picked from the tail).
func (rt *Runtime) PopReadyTail() *Task {
	n := rt.ready.PopBack()
	if n == nil {
		return nil
	}
	return n.Owner.(*Task)
}

// DumpTaskList renders a line per live cthread; used by debug tooling
// and logged by the scheduler's stress test when an invariant assertion
// fails, never part of the scheduling path itself.
func (rt *Runtime) DumpTaskList() string {
	s := ""
	rt.all.Do(func(n *ring.Node) {
		t := n.Owner.(*Task)
		s += fmt.Sprintf("%s: %s result=%d preparedIO=%d\n", t.name, t.state, t.result, t.preparedIO)
	})
	return s
}
