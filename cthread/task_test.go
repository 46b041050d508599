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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// schedulerBody is the minimal dispatch loop used by these tests: resume
// the oldest ready cthread directly, reap zombies, and stop once nothing
// but the scheduler itself and the parked boot cthread remain.
func schedulerBody(rt *Runtime) Body {
	return func(s *Task) int32 {
		for {
			if next := rt.PopReadyTail(); next != nil {
				s.Resume(next)
				continue
			}
			if rt.ReapOne() {
				continue
			}
			if rt.TotalCount() <= 2 {
				return 0
			}
			// Nothing ready or zombie but other cthreads still exist
			// (e.g. parked in a wait list): nothing left for this
			// trivial test scheduler to do.
			return 0
		}
	}
}

func bootWith(rt *Runtime, schedFn func(rt *Runtime) Body) Body {
	return func(boot *Task) int32 {
		sched := rt.Spawn("sched", schedFn(rt))
		rt.SetSchedTask(sched)
		return boot.Join(sched)
	}
}

func TestSpawnEnqueuesReadyImmediately(t *testing.T) {
	rt := NewRuntime()
	var seen State
	done := make(chan struct{})
	boot := bootWith(rt, func(rt *Runtime) Body {
		return func(s *Task) int32 {
			w := rt.Spawn("worker", func(wt *Task) int32 {
				seen = wt.State()
				close(done)
				return 7
			})
			assert.Equal(t, Ready, w.State())
			for {
				if next := rt.PopReadyTail(); next != nil {
					s.Resume(next)
					continue
				}
				if rt.ReapOne() {
					continue
				}
				return 0
			}
		}
	})
	res := rt.Start(boot)
	<-done
	assert.Equal(t, int32(0), res)
	assert.Equal(t, Running, seen)
}

func TestJoinReturnsResultAfterCompletion(t *testing.T) {
	rt := NewRuntime()
	boot := func(b *Task) int32 {
		sched := rt.Spawn("sched", func(s *Task) int32 {
			worker := rt.Spawn("worker", func(wt *Task) int32 {
				return 42
			})
			joiner := rt.Spawn("joiner", func(jt *Task) int32 {
				return jt.Join(worker)
			})
			_ = joiner
			return schedulerBody(rt)(s)
		})
		rt.SetSchedTask(sched)
		return b.Join(sched)
	}
	res := rt.Start(boot)
	assert.Equal(t, int32(0), res)
}

func TestJoinOnAlreadyDoneIsSynchronous(t *testing.T) {
	rt := NewRuntime()
	boot := func(b *Task) int32 {
		sched := rt.Spawn("sched", func(s *Task) int32 {
			worker := rt.Spawn("worker", func(wt *Task) int32 { return 99 })
			// drain worker to completion first
			for rt.ReadyCount() > 0 {
				next := rt.PopReadyTail()
				s.Resume(next)
			}
			require.True(t, worker.IsDone())
			got := s.Join(worker)
			assert.Equal(t, int32(99), got)
			return schedulerBody(rt)(s)
		})
		rt.SetSchedTask(sched)
		return b.Join(sched)
	}
	rt.Start(boot)
}

func TestCounterInvariantHoldsThroughoutLifecycle(t *testing.T) {
	rt := NewRuntime()
	boot := bootWith(rt, func(rt *Runtime) Body {
		return func(s *Task) int32 {
			for i := 0; i < 5; i++ {
				rt.Spawn("w", func(wt *Task) int32 { return int32(wt.preparedIO) })
			}
			return schedulerBody(rt)(s)
		}
	})
	rt.Start(boot)
	assert.Equal(t, 0, rt.ReadyCount())
}
