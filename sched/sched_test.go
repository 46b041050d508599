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

package sched_test

import (
	"testing"

	"github.com/bytedance/gopkg/lang/fastrand"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudwego/akrun/cthread"
	"github.com/cloudwego/akrun/sched"
)

// fakePump is a no-op IOPump: every submission succeeds instantly and no
// cthread in these tests ever enters IO_WAITING, so PollCompletions is
// never expected to be called.
type fakePump struct {
	submits int
}

func (p *fakePump) Submit() (int, error) {
	p.submits++
	return 0, nil
}

func (p *fakePump) PollCompletions(handle func(userData uint64, res int32)) int {
	return 0
}

func bootAndRun(rt *cthread.Runtime, pump sched.IOPump, mainFn func(rt *cthread.Runtime, sched *cthread.Task)) int32 {
	boot := func(b *cthread.Task) int32 {
		schedTask := rt.Spawn("sched", sched.Loop(rt, pump, sched.Options{}))
		rt.SetSchedTask(schedTask)
		mainFn(rt, schedTask)
		return b.Join(schedTask)
	}
	return rt.Start(boot)
}

func TestSchedulerDispatchesReadyFIFO(t *testing.T) {
	rt := cthread.NewRuntime()
	pump := &fakePump{}
	var order []int

	res := bootAndRun(rt, pump, func(rt *cthread.Runtime, _ *cthread.Task) {
		for i := 0; i < 5; i++ {
			i := i
			rt.Spawn("w", func(wt *cthread.Task) int32 {
				order = append(order, i)
				return 0
			})
		}
	})

	assert.Equal(t, int32(0), res)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
	assert.Greater(t, pump.submits, 0)
}

func TestSchedulerReapsZombiesBeforeTerminating(t *testing.T) {
	rt := cthread.NewRuntime()
	pump := &fakePump{}

	bootAndRun(rt, pump, func(rt *cthread.Runtime, _ *cthread.Task) {
		rt.Spawn("w", func(wt *cthread.Task) int32 { return 3 })
	})

	assert.Equal(t, 0, rt.ReadyCount())
	assert.Equal(t, 0, rt.ZombieCount())
}

func TestSchedulerTerminatesWithJoiningChain(t *testing.T) {
	rt := cthread.NewRuntime()
	pump := &fakePump{}

	results := make([]int32, 0, 3)
	res := bootAndRun(rt, pump, func(rt *cthread.Runtime, _ *cthread.Task) {
		leaf := rt.Spawn("leaf", func(t *cthread.Task) int32 { return 11 })
		mid := rt.Spawn("mid", func(t *cthread.Task) int32 {
			r := t.Join(leaf)
			results = append(results, r)
			return r + 1
		})
		rt.Spawn("top", func(t *cthread.Task) int32 {
			r := t.Join(mid)
			results = append(results, r)
			return r + 1
		})
	})

	require.Len(t, results, 2)
	assert.Equal(t, int32(11), results[0])
	assert.Equal(t, int32(12), results[1])
	assert.Equal(t, int32(0), res) // boot Join's sched's own return, not main's
}

// TestSchedulerStressRandomSpawnResumeOrder fuzzes spawn/resume/suspend
// ordering across many cthreads and asserts the counter invariant never
// breaks and every cthread eventually completes.
func TestSchedulerStressRandomSpawnResumeOrder(t *testing.T) {
	rt := cthread.NewRuntime()
	pump := &fakePump{}

	const n = 200
	completed := 0

	bootAndRun(rt, pump, func(rt *cthread.Runtime, _ *cthread.Task) {
		for i := 0; i < n; i++ {
			rt.Spawn("fuzz", func(self *cthread.Task) int32 {
				hops := int(fastrand.Uint32n(4))
				for h := 0; h < hops; h++ {
					self.Suspend()
				}
				completed++
				return int32(hops)
			})
		}
	})

	if !assert.Equal(t, n, completed) || !assert.Equal(t, 0, rt.ReadyCount()) || !assert.Equal(t, 0, rt.ZombieCount()) {
		t.Logf("task list at failure:\n%s", rt.DumpTaskList())
	}
}
