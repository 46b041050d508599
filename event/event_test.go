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

package event_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cloudwego/akrun/cthread"
	"github.com/cloudwego/akrun/event"
)

// schedulerBody resumes the oldest ready cthread directly and reaps
// zombies until only the scheduler and the parked boot cthread remain.
func schedulerBody(rt *cthread.Runtime) cthread.Body {
	return func(s *cthread.Task) int32 {
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
			return 0
		}
	}
}

func TestSignalWakesSingleWaiter(t *testing.T) {
	rt := cthread.NewRuntime()
	var ev event.Event
	ev.Init()

	order := make([]string, 0, 2)

	boot := func(b *cthread.Task) int32 {
		sched := rt.Spawn("sched", func(s *cthread.Task) int32 {
			rt.Spawn("waiter", func(wt *cthread.Task) int32 {
				ev.Wait(wt)
				order = append(order, "waiter-resumed")
				return 0
			})
			rt.Spawn("signaler", func(st *cthread.Task) int32 {
				order = append(order, "signaler-ran")
				n := ev.Signal(rt)
				assert.Equal(t, 1, n)
				return 0
			})
			return schedulerBody(rt)(s)
		})
		rt.SetSchedTask(sched)
		return b.Join(sched)
	}
	rt.Start(boot)

	assert.Equal(t, []string{"signaler-ran", "waiter-resumed"}, order)
	assert.Equal(t, 0, ev.WaitingCount())
}

func TestSignalOnEmptyListReturnsZero(t *testing.T) {
	rt := cthread.NewRuntime()
	var ev event.Event
	ev.Init()

	boot := func(b *cthread.Task) int32 {
		sched := rt.Spawn("sched", func(s *cthread.Task) int32 {
			rt.Spawn("lonely-signaler", func(st *cthread.Task) int32 {
				return int32(ev.Signal(rt))
			})
			return schedulerBody(rt)(s)
		})
		rt.SetSchedTask(sched)
		return b.Join(sched)
	}
	rt.Start(boot)
}

func TestSignalAllWakesEveryWaiterFIFO(t *testing.T) {
	rt := cthread.NewRuntime()
	var ev event.Event
	ev.Init()

	var woke []int

	boot := func(b *cthread.Task) int32 {
		sched := rt.Spawn("sched", func(s *cthread.Task) int32 {
			for i := 0; i < 3; i++ {
				i := i
				rt.Spawn("waiter", func(wt *cthread.Task) int32 {
					ev.Wait(wt)
					woke = append(woke, i)
					return 0
				})
			}
			rt.Spawn("signaler", func(st *cthread.Task) int32 {
				n := ev.SignalAll(rt)
				assert.Equal(t, 3, n)
				return 0
			})
			return schedulerBody(rt)(s)
		})
		rt.SetSchedTask(sched)
		return b.Join(sched)
	}
	rt.Start(boot)

	assert.Equal(t, []int{0, 1, 2}, woke)
}
