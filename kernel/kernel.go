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

// Package kernel wires the runtime triple (component G, spec.md §4.7):
// InitKernel sets up the allocator and I/O ring, RunMain boots the
// scheduler and the user's main cthread and blocks until they finish,
// FiniKernel tears the ring down. There is a single Kernel per process;
// callers are expected to construct exactly one for the lifetime of a
// run, matching the original's process-wide singleton (spec.md §4.1 —
// the Go port carries the singleton as an explicit value instead of a
// global, since nothing here depends on global addressability).
package kernel

import (
	"fmt"

	"github.com/cloudwego/akrun/alloc"
	"github.com/cloudwego/akrun/cthread"
	"github.com/cloudwego/akrun/ioring"
	"github.com/cloudwego/akrun/sched"
)

// Config configures a Kernel. Memory backs the allocator arena;
// RingEntries sizes the io_uring submission/completion queues.
type Config struct {
	Memory      []byte
	RingEntries uint32
}

// DefaultConfig returns the default configuration: a 4 MiB arena and a
// 256-entry ring, sized for the echo-server example (§6.3 — no env vars,
// no config files; callers override the fields they care about).
func DefaultConfig() *Config {
	return &Config{
		Memory:      make([]byte, 4<<20),
		RingEntries: 256,
	}
}

// Kernel is the initialized runtime triple: allocator, I/O ring, and the
// cthread scheduling runtime.
type Kernel struct {
	Alloc *alloc.Allocator
	Ring  *ioring.Ring
	RT    *cthread.Runtime

	schedOptions sched.Options
	mainExit     int32
}

// InitKernel initializes the allocator over config.Memory and creates
// the I/O ring sized to config.RingEntries.
func InitKernel(config *Config) (*Kernel, error) {
	if config == nil {
		config = DefaultConfig()
	}
	rt := cthread.NewRuntime()

	a, err := alloc.New(config.Memory)
	if err != nil {
		return nil, fmt.Errorf("kernel: init allocator: %w", err)
	}

	r, err := ioring.New(rt, config.RingEntries)
	if err != nil {
		return nil, fmt.Errorf("kernel: init io_uring: %w", err)
	}

	return &Kernel{Alloc: a, Ring: r, RT: rt}, nil
}

// SetDebug enables the scheduler's diagnostic logging (reaper activity,
// termination). Off by default, per spec.md §1's treatment of debug
// printers as an out-of-scope collaborator.
func (k *Kernel) SetDebug(debug bool) {
	k.schedOptions.Debug = debug
}

// RunMain constructs the boot cthread, which spawns the user's main
// cthread and the privileged scheduler, then runs the scheduler to
// completion (spec.md §4.7, steps 1-3). It returns the value mainFn
// returned — the main cthread's exit code (step 4).
func (k *Kernel) RunMain(mainFn func(t *cthread.Task, args ...interface{}) int32, args ...interface{}) int32 {
	rt := k.RT

	boot := func(b *cthread.Task) int32 {
		main := rt.Spawn("main", func(self *cthread.Task) int32 {
			return mainFn(self, args...)
		})
		schedTask := rt.Spawn("sched", sched.Loop(rt, k.Ring, k.schedOptions))
		rt.SetSchedTask(schedTask)

		b.Join(schedTask)
		k.mainExit = main.Result()
		return k.mainExit
	}

	rt.Start(boot)
	return k.mainExit
}

// FiniKernel tears down the I/O ring. The allocator's backing memory is
// owned by the caller (it was supplied via Config.Memory) and is not
// freed here.
func (k *Kernel) FiniKernel() error {
	return k.Ring.Close()
}
