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

package kernel_test

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudwego/akrun/cthread"
	"github.com/cloudwego/akrun/kernel"
)

func newTestKernel(t *testing.T) *kernel.Kernel {
	t.Helper()
	if runtime.GOOS != "linux" {
		t.Skip("io_uring is only supported on Linux")
	}
	cfg := kernel.DefaultConfig()
	cfg.Memory = make([]byte, 64<<10)
	k, err := kernel.InitKernel(cfg)
	if err != nil {
		t.Skipf("io_uring unavailable: %v", err)
	}
	return k
}

func TestRunMainReturnsMainExitCode(t *testing.T) {
	k := newTestKernel(t)
	defer k.FiniKernel()

	exit := k.RunMain(func(self *cthread.Task, args ...interface{}) int32 {
		return 7
	})
	assert.Equal(t, int32(7), exit)
}

func TestRunMainSpawnsChildCthreads(t *testing.T) {
	k := newTestKernel(t)
	defer k.FiniKernel()

	var childRan bool
	exit := k.RunMain(func(self *cthread.Task, args ...interface{}) int32 {
		child := k.RT.Spawn("child", func(ct *cthread.Task) int32 {
			childRan = true
			return 0
		})
		self.Suspend()
		for !child.IsDone() {
			self.Suspend()
		}
		return 3
	})

	assert.True(t, childRan)
	assert.Equal(t, int32(3), exit)
}

func TestAllocatorIsUsableAfterInit(t *testing.T) {
	k := newTestKernel(t)
	defer k.FiniKernel()

	buf := k.Alloc.TryAllocMem(64)
	require.NotNil(t, buf)
	k.Alloc.FreeMem(buf)
}
