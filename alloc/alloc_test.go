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

package alloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsTinyArena(t *testing.T) {
	_, err := New(make([]byte, 16))
	assert.Error(t, err)
}

// S2 from the allocator's testable-properties scenario set: initialize a
// 1 MiB arena, alloc 128 blocks of 32 bytes each, free all in reverse
// order, defragment twice, and assert the second pass is a no-op.
func TestDefragmentIdempotenceScenario(t *testing.T) {
	a, err := New(make([]byte, 1<<20))
	require.NoError(t, err)

	bufs := make([][]byte, 128)
	for i := range bufs {
		b := a.TryAllocMem(32)
		require.NotNil(t, b)
		bufs[i] = b
	}
	for i := len(bufs) - 1; i >= 0; i-- {
		a.FreeMem(bufs[i])
	}

	n1 := a.DefragmentMem(0)
	assert.Greater(t, n1, 0)
	n2 := a.DefragmentMem(0)
	assert.Equal(t, 0, n2)
}

func TestAllocFreeRoundTrip(t *testing.T) {
	a, err := New(make([]byte, 1<<16))
	require.NoError(t, err)

	buf := a.TryAllocMem(100)
	require.NotNil(t, buf)
	assert.GreaterOrEqual(t, a.Cap(buf), 100)

	used := a.UsedBytes()
	a.FreeMem(buf)
	assert.Less(t, a.UsedBytes(), used)
}
