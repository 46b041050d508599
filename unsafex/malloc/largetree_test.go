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

package malloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTreeInsertFindGE(t *testing.T) {
	a := newTestArena(t, 1<<20)

	sizes := []int{4096, 8192, 3072, 16384, 6000}
	var bufs [][]byte
	for _, s := range sizes {
		b := a.TryMalloc(s)
		require.NotNil(t, b)
		bufs = append(bufs, b)
	}
	for _, b := range bufs {
		a.Free(b)
	}

	off, ok := a.treeFindGE(alignUp(7000 + headerSize))
	require.True(t, ok)
	assert.GreaterOrEqual(t, a.thisSize(off), alignUp(7000+headerSize))
}

func TestTreeDuplicateRingOrder(t *testing.T) {
	a := newTestArena(t, 1<<20)

	const payload = 4096
	bufA := a.TryMalloc(payload)
	bufB := a.TryMalloc(payload)
	bufC := a.TryMalloc(payload)
	require.NotNil(t, bufA)
	require.NotNil(t, bufB)
	require.NotNil(t, bufC)

	offA := a.blockOffsetOf(bufA)
	offB := a.blockOffsetOf(bufB)
	offC := a.blockOffsetOf(bufC)

	a.Free(bufA) // becomes the tree-resident host
	a.Free(bufB) // joins host's ring (oldest duplicate)
	a.Free(bufC) // joins host's ring (newest duplicate)

	assert.Equal(t, uint64(offA), uint64(a.large.root))
	assert.GreaterOrEqual(t, a.treeHeight(offA), int32(0))
	assert.Equal(t, int32(-1), a.treeHeight(offB))
	assert.Equal(t, int32(-1), a.treeHeight(offC))
	assert.Equal(t, int64(offB), a.ringNext(offA))
}

// Exercises the promote-ring-head-to-tree-slot path: detaching a
// tree-resident node that still has duplicates must promote its oldest
// ring member into the vacated tree slot with identical AVL linkage,
// rather than performing an ordinary AVL delete.
func TestTreeDetachPromotesOldestDuplicate(t *testing.T) {
	a := newTestArena(t, 1<<20)

	const payload = 4096
	bufA := a.TryMalloc(payload)
	bufB := a.TryMalloc(payload)
	bufC := a.TryMalloc(payload)
	require.NotNil(t, bufA)
	require.NotNil(t, bufB)
	require.NotNil(t, bufC)

	offA := a.blockOffsetOf(bufA)
	offB := a.blockOffsetOf(bufB)
	offC := a.blockOffsetOf(bufC)

	a.Free(bufA)
	a.Free(bufB)
	a.Free(bufC)

	left, right, parent, height := a.treeLeft(offA), a.treeRight(offA), a.treeParent(offA), a.treeHeight(offA)

	a.treeDetach(offA)

	// B, the oldest duplicate, must now occupy A's former tree slot.
	assert.Equal(t, uint64(offB), uint64(a.large.root))
	assert.Equal(t, left, a.treeLeft(offB))
	assert.Equal(t, right, a.treeRight(offB))
	assert.Equal(t, parent, a.treeParent(offB))
	assert.Equal(t, height, a.treeHeight(offB))

	// C is still a duplicate, now threaded through B's ring instead of
	// A's: a list-only node (height < 0), not promoted itself — a size
	// key holds exactly one tree-resident node at a time.
	assert.False(t, a.ringIsAlone(offC))
	assert.Equal(t, int32(-1), a.treeHeight(offC))

	// A reinsertion of a same-sized block must find the promoted node.
	foundOff, ok := a.treeFindGE(a.thisSize(offB))
	require.True(t, ok)
	assert.Equal(t, offB, foundOff)
}

func TestTreeDetachListNodeOnlyUnlinksRing(t *testing.T) {
	a := newTestArena(t, 1<<20)

	const payload = 4096
	bufA := a.TryMalloc(payload)
	bufB := a.TryMalloc(payload)
	require.NotNil(t, bufA)
	require.NotNil(t, bufB)

	offA := a.blockOffsetOf(bufA)
	offB := a.blockOffsetOf(bufB)

	a.Free(bufA)
	a.Free(bufB)

	a.treeDetach(offB)
	assert.True(t, a.ringIsAlone(offA))
	assert.Equal(t, uint64(offA), uint64(a.large.root))
}

func TestAvlRemoveRebalancesAcrossManySizes(t *testing.T) {
	a := newTestArena(t, 1<<20)

	var bufs [][]byte
	for i := 1; i <= 30; i++ {
		b := a.TryMalloc(3000 + i*64)
		require.NotNil(t, b)
		bufs = append(bufs, b)
	}
	for _, b := range bufs {
		a.Free(b)
	}
	for i := 1; i <= 30; i++ {
		off, ok := a.treeFindGE(alignUp(uint64(3000+i*64) + headerSize))
		require.True(t, ok)
		a.treeDetach(off)
	}
	assert.Equal(t, noOffset, a.large.root)
}
