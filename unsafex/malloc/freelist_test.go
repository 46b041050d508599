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
)

func TestBinIndexBoundaries(t *testing.T) {
	assert.Equal(t, 0, binIndex(1))
	assert.Equal(t, 0, binIndex(32))
	assert.Equal(t, 1, binIndex(33))
	assert.Equal(t, 63, binIndex(2048))
	assert.Equal(t, 63, binIndex(100000)) // clamped
}

func TestFindBinSkipsEmptyBins(t *testing.T) {
	var f freelist
	f.init()
	f.mask |= 1 << 5
	f.mask |= 1 << 10

	assert.Equal(t, 5, f.findBin(0))
	assert.Equal(t, 5, f.findBin(5))
	assert.Equal(t, 10, f.findBin(6))
	assert.Equal(t, -1, f.findBin(11))
}

func TestFreelistPushPopLIFO(t *testing.T) {
	a := newTestArena(t, 1<<16)

	var bufs [][]byte
	for i := 0; i < 5; i++ {
		bufs = append(bufs, a.TryMalloc(48))
	}
	var offs []uint64
	for _, b := range bufs {
		offs = append(offs, a.blockOffsetOf(b))
	}
	for _, b := range bufs {
		a.Free(b)
	}

	bin := binIndex(alignUp(48 + headerSize))
	for i := len(offs) - 1; i >= 0; i-- {
		off, ok := a.freelistPop(bin)
		assert.True(t, ok)
		assert.Equal(t, offs[i], off)
	}
	_, ok := a.freelistPop(bin)
	assert.False(t, ok)
}

func TestFreelistRemoveMidList(t *testing.T) {
	a := newTestArena(t, 1<<16)

	bufs := make([][]byte, 3)
	for i := range bufs {
		bufs[i] = a.TryMalloc(48)
	}
	offs := make([]uint64, 3)
	for i, b := range bufs {
		offs[i] = a.blockOffsetOf(b)
	}
	for _, b := range bufs {
		a.Free(b)
	}

	bin := binIndex(alignUp(48 + headerSize))
	a.freelistRemove(bin, offs[1])

	var seen []uint64
	for {
		off, ok := a.freelistPop(bin)
		if !ok {
			break
		}
		seen = append(seen, off)
	}
	assert.ElementsMatch(t, []uint64{offs[0], offs[2]}, seen)
}
