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

import "unsafe"

// MinArenaSize is the smallest arena Init will accept.
const MinArenaSize = 4096

// Stats mirrors spec §4.2: per-bin counters for the 64 small-block classes,
// plus a tree-class slot (index 64, here split out by name) and a
// wild-class slot (index 65) so the arena doubles as a benchmark fixture.
type Stats struct {
	BinAlloc [binCount]uint64
	BinFree  [binCount]uint64
	BinSplit [binCount]uint64
	BinReuse [binCount]uint64
	BinPool  [binCount]uint64

	TreeAlloc uint64
	TreeSplit uint64
	TreeReuse uint64
	TreePool  uint64

	WildAlloc uint64
	Failed    uint64
}

// Arena is a fixed-size, segregated-fit allocator over a caller-supplied
// byte slice. It never grows: once Init lays out [begin sentinel | wild |
// end sentinel], all subsequent capacity comes from splitting and freeing
// blocks within that fixed range.
type Arena struct {
	mem   []byte
	start unsafe.Pointer

	size uint64 // bytes actually laid out (<= len(mem), trimmed to 32-byte multiples)

	beginOff uint64
	endOff   uint64
	wildOff  uint64

	freeBytes uint64
	usedBytes uint64

	small largetreeSmallState
	large largetree

	Stats Stats
}

// largetreeSmallState is kept as a distinct type purely so freelist.go's
// methods read naturally as a.small.xxx; it is the 64-bin freelist.
type largetreeSmallState = freelist

// Init lays out a fresh arena over mem. mem must be at least MinArenaSize
// bytes; Init trims the usable region down to a 32-byte multiple and
// reserves 32 bytes on each end for the begin/end sentinels.
func Init(mem []byte) (*Arena, error) {
	total := uint64(len(mem))
	if total < MinArenaSize {
		return nil, formatBlockErr("arena too small: need >= %d bytes, got %d", MinArenaSize, total)
	}

	a := &Arena{mem: mem, start: unsafe.Pointer(&mem[0])}
	a.small.init()
	a.large.init()

	wildSize := (total - 2*minBlockSize) &^ (blockAlign - 1)
	if wildSize < blockAlign {
		return nil, formatBlockErr("arena too small after sentinel reservation")
	}

	a.beginOff = 0
	a.wildOff = minBlockSize
	a.endOff = a.wildOff + wildSize
	a.size = a.endOff + minBlockSize

	a.setHeader(a.beginOff, minBlockSize, StateBeginSentinel)
	a.setPrevWord(a.beginOff, pack(0, StateInvalid))

	a.setHeader(a.wildOff, wildSize, StateWildBlock)
	a.mirrorPrev(a.beginOff) // stamps wild's prev from begin sentinel

	a.setHeader(a.endOff, minBlockSize, StateEndSentinel)
	a.mirrorPrev(a.wildOff) // stamps end sentinel's prev from wild

	// freeBytes must reconcile with Size() via UsedBytes()+FreeBytes()==Size()
	// (never allocable, but Size() counts their bytes, so FreeBytes() must
	// too, or the invariant drifts the moment a single byte is malloc'd).
	a.freeBytes = wildSize + 2*minBlockSize
	return a, nil
}

// Size returns the total laid-out arena size in bytes.
func (a *Arena) Size() uint64 { return a.size }

// FreeBytes returns sum(FREE block sizes) + wild block size.
func (a *Arena) FreeBytes() uint64 { return a.freeBytes }

// UsedBytes returns sum(USED block sizes).
func (a *Arena) UsedBytes() uint64 { return a.usedBytes }

// TryMalloc rounds size up to a header-prefixed, 32-byte-aligned block and
// returns a slice over the payload, or nil if the arena cannot satisfy the
// request. TryMalloc never grows the arena.
func (a *Arena) TryMalloc(size int) []byte {
	if size < 0 {
		return nil
	}
	want := uint64(size)
	if want == 0 {
		want = 1
	}
	req := alignUp(want + headerSize)
	if req < minBlockSize {
		req = minBlockSize
	}

	off, ok := a.allocBlock(req)
	if !ok {
		a.Stats.Failed++
		return nil
	}
	payload := a.ptr(off + headerSize)
	return unsafe.Slice((*byte)(payload), req-headerSize)[:size]
}

// Cap returns the usable capacity (payload bytes) of a block returned by
// TryMalloc, which may exceed the originally requested size due to
// rounding the block up to a 32-byte multiple.
func (a *Arena) Cap(buf []byte) int {
	off := a.blockOffsetOf(buf)
	return int(a.thisSize(off) - headerSize)
}

func (a *Arena) blockOffsetOf(buf []byte) uint64 {
	// unsafe.SliceData gives the slice's backing pointer even when
	// len(buf) == 0 (TryMalloc(0) returns a real, non-nil zero-length
	// slice) — indexing buf[0] would panic, and taking &buf would yield
	// the stack address of the local parameter instead of the arena
	// pointer it's supposed to describe.
	dataPtr := unsafe.Pointer(unsafe.SliceData(buf))
	return uint64(uintptr(dataPtr)-uintptr(a.start)) - headerSize
}

// Free marks the block backing buf as FREE and reinserts it into the
// small bin or large tree. It does not coalesce with neighbors — call
// Defragment for that. Precondition: buf was returned by TryMalloc on
// this Arena and has not already been freed.
func (a *Arena) Free(buf []byte) {
	if buf == nil {
		return
	}
	off := a.blockOffsetOf(buf)
	if off >= a.size || a.thisState(off) != StateUsed {
		panic("malloc: free of untracked or already-freed pointer")
	}

	size := a.thisSize(off)
	a.setHeader(off, size, StateFree)
	a.mirrorPrev(off)
	a.usedBytes -= size
	a.freeBytes += size
	a.insertFree(off, size)

	if size <= smallBinMaxSize {
		a.Stats.BinFree[binIndex(size)]++
	}
}

// allocBlock finds and carves a block of exactly `req` bytes (header
// included), per spec §4.2: small requests only ever consult the small
// bins, large requests only ever consult the tree; either falls through
// to the wild block on a miss.
func (a *Arena) allocBlock(req uint64) (uint64, bool) {
	if req <= smallBinMaxSize {
		bin := binIndex(req)
		if b := a.small.findBin(bin); b != -1 {
			off, _ := a.freelistPop(b)
			a.Stats.BinReuse[bin]++
			return a.useFreeBlock(off, req), true
		}
	} else {
		if off, ok := a.treeFindGE(req); ok {
			a.treeDetach(off)
			a.Stats.TreeReuse++
			return a.useFreeBlock(off, req), true
		}
	}
	return a.allocFromWild(req)
}

// useFreeBlock converts a just-detached free block at off (whose header
// still reads its pre-detach FREE size) into a USED block of size req,
// splitting and reinserting the remainder if the free block was larger.
func (a *Arena) useFreeBlock(off, req uint64) uint64 {
	actual := a.thisSize(off)
	if actual == req {
		a.setHeader(off, actual, StateUsed)
		a.mirrorPrev(off)
		a.usedBytes += actual
		a.freeBytes -= actual
		return off
	}

	remainderSize := actual - req
	a.setHeader(off, req, StateUsed)
	a.mirrorPrev(off)

	remOff := off + req
	a.setHeader(remOff, remainderSize, StateFree)
	a.mirrorPrev(remOff)

	a.usedBytes += req
	a.freeBytes -= req
	a.insertFree(remOff, remainderSize)

	if req <= smallBinMaxSize {
		a.Stats.BinSplit[binIndex(req)]++
	} else {
		a.Stats.TreeSplit++
	}
	return off
}

// allocFromWild carves req bytes off the low end of the wild block, or
// fails if doing so would leave a remainder smaller than one block.
func (a *Arena) allocFromWild(req uint64) (uint64, bool) {
	wildSize := a.thisSize(a.wildOff)
	if wildSize < req || wildSize-req < minBlockSize {
		return 0, false
	}

	off := a.wildOff
	a.setHeader(off, req, StateUsed)
	a.mirrorPrev(off)

	newWildOff := off + req
	newWildSize := wildSize - req
	a.setHeader(newWildOff, newWildSize, StateWildBlock)
	a.mirrorPrev(newWildOff)

	a.wildOff = newWildOff
	a.usedBytes += req
	a.freeBytes -= req
	a.Stats.WildAlloc++
	return off, true
}

func (a *Arena) insertFree(off, size uint64) {
	if size <= smallBinMaxSize {
		bin := binIndex(size)
		a.freelistPush(bin, off)
		a.Stats.BinPool[bin]++
	} else {
		a.treeInsert(off, size)
		a.Stats.TreePool++
	}
}

func (a *Arena) removeFree(off, size uint64) {
	if size <= smallBinMaxSize {
		a.freelistRemove(binIndex(size), off)
	} else {
		a.treeDetach(off)
	}
}

// Defragment walks the arena once, merging every FREE block with a FREE
// or WILD_BLOCK right neighbor. It is not run automatically by Free.
// Calling it twice in a row is idempotent: the second call returns 0.
// The budget parameter is accepted for forward compatibility (spec §9
// open question: its semantics at partial time exhaustion are
// unspecified) but is not currently consulted.
func (a *Arena) Defragment(budget int) int {
	_ = budget
	merges := 0

	off := a.beginOff
	for off < a.endOff {
		if a.thisState(off) != StateFree {
			off = a.nextOffset(off)
			continue
		}

		detachedSelf := false
		for {
			next := a.nextOffset(off)
			if next >= a.endOff {
				break
			}
			nst := a.thisState(next)
			if nst != StateFree && nst != StateWildBlock {
				break
			}

			if !detachedSelf {
				a.removeFree(off, a.thisSize(off))
				detachedSelf = true
			}

			nsize := a.thisSize(next)
			becameWild := nst == StateWildBlock
			if !becameWild {
				a.removeFree(next, nsize)
			}

			newSize := a.thisSize(off) + nsize
			if becameWild {
				a.setHeader(off, newSize, StateWildBlock)
				a.wildOff = off
			} else {
				a.setHeader(off, newSize, StateFree)
			}
			a.mirrorPrev(off)
			merges++

			if becameWild {
				break
			}
		}

		if detachedSelf && a.thisState(off) == StateFree {
			a.insertFree(off, a.thisSize(off))
		}
		off = a.nextOffset(off)
	}
	return merges
}
