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

// Package malloc implements a fixed-arena, segregated-fit allocator: a
// byte slice supplied once at Init time is carved into header-prefixed
// blocks and never grows. Small free blocks are tracked by 64 size-class
// freelists indexed by a 64-bit occupancy mask; free blocks too large for
// those bins live in a size-keyed AVL tree with FIFO duplicate rings.
//
// Blocks never hold real Go pointers: every intra-arena link (freelist
// linkage, AVL tree linkage) is a plain byte offset into the arena, not an
// unsafe.Pointer. A []byte's backing array is scanned by the GC as opaque,
// non-pointer memory, so hiding live heap pointers inside arbitrary byte
// offsets of the arena would be invisible to the collector. Offsets avoid
// that hazard entirely, at the cost of one subtraction/addition per hop.
package malloc

import (
	"fmt"
	"unsafe"
)

// BlockState is the state of one arena block, mirrored on both the block's
// own header and its neighbors' prev-side header.
type BlockState uint8

const (
	StateInvalid BlockState = iota
	StateUsed
	StateFree
	StateWildBlock
	StateBeginSentinel
	StateEndSentinel
)

func (s BlockState) String() string {
	switch s {
	case StateUsed:
		return "USED"
	case StateFree:
		return "FREE"
	case StateWildBlock:
		return "WILD_BLOCK"
	case StateBeginSentinel:
		return "BEGIN_SENTINEL"
	case StateEndSentinel:
		return "END_SENTINEL"
	default:
		return "INVALID"
	}
}

const (
	// blockAlign is the required alignment and granularity of every block
	// size, including the header.
	blockAlign = 32
	// minBlockSize is the smallest legal block (header + one 16-byte link pair).
	minBlockSize = blockAlign
	// headerSize is the 16-byte (this, prev) size+state header every block carries.
	headerSize = 16
	// smallBinMaxSize is the largest block size tracked by the small-bin freelists;
	// anything bigger lives in the large tree.
	smallBinMaxSize = 2048
	// largeNodeSize is the space reserved for AVL linkage in a large free
	// block: header (16) + left/right/parent/ringNext/ringPrev (5*8=40) +
	// height+pad (8) = 64 bytes, matching the original design's comment
	// that tree links fit inside a 64-byte free block.
	largeNodeSize = 64

	stateBits = 5
	stateMask = uint64(1<<stateBits) - 1
	sizeMask  = ^stateMask

	noOffset = int64(-1)
)

// alignUp rounds n up to the next multiple of blockAlign.
func alignUp(n uint64) uint64 {
	return (n + blockAlign - 1) &^ (blockAlign - 1)
}

// pack combines a block size (already 32-aligned) and its state into the
// 64-bit word stored on one side of a block header.
func pack(size uint64, st BlockState) uint64 {
	return (size &^ stateMask) | uint64(st)
}

func unpackSize(word uint64) uint64    { return word &^ stateMask }
func unpackState(word uint64) BlockState { return BlockState(word & stateMask) }

// ptr returns the address of byte offset off within the arena.
func (a *Arena) ptr(off uint64) unsafe.Pointer {
	return unsafe.Add(a.start, off)
}

func (a *Arena) word(off uint64) *uint64 {
	return (*uint64)(a.ptr(off))
}

// thisWord / prevWord address the two halves of a block's 16-byte header.
func (a *Arena) thisWord(off uint64) uint64      { return *a.word(off) }
func (a *Arena) setThisWord(off, w uint64)        { *a.word(off) = w }
func (a *Arena) prevWord(off uint64) uint64       { return *a.word(off + 8) }
func (a *Arena) setPrevWord(off, w uint64)        { *a.word(off+8) = w }

func (a *Arena) thisSize(off uint64) uint64    { return unpackSize(a.thisWord(off)) }
func (a *Arena) thisState(off uint64) BlockState { return unpackState(a.thisWord(off)) }
func (a *Arena) prevSize(off uint64) uint64    { return unpackSize(a.prevWord(off)) }
func (a *Arena) prevState(off uint64) BlockState { return unpackState(a.prevWord(off)) }

// setHeader stamps off's own (this) header. size must already be 32-aligned.
func (a *Arena) setHeader(off uint64, size uint64, st BlockState) {
	a.setThisWord(off, pack(size, st))
}

// mirrorPrev stamps the header of the block following off with off's own
// size/state, maintaining the bidirectional linkage invariant.
func (a *Arena) mirrorPrev(off uint64) {
	size, st := a.thisSize(off), a.thisState(off)
	next := off + size
	if next < a.endOff+minBlockSize {
		a.setPrevWord(next, pack(size, st))
	}
}

// nextOffset returns the offset of the block following off.
func (a *Arena) nextOffset(off uint64) uint64 { return off + a.thisSize(off) }

// prevOffset returns the offset of the block preceding off.
func (a *Arena) prevOffset(off uint64) uint64 { return off - a.prevSize(off) }

// --- small free block overlay: header(16) + prevOff(8) + nextOff(8) = 32 ---

func (a *Arena) smallPrevOff(off uint64) int64     { return *(*int64)(a.ptr(off + headerSize)) }
func (a *Arena) setSmallPrevOff(off uint64, v int64) { *(*int64)(a.ptr(off + headerSize)) = v }
func (a *Arena) smallNextOff(off uint64) int64     { return *(*int64)(a.ptr(off + headerSize + 8)) }
func (a *Arena) setSmallNextOff(off uint64, v int64) { *(*int64)(a.ptr(off + headerSize + 8)) = v }

// --- large free block overlay: header(16) + left,right,parent,ringNext,ringPrev(40) + height+pad(8) = 64 ---

const (
	offLeft     = headerSize
	offRight    = headerSize + 8
	offParent   = headerSize + 16
	offRingNext = headerSize + 24
	offRingPrev = headerSize + 32
	offHeight   = headerSize + 40
)

func (a *Arena) treeLeft(off uint64) int64       { return *(*int64)(a.ptr(off + offLeft)) }
func (a *Arena) setTreeLeft(off uint64, v int64)  { *(*int64)(a.ptr(off + offLeft)) = v }
func (a *Arena) treeRight(off uint64) int64      { return *(*int64)(a.ptr(off + offRight)) }
func (a *Arena) setTreeRight(off uint64, v int64) { *(*int64)(a.ptr(off + offRight)) = v }
func (a *Arena) treeParent(off uint64) int64     { return *(*int64)(a.ptr(off + offParent)) }
func (a *Arena) setTreeParent(off uint64, v int64) { *(*int64)(a.ptr(off + offParent)) = v }
func (a *Arena) ringNext(off uint64) int64       { return *(*int64)(a.ptr(off + offRingNext)) }
func (a *Arena) setRingNext(off uint64, v int64)  { *(*int64)(a.ptr(off + offRingNext)) = v }
func (a *Arena) ringPrev(off uint64) int64       { return *(*int64)(a.ptr(off + offRingPrev)) }
func (a *Arena) setRingPrev(off uint64, v int64)  { *(*int64)(a.ptr(off + offRingPrev)) = v }
func (a *Arena) treeHeight(off uint64) int32     { return *(*int32)(a.ptr(off + offHeight)) }
func (a *Arena) setTreeHeight(off uint64, v int32) { *(*int32)(a.ptr(off + offHeight)) = v }

// formatBlockErr is used by invariant checks and programmer-error paths.
func formatBlockErr(format string, args ...interface{}) error {
	return fmt.Errorf("malloc: "+format, args...)
}
