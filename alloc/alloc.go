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

// Package alloc is the kernel-facing entry point for the fixed-arena
// allocator: it owns one unsafex/malloc.Arena carved out of the memory
// the kernel was configured with, and exposes the three operations a
// cthread is allowed to call directly.
package alloc

import (
	"fmt"

	"github.com/cloudwego/akrun/unsafex/malloc"
)

// Allocator wraps a single fixed arena. It is not safe for concurrent
// use from more than one cthread at a time — like the rest of this
// runtime, callers are expected to be single-threaded cooperative code.
type Allocator struct {
	arena *malloc.Arena
}

// New carves an Allocator out of mem. mem must be at least
// malloc.MinArenaSize bytes.
func New(mem []byte) (*Allocator, error) {
	a, err := malloc.Init(mem)
	if err != nil {
		return nil, fmt.Errorf("alloc: %w", err)
	}
	return &Allocator{arena: a}, nil
}

// TryAllocMem returns a zero-length-safe slice of size bytes, or nil if
// the arena cannot satisfy the request. It never panics and never grows
// the arena.
func (a *Allocator) TryAllocMem(size int) []byte {
	return a.arena.TryMalloc(size)
}

// FreeMem returns buf's backing block to the allocator. buf must have
// been returned by TryAllocMem on this Allocator and not already freed;
// violating that precondition is a programmer error, not a runtime one.
func (a *Allocator) FreeMem(buf []byte) {
	a.arena.Free(buf)
}

// DefragmentMem walks the arena once, merging adjacent FREE/WILD_BLOCK
// runs, and returns the number of merges performed. budget is accepted
// per the public contract but not currently consulted (see
// unsafex/malloc.Arena.Defragment).
func (a *Allocator) DefragmentMem(budget int) int {
	return a.arena.Defragment(budget)
}

// Stats returns a copy of the arena's allocation counters.
func (a *Allocator) Stats() malloc.Stats {
	return a.arena.Stats
}

// FreeBytes and UsedBytes report the arena's current byte accounting;
// FreeBytes() + UsedBytes() == the arena's laid-out size at all times.
func (a *Allocator) FreeBytes() uint64 { return a.arena.FreeBytes() }
func (a *Allocator) UsedBytes() uint64 { return a.arena.UsedBytes() }

// Cap returns the usable capacity of a block returned by TryAllocMem.
func (a *Allocator) Cap(buf []byte) int { return a.arena.Cap(buf) }
