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

// largetree is the size-keyed AVL tree holding free blocks larger than
// smallBinMaxSize. Duplicate sizes form a FIFO ring threaded through the
// tree node occupying that key: the first block of a given size sits in
// the tree proper; later arrivals of the same size link into its ring as
// list-only nodes, marked by height < 0. All linkage is by arena byte
// offset (see block.go) rather than pointer, since free-block memory is
// never scanned by the GC.
type largetree struct {
	root int64 // arena offset of the tree root, or noOffset if empty
}

func (t *largetree) init() { t.root = noOffset }

func (a *Arena) nodeHeight(off int64) int32 {
	if off == noOffset {
		return -1
	}
	h := a.treeHeight(uint64(off))
	if h < 0 {
		// a list-only node should never be linked into the tree shape,
		// but treat it as a leaf defensively rather than corrupt arithmetic.
		return 0
	}
	return h
}

func (a *Arena) updateHeight(off uint64) {
	lh := a.nodeHeight(a.treeLeft(off))
	rh := a.nodeHeight(a.treeRight(off))
	if lh > rh {
		a.setTreeHeight(off, lh+1)
	} else {
		a.setTreeHeight(off, rh+1)
	}
}

func (a *Arena) balanceFactor(off uint64) int32 {
	return a.nodeHeight(a.treeLeft(off)) - a.nodeHeight(a.treeRight(off))
}

// ringInitAlone marks off as a solo ring (no duplicates).
func (a *Arena) ringInitAlone(off uint64) {
	a.setRingNext(off, int64(off))
	a.setRingPrev(off, int64(off))
}

func (a *Arena) ringIsAlone(off uint64) bool {
	return a.ringNext(off) == int64(off)
}

// ringJoin links newOff into host's duplicate ring as a list-only node,
// inserted at the tail so host's ringNext stays the oldest (FIFO) member.
func (a *Arena) ringJoin(host, newOff uint64) {
	hostPrev := a.ringPrev(host)
	a.setRingPrev(newOff, hostPrev)
	a.setRingNext(newOff, int64(host))
	a.setRingNext(uint64(hostPrev), int64(newOff))
	a.setRingPrev(host, int64(newOff))
	a.setTreeHeight(newOff, -1)
	a.setTreeLeft(newOff, noOffset)
	a.setTreeRight(newOff, noOffset)
	a.setTreeParent(newOff, noOffset)
}

// ringRemove splices off out of its ring, leaving the remaining members
// (if any) correctly linked to each other. Safe to call on a solo ring.
func (a *Arena) ringRemove(off uint64) {
	if a.ringIsAlone(off) {
		return
	}
	p := a.ringPrev(off)
	n := a.ringNext(off)
	a.setRingNext(uint64(p), n)
	a.setRingPrev(uint64(n), p)
	a.ringInitAlone(off)
}

// treeInsert inserts a free block of the given (already header-stamped) size.
func (a *Arena) treeInsert(off, size uint64) {
	if a.large.root == noOffset {
		a.large.root = int64(off)
		a.setTreeParent(off, noOffset)
		a.setTreeLeft(off, noOffset)
		a.setTreeRight(off, noOffset)
		a.setTreeHeight(off, 0)
		a.ringInitAlone(off)
		return
	}
	cur := uint64(a.large.root)
	for {
		sz := a.thisSize(cur)
		switch {
		case size == sz:
			a.ringJoin(cur, off)
			return
		case size < sz:
			if l := a.treeLeft(cur); l != noOffset {
				cur = uint64(l)
				continue
			}
			a.setTreeLeft(cur, int64(off))
		default:
			if r := a.treeRight(cur); r != noOffset {
				cur = uint64(r)
				continue
			}
			a.setTreeRight(cur, int64(off))
		}
		break
	}
	a.setTreeParent(off, int64(cur))
	a.setTreeLeft(off, noOffset)
	a.setTreeRight(off, noOffset)
	a.setTreeHeight(off, 0)
	a.ringInitAlone(off)
	a.retrace(int64(cur))
}

// treeFindGE returns the offset of the smallest-keyed free block with
// size >= requested, or (0, false).
func (a *Arena) treeFindGE(size uint64) (uint64, bool) {
	cur := a.large.root
	best := noOffset
	for cur != noOffset {
		sz := a.thisSize(uint64(cur))
		switch {
		case sz == size:
			return uint64(cur), true
		case sz > size:
			best = cur
			cur = a.treeLeft(uint64(cur))
		default:
			cur = a.treeRight(uint64(cur))
		}
	}
	if best == noOffset {
		return 0, false
	}
	return uint64(best), true
}

// treeDetach removes off from the large-block structure, handling all
// three cases from the design: a list-only duplicate just unlinks from
// its ring; a tree-resident node with no duplicates is removed by
// ordinary AVL delete + rebalance; a tree-resident node with duplicates
// promotes its oldest ring member into the tree slot in its place.
func (a *Arena) treeDetach(off uint64) {
	if a.treeHeight(off) < 0 {
		// case: list-node — unlink ring only.
		a.ringRemove(off)
		return
	}
	if !a.ringIsAlone(off) {
		// case: tree-node with non-empty ring — promote the oldest
		// duplicate into off's tree slot, copying AVL links verbatim.
		promoted := uint64(a.ringNext(off))
		a.ringRemove(off)

		left, right, parent, h := a.treeLeft(off), a.treeRight(off), a.treeParent(off), a.treeHeight(off)
		a.setTreeLeft(promoted, left)
		a.setTreeRight(promoted, right)
		a.setTreeParent(promoted, parent)
		a.setTreeHeight(promoted, h)
		if left != noOffset {
			a.setTreeParent(uint64(left), int64(promoted))
		}
		if right != noOffset {
			a.setTreeParent(uint64(right), int64(promoted))
		}
		if parent == noOffset {
			a.large.root = int64(promoted)
		} else if a.treeLeft(uint64(parent)) == int64(off) {
			a.setTreeLeft(uint64(parent), int64(promoted))
		} else {
			a.setTreeRight(uint64(parent), int64(promoted))
		}
		return
	}
	// case: tree-node with empty ring — ordinary AVL remove.
	a.avlRemove(off)
}

func (a *Arena) avlRemove(off uint64) {
	left, right, parent := a.treeLeft(off), a.treeRight(off), a.treeParent(off)

	if left != noOffset && right != noOffset {
		succ := uint64(right)
		for {
			l := a.treeLeft(succ)
			if l == noOffset {
				break
			}
			succ = uint64(l)
		}
		succParent := a.treeParent(succ)
		succRight := a.treeRight(succ)

		rebalanceFrom := succParent
		if succParent != int64(off) {
			a.setTreeLeft(uint64(succParent), succRight)
			if succRight != noOffset {
				a.setTreeParent(uint64(succRight), succParent)
			}
			a.setTreeRight(succ, int64(right))
			a.setTreeParent(uint64(right), int64(succ))
		} else {
			rebalanceFrom = int64(succ)
		}

		a.setTreeLeft(succ, left)
		a.setTreeParent(uint64(left), int64(succ))
		a.setTreeParent(succ, parent)
		if parent == noOffset {
			a.large.root = int64(succ)
		} else if a.treeLeft(uint64(parent)) == int64(off) {
			a.setTreeLeft(uint64(parent), int64(succ))
		} else {
			a.setTreeRight(uint64(parent), int64(succ))
		}
		a.setTreeHeight(succ, a.treeHeight(off))
		a.retrace(rebalanceFrom)
		return
	}

	child := left
	if child == noOffset {
		child = right
	}
	if child != noOffset {
		a.setTreeParent(uint64(child), parent)
	}
	if parent == noOffset {
		a.large.root = child
	} else if a.treeLeft(uint64(parent)) == int64(off) {
		a.setTreeLeft(uint64(parent), child)
	} else {
		a.setTreeRight(uint64(parent), child)
	}
	a.retrace(parent)
}

// retrace walks from `start` up to the root, fixing heights and rotating
// as needed. Used after both insertion and deletion; rebalance is
// idempotent on an already-balanced node, so always retracing to the
// root (rather than stopping early once a subtree's height stabilizes)
// is simply a few redundant no-op checks, never incorrect.
func (a *Arena) retrace(start int64) {
	cur := start
	for cur != noOffset {
		node := uint64(cur)
		a.updateHeight(node)
		bf := a.balanceFactor(node)
		switch {
		case bf > 1:
			if a.balanceFactor(uint64(a.treeLeft(node))) < 0 {
				a.rotateLeft(uint64(a.treeLeft(node)))
			}
			node = a.rotateRight(node)
		case bf < -1:
			if a.balanceFactor(uint64(a.treeRight(node))) > 0 {
				a.rotateRight(uint64(a.treeRight(node)))
			}
			node = a.rotateLeft(node)
		}
		cur = a.treeParent(node)
	}
}

func (a *Arena) rotateLeft(x uint64) uint64 {
	y := uint64(a.treeRight(x))
	t2 := a.treeLeft(y)
	a.setTreeRight(x, t2)
	if t2 != noOffset {
		a.setTreeParent(uint64(t2), int64(x))
	}
	p := a.treeParent(x)
	a.setTreeParent(y, p)
	if p == noOffset {
		a.large.root = int64(y)
	} else if a.treeLeft(uint64(p)) == int64(x) {
		a.setTreeLeft(uint64(p), int64(y))
	} else {
		a.setTreeRight(uint64(p), int64(y))
	}
	a.setTreeLeft(y, int64(x))
	a.setTreeParent(x, int64(y))
	a.updateHeight(x)
	a.updateHeight(y)
	return y
}

func (a *Arena) rotateRight(x uint64) uint64 {
	y := uint64(a.treeLeft(x))
	t2 := a.treeRight(y)
	a.setTreeLeft(x, t2)
	if t2 != noOffset {
		a.setTreeParent(uint64(t2), int64(x))
	}
	p := a.treeParent(x)
	a.setTreeParent(y, p)
	if p == noOffset {
		a.large.root = int64(y)
	} else if a.treeLeft(uint64(p)) == int64(x) {
		a.setTreeLeft(uint64(p), int64(y))
	} else {
		a.setTreeRight(uint64(p), int64(y))
	}
	a.setTreeRight(y, int64(x))
	a.setTreeParent(x, int64(y))
	a.updateHeight(x)
	a.updateHeight(y)
	return y
}
