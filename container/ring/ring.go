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

// Package ring is a GC friendly intrusive doubly-linked ring.
//
// Unlike a slice-backed ring, a Node carries its own linkage: an object
// embeds one Node per list it can simultaneously belong to, and every
// operation is O(1) and allocation free. This is the primitive queue/stack
// used to thread cthreads through the ready list, the zombie list, event
// wait lists, and awaiter lists.
package ring

// Node is one link in an intrusive ring. The zero Node is not usable;
// call Init (or rely on List.Init touching its own sentinel) before use.
// A detached Node points to itself in both directions.
type Node struct {
	next, prev *Node
	// Owner is a back-pointer to the struct this Node is embedded in.
	// Storing it here avoids container_of-style unsafe arithmetic: a
	// caller recovers the owner with a type assertion on Owner instead
	// of computing a field offset. It costs nothing extra since Owner
	// already points at heap memory the embedding struct keeps alive.
	Owner interface{}
}

// Init resets n to a detached ring of one.
func (n *Node) Init() *Node {
	n.next, n.prev = n, n
	return n
}

// IsDetached reports whether n is not currently linked into any ring.
func (n *Node) IsDetached() bool {
	return n.next == n || n.next == nil
}

// Detach removes n from whatever ring it is in and re-detaches it.
// Detaching an already-detached node is a no-op.
func (n *Node) Detach() {
	if n.IsDetached() {
		return
	}
	n.prev.next = n.next
	n.next.prev = n.prev
	n.Init()
}

// insertAfter splices n in immediately after at. Precondition: n is detached.
func (n *Node) insertAfter(at *Node) {
	n.prev = at
	n.next = at.next
	at.next.prev = n
	at.next = n
}

// insertBefore splices n in immediately before at. Precondition: n is detached.
func (n *Node) insertBefore(at *Node) {
	n.next = at
	n.prev = at.prev
	at.prev.next = n
	at.prev = n
}

// Next returns the next node in the ring, or nil if n is detached.
func (n *Node) Next() *Node {
	if n.IsDetached() {
		return nil
	}
	return n.next
}

// Prev returns the previous node in the ring, or nil if n is detached.
func (n *Node) Prev() *Node {
	if n.IsDetached() {
		return nil
	}
	return n.prev
}

// List is a ring header: an empty sentinel Node whose Owner is never used.
// Front() / Back() walk from the sentinel, so List itself is never returned
// as a member.
type List struct {
	root Node
}

// Init (re)initializes an empty list. Must be called before use.
func (l *List) Init() *List {
	l.root.Init()
	l.root.Owner = l
	return l
}

// Empty reports whether the list has no members.
func (l *List) Empty() bool {
	return l.root.IsDetached()
}

// PushFront inserts n at the head of the list (LIFO push). Precondition: n is detached.
func (l *List) PushFront(n *Node) {
	n.insertAfter(&l.root)
}

// PushBack inserts n at the tail of the list (FIFO enqueue). Precondition: n is detached.
func (l *List) PushBack(n *Node) {
	n.insertBefore(&l.root)
}

// PopFront removes and returns the head member, or nil if empty.
func (l *List) PopFront() *Node {
	if l.Empty() {
		return nil
	}
	n := l.root.next
	n.Detach()
	return n
}

// PopBack removes and returns the tail member, or nil if empty.
func (l *List) PopBack() *Node {
	if l.Empty() {
		return nil
	}
	n := l.root.prev
	n.Detach()
	return n
}

// Front returns the head member without removing it, or nil if empty.
func (l *List) Front() *Node {
	if l.Empty() {
		return nil
	}
	return l.root.next
}

// Back returns the tail member without removing it, or nil if empty.
func (l *List) Back() *Node {
	if l.Empty() {
		return nil
	}
	return l.root.prev
}

// Do calls f on every member of the list in forward (head-to-tail) order.
// f must not mutate the list being walked.
func (l *List) Do(f func(n *Node)) {
	for n := l.root.next; n != &l.root; n = n.next {
		f(n)
	}
}

// Len walks the list and counts its members. O(n); intended for invariant
// checks and tests, not hot paths.
func (l *List) Len() int {
	c := 0
	l.Do(func(*Node) { c++ })
	return c
}
