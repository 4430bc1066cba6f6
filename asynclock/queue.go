// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asynclock

import "time"

// kind tags a waitNode with the acquisition flavour it is waiting for.
// A tagged variant on a single node type, rather than an inheritance
// hierarchy of node subclasses, keeps the drain loop a cache-friendly
// linear walk with no vtable indirection (spec.md §9).
type kind int

const (
	kindReadShared kind = iota
	kindReadUpgradeable
	kindWrite
)

// waitNode is one pending acquisition. It lives on the lock's doubly
// linked wait queue until it is granted (unlinked, completion resolved
// successfully) or fails (timeout or cancellation unlinks it and resolves
// the completion to a non-success terminal state).
type waitNode struct {
	kind       kind
	prev, next *waitNode
	completion *Completion

	// timer resolves the completion to (false, nil) when the requested
	// deadline elapses; nil when the caller asked for Infinite.
	timer *time.Timer
	// slowTimer fires a diagnostic log line when the waiter has been
	// queued past the configured slow-acquisition threshold; nil when
	// no threshold is configured.
	slowTimer *time.Timer

	// inQueue is true while the node is linked into the queue. It is
	// read and written only while the lock's monitor is held, and is
	// the single source of truth deciding which of {grant, timeout,
	// cancellation} wins a race to resolve this node's completion.
	inQueue bool
}

// waitQueue is a strictly FIFO doubly linked list of waitNodes, guarded
// entirely by the owning RWLock's monitor. append, unlink and peekHead are
// all O(1).
type waitQueue struct {
	head, tail *waitNode

	// writeWaiters is the count of Write-kind nodes currently linked,
	// maintained incrementally so that a fresh reader arrival can check
	// "is there a queued writer ahead of me" in O(1) rather than
	// walking the list (see RWLock.canBypassQueue).
	writeWaiters int
}

func (q *waitQueue) empty() bool {
	return q.head == nil
}

func (q *waitQueue) append(n *waitNode) {
	n.inQueue = true
	n.prev, n.next = q.tail, nil
	if q.tail != nil {
		q.tail.next = n
	} else {
		q.head = n
	}
	q.tail = n
	if n.kind == kindWrite {
		q.writeWaiters++
	}
}

// unlink excises n from wherever it sits in the queue. It is a no-op if n
// is not currently linked.
func (q *waitQueue) unlink(n *waitNode) {
	if !n.inQueue {
		return
	}
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		q.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		q.tail = n.prev
	}
	n.prev, n.next = nil, nil
	n.inQueue = false
	if n.kind == kindWrite {
		q.writeWaiters--
	}
}

// peekHead returns the head node's kind without removing it, and ok=false
// if the queue is empty.
func (q *waitQueue) peekHead() (k kind, ok bool) {
	if q.head == nil {
		return 0, false
	}
	return q.head.kind, true
}
