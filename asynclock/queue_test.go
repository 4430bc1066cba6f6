// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asynclock

import "testing"

func drainOrder(q *waitQueue) []kind {
	var order []kind
	for n := q.head; n != nil; n = n.next {
		order = append(order, n.kind)
	}
	return order
}

func TestWaitQueueAppendIsFIFO(t *testing.T) {
	var q waitQueue
	a := &waitNode{kind: kindReadShared}
	b := &waitNode{kind: kindWrite}
	c := &waitNode{kind: kindReadUpgradeable}
	q.append(a)
	q.append(b)
	q.append(c)

	got := drainOrder(&q)
	want := []kind{kindReadShared, kindWrite, kindReadUpgradeable}
	if len(got) != len(want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
	if q.writeWaiters != 1 {
		t.Fatalf("writeWaiters = %d, want 1", q.writeWaiters)
	}
}

func TestWaitQueueUnlinkMiddle(t *testing.T) {
	var q waitQueue
	a := &waitNode{kind: kindReadShared}
	b := &waitNode{kind: kindReadShared}
	c := &waitNode{kind: kindReadShared}
	q.append(a)
	q.append(b)
	q.append(c)

	q.unlink(b)

	if b.inQueue {
		t.Fatal("unlinked node still reports inQueue")
	}
	got := drainOrder(&q)
	if len(got) != 2 {
		t.Fatalf("order length = %d, want 2", len(got))
	}
	if q.head != a || q.tail != c || a.next != c || c.prev != a {
		t.Fatal("unlink did not correctly relink neighbours")
	}
}

func TestWaitQueueUnlinkHeadAndTail(t *testing.T) {
	var q waitQueue
	a := &waitNode{kind: kindReadShared}
	q.append(a)
	q.unlink(a)
	if !q.empty() {
		t.Fatal("queue not empty after unlinking its only node")
	}
	if q.head != nil || q.tail != nil {
		t.Fatal("head/tail not cleared after unlinking the only node")
	}
}

func TestWaitQueueUnlinkIsNoopWhenNotLinked(t *testing.T) {
	var q waitQueue
	a := &waitNode{kind: kindWrite}
	q.append(a)
	q.unlink(a)
	before := q.writeWaiters
	q.unlink(a) // second call: a.inQueue is already false
	if q.writeWaiters != before {
		t.Fatalf("writeWaiters changed on no-op unlink: got %d, want %d", q.writeWaiters, before)
	}
}

func TestWaitQueueWriteWaitersTracksWriters(t *testing.T) {
	var q waitQueue
	w1 := &waitNode{kind: kindWrite}
	r1 := &waitNode{kind: kindReadShared}
	w2 := &waitNode{kind: kindWrite}
	q.append(w1)
	q.append(r1)
	q.append(w2)
	if q.writeWaiters != 2 {
		t.Fatalf("writeWaiters = %d, want 2", q.writeWaiters)
	}
	q.unlink(w1)
	if q.writeWaiters != 1 {
		t.Fatalf("writeWaiters = %d, want 1 after unlinking one writer", q.writeWaiters)
	}
	q.unlink(r1)
	if q.writeWaiters != 1 {
		t.Fatalf("writeWaiters = %d, want 1 after unlinking a non-writer", q.writeWaiters)
	}
}

func TestWaitQueuePeekHead(t *testing.T) {
	var q waitQueue
	if _, ok := q.peekHead(); ok {
		t.Fatal("peekHead on empty queue returned ok=true")
	}
	n := &waitNode{kind: kindReadUpgradeable}
	q.append(n)
	k, ok := q.peekHead()
	if !ok || k != kindReadUpgradeable {
		t.Fatalf("peekHead() = (%v, %v), want (kindReadUpgradeable, true)", k, ok)
	}
}
