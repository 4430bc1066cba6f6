// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package asynclock implements an asynchronous reader/writer lock with an
// upgradeable read mode.
//
// Unlike sync.RWMutex, acquisition never parks an OS thread: AcquireRead,
// AcquireWrite and AcquireUpgradeableRead always return immediately with a
// *Completion, a one-shot signal that becomes ready when the lock is
// granted, when the supplied timeout elapses, or when the supplied
// context is cancelled. Release is synchronous and never blocks.
//
// The lock enforces FIFO fairness against writers: an arriving reader
// never jumps a queued writer, and a queued writer is served before any
// reader behind it in the queue. While no writer is queued, an arriving
// read request that is compatible with the current grants is granted
// even if an upgradeable-read request is already queued. An upgradeable
// reader may later acquire the write mode in place, without releasing
// its read grant first, provided no other reader is present.
//
// Recursive acquisition is not supported. Apart from the in-place
// upgrade, a second request by a goroutine that already holds a mode is
// treated like any other request; if it has to queue, it waits for a
// release that only that goroutine can make, and so never completes.
package asynclock
