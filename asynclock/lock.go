// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asynclock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Infinite is the sentinel timeout value meaning "no deadline". Any other
// negative timeout is rejected with ErrInvalidArgument.
const Infinite time.Duration = -1

// RWLock is an asynchronous reader/writer lock with an upgradeable read
// mode. See the package doc comment for the full contract. The zero value
// is not usable; construct one with New.
type RWLock struct {
	// mu is the "monitor" guarding every field below and the wait
	// queue. It is held for O(1) work on acquire and O(k) work on
	// release, where k is the length of the grantable reader prefix
	// drained — amortised O(1) per waiter over the lock's lifetime.
	mu sync.Mutex

	readers    int
	writerHeld bool
	upgraded   bool
	disposed   bool
	q          waitQueue

	cfg config
	id  string
}

// New constructs a ready-to-use RWLock. The slow-acquisition threshold
// defaults to whatever EnvSlowAcquisitionThreshold specifies in the
// process environment, if anything; WithSlowAcquisitionThreshold always
// takes precedence over it.
func New(opts ...Option) *RWLock {
	cfg := defaultConfig
	cfg.slowThreshold = envSlowAcquisitionThreshold()
	for _, o := range opts {
		o.apply(&cfg)
	}
	return &RWLock{cfg: cfg, id: uuid.New().String()[:8]}
}

// AcquireRead requests the shared read mode. See the package doc comment
// and spec.md §4.3 for the grant predicate.
func (l *RWLock) AcquireRead(ctx context.Context, timeout time.Duration) (*Completion, error) {
	return l.acquire(kindReadShared, ctx, timeout, "AcquireRead")
}

// AcquireWrite requests the exclusive write mode.
func (l *RWLock) AcquireWrite(ctx context.Context, timeout time.Duration) (*Completion, error) {
	return l.acquire(kindWrite, ctx, timeout, "AcquireWrite")
}

// AcquireUpgradeableRead requests the upgradeable read mode: a read grant
// that reserves the exclusive right to later call AcquireWrite and have
// it succeed in place, without releasing the read grant first, provided
// no other reader is present at that time.
func (l *RWLock) AcquireUpgradeableRead(ctx context.Context, timeout time.Duration) (*Completion, error) {
	return l.acquire(kindReadUpgradeable, ctx, timeout, "AcquireUpgradeableRead")
}

// canBypassQueue reports whether a request of kind k may be granted
// without ever touching the queue, given who else is already queued.
// Writers must see a completely empty queue: letting a writer cut in
// front of any earlier arrival, reader or writer, would break FIFO.
// Readers only need to see no queued writer ahead of them — a queued
// reader (e.g. an upgradeable reader waiting for the current one to
// exit) does not block a fresh, compatible read request. This is what
// lets scenario 3 in spec.md §8 grant a plain read while an upgradeable
// read sits queued behind it, while still preventing writer starvation
// (spec.md §4.3). Callers must hold l.mu.
func (l *RWLock) canBypassQueue(k kind) bool {
	if k == kindWrite {
		return l.q.empty()
	}
	return l.q.writeWaiters == 0
}

// predicateHolds reports whether k is immediately grantable against the
// current state. Callers must hold l.mu.
func (l *RWLock) predicateHolds(k kind) bool {
	switch k {
	case kindReadShared:
		return !l.writerHeld
	case kindReadUpgradeable:
		return !l.writerHeld && !l.upgraded
	case kindWrite:
		return !l.writerHeld && (l.readers == 0 || (l.readers == 1 && l.upgraded))
	default:
		return false
	}
}

// mutateForGrant applies the state mutation associated with granting k.
// Callers must hold l.mu. Note that granting Write never decrements
// readers, even in the in-place-upgrade case: the upgraded reader's slot
// is kept for symmetric release accounting (spec.md §3).
func (l *RWLock) mutateForGrant(k kind) {
	switch k {
	case kindReadShared:
		l.readers++
	case kindReadUpgradeable:
		l.readers++
		l.upgraded = true
	case kindWrite:
		l.writerHeld = true
	}
}

func (l *RWLock) acquire(k kind, ctx context.Context, timeout time.Duration, op string) (*Completion, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout != Infinite && timeout < 0 {
		return nil, newError(KindInvalidArgument, op, "timeout must be asynclock.Infinite or non-negative")
	}

	l.mu.Lock()
	if l.disposed {
		l.mu.Unlock()
		return nil, newError(KindDisposed, op, "")
	}

	// A reader arriving to an idle lock, or one with only compatible
	// readers already queued, never queues itself. See canBypassQueue
	// for why writers require a wholly empty queue but readers only
	// require the absence of a queued writer.
	if l.canBypassQueue(k) && l.predicateHolds(k) {
		l.mutateForGrant(k)
		l.mu.Unlock()
		return newResolved(true, nil), nil
	}

	node := &waitNode{kind: k, completion: newCompletion()}
	l.q.append(node)
	l.mu.Unlock()

	l.installWatchers(node, ctx, timeout, op)
	return node.completion, nil
}

// installWatchers arms the timeout timer, the context-cancellation
// watcher, and the slow-acquisition timer for a freshly queued node. Each
// races independently against a grant; the monitor decides exactly one
// winner via waitNode.inQueue (spec.md §5's ordering guarantees).
func (l *RWLock) installWatchers(node *waitNode, ctx context.Context, timeout time.Duration, op string) {
	if timeout != Infinite {
		node.timer = time.AfterFunc(timeout, func() {
			l.failWaiter(node, false, nil)
		})
	}
	if done := ctx.Done(); done != nil {
		go func() {
			select {
			case <-done:
				l.failWaiter(node, false, newError(KindCancelled, op, ctx.Err().Error()))
			case <-node.completion.Done():
			}
		}()
	}
	if l.cfg.slowThreshold > 0 {
		start := time.Now()
		node.slowTimer = time.AfterFunc(l.cfg.slowThreshold, func() {
			l.logIfStillWaiting(node, op, start)
		})
	}
}

func (l *RWLock) logIfStillWaiting(node *waitNode, op string, start time.Time) {
	l.mu.Lock()
	stillWaiting := node.inQueue
	l.mu.Unlock()
	if stillWaiting {
		l.cfg.logger.Warningf("%s[%s]: %s: still waiting after %s", l.cfg.name, l.id, op, time.Since(start))
	}
}

// failWaiter unlinks node and resolves its completion to (granted, err)
// if and only if node is still queued; otherwise a grant already won the
// race and this call is a no-op, per spec.md §5's cancellation-races-
// grant handling.
func (l *RWLock) failWaiter(node *waitNode, granted bool, err error) {
	l.mu.Lock()
	if !node.inQueue {
		l.mu.Unlock()
		return
	}
	l.q.unlink(node)
	stopTimers(node)
	l.mu.Unlock()
	node.completion.resolve(granted, err)
}

func stopTimers(node *waitNode) {
	if node.timer != nil {
		node.timer.Stop()
	}
	if node.slowTimer != nil {
		node.slowTimer.Stop()
	}
}

// grantQueuedWriter unlinks and grants the queued writer at the head of
// the queue, if any, and sets l.writerHeld. Callers must hold l.mu and
// must only call this when a write grant is admissible: either no reader
// is left, or the only reader left is the upgradeable one, or the caller
// is ReleaseWrite handing the write mode directly to the next writer.
func (l *RWLock) grantQueuedWriter() *waitNode {
	k, ok := l.q.peekHead()
	if !ok || k != kindWrite {
		return nil
	}
	node := l.q.head
	l.q.unlink(node)
	stopTimers(node)
	l.writerHeld = true
	return node
}

// drainReaders walks the queue from the head, granting every reader it
// encounters and stopping at the first writer. An upgradeable-read node
// encountered while l.upgraded is already true is skipped in place
// (spec.md §4.5) rather than unlinked, preserving its queue position as
// the next upgradeable candidate. Callers must hold l.mu and must only
// call this when !l.writerHeld.
func (l *RWLock) drainReaders() []*waitNode {
	var granted []*waitNode
	cur := l.q.head
	for cur != nil {
		next := cur.next
		switch cur.kind {
		case kindReadShared:
			l.q.unlink(cur)
			stopTimers(cur)
			l.readers++
			granted = append(granted, cur)
		case kindReadUpgradeable:
			if !l.upgraded {
				l.q.unlink(cur)
				stopTimers(cur)
				l.upgraded = true
				l.readers++
				granted = append(granted, cur)
			}
			// else: leave in place, it remains the next upgradeable candidate.
		case kindWrite:
			return granted
		}
		cur = next
	}
	return granted
}

// resolveGrants completes every node's completion with a successful
// grant. Callers must not hold l.mu: this always runs after the monitor
// has been released, so that any continuation a waiter runs cannot
// reenter the lock while its state mutation is still uncommitted.
func resolveGrants(nodes []*waitNode) {
	for _, n := range nodes {
		n.completion.resolve(true, nil)
	}
}

// ReleaseRead releases a previously granted shared read mode. It returns
// ErrNotHeld if the caller does not hold a plain read grant — notably,
// an upgradeable-read holder must call ReleaseUpgradeableRead instead;
// the two release methods are not interchangeable (spec.md §9).
func (l *RWLock) ReleaseRead() error {
	l.mu.Lock()
	if l.disposed {
		l.mu.Unlock()
		return newError(KindDisposed, "ReleaseRead", "")
	}
	if l.writerHeld || l.readers < 1 || (l.readers == 1 && l.upgraded) {
		l.mu.Unlock()
		return newError(KindNotHeld, "ReleaseRead", "")
	}

	l.readers--
	var toGrant []*waitNode
	if l.readers == 0 || (l.readers == 1 && l.upgraded) {
		// No reader wake here: any queued reader at this point is
		// necessarily behind a queued writer (fairness). That writer's
		// predicate holds once no reader is left, or once the only
		// reader left is the upgradeable one (in-place upgrade), so
		// only the writer (if any) can be woken.
		if node := l.grantQueuedWriter(); node != nil {
			toGrant = []*waitNode{node}
		}
	}
	l.mu.Unlock()
	resolveGrants(toGrant)
	return nil
}

// ReleaseWrite releases a previously granted exclusive write mode. If a
// writer is queued at the head, it is granted directly (writer-to-writer
// handoff, writerHeld stays true throughout) preserving strict FIFO even
// across the read/write boundary; otherwise the write mode is cleared and
// the reader prefix is drained.
func (l *RWLock) ReleaseWrite() error {
	l.mu.Lock()
	if l.disposed {
		l.mu.Unlock()
		return newError(KindDisposed, "ReleaseWrite", "")
	}
	if !l.writerHeld {
		l.mu.Unlock()
		return newError(KindNotHeld, "ReleaseWrite", "")
	}

	if node := l.grantQueuedWriter(); node != nil {
		l.mu.Unlock()
		resolveGrants([]*waitNode{node})
		return nil
	}

	l.writerHeld = false
	// The head is already known not to be a Write node (the grantQueuedWriter
	// call above returned nil), so any reader prefix, whether readers is
	// currently 0 or left over from an in-place upgrade, must be drained here.
	toGrant := l.drainReaders()
	l.mu.Unlock()
	resolveGrants(toGrant)
	return nil
}

// ReleaseUpgradeableRead releases a previously granted upgradeable read
// mode. A caller that upgraded in place with AcquireWrite must release in
// reverse order: ReleaseWrite first, then ReleaseUpgradeableRead.
func (l *RWLock) ReleaseUpgradeableRead() error {
	l.mu.Lock()
	if l.disposed {
		l.mu.Unlock()
		return newError(KindDisposed, "ReleaseUpgradeableRead", "")
	}
	if l.writerHeld || !l.upgraded || l.readers < 1 {
		l.mu.Unlock()
		return newError(KindNotHeld, "ReleaseUpgradeableRead", "")
	}

	l.upgraded = false
	l.readers--
	var toGrant []*waitNode
	if l.readers == 0 {
		if node := l.grantQueuedWriter(); node != nil {
			toGrant = []*waitNode{node}
		}
	}
	if toGrant == nil {
		toGrant = l.drainReaders()
	}
	l.mu.Unlock()
	resolveGrants(toGrant)
	return nil
}

// Dispose transitions the lock to a terminal disposed state, failing
// every pending waiter with ErrDisposed. It is idempotent: calling
// Dispose more than once has no further effect. Every subsequent acquire
// or release call fails with ErrDisposed.
func (l *RWLock) Dispose() {
	l.mu.Lock()
	if l.disposed {
		l.mu.Unlock()
		return
	}
	l.disposed = true

	var failed []*waitNode
	cur := l.q.head
	for cur != nil {
		next := cur.next
		l.q.unlink(cur)
		stopTimers(cur)
		failed = append(failed, cur)
		cur = next
	}
	l.mu.Unlock()

	for _, n := range failed {
		n.completion.resolve(false, newError(KindDisposed, "Dispose", ""))
	}
	l.cfg.logger.Infof("%s[%s]: disposed, failed %d pending waiter(s)", l.cfg.name, l.id, len(failed))
}

// CurrentReadCount returns a snapshot of the number of currently granted
// read grants, including an upgradeable reader if one is held. Like the
// other accessors below, the value may be stale the instant after it is
// observed if other goroutines are concurrently acquiring or releasing.
func (l *RWLock) CurrentReadCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readers
}

// IsReadHeld reports whether any read grant, plain or upgradeable, is
// currently outstanding.
func (l *RWLock) IsReadHeld() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readers > 0
}

// IsWriteHeld reports whether a write grant is currently outstanding.
func (l *RWLock) IsWriteHeld() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writerHeld
}

// IsUpgradeableReadHeld reports whether the current upgradeable reader
// has not yet upgraded to the write mode.
func (l *RWLock) IsUpgradeableReadHeld() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.upgraded && !l.writerHeld
}
