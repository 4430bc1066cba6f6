// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asynclock

import "sync"

// Completion is a one-shot, multi-producer/single-consumer signal
// returned by every Acquire* method. It resolves exactly once, to either
// a grant (true, nil), a timeout (false, nil), or a terminal error
// (false, err wrapping ErrCancelled or ErrDisposed).
//
// A Completion returned while the lock was idle is already resolved: no
// goroutine is spawned and Wait returns without yielding to the
// scheduler, per spec.md §8's "pre-completed signal" law.
type Completion struct {
	mu       sync.Mutex
	resolved bool
	granted  bool
	err      error
	done     chan struct{}
}

func newCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// newResolved returns an already-terminal Completion. Used on the acquire
// fast path, where the predicate held and the queue was empty.
func newResolved(granted bool, err error) *Completion {
	c := &Completion{done: make(chan struct{}), resolved: true, granted: granted, err: err}
	close(c.done)
	return c
}

// resolve transitions c to a terminal state. It is idempotent: only the
// first call has any effect, matching spec.md §4.1's "Idempotent-after-
// terminal" requirement (the release path may race a timeout or
// cancellation). Callers must invoke resolve only after releasing the
// lock's monitor, so that any continuation a Wait()ing goroutine runs
// never reenters the lock while the monitor is held.
func (c *Completion) resolve(granted bool, err error) {
	c.mu.Lock()
	if c.resolved {
		c.mu.Unlock()
		return
	}
	c.resolved = true
	c.granted = granted
	c.err = err
	c.mu.Unlock()
	close(c.done)
}

// Done returns a channel that is closed once the Completion resolves, for
// composing with select alongside other channels.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Result returns the resolved outcome. It must only be called after Done
// has been observed closed (or after Wait returns); calling it earlier
// returns the zero values.
func (c *Completion) Result() (granted bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.granted, c.err
}

// Wait blocks until the Completion resolves and returns its outcome.
func (c *Completion) Wait() (bool, error) {
	<-c.done
	return c.Result()
}

// WaitOrTimeoutErr is the convenience wrapper from spec.md §6: it blocks
// like Wait, but turns a (false, nil) timeout outcome into ErrTimeout so
// that callers who prefer infallible-looking acquisition semantics can
// treat any non-nil error, including a timeout, uniformly.
func (c *Completion) WaitOrTimeoutErr() error {
	granted, err := c.Wait()
	if err != nil {
		return err
	}
	if !granted {
		return newError(KindTimeout, "Wait", "")
	}
	return nil
}
