// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asynclock

// Kind identifies the category of a failure returned by this package.
// Unlike the wider example pack's verror package, a Kind carries no
// component/operation name and no i18n catalogue entry: this package has
// no RPC call site to attribute an error to, only a caller and a lock.
type Kind int

const (
	// KindDisposed indicates an operation on a disposed lock.
	KindDisposed Kind = iota
	// KindNotHeld indicates a release whose precondition did not hold.
	KindNotHeld
	// KindInvalidArgument indicates a malformed timeout argument.
	KindInvalidArgument
	// KindTimeout indicates a convenience wrapper observed a timed-out acquire.
	KindTimeout
	// KindCancelled indicates the caller's context was cancelled before grant.
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindDisposed:
		return "disposed"
	case KindNotHeld:
		return "not held"
	case KindInvalidArgument:
		return "invalid argument"
	case KindTimeout:
		return "timeout"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned by this package. It supports
// errors.Is against the exported sentinels below.
type Error struct {
	Kind Kind
	// Op names the method that produced the error, e.g. "ReleaseWrite".
	Op string
	// Msg is a short human-readable detail; may be empty.
	Msg string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Op + ": " + e.Kind.String()
	}
	return e.Op + ": " + e.Kind.String() + ": " + e.Msg
}

// Is reports whether target is the sentinel for e's Kind, so that callers
// can write errors.Is(err, asynclock.ErrDisposed) regardless of which
// method raised it.
func (e *Error) Is(target error) bool {
	sentinel, ok := target.(*sentinelError)
	if !ok {
		return false
	}
	return sentinel.kind == e.Kind
}

type sentinelError struct {
	kind Kind
}

func (s *sentinelError) Error() string { return s.kind.String() }

// Sentinel error values for use with errors.Is. They are never returned
// directly; every returned error is an *Error carrying the Op and an
// optional Msg, but it reports true for errors.Is against the matching
// sentinel here.
var (
	ErrDisposed        error = &sentinelError{kind: KindDisposed}
	ErrNotHeld         error = &sentinelError{kind: KindNotHeld}
	ErrInvalidArgument error = &sentinelError{kind: KindInvalidArgument}
	ErrTimeout         error = &sentinelError{kind: KindTimeout}
	ErrCancelled       error = &sentinelError{kind: KindCancelled}
)

func newError(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}
