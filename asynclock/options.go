// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asynclock

import (
	"os"
	"time"

	"v.io/x/lib/vlog"
)

// EnvSlowAcquisitionThreshold names the environment variable consulted for
// a process-wide default slow-acquisition threshold, read once by New
// unless overridden by WithSlowAcquisitionThreshold. The value is a
// Go duration string (e.g. "500ms"). An empty or malformed value leaves
// the default at zero (the check disabled).
const EnvSlowAcquisitionThreshold = "ASYNCLOCK_SLOW_ACQUISITION_THRESHOLD"

func envSlowAcquisitionThreshold() time.Duration {
	s := os.Getenv(EnvSlowAcquisitionThreshold)
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

// Logger is the logging surface used by an *RWLock. The default
// implementation forwards to v.io/x/lib/vlog, the logging package used
// throughout the runtime this lock is carved out of; callers may
// substitute their own Logger via WithLogger to avoid depending on vlog's
// global state.
type Logger interface {
	Infof(format string, args ...interface{})
	Warningf(format string, args ...interface{})
}

type vlogLogger struct{}

func (vlogLogger) Infof(format string, args ...interface{})    { vlog.Infof(format, args...) }
func (vlogLogger) Warningf(format string, args ...interface{}) { vlog.Errorf(format, args...) }

type config struct {
	name          string
	logger        Logger
	slowThreshold time.Duration
}

var defaultConfig = config{
	name:   "asynclock.RWLock",
	logger: vlogLogger{},
}

// Option configures an *RWLock constructed with New. The shape follows
// the functional-options pattern used by the example pack's quota-pool
// code (Option/OnAcquisition/OnSlowAcquisition).
type Option interface {
	apply(*config)
}

type optionFunc func(*config)

func (f optionFunc) apply(cfg *config) { f(cfg) }

// WithName sets the name used to prefix this lock's log lines. Defaults
// to "asynclock.RWLock".
func WithName(name string) Option {
	return optionFunc(func(cfg *config) { cfg.name = name })
}

// WithLogger overrides the Logger used for slow-acquisition warnings and
// disposal notices. Defaults to a Logger backed by v.io/x/lib/vlog.
func WithLogger(l Logger) Option {
	return optionFunc(func(cfg *config) { cfg.logger = l })
}

// WithSlowAcquisitionThreshold arranges for a warning to be logged if a
// waiter has been queued longer than d without being granted, failed by
// timeout, or cancelled. A zero threshold (the default) disables the
// check entirely, adding no timer to the contended acquire path.
func WithSlowAcquisitionThreshold(d time.Duration) Option {
	return optionFunc(func(cfg *config) { cfg.slowThreshold = d })
}
