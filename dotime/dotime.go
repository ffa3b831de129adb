// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

// Package dotime implements the elapsed-ticks counter ("do_time" in
// erl_time_sup.c): a process-wide signed 32-bit atomic, incremented by an
// external clock interrupt (or equivalent periodic driver) with release
// semantics and drained by the timer wheel with acquire semantics.
//
// Go's sync/atomic gives every operation sequential consistency, which is
// strictly stronger than the release/acquire pairing the original engine
// relies on, so Add and Drain need no extra fencing.
package dotime

import (
	"fmt"
	"sync/atomic"

	"github.com/intuitivelabs/slog"
)

// Log is dotime's package-wide logger, following the same one-Log-per-
// package convention as wtimer.DBG/ERR/WARN (see dbg.go).
var Log slog.Log = slog.New(slog.LWARN, slog.LOptNone, slog.LStdErr)

func ERR(f string, a ...interface{}) {
	Log.LLog(slog.LERR, 1, "ERROR: dotime: ", f, a...)
}

func PANIC(f string, a ...interface{}) {
	s := fmt.Sprintf(f, a...)
	Log.LLog(slog.LBUG, 1, "PANIC: dotime: ", "%s", s)
	panic(s)
}

// Counter is the do_time accumulator. The zero value is ready to use.
//
// Add is called by whatever drives the wheel's clock (an interrupt, a
// time.Ticker, a cooperative scheduler tick); Drain is called by the
// timer wheel bump path to atomically take and reset the accumulated
// count. A negative value observed by Drain means the accumulator wrapped
// past the signed 32-bit range or was corrupted -- a fatal invariant
// break, not a recoverable condition.
type Counter struct {
	v int32
}

// Add accumulates n additional elapsed ticks. n must be >= 0; the
// original do_time_add never receives a negative delta, and neither does
// this one.
func (c *Counter) Add(n int32) {
	atomic.AddInt32(&c.v, n)
}

// Peek returns the current accumulated value without resetting it.
func (c *Counter) Peek() int32 {
	return atomic.LoadInt32(&c.v)
}

// Drain atomically exchanges the counter with 0 and returns the value it
// held. A negative result is a fatal invariant violation: the caller must
// abort rather than attempt to recover.
func (c *Counter) Drain() int32 {
	v := atomic.SwapInt32(&c.v, 0)
	if v < 0 {
		PANIC("do_time drained negative value %d\n", v)
	}
	return v
}
