// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package wtimer

import (
	"time"
)

const Periodic time.Duration = time.Duration(^int64(0))

// A TimerHandlerF is a callback called when a timer expires.
// The parameters passed are a pointer to the wheel set the timer belongs
// to (WheelSet), the handler of the expired running timer, and an opaque
// argument passed when the timer was registered.
// The callback should return true and a new expire delta (time.Duration) if
// the timer should be re-added and false if the timer should finish
// immediately (one shot, or periodic timer that stops). For the re-add
// case there is a special value for re-arming with the initial timeout:
// wtimer.Periodic.
//
// Inside the timer callback the firing timer's own handle is already
// unlinked: ws.Cancel() on it removes nothing and returns false, but it
// marks the timer so that a re-arm request returned by the callback is
// ignored. ws.Cancel() on any *other* timer, including one belonging to
// the same wheel, is legal and runs under no lock (see
// WheelSet.processExpired).
type TimerHandlerF func(ws *WheelSet, h *TimerLnk, arg interface{}) (bool, time.Duration)

// A CancelHandlerF is an optional callback invoked after a timer has been
// successfully cancelled (unlinked before firing). Like timeout handlers
// it runs outside any wheel lock, on the goroutine that called Cancel.
// It is never invoked for a timer whose firing was already in flight.
type CancelHandlerF func(ws *WheelSet, h *TimerLnk, arg interface{})

const (
	wheelNone  uint8  = 255   // sentinel value for no wheel
	wheelExp   uint8  = 254   // no wheel, expired list
	wheelRQ    uint8  = 253   // no wheel, runq
	wheelNoIdx uint16 = 65535 // sentinel debug value for no index
)

// flags for timers
const (
	fHead    = 1  // this is the list head (debugging)
	fActive  = 2  // timer is active (added)
	fDelete  = 4  // the timer was deleted
	fRunning = 8  // timer handler is executing
	fRemoved = 16 // timer is removed
	Ffast    = 32 // "fast" timer, run in the main timer go routine
	FgoR     = 64 // run timer handle in its own temp. go routine
	// internal flags mask (flags for internal use only)
	fInternalMask = fHead | fActive | fDelete | fRunning | fRemoved
)

// A TimerLnk is the internal structure used for registering timers.
// It is caller-owned: the wheel engine never allocates or frees a
// TimerLnk, it only links/unlinks borrowed storage into intrusive lists.
type TimerLnk struct {
	next   *TimerLnk
	prev   *TimerLnk
	expire Ticks // absolute expire "time" in ticks
	count  int64 // full wheel rotations remaining before firing
	info   tInfo // internal information (wheel no, idx, flags ...)
	rctx   tInfo // running "context" info, needed for DelWait()
	intvl  time.Duration

	// homeWheel is the Wheel this timer was (last) Set() on. Unlike the
	// wheel/idx encoded in info (which is overwritten with wheelExp/wheelRQ
	// sentinels while the timer is staged for running), homeWheel survives
	// the expired-list/run-queue detour so a rearm knows which wheel to
	// reinsert into.
	homeWheel uint8

	f   TimerHandlerF  // callback function
	cf  CancelHandlerF // optional cancel callback
	arg interface{}    // callback function parameter
}

// Detached checks if the TimerLnk entry is part of a list and returns true
// if not.
func (tl *TimerLnk) Detached() bool {
	return tl == tl.next || (tl.next == nil && tl.prev == nil)
}

// Exp returns the set expire "time" in ticks (debugging use).
func (tl *TimerLnk) Exp() Ticks {
	return tl.expire
}

// Count returns the remaining full wheel rotations before the timer fires
// (debugging use).
func (tl *TimerLnk) Count() int64 {
	return tl.count
}

// Intvl returns the original expire interval.
func (tl *TimerLnk) Intvl() time.Duration {
	return tl.intvl
}

// Active reports the timer's active flag: set by Set, cleared by a
// successful cancel. A one-shot timer whose handler returned false keeps
// the flag set (the engine does not touch its handle again after the
// handler), so Active does not report whether such a timer has fired.
func (tl *TimerLnk) Active() bool {
	return tl.info.flags()&fActive != 0
}
