// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package ttod

import "sync"

// uptimeClockTicksPerSec is the USER_HZ assumed for the times(2) return
// value (_SC_CLK_TCK), which on every mainstream Linux distribution is
// 100. Reading the real sysconf value needs cgo; this constant is the
// same assumption several widely used Go process-stats libraries make.
const uptimeClockTicksPerSec = 100

// uptimeTicks and uptimeAvailable are supplied per-platform
// (upt_linux.go calls times(2) via golang.org/x/sys/unix; upt_other.go
// stubs it out).
var uptimeTicks func() (ticks uint64, ok bool)
var uptimeAvailable bool

// UPTStrategy implements the UPT ("uptime/times") TTOD strategy: the
// coarsest strategy (Linux only, see upt_linux.go), running entirely in
// milliseconds and bounding its correction to at most 1% of the clock
// ticks elapsed since the previous call (the original's "suppression"
// counter) rather than applying boundUsAdjustment's microsecond table.
type UPTStrategy struct {
	mu sync.Mutex

	initTicks  uint64
	initTODms  int64
	lastTicks  uint64
	suppressMs int64
}

func (s *UPTStrategy) Init() (GetFunc, bool) {
	if !uptimeAvailable || uptimeTicks == nil {
		return nil, false
	}
	ticks, ok := uptimeTicks()
	if !ok {
		return nil, false
	}
	s.initTicks = ticks
	s.initTODms = gtodMicros() / 1000
	s.lastTicks = ticks
	return s.get, true
}

func (s *UPTStrategy) get() (int64, Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ticks, ok := uptimeTicks()
	if !ok || ticks < s.lastTicks {
		return 0, Permanent
	}
	elapsedTicks := ticks - s.initTicks
	calcMs := s.initTODms + int64(elapsedTicks*1000/uptimeClockTicksPerSec)
	todMs := gtodMicros() / 1000
	off := todMs - calcMs + s.suppressMs

	deltaTicks := ticks - s.lastTicks
	maxStep := int64(deltaTicks*1000/uptimeClockTicksPerSec) / 100
	if maxStep < 1 {
		maxStep = 1
	}
	if off > maxStep {
		off = maxStep
	} else if off < -maxStep {
		off = -maxStep
	}

	s.lastTicks = ticks
	s.suppressMs = off
	return (calcMs + s.suppressMs) * 1000, OK
}
