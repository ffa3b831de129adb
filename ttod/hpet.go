// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package ttod

import "sync"

// hpetDevice abstracts the memory-mapped HPET register page
// (hpet_linux.go opens/maps /dev/hpet via golang.org/x/sys/unix;
// hpet_other.go stubs it out everywhere else -- the HPET is a
// Linux/x86-specific piece of platform firmware).
//
// HPETStrategy implements the HPET TTOD strategy:
// the counter in the high precision event timer runs at a fixed,
// firmware-reported frequency, so like MACH it needs no runtime
// frequency estimation -- just a period read once at Init.
type HPETStrategy struct {
	mu sync.Mutex

	dev  *hpetDevice
	freq uint64 // ticks per second

	initTicks uint64
	initTOD   int64
	lastTicks uint64
	adjust    int64
}

func (s *HPETStrategy) Init() (GetFunc, bool) {
	dev, ok := openHPET()
	if !ok {
		return nil, false
	}
	period := dev.period()
	if period == 0 {
		dev.close()
		return nil, false
	}
	s.dev = dev
	s.freq = 1_000_000_000_000_000 / period // femtoseconds per second / fs-per-tick
	s.initTicks = dev.read()
	s.initTOD = gtodMicros()
	s.lastTicks = s.initTicks
	return s.get, true
}

func (s *HPETStrategy) get() (int64, Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ticks := s.dev.read()
	if ticks < s.lastTicks {
		// the HPET main counter is a free-running up-counter; seeing it
		// move backwards means the device is no longer trustworthy.
		return 0, Permanent
	}
	elapsed := ticks - s.initTicks
	calc := s.initTOD + int64(mulDiv64(elapsed, 1_000_000, s.freq))
	tod := gtodMicros()
	off := tod - calc + s.adjust
	s.lastTicks = ticks
	if off != 0 {
		s.adjust += boundUsAdjustment(off)
	}
	return calc + s.adjust, OK
}
