// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package ttod

import "sync"

// machAbsoluteTime and machTimebaseInfo are supplied per-platform
// (mach_darwin.go via cgo's mach_time.h; mach_other.go stubs them out
// everywhere else).
var machAbsoluteTime func() uint64
var machTimebaseInfo func() (numer, denom uint32, ok bool)

// MachStrategy implements the MACH TTOD strategy: mach_absolute_time's
// raw tick count converts to nanoseconds by the rational numer/denom
// pair from mach_timebase_info, making it directly affine rather than
// needing a separately-measured frequency like TSC.
type MachStrategy struct {
	mu sync.Mutex

	numer, denom uint64

	initAbs uint64
	initTOD int64
	lastAbs uint64
	adjust  int64
}

func (s *MachStrategy) Init() (GetFunc, bool) {
	if machTimebaseInfo == nil {
		return nil, false
	}
	numer, denom, ok := machTimebaseInfo()
	if !ok || denom == 0 {
		return nil, false
	}
	s.numer, s.denom = uint64(numer), uint64(denom)
	s.initAbs = machAbsoluteTime()
	s.initTOD = gtodMicros()
	s.lastAbs = s.initAbs
	return s.get, true
}

func (s *MachStrategy) absToMicros(d uint64) int64 {
	return int64(mulDiv64(d, s.numer, s.denom*1000))
}

func (s *MachStrategy) get() (int64, Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	abs := machAbsoluteTime()
	if abs < s.lastAbs {
		// mach_absolute_time is documented monotonic; observing it step
		// backwards means something is badly wrong with this process's
		// view of it.
		return 0, Permanent
	}
	calc := s.initTOD + s.absToMicros(abs-s.initAbs)
	tod := gtodMicros()
	off := tod - calc + s.adjust
	s.lastAbs = abs
	if off != 0 {
		s.adjust += boundUsAdjustment(off)
	}
	return calc + s.adjust, OK
}
