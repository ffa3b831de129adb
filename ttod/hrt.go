// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package ttod

import (
	"sync"
	"time"

	"github.com/intuitivelabs/timestamp"
)

// HRTStrategy implements the HRT ("hrtime"/high-resolution monotonic)
// TTOD strategy. Unlike TSC it needs no frequency calibration step:
// github.com/intuitivelabs/timestamp already reports readings in
// nanoseconds on every platform it supports, so HRT's affine factor is
// always exactly 1ns/tick; a reading that steps backwards demotes the
// strategy permanently (the wheel ticker in wtimer guards against the
// same backwards step, see wtimer_ticker.go). It has the broadest
// availability of any strategy here and is the practical default once
// TSC/MACH/HPET are ruled out.
type HRTStrategy struct {
	mu sync.Mutex

	initRef timestamp.TS
	initTOD int64 // microseconds since epoch
	lastRef timestamp.TS
	adjust  int64
}

func (s *HRTStrategy) Init() (GetFunc, bool) {
	s.initRef = timestamp.Now()
	s.initTOD = gtodMicros()
	s.lastRef = s.initRef
	return s.get, true
}

func (s *HRTStrategy) get() (int64, Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref := timestamp.Now()
	if ref.Before(s.lastRef) {
		return 0, Permanent
	}
	elapsed := ref.Sub(s.initRef)
	calc := s.initTOD + int64(elapsed/time.Microsecond)
	tod := gtodMicros()
	off := tod - calc + s.adjust
	s.lastRef = ref
	if off != 0 {
		s.adjust += boundUsAdjustment(off)
	}
	return calc + s.adjust, OK
}
