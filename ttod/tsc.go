// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package ttod

import (
	"math/bits"
	"os"
	"sync"
	"time"

	"github.com/intuitivelabs/timestamp"

	"github.com/vflowproto/ertstime/cpufeat"
)

// ttod_impl_tsc.h's TTOD_TSC_MIN_CALC_MICROS / TTOD_TSC_MICROS_PER_RESYNC,
// expressed against the reference clock instead of
// mach_absolute_time/gethrtime.
const (
	tscMinCalcRef      = time.Second // minimum elapsed reference time before a frequency estimate is trusted
	tscMicrosPerResync = 750_000     // re-sync interval, in microseconds of wall-clock time
)

// readTSC and tscReaderAvailable are supplied per architecture
// (tsc_amd64.go/tsc_amd64.s read the real counter via RDTSC;
// tsc_other.go stubs it out where Go has no portable intrinsic).
var readTSC func() uint64
var tscReaderAvailable bool

// tscRefNow is the reference timer the TSC strategy calibrates its
// frequency against: timestamp wraps the platform's best monotonic clock
// (the Mach-absolute-time/hrtime role in the original). A variable so
// tests can inject a misbehaving reference.
var tscRefNow func() timestamp.TS = timestamp.Now

// mulDiv64 returns a*b/c using a 128-bit intermediate, so tick-count
// arithmetic stays exact over process lifetimes where a*b overflows 64
// bits within minutes.
func mulDiv64(a, b, c uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	if hi >= c {
		// quotient would overflow 64 bits; saturate rather than fault.
		return ^uint64(0)
	}
	q, _ := bits.Div64(hi, lo, c)
	return q
}

// TSCStrategy implements the TSC TTOD strategy, the most intricate of
// the chain. The four 128-bit atomic records of the original
// (init/last/freq/range, plus the calibration pair) are represented here
// as plain fields guarded by a single mutex: Go has no portable 128-bit
// CAS intrinsic, and a fine-grained mutex around the record preserves
// correctness without unsafe.Pointer tricks.
type TSCStrategy struct {
	mu sync.Mutex

	initTSC uint64
	initTOD int64 // microseconds since epoch
	lastTSC uint64
	lastTOD int64

	uticks uint64 // TSC ticks per microsecond
	resync uint64 // TSC ticks between forced resyncs
	adjust int64  // current correction bias, microseconds

	tscFreq uint64 // 0 until established

	refInitTSC uint64
	refInitRef timestamp.TS
	refLastTSC uint64
	refLastRef timestamp.TS

	rangeLo, rangeHi uint64
	wobble           uint64
}

// Init brings the TSC strategy up if ERTS_ENABLE_TTOD_TSC is set in the
// environment, a TSC reader is available for this architecture, and the
// detected CPU features meet TTOD_TSC_REQ_CPU_FEATS/VENDS from
// ttod_impl_tsc.h: 64-bit Intel/AMD with TSCP, a serializing TSC read,
// CMPXCHG16B (implying hardware fit for the 128-bit records the original
// keeps, even though this port doesn't use CAS), and an invariant TSC.
func (s *TSCStrategy) Init() (GetFunc, bool) {
	if os.Getenv(EnvEnableTSC) == "" {
		return nil, false
	}
	if !tscReaderAvailable || readTSC == nil {
		return nil, false
	}
	f := cpufeat.Detect()
	need := cpufeat.Bit64 | cpufeat.TSC | cpufeat.TSCP | cpufeat.AtomicCX16 | cpufeat.TSCInvariant
	if !f.Has(need) {
		return nil, false
	}
	if !f.HasAny(cpufeat.VendIntel | cpufeat.VendAMD) {
		return nil, false
	}

	s.refInitRef = tscRefNow()
	s.refInitTSC = readTSC()
	s.refLastRef, s.refLastTSC = s.refInitRef, s.refInitTSC

	s.initTOD = gtodMicros()
	s.initTSC = readTSC()
	s.lastTOD, s.lastTSC = s.initTOD, s.initTSC

	return s.get, true
}

// estimateFreq recomputes a candidate TSC frequency (ticks/second) from
// the reference-timer span since refInit, extends the tracked [lo,hi]
// envelope, and checks it against the allowed wobble (ttod_impl_tsc.h
// step 2: 1% of hi before the first lock-in, one microsecond's worth of
// ticks after). Returns Transient until a second of reference time has
// elapsed; Permanent if the reference clock stepped backwards or the
// estimate drifted outside the wobble.
func (s *TSCStrategy) estimateFreq() (uint64, Status) {
	refNow := tscRefNow()
	if refNow.Before(s.refLastRef) {
		// the reference is supposed to be monotonic; a backwards step
		// invalidates every sample taken against it.
		return 0, Permanent
	}
	tscNow := readTSC()
	s.refLastRef, s.refLastTSC = refNow, tscNow

	refSpan := refNow.Sub(s.refInitRef)
	if refSpan < tscMinCalcRef {
		return 0, Transient
	}
	tscSpan := tscNow - s.refInitTSC
	freq := mulDiv64(tscSpan, uint64(time.Second), uint64(refSpan))

	if s.rangeLo == 0 || freq < s.rangeLo {
		s.rangeLo = freq
	}
	if freq > s.rangeHi {
		s.rangeHi = freq
	}
	allowed := s.rangeHi / 100
	if s.tscFreq != 0 && s.wobble < allowed {
		// locked in: the envelope may no longer move by more than the
		// tightened wobble.
		allowed = s.wobble
	}
	if s.rangeHi-s.rangeLo > allowed {
		return 0, Permanent
	}
	return (s.rangeLo + s.rangeHi) / 2, OK
}

// get implements get_ttod_tsc (ttod_impl_tsc.h): establish the TSC
// frequency on first use (or fail transiently until a second has passed),
// extrapolate from the last (tsc, tod) pair when within the resync
// window, and otherwise refetch and recompute the correction bias,
// bounded per call via boundUsAdjustment.
func (s *TSCStrategy) get() (int64, Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tscFreq == 0 {
		freq, status := s.estimateFreq()
		if status != OK {
			return 0, status
		}
		uticks := freq / 1_000_000
		if uticks == 0 {
			return 0, Permanent
		}
		s.uticks = uticks
		s.resync = uticks * tscMicrosPerResync
		s.tscFreq = freq
		// first lock-in tightens the wobble from 1% of the measured
		// frequency to a single microsecond's worth of ticks.
		s.wobble = uticks
	}

	ticks := readTSC()
	if ticks+s.wobble < s.lastTSC {
		// TSC moved backwards by more than the allowed wobble: not a
		// transient blip, permanently untrustworthy.
		return 0, Permanent
	}

	span := ticks - s.lastTSC
	if span < s.resync {
		return s.lastTOD + s.adjust + int64(span/s.uticks), OK
	}

	// resync: refresh the frequency estimate if it's due.
	if ticks > s.refLastTSC+s.tscFreq {
		freq, status := s.estimateFreq()
		switch status {
		case Permanent:
			return 0, Permanent
		case OK:
			if uticks := freq / 1_000_000; uticks > 0 {
				s.uticks = uticks
				s.resync = uticks * tscMicrosPerResync
				s.tscFreq = freq
			}
		}
	}

	curTOD := gtodMicros()
	curTSC := readTSC()
	todDiff := curTOD - s.initTOD
	tscDiff := curTSC - s.initTSC
	todCalc := int64(mulDiv64(tscDiff, 1_000_000, s.tscFreq))
	todOff := todDiff - todCalc + s.adjust

	s.lastTOD, s.lastTSC = curTOD, curTSC
	if todOff != 0 {
		s.adjust += boundUsAdjustment(todOff)
	}
	return curTOD + s.adjust, OK
}
