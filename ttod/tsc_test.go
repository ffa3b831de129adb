// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package ttod

import (
	"testing"
	"time"

	"github.com/intuitivelabs/timestamp"
)

// withTSCStubs swaps the TSC register reader and the reference clock for
// canned values, restoring the real ones when the test ends.
func withTSCStubs(t *testing.T, tscVals []uint64, refVals []timestamp.TS) {
	t.Helper()
	oldTSC, oldRef := readTSC, tscRefNow
	ti, ri := 0, 0
	readTSC = func() uint64 {
		v := tscVals[ti]
		if ti < len(tscVals)-1 {
			ti++
		}
		return v
	}
	tscRefNow = func() timestamp.TS {
		v := refVals[ri]
		if ri < len(refVals)-1 {
			ri++
		}
		return v
	}
	t.Cleanup(func() { readTSC, tscRefNow = oldTSC, oldRef })
}

func TestTSCRefClockBackwardsIsPermanent(t *testing.T) {
	ts0 := timestamp.Now()
	// the reference steps backwards by a single microsecond: one call is
	// enough to rule the strategy out for good.
	withTSCStubs(t, []uint64{0}, []timestamp.TS{ts0.Add(-time.Microsecond)})

	s := &TSCStrategy{
		refInitRef: ts0,
		refLastRef: ts0,
	}
	if _, status := s.get(); status != Permanent {
		t.Fatalf("get() status = %v, want Permanent", status)
	}
}

func TestTSCTransientUntilCalibrated(t *testing.T) {
	ts0 := timestamp.Now()
	withTSCStubs(t, []uint64{1000}, []timestamp.TS{ts0.Add(100 * time.Millisecond)})

	s := &TSCStrategy{
		refInitRef: ts0,
		refLastRef: ts0,
	}
	if _, status := s.get(); status != Transient {
		t.Fatalf("get() status = %v before a second of reference time, want Transient", status)
	}
}

func TestTSCExtrapolatesWithinResyncWindow(t *testing.T) {
	// locked-in state: 3 GHz (3000 ticks/us), last reading at tick 6e9
	// matching TOD 5,000,000us. 30,000 ticks later is 10us later.
	s := &TSCStrategy{
		tscFreq: 3_000_000_000,
		uticks:  3000,
		resync:  3000 * tscMicrosPerResync,
		wobble:  3000,
		lastTSC: 6_000_000_000,
		lastTOD: 5_000_000,
	}
	withTSCStubs(t, []uint64{6_000_000_000 + 30_000}, []timestamp.TS{timestamp.Now()})

	v, status := s.get()
	if status != OK {
		t.Fatalf("get() status = %v, want OK", status)
	}
	if v != 5_000_010 {
		t.Fatalf("get() = %d, want 5000010 (lastTOD + 30000 ticks / 3000 ticks/us)", v)
	}
}

func TestTSCCounterBackwardsIsPermanent(t *testing.T) {
	s := &TSCStrategy{
		tscFreq: 3_000_000_000,
		uticks:  3000,
		resync:  3000 * tscMicrosPerResync,
		wobble:  3000,
		lastTSC: 6_000_000_000,
		lastTOD: 5_000_000,
	}
	// more than one wobble's worth below the last observed TSC value
	withTSCStubs(t, []uint64{6_000_000_000 - 3001}, []timestamp.TS{timestamp.Now()})

	if _, status := s.get(); status != Permanent {
		t.Fatalf("get() status = %v after TSC went backwards, want Permanent", status)
	}
}

func TestTSCFrequencyWobbleIsPermanent(t *testing.T) {
	ts0 := timestamp.Now()
	// two calibrations 2s apart measuring wildly different frequencies
	// (3e9 then ~4.5e9 ticks/s): the [lo, hi] envelope blows past the 1%
	// allowance and the strategy demotes itself.
	withTSCStubs(t,
		[]uint64{6_000_000_000, 6_000_001_000, 18_000_000_000},
		[]timestamp.TS{ts0.Add(2 * time.Second), ts0.Add(4 * time.Second)})

	s := &TSCStrategy{
		refInitRef: ts0,
		refLastRef: ts0,
		lastTSC:    6_000_000_000,
	}
	if _, status := s.get(); status != OK {
		t.Fatalf("first get() status = %v, want OK", status)
	}
	if _, status := s.get(); status != Permanent {
		t.Fatalf("get() status = %v after >1%% frequency drift, want Permanent", status)
	}
}
