// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package wtimer

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func mkWheelSet(t *testing.T, numSched int, bits uint, td time.Duration) *WheelSet {
	t.Helper()
	var ws WheelSet
	if err := ws.Init(numSched, false, bits, td); err != nil {
		t.Fatalf("WheelSet.Init failed: %s\n", err)
	}
	return &ws
}

func TestWheelSetInit(t *testing.T) {
	ws := mkWheelSet(t, 2, 4, time.Millisecond)
	if len(ws.wheels) != 2 {
		t.Fatalf("expected 2 wheels, got %d\n", len(ws.wheels))
	}
	for i, w := range ws.wheels {
		if w.size != 16 {
			t.Errorf("wheel %d: expected size 16, got %d\n", i, w.size)
		}
		if !w.slots[0].isEmpty() {
			t.Errorf("wheel %d: slot 0 not empty on init\n", i)
		}
		if w.toCnt != 0 || w.minSet {
			t.Errorf("wheel %d: non-zero state on init\n", i)
		}
	}
}

func TestWheelSetBadInit(t *testing.T) {
	var ws WheelSet
	if err := ws.Init(0, false, 4, time.Millisecond); err != ErrNoWheels {
		t.Fatalf("expected ErrNoWheels, got %v\n", err)
	}
	if err := ws.Init(1, false, 31, time.Millisecond); err != ErrWheelSize {
		t.Fatalf("expected ErrWheelSize, got %v\n", err)
	}
}

func TestWheelSetDirtySchedulerMapping(t *testing.T) {
	var ws WheelSet
	if err := ws.Init(2, true, 4, time.Millisecond); err != nil {
		t.Fatalf("Init failed: %s\n", err)
	}
	if len(ws.wheels) != 3 {
		t.Fatalf("expected 3 wheels (2 regular + 1 dirty), got %d\n", len(ws.wheels))
	}
	dirty, err := ws.For(0)
	if err != nil {
		t.Fatalf("For(0) failed: %s\n", err)
	}
	if dirty != ws.wheels[2] {
		t.Fatalf("scheduler id 0 should map to the dedicated last wheel\n")
	}
	w1, _ := ws.For(1)
	w2, _ := ws.For(2)
	if w1 == dirty || w2 == dirty {
		t.Fatalf("regular scheduler ids must never land on the dirty wheel\n")
	}
}

// firedSignal returns a handler recording firings on ch.
func firedSignal(ch chan<- struct{}) TimerHandlerF {
	return func(ws *WheelSet, h *TimerLnk, arg interface{}) (bool, time.Duration) {
		ch <- struct{}{}
		return false, 0
	}
}

// The deterministic tests below use Ffast timers throughout: an Ffast
// handler runs inline in the goroutine calling Bump, so a test can bump
// by hand and assert on firings immediately, without starting the run
// queue workers (Start()) and waiting on their scheduling.

// TestWheelWrap exercises a wrapping insert: N=4, insert a
// timer 5 ticks out, it should fire only after the 4th bump (5 ticks
// total, one full wrap plus one).
func TestWheelWrap(t *testing.T) {
	ws := mkWheelSet(t, 1, 2 /* N=4 */, time.Millisecond)
	var tl TimerLnk
	if err := ws.InitTimer(&tl, Ffast); err != nil {
		t.Fatalf("InitTimer: %s\n", err)
	}
	fired := make(chan struct{}, 1)
	if err := ws.SetT(1, &tl, NewTicks(5), firedSignal(fired), nil); err != nil {
		t.Fatalf("SetT: %s\n", err)
	}
	if tl.Count() != 1 {
		t.Fatalf("expected count 1 (5/4), got %d\n", tl.Count())
	}

	for i := 0; i < 3; i++ {
		ws.Bump(1)
		select {
		case <-fired:
			t.Fatalf("timer fired too early, after %d ticks\n", i+1)
		default:
		}
	}
	ws.Bump(2)
	select {
	case <-fired:
	default:
		t.Fatalf("timer did not fire after 5 ticks total\n")
	}
}

// TestMinTracking: N=8, timers at 10, 3 and 7 ticks; the cached minimum
// should track the smallest remaining time as bumps consume it.
func TestMinTracking(t *testing.T) {
	ws := mkWheelSet(t, 1, 3 /* N=8 */, time.Millisecond)
	var t1, t2, t3 TimerLnk
	for _, tl := range []*TimerLnk{&t1, &t2, &t3} {
		if err := ws.InitTimer(tl, Ffast); err != nil {
			t.Fatalf("InitTimer: %s\n", err)
		}
	}
	noop := func(ws *WheelSet, h *TimerLnk, arg interface{}) (bool, time.Duration) {
		return false, 0
	}
	if err := ws.SetT(1, &t1, NewTicks(10), noop, nil); err != nil {
		t.Fatalf("SetT t1: %s\n", err)
	}
	if err := ws.SetT(1, &t2, NewTicks(3), noop, nil); err != nil {
		t.Fatalf("SetT t2: %s\n", err)
	}
	if err := ws.SetT(1, &t3, NewTicks(7), noop, nil); err != nil {
		t.Fatalf("SetT t3: %s\n", err)
	}

	min, ok := ws.NextTime()
	if !ok || min != 3 {
		t.Fatalf("expected min 3, got %d (ok=%v)\n", min, ok)
	}

	ws.Bump(3)
	min, ok = ws.NextTime()
	if !ok || min != 4 {
		t.Fatalf("expected min 4 (7-3), got %d (ok=%v)\n", min, ok)
	}
}

// TestCancelDuringBump: T1 (ticks=2) cancels T2 (ticks=2) from inside
// its own callback. Only T1's timeout handler should run; T2's cancel
// callback runs from within T1's, before T2 could fire.
func TestCancelDuringBump(t *testing.T) {
	ws := mkWheelSet(t, 1, 3, time.Millisecond)
	var t1, t2 TimerLnk
	if err := ws.InitTimer(&t1, Ffast); err != nil {
		t.Fatalf("InitTimer t1: %s\n", err)
	}
	if err := ws.InitTimer(&t2, Ffast); err != nil {
		t.Fatalf("InitTimer t2: %s\n", err)
	}

	var t1Fired, t2Fired, t2Cancelled int32
	h1 := func(ws *WheelSet, h *TimerLnk, arg interface{}) (bool, time.Duration) {
		atomic.AddInt32(&t1Fired, 1)
		if ok, err := ws.Cancel(&t2); err != nil && err != ErrAlreadyRemovedTimer {
			t.Errorf("Cancel(t2) from t1 callback failed: ok=%v err=%s\n", ok, err)
		}
		if atomic.LoadInt32(&t2Cancelled) != 1 {
			t.Errorf("t2's cancel callback should have run from within t1's\n")
		}
		return false, 0
	}
	// t1 set first: timers expiring on the same tick fire in insertion
	// order, so t1's handler gets to cancel t2 before t2 is reached.
	if err := ws.SetT(1, &t1, NewTicks(2), h1, nil); err != nil {
		t.Fatalf("SetT t1: %s\n", err)
	}
	h2 := func(ws *WheelSet, h *TimerLnk, arg interface{}) (bool, time.Duration) {
		atomic.AddInt32(&t2Fired, 1)
		return false, 0
	}
	c2 := func(ws *WheelSet, h *TimerLnk, arg interface{}) {
		atomic.AddInt32(&t2Cancelled, 1)
	}
	if err := ws.SetC(1, &t2, 2*time.Millisecond, h2, c2, nil); err != nil {
		t.Fatalf("SetC t2: %s\n", err)
	}

	ws.Bump(2)
	if atomic.LoadInt32(&t1Fired) != 1 {
		t.Fatalf("expected t1 to fire exactly once, got %d\n", t1Fired)
	}
	if atomic.LoadInt32(&t2Fired) != 0 {
		t.Fatalf("expected t2 never to fire (cancelled), got %d\n", t2Fired)
	}
	if atomic.LoadInt32(&t2Cancelled) != 1 {
		t.Fatalf("expected t2's cancel callback to run exactly once, got %d\n",
			t2Cancelled)
	}
}

func TestBumpZeroIsNoop(t *testing.T) {
	ws := mkWheelSet(t, 1, 4, time.Millisecond)
	var tl TimerLnk
	ws.InitTimer(&tl, Ffast)
	fired := make(chan struct{}, 1)
	ws.SetT(1, &tl, NewTicks(5), firedSignal(fired), nil)
	ws.Bump(0)
	select {
	case <-fired:
		t.Fatalf("bump(0) must be a no-op\n")
	default:
	}
}

// TestBumpTraversesEverySlotOnce checks bump(dt >= N) visits every slot
// exactly once: two timers a full wheel apart (N ticks) should both fire
// on the same bump, not be skipped or double-counted.
func TestBumpTraversesEverySlotOnce(t *testing.T) {
	ws := mkWheelSet(t, 1, 3 /* N=8 */, time.Millisecond)
	var t1, t2 TimerLnk
	ws.InitTimer(&t1, Ffast)
	ws.InitTimer(&t2, Ffast)
	var fires int32
	h := func(ws *WheelSet, h *TimerLnk, arg interface{}) (bool, time.Duration) {
		atomic.AddInt32(&fires, 1)
		return false, 0
	}
	ws.SetT(1, &t1, NewTicks(1), h, nil)
	ws.SetT(1, &t2, NewTicks(9), h, nil) // 9 = 8 + 1, one full rotation further

	ws.Bump(9)
	if fires != 2 {
		t.Fatalf("expected both timers to fire after bump(9) on N=8, got %d\n", fires)
	}
}

func TestSetZeroFiresOnNextBump(t *testing.T) {
	ws := mkWheelSet(t, 1, 4, time.Millisecond)
	var tl TimerLnk
	ws.InitTimer(&tl, Ffast)
	fired := make(chan struct{}, 1)
	if err := ws.Set(1, &tl, 0, firedSignal(fired), nil); err != nil {
		t.Fatalf("Set(0): %s\n", err)
	}
	ws.Bump(1)
	select {
	case <-fired:
	default:
		t.Fatalf("a 0-timeout timer should fire on the next bump\n")
	}
}

func TestCancelIdempotent(t *testing.T) {
	ws := mkWheelSet(t, 1, 4, time.Millisecond)
	var tl TimerLnk
	ws.InitTimer(&tl, 0)
	ws.SetT(1, &tl, NewTicks(100), func(ws *WheelSet, h *TimerLnk, arg interface{}) (bool, time.Duration) {
		return false, 0
	}, nil)
	ok, err := ws.Cancel(&tl)
	if !ok || err != nil {
		t.Fatalf("first Cancel should succeed: ok=%v err=%s\n", ok, err)
	}
	if tl.Active() {
		t.Fatalf("timer should be inactive after Cancel\n")
	}
	if _, err := ws.Cancel(&tl); err == nil {
		t.Fatalf("second Cancel on an inactive timer should error\n")
	}
}

func TestPeriodicRearm(t *testing.T) {
	ws := mkWheelSet(t, 1, 4, time.Millisecond)
	var tl TimerLnk
	ws.InitTimer(&tl, Ffast)
	var count int32
	h := func(ws *WheelSet, h *TimerLnk, arg interface{}) (bool, time.Duration) {
		n := atomic.AddInt32(&count, 1)
		return n < 3, Periodic
	}
	if err := ws.SetT(1, &tl, NewTicks(1), h, nil); err != nil {
		t.Fatalf("SetT: %s\n", err)
	}
	for i := 0; i < 5; i++ {
		ws.Bump(1)
	}
	if count != 3 {
		t.Fatalf("expected exactly 3 firings, got %d\n", count)
	}
}

// TestConcurrentSetCancel exercises the wheel under concurrent Set/Cancel
// from multiple goroutines, the way the engine is meant to be used from
// several scheduler threads.
func TestConcurrentSetCancel(t *testing.T) {
	ws := mkWheelSet(t, 4, 8, time.Millisecond)
	const perGoroutine = 200
	var wg sync.WaitGroup
	noop := func(ws *WheelSet, h *TimerLnk, arg interface{}) (bool, time.Duration) {
		return false, 0
	}
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(sched int) {
			defer wg.Done()
			tls := make([]TimerLnk, perGoroutine)
			for i := range tls {
				ws.InitTimer(&tls[i], 0)
				if err := ws.SetT(sched, &tls[i], NewTicks(uint64(100+i)), noop, nil); err != nil {
					t.Errorf("SetT failed: %s\n", err)
				}
			}
			for i := range tls {
				if _, err := ws.Cancel(&tls[i]); err != nil {
					t.Errorf("Cancel failed: %s\n", err)
				}
			}
		}(g + 1)
	}
	wg.Wait()
	for _, w := range ws.wheels {
		if w.toCnt != 0 {
			t.Fatalf("wheel %d: expected toCnt 0 after all cancels, got %d\n", w.id, w.toCnt)
		}
	}
}

func TestTimeLeft(t *testing.T) {
	ws := mkWheelSet(t, 1, 4, time.Millisecond)
	var tl TimerLnk
	ws.InitTimer(&tl, 0)
	noop := func(ws *WheelSet, h *TimerLnk, arg interface{}) (bool, time.Duration) {
		return false, 0
	}
	ws.SetT(1, &tl, NewTicks(10), noop, nil)
	if left := ws.TimeLeft(&tl); left != 10 {
		t.Fatalf("expected TimeLeft 10, got %d\n", left)
	}
	ws.Bump(4)
	if left := ws.TimeLeft(&tl); left != 6 {
		t.Fatalf("expected TimeLeft 6 after bump(4), got %d\n", left)
	}
}
