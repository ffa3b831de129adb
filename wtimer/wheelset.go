// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package wtimer

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/intuitivelabs/timestamp"
)

const (
	runQueuesNo        = 8 // run queues used to avoid lock contention
	runQueuesWorkersNo = 8 // workers for the runQueues
)

// WheelSet is a ring of Wheels, one per scheduler (plus, optionally, one
// reserved for dirty schedulers), sharing a pool of run queues for slow
// timer callbacks. Timers are pinned to the wheel they were Set() on;
// Cancel and firing always resolve the owning wheel from the timer's own
// back-reference rather than from the caller's scheduler id.
type WheelSet struct {
	// nowTicks leads the struct: 64-bit atomic fields are only
	// guaranteed aligned on 32-bit platforms at the front.
	nowTicks uint64 // cumulative ticks delivered via Bump (atomic)

	wheels       []*Wheel
	dirtyWheel   bool // true if the last wheel is reserved for scheduler id 0
	tickDuration time.Duration

	// runq pos (idx) for consuming, atomic access, always ++ & <=rQhead
	rQtail uint32
	// runq pos for producing, atomic access, always increasing
	rQhead  uint32
	rQs     [runQueuesNo]timerLst   // run queues
	rQlocks [runQueuesNo]sync.Mutex // extra lock for each run queue
	rQch    chan struct{}           // signals runq workers: queue has work

	rQrunning [runQueuesNo]*TimerLnk // timer currently running from a runq

	// InterruptHint, when non-nil, is invoked with the tick delta whenever
	// Set schedules a timeout that falls in the "short time" range. It
	// stands in for erts_sys_schedule_interrupt_timed, an external
	// collaborator this package does not implement; the
	// default is a no-op.
	InterruptHint func(ticks int64)

	wg        sync.WaitGroup
	cancelCh  chan struct{}
	workersUp bool // run-queue workers started (StartWorkers/Start)

	// fields below are only used by the self-driving ticker (Start/
	// Shutdown, wtimer_run.go / wtimer_ticker.go); external callers that
	// drain their own do_time source and call Bump directly never touch
	// them.
	lastTickT timestamp.TS
	badTime   uint32
	refTS     timestamp.TS
	refTicks  Ticks
}

// Init initializes a WheelSet with numSchedulers regular wheels of
// 2^bits slots each and tick duration td. If dirty is true an extra wheel
// is reserved for scheduler id 0 (the dirty-scheduler sentinel in the
// original engine), so dirty-scheduler timers never contend with
// scheduler 1's wheel (they are separate pools in the original engine
// too, not an indexing accident).
func (ws *WheelSet) Init(numSchedulers int, dirty bool, bits uint, td time.Duration) error {
	if numSchedulers <= 0 {
		return ErrNoWheels
	}
	if bits == 0 || bits > 16 { // tInfo keeps the slot index in 16 bits
		return ErrWheelSize
	}
	if td < time.Microsecond {
		return ErrDurationTooSmall
	} else if td > time.Hour*24 {
		return ErrInvalidParameters
	}
	ws.tickDuration = td
	n := numSchedulers
	if dirty {
		n++
	}
	ws.wheels = make([]*Wheel, n)
	for i := 0; i < n; i++ {
		ws.wheels[i] = newWheel(uint8(i), bits, td)
	}
	ws.dirtyWheel = dirty
	for i := 0; i < len(ws.rQs); i++ {
		ws.rQs[i].init(wheelRQ, uint16(i))
	}
	ws.rQch = make(chan struct{}, runQueuesWorkersNo*4)
	return nil
}

// For resolves the Wheel a given scheduler id should use for new timers.
// Scheduler id 0, the dirty-scheduler sentinel in the original engine, maps
// to a dedicated last wheel when Init was called with dirty=true; regular
// scheduler ids are sharded round-robin across the remaining wheels.
func (ws *WheelSet) For(schedulerID int) (*Wheel, error) {
	if len(ws.wheels) == 0 {
		return nil, ErrNoWheels
	}
	if ws.dirtyWheel && schedulerID == 0 {
		return ws.wheels[len(ws.wheels)-1], nil
	}
	regular := len(ws.wheels)
	if ws.dirtyWheel {
		regular--
	}
	if schedulerID < 0 {
		schedulerID = -schedulerID
	}
	return ws.wheels[schedulerID%regular], nil
}

func (ws *WheelSet) wheelByID(id uint8) *Wheel {
	if int(id) < len(ws.wheels) {
		return ws.wheels[id]
	}
	return nil
}

// Now returns the current WheelSet time in ticks (the cumulative ticks
// delivered so far via Bump).
func (ws *WheelSet) Now() Ticks {
	return NewTicks(atomic.LoadUint64(&ws.nowTicks))
}

// Ticks converts a duration d to Ticks (round-down) and the remainder.
func (ws *WheelSet) Ticks(d time.Duration) (Ticks, time.Duration) {
	if ws.tickDuration != 0 {
		t := d / ws.tickDuration
		return NewTicks(uint64(t)), d % ws.tickDuration
	}
	return NewTicks(0), d
}

// Duration converts a tick count to a time.Duration.
func (ws *WheelSet) Duration(t Ticks) time.Duration {
	return time.Duration(t.Val()) * ws.tickDuration
}

// TicksRoundUp converts a duration into a ticks value, rounding up if the
// duration is less than a tick or at least half a tick past a boundary.
func (ws *WheelSet) TicksRoundUp(d time.Duration) Ticks {
	dticks, rest := ws.Ticks(d)
	if dticks.Val() == 0 || rest >= 50*ws.tickDuration/100 {
		return dticks.AddUint64(1)
	}
	return dticks
}

// InitTimer inits a TimerLnk handle before use. See Reset for the
// supported flags. Never call it on a running timer, only on new ones.
func (ws *WheelSet) InitTimer(tl *TimerLnk, flags uint8) error {
	*tl = TimerLnk{}
	tl.info.setWheel(wheelNone, wheelNoIdx)
	return ws.Reset(tl, flags)
}

// NewTimer allocates and returns a new initialised TimerLnk.
// Prefer embedding a TimerLnk in your own struct and calling InitTimer on
// it directly: that avoids the extra allocation NewTimer needs.
func (ws *WheelSet) NewTimer(flags uint8) *TimerLnk {
	tl := &TimerLnk{}
	if ws.InitTimer(tl, flags) != nil {
		return nil
	}
	return tl
}

// Reset prepares a timer for re-use, or sets flags on a new timer.
// Supported flags:
//   - Ffast: run the handler inline, in the caller's Bump goroutine. Use
//     with care: the handler must never block, it delays every other
//     timer sharing the wheel.
//   - FgoR: run the handler in its own goroutine (experimental). FgoR
//     timers cannot be CancelWait()-ed.
//
// Do not call on timers that are still linked, or that just finished
// (returned false from their handler): a finished timer must be
// re-initialised first.
func (ws *WheelSet) Reset(tl *TimerLnk, flags uint8) error {
	f := tl.info.flags()
	if f&fActive != 0 && f&fRemoved == 0 {
		return ErrActiveTimer
	}
	if tl.next != nil || tl.prev != nil {
		return ErrInvalidTimer
	}
	flags &= ^uint8(fInternalMask)
	tl.info.chgFlags(flags, fInternalMask)
	return nil
}

func (ws *WheelSet) addSanityChecks(tl *TimerLnk, f TimerHandlerF) error {
	if tl.info.flags()&fActive != 0 {
		if DBGon() {
			fl, w, idx := tl.info.getAll()
			DBG("called on active timer %p 0x%x wheel %d/%d n: %p p: %p\n",
				tl, fl, w, idx, tl.next, tl.prev)
		}
		return ErrActiveTimer
	}
	if tl.info.flags()&fRunning != 0 {
		return ErrNotResetTimer
	}
	if tl.info.flags()&fRemoved != 0 {
		return ErrNotResetTimer
	}
	if tl.next != nil || tl.prev != nil {
		fl, w, idx := tl.info.getAll()
		BUG("called with linked timer: %p flags 0x%x on w/idx %d/%d n: %p p: %p\n",
			tl, fl, w, idx, tl.next, tl.prev)
		return ErrInvalidTimer
	}
	w, idx := tl.info.wheelPos()
	if w != wheelNone || idx != wheelNoIdx {
		BUG("called on non-init timer: %p on w/idx %d/%d\n", tl, w, idx)
		return ErrInvalidTimer
	}
	if f == nil {
		ERR("called with nil callback\n")
		return ErrInvalidParameters
	}
	return nil
}

// Set starts a new timer on the wheel for schedulerID, firing f after d.
// tl must come from NewTimer or InitTimer.
func (ws *WheelSet) Set(schedulerID int, tl *TimerLnk, d time.Duration,
	f TimerHandlerF, arg interface{}) error {
	return ws.SetC(schedulerID, tl, d, f, nil, arg)
}

// SetC is Set with an additional optional cancel callback, invoked
// (outside any wheel lock) if the timer is later cancelled before
// firing.
func (ws *WheelSet) SetC(schedulerID int, tl *TimerLnk, d time.Duration,
	f TimerHandlerF, cf CancelHandlerF, arg interface{}) error {
	w, err := ws.For(schedulerID)
	if err != nil {
		return err
	}
	dticks := ws.TicksRoundUp(d)

	w.lock()
	if err := ws.addSanityChecks(tl, f); err != nil {
		w.unlock()
		return err
	}
	tl.f = f
	tl.cf = cf
	tl.arg = arg
	tl.intvl = d
	tl.expire = ws.Now().Add(dticks)
	tl.homeWheel = w.id
	tl.info.chgFlags(fActive, fInternalMask)
	err = w.setUnsafe(tl, dticks.Val())
	if err != nil {
		tl.info.setFlags(fRemoved)
	}
	w.unlock()

	if err == nil && ws.InterruptHint != nil && int64(dticks.Val()) <= ShortTimeMax {
		ws.InterruptHint(int64(dticks.Val()))
	}
	return err
}

// SetT is Set, expressed directly in ticks instead of a time.Duration.
func (ws *WheelSet) SetT(schedulerID int, tl *TimerLnk, delta Ticks,
	f TimerHandlerF, arg interface{}) error {
	return ws.Set(schedulerID, tl, ws.Duration(delta), f, arg)
}

// SetExpire starts a timer that fires exactly at the given absolute
// expire tick value, without any rounding adjustment.
func (ws *WheelSet) SetExpire(schedulerID int, tl *TimerLnk, expire Ticks,
	f TimerHandlerF, arg interface{}) error {
	w, err := ws.For(schedulerID)
	if err != nil {
		return err
	}
	now := ws.Now()
	ticks := expire.Sub(now)
	if expire.LT(now) {
		// already overdue: fire on the next bump instead of wrapping the
		// tick delta around.
		ticks = NewTicks(0)
	}

	w.lock()
	if err := ws.addSanityChecks(tl, f); err != nil {
		w.unlock()
		return err
	}
	tl.f = f
	tl.cf = nil
	tl.arg = arg
	tl.intvl = ws.Duration(ticks)
	tl.expire = expire
	tl.homeWheel = w.id
	tl.info.chgFlags(fActive, fInternalMask)
	err = w.setUnsafe(tl, ticks.Val())
	if err != nil {
		tl.info.setFlags(fRemoved)
	}
	w.unlock()
	return err
}

type delFlags uint8

const (
	fDelInactiveOk delFlags = 1 << iota
	fDelAlreadyOk
	fDelRaceOk
	fDelForce
	fDelTry // try only, if running abort (don't mark for delete)
)

// cancel tries to remove tl. On success it returns true, nil. If the
// timer is running (and cannot be removed) it returns false, nil. To
// force a wait for a running timer, use CancelWait.
func (ws *WheelSet) cancel(tl *TimerLnk, delF delFlags) (bool, error) {
retry:
	flags, wheelID, idx := tl.info.getAll()
	if flags&(fActive|fDelete) != fActive {
		if flags&fActive == 0 {
			if DBGon() {
				DBG("called on inactive/un-init timer: %p flags 0x%x\n",
					tl, flags)
			}
			return true, ErrInactiveTimer
		}
		if delF&(fDelRaceOk|fDelForce) == 0 {
			if delF&fDelAlreadyOk != 0 {
				return flags&fRemoved != 0, nil
			}
			return flags&fRemoved != 0, ErrDeletedTimer
		}
	}

	switch wheelID {
	case wheelNone:
		if tl.info.flags()&fRunning != 0 {
			if delF&fDelTry == 0 {
				tl.info.setFlags(fDelete)
			}
			return false, nil
		}
		if flags&fRemoved == 0 {
			BUG("timer removed but fRemoved not set: %p flags 0x%x\n", tl, flags)
		}
		return true, ErrAlreadyRemovedTimer

	case wheelRQ:
		ws.rQlocks[idx].Lock()
		w2, i2 := tl.info.wheelPos()
		if w2 != wheelID || i2 != idx {
			ws.rQlocks[idx].Unlock()
			goto retry
		}
		var ret bool
		if tl.info.flags()&fRunning == 0 {
			ws.rQs[idx].rm(tl)
			tl.next, tl.prev = nil, nil
			tl.info.chgFlags(fRemoved, fActive)
			ret = true
		} else {
			if delF&fDelTry == 0 {
				tl.info.setFlags(fDelete)
			}
			ret = false
		}
		ws.rQlocks[idx].Unlock()
		if ret {
			ws.runCancelCb(tl)
		}
		return ret, nil

	case wheelExp:
		w := ws.wheelByID(uint8(idx))
		if w == nil {
			PANIC("cancel: expired entry with unknown owning wheel idx %d\n", idx)
		}
		w.lock()
		w2, i2 := tl.info.wheelPos()
		if w2 != wheelID || i2 != idx {
			w.unlock()
			goto retry
		}
		var ret bool
		if tl.info.flags()&fRunning == 0 {
			w.expired.rm(tl)
			tl.next, tl.prev = nil, nil
			tl.info.chgFlags(fRemoved, fActive)
			ret = true
		} else {
			if delF&fDelTry == 0 {
				tl.info.setFlags(fDelete)
			}
			ret = false
		}
		w.unlock()
		if ret {
			ws.runCancelCb(tl)
		}
		return ret, nil

	default:
		w := ws.wheelByID(wheelID)
		if w == nil {
			PANIC("cancel: unknown wheel id %d for %p\n", wheelID, tl)
			return true, ErrInvalidTimer
		}
		w.lock()
		w2, i2 := tl.info.wheelPos()
		if w2 != wheelID || i2 != idx {
			w.unlock()
			goto retry
		}
		if wheelID != wheelRQ && (tl.Detached() || tl.next == nil || tl.prev == nil) {
			w.unlock()
			PANIC("invalid timer link: %p n: %p p: %p on wheel %d/%d expire %s\n",
				tl, tl.next, tl.prev, wheelID, idx, tl.expire)
			return true, ErrInvalidTimer
		}
		lst := &w.slots[idx]
		lst.rm(tl)
		tl.next, tl.prev = nil, nil
		w.toCnt--
		w.clearMinIfUnsafe(tl)
		tl.info.chgFlags(fRemoved, fActive)
		w.unlock()
		ws.runCancelCb(tl)
		return true, nil
	}
}

// runCancelCb invokes tl's cancel callback, if any. Must be called with
// no wheel or run-queue lock held.
func (ws *WheelSet) runCancelCb(tl *TimerLnk) {
	if tl.cf != nil {
		tl.cf(ws, tl, tl.arg)
	}
}

// Cancel removes the corresponding timer, either immediately or, if
// running, when its handler returns. Multiple Cancel-family calls on the
// same timer are safe to run concurrently.
//
// Running timers are marked for removal the moment their handler
// terminates, ignoring any re-arm request. To only cancel a timer if it
// is not currently running (letting it re-arm itself otherwise), use
// CancelTry. To wait for a running timer to finish and then remove it,
// use CancelWait.
func (ws *WheelSet) Cancel(tl *TimerLnk) (bool, error) {
	return ws.cancel(tl, 0)
}

// CancelTry removes tl unless it is currently running, in which case it
// does nothing (the timer may re-arm itself).
func (ws *WheelSet) CancelTry(tl *TimerLnk) (bool, error) {
	return ws.cancel(tl, fDelTry)
}

// CancelWait removes tl, busy-waiting if it is already running.
// Returns false for FgoR timers caught mid-run (they cannot be safely
// waited on from here).
func (ws *WheelSet) CancelWait(tl *TimerLnk) (bool, error) {
	var ok bool
	var err error
	for {
		ok, err = ws.cancel(tl, fDelRaceOk)
		if !ok && err == nil {
			flags := tl.info.flags()
			wheel, idx := tl.rctx.wheelPos()
			if flags&FgoR != 0 {
				return false, nil
			}
			if flags&fRunning == fRunning {
				if wheel == wheelExp {
					w := ws.wheelByID(uint8(idx))
					if w != nil {
						w.lock()
						flags2 := tl.info.flags()
						wheel2, idx2 := tl.rctx.wheelPos()
						if wheel == wheel2 && idx == idx2 {
							if w.running != tl && flags2&fRunning != 0 {
								w.unlock()
								tl.info.chgFlags(fRemoved, fActive)
								return true, nil
							}
						}
						w.unlock()
					}
				} else if wheel == wheelRQ {
					ws.rQlocks[idx].Lock()
					flags2 := tl.info.flags()
					wheel2, idx2 := tl.rctx.wheelPos()
					if wheel == wheel2 && idx == idx2 {
						if ws.rQrunning[idx] != tl && flags2&fRunning != 0 {
							ws.rQlocks[idx].Unlock()
							tl.info.chgFlags(fRemoved, fActive)
							return true, nil
						}
					}
					ws.rQlocks[idx].Unlock()
				}
				runtime.Gosched()
			}
		} else {
			if ok && (err == ErrAlreadyRemovedTimer || err == ErrInactiveTimer) {
				err = nil
			}
			break
		}
	}
	return ok, err
}

// afterRunUnsafe handles a timer callback's return value: re-arms it on
// its home wheel if requested, or marks it removed. Must be called with
// the home wheel locked.
func (ws *WheelSet) afterRunUnsafe(w *Wheel, t *TimerLnk, rearm bool, delta time.Duration) bool {
	if t == nil {
		return false
	}
	if rearm && t.info.flags()&fDelete == 0 {
		t.info.resetFlags(fRunning)
		if delta != Periodic {
			t.intvl = delta
		}
		dticks := ws.TicksRoundUp(t.intvl)
		t.expire = ws.Now().Add(dticks)
		if err := w.setUnsafe(t, dticks.Val()); err != nil {
			PANIC("afterRunUnsafe: setUnsafe failed for %p: %v\n", t, err)
			t.info.setFlags(fRemoved)
			return false
		}
		return true
	} else if rearm {
		w2, i2 := t.info.wheelPos()
		if w2 != wheelNone {
			PANIC("expected wheel none: %d/%d flags 0x%x\n", w2, i2, t.info.flags())
		}
		t.info.chgFlags(fRemoved, fRunning|fActive)
	}
	return false
}

// processExpired drains w's expired list, produced by the last Bump,
// dispatching each timer per its Ffast/FgoR/default run mode. Must be
// called with w unlocked; it manages w's lock itself.
func (ws *WheelSet) processExpired(w *Wheel) {
	rQadded := 0
	w.lock()
	for {
		t := w.expired.front()
		if t == nil {
			break
		}
		w.expired.rm(t)
		t.next, t.prev = nil, nil
		flags := t.info.flags()
		switch {
		case flags&Ffast != 0:
			w.running = t
			t.rctx.setWheel(wheelExp, uint16(w.id))
			t.info.setFlags(fRunning)
			w.unlock()
			rearm, delta := t.f(ws, t, t.arg)
			if !rearm {
				t = nil
			}
			w.lock()
			ws.afterRunUnsafe(w, t, rearm, delta)
			w.running = nil
			continue
		case flags&FgoR != 0:
			t.info.setFlags(fRunning)
			t.rctx.setWheel(wheelNone, wheelNoIdx)
			w.unlock()
			ws.wg.Add(1)
			go func(t *TimerLnk, w *Wheel) {
				defer ws.wg.Done()
				rearm, delta := t.f(ws, t, t.arg)
				if !rearm {
					t = nil
				}
				w.lock()
				ws.afterRunUnsafe(w, t, rearm, delta)
				w.unlock()
			}(t, w)
			w.lock()
			continue
		default:
			t.homeWheel = w.id
			rqPos := atomic.LoadUint32(&ws.rQhead)
			idx := rqPos % runQueuesNo
			ws.rQlocks[idx].Lock()
			ws.rQs[idx].append(t)
			ws.rQlocks[idx].Unlock()
			atomic.CompareAndSwapUint32(&ws.rQhead, rqPos, rqPos+1)
			rQadded++
		}
	}
	w.unlock()
	if rQadded != 0 {
		sigsNo := rQadded
		if sigsNo > runQueuesWorkersNo {
			sigsNo = runQueuesWorkersNo
		}
	runqSignal:
		for i := 0; i < sigsNo; i++ {
			select {
			case ws.rQch <- struct{}{}:
			default:
				break runqSignal
			}
		}
	}
}

// runqListen listens on ch for run-queue activity and runs every timer
// handler queued on whichever queue it claims.
func (ws *WheelSet) runqListen(ch <-chan struct{}) {
loop:
	for {
		select {
		case <-ws.cancelCh:
			break loop
		case _, ok := <-ch:
			if !ok {
				break loop
			}
		retry:
			for {
				pos := atomic.LoadUint32(&ws.rQtail)
				if pos == atomic.LoadUint32(&ws.rQhead) {
					continue loop
				}
				if !atomic.CompareAndSwapUint32(&ws.rQtail, pos, pos+1) {
					continue retry
				}
				idx := pos % runQueuesNo
				ws.rQlocks[idx].Lock()
				lst := &ws.rQs[idx]
				for {
					t := lst.front()
					if t == nil {
						break
					}
					ws.rQrunning[idx] = t
					t.rctx.setWheel(wheelRQ, uint16(idx))
					t.info.setFlags(fRunning)
					lst.rm(t)
					t.next, t.prev = nil, nil
					// resolve the home wheel now: t may not be touched
					// after a handler that declines to re-arm.
					w := ws.wheelByID(t.homeWheel)
					if w == nil {
						PANIC("runqListen: unknown home wheel %d for %p\n",
							t.homeWheel, t)
					}
					ws.rQlocks[idx].Unlock()

					rearm, delta := t.f(ws, t, t.arg)
					if !rearm {
						t = nil
					}

					ws.rQlocks[idx].Lock()
					if rearm && t.info.flags()&fDelete != 0 {
						rearm = false
					}
					ws.rQlocks[idx].Unlock()

					w.lock()
					ws.afterRunUnsafe(w, t, rearm, delta)
					w.unlock()

					ws.rQlocks[idx].Lock()
					ws.rQrunning[idx] = nil
				}
				ws.rQlocks[idx].Unlock()
			}
		}
	}
}

// BumpWheel advances a single wheel (identified by the scheduler id it
// serves) by dt ticks, running everything that expires. It must not be
// called concurrently for the same wheel.
func (ws *WheelSet) BumpWheel(schedulerID int, dt int64) error {
	w, err := ws.For(schedulerID)
	if err != nil {
		return err
	}
	ws.bumpOne(w, dt)
	return nil
}

func (ws *WheelSet) bumpOne(w *Wheel, dt int64) {
	if dt <= 0 {
		return
	}
	w.lock()
	w.bumpUnsafe(dt)
	w.unlock()
	ws.processExpired(w)
}

// Bump advances every wheel in the set by dt ticks (the drained do_time
// delta) and runs everything that expires. dt must be the same
// process-wide elapsed-ticks value for every wheel: each wheel tracks its
// own position but they all share the same global tick rate.
func (ws *WheelSet) Bump(dt int64) {
	if dt <= 0 {
		return
	}
	atomic.AddUint64(&ws.nowTicks, uint64(dt))
	for _, w := range ws.wheels {
		ws.bumpOne(w, dt)
	}
}

// NextTime returns the number of ticks until the soonest timer across
// every wheel fires, clamped to ShortTimeMax, and false if no wheel has
// any active timers.
func (ws *WheelSet) NextTime() (int64, bool) {
	found := false
	var min int64
	for _, w := range ws.wheels {
		w.lock()
		t, ok := w.nextTimeUnsafe()
		w.unlock()
		if ok && (!found || t < min) {
			found = true
			min = t
		}
	}
	return min, found
}

// TimeLeft returns the number of ticks left before tl fires, or 0 if it
// is inactive or overdue.
func (ws *WheelSet) TimeLeft(tl *TimerLnk) int64 {
	if !tl.Active() {
		return 0
	}
	wheelID, idx := tl.info.wheelPos()
	w := ws.wheelByID(wheelID)
	if w == nil {
		return 0
	}
	w.lock()
	left := w.timeLeftUnsafe(tl, idx)
	w.unlock()
	return left
}
