// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

// Package erts is the top-level facade tying the elapsed-ticks
// accumulator (dotime), the tolerant time-of-day dispatcher (ttod), the
// calendar conversions (calendar) and the timer wheel (wtimer) together
// into the single entry point the original engine exposes as
// erl_time_sup.c/erl_time.h's "time_sup": InitTimeSup/InitTime bring the
// subsystem up, a driving loop periodically samples TTOD and feeds the
// delta into the wheel set exactly the way erts_deliver_time bridges a
// platform interrupt into do_time.
package erts

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/intuitivelabs/slog"

	"github.com/vflowproto/ertstime/calendar"
	"github.com/vflowproto/ertstime/dotime"
	"github.com/vflowproto/ertstime/ttod"
	"github.com/vflowproto/ertstime/wtimer"
)

var Log slog.Log = slog.New(slog.LWARN, slog.LOptNone, slog.LStdErr)

func DBGon() bool { return Log.DBGon() }
func ERRon() bool { return Log.ERRon() }

func DBG(f string, a ...interface{}) {
	Log.LLog(slog.LDBG, 1, "DBG: erts: ", f, a...)
}

func ERR(f string, a ...interface{}) {
	Log.LLog(slog.LERR, 1, "ERROR: erts: ", f, a...)
}

// NoTimeoutSecs is the ceiling TimeRemaining reports when no timer is
// active anywhere, erl_time_sup.c's "sys_time_sup.c: wait up to this long
// when there's nothing scheduled" convention (100000 seconds, the
// original's NO_TIMEOUT sentinel translated into an actual bound).
const NoTimeoutSecs = 100_000

// Sys is a running instance of the timing subsystem: a timer WheelSet fed
// by a ttod.Dispatcher-driven pump loop through a dotime.Counter, plus
// calendar conversions against the process's Location.
type Sys struct {
	// 64-bit atomics first: sync/atomic only guarantees their alignment
	// on 32-bit platforms for the leading fields of a struct.
	thenUs          int64 // atomic: last value GetNow handed out, for strict monotonicity
	lastDeliveredUs int64 // atomic: TOD at the last DeliverTime, microseconds since epoch
	approxSecs      int64 // atomic: whole seconds as of the last GetNow, lock-free read

	Wheels *wtimer.WheelSet
	ticks  dotime.Counter

	td   time.Duration
	disp *ttod.Dispatcher

	loc *time.Location

	wg       sync.WaitGroup
	cancelCh chan struct{}
}

// InitTimeSup allocates a Sys without starting its driving loop: the
// equivalent of erts_init_time_sup's one-time static setup, before
// erts_init_time (which also starts the clock). numSchedulers/dirty/bits
// are passed straight through to wtimer.WheelSet.Init; td is the wheel's
// tick duration (the interval the pump loop samples ttod.Now() at).
func InitTimeSup(numSchedulers int, dirty bool, bits uint, td time.Duration) (*Sys, error) {
	ws := &wtimer.WheelSet{}
	if err := ws.Init(numSchedulers, dirty, bits, td); err != nil {
		return nil, err
	}
	s := &Sys{
		Wheels: ws,
		td:     td,
		disp:   ttod.Default(),
		loc:    time.Local,
	}
	now, _ := s.disp.Now()
	atomic.StoreInt64(&s.lastDeliveredUs, now)
	atomic.StoreInt64(&s.thenUs, now)
	atomic.StoreInt64(&s.approxSecs, now/1_000_000)
	return s, nil
}

// ClockResolution returns the tick duration this Sys was initialized
// with, the value erts_init_time_sup reports back to its caller.
func (s *Sys) ClockResolution() time.Duration { return s.td }

// InitTime starts the driving loop: a ticker samples the tolerant
// time-of-day source every td, drains the delta into the wheel set's
// Bump, mirroring erts_deliver_time's "do_time.Add(ticks); then
// erts_bump_timer(do_time.Drain())" pairing. It is
// the Go counterpart of erl_time_sup.c's erts_init_time plus its repeated
// erts_deliver_time calls.
func (s *Sys) InitTime() {
	s.cancelCh = make(chan struct{})
	now, _ := s.disp.Now()
	atomic.StoreInt64(&s.lastDeliveredUs, now)
	s.Wheels.StartWorkers()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.td)
		defer ticker.Stop()
		for {
			select {
			case <-s.cancelCh:
				return
			case <-ticker.C:
				s.DeliverTime()
			}
		}
	}()
}

// Shutdown stops the driving loop and the underlying wheel set's run
// queue workers, waiting for both to finish.
func (s *Sys) Shutdown() {
	if s.cancelCh != nil {
		close(s.cancelCh)
	}
	s.wg.Wait()
	s.Wheels.Shutdown()
}

// DeliverTime samples the tolerant time-of-day source, converts the
// wall-clock microseconds elapsed since the previous delivery into ticks,
// feeds them into the do_time accumulator and immediately drains it into
// the wheel set: erts_deliver_time's "record elapsed, republish, then
// bump". A non-positive elapsed time (TTOD stepped backwards under us) is
// silently treated as zero. Most callers should rely on InitTime's own
// loop; DeliverTime is exposed for hosts that drive their own tick
// source.
func (s *Sys) DeliverTime() {
	curUs, _ := s.disp.Now()
	for {
		lastUs := atomic.LoadInt64(&s.lastDeliveredUs)
		deltaUs := curUs - lastUs
		if deltaUs <= 0 {
			return
		}
		deltaTicks, rest := s.Wheels.Ticks(time.Duration(deltaUs) * time.Microsecond)
		if deltaTicks.Val() == 0 {
			return
		}
		// republish minus the sub-tick remainder, so fractional ticks
		// carry over instead of being dropped every delivery.
		if atomic.CompareAndSwapInt64(&s.lastDeliveredUs, lastUs,
			curUs-int64(rest/time.Microsecond)) {
			s.ticks.Add(int32(deltaTicks.Val()))
			break
		}
	}
	s.Tick()
}

// deliverDelta injects deltaUs microseconds of elapsed time directly,
// bypassing the TTOD sampling. Test hook.
func (s *Sys) deliverDelta(deltaUs int64) {
	deltaTicks, _ := s.Wheels.Ticks(time.Duration(deltaUs) * time.Microsecond)
	if deltaTicks.Val() == 0 {
		return
	}
	s.ticks.Add(int32(deltaTicks.Val()))
	s.Tick()
}

// Tick drains whatever has accumulated in the do_time counter and bumps
// the wheel set by that many ticks. Safe to call from a single driving
// goroutine; concurrent Tick calls race on the wheel set the same way
// concurrent erts_bump_timer calls would.
func (s *Sys) Tick() {
	n := s.ticks.Drain()
	if n > 0 {
		s.Wheels.Bump(int64(n))
	}
}

// GetTimeval returns the current wall-clock time as (seconds,
// microseconds) since the Unix epoch, erl_time_sup.c's get_now stripped
// of its megasec/sec/microsec three-way split (irrelevant once Go's int64
// seconds field can't overflow the way a 32-bit one could).
func (s *Sys) GetTimeval() (sec int64, usec int64) {
	us, _ := s.GetNow()
	return us / 1_000_000, us % 1_000_000
}

// GetNow returns the current wall-clock time as microseconds since the
// Unix epoch, strictly monotonic across every caller and goroutine: if
// the candidate reading is not later than the last value handed out,
// it is advanced to then+1 and CAS-installed instead, erl_time_sup.c's
// get_now with its do-not-repeat fence.
func (s *Sys) GetNow() (int64, string) {
	us, name := s.disp.Now()
	for {
		prev := atomic.LoadInt64(&s.thenUs)
		cand := us
		if cand <= prev {
			cand = prev + 1
		}
		if atomic.CompareAndSwapInt64(&s.thenUs, prev, cand) {
			atomic.StoreInt64(&s.approxSecs, cand/1_000_000)
			return cand, name
		}
	}
}

// GetNowTriple is GetNow in the original's (megaseconds, seconds,
// microseconds) split.
func (s *Sys) GetNowTriple() (mega, sec, usec int64) {
	us, _ := s.GetNow()
	return splitUs(us)
}

// GetSysNowTriple is GetSysNow in the original's (megaseconds, seconds,
// microseconds) split.
func (s *Sys) GetSysNowTriple() (mega, sec, usec int64) {
	us, _ := s.GetSysNow()
	return splitUs(us)
}

func splitUs(us int64) (mega, sec, usec int64) {
	sec = us / 1_000_000
	usec = us % 1_000_000
	mega = sec / 1_000_000
	sec = sec % 1_000_000
	return mega, sec, usec
}

// GetSysNow returns the current wall-clock time as microseconds since
// the Unix epoch straight from the TTOD dispatcher, with no monotonicity
// enforcement (get_sys_now in the original).
func (s *Sys) GetSysNow() (int64, string) {
	return s.disp.Now()
}

// GetTime returns the current wall-clock time rounded down to whole
// seconds since the Unix epoch.
func (s *Sys) GetTime() int64 {
	us, _ := s.GetNow()
	return us / 1_000_000
}

// GetApproxTime returns the whole seconds since the Unix epoch as of the
// most recent GetNow call, without consulting any clock source:
// erl_time_sup.c's erts_get_approx_time, a single lock-free atomic read
// for callers where staleness of up to one delivery interval is fine.
func (s *Sys) GetApproxTime() int64 {
	return atomic.LoadInt64(&s.approxSecs)
}

// TimeRemaining returns how long the caller may safely sleep before the
// next timer needs attention, clamped to NoTimeoutSecs when no timer is
// currently active anywhere (erl_time_sup.c's next_time wired to a
// concrete ceiling instead of a sentinel "infinite" value). Pending
// undelivered ticks are drained first so the answer reflects current
// time.
func (s *Sys) TimeRemaining() time.Duration {
	s.Tick()
	ticks, ok := s.Wheels.NextTime()
	if !ok {
		return NoTimeoutSecs * time.Second
	}
	return s.Wheels.Duration(wtimer.NewTicks(uint64(ticks)))
}

// SetTimer arms a one-shot or periodic timer on schedulerID's wheel,
// firing f after d, with cf (optional, may be nil) invoked if the timer
// is cancelled before it fires. tl must come from NewTimer/InitTimer.
// Pending ticks are delivered first, so d is measured from now rather
// than from the last delivery. Setting an already-active timer is a
// silent no-op, per the engine's long-standing contract.
func (s *Sys) SetTimer(schedulerID int, tl *wtimer.TimerLnk, d time.Duration,
	f wtimer.TimerHandlerF, cf wtimer.CancelHandlerF, arg interface{}) error {
	s.Tick()
	err := s.Wheels.SetC(schedulerID, tl, d, f, cf, arg)
	if err == wtimer.ErrActiveTimer {
		return nil
	}
	return err
}

// CancelTimer removes tl, per WheelSet.Cancel's semantics. Cancelling an
// inactive (never set, already fired or already cancelled) timer is a
// silent no-op.
func (s *Sys) CancelTimer(tl *wtimer.TimerLnk) (bool, error) {
	ok, err := s.Wheels.Cancel(tl)
	if err == wtimer.ErrInactiveTimer || err == wtimer.ErrAlreadyRemovedTimer {
		return ok, nil
	}
	return ok, err
}

// BumpTimer advances every wheel by the given elapsed short-time ticks
// directly, bypassing the do_time accumulator (erts_bump_timer exposed
// as its own public operation, distinct from the do_time-driven
// Tick/DeliverTime pair).
func (s *Sys) BumpTimer(ticks int64) { s.Wheels.Bump(ticks) }

// NextTime drains pending ticks and returns the tick count until the
// soonest timer fires, false if no timer is active anywhere.
func (s *Sys) NextTime() (int64, bool) {
	s.Tick()
	return s.Wheels.NextTime()
}

// TimeLeft drains pending ticks and returns how much time remains before
// tl fires, 0 if it is inactive or overdue.
func (s *Sys) TimeLeft(tl *wtimer.TimerLnk) time.Duration {
	s.Tick()
	return s.Wheels.Duration(wtimer.NewTicks(uint64(s.Wheels.TimeLeft(tl))))
}

// SetLocation overrides the Location LocalToUniv/UnivToLocal convert
// against (default time.Local).
func (s *Sys) SetLocation(loc *time.Location) { s.loc = loc }

// LocalToUniv converts broken-down local time (in Sys's configured
// Location) to broken-down UTC time.
func (s *Sys) LocalToUniv(dt calendar.DateTime) (calendar.DateTime, bool) {
	return calendar.LocalToUniv(dt, s.loc)
}

// UnivToLocal converts broken-down UTC time to broken-down local time (in
// Sys's configured Location).
func (s *Sys) UnivToLocal(dt calendar.DateTime) (calendar.DateTime, bool) {
	return calendar.UnivToLocal(dt, s.loc)
}

// UnivToSeconds is shorthand for calendar.UnivToSeconds.
func UnivToSeconds(dt calendar.DateTime) (int64, bool) { return calendar.UnivToSeconds(dt) }

// SecondsToUniv is shorthand for calendar.SecondsToUniv.
func SecondsToUniv(secs int64) calendar.DateTime { return calendar.SecondsToUniv(secs) }

// default process-wide instance, erl_time_sup.c's single static
// time_sup state promoted to a lazily-initialized package singleton.
var (
	defOnce sync.Once
	def     *Sys
	defErr  error
)

// Default returns the process-wide Sys, bringing it up with
// wtimer.DefaultWheelBits, 8 scheduler wheels plus a dedicated dirty
// wheel, and a 10ms tick on first use.
func Default() (*Sys, error) {
	defOnce.Do(func() {
		def, defErr = InitTimeSup(8, true, wtimer.DefaultWheelBits, 10*time.Millisecond)
		if defErr == nil {
			def.InitTime()
		}
	})
	return def, defErr
}
