// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

// Package ttod implements the Tolerant Time Of Day dispatcher and its
// strategies: a pluggable, self-calibrating
// wall-clock source built over high-resolution monotonic counters, with
// bounded correction bias, graceful per-strategy degradation, and a
// gettimeofday fallback that is always available.
package ttod

import (
	"sync"
	"sync/atomic"

	"github.com/intuitivelabs/slog"

	"github.com/vflowproto/ertstime/cpufeat"
)

// Log is ttod's package-wide logger (see wtimer's dbg.go for the
// convention this follows).
var Log slog.Log = slog.New(slog.LWARN, slog.LOptNone, slog.LStdErr)

func DBGon() bool  { return Log.DBGon() }
func ERRon() bool  { return Log.ERRon() }
func WARNon() bool { return Log.WARNon() }

func DBG(f string, a ...interface{}) {
	Log.LLog(slog.LDBG, 1, "DBG: ttod: ", f, a...)
}

func ERR(f string, a ...interface{}) {
	Log.LLog(slog.LERR, 1, "ERROR: ttod: ", f, a...)
}

func WARN(f string, a ...interface{}) {
	Log.LLog(slog.LWARN, 1, "WARNING: ttod: ", f, a...)
}

// EnvEnableTSC is the environment variable that gates the TSC strategy:
// unset or empty, TSC never comes up.
const EnvEnableTSC = "ERTS_ENABLE_TTOD_TSC"

// Status is returned by a strategy's get function alongside a candidate
// timestamp, modeling the two self-demotion modes of the original
// get_tolerant_timeofday chain (erl_time_sup.c).
type Status int

const (
	// OK: the returned timestamp is valid.
	OK Status = iota
	// Transient: this strategy can't answer yet (e.g. insufficient
	// calibration samples); the dispatcher tries the next strategy for
	// this call only.
	Transient
	// Permanent: the strategy is irrecoverable; the dispatcher removes
	// it from the active chain for the rest of the process's life.
	Permanent
)

// GetFunc returns the current wall-clock time as microseconds since the
// Unix epoch, together with a Status describing how much to trust it.
type GetFunc func() (micros int64, status Status)

// Strategy is the per-implementation plug-in surface. Init is called
// once, in registration order, before the dispatcher ever calls the
// returned GetFunc.
type Strategy interface {
	Init() (GetFunc, bool)
}

type entry struct {
	name string
	s    Strategy
	get  GetFunc
	dead int32 // atomic: set to 1 on permanent failure or failed Init
}

// Dispatcher is the ordered TTOD registry. The original keeps the
// active strategy as a 128-bit atomic (get_fn, name) pair, CAS-swapped
// on demotion; here it is a plain atomic index into entries, which never
// mutate after Init, so one word carries the same information.
type Dispatcher struct {
	entries  []*entry
	active   int32 // atomic index of the last-known-good entry
	disabled int32 // atomic "disable" byte: force fallback regardless
}

// NewDispatcher returns an empty dispatcher. Register strategies with
// Register, in the priority order they should be tried, then call Init.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Register adds a strategy to the end of the dispatch chain.
func (d *Dispatcher) Register(name string, s Strategy) {
	d.entries = append(d.entries, &entry{name: name, s: s})
}

// Init calls Init on every registered strategy, in registration order.
// A strategy whose Init fails is marked dead and never consulted again;
// this is distinct from a Permanent failure discovered later by Now,
// since it was never usable to begin with.
func (d *Dispatcher) Init() {
	for _, e := range d.entries {
		get, ok := e.s.Init()
		if ok && get != nil {
			e.get = get
			if DBGon() {
				DBG("strategy %q initialized\n", e.name)
			}
		} else {
			atomic.StoreInt32(&e.dead, 1)
			if DBGon() {
				DBG("strategy %q not available\n", e.name)
			}
		}
	}
}

// Disable forces Now to use the gettimeofday fallback regardless of any
// registered strategy's state (erts_disable_tolerant_timeofday).
func (d *Dispatcher) Disable() { atomic.StoreInt32(&d.disabled, 1) }

// Enable reverses Disable.
func (d *Dispatcher) Enable() { atomic.StoreInt32(&d.disabled, 0) }

// Now returns the current wall-clock time in microseconds since the Unix
// epoch, together with the name of the strategy that produced it. It
// starts at the active entry and walks forward only: a Transient result
// delegates to the next strategy for this call alone (the active entry is
// unchanged and will be retried next call), while a Permanent result
// demotes the strategy for good and advances the active entry past it --
// strategies never re-promote. If every registered strategy is dead or
// fails, or the dispatcher is disabled, the gettimeofday fallback answers
// instead.
func (d *Dispatcher) Now() (int64, string) {
	if atomic.LoadInt32(&d.disabled) != 0 {
		v, _ := gtodGet()
		return v, fallbackName
	}
	n := len(d.entries)
	start := int(atomic.LoadInt32(&d.active))
	for idx := start; idx < n; idx++ {
		e := d.entries[idx]
		if atomic.LoadInt32(&e.dead) != 0 || e.get == nil {
			continue
		}
		v, status := e.get()
		switch status {
		case OK:
			return v, e.name
		case Transient:
			continue
		case Permanent:
			atomic.StoreInt32(&e.dead, 1)
			// move the active entry to the successor, the CAS keeping a
			// racing demotion of a later entry from moving it backwards.
			atomic.CompareAndSwapInt32(&d.active, int32(idx), int32(idx+1))
			if WARNon() {
				WARN("strategy %q permanently demoted\n", e.name)
			}
			continue
		}
	}
	v, _ := gtodGet()
	return v, fallbackName
}

// default singleton. Initialization order is fixed: TSC, MACH, HPET,
// HRT, UPT, then the gettimeofday fallback.
var (
	defOnce sync.Once
	def     *Dispatcher
)

// Default returns the process-wide Dispatcher, initializing it on first
// use. CPU feature detection always runs before any strategy's Init.
func Default() *Dispatcher {
	defOnce.Do(func() {
		cpufeat.Detect()
		def = NewDispatcher()
		def.Register("TSC", &TSCStrategy{})
		def.Register("MACH", &MachStrategy{})
		def.Register("HPET", &HPETStrategy{})
		def.Register("HRT", &HRTStrategy{})
		def.Register("UPT", &UPTStrategy{})
		def.Init()
	})
	return def
}

// Now is shorthand for Default().Now().
func Now() (int64, string) { return Default().Now() }
