// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package wtimer

import (
	"fmt"
	"sync/atomic"
)

// tInfo packs a timer's current flags together with the wheel and slot
// it is linked on into one 32-bit word, so state checks and the
// flag/position pair always read consistently with a single atomic load.
//
// Layout:
//
//	31    24    16      0
//	| flgs | wNo | wIdx |
//
// flgs holds the f* flag bits, wNo the wheel number (or one of the
// wheelNone/wheelExp/wheelRQ sentinels) and wIdx the slot index inside
// that wheel (or the run-queue/owning-wheel index for the sentinels).
// The layout caps a single wheel at 2^16 slots.
type tInfo struct {
	atomicV uint32
}

const (
	flgsMask = 255
	wNoMask  = 255
	wIdxMask = 65535
	flgsBpos = 24
	wNoBpos  = 16
)

// update applies f to the current value under a CAS loop. Every mutator
// below is a masked read-modify-write of the same word, so they all
// funnel through here.
func (t *tInfo) update(f func(crt uint32) uint32) {
	for {
		crt := atomic.LoadUint32(&t.atomicV)
		if atomic.CompareAndSwapUint32(&t.atomicV, crt, f(crt)) {
			return
		}
	}
}

// setFlags sets the flag bits in mask, leaving everything else alone.
func (t *tInfo) setFlags(mask uint8) {
	m := uint32(mask) << flgsBpos
	t.update(func(crt uint32) uint32 { return crt | m })
}

// resetFlags clears the flag bits in mask.
func (t *tInfo) resetFlags(mask uint8) {
	m := uint32(mask) << flgsBpos
	t.update(func(crt uint32) uint32 { return crt & ^m })
}

// chgFlags clears the bits in resetMask and sets the bits in setMask, in
// one atomic step.
func (t *tInfo) chgFlags(setMask, resetMask uint8) {
	setM := uint32(setMask) << flgsBpos
	resetM := uint32(resetMask) << flgsBpos
	t.update(func(crt uint32) uint32 { return (crt & ^resetM) | setM })
}

// assignFlags replaces the whole flags byte with newVal.
func (t *tInfo) assignFlags(newVal uint8) {
	v := uint32(newVal) << flgsBpos
	resetM := uint32(flgsMask) << flgsBpos
	t.update(func(crt uint32) uint32 { return (crt & ^resetM) | v })
}

// setWheel records the wheel/slot the timer is linked on, preserving the
// flags.
func (t *tInfo) setWheel(w uint8, idx uint16) {
	v := uint32(w)<<wNoBpos | uint32(idx)
	resetM := uint32(wNoMask)<<wNoBpos | uint32(wIdxMask)
	t.update(func(crt uint32) uint32 { return (crt & ^resetM) | v })
}

// setAll overwrites flags, wheel and index in one store.
func (t *tInfo) setAll(flgs uint8, w uint8, idx uint16) {
	v := uint32(flgs)<<flgsBpos | uint32(w)<<wNoBpos | uint32(idx)
	atomic.StoreUint32(&t.atomicV, v)
}

func (t *tInfo) flags() uint8 {
	f, _, _ := t.getAll()
	return f
}

func (t *tInfo) wheelPos() (uint8, uint16) {
	_, w, idx := t.getAll()
	return w, idx
}

// getAll returns flags, wheel number and index from a single load.
func (t *tInfo) getAll() (uint8, uint8, uint16) {
	crt := atomic.LoadUint32(&t.atomicV)
	return uint8(crt >> flgsBpos),
		uint8((crt >> wNoBpos) & wNoMask),
		uint16(crt & wIdxMask)
}

func (t tInfo) String() string {
	f, w, i := t.getAll()
	return fmt.Sprintf("%02x:%02x:%d", f, w, i)
}
