// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package wtimer

import (
	"github.com/intuitivelabs/timestamp"
)

// ticker should be called periodically, ideally at each tick duration.
// It must never be called in parallel with itself.
func (ws *WheelSet) ticker() uint64 {
	now := timestamp.Now()
	if now.Before(ws.lastTickT) {
		// time going backwards!!
		ws.badTime++
		if ws.badTime > 10 {
			if ERRon() {
				ERR("trying to recover after time going backward %d times"+
					" with %s\n",
					ws.badTime, ws.lastTickT.Sub(now))
			}
			ws.lastTickT = now
			ws.refTS = ws.lastTickT
			ws.refTicks = ws.Now()
		} else if DBGon() {
			DBG("ticker: time going backward with %s (%d times)\n",
				ws.lastTickT.Sub(now), ws.badTime)
		}
		return 0
	}
	ws.badTime = 0
	if now.Sub(ws.refTS)/ws.tickDuration > (MaxTicksDiff - 2) {
		if DBGon() {
			DBG("ticker: ticks ref value overflowing after %s"+
				" (max ticks %d) -> re-adjusting\n",
				now.Sub(ws.refTS), MaxTicksDiff)
		}
		diff, _ := ws.Ticks(now.Sub(ws.lastTickT))
		ws.refTS = ws.lastTickT
		ws.refTicks = ws.Now().Sub(diff)
	}

	runTime := now.Sub(ws.refTS)
	runTicks := ws.Now().Sub(ws.refTicks)
	if runTime > ws.Duration(runTicks.AddUint64(1+20)) {
		if DBGon() {
			lost, _ := ws.Ticks(runTime - ws.Duration(runTicks))
			DBG("ticker: lost ticks since start-up: too slow:"+
				" ticks diff %d = %s, but time diff %s => lost %d ticks\n",
				runTicks.Val(), ws.Duration(runTicks), runTime, lost.Val())
		}
	} else if runTicks.Val() > 1 &&
		runTime < ws.Duration(runTicks.SubUint64(1)) {
		if DBGon() {
			faster, _ := ws.Ticks(ws.Duration(runTicks) - runTime)
			DBG("ticker: lost ticks since start-up: too fast:"+
				" ticks diff %d = %s time diff %s => faster with %d ticks\n",
				runTicks.Val(), ws.Duration(runTicks), runTime, faster.Val())
		}
	}
	diff := now.Sub(ws.lastTickT)
	if diff < ws.tickDuration {
		// too little time has passed
		return 0
	}
	ticks, rest := ws.Ticks(diff)

	ws.lastTickT = now.Add(-rest)
	ws.Bump(int64(ticks.Val()))
	return ticks.Val()
}
