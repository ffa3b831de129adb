// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package wtimer

import (
	"time"

	"github.com/intuitivelabs/timestamp"
)

// startRQ starts the run-queue "worker" goroutines.
func (ws *WheelSet) startRQ() {
	for i := 0; i < runQueuesWorkersNo; i++ {
		ws.wg.Add(1)
		go func() {
			defer ws.wg.Done()
			ws.runqListen(ws.rQch)
		}()
	}
}

// StartWorkers brings up the run-queue worker pool without the
// self-driving wall-clock ticker, for callers that drive Bump (or a
// do_time drain loop) themselves. Start implies it; calling it twice is
// a no-op.
func (ws *WheelSet) StartWorkers() {
	if ws.workersUp {
		return
	}
	ws.workersUp = true
	if ws.cancelCh == nil {
		ws.cancelCh = make(chan struct{})
	}
	ws.startRQ()
}

// Start runs the WheelSet in standalone, self-ticking mode: a
// time.Ticker drives Bump() directly off the wall clock, instead of an
// external do_time drain loop (see the ttod/erts packages for the
// tolerant-time-of-day-driven mode). In most cases call it right after
// Init.
func (ws *WheelSet) Start() {
	ws.lastTickT = timestamp.Now()
	ws.refTS = ws.lastTickT
	ws.refTicks = ws.Now()
	ws.StartWorkers()
	ws.wg.Add(1)
	go func() {
		defer ws.wg.Done()
		if DBGon() {
			DBG("starting ticker with %s at %s\n", ws.tickDuration, time.Now())
		}
		ws.lastTickT = timestamp.Now()
		ws.refTS = ws.lastTickT
		ticker := time.NewTicker(ws.tickDuration)
	loop:
		for {
			select {
			case <-ws.cancelCh:
				DBG("canceled\n")
				break loop
			case _, ok := <-ticker.C:
				if !ok {
					break loop
				}
				ws.ticker()
			}
		}
		ticker.Stop()
	}()
}

// Shutdown signals all goroutines started by Start to stop and waits for
// them to finish.
func (ws *WheelSet) Shutdown() {
	if ws.cancelCh != nil {
		close(ws.cancelCh)
	}
	ws.wg.Wait()
}
