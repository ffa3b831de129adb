// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

// Command ttodinfo reports which tolerant time-of-day strategy is active
// on the current host and samples its reported clock resolution, useful
// for sanity-checking a deployment before relying on erts's timing
// subsystem.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/vflowproto/ertstime/ttod"
)

func main() {
	samples := flag.Int("samples", 2000, "number of back-to-back Now() calls used to estimate resolution")
	enableTSC := flag.Bool("enable-tsc", false, "set "+ttod.EnvEnableTSC+" before probing strategies")
	flag.Parse()

	if *enableTSC {
		os.Setenv(ttod.EnvEnableTSC, "1")
	}

	us, name := ttod.Now()
	fmt.Printf("active strategy: %s\n", name)
	fmt.Printf("current time:    %s (%d us since epoch)\n",
		time.UnixMicro(us).Format(time.RFC3339Nano), us)

	res, err := estimateResolution(*samples)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ttodinfo: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("observed resolution over %d samples: %s\n", *samples, res)
}

// estimateResolution calls ttod.Now() back to back and returns the
// smallest nonzero gap observed between successive readings, a rough
// proxy for the active strategy's real-world granularity.
func estimateResolution(samples int) (time.Duration, error) {
	if samples < 2 {
		return 0, fmt.Errorf("need at least 2 samples, got %d", samples)
	}
	prev, _ := ttod.Now()
	var min int64
	for i := 1; i < samples; i++ {
		cur, _ := ttod.Now()
		if d := cur - prev; d > 0 && (min == 0 || d < min) {
			min = d
		}
		prev = cur
	}
	if min == 0 {
		return 0, nil
	}
	return time.Duration(min) * time.Microsecond, nil
}
