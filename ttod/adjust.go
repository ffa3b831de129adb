// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package ttod

// boundUsAdjustment clamps a single correction step by offset size,
// ttod's bound_adjustment table unchanged. It is shared by every
// strategy that maintains a running microsecond correction bias (TSC,
// MACH, HRT, HPET): each lets the offset settle in gradually rather than
// stepping the clock by the full observed difference in one call.
func boundUsAdjustment(offset int64) int64 {
	abs := offset
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs > 1_000_000:
		if offset > 0 {
			return 10_000
		}
		return -10_000
	case abs > 10_000:
		return offset / 100
	case abs > 1_000:
		return offset / 10
	default:
		return offset
	}
}
