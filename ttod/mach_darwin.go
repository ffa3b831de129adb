// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

//go:build darwin

package ttod

/*
#include <mach/mach_time.h>
*/
import "C"

func init() {
	machAbsoluteTime = func() uint64 {
		return uint64(C.mach_absolute_time())
	}
	machTimebaseInfo = func() (numer, denom uint32, ok bool) {
		var info C.mach_timebase_info_data_t
		if C.mach_timebase_info(&info) != 0 {
			return 0, 0, false
		}
		return uint32(info.numer), uint32(info.denom), true
	}
}
