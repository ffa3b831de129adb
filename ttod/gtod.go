// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package ttod

// fallbackName is the always-last entry in a Dispatcher's chain: plain
// gettimeofday in microseconds, always available.
const fallbackName = "GTOD"

// gtodMicros is a small helper strategies use as their own reference
// "current TOD" reading when computing an offset, letting them share the
// same underlying syscall the dispatcher's own fallback uses.
func gtodMicros() int64 {
	v, _ := gtodGet()
	return v
}
