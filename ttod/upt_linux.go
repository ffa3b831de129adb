// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

//go:build linux

package ttod

import "golang.org/x/sys/unix"

func init() {
	uptimeTicks = func() (uint64, bool) {
		var tms unix.Tms
		r, err := unix.Times(&tms)
		if err != nil || r == ^uintptr(0) {
			return 0, false
		}
		return uint64(r), true
	}
	uptimeAvailable = true
}
