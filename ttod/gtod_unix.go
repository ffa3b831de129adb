// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

//go:build unix

package ttod

import (
	"time"

	"golang.org/x/sys/unix"
)

// gtodGet is the dispatcher's gettimeofday fallback,
// implemented as the actual gettimeofday(2) syscall via x/sys/unix rather
// than time.Now(), so it behaves the same as the original's direct OS
// call even when the Go runtime's own clock source is itself one of the
// strategies being tested against it.
func gtodGet() (int64, Status) {
	var tv unix.Timeval
	if err := unix.Gettimeofday(&tv); err != nil {
		now := time.Now()
		return now.Unix()*1_000_000 + int64(now.Nanosecond())/1000, OK
	}
	return int64(tv.Sec)*1_000_000 + int64(tv.Usec), OK
}
