// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

//go:build !unix

package ttod

import "time"

// gtodGet falls back to the Go runtime's own wall clock on platforms
// x/sys/unix doesn't cover.
func gtodGet() (int64, Status) {
	now := time.Now()
	return now.Unix()*1_000_000 + int64(now.Nanosecond())/1000, OK
}
