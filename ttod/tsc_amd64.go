// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

//go:build amd64

package ttod

func init() {
	readTSC = readTSCAsm
	tscReaderAvailable = true
}

// readTSCAsm reads the raw timestamp counter (RDTSC), see tsc_amd64.s.
// The Go counterpart of the original's inline-asm ttod_tsc_read_tsc.
func readTSCAsm() uint64
