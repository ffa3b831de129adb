// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

//go:build !amd64

package ttod

// Outside amd64 there is no portable way to read a TSC-equivalent
// counter, so the TSC strategy's Init always declines.
func init() {
	readTSC = func() uint64 { return 0 }
	tscReaderAvailable = false
}
