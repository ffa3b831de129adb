// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

//go:build !linux

package ttod

// hpetDevice has no non-Linux implementation; HPETStrategy.Init always
// declines via openHPET returning ok=false.
type hpetDevice struct{}

func openHPET() (*hpetDevice, bool) { return nil, false }

func (d *hpetDevice) read() uint64   { return 0 }
func (d *hpetDevice) period() uint64 { return 0 }
func (d *hpetDevice) close()         {}
