// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

//go:build !darwin

package ttod

// mach_absolute_time is a Darwin-only API; everywhere else the MACH
// strategy simply never initializes (machTimebaseInfo stays nil, see
// MachStrategy.Init).
func init() {}
