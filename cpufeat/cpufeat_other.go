// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

//go:build !amd64

package cpufeat

// Outside amd64 there is no CPUID instruction to ask; the TSC bits stay
// unset and the TSC TTOD strategy never initializes.
func hasTSC() bool          { return false }
func hasInvariantTSC() bool { return false }
