// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

//go:build amd64

package cpufeat

// cpuidRaw executes the CPUID instruction for the given leaf/subleaf,
// see cpufeat_amd64.s.
func cpuidRaw(leaf, subleaf uint32) (eax, ebx, ecx, edx uint32)

// hasTSC reads the TSC presence bit: leaf 1, EDX[4].
func hasTSC() bool {
	maxLeaf, _, _, _ := cpuidRaw(0, 0)
	if maxLeaf < 1 {
		return false
	}
	_, _, _, edx := cpuidRaw(1, 0)
	return edx&(1<<4) != 0
}

// hasInvariantTSC reads the invariant-TSC bit: extended leaf 0x80000007
// ("Advanced Power Management Information"), EDX[8], the same bit on
// both Intel and AMD.
func hasInvariantTSC() bool {
	maxExt, _, _, _ := cpuidRaw(0x80000000, 0)
	if maxExt < 0x80000007 {
		return false
	}
	_, _, _, edx := cpuidRaw(0x80000007, 0)
	return edx&(1<<8) != 0
}
