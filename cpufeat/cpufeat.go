// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

// Package cpufeat exposes the CPU feature bits the ttod strategies gate
// their availability on: architecture, vendor, 64-bit mode, and the
// handful of instructions (CX16, RDTSCP, invariant TSC) a TSC-based clock
// needs to be trustworthy. It wraps github.com/klauspost/cpuid/v2 for
// vendor and instruction-set detection; the invariant-TSC bit is read
// straight from CPUID leaf 0x80000007 (see cpufeat_amd64.s), the one
// power-management leaf the library does not surface.
package cpufeat

import (
	"runtime"
	"sync"

	"github.com/klauspost/cpuid/v2"
)

// Features is the bitset a TTOD strategy checks before declaring itself
// usable, mirroring erl_cpu_features.h's ERTS_CPU_ARCH_xxx/ERTS_CPU_FEAT_xxx
// flags.
type Features uint32

const (
	ArchX86 Features = 1 << iota
	ArchX86_64
	ArchARM64
	VendIntel
	VendAMD
	Bit64
	AtomicCX16   // CMPXCHG16B, needed for a lock-free 128-bit record
	TSC          // RDTSC present
	TSCP         // RDTSCP present (serializing TSC read)
	TSCInvariant // TSC frequency doesn't change with P-states
	AES
)

var (
	once   sync.Once
	cached Features
)

// Detect runs CPU feature detection exactly once (idempotent) and
// returns the cached bitset on every call thereafter. Unsupported
// features are simply left unset; detection never fails.
func Detect() Features {
	once.Do(func() {
		cached = detect()
	})
	return cached
}

func detect() Features {
	var f Features

	switch runtime.GOARCH {
	case "amd64":
		f |= ArchX86 | ArchX86_64 | Bit64
	case "386":
		f |= ArchX86
	case "arm64":
		f |= ArchARM64 | Bit64
	}

	c := cpuid.CPU
	switch c.VendorID {
	case cpuid.Intel:
		f |= VendIntel
	case cpuid.AMD:
		f |= VendAMD
	}

	if c.Has(cpuid.CX16) {
		f |= AtomicCX16
	}
	if c.Has(cpuid.RDTSCP) {
		f |= TSCP
	}
	if c.Has(cpuid.AESNI) {
		f |= AES
	}

	if f.HasAny(ArchX86 | ArchX86_64) {
		if hasTSC() {
			f |= TSC
		}
		if hasInvariantTSC() {
			f |= TSCInvariant
		}
	}

	return f
}

// Has reports whether every bit in want is set in f.
func (f Features) Has(want Features) bool {
	return f&want == want
}

// HasAny reports whether at least one bit in want is set in f.
func (f Features) HasAny(want Features) bool {
	return f&want != 0
}
