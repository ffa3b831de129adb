// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package wtimer

import (
	"math/rand"
	"testing"
	"unsafe"
)

func TestTicksConsts(t *testing.T) {
	var ticks Ticks
	if TicksBits > unsafe.Sizeof(ticks.v)*8 {
		t.Fatalf("TicksBits %d wider than the underlying value", TicksBits)
	}
	if MaxTicksDiff == 0 || MaxTicksDiff&(MaxTicksDiff-1) != 0 {
		t.Fatalf("MaxTicksDiff 0x%x should be a power of two", MaxTicksDiff)
	}
	if (TicksMask+1)&TicksMask != 0 ||
		MaxTicksDiff&TicksMask != MaxTicksDiff {
		t.Fatalf("TicksMask 0x%x inconsistent with MaxTicksDiff 0x%x",
			TicksMask, MaxTicksDiff)
	}
}

// checkTicksPair verifies every Ticks operation against plain uint64
// arithmetic for a (v1, v2) pair whose difference stays inside the
// comparable window.
func checkTicksPair(t *testing.T, v1, v2 uint64) {
	t.Helper()
	t1, t2 := NewTicks(v1), NewTicks(v2)

	if t1.EQ(t2) != ((v1 & TicksMask) == (v2 & TicksMask)) {
		t.Errorf("EQ(0x%x, 0x%x) wrong", v1, v2)
	}
	if t1.NE(t2) != (v1 != v2) {
		t.Errorf("NE(0x%x, 0x%x) wrong", v1, v2)
	}
	if t1.LT(t2) != (v1 < v2) {
		t.Errorf("LT(0x%x, 0x%x) wrong", v1, v2)
	}
	if t1.LE(t2) != (v1 <= v2) {
		t.Errorf("LE(0x%x, 0x%x) wrong", v1, v2)
	}
	if t1.GT(t2) != (v1 > v2) {
		t.Errorf("GT(0x%x, 0x%x) wrong", v1, v2)
	}
	if t1.GE(t2) != (v1 >= v2) {
		t.Errorf("GE(0x%x, 0x%x) wrong", v1, v2)
	}
	if t1.Add(t2).NE(NewTicks(v1 + v2)) {
		t.Errorf("Add(0x%x, 0x%x) wrong", v1, v2)
	}
	if t1.Sub(t2).NE(NewTicks(v1 - v2)) {
		t.Errorf("Sub(0x%x, 0x%x) wrong", v1, v2)
	}
	if t1.AddUint64(v2).NE(NewTicks(v1 + v2)) {
		t.Errorf("AddUint64(0x%x, 0x%x) wrong", v1, v2)
	}
	if t1.SubUint64(v2).NE(NewTicks(v1 - v2)) {
		t.Errorf("SubUint64(0x%x, 0x%x) wrong", v1, v2)
	}
}

func TestTicksOpsBoundaries(t *testing.T) {
	pairs := [][2]uint64{
		{0, 0},
		{1, 2},
		{4, 3},
		{MaxTicksDiff - 1, MaxTicksDiff - 2},
		{MaxTicksDiff - 2, MaxTicksDiff - 1},
		{MaxTicksDiff + 1, MaxTicksDiff + 2},
		{MaxTicksDiff + 4, MaxTicksDiff + 3},
	}
	for _, p := range pairs {
		checkTicksPair(t, p[0], p[1])
	}
}

// TestTicksWraparound checks the comparison behavior around the value
// wrap: two values a small distance apart must compare correctly even
// when their raw representations straddle the mask.
func TestTicksWraparound(t *testing.T) {
	near := []uint64{0, 1, 5, TicksMask - 5, TicksMask - 1, TicksMask}
	for _, base := range near {
		for d := uint64(1); d <= 10; d++ {
			a := NewTicks(base)
			b := a.AddUint64(d)
			if !a.LT(b) || !b.GT(a) || a.EQ(b) {
				t.Fatalf("ordering broke at base 0x%x +%d", base, d)
			}
			if b.Sub(a).Val() != d {
				t.Fatalf("Sub after wrap at base 0x%x +%d = %d", base, d,
					b.Sub(a).Val())
			}
		}
	}
}

func TestTicksOpsRandomized(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	const iterations = 20000
	for i := 0; i < iterations; i++ {
		v1 := uint64(rnd.Int63())
		diff := uint64(rnd.Int63n(MaxTicksDiff))
		checkTicksPair(t, v1, v1+diff)
		checkTicksPair(t, v1+diff, v1)
	}
}
