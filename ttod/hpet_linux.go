// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

//go:build linux

package ttod

import (
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Register offsets into the memory-mapped HPET page, from the Linux
// kernel's <linux/hpet.h> / HPET spec ch.2: general capabilities at 0x00
// (bits [63:32] hold COUNTER_CLK_PERIOD, in femtoseconds), main counter
// value at 0xf0.
const (
	hpetCapsOffset    = 0x00
	hpetCounterOffset = 0xf0
)

type hpetDevice struct {
	fd  int
	mem []byte
}

// openHPET maps the kernel's /dev/hpet character device, which on Linux
// supports mmap of the counter page for exactly this kind of polling
// read (see Documentation/timers/hpet.rst).
func openHPET() (*hpetDevice, bool) {
	fd, err := unix.Open("/dev/hpet", unix.O_RDONLY, 0)
	if err != nil {
		return nil, false
	}
	mem, err := unix.Mmap(fd, 0, os.Getpagesize(), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, false
	}
	return &hpetDevice{fd: fd, mem: mem}, true
}

func (d *hpetDevice) read() uint64 {
	p := (*uint64)(unsafe.Pointer(&d.mem[hpetCounterOffset]))
	return atomic.LoadUint64(p)
}

func (d *hpetDevice) period() uint64 {
	p := (*uint64)(unsafe.Pointer(&d.mem[hpetCapsOffset]))
	caps := atomic.LoadUint64(p)
	return caps >> 32
}

func (d *hpetDevice) close() {
	unix.Munmap(d.mem)
	unix.Close(d.fd)
}
