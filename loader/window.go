// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package loader

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Payload window of the kernel core.
const (
	PayloadAddress = 0x40840000
	LastAddress    = 0x40c40000
)

var ErrOutOfBounds = errors.New("address out of bounds")

// Window is the kernel core's memory for loaded code and data.  Multi-byte
// accessors use the byte order of the most recently loaded image.
type Window struct {
	base  uint32
	mem   []byte
	Order binary.ByteOrder
}

// NewWindow covering [base, base+size).
func NewWindow(base, size uint32) *Window {
	if uint64(base)+uint64(size) > 1<<32 {
		panic(fmt.Sprintf("window 0x%x+0x%x exceeds address space", base, size))
	}

	return &Window{
		base:  base,
		mem:   make([]byte, size),
		Order: binary.BigEndian,
	}
}

// NewPayloadWindow covers [PayloadAddress, LastAddress).
func NewPayloadWindow() *Window {
	return NewWindow(PayloadAddress, LastAddress-PayloadAddress)
}

func (w *Window) Base() uint32 { return w.base }
func (w *Window) Size() uint32 { return uint32(len(w.mem)) }
func (w *Window) End() uint32  { return w.base + uint32(len(w.mem)) }

// Contains [addr, addr+n)?
func (w *Window) Contains(addr, n uint32) bool {
	return addr >= w.base && uint64(addr-w.base)+uint64(n) <= uint64(len(w.mem))
}

// Bytes returns a slice aliasing the memory at [addr, addr+n).
func (w *Window) Bytes(addr, n uint32) ([]byte, error) {
	if !w.Contains(addr, n) {
		return nil, fmt.Errorf("%w: 0x%x+%d", ErrOutOfBounds, addr, n)
	}
	off := addr - w.base
	return w.mem[off : off+n : off+n], nil
}

func (w *Window) Read8(addr uint32) (uint8, error) {
	b, err := w.Bytes(addr, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (w *Window) Read32(addr uint32) (uint32, error) {
	b, err := w.Bytes(addr, 4)
	if err != nil {
		return 0, err
	}
	return w.Order.Uint32(b), nil
}

func (w *Window) Read64(addr uint32) (uint64, error) {
	b, err := w.Bytes(addr, 8)
	if err != nil {
		return 0, err
	}
	return w.Order.Uint64(b), nil
}

func (w *Window) Write32(addr, value uint32) error {
	b, err := w.Bytes(addr, 4)
	if err != nil {
		return err
	}
	w.Order.PutUint32(b, value)
	return nil
}

// Zero the memory at [start, end).
func (w *Window) Zero(start, end uint32) error {
	if end < start {
		return fmt.Errorf("%w: zeroing 0x%x..0x%x", ErrOutOfBounds, start, end)
	}
	b, err := w.Bytes(start, end-start)
	if err != nil {
		return err
	}
	clear(b)
	return nil
}
