// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build unix

// Package shm allocates memory regions which are shared between the cores.
package shm

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

var pageMask = os.Getpagesize() - 1

func alignPageSize(n int) int { return (n + pageMask) &^ pageMask }

// Map an anonymous shared memory region.  The size is rounded up to page
// size, but the returned slice has the requested length.
func Map(size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("shared memory size %d", size)
	}

	b, err := unix.Mmap(-1, 0, alignPageSize(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("mapping shared memory: %w", err)
	}

	return b[:size], nil
}

// Unmap a region returned by Map.
func Unmap(b []byte) error {
	if b == nil {
		return nil
	}
	return unix.Munmap(b[:cap(b)])
}
