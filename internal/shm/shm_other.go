// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !unix

package shm

import (
	"fmt"
)

// Map allocates ordinary memory; both cores live in the same process.
func Map(size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("shared memory size %d", size)
	}
	return make([]byte, size), nil
}

func Unmap(b []byte) error {
	return nil
}
