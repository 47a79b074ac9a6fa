// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package exception

// TranslateBacktrace rewrites return addresses as offsets from base,
// discarding the entries which don't lie above it (runtime-side frames).  The
// operation is done in place; the returned slice aliases bt.
func TranslateBacktrace(bt []uint32, base uint32) []uint32 {
	n := 0
	for _, addr := range bt {
		if addr > base {
			bt[n] = addr - base
			n++
		}
	}
	return bt[:n]
}
